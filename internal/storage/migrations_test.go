package storage

import "testing"

func TestShardTable(t *testing.T) {
	tests := []struct {
		shardID int
		want    string
	}{
		{0, "cells_0000"},
		{7, "cells_0007"},
		{42, "cells_0042"},
		{999, "cells_0999"},
		{9999, "cells_9999"},
	}

	for _, tt := range tests {
		if got := ShardTable(tt.shardID); got != tt.want {
			t.Errorf("ShardTable(%d) = %q, want %q", tt.shardID, got, tt.want)
		}
	}
}
