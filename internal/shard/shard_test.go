package shard

import (
	"testing"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
)

func TestForCoord_Deterministic(t *testing.T) {
	c := grid.Coord{X: 512, Y: 77}
	numShards := 64

	first := ForCoord(c, numShards)
	for i := 0; i < 100; i++ {
		if got := ForCoord(c, numShards); got != first {
			t.Fatalf("iteration %d: got shard %d, want %d", i, got, first)
		}
	}
	if ForKey(c.Key(), numShards) != first {
		t.Error("ForCoord and ForKey disagree for the same key")
	}
}

func TestForCoord_InRange(t *testing.T) {
	for _, numShards := range []int{1, 2, 4, 8, 16, 32, 64, 128, 256} {
		for x := 0; x < 20; x++ {
			for y := 0; y < 20; y++ {
				got := ForCoord(grid.Coord{X: x, Y: y}, numShards)
				if int(got) < 0 || int(got) >= numShards {
					t.Errorf("numShards=%d (%d,%d): shard %d out of range", numShards, x, y, got)
				}
			}
		}
	}
}

func TestForCoord_NeighboursDistribute(t *testing.T) {
	numShards := 16
	seen := make(map[ID]bool)
	for x := 0; x < 40; x++ {
		for y := 0; y < 25; y++ {
			seen[ForCoord(grid.Coord{X: x, Y: y}, numShards)] = true
		}
	}
	if len(seen) < numShards/2 {
		t.Errorf("poor distribution: only %d/%d shards seen with 1000 cells", len(seen), numShards)
	}
}

func TestForKey_SingleOrNoShard(t *testing.T) {
	for _, n := range []int{1, 0, -3} {
		if got := ForKey("9,9", n); got != 0 {
			t.Errorf("numShards=%d: expected 0 but got %d", n, got)
		}
	}
}

func BenchmarkForCoord(b *testing.B) {
	c := grid.Coord{X: 999, Y: 999}
	for i := 0; i < b.N; i++ {
		ForCoord(c, 64)
	}
}
