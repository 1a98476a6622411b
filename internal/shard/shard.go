// Package shard spreads grid cells over a fixed number of storage shards.
package shard

import (
	"hash/fnv"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
)

// ID represents a shard number in [0, NumShards).
type ID int

// ForCoord computes the shard for a grid coordinate. It hashes the
// coordinate's "x,y" key so neighbouring cells land on different shards.
func ForCoord(c grid.Coord, numShards int) ID {
	return ForKey(c.Key(), numShards)
}

// ForKey computes the shard for an arbitrary string key.
func ForKey(key string, numShards int) ID {
	if numShards <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return ID(h.Sum32() % uint32(numShards))
}
