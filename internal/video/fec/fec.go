// Package fec wraps klauspost/reedsolomon behind a memoized codec cache:
// Reed-Solomon table construction is
// expensive and the (n_data, n_parity) pair repeats constantly within a
// session, so codecs are built once per shape and reused.
package fec

import (
	"fmt"
	"sync"

	"github.com/klauspost/reedsolomon"
)

// Cache memoizes reedsolomon.Encoder instances keyed by (dataShards,
// parityShards). Safe for concurrent use; a single Cache is shared by the
// video packetizer and the audio encoder's per-group FEC.
type Cache struct {
	mu      sync.Mutex
	codecs  map[shape]reedsolomon.Encoder
}

type shape struct {
	data, parity int
}

// NewCache constructs an empty codec cache.
func NewCache() *Cache {
	return &Cache{codecs: make(map[shape]reedsolomon.Encoder)}
}

func (c *Cache) get(dataShards, parityShards int) (reedsolomon.Encoder, error) {
	key := shape{dataShards, parityShards}

	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.codecs[key]; ok {
		return enc, nil
	}

	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("fec: construct reedsolomon(%d,%d): %w", dataShards, parityShards, err)
	}
	c.codecs[key] = enc
	return enc, nil
}

// Encode computes parityShards parity buffers over the data buffers, all of
// which must already be the same length (the shard_total-sized buffer,
// header included, so the receiver can treat headers as FEC-protected).
// shards must contain dataShards data
// buffers followed by parityShards pre-allocated (but not necessarily
// zeroed) buffers of the same length; the parity buffers are filled in
// place.
func (c *Cache) Encode(shards [][]byte, dataShards, parityShards int) error {
	enc, err := c.get(dataShards, parityShards)
	if err != nil {
		return err
	}
	return enc.Encode(shards)
}

// Reconstruct fills in any nil entries of shards (marking erasures) given at
// least dataShards non-nil entries, recovering every data shard
// byte-for-byte.
func (c *Cache) Reconstruct(shards [][]byte, dataShards, parityShards int) error {
	enc, err := c.get(dataShards, parityShards)
	if err != nil {
		return err
	}
	return enc.Reconstruct(shards)
}
