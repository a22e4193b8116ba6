package fec

import (
	"bytes"
	"testing"
)

func makeShards(data, parity, size int) [][]byte {
	shards := make([][]byte, data+parity)
	for i := 0; i < data; i++ {
		shards[i] = make([]byte, size)
		for j := range shards[i] {
			shards[i][j] = byte(i*31 + j)
		}
	}
	for i := data; i < len(shards); i++ {
		shards[i] = make([]byte, size)
	}
	return shards
}

func TestEncodeReconstructRoundTrip(t *testing.T) {
	cases := []struct {
		name         string
		data, parity int
	}{
		{"video-small", 3, 1},
		{"video-large", 100, 50},
		{"audio-group", 4, 2},
	}

	cache := NewCache()

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			shards := makeShards(tc.data, tc.parity, 64)
			if err := cache.Encode(shards, tc.data, tc.parity); err != nil {
				t.Fatalf("Encode: %v", err)
			}

			original := make([][]byte, tc.data)
			for i := range original {
				original[i] = append([]byte(nil), shards[i]...)
			}

			// Erase as many shards as there is parity, favoring data shards.
			for i := 0; i < tc.parity; i++ {
				shards[i] = nil
			}

			if err := cache.Reconstruct(shards, tc.data, tc.parity); err != nil {
				t.Fatalf("Reconstruct: %v", err)
			}

			for i := range original {
				if !bytes.Equal(shards[i], original[i]) {
					t.Fatalf("data shard %d not recovered byte-for-byte", i)
				}
			}
		})
	}
}

func TestCacheReusesCodecs(t *testing.T) {
	cache := NewCache()

	if err := cache.Encode(makeShards(4, 2, 16), 4, 2); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := cache.Encode(makeShards(4, 2, 16), 4, 2); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if len(cache.codecs) != 1 {
		t.Fatalf("expected 1 memoized codec, have %d", len(cache.codecs))
	}
}

func TestInvalidShapeFails(t *testing.T) {
	cache := NewCache()
	if err := cache.Encode(makeShards(0, 2, 16), 0, 2); err == nil {
		t.Fatal("expected zero data shards to be rejected")
	}
}
