package redis

import (
	"github.com/buraksezer/consistent"
	"github.com/spaolacci/murmur3"
)

type hasher struct{}

func (h hasher) Sum64(data []byte) uint64 {
	return murmur3.Sum64(data)
}

type RingConfig struct {
	PartitionCount int
}

type member string

func (m member) String() string {
	return string(m)
}

// Ring spreads queue traffic over PartitionCount sub-lists so a hot channel is
// not a single redis key.
type Ring struct {
	RingConfig
	hring *consistent.Consistent
}

func NewRing(c RingConfig) *Ring {
	cfg := consistent.Config{
		PartitionCount:    c.PartitionCount,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            hasher{},
	}
	return &Ring{
		RingConfig: c,
		hring:      consistent.New([]consistent.Member{member("local")}, cfg),
	}
}

func (r *Ring) GetPartition(key string) int {
	return r.hring.FindPartitionID([]byte(key))
}
