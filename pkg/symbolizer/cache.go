package symbolizer

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/grafana/symtrace/pkg/model"
)

// frameCache memoizes per-address resolution results. Frames handed out are
// copies: callers mutate their traces (trimming, filtering) and must not
// reach back into cached storage.
type frameCache struct {
	lru *lru.Cache[uint64, []model.Frame]
}

func newFrameCache(size int) *frameCache {
	if size <= 0 {
		return &frameCache{}
	}
	c, err := lru.New[uint64, []model.Frame](size)
	if err != nil {
		return &frameCache{}
	}
	return &frameCache{lru: c}
}

func (c *frameCache) enabled() bool { return c.lru != nil }

func (c *frameCache) get(addr uint64) ([]model.Frame, bool) {
	if c.lru == nil {
		return nil, false
	}
	frames, ok := c.lru.Get(addr)
	if !ok {
		return nil, false
	}
	out := make([]model.Frame, len(frames))
	copy(out, frames)
	return out, true
}

func (c *frameCache) add(addr uint64, frames []model.Frame) {
	if c.lru == nil {
		return
	}
	stored := make([]model.Frame, len(frames))
	copy(stored, frames)
	c.lru.Add(addr, stored)
}
