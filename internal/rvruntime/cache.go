// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rvruntime

import "github.com/Multi-V-VM/DoubleJIT-VM/internal/decoder"

// CacheStats counts hits and misses against Cache.
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// HitRate returns Hits/(Hits+Misses), or 0 if both are zero.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache memoizes decoded instructions by PC. The one-pass translation
// in Run never needs a second lookup at the same PC, so nothing in
// this package actually calls Get after a miss populates it — it's
// wired in as a building block for a future re-translation path (e.g.
// a guest that mmaps fresh text and needs only that range re-decoded),
// the way original_source's CodeCache exposes invalidate_range for
// self-modifying code without every caller needing it today.
type Cache struct {
	instructions map[uint64]decoder.Instruction
	stats        CacheStats
}

// NewCache returns an empty instruction cache.
func NewCache() *Cache {
	return &Cache{instructions: map[uint64]decoder.Instruction{}}
}

// Get returns the cached instruction at pc, if any.
func (c *Cache) Get(pc uint64) (decoder.Instruction, bool) {
	in, ok := c.instructions[pc]
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	return in, ok
}

// Put records the decoded instruction at pc.
func (c *Cache) Put(pc uint64, in decoder.Instruction) {
	c.instructions[pc] = in
}

// Stats reports the cache's cumulative hit/miss counters.
func (c *Cache) Stats() CacheStats { return c.stats }

// InvalidateRange drops every cached instruction whose PC falls within
// [start, end], inclusive, for when guest code is overwritten (e.g. a
// dlopen'd segment loaded on top of a previously translated range).
func (c *Cache) InvalidateRange(start, end uint64) {
	for pc := range c.instructions {
		if pc >= start && pc <= end {
			delete(c.instructions, pc)
		}
	}
}
