/*

This file contains the global pool ranking kept in step with every vote mutation.

Pools are ordered by the absolute value of their net signed weight, largest first, so a
heavily down-voted pool ranks above a lightly up-voted one. Ties keep the order in which
the pools entered the ranking. A pool whose net weight returns to zero leaves the ranking
and gets a new position if it comes back.

A pool is located through its position index and its new slot is found by binary search.
Moving it shifts only the entries between its old and new slot, so a vote costs O(log n) plus
the distance the pool moves in the ranking. A pool leaving the ranking shifts every slot after it.

*/

package voting

import (
	"sort"

	"cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/elys-network/votesnap/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

type rankEntry struct {
	pool   common.Address
	weight math.Int // net signed weight, never zero
	abs    math.Int
	seq    uint64
}

type ranking struct {
	entries []rankEntry
	index   map[common.Address]int // pool -> slot in entries
	nextSeq uint64
}

// before reports whether a ranks strictly ahead of b.
func (a rankEntry) before(b rankEntry) bool {
	if !a.abs.Equal(b.abs) {
		return a.abs.GT(b.abs)
	}
	return a.seq < b.seq
}

// reindex refreshes the position index of the slots in [from, to].
func (r *ranking) reindex(from, to int) {
	for i := from; i <= to && i < len(r.entries); i++ {
		r.index[r.entries[i].pool] = i
	}
}

// update moves pool to the position matching its new net weight.
func (r *ranking) update(pool common.Address, weight math.Int) {
	if r.index == nil {
		r.index = make(map[common.Address]int)
	}

	idx, ranked := r.index[pool]
	var seq uint64
	if ranked {
		seq = r.entries[idx].seq
		delete(r.index, pool)
		if weight.IsZero() {
			r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
			r.reindex(idx, len(r.entries)-1)
			return
		}
	} else {
		if weight.IsZero() {
			return
		}
		seq = r.nextSeq
		r.nextSeq++
		r.entries = append(r.entries, rankEntry{})
		idx = len(r.entries) - 1
	}

	// Both sides of idx are sorted. Find the new slot on the side the pool moves to, slide the
	// entries in between over by one, then drop the pool in.
	entry := rankEntry{pool: pool, weight: weight, abs: utils.Abs(weight), seq: seq}
	var pos int
	if idx > 0 && entry.before(r.entries[idx-1]) {
		pos = sort.Search(idx, func(i int) bool { return entry.before(r.entries[i]) })
	} else {
		tail := r.entries[idx+1:]
		pos = idx + sort.Search(len(tail), func(i int) bool { return !tail[i].before(entry) })
	}
	switch {
	case pos < idx:
		copy(r.entries[pos+1:idx+1], r.entries[pos:idx])
	case pos > idx:
		copy(r.entries[idx:pos], r.entries[idx+1:pos+1])
	}
	r.entries[pos] = entry
	lo, hi := pos, idx
	if lo > hi {
		lo, hi = hi, lo
	}
	r.reindex(lo, hi)
}

func (r *ranking) len() int { return len(r.entries) }

// uniqueWeights counts the distinct ranking keys.
func (r *ranking) uniqueWeights() int {
	n := 0
	for i, e := range r.entries {
		if i == 0 || !e.abs.Equal(r.entries[i-1].abs) {
			n++
		}
	}
	return n
}

func (r *ranking) list(limit int) []types.RankedPool {
	if limit < 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]types.RankedPool, limit)
	for i := 0; i < limit; i++ {
		out[i] = types.RankedPool{Rank: i, Pool: r.entries[i].pool, Weight: r.entries[i].weight}
	}
	return out
}
