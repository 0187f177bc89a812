// Package stream reconstructs a logical object from its chunk tree and
// writes it — in whole or as a byte range — to an io.Writer in strictly
// ascending (parent, index) order, one chunk at a time.
package stream

import (
	"context"
	"io"

	"github.com/marmos91/storage-gateway/pkg/cachestore"
	"github.com/marmos91/storage-gateway/pkg/chunkkey"
	"github.com/marmos91/storage-gateway/pkg/storagerpc"
)

// Streamer reconstructs chunked objects for one HTTP response. Like
// pkg/upload.Session, a Streamer is owned by a single request's handler
// task and never shared.
type Streamer struct {
	rpc   storagerpc.RPC
	cache cachestore.Store
}

// New returns a Streamer backed by rpc and cache.
func New(rpc storagerpc.RPC, cache cachestore.Store) *Streamer {
	return &Streamer{rpc: rpc, cache: cache}
}

// frame is one pending level of the chunk tree: children idx..total of
// parent remain to be visited. Traversal is iterative with an explicit
// stack of frames rather than recursive, so each nesting level costs one
// small heap frame rather than a call-stack frame (production trees nest at
// most two levels, but the algorithm admits arbitrary depth).
type frame struct {
	parent string
	total  uint32
	idx    uint32
}

// StreamAll writes the full reconstructed object rooted at parentKey (which
// has total direct children) to w, in pre-order: a cache hit on a chunk key
// serves straight from the cache; a miss falls through to the storage
// cluster; an inner node (cnumber > 0) is walked before its parent's
// remaining siblings. Any cluster or writer error aborts the whole stream.
func (s *Streamer) StreamAll(ctx context.Context, parentKey string, total uint32, w io.Writer) error {
	stack := []*frame{{parent: parentKey, total: total, idx: 1}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.idx > top.total {
			stack = stack[:len(stack)-1]
			continue
		}

		idx := top.idx
		top.idx++
		key := chunkkey.DeriveString(top.parent, idx)

		if entry, ok := s.cache.Get(key); ok {
			if _, err := w.Write(entry.Body); err != nil {
				return err
			}
			continue
		}

		res, err := s.rpc.Get(ctx, key, storagerpc.GetOptions{})
		if err != nil {
			return err
		}

		if res.Metadata.CNumber == 0 {
			if _, err := w.Write(res.Body); err != nil {
				return err
			}
			continue
		}

		stack = append(stack, &frame{parent: key, total: uint32(res.Metadata.CNumber), idx: 1})
	}

	return nil
}

// StreamRange writes the inclusive logical byte range [start, end] of the
// object rooted at parentKey to w. start/end must already be normalized
// (see NormalizeRange) — both non-negative and end < object size.
//
// Unlike StreamAll, StreamRange never consults the cache: a cache entry
// only ever holds a whole chunk body, and range requests routinely need a
// sub-slice the storage cluster's own byte-range get can serve without
// transferring the untruncated chunk.
func (s *Streamer) StreamRange(ctx context.Context, parentKey string, total uint32, start, end int64, w io.Writer) error {
	var curPos int64
	stack := []*frame{{parent: parentKey, total: total, idx: 1}}

	for len(stack) > 0 {
		if curPos > end {
			return nil
		}

		top := stack[len(stack)-1]
		if top.idx > top.total {
			stack = stack[:len(stack)-1]
			continue
		}

		idx := top.idx
		top.idx++
		key := chunkkey.DeriveString(top.parent, idx)

		meta, err := s.rpc.Head(ctx, key)
		if err != nil {
			return err
		}

		if meta.CNumber > 0 {
			stack = append(stack, &frame{parent: key, total: uint32(meta.CNumber), idx: 1})
			continue
		}

		cs := meta.DSize
		childStart := curPos
		childEnd := curPos + cs - 1

		switch {
		case childEnd < start:
			// Entirely before the range: skip without fetching a body.

		case childStart >= start && childEnd <= end:
			res, err := s.rpc.Get(ctx, key, storagerpc.GetOptions{})
			if err != nil {
				return err
			}
			if _, err := w.Write(res.Body); err != nil {
				return err
			}

		default:
			startPos := max64(0, start-curPos)
			endPos := min64(cs-1, end-curPos)
			res, err := s.rpc.Get(ctx, key, storagerpc.GetOptions{HasRange: true, Start: startPos, End: endPos})
			if err != nil {
				return err
			}
			if _, err := w.Write(res.Body); err != nil {
				return err
			}
		}

		curPos += cs
	}

	return nil
}

// NormalizeRange resolves end == 0 (to the object's last byte) and end < 0
// (a suffix range of length |end|, per the HTTP suffix-byte-range-spec
// convention) against objectSize, returning inclusive start/end ready for
// StreamRange.
func NormalizeRange(objectSize, start, end int64) (int64, int64) {
	switch {
	case end == 0:
		end = objectSize - 1
	case end < 0:
		start = objectSize + end
		end = objectSize - 1
	}
	return start, end
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
