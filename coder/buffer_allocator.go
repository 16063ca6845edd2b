package coder

import (
	"context"
	"sync/atomic"

	"github.com/xaionaro-go/avcore/native"
)

// directRenderingAllocator hands the planes of the caller-owned target
// back to the codec whenever they are large enough.
type directRenderingAllocator struct {
	reused    atomic.Uint64
	allocated atomic.Uint64
}

var _ native.BufferAllocator = (*directRenderingAllocator)(nil)

func (a *directRenderingAllocator) AllocateBuffers(
	ctx context.Context,
	req native.BufferRequest,
) ([][]byte, error) {
	var existing [][]byte
	if req.Target != nil {
		existing = req.Target.GetPlanes()
	}
	planes := make([][]byte, len(req.PlaneSizes))
	for idx, size := range req.PlaneSizes {
		if idx < len(existing) && cap(existing[idx]) >= size {
			planes[idx] = existing[idx][:size]
			a.reused.Add(1)
			continue
		}
		planes[idx] = make([]byte, size)
		a.allocated.Add(1)
	}
	return planes, nil
}
