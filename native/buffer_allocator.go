package native

import (
	"context"

	"github.com/xaionaro-go/avcore/media"
)

// BufferRequest asks for the planes backing a decoded unit that is about
// to be exported into Target.
type BufferRequest struct {
	Target     media.Raw
	PlaneSizes []int
}

type BufferAllocator interface {
	AllocateBuffers(ctx context.Context, req BufferRequest) ([][]byte, error)
}

// DefaultBufferAllocator always allocates fresh planes.
type DefaultBufferAllocator struct{}

var _ BufferAllocator = DefaultBufferAllocator{}

func (DefaultBufferAllocator) AllocateBuffers(
	ctx context.Context,
	req BufferRequest,
) ([][]byte, error) {
	planes := make([][]byte, len(req.PlaneSizes))
	for idx, size := range req.PlaneSizes {
		planes[idx] = make([]byte, size)
	}
	return planes, nil
}

// ExportPlanes copies src into planes obtained from allocator and attaches
// them to target.
func ExportPlanes(
	ctx context.Context,
	allocator BufferAllocator,
	target media.Raw,
	src [][]byte,
) error {
	if allocator == nil {
		allocator = DefaultBufferAllocator{}
	}
	sizes := make([]int, len(src))
	for idx, plane := range src {
		sizes[idx] = len(plane)
	}
	planes, err := allocator.AllocateBuffers(ctx, BufferRequest{
		Target:     target,
		PlaneSizes: sizes,
	})
	if err != nil {
		return err
	}
	for idx := range src {
		copy(planes[idx], src[idx])
	}
	target.SetPlanes(planes)
	return nil
}
