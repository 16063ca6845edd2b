package main

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avcore/libav"
	"github.com/xaionaro-go/avcore/native"
	"github.com/xaionaro-go/avcore/native/fakeav"
)

const (
	backendNameLibav = "libav"
	backendNameFake  = "fake"
)

func newBackend(ctx context.Context, name string) (native.Backend, error) {
	switch name {
	case backendNameLibav:
		backend, err := libav.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to initialize the libav backend: %w", err)
		}
		return backend, nil
	case backendNameFake:
		return fakeav.New(), nil
	}
	return nil, fmt.Errorf("unknown backend '%s'", name)
}

// reportStored logs the size of an output kept in memory by the fake
// backend.
func reportStored(ctx context.Context, backend native.Backend, url string) {
	fake, ok := backend.(*fakeav.Backend)
	if !ok {
		return
	}
	data, ok := fake.Stored(url)
	if !ok {
		return
	}
	logger.Infof(ctx, "'%s' holds %d bytes", url, len(data))
}
