// Package pipeline connects demuxers, coders, filter graphs and muxers
// into running chains of processing nodes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/avcore/media"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xsync"
)

// Node is a step of a pipeline. A node closes its output channel when it
// is done, and Err reports why.
type Node interface {
	io.Closer
	fmt.Stringer

	// SendPacketChan is nil for nodes producing packets on their own.
	SendPacketChan() chan<- *media.Packet
	OutputPacketsChan() <-chan *media.Packet
	Err() error
}

// Pipeline is a tree of nodes: the output of Node is copied to every
// PushTo. Each node may have only one upstream.
type Pipeline struct {
	Node
	PushTo []*Pipeline
}

func NewPipelineNode(node Node, pushTo ...*Pipeline) *Pipeline {
	return &Pipeline{
		Node:   node,
		PushTo: pushTo,
	}
}

// Serve moves packets until every node of the tree is finished or ctx is
// cancelled. End of stream of the root propagates to the leaves.
func (p *Pipeline) Serve(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Serve[%s]", p.Node)
	defer func() { logger.Debugf(ctx, "/Serve[%s]: %v", p.Node, _err) }()

	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	var (
		wg          sync.WaitGroup
		errLocker   xsync.Mutex
		downstreamE *multierror.Error
	)
	for _, pushTo := range p.PushTo {
		wg.Add(1)
		observability.Go(ctx, func(ctx context.Context) {
			defer wg.Done()
			if err := pushTo.Serve(ctx); err != nil {
				errLocker.Do(ctx, func() {
					downstreamE = multierror.Append(downstreamE, err)
				})
				cancelFn()
			}
		})
	}

	err := p.pump(ctx)
	for _, pushTo := range p.PushTo {
		if ch := pushTo.SendPacketChan(); ch != nil {
			close(ch)
		}
	}
	wg.Wait()

	if err := downstreamE.ErrorOrNil(); err != nil {
		return err
	}
	return err
}

func (p *Pipeline) pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-p.Node.OutputPacketsChan():
			if !ok {
				if err := p.Node.Err(); err != nil {
					return fmt.Errorf("%s failed: %w", p.Node, err)
				}
				return nil
			}
			for idx, pushTo := range p.PushTo {
				out := pkt
				if idx < len(p.PushTo)-1 {
					out = pkt.Clone()
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case pushTo.SendPacketChan() <- out:
				}
			}
		}
	}
}

// Close closes every node of the tree, the root first.
func (p *Pipeline) Close() error {
	var result *multierror.Error
	if err := p.Node.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to close %s: %w", p.Node, err))
	}
	for _, pushTo := range p.PushTo {
		if err := pushTo.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

type packetSender interface {
	SendPacket(ctx context.Context, pkt *media.Packet) error
}

// readerLoop feeds the packets of inputChan to the node until the channel
// is closed (io.EOF is returned then).
func readerLoop(
	ctx context.Context,
	inputChan <-chan *media.Packet,
	sender packetSender,
) (_err error) {
	logger.Debugf(ctx, "readerLoop")
	defer func() { logger.Debugf(ctx, "/readerLoop: %v", _err) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-inputChan:
			if !ok {
				return io.EOF
			}
			err := sender.SendPacket(ctx, pkt)
			if err != nil {
				return fmt.Errorf("unable to send packet: %w", err)
			}
		}
	}
}

// nodeLoop runs readerLoop and closes outputChan once it ends. A
// finalizer runs before the close, unless the loop was interrupted.
type nodeLoop struct {
	inputChan  chan *media.Packet
	outputChan chan *media.Packet
	done       chan struct{}
	cancelFn   context.CancelFunc
	err        error
}

func newNodeLoop(inputBuffer, outputBuffer int) nodeLoop {
	return nodeLoop{
		inputChan:  make(chan *media.Packet, inputBuffer),
		outputChan: make(chan *media.Packet, outputBuffer),
		done:       make(chan struct{}),
	}
}

func (l *nodeLoop) start(
	ctx context.Context,
	sender packetSender,
	finalize func(ctx context.Context) error,
) {
	ctx, l.cancelFn = context.WithCancel(ctx)
	observability.Go(ctx, func(ctx context.Context) {
		defer close(l.done)
		defer close(l.outputChan)
		err := readerLoop(ctx, l.inputChan, sender)
		if errors.Is(err, io.EOF) {
			err = nil
			if finalize != nil {
				err = finalize(ctx)
			}
		}
		l.err = err
	})
}

func (l *nodeLoop) SendPacketChan() chan<- *media.Packet {
	return l.inputChan
}

func (l *nodeLoop) OutputPacketsChan() <-chan *media.Packet {
	return l.outputChan
}

// Err is valid once the output channel is closed.
func (l *nodeLoop) Err() error {
	return l.err
}

// stop interrupts the loop and waits for it to end.
func (l *nodeLoop) stop() {
	if l.cancelFn == nil {
		return
	}
	l.cancelFn()
	<-l.done
}

// emit sends to the output channel unless ctx is cancelled.
func (l *nodeLoop) emit(ctx context.Context, pkt *media.Packet) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case l.outputChan <- pkt:
		return nil
	}
}
