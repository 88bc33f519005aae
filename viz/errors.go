package viz

import (
	"github.com/pkg/errors"
)

var (
	// ErrPoolClosed is returned by Pool operations after Close.
	ErrPoolClosed = errors.New("subscription pool closed")
	// ErrNoSuchView is returned for view ids that were never added or
	// have been removed.
	ErrNoSuchView = errors.New("no such view")
	// ErrDecoderBusy means the worker queue of the frame's topic is full.
	ErrDecoderBusy = errors.New("decoder busy")
	// ErrDecoderClosed is returned by DecodePool.Submit after Close.
	ErrDecoderClosed = errors.New("decoder closed")

	errNotOpen = errors.New("connection not open")
)
