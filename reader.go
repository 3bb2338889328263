package mxl

import (
	"time"

	"github.com/mxllabs/mxl/internal/continuousflow"
	"github.com/mxllabs/mxl/internal/discreteflow"
	"github.com/mxllabs/mxl/internal/flow"
	"github.com/mxllabs/mxl/internal/instance"
)

// Reader is a read-only handle on one flow, obtained from
// Instance.CreateFlowReader. Exactly one of the discrete or continuous
// accessors is valid for a given handle; check Kind first (spec §9,
// "Polymorphism across flow shapes").
type Reader struct {
	inst   *instance.Instance
	handle *instance.ReaderHandle
}

// ID returns the flow's UUID.
func (r *Reader) ID() [16]byte { return r.handle.ID }

// Kind reports whether r is backed by a discrete (grain) or continuous
// (sample) flow.
func (r *Reader) Kind() Kind { return r.handle.Kind }

// Release decrements the reader's reference count, tearing down the
// underlying mapping on last release (spec §6.3: releaseFlowReader).
func (r *Reader) Release() error {
	return wrap("mxl.Reader.Release", r.inst.ReleaseFlowReader(r.handle.ID))
}

// Grain is the public view of one discrete flow slot: its header fields
// and the live payload slice, valid only until the next call on the
// owning Reader or Writer.
type Grain struct {
	Index       uint64
	Flags       flow.GrainFlags
	ValidSlices uint32
	TotalSlices uint32
	GrainSize   uint32
	Payload     []byte
}

func grainFrom(info flow.GrainInfo, payload []byte) Grain {
	return Grain{
		Index:       info.Index,
		Flags:       info.Flags,
		ValidSlices: info.ValidSlices,
		TotalSlices: info.TotalSlices,
		GrainSize:   info.GrainSize,
		Payload:     payload,
	}
}

// GetGrain blocks until grain index is available or timeout elapses
// (spec §4.10). r.Kind() must be KindDiscrete.
func (r *Reader) GetGrain(index uint64, timeout time.Duration) (Grain, error) {
	info, payload, err := r.discreteReader().GetGrain(index, timeout)
	if err != nil {
		return Grain{}, wrap("mxl.Reader.GetGrain", err)
	}
	return grainFrom(info, payload), nil
}

// GetGrainNonBlocking returns OutOfRangeTooEarly immediately instead of
// waiting if index is beyond the writer's current head.
func (r *Reader) GetGrainNonBlocking(index uint64) (Grain, error) {
	info, payload, err := r.discreteReader().GetGrainNonBlocking(index)
	if err != nil {
		return Grain{}, wrap("mxl.Reader.GetGrainNonBlocking", err)
	}
	return grainFrom(info, payload), nil
}

// GetGrainSlice behaves like GetGrain but is satisfied as soon as the
// slot's ValidSlices reaches expectedValidSlices, for pipelining against
// a line-by-line producer (spec §4.10).
func (r *Reader) GetGrainSlice(index uint64, expectedValidSlices uint32, timeout time.Duration) (Grain, error) {
	info, payload, err := r.discreteReader().GetGrainSlice(index, expectedValidSlices, timeout)
	if err != nil {
		return Grain{}, wrap("mxl.Reader.GetGrainSlice", err)
	}
	return grainFrom(info, payload), nil
}

// SampleWindow is the public view of a resolved continuous sample range:
// up to two contiguous fragments covering the request, in playback
// order (First then Second), accounting for the circular buffer's wrap.
type SampleWindow struct {
	inner continuousflow.Window
	data  *continuousflow.Data
}

// Channel returns the byte slices backing channel's portion of the
// window: a single slice if the window doesn't wrap, two otherwise.
func (w SampleWindow) Channel(channel uint32) (first, second []byte) {
	return w.data.ChannelSlices(channel, w.inner)
}

// GetSamples blocks until the window of count samples ending at index
// becomes available or timeout elapses (spec §4.11). r.Kind() must be
// KindContinuous.
func (r *Reader) GetSamples(index uint64, count int, timeout time.Duration) (SampleWindow, error) {
	win, err := r.continuousReader().GetSamples(index, count, timeout)
	if err != nil {
		return SampleWindow{}, wrap("mxl.Reader.GetSamples", err)
	}
	return SampleWindow{inner: win, data: r.handle.Continuous.Data()}, nil
}

// GetSamplesNonBlocking is the non-blocking variant of GetSamples.
func (r *Reader) GetSamplesNonBlocking(index uint64, count int) (SampleWindow, error) {
	win, err := r.continuousReader().GetSamplesNonBlocking(index, count)
	if err != nil {
		return SampleWindow{}, wrap("mxl.Reader.GetSamplesNonBlocking", err)
	}
	return SampleWindow{inner: win, data: r.handle.Continuous.Data()}, nil
}

func (r *Reader) discreteReader() *discreteflow.Reader     { return r.handle.Discrete }
func (r *Reader) continuousReader() *continuousflow.Reader { return r.handle.Continuous }
