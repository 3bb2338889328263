package mxl

import (
	"github.com/mxllabs/mxl/internal/flow"
	"github.com/mxllabs/mxl/internal/instance"
)

// Writer is a write handle on one flow, obtained from
// Instance.CreateFlowWriter. Exactly one of the discrete or continuous
// accessors is valid for a given handle; check Kind first.
type Writer struct {
	inst   *instance.Instance
	handle *instance.WriterHandle

	openGrain flow.GrainInfo // last OpenGrain result, discrete only
}

// ID returns the flow's UUID.
func (w *Writer) ID() [16]byte { return w.handle.ID }

// Kind reports whether w is backed by a discrete (grain) or continuous
// (sample) flow.
func (w *Writer) Kind() Kind { return w.handle.Kind }

// Release decrements the writer's reference count. On last release the
// flow is deleted if no other writer process still holds a shared lock
// on it; readers take no lock (spec §4.6/§4.13/§8.2).
func (w *Writer) Release() error {
	return wrap("mxl.Writer.Release", w.inst.ReleaseFlowWriter(w.handle.ID))
}

// OpenGrain opens grain index for writing: Idle -> Open(index) (spec
// §4.7). w.Kind() must be KindDiscrete.
func (w *Writer) OpenGrain(index uint64) (Grain, error) {
	info, payload, err := w.handle.Discrete.OpenGrain(index)
	if err != nil {
		return Grain{}, wrap("mxl.Writer.OpenGrain", err)
	}
	w.openGrain = info
	return grainFrom(info, payload), nil
}

// CommitGrain writes back g's mutable fields (Flags, ValidSlices,
// TotalSlices, GrainSize) onto the currently open grain, advances the
// flow's head, and — per the sync-batch throttle — wakes blocked
// readers (spec §4.7/§4.9). A partial commit (ValidSlices < TotalSlices)
// leaves the same grain open for a following OpenGrain(index) call.
func (w *Writer) CommitGrain(g Grain) error {
	info := w.openGrain
	info.Index = g.Index
	info.Flags = g.Flags
	info.ValidSlices = g.ValidSlices
	info.TotalSlices = g.TotalSlices
	info.GrainSize = g.GrainSize
	return wrap("mxl.Writer.CommitGrain", w.handle.Discrete.Commit(info))
}

// CancelGrain returns to Idle without touching shared state.
func (w *Writer) CancelGrain() { w.handle.Discrete.Cancel() }

// OpenSamples resolves the (possibly wrapping) window of count samples
// ending at index (spec §4.8). w.Kind() must be KindContinuous.
func (w *Writer) OpenSamples(index uint64, count int) (SampleWindow, error) {
	win, err := w.handle.Continuous.OpenSamples(index, count)
	if err != nil {
		return SampleWindow{}, wrap("mxl.Writer.OpenSamples", err)
	}
	return SampleWindow{inner: win, data: w.handle.Continuous.Data()}, nil
}

// CommitSamples advances the flow's head to the last opened index and,
// per the sync-batch throttle, wakes blocked readers.
func (w *Writer) CommitSamples() error {
	return wrap("mxl.Writer.CommitSamples", w.handle.Continuous.CommitSamples())
}

// CancelSamples drops the open window without touching shared state.
func (w *Writer) CancelSamples() { w.handle.Continuous.CancelSamples() }
