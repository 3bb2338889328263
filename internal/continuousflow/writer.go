package continuousflow

import (
	"github.com/mxllabs/mxl/internal/mxlerr"
	"github.com/mxllabs/mxl/internal/rational"
	"github.com/mxllabs/mxl/internal/syncbatch"
	"github.com/mxllabs/mxl/internal/wait"
)

// Writer is the sample-range writer of spec §4.8: openSamples(index,
// count) -> commitSamples()/cancelSamples().
type Writer struct {
	data         *Data
	currentIndex uint64
	throttle     *syncbatch.Throttle
}

// NewWriter wraps data with the open/commit/cancel sample-range state.
func NewWriter(data *Data) *Writer {
	return &Writer{data: data, currentIndex: undefinedIndex, throttle: syncbatch.New()}
}

// Data returns the underlying carrier, for callers that need to resolve
// a returned Window against channel byte buffers (Data.ChannelSlices).
func (w *Writer) Data() *Data { return w.data }

// OpenSamples resolves the (possibly wrapping) window of count samples
// ending at index. count must not exceed half the buffer length, so a
// writer can never race a reader out of the entire ring in one call
// (spec §4.8, §8.3).
func (w *Writer) OpenSamples(index uint64, count int) (Window, error) {
	const op = "continuousflow.Writer.OpenSamples"
	h := w.data.FlowInfo()
	if count > int(h.BufferLength)/2 {
		return Window{}, mxlerr.New(mxlerr.InvalidArgument, op, nil)
	}
	win := resolveWindow(index, count, int(h.BufferLength))
	w.currentIndex = index
	return win, nil
}

// CommitSamples advances headIndex to the last opened index and, per the
// sync-batch throttle, decides whether to wake blocked readers.
func (w *Writer) CommitSamples() error {
	const op = "continuousflow.Writer.CommitSamples"
	if w.currentIndex == undefinedIndex {
		return mxlerr.New(mxlerr.InvalidArgument, op, nil)
	}

	h := w.data.FlowInfo()
	h.HeadIndex = w.currentIndex
	h.LastWriteTimeNs = rational.CurrentTimeTAI()

	idx := int64(w.currentIndex)
	if w.throttle.ShouldWake(idx, h.MaxSyncBatchSizeHint, h.MaxCommitBatchSizeHint) {
		h.SyncCounter++
		wait.WakeAll(wait.NewAddr32(&h.SyncCounter))
		w.throttle.Advance(idx, h.MaxSyncBatchSizeHint)
	}

	w.currentIndex = undefinedIndex
	return nil
}

// CancelSamples drops the open window without touching shared state.
func (w *Writer) CancelSamples() {
	w.currentIndex = undefinedIndex
}
