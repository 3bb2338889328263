package discreteflow

import (
	"github.com/mxllabs/mxl/internal/flow"
	"github.com/mxllabs/mxl/internal/mxlerr"
	"github.com/mxllabs/mxl/internal/rational"
	"github.com/mxllabs/mxl/internal/syncbatch"
	"github.com/mxllabs/mxl/internal/wait"
)

// Writer is the single-logical-writer-per-flow, single-grain-open-at-a-time
// state machine of spec §4.7: Idle -> Open(index) -> { Idle on a complete
// commit | Open(index) on a partial commit | Idle on cancel }.
type Writer struct {
	data          *Data
	currentIndex  uint64
	throttle      *syncbatch.Throttle
}

// NewWriter wraps data with the Idle/Open grain state machine.
func NewWriter(data *Data) *Writer {
	return &Writer{data: data, currentIndex: undefinedIndex, throttle: syncbatch.New()}
}

// OpenGrain computes offset = index mod grainCount, stamps the grain's
// index field, and returns a copy of its header plus the live payload
// slice for the caller to mutate. Not valid unless the writer is Idle or
// re-opening the same index already open.
func (w *Writer) OpenGrain(index uint64) (flow.GrainInfo, []byte, error) {
	const op = "discreteflow.Writer.OpenGrain"
	if w.currentIndex != undefinedIndex && w.currentIndex != index {
		return flow.GrainInfo{}, nil, mxlerr.New(mxlerr.InvalidArgument, op, nil)
	}

	h := w.data.FlowInfo()
	offset := index % h.GrainCount
	buf := w.data.GrainAt(offset)
	info := flow.CastGrainInfo(buf)
	info.Index = index
	w.currentIndex = index

	payload := flow.GrainPayload(buf, info.GrainSize)
	return *info, payload, nil
}

// Cancel returns to Idle without touching shared state.
func (w *Writer) Cancel() {
	w.currentIndex = undefinedIndex
}

// Commit copies info into the open grain's slot, advances headIndex,
// stamps lastWriteTime, and — per the sync-batch throttle (spec §4.9) —
// decides whether to bump syncCounter and wake every blocked reader.
// Rejects if info.Index doesn't match the currently open grain.
func (w *Writer) Commit(info flow.GrainInfo) error {
	const op = "discreteflow.Writer.Commit"
	if w.currentIndex == undefinedIndex || info.Index != w.currentIndex {
		return mxlerr.New(mxlerr.InvalidArgument, op, nil)
	}

	h := w.data.FlowInfo()
	h.HeadIndex = w.currentIndex

	offset := w.currentIndex % h.GrainCount
	*flow.CastGrainInfo(w.data.GrainAt(offset)) = info
	h.LastWriteTimeNs = rational.CurrentTimeTAI()

	if info.ValidSlices >= info.TotalSlices {
		w.currentIndex = undefinedIndex
	}

	// Batch hints count slices, so the throttle sees each commit at its
	// position on a flow-wide slice axis; a partial commit that adds slices
	// to an already-signalled grain then advances it too.
	idx := int64(info.Index)*int64(info.TotalSlices) + int64(info.ValidSlices)
	if w.throttle.ShouldWake(idx, h.MaxSyncBatchSizeHint, h.MaxCommitBatchSizeHint) {
		h.SyncCounter++
		wait.WakeAll(wait.NewAddr32(&h.SyncCounter))
		w.throttle.Advance(idx, h.MaxSyncBatchSizeHint)
	}

	return nil
}
