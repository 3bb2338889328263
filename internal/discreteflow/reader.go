package discreteflow

import (
	"time"

	"github.com/mxllabs/mxl/internal/flow"
	"github.com/mxllabs/mxl/internal/mxlerr"
	"github.com/mxllabs/mxl/internal/pathutil"
	"github.com/mxllabs/mxl/internal/shm"
	"github.com/mxllabs/mxl/internal/wait"
)

// Reader implements the discrete getGrain/getGrainSlice policy of spec
// §4.10 against a read-mapped Data.
type Reader struct {
	data *Data
}

// NewReader wraps data with the reader-side grain lookup policy.
func NewReader(data *Data) *Reader {
	return &Reader{data: data}
}

// GetGrain implements the blocking lookup policy of spec §4.10: if index
// is already available it's returned immediately; otherwise the reader
// parks on syncCounter until it changes or timeout elapses.
func (r *Reader) GetGrain(index uint64, timeout time.Duration) (flow.GrainInfo, []byte, error) {
	return r.getGrain(index, 1, timeout, true)
}

// GetGrainNonBlocking is the non-blocking variant: an index beyond
// headIndex returns OutOfRangeTooEarly instead of waiting.
func (r *Reader) GetGrainNonBlocking(index uint64) (flow.GrainInfo, []byte, error) {
	return r.getGrain(index, 1, 0, false)
}

// GetGrainSlice behaves like GetGrain but is satisfied as soon as the
// slot's ValidSlices reaches expectedValidSlices, letting readers
// pipeline on line-by-line producers (spec §4.10).
func (r *Reader) GetGrainSlice(index uint64, expectedValidSlices uint32, timeout time.Duration) (flow.GrainInfo, []byte, error) {
	return r.getGrain(index, expectedValidSlices, timeout, true)
}

func (r *Reader) getGrain(index uint64, expectedValidSlices uint32, timeout time.Duration, blocking bool) (flow.GrainInfo, []byte, error) {
	const op = "discreteflow.Reader.GetGrain"

	var deadline time.Time
	if blocking && timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		h := r.data.FlowInfo()
		headIndex := h.HeadIndex
		syncSnapshot := h.SyncCounter

		if headIndex != undefinedIndex && index <= headIndex {
			grainCount := h.GrainCount
			minIndex := uint64(0)
			if headIndex+1 > grainCount {
				minIndex = headIndex - grainCount + 1
			}
			if index < minIndex {
				return flow.GrainInfo{}, nil, r.tooLateOrInvalid(op, h)
			}
			if info, payload, ready := r.slotIfReady(index, expectedValidSlices, h); ready {
				return info, payload, nil
			}
			// In range but the slot hasn't reached expectedValidSlices yet
			// (a partial grain mid-commit): fall through to the same
			// wait-on-syncCounter path as index > headIndex.
		} else if !blocking {
			return flow.GrainInfo{}, nil, mxlerr.New(mxlerr.OutOfRangeTooEarly, op, nil)
		}

		if !blocking {
			return flow.GrainInfo{}, nil, mxlerr.New(mxlerr.NotReady, op, nil)
		}

		addr := wait.NewAddr32(&h.SyncCounter)
		if !wait.WaitUntilChanged(addr, syncSnapshot, deadline) {
			return flow.GrainInfo{}, nil, mxlerr.New(mxlerr.TimedOut, op, nil)
		}
	}
}

// slotIfReady returns the slot at index and ready=true once its
// ValidSlices has reached expectedValidSlices. The reader's header
// mapping may be read-only (spec §4.3: read-only open takes no lock and
// maps PROT_READ), so readership is advertised by touching "access"
// rather than writing lastReadTime into the shared header directly; the
// Domain Watcher observes that touch and stamps lastReadTime on the
// writer's own writable mapping (spec §4.10 step 2, §4.12).
func (r *Reader) slotIfReady(index uint64, expectedValidSlices uint32, h *flow.DiscreteHeader) (flow.GrainInfo, []byte, bool) {
	offset := index % h.GrainCount
	buf := r.data.GrainAt(offset)
	info := flow.CastGrainInfo(buf)
	if info.ValidSlices < expectedValidSlices {
		return flow.GrainInfo{}, nil, false
	}
	shm.Touch(pathutil.Access(r.data.domain, r.data.id))
	payload := flow.GrainPayload(buf, info.GrainSize)
	return *info, payload, true
}

func (r *Reader) tooLateOrInvalid(op string, h *flow.DiscreteHeader) error {
	currentInode, err := currentDataInode(r.data)
	if err == nil && currentInode == h.Inode {
		return mxlerr.New(mxlerr.OutOfRangeTooLate, op, nil)
	}
	return mxlerr.New(mxlerr.FlowInvalid, op, err)
}
