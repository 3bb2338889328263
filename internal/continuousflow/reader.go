package continuousflow

import (
	"time"

	"github.com/mxllabs/mxl/internal/mxlerr"
	"github.com/mxllabs/mxl/internal/pathutil"
	"github.com/mxllabs/mxl/internal/shm"
	"github.com/mxllabs/mxl/internal/wait"
)

// Reader implements the continuous getSamples policy of spec §4.11:
// similar time-based wait on syncCounter as the discrete reader, with a
// sliding valid window instead of a ring of discrete slots.
type Reader struct {
	data *Data
}

// NewReader wraps data with the reader-side sample-window lookup policy.
func NewReader(data *Data) *Reader {
	return &Reader{data: data}
}

// Data returns the underlying carrier, for callers that need to resolve
// a returned Window against channel byte buffers (Data.ChannelSlices).
func (r *Reader) Data() *Data { return r.data }

// GetSamples returns the window of count samples ending at index
// (inclusive), blocking until it becomes available or timeout elapses.
func (r *Reader) GetSamples(index uint64, count int, timeout time.Duration) (Window, error) {
	return r.getSamples(index, count, timeout, true)
}

// GetSamplesNonBlocking is the non-blocking variant.
func (r *Reader) GetSamplesNonBlocking(index uint64, count int) (Window, error) {
	return r.getSamples(index, count, 0, false)
}

func (r *Reader) getSamples(index uint64, count int, timeout time.Duration, blocking bool) (Window, error) {
	const op = "continuousflow.Reader.GetSamples"

	var deadline time.Time
	if blocking && timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		h := r.data.FlowInfo()
		headIndex := h.HeadIndex
		syncSnapshot := h.SyncCounter

		if headIndex != undefinedIndex && index <= headIndex {
			half := h.BufferLength / 2
			minIndex := uint64(0)
			if headIndex >= half {
				minIndex = headIndex - half
			}
			if index < minIndex {
				return Window{}, r.tooLateOrInvalid(op, h.Inode)
			}
			if index-minIndex+1 < uint64(count) {
				return Window{}, r.tooLateOrInvalid(op, h.Inode)
			}
			// The reader's header mapping may be read-only (spec §4.3);
			// advertise readership by touching "access" instead of
			// writing lastReadTime into the shared header directly.
			shm.Touch(pathutil.Access(r.data.domain, r.data.id))
			return resolveWindow(index, count, int(h.BufferLength)), nil
		}

		if !blocking {
			return Window{}, mxlerr.New(mxlerr.OutOfRangeTooEarly, op, nil)
		}

		addr := wait.NewAddr32(&h.SyncCounter)
		if !wait.WaitUntilChanged(addr, syncSnapshot, deadline) {
			return Window{}, mxlerr.New(mxlerr.TimedOut, op, nil)
		}
	}
}

func (r *Reader) tooLateOrInvalid(op string, inode uint64) error {
	current, err := currentDataInode(r.data)
	if err == nil && current == inode {
		return mxlerr.New(mxlerr.OutOfRangeTooLate, op, nil)
	}
	return mxlerr.New(mxlerr.FlowInvalid, op, err)
}
