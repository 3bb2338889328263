// Package syncbatch implements the sync-batch throttle shared by the
// discrete and continuous flow writers (spec §4.9): it decides whether a
// given commit should wake blocked readers, so that readers aren't woken
// on every fine-grained partial commit.
package syncbatch

// Throttle tracks the last batch a writer signalled on. Use New to
// construct one; the zero value is not ready to use.
type Throttle struct {
	lastSignalled int64
}

// New returns a Throttle that will wake on its first commit.
func New() *Throttle {
	return &Throttle{lastSignalled: -1}
}

// ShouldWake reports whether a commit landing at currentIndex should wake
// readers, given maxSyncBatchSizeHint (S) and maxCommitBatchSizeHint (C).
// Callers must have S >= C and S % C == 0 (spec invariant); behavior is
// undefined otherwise. On true, the caller must also call Advance.
func (t *Throttle) ShouldWake(currentIndex int64, maxSyncBatchSizeHint, maxCommitBatchSizeHint uint32) bool {
	if maxSyncBatchSizeHint == 0 {
		return true
	}
	s := int64(maxSyncBatchSizeHint)
	c := int64(maxCommitBatchSizeHint)
	currentBatch := currentIndex / s

	if currentBatch > t.lastSignalled {
		return true
	}
	if currentBatch == t.lastSignalled && (currentIndex%s) > (s-c) {
		return true
	}
	return false
}

// Advance records that a wake was just published for a commit at
// currentIndex; call only after ShouldWake returned true.
func (t *Throttle) Advance(currentIndex int64, maxSyncBatchSizeHint uint32) {
	if maxSyncBatchSizeHint == 0 {
		return
	}
	t.lastSignalled = currentIndex / int64(maxSyncBatchSizeHint)
}
