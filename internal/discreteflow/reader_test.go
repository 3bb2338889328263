package discreteflow_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mxllabs/mxl/internal/mxlerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxllabs/mxl/internal/discreteflow"
)

func commitGrain(t *testing.T, w *discreteflow.Writer, index uint64) {
	t.Helper()
	info, payload, err := w.OpenGrain(index)
	require.NoError(t, err)
	payload[0] = byte(index)
	info.ValidSlices = info.TotalSlices
	require.NoError(t, w.Commit(info))
}

func TestReaderGetGrainAvailable(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	data, err := discreteflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer data.Close()

	w := discreteflow.NewWriter(data)
	commitGrain(t, w, 0)

	r := discreteflow.NewReader(data)
	info, payload, err := r.GetGrain(0, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.Index)
	assert.Equal(t, byte(0), payload[0])
}

func TestReaderGetGrainOutOfRangeTooLate(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	data, err := discreteflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer data.Close()

	w := discreteflow.NewWriter(data)
	for i := uint64(0); i <= 5; i++ { // grainCount == 3, so index 0 is long overwritten
		commitGrain(t, w, i)
	}

	r := discreteflow.NewReader(data)
	_, _, err = r.GetGrain(0, 10*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, mxlerr.OutOfRangeTooLate, mxlerr.KindOf(err))

	_, _, err = r.GetGrain(3, 10*time.Millisecond)
	assert.NoError(t, err, "index == headIndex - grainCount + 1 is the oldest in-range slot")
}

func TestReaderGetGrainNonBlockingTooEarly(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	data, err := discreteflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer data.Close()

	r := discreteflow.NewReader(data)
	_, _, err = r.GetGrainNonBlocking(0)
	require.Error(t, err)
	assert.Equal(t, mxlerr.OutOfRangeTooEarly, mxlerr.KindOf(err))
}

func TestReaderWakeAfterCommit(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	data, err := discreteflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer data.Close()

	w := discreteflow.NewWriter(data)
	r := discreteflow.NewReader(data)

	var wg sync.WaitGroup
	wg.Add(1)
	var gotInfo uint64
	var gotErr error
	go func() {
		defer wg.Done()
		info, _, err := r.GetGrain(0, time.Second)
		gotInfo, gotErr = info.Index, err
	}()

	time.Sleep(20 * time.Millisecond) // give the reader time to park
	commitGrain(t, w, 0)

	wg.Wait()
	require.NoError(t, gotErr)
	assert.Equal(t, uint64(0), gotInfo)
}

func TestReaderGetGrainSliceWaitsForPartial(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	geo := testGeometry()
	geo.TotalSlices = 4
	data, err := discreteflow.Create(domain, id, geo)
	require.NoError(t, err)
	defer data.Close()

	w := discreteflow.NewWriter(data)
	r := discreteflow.NewReader(data)

	info, _, err := w.OpenGrain(0)
	require.NoError(t, err)
	info.ValidSlices = 2
	require.NoError(t, w.Commit(info))

	var wg sync.WaitGroup
	wg.Add(1)
	var sliceErr error
	go func() {
		defer wg.Done()
		_, _, sliceErr = r.GetGrainSlice(0, 4, time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	info2, _, err := w.OpenGrain(0)
	require.NoError(t, err)
	info2.ValidSlices = 4
	require.NoError(t, w.Commit(info2))

	wg.Wait()
	assert.NoError(t, sliceErr)
}
