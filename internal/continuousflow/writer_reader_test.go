package continuousflow_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxllabs/mxl/internal/continuousflow"
	"github.com/mxllabs/mxl/internal/mxlerr"
)

func writeSamples(t *testing.T, w *continuousflow.Writer, data *continuousflow.Data, index uint64, count int, fill byte) continuousflow.Window {
	t.Helper()
	win, err := w.OpenSamples(index, count)
	require.NoError(t, err)

	first, second := data.ChannelSlices(0, win)
	for i := range first {
		first[i] = fill
	}
	for i := range second {
		second[i] = fill
	}

	require.NoError(t, w.CommitSamples())
	return win
}

func TestWriterOpenSamplesRejectsOversizedCount(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	data, err := continuousflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer data.Close()

	w := continuousflow.NewWriter(data)
	_, err = w.OpenSamples(0, 9) // bufferLength=16, 9 > 16/2
	require.Error(t, err)
	assert.Equal(t, mxlerr.InvalidArgument, mxlerr.KindOf(err))
}

func TestWriterCommitAdvancesHeadIndex(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	data, err := continuousflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer data.Close()

	w := continuousflow.NewWriter(data)
	writeSamples(t, w, data, 3, 4, 0xAB)

	h := data.FlowInfo()
	assert.Equal(t, uint64(3), h.HeadIndex)
	assert.Equal(t, uint32(1), h.SyncCounter)
}

func TestReaderGetSamplesRoundTrip(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	data, err := continuousflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer data.Close()

	w := continuousflow.NewWriter(data)
	writeSamples(t, w, data, 7, 4, 0xCD)

	r := continuousflow.NewReader(data)
	win, err := r.GetSamples(7, 4, 10*time.Millisecond)
	require.NoError(t, err)

	first, second := data.ChannelSlices(0, win)
	for _, b := range first {
		assert.Equal(t, byte(0xCD), b)
	}
	assert.Empty(t, second)
}

func TestReaderGetSamplesOutOfRangeTooEarly(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	data, err := continuousflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer data.Close()

	r := continuousflow.NewReader(data)
	_, err = r.GetSamplesNonBlocking(0, 4)
	require.Error(t, err)
	assert.Equal(t, mxlerr.OutOfRangeTooEarly, mxlerr.KindOf(err))
}

func TestReaderGetSamplesOutOfRangeTooLate(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	data, err := continuousflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer data.Close()

	w := continuousflow.NewWriter(data)
	// bufferLength=16, half=8; pushing headIndex well past makes old
	// indices fall outside [headIndex-half, headIndex].
	writeSamples(t, w, data, 30, 2, 0x01)

	r := continuousflow.NewReader(data)
	_, err = r.GetSamples(5, 2, 10*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, mxlerr.OutOfRangeTooLate, mxlerr.KindOf(err))
}

func TestReaderWakeAfterCommit(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	data, err := continuousflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer data.Close()

	w := continuousflow.NewWriter(data)
	r := continuousflow.NewReader(data)

	var wg sync.WaitGroup
	wg.Add(1)
	var gotErr error
	go func() {
		defer wg.Done()
		_, gotErr = r.GetSamples(1, 2, time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	writeSamples(t, w, data, 1, 2, 0x42)

	wg.Wait()
	assert.NoError(t, gotErr)
}
