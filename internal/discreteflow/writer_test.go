package discreteflow_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxllabs/mxl/internal/discreteflow"
	"github.com/mxllabs/mxl/internal/flow"
)

func TestWriterOpenCommitCycle(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	data, err := discreteflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer data.Close()

	w := discreteflow.NewWriter(data)

	info, payload, err := w.OpenGrain(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), info.Index)
	require.Len(t, payload, 64)

	payload[0] = 0xCA
	payload[len(payload)-1] = 0xFE
	info.ValidSlices = info.TotalSlices

	require.NoError(t, w.Commit(info))

	h := data.FlowInfo()
	assert.Equal(t, uint64(7), h.HeadIndex)
	assert.Equal(t, uint32(1), h.SyncCounter)

	// Ring identity (spec §8.1): grain[index mod grainCount].info.index == index.
	gi := flow.CastGrainInfo(data.GrainAt(7 % h.GrainCount))
	assert.Equal(t, uint64(7), gi.Index)
}

func TestWriterCommitRejectsMismatchedIndex(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	data, err := discreteflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer data.Close()

	w := discreteflow.NewWriter(data)
	info, _, err := w.OpenGrain(0)
	require.NoError(t, err)

	info.Index = 1
	err = w.Commit(info)
	assert.Error(t, err)
}

func TestWriterCancelReturnsToIdle(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	data, err := discreteflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer data.Close()

	w := discreteflow.NewWriter(data)
	_, _, err = w.OpenGrain(2)
	require.NoError(t, err)
	w.Cancel()

	// After cancel, opening a different index is allowed (back to Idle).
	_, _, err = w.OpenGrain(5)
	assert.NoError(t, err)
}

func TestWriterPartialCommitStaysOpen(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	geo := testGeometry()
	geo.TotalSlices = 4
	data, err := discreteflow.Create(domain, id, geo)
	require.NoError(t, err)
	defer data.Close()

	w := discreteflow.NewWriter(data)
	info, _, err := w.OpenGrain(0)
	require.NoError(t, err)

	info.ValidSlices = 2
	require.NoError(t, w.Commit(info))

	// A partial commit stays Open(0): committing index 0 again must succeed.
	info2, _, err := w.OpenGrain(0)
	require.NoError(t, err)
	info2.ValidSlices = 4
	assert.NoError(t, w.Commit(info2))
}
