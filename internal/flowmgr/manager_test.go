package flowmgr_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxllabs/mxl/internal/continuousflow"
	"github.com/mxllabs/mxl/internal/discreteflow"
	"github.com/mxllabs/mxl/internal/flowdesc"
	"github.com/mxllabs/mxl/internal/flowmgr"
	"github.com/mxllabs/mxl/internal/mxlerr"
	"github.com/mxllabs/mxl/internal/rational"
)

func discreteGeometry() discreteflow.Geometry {
	return discreteflow.Geometry{
		GrainCount:             3,
		PayloadSize:            64,
		TotalSlices:            1,
		Rate:                   rational.Rate{Num: 25, Den: 1},
		MaxCommitBatchSizeHint: 1,
		MaxSyncBatchSizeHint:   1,
		Format:                 flowdesc.FormatVideo,
	}
}

func continuousGeometry() continuousflow.Geometry {
	return continuousflow.Geometry{
		ChannelCount:           2,
		SampleWordSize:         4,
		BufferLength:           16,
		Rate:                   rational.Rate{Num: 48000, Den: 1},
		MaxCommitBatchSizeHint: 1,
		MaxSyncBatchSizeHint:   1,
		Format:                 flowdesc.FormatAudio,
	}
}

func TestNewRejectsMissingDomain(t *testing.T) {
	_, err := flowmgr.New(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, mxlerr.FlowNotFound, mxlerr.KindOf(err))
}

func TestNewRejectsNonDirectory(t *testing.T) {
	domain := t.TempDir()
	file := filepath.Join(domain, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := flowmgr.New(file)
	require.Error(t, err)
	assert.Equal(t, mxlerr.InvalidArgument, mxlerr.KindOf(err))
}

func TestCreateOrOpenDiscreteCreatesOnce(t *testing.T) {
	domain := t.TempDir()
	m, err := flowmgr.New(domain)
	require.NoError(t, err)

	id := uuid.New()
	data, created, err := m.CreateOrOpenDiscrete(id, []byte(`{"id":"x"}`), discreteGeometry())
	require.NoError(t, err)
	assert.True(t, created)
	defer data.Close()

	assert.Equal(t, uint64(3), data.FlowInfo().GrainCount)

	raw, err := m.GetDescriptor(id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x"}`, string(raw))
}

func TestCreateOrOpenDiscreteSecondCallerBecomesOpener(t *testing.T) {
	domain := t.TempDir()
	m, err := flowmgr.New(domain)
	require.NoError(t, err)

	id := uuid.New()
	first, created, err := m.CreateOrOpenDiscrete(id, []byte(`{"id":"x"}`), discreteGeometry())
	require.NoError(t, err)
	require.True(t, created)
	defer first.Close()

	second, created, err := m.CreateOrOpenDiscrete(id, []byte(`{"id":"x"}`), discreteGeometry())
	require.NoError(t, err)
	assert.False(t, created)
	defer second.Close()

	assert.Equal(t, first.FlowInfo().Inode, second.FlowInfo().Inode)
}

func TestCreateOrOpenContinuousCreatesOnce(t *testing.T) {
	domain := t.TempDir()
	m, err := flowmgr.New(domain)
	require.NoError(t, err)

	id := uuid.New()
	data, created, err := m.CreateOrOpenContinuous(id, []byte(`{"id":"y"}`), continuousGeometry())
	require.NoError(t, err)
	assert.True(t, created)
	defer data.Close()

	assert.Equal(t, uint32(2), data.FlowInfo().ChannelCount)
}

func TestOpenDispatchesDiscreteByKind(t *testing.T) {
	domain := t.TempDir()
	m, err := flowmgr.New(domain)
	require.NoError(t, err)

	id := uuid.New()
	created, _, err := m.CreateOrOpenDiscrete(id, []byte(`{}`), discreteGeometry())
	require.NoError(t, err)
	defer created.Close()

	opened, err := m.Open(id, true)
	require.NoError(t, err)
	defer opened.Close()

	require.NotNil(t, opened.Discrete)
	assert.Nil(t, opened.Continuous)
	assert.Equal(t, created.FlowInfo().Inode, opened.Discrete.FlowInfo().Inode)
}

func TestOpenDispatchesContinuousByKind(t *testing.T) {
	domain := t.TempDir()
	m, err := flowmgr.New(domain)
	require.NoError(t, err)

	id := uuid.New()
	created, _, err := m.CreateOrOpenContinuous(id, []byte(`{}`), continuousGeometry())
	require.NoError(t, err)
	defer created.Close()

	opened, err := m.Open(id, false)
	require.NoError(t, err)
	defer opened.Close()

	require.NotNil(t, opened.Continuous)
	assert.Nil(t, opened.Discrete)
}

func TestOpenMissingFlowReturnsNotFound(t *testing.T) {
	domain := t.TempDir()
	m, err := flowmgr.New(domain)
	require.NoError(t, err)

	_, err = m.Open(uuid.New(), false)
	require.Error(t, err)
	assert.Equal(t, mxlerr.FlowNotFound, mxlerr.KindOf(err))
}

func TestDeleteRemovesFlow(t *testing.T) {
	domain := t.TempDir()
	m, err := flowmgr.New(domain)
	require.NoError(t, err)

	id := uuid.New()
	data, _, err := m.CreateOrOpenDiscrete(id, []byte(`{}`), discreteGeometry())
	require.NoError(t, err)
	require.NoError(t, data.Close())

	assert.True(t, m.Delete(id))
	assert.False(t, m.Delete(id))
}

func TestListReturnsCreatedFlows(t *testing.T) {
	domain := t.TempDir()
	m, err := flowmgr.New(domain)
	require.NoError(t, err)

	id1 := uuid.New()
	id2 := uuid.New()
	d1, _, err := m.CreateOrOpenDiscrete(id1, []byte(`{}`), discreteGeometry())
	require.NoError(t, err)
	defer d1.Close()
	d2, _, err := m.CreateOrOpenContinuous(id2, []byte(`{}`), continuousGeometry())
	require.NoError(t, err)
	defer d2.Close()

	ids, err := m.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{id1, id2}, ids)
}

func TestGetDescriptorNotFound(t *testing.T) {
	domain := t.TempDir()
	m, err := flowmgr.New(domain)
	require.NoError(t, err)

	_, err = m.GetDescriptor(uuid.New())
	require.Error(t, err)
	assert.Equal(t, mxlerr.FlowNotFound, mxlerr.KindOf(err))
}

func TestListIgnoresStagingDirectories(t *testing.T) {
	domain := t.TempDir()
	m, err := flowmgr.New(domain)
	require.NoError(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(domain, ".mxl-tmp-leftover"), 0o755))

	ids, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}
