package mxl_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxllabs/mxl/internal/flow"

	"github.com/mxllabs/mxl"
)

const videoDescriptor = `{
	"id": "5fbec3b1-1b0f-4e38-9e3a-000000000020",
	"label": "camera-1",
	"format": "urn:x-nmos:format:video",
	"grain_rate": {"numerator": 25, "denominator": 1},
	"frame_width": 64,
	"frame_height": 2,
	"interlace_mode": "progressive",
	"media_type": "video/v210",
	"tags": {"urn:x-nmos:tag:grouphint/v1.0": ["camera:video"]}
}`

const audioDescriptor = `{
	"id": "5fbec3b1-1b0f-4e38-9e3a-000000000021",
	"label": "mic-1",
	"format": "urn:x-nmos:format:audio",
	"sample_rate": {"numerator": 48000, "denominator": 1},
	"bit_depth": 32,
	"channel_count": 2,
	"tags": {"urn:x-nmos:tag:grouphint/v1.0": ["camera:audio"]}
}`

func TestDiscreteWriterReaderRoundTrip(t *testing.T) {
	in, err := mxl.NewInstance(t.TempDir())
	require.NoError(t, err)
	defer in.Close()

	w, created, err := in.CreateFlowWriter([]byte(videoDescriptor), mxl.WriterOptions{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, mxl.KindDiscrete, w.Kind())
	defer w.Release()

	g, err := w.OpenGrain(0)
	require.NoError(t, err)
	g.Payload[0] = 7
	g.ValidSlices = g.TotalSlices
	require.NoError(t, w.CommitGrain(g))

	id, err := uuid.Parse("5fbec3b1-1b0f-4e38-9e3a-000000000020")
	require.NoError(t, err)
	assert.True(t, in.IsFlowActive(id))

	r, err := in.CreateFlowReader(id)
	require.NoError(t, err)
	defer r.Release()

	got, err := r.GetGrain(0, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Index)
	assert.Equal(t, byte(7), got.Payload[0])

	info, err := in.GetFlowRuntimeInfo(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), info.HeadIndex)
}

func TestDiscreteWriterCommitsInvalidFlag(t *testing.T) {
	in, err := mxl.NewInstance(t.TempDir())
	require.NoError(t, err)
	defer in.Close()

	w, _, err := in.CreateFlowWriter([]byte(videoDescriptor), mxl.WriterOptions{})
	require.NoError(t, err)
	defer w.Release()

	g, err := w.OpenGrain(0)
	require.NoError(t, err)
	g.Flags = flow.GrainFlagInvalid
	g.ValidSlices = g.TotalSlices
	require.NoError(t, w.CommitGrain(g))

	id := uuid.UUID(w.ID())
	r, err := in.CreateFlowReader(id)
	require.NoError(t, err)
	defer r.Release()

	got, err := r.GetGrain(0, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, flow.GrainFlagInvalid, got.Flags)
}

func TestContinuousWriterReaderRoundTrip(t *testing.T) {
	in, err := mxl.NewInstance(t.TempDir())
	require.NoError(t, err)
	defer in.Close()

	w, created, err := in.CreateFlowWriter([]byte(audioDescriptor), mxl.WriterOptions{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, mxl.KindContinuous, w.Kind())
	defer w.Release()

	win, err := w.OpenSamples(3, 4)
	require.NoError(t, err)
	first, second := win.Channel(0)
	assert.NotEmpty(t, first)
	assert.Empty(t, second)
	for i := range first {
		first[i] = 0xAB
	}
	require.NoError(t, w.CommitSamples())

	id := w.ID()
	r, err := in.CreateFlowReader(uuid.UUID(id))
	require.NoError(t, err)
	defer r.Release()

	gotWin, err := r.GetSamples(3, 4, 10*time.Millisecond)
	require.NoError(t, err)
	gotFirst, _ := gotWin.Channel(0)
	assert.Equal(t, byte(0xAB), gotFirst[0])
}

func TestCreateFlowWriterRejectsInvalidBatchHints(t *testing.T) {
	in, err := mxl.NewInstance(t.TempDir())
	require.NoError(t, err)
	defer in.Close()

	_, _, err = in.CreateFlowWriter([]byte(videoDescriptor), mxl.WriterOptions{
		MaxCommitBatchSizeHint: 3,
		MaxSyncBatchSizeHint:   2,
	})
	require.Error(t, err)
	var mxlErr *mxl.Error
	require.ErrorAs(t, err, &mxlErr)
	assert.Equal(t, mxl.InvalidArgument, mxl.KindOf(err))
}

func TestGetFlowDefUnknownFlow(t *testing.T) {
	in, err := mxl.NewInstance(t.TempDir())
	require.NoError(t, err)
	defer in.Close()

	_, err = in.GetFlowDef(uuid.New())
	require.Error(t, err)
	assert.Equal(t, mxl.FlowNotFound, mxl.KindOf(err))
}

func TestReleaseFlowWriterRemovesFlow(t *testing.T) {
	in, err := mxl.NewInstance(t.TempDir())
	require.NoError(t, err)
	defer in.Close()

	w, _, err := in.CreateFlowWriter([]byte(audioDescriptor), mxl.WriterOptions{})
	require.NoError(t, err)
	id := uuid.UUID(w.ID())
	require.NoError(t, w.Release())

	ids, err := in.ListFlows()
	require.NoError(t, err)
	assert.NotContains(t, ids, id)
}

func TestKindIsFlowKindAlias(t *testing.T) {
	assert.Equal(t, flow.KindDiscrete, flow.Kind(mxl.KindDiscrete))
	assert.Equal(t, flow.KindContinuous, flow.Kind(mxl.KindContinuous))
}
