package continuousflow_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxllabs/mxl/internal/continuousflow"
	"github.com/mxllabs/mxl/internal/flowdesc"
	"github.com/mxllabs/mxl/internal/rational"
)

func testGeometry() continuousflow.Geometry {
	return continuousflow.Geometry{
		ChannelCount:           2,
		SampleWordSize:         4,
		BufferLength:           16,
		MaxCommitBatchSizeHint: 1,
		MaxSyncBatchSizeHint:   1,
		Rate:                   rational.Rate{Num: 48000, Den: 1},
		Format:                 flowdesc.FormatAudio,
	}
}

func TestCreateThenOpenRoundTrip(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()

	created, err := continuousflow.Create(domain, id, testGeometry())
	require.NoError(t, err)
	defer created.Close()

	info := created.FlowInfo()
	assert.Equal(t, uint32(2), info.ChannelCount)
	assert.Equal(t, uint64(16), info.BufferLength)
	assert.NotZero(t, info.Inode)

	opened, err := continuousflow.Open(domain, id, true)
	require.NoError(t, err)
	defer opened.Close()

	assert.Equal(t, info.Inode, opened.FlowInfo().Inode)
	assert.Equal(t, info.ChannelStride, opened.FlowInfo().ChannelStride)
}
