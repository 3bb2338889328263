package flowdesc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxllabs/mxl/internal/flowdesc"
)

const videoDescriptor = `{
	"id": "5fbec3b1-1b0f-4e38-9e3a-000000000001",
	"label": "camera-1",
	"format": "urn:x-nmos:format:video",
	"grain_rate": {"numerator": 25, "denominator": 1},
	"frame_width": 1920,
	"frame_height": 1080,
	"interlace_mode": "progressive",
	"media_type": "video/v210",
	"tags": {"urn:x-nmos:tag:grouphint/v1.0": ["camera:video"]}
}`

const audioDescriptor = `{
	"id": "5fbec3b1-1b0f-4e38-9e3a-000000000002",
	"label": "mic-1",
	"format": "urn:x-nmos:format:audio",
	"sample_rate": {"numerator": 48000, "denominator": 1},
	"bit_depth": 32,
	"channel_count": 2,
	"tags": {"urn:x-nmos:tag:grouphint/v1.0": ["camera:audio"]}
}`

func TestParseVideoDescriptor(t *testing.T) {
	d, err := flowdesc.Parse([]byte(videoDescriptor))
	require.NoError(t, err)
	assert.Equal(t, "camera-1", d.Label)
	assert.Equal(t, flowdesc.FormatVideo, d.Format)
	assert.Equal(t, int64(25), d.Rate.Num)
	assert.False(t, d.Interlaced)
	assert.Equal(t, 1920/48*128*1080, d.PayloadSize)
	assert.Equal(t, uint32(1920/48*128), d.SliceSizes[0])
	assert.Equal(t, 1080, d.TotalSlices())
}

func TestParseAudioDescriptor(t *testing.T) {
	d, err := flowdesc.Parse([]byte(audioDescriptor))
	require.NoError(t, err)
	assert.Equal(t, flowdesc.FormatAudio, d.Format)
	assert.Equal(t, int64(48000), d.Rate.Num)
	assert.Equal(t, 4, d.SampleWordSize)
	assert.Equal(t, 2, d.ChannelCount)
}

func TestParseRejectsMissingGroupHint(t *testing.T) {
	const raw = `{
		"id": "5fbec3b1-1b0f-4e38-9e3a-000000000003",
		"label": "x",
		"format": "urn:x-nmos:format:video",
		"grain_rate": {"numerator": 25, "denominator": 1},
		"frame_width": 1920,
		"frame_height": 1080,
		"media_type": "video/v210"
	}`
	_, err := flowdesc.Parse([]byte(raw))
	require.Error(t, err)
}

func TestParseRejectsUnsupportedFormat(t *testing.T) {
	const raw = `{
		"id": "5fbec3b1-1b0f-4e38-9e3a-000000000004",
		"label": "x",
		"format": "urn:x-nmos:format:mux",
		"tags": {"urn:x-nmos:tag:grouphint/v1.0": ["x:y"]}
	}`
	_, err := flowdesc.Parse([]byte(raw))
	require.Error(t, err)
}

func TestParseInterlacedRequiresStandardRate(t *testing.T) {
	const raw = `{
		"id": "5fbec3b1-1b0f-4e38-9e3a-000000000005",
		"label": "x",
		"format": "urn:x-nmos:format:video",
		"grain_rate": {"numerator": 60, "denominator": 1},
		"frame_width": 1920,
		"frame_height": 1080,
		"interlace_mode": "interlaced_tff",
		"media_type": "video/v210",
		"tags": {"urn:x-nmos:tag:grouphint/v1.0": ["camera:video"]}
	}`
	_, err := flowdesc.Parse([]byte(raw))
	require.Error(t, err)
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := flowdesc.Parse([]byte("not json"))
	require.Error(t, err)
}
