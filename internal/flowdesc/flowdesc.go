// Package flowdesc validates an NMOS IS-04 flow descriptor (opaque JSON to
// every other MXL component) and distills it into the small set of fields
// the rest of the system needs: format, rate, payload sizing, and slice
// layout (spec §4.4). Any validation failure is reported as
// *InvalidArgumentError, which surfaces as the mxl.InvalidArgument kind at
// the API boundary.
package flowdesc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mxllabs/mxl/internal/rational"
)

// Format is the flow's media type, as distilled from the NMOS "format" URN.
type Format int

const (
	FormatUnspecified Format = iota
	FormatVideo
	FormatAudio
	FormatData
)

func (f Format) String() string {
	switch f {
	case FormatVideo:
		return "video"
	case FormatAudio:
		return "audio"
	case FormatData:
		return "data"
	default:
		return "unspecified"
	}
}

const maxPlanes = 4

// Descriptor is the validated, distilled result of parsing a flow
// descriptor: everything downstream components need to size and lay out
// a flow's shared memory.
type Descriptor struct {
	ID             uuid.UUID
	Label          string
	Format         Format
	Rate           rational.Rate // grain rate (video/data) or sample rate (audio)
	Interlaced     bool
	PayloadSize    int
	SliceSizes     [maxPlanes]uint32
	videoLines     int // effective (post-interlace-halving) line count; video only
	ChannelCount   int
	SampleWordSize int
	BitDepth       int
}

// InvalidArgumentError wraps any descriptor validation failure.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &InvalidArgumentError{Msg: fmt.Sprintf(format, args...)}
}

const (
	formatPrefix  = "urn:x-nmos:format:"
	groupHintTag  = "urn:x-nmos:tag:grouphint/v1.0"
	maxWidth      = 7680
	maxHeight     = 4320
	dataGrainSize = 4096
)

// Parse validates raw NMOS flow-descriptor JSON and returns the distilled
// Descriptor. Any failure is an *InvalidArgumentError.
func Parse(raw []byte) (*Descriptor, error) {
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, invalid("invalid JSON flow definition: %v", err)
	}

	idStr, err := fetchString(root, "id")
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, invalid("invalid flow 'id': %v", err)
	}

	label, err := fetchString(root, "label")
	if err != nil {
		return nil, err
	}
	if label == "" {
		return nil, invalid("empty flow label")
	}

	formatStr, err := fetchString(root, "format")
	if err != nil {
		return nil, err
	}
	format := translateFormat(formatStr)

	if err := validateGroupHint(root); err != nil {
		return nil, err
	}

	d := &Descriptor{ID: id, Label: label, Format: format}

	switch format {
	case FormatVideo:
		if err := parseVideo(root, d); err != nil {
			return nil, err
		}
	case FormatData:
		if err := parseData(root, d); err != nil {
			return nil, err
		}
	case FormatAudio:
		if err := parseAudio(root, d); err != nil {
			return nil, err
		}
	default:
		return nil, invalid("unsupported or unspecified flow format %q", formatStr)
	}

	return d, nil
}

func translateFormat(s string) Format {
	tail, ok := strings.CutPrefix(s, formatPrefix)
	if !ok {
		return FormatUnspecified
	}
	switch tail {
	case "video":
		return FormatVideo
	case "audio":
		return FormatAudio
	case "data":
		return FormatData
	case "mux":
		// mux maps to FormatUnspecified, which Parse rejects: mux
		// descriptors are not accepted.
		return FormatUnspecified
	default:
		return FormatUnspecified
	}
}

func validateGroupHint(root map[string]any) error {
	tagsAny, ok := root["tags"]
	if !ok {
		return invalid("missing 'tags'")
	}
	tags, ok := tagsAny.(map[string]any)
	if !ok {
		return invalid("'tags' is not an object")
	}
	hintsAny, ok := tags[groupHintTag]
	if !ok {
		return invalid("missing group hint tag %q", groupHintTag)
	}
	hints, ok := hintsAny.([]any)
	if !ok || len(hints) == 0 {
		return invalid("group hint tag found but empty")
	}
	for _, h := range hints {
		s, ok := h.(string)
		if !ok {
			return invalid("invalid group hint value: not a string")
		}
		parts := strings.Split(s, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return invalid("invalid group hint value %q: expected '<group>:<role>[:<scope>]'", s)
		}
		if parts[0] == "" || parts[1] == "" {
			return invalid("invalid group hint value %q: group name and role must not be empty", s)
		}
		if len(parts) == 3 && parts[2] != "device" && parts[2] != "node" {
			return invalid("invalid group hint value %q: scope must be 'device' or 'node'", s)
		}
	}
	return nil
}

func fetchString(m map[string]any, field string) (string, error) {
	v, ok := m[field]
	if !ok {
		return "", invalid("required %q not found", field)
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid("%q is not a string", field)
	}
	return s, nil
}

func fetchNumber(m map[string]any, field string) (float64, error) {
	v, ok := m[field]
	if !ok {
		return 0, invalid("required %q not found", field)
	}
	n, ok := v.(float64)
	if !ok {
		return 0, invalid("%q is not a number", field)
	}
	return n, nil
}

func fetchObject(m map[string]any, field string) (map[string]any, error) {
	v, ok := m[field]
	if !ok {
		return nil, invalid("required %q not found", field)
	}
	o, ok := v.(map[string]any)
	if !ok {
		return nil, invalid("%q is not an object", field)
	}
	return o, nil
}

func extractRational(obj map[string]any) (rational.Rate, error) {
	num, err := fetchNumber(obj, "numerator")
	if err != nil {
		return rational.Rate{}, err
	}
	den := float64(1)
	if v, ok := obj["denominator"]; ok {
		d, ok := v.(float64)
		if !ok {
			return rational.Rate{}, invalid("'denominator' is not a number")
		}
		den = d
	}
	r := rational.Rate{Num: int64(num), Den: int64(den)}
	if !r.Valid() {
		return rational.Rate{}, invalid("rate denominator must not be zero")
	}
	return r.Reduce(), nil
}

func parseVideo(root map[string]any, d *Descriptor) error {
	rateField := "grain_rate"
	rateObj, err := fetchObject(root, rateField)
	if err != nil {
		return err
	}
	rate, err := extractRational(rateObj)
	if err != nil {
		return err
	}

	width, err := fetchNumber(root, "frame_width")
	if err != nil {
		return err
	}
	height, err := fetchNumber(root, "frame_height")
	if err != nil {
		return err
	}
	if width < 2 || width > maxWidth || height < 1 || height > maxHeight {
		return invalid("invalid video dimensions: %gx%g, range is 2x1 to %dx%d", width, height, maxWidth, maxHeight)
	}

	interlaceMode := "progressive"
	if v, ok := root["interlace_mode"]; ok {
		s, ok := v.(string)
		if !ok {
			return invalid("'interlace_mode' is not a string")
		}
		interlaceMode = s
	}
	switch interlaceMode {
	case "progressive", "interlaced_tff", "interlaced_bff":
	default:
		return invalid("invalid interlace_mode: %s", interlaceMode)
	}

	interlaced := interlaceMode == "interlaced_tff" || interlaceMode == "interlaced_bff"
	if interlaced {
		r3001 := rational.Rate{Num: 30000, Den: 1001}
		r25 := rational.Rate{Num: 25, Den: 1}
		if !rate.Equal(r3001) && !rate.Equal(r25) {
			return invalid("invalid grain_rate for interlaced video, expected 30000/1001 or 25/1")
		}
		rate.Num *= 2
	}

	mediaType, err := fetchString(root, "media_type")
	if err != nil {
		return err
	}

	h := int(height)
	if interlaced {
		if int(height)%2 != 0 {
			return invalid("invalid video height for interlaced %s: must be even", mediaType)
		}
		h = int(height) / 2
	}
	w := int(width)

	switch mediaType {
	case "video/v210":
		stride := v210LineStride(w)
		d.PayloadSize = stride * h
		d.SliceSizes[0] = uint32(stride)
	case "video/v210+alpha":
		fillStride := v210LineStride(w)
		alphaStride := alpha10BitLineStride(w)
		d.PayloadSize = (fillStride + alphaStride) * h
		d.SliceSizes[0] = uint32(fillStride)
		d.SliceSizes[1] = uint32(alphaStride)
	default:
		return invalid("unsupported video media_type: %s", mediaType)
	}

	d.Rate = rate
	d.Interlaced = interlaced
	d.videoLines = h
	return nil
}

func parseData(root map[string]any, d *Descriptor) error {
	rateObj, err := fetchObject(root, "grain_rate")
	if err != nil {
		return err
	}
	rate, err := extractRational(rateObj)
	if err != nil {
		return err
	}
	mediaType, err := fetchString(root, "media_type")
	if err != nil {
		return err
	}
	if mediaType != "video/smpte291" {
		return invalid("unsupported data media_type: %s", mediaType)
	}
	d.Rate = rate
	d.PayloadSize = dataGrainSize
	d.SliceSizes[0] = 1
	return nil
}

func parseAudio(root map[string]any, d *Descriptor) error {
	rateObj, err := fetchObject(root, "sample_rate")
	if err != nil {
		return err
	}
	rate, err := extractRational(rateObj)
	if err != nil {
		return err
	}
	bitDepth, err := fetchNumber(root, "bit_depth")
	if err != nil {
		return err
	}
	if bitDepth != 32 && bitDepth != 64 {
		return invalid("unsupported bit depth: %g", bitDepth)
	}
	channelCount := 1
	if v, ok := root["channel_count"]; ok {
		n, ok := v.(float64)
		if !ok {
			return invalid("'channel_count' is not a number")
		}
		channelCount = int(n)
	}
	d.Rate = rate
	d.BitDepth = int(bitDepth)
	d.SampleWordSize = int(bitDepth) / 8
	d.ChannelCount = channelCount
	return nil
}

// v210LineStride returns ⌈width/48⌉·128, the v210 line stride in bytes.
func v210LineStride(width int) int {
	return ceilDiv(width, 48) * 128
}

// alpha10BitLineStride returns ⌈width/3⌉·4, the v210+alpha key-plane line
// stride in bytes (10-bit alpha samples, 3 per 32-bit word).
func alpha10BitLineStride(width int) int {
	return ceilDiv(width, 3) * 4
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// TotalSlices returns the slice count implied by d's media type: one
// slice per video line (the granularity a line-by-line v210 producer
// commits at, spec §8.4 scenario 4), the fixed 4,096 for smpte291 data
// (spec §4.4: "slice size 1; total slices 4,096"), or 1 for anything
// with a single contiguous payload (audio has no slice concept).
func (d *Descriptor) TotalSlices() int {
	switch d.Format {
	case FormatData:
		return dataGrainSize
	case FormatVideo:
		return d.videoLines
	default:
		return 1
	}
}
