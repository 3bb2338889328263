// Package flow defines the flow header binary layout shared via mmap by
// every participant of a flow (spec §3, §6.2), and the tagged sum that
// lets the rest of the system treat discrete and continuous flows
// uniformly at the boundary (spec §9, "Polymorphism across flow shapes").
package flow

import (
	"fmt"
	"unsafe"
)

// HeaderVersion is the only on-disk version this implementation
// understands. A reader seeing any other value must fail open (spec §9,
// Open Question #1: throw-on-mismatch, not silent-open).
const HeaderVersion uint32 = 1

// DataFormat mirrors flowdesc.Format as it is stored on disk — a plain
// integer, independent of the JSON parser's in-memory representation.
type DataFormat uint32

const (
	DataFormatUnspecified DataFormat = iota
	DataFormatVideo
	DataFormatAudio
	DataFormatData
)

// PayloadLocation distinguishes host-addressable payload from
// device-memory payload (whose grain payload region is zero-length;
// spec §3, Grain).
type PayloadLocation uint32

const (
	PayloadLocationHost PayloadLocation = iota
	PayloadLocationDevice
)

// Kind tags which variant a flow header is.
type Kind uint32

const (
	KindDiscrete Kind = iota
	KindContinuous
)

// Rational64 is the on-disk layout of a rational edit rate.
type Rational64 struct {
	Num int64
	Den int64
}

const maxSlicesPerGrain = 4

// Common holds the fields shared by every flow header, regardless of
// shape (spec §3, "Flow header").
type Common struct {
	Version                uint32
	Size                    uint32
	Kind                    Kind
	Format                  DataFormat
	FlowID                  [16]byte
	Inode                   uint64
	Rate                    Rational64
	MaxCommitBatchSizeHint  uint32
	MaxSyncBatchSizeHint    uint32
	PayloadLocation         PayloadLocation
	DeviceIndex             uint32
	LastWriteTimeNs         int64
	LastReadTimeNs          int64
}

// DiscreteHeader is the full shared-memory header for a discrete
// (grain-based) flow.
type DiscreteHeader struct {
	Common
	GrainCount  uint64
	HeadIndex   uint64
	SyncCounter uint32
	_pad        uint32
	SliceSizes  [maxSlicesPerGrain]uint32
}

// ContinuousHeader is the full shared-memory header for a continuous
// (sample-based) flow.
type ContinuousHeader struct {
	Common
	SampleRate    Rational64
	ChannelCount  uint32
	SampleWordSize uint32
	BufferLength  uint64
	ChannelStride uint64
	HeadIndex     uint64
	SyncCounter   uint32
	_pad          uint32
}

// DiscreteHeaderSize and ContinuousHeaderSize are the exact byte sizes
// written into Common.Size at creation time and checked at open time.
var (
	DiscreteHeaderSize   = uint32(unsafe.Sizeof(DiscreteHeader{}))
	ContinuousHeaderSize = uint32(unsafe.Sizeof(ContinuousHeader{}))
)

// CastDiscrete reinterprets the start of a memory-mapped segment as a
// *DiscreteHeader. buf must be at least DiscreteHeaderSize bytes and must
// outlive the returned pointer (it aliases buf's backing array).
func CastDiscrete(buf []byte) *DiscreteHeader {
	return (*DiscreteHeader)(unsafe.Pointer(&buf[0]))
}

// CastContinuous reinterprets the start of a memory-mapped segment as a
// *ContinuousHeader.
func CastContinuous(buf []byte) *ContinuousHeader {
	return (*ContinuousHeader)(unsafe.Pointer(&buf[0]))
}

// ErrVersionMismatch is returned by ValidateCommon when the on-disk
// version does not match HeaderVersion. The spec's two reference
// implementations disagreed here (one threw, one silently opened); this
// specification fixes throw-on-mismatch (spec §9, Open Question #1).
type ErrVersionMismatch struct {
	Got uint32
}

func (e *ErrVersionMismatch) Error() string {
	return fmt.Sprintf("mxl: flow header version %d != supported version %d", e.Got, HeaderVersion)
}

// ValidateCommon checks the version gate shared by both header variants.
func ValidateCommon(c *Common) error {
	if c.Version != HeaderVersion {
		return &ErrVersionMismatch{Got: c.Version}
	}
	return nil
}

// PeekKind reads the Kind discriminator shared by both header layouts
// without committing to either cast, so a caller holding a bare mapped
// segment can decide which of CastDiscrete/CastContinuous to use (spec
// §4.6 Open: "dispatches on format into the discrete or continuous
// opener").
func PeekKind(buf []byte) (Kind, error) {
	if len(buf) < int(unsafe.Sizeof(Common{})) {
		return 0, fmt.Errorf("flow header too small to contain common fields: %d bytes", len(buf))
	}
	return (*Common)(unsafe.Pointer(&buf[0])).Kind, nil
}
