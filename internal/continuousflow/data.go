// Package continuousflow implements the continuous (sample-based) data
// carrier and its writer/reader state (spec §3, §4.5, §4.8, §4.11).
package continuousflow

import (
	"errors"
	"os"

	"github.com/google/uuid"

	"github.com/mxllabs/mxl/internal/flow"
	"github.com/mxllabs/mxl/internal/flowdesc"
	"github.com/mxllabs/mxl/internal/mxlerr"
	"github.com/mxllabs/mxl/internal/pathutil"
	"github.com/mxllabs/mxl/internal/rational"
	"github.com/mxllabs/mxl/internal/shm"
)

const undefinedIndex = ^uint64(0)

// Geometry is the caller-supplied shape of a continuous flow at creation
// time.
type Geometry struct {
	ChannelCount           int
	SampleWordSize         int
	BufferLength           int
	MaxCommitBatchSizeHint uint32
	MaxSyncBatchSizeHint   uint32
	Rate                   rational.Rate
	Format                 flowdesc.Format
}

// Data is the continuous data carrier: the mapped flow header plus the
// single channel-major sample buffer file (spec §4.5).
type Data struct {
	domain   string
	id       uuid.UUID
	header   *shm.Segment
	channels *shm.Segment
}

// FlowInfo returns the live, mmap'd continuous header.
func (d *Data) FlowInfo() *flow.ContinuousHeader {
	return flow.CastContinuous(d.header.Bytes())
}

// IsExclusive reports whether this mapping currently holds the flow's
// exclusive flock.
func (d *Data) IsExclusive() bool { return d.header.IsExclusive() }

// MakeExclusive attempts the non-blocking shared->exclusive flock
// upgrade used to decide deletion rights.
func (d *Data) MakeExclusive() (bool, error) { return d.header.MakeExclusive() }

// Rebase updates the domain this Data resolves path-based lookups
// against; see discreteflow.Data.Rebase for why the Flow Manager needs
// this after an atomic-publish rename.
func (d *Data) Rebase(domain string) { d.domain = domain }

// channelBytes returns the full bufferLength*sampleWordSize byte slice
// backing one channel. Channels are laid out channel-major: channel c
// starts at c*ChannelStride bytes into the mapped buffer.
func (d *Data) channelBytes(channel uint32) []byte {
	h := d.FlowInfo()
	start := uint64(channel) * h.ChannelStride
	end := start + h.BufferLength*uint64(h.SampleWordSize)
	buf := d.channels.Bytes()
	return buf[start:end]
}

// Create populates a brand-new continuous flow's "data" header and its
// "channels" sample buffer file (spec §4.6 step 4, continuous branch).
func Create(domain string, id uuid.UUID, g Geometry) (*Data, error) {
	const op = "continuousflow.Create"

	headerPath := pathutil.Data(domain, id)
	header, err := shm.CreateExclusive(headerPath, int(flow.ContinuousHeaderSize))
	if err != nil {
		return nil, mxlerr.New(mxlerr.Unknown, op, err)
	}

	h := flow.CastContinuous(header.Bytes())
	h.Version = flow.HeaderVersion
	h.Size = flow.ContinuousHeaderSize
	h.Kind = flow.KindContinuous
	h.Format = translateFormat(g.Format)
	h.FlowID = id
	h.Inode = header.Inode()
	h.Rate = flow.Rational64{Num: g.Rate.Num, Den: g.Rate.Den}
	h.MaxCommitBatchSizeHint = g.MaxCommitBatchSizeHint
	h.MaxSyncBatchSizeHint = g.MaxSyncBatchSizeHint
	h.PayloadLocation = flow.PayloadLocationHost
	h.SampleRate = h.Rate
	h.ChannelCount = uint32(g.ChannelCount)
	h.SampleWordSize = uint32(g.SampleWordSize)
	h.BufferLength = uint64(g.BufferLength)
	h.ChannelStride = uint64(g.BufferLength) * uint64(g.SampleWordSize)
	h.HeadIndex = undefinedIndex
	h.SyncCounter = 0

	channelsPath := pathutil.Channels(domain, id)
	channelsSize := int(h.ChannelStride) * g.ChannelCount
	channels, err := shm.CreatePlain(channelsPath, channelsSize)
	if err != nil {
		header.Close()
		return nil, mxlerr.New(mxlerr.Unknown, op, err)
	}

	if err := header.Downgrade(); err != nil {
		header.Close()
		channels.Close()
		os.Remove(channelsPath)
		return nil, mxlerr.New(mxlerr.Unknown, op, err)
	}

	return &Data{domain: domain, id: id, header: header, channels: channels}, nil
}

// Open maps an existing continuous flow's header and channel buffer.
func Open(domain string, id uuid.UUID, writable bool) (*Data, error) {
	const op = "continuousflow.Open"

	headerPath := pathutil.Data(domain, id)
	var header *shm.Segment
	var err error
	if writable {
		header, err = shm.OpenReadWrite(headerPath)
	} else {
		header, err = shm.OpenReadOnly(headerPath)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, mxlerr.New(mxlerr.FlowNotFound, op, err)
		}
		return nil, mxlerr.New(mxlerr.Unknown, op, err)
	}

	h := flow.CastContinuous(header.Bytes())
	if err := flow.ValidateCommon(&h.Common); err != nil {
		header.Close()
		return nil, mxlerr.New(mxlerr.FlowInvalid, op, err)
	}

	channelsPath := pathutil.Channels(domain, id)
	var channels *shm.Segment
	if writable {
		channels, err = shm.OpenPlain(channelsPath)
	} else {
		channels, err = shm.OpenPlainReadOnly(channelsPath)
	}
	if err != nil {
		header.Close()
		return nil, mxlerr.New(mxlerr.Unknown, op, err)
	}

	return &Data{domain: domain, id: id, header: header, channels: channels}, nil
}

// Close unmaps the header and channel buffer segments.
func (d *Data) Close() error {
	var firstErr error
	if err := d.channels.Close(); err != nil {
		firstErr = err
	}
	if err := d.header.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func currentDataInode(d *Data) (uint64, error) {
	return shm.CurrentInode(pathutil.Data(d.domain, d.id))
}

func translateFormat(f flowdesc.Format) flow.DataFormat {
	switch f {
	case flowdesc.FormatVideo:
		return flow.DataFormatVideo
	case flowdesc.FormatAudio:
		return flow.DataFormatAudio
	case flowdesc.FormatData:
		return flow.DataFormatData
	default:
		return flow.DataFormatUnspecified
	}
}
