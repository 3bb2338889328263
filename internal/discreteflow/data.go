// Package discreteflow implements the discrete (grain-based) data carrier
// and its writer/reader state machines (spec §3, §4.5, §4.7, §4.10).
package discreteflow

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

// undefinedIndex mirrors MXL_UNDEFINED_INDEX: no grain currently open.
const undefinedIndex = ^uint64(0)

// Geometry is the caller-supplied shape of a discrete flow at creation
// time, distilled from a parsed flow descriptor plus domain defaults.
type Geometry struct {
	GrainCount             uint64
	PayloadSize            int
	TotalSlices            uint32
	SliceSizes             [4]uint32
	MaxCommitBatchSizeHint uint32
	MaxSyncBatchSizeHint   uint32
	Rate                   rational.Rate
	Format                 flowdesc.Format
}

// Data is the discrete data carrier: the mapped flow header plus one
// mapped segment per grain slot (spec §4.5).
type Data struct {
	domain string
	id     uuid.UUID
	header *shm.Segment
	grains []*shm.Segment
}

// FlowInfo returns the live, mmap'd discrete header. Mutations through the
// returned pointer are visible to every other mapper immediately.
func (d *Data) FlowInfo() *flow.DiscreteHeader {
	return flow.CastDiscrete(d.header.Bytes())
}

// IsExclusive reports whether this mapping currently holds the flow's
// exclusive flock.
func (d *Data) IsExclusive() bool { return d.header.IsExclusive() }

// MakeExclusive attempts the non-blocking shared->exclusive flock
// upgrade used to decide deletion rights (spec §4.6, §8.2).
func (d *Data) MakeExclusive() (bool, error) { return d.header.MakeExclusive() }

// GrainAt returns the mapped bytes of the grain file at ring offset
// (index mod grainCount).
func (d *Data) GrainAt(offset uint64) []byte { return d.grains[offset].Bytes() }

// Rebase updates the domain this Data resolves path-based lookups
// against. The Flow Manager calls this after renaming the staging
// directory that housed this flow's creation into its final location
// (spec §4.6 step 5): open file descriptors and mappings survive the
// rename untouched, but path-based lookups like the reader's
// inode re-stat must follow it.
func (d *Data) Rebase(domain string) { d.domain = domain }

// Create populates a brand-new discrete flow's "data" header and its
// grains/ directory, following the exact sequencing of spec §4.6 step 3-4:
// the header is created exclusive-locked and populated first, then every
// grain file is created and in-place constructed, then the header is
// downgraded to a shared lock. Partial failure leaves the caller to remove
// the staging directory; Create itself only cleans up the segments it
// opened.
func Create(domain string, id uuid.UUID, g Geometry) (*Data, error) {
	const op = "discreteflow.Create"

	headerPath := pathutil.Data(domain, id)
	header, err := shm.CreateExclusive(headerPath, int(flow.DiscreteHeaderSize))
	if err != nil {
		return nil, mxlerr.New(mxlerr.Unknown, op, err)
	}

	h := flow.CastDiscrete(header.Bytes())
	h.Version = flow.HeaderVersion
	h.Size = flow.DiscreteHeaderSize
	h.Kind = flow.KindDiscrete
	h.Format = translateFormat(g.Format)
	h.FlowID = id
	h.Inode = header.Inode()
	h.Rate = flow.Rational64{Num: g.Rate.Num, Den: g.Rate.Den}
	h.MaxCommitBatchSizeHint = g.MaxCommitBatchSizeHint
	h.MaxSyncBatchSizeHint = g.MaxSyncBatchSizeHint
	h.PayloadLocation = flow.PayloadLocationHost
	h.GrainCount = g.GrainCount
	h.HeadIndex = undefinedIndex
	h.SyncCounter = 0
	h.SliceSizes = g.SliceSizes

	grainsDir := pathutil.GrainsDir(domain, id)
	if err := os.Mkdir(grainsDir, 0o755); err != nil {
		header.Close()
		return nil, mxlerr.New(mxlerr.Unknown, op, err)
	}

	grainFileSize := flow.GrainHeaderSize + g.PayloadSize
	grains := make([]*shm.Segment, g.GrainCount)
	for i := uint64(0); i < g.GrainCount; i++ {
		path := pathutil.GrainFile(domain, id, i)
		seg, err := shm.CreatePlain(path, grainFileSize)
		if err != nil {
			closeAll(header, grains[:i])
			return nil, mxlerr.New(mxlerr.Unknown, op, err)
		}
		info := flow.CastGrainInfo(seg.Bytes())
		info.Version = flow.HeaderVersion
		info.Size = uint32(flow.GrainHeaderSize)
		info.PayloadLocation = flow.PayloadLocationHost
		info.GrainSize = uint32(g.PayloadSize)
		info.TotalSlices = g.TotalSlices
		info.ValidSlices = 0
		info.Index = i
		grains[i] = seg
	}

	if err := header.Downgrade(); err != nil {
		closeAll(header, grains)
		return nil, mxlerr.New(mxlerr.Unknown, op, err)
	}

	return &Data{domain: domain, id: id, header: header, grains: grains}, nil
}

// Open maps an existing discrete flow's header and every grain file. If
// writable is false the header and grains are mapped read-only and no
// flock is taken on the header.
func Open(domain string, id uuid.UUID, writable bool) (*Data, error) {
	const op = "discreteflow.Open"

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

	h := flow.CastDiscrete(header.Bytes())
	if err := flow.ValidateCommon(&h.Common); err != nil {
		header.Close()
		return nil, mxlerr.New(mxlerr.FlowInvalid, op, err)
	}

	grains := make([]*shm.Segment, h.GrainCount)
	for i := uint64(0); i < h.GrainCount; i++ {
		path := pathutil.GrainFile(domain, id, i)
		var seg *shm.Segment
		var err error
		if writable {
			seg, err = shm.OpenPlain(path)
		} else {
			seg, err = shm.OpenPlainReadOnly(path)
		}
		if err != nil {
			header.Close()
			closeAll(nil, grains[:i])
			return nil, mxlerr.New(mxlerr.Unknown, op, err)
		}
		grains[i] = seg
	}

	return &Data{domain: domain, id: id, header: header, grains: grains}, nil
}

// Close unmaps the header and every grain segment, returning the first
// error encountered.
func (d *Data) Close() error {
	return closeAll(d.header, d.grains)
}

func closeAll(header *shm.Segment, grains []*shm.Segment) error {
	var firstErr error
	for _, g := range grains {
		if g == nil {
			continue
		}
		if err := g.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if header != nil {
		if err := header.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// currentDataInode stats the flow's "data" file as it currently exists on
// disk, used by the reader to distinguish "ring wrapped past this index"
// from "the flow was deleted and recreated" (spec §4.10, §8.1).
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
