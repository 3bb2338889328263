package mxl

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/mxllabs/mxl/internal/flow"
	"github.com/mxllabs/mxl/internal/instance"
)

// Instance owns one domain's caches of readers and writers, its Flow
// Manager, and its Domain Watcher (spec §4.13). Create one per process
// per domain with NewInstance and release it with Close.
type Instance struct {
	inner *instance.Instance
}

// NewInstance opens (but does not create) domain and binds an Instance
// to it. domain must already exist as a directory.
func NewInstance(domain string) (*Instance, error) {
	const op = "mxl.NewInstance"
	InitLogging()
	in, err := instance.New(domain)
	if err != nil {
		return nil, wrap(op, err)
	}
	return &Instance{inner: in}, nil
}

// Domain returns the canonical path of the domain this instance is
// bound to.
func (i *Instance) Domain() string { return i.inner.Domain() }

// Close stops the Domain Watcher and releases every reader/writer
// mapping still held through this instance. It does not delete any
// flow.
func (i *Instance) Close() error {
	return wrap("mxl.Instance.Close", i.inner.Close())
}

// ListFlows returns the UUIDs of every flow currently present in the
// domain.
func (i *Instance) ListFlows() ([]uuid.UUID, error) {
	ids, err := i.inner.List()
	return ids, wrap("mxl.Instance.ListFlows", err)
}

// GetFlowDef returns the raw NMOS flow_def.json for id.
func (i *Instance) GetFlowDef(id uuid.UUID) ([]byte, error) {
	raw, err := i.inner.GetFlowDef(id)
	return raw, wrap("mxl.Instance.GetFlowDef", err)
}

// IsFlowActive reports whether a writer handle for id is currently
// registered in this instance.
func (i *Instance) IsFlowActive(id uuid.UUID) bool { return i.inner.IsFlowActive(id) }

// FlowRuntimeInfo is a point-in-time snapshot of a flow's live counters.
type FlowRuntimeInfo struct {
	HeadIndex       uint64
	LastWriteTimeNs int64
	LastReadTimeNs  int64
	ValidSlices     uint32 // discrete flows only
}

// GetFlowRuntimeInfo returns a snapshot of id's live counters.
func (i *Instance) GetFlowRuntimeInfo(id uuid.UUID) (FlowRuntimeInfo, error) {
	ri, err := i.inner.GetFlowRuntimeInfo(id)
	if err != nil {
		return FlowRuntimeInfo{}, wrap("mxl.Instance.GetFlowRuntimeInfo", err)
	}
	return FlowRuntimeInfo{
		HeadIndex:       ri.HeadIndex,
		LastWriteTimeNs: ri.LastWriteTimeNs,
		LastReadTimeNs:  ri.LastReadTimeNs,
		ValidSlices:     ri.ValidSlices,
	}, nil
}

// GarbageCollectFlows sweeps the domain for flows with no live writer
// and deletes them, returning the number removed (spec §4.13, §8.4
// scenario 6).
func (i *Instance) GarbageCollectFlows() int { return i.inner.GarbageCollect() }

// CreateFlowReader opens (or reuses a cached) read-only handle for id
// (spec §6.3: createFlowReader).
func (i *Instance) CreateFlowReader(id uuid.UUID) (*Reader, error) {
	h, err := i.inner.GetFlowReader(id)
	if err != nil {
		return nil, wrap("mxl.Instance.CreateFlowReader", err)
	}
	return &Reader{inst: i.inner, handle: h}, nil
}

// ReleaseFlowReader decrements r's reference count, tearing down the
// underlying mapping on last release. Prefer Reader.Release.
func (i *Instance) ReleaseFlowReader(r *Reader) error {
	return wrap("mxl.Instance.ReleaseFlowReader", i.inner.ReleaseFlowReader(r.handle.ID))
}

// WriterOptions carries the optional writer-level flow options of spec
// §6.4.
type WriterOptions struct {
	MaxCommitBatchSizeHint uint32 `json:"maxCommitBatchSizeHint,omitempty"`
	MaxSyncBatchSizeHint   uint32 `json:"maxSyncBatchSizeHint,omitempty"`
}

// CreateFlowWriter parses flowDef (an NMOS IS-04 flow descriptor) and
// creates or opens its writer, returning the writer handle and whether
// this call won the creation race (spec §6.3: createFlowWriter).
func (i *Instance) CreateFlowWriter(flowDef []byte, opts WriterOptions) (*Writer, bool, error) {
	const op = "mxl.Instance.CreateFlowWriter"
	raw, err := json.Marshal(opts)
	if err != nil {
		return nil, false, wrap(op, err)
	}
	internalOpts, err := instance.ParseWriterOptions(raw)
	if err != nil {
		return nil, false, wrap(op, err)
	}
	h, created, err := i.inner.GetFlowWriter(flowDef, internalOpts)
	if err != nil {
		return nil, false, wrap(op, err)
	}
	return &Writer{inst: i.inner, handle: h}, created, nil
}

// ReleaseFlowWriter decrements w's reference count. On last release it
// attempts the exclusive-lock handshake and deletes the flow if no
// other process still writes to it (spec §4.6/§4.13/§8.2). Prefer
// Writer.Release.
func (i *Instance) ReleaseFlowWriter(w *Writer) error {
	return wrap("mxl.Instance.ReleaseFlowWriter", i.inner.ReleaseFlowWriter(w.handle.ID))
}

// Kind reports whether a handle is backed by a discrete (grain) or
// continuous (sample) flow.
type Kind = flow.Kind

const (
	KindDiscrete   = flow.KindDiscrete
	KindContinuous = flow.KindContinuous
)
