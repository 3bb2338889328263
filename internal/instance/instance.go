// Package instance implements the Instance of spec §4.13: the
// per-process owner of a domain's Flow Manager and Domain Watcher, the
// refcounted reader/writer caches, the history-duration policy, and
// garbage collection. Failures are reported as *mxlerr.Error values whose
// Op names the operation that failed.
package instance

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mxllabs/mxl/internal/config"
	"github.com/mxllabs/mxl/internal/continuousflow"
	"github.com/mxllabs/mxl/internal/discreteflow"
	"github.com/mxllabs/mxl/internal/flow"
	"github.com/mxllabs/mxl/internal/flowdesc"
	"github.com/mxllabs/mxl/internal/flowmgr"
	"github.com/mxllabs/mxl/internal/mxlerr"
	"github.com/mxllabs/mxl/internal/mxllog"
	"github.com/mxllabs/mxl/internal/pathutil"
	"github.com/mxllabs/mxl/internal/rational"
	"github.com/mxllabs/mxl/internal/shm"
	"github.com/mxllabs/mxl/internal/watcher"
)

// WriterOptions carries the writer-level flow options of spec §6.4:
// maxCommitBatchSizeHint and maxSyncBatchSizeHint, both optional. A zero
// commit hint defaults to the grain's total slice count for discrete
// flows and to 10ms worth of samples for audio; a zero sync hint defaults
// to the commit hint.
type WriterOptions struct {
	MaxCommitBatchSizeHint uint32
	MaxSyncBatchSizeHint   uint32
}

// ParseWriterOptions parses the optional writer-level options JSON (spec
// §6.4). A nil or empty raw is not an error; it yields the zero value.
func ParseWriterOptions(raw []byte) (WriterOptions, error) {
	const op = "instance.ParseWriterOptions"
	var o WriterOptions
	if len(raw) == 0 {
		return o, nil
	}
	if err := json.Unmarshal(raw, &o); err != nil {
		return WriterOptions{}, mxlerr.New(mxlerr.InvalidArgument, op, err)
	}
	if o.MaxCommitBatchSizeHint == 0 {
		return o, nil
	}
	if o.MaxSyncBatchSizeHint%o.MaxCommitBatchSizeHint != 0 {
		return WriterOptions{}, mxlerr.New(mxlerr.InvalidArgument, op,
			fmt.Errorf("maxSyncBatchSizeHint (%d) must be a multiple of maxCommitBatchSizeHint (%d)",
				o.MaxSyncBatchSizeHint, o.MaxCommitBatchSizeHint))
	}
	return o, nil
}

// RuntimeInfo is the point-in-time snapshot getFlowRuntimeInfo returns: a
// read-only view of the counters that change on every commit, without
// requiring callers to peek the mapped header directly.
type RuntimeInfo struct {
	HeadIndex       uint64
	LastWriteTimeNs int64
	LastReadTimeNs  int64
	ValidSlices     uint32 // discrete flows only; 0 for continuous
}

// readerEntry is the refcounted cache entry for one flow's reader side.
type readerEntry struct {
	kind       flow.Kind
	opened     flowmgr.Opened
	discrete   *discreteflow.Reader
	continuous *continuousflow.Reader
	refs       int
}

// writerEntry is the refcounted cache entry for one flow's writer side.
type writerEntry struct {
	kind       flow.Kind
	opened     flowmgr.Opened
	discrete   *discreteflow.Writer
	continuous *continuousflow.Writer
	refs       int
}

// ReaderHandle is the tagged-sum reader surface returned to callers,
// mirroring flowmgr.Opened: exactly one of Discrete/Continuous is
// non-nil (spec §9, "Polymorphism across flow shapes" — only the
// operations genuinely shared by both shapes belong on the common
// surface, so type-specific operations are reached through the
// populated field).
type ReaderHandle struct {
	ID         uuid.UUID
	Kind       flow.Kind
	Discrete   *discreteflow.Reader
	Continuous *continuousflow.Reader
}

// WriterHandle is the writer-side analogue of ReaderHandle.
type WriterHandle struct {
	ID         uuid.UUID
	Kind       flow.Kind
	Discrete   *discreteflow.Writer
	Continuous *continuousflow.Writer
}

// Instance owns a Flow Manager and Domain Watcher bound to one domain,
// plus the refcounted reader/writer caches and history-duration policy
// of spec §4.13.
type Instance struct {
	domain            string
	mgr               *flowmgr.Manager
	watch             *watcher.Watcher // nil if the platform watcher failed to start
	historyDurationNs int64

	mu      sync.Mutex
	readers map[uuid.UUID]*readerEntry
	writers map[uuid.UUID]*writerEntry
}

// New binds an Instance to domain: it opens the Flow Manager, reads
// options.json for the configured history duration (default 200ms, spec
// §4.13), and starts the Domain Watcher. A watcher start failure (e.g.
// an unsupported platform) is logged and tolerated — readers and
// writers still function, only the writer-side lastReadTime signal is
// lost.
func New(domain string) (*Instance, error) {
	const op = "instance.New"

	mgr, err := flowmgr.New(domain)
	if err != nil {
		return nil, err
	}

	opts, err := config.LoadDomainOptions(mgr.Domain())
	if err != nil {
		return nil, mxlerr.New(mxlerr.Unknown, op, err)
	}

	in := &Instance{
		domain:            mgr.Domain(),
		mgr:               mgr,
		historyDurationNs: opts.HistoryDurationNs(),
		readers:           make(map[uuid.UUID]*readerEntry),
		writers:           make(map[uuid.UUID]*writerEntry),
	}

	w, err := watcher.New(in.domain, in.fileChanged)
	if err != nil {
		mxllog.For("instance").WithError(err).Warn("domain watcher unavailable; lastReadTime updates disabled")
	} else {
		in.watch = w
	}

	mxllog.ForFlow("instance", in.domain, "").Debug("instance created")
	return in, nil
}

// Domain returns the canonical domain path this instance is bound to.
func (in *Instance) Domain() string { return in.domain }

// Close stops the Domain Watcher and releases every still-held
// reader/writer mapping. It does not delete any flow; that is
// GarbageCollect's job, mirroring the exclusive-lock handshake of spec
// §4.6/§4.13.
func (in *Instance) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	var firstErr error
	for id, e := range in.readers {
		if err := e.opened.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(in.readers, id)
	}
	for id, e := range in.writers {
		if err := e.opened.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(in.writers, id)
	}
	if in.watch != nil {
		if err := in.watch.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// List returns the UUIDs of every flow currently present in the domain.
func (in *Instance) List() ([]uuid.UUID, error) { return in.mgr.List() }

// GetFlowDef returns the raw flow_def.json for id.
func (in *Instance) GetFlowDef(id uuid.UUID) ([]byte, error) { return in.mgr.GetDescriptor(id) }

// fileChanged is the Domain Watcher callback (spec §4.12): for a
// RoleWriter event (a reader touched "access") it stamps lastReadTime on
// the corresponding writer entry's header, the only signal that
// delivers "a reader read from this flow" to a writer.
func (in *Instance) fileChanged(flowID uuid.UUID, role watcher.Role) {
	if role != watcher.RoleWriter {
		return
	}
	in.mu.Lock()
	e, ok := in.writers[flowID]
	in.mu.Unlock()
	if !ok {
		return
	}
	switch e.kind {
	case flow.KindDiscrete:
		e.opened.Discrete.FlowInfo().LastReadTimeNs = rational.CurrentTimeTAI()
	case flow.KindContinuous:
		e.opened.Continuous.FlowInfo().LastReadTimeNs = rational.CurrentTimeTAI()
	}
}

// GetFlowReader looks up or opens a read-only mapping for id, registers
// a Domain Watcher watch for discrete flows, and returns a handle with
// its reference count incremented (spec §4.13).
func (in *Instance) GetFlowReader(id uuid.UUID) (*ReaderHandle, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if e, ok := in.readers[id]; ok {
		e.refs++
		return readerHandle(id, e), nil
	}

	opened, err := in.mgr.Open(id, false)
	if err != nil {
		return nil, err
	}

	e := &readerEntry{kind: kindOf(opened), opened: opened, refs: 1}
	switch e.kind {
	case flow.KindDiscrete:
		e.discrete = discreteflow.NewReader(opened.Discrete)
		if in.watch != nil {
			if err := in.watch.Add(id, watcher.RoleReader); err != nil {
				mxllog.ForFlow("instance", in.domain, id.String()).WithError(err).Warn("failed to watch flow for reader")
			}
		}
	case flow.KindContinuous:
		// Continuous readers are not watched: there is no discrete
		// "access touch cadence" a continuous writer needs signalled
		// per spec §4.12's multimap, which only names the discrete
		// reader/writer roles explicitly; continuous flows rely on the
		// syncCounter wait/wake path alone.
		e.continuous = continuousflow.NewReader(opened.Continuous)
	}

	in.readers[id] = e
	return readerHandle(id, e), nil
}

// ReleaseFlowReader decrements id's reader refcount, tearing down the
// mapping and watch registration on last release.
func (in *Instance) ReleaseFlowReader(id uuid.UUID) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	e, ok := in.readers[id]
	if !ok {
		return mxlerr.New(mxlerr.InvalidArgument, "instance.ReleaseFlowReader", fmt.Errorf("no reader for flow %s", id))
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}

	delete(in.readers, id)
	if e.kind == flow.KindDiscrete && in.watch != nil {
		in.watch.Remove(id, watcher.RoleReader)
	}
	return e.opened.Close()
}

// GetFlowWriter parses rawDescriptor and opts, derives the flow's
// geometry from the instance's history duration, and calls
// CreateOrOpen{Discrete,Continuous} (spec §4.6/§4.13). It registers a
// Domain Watcher watch for discrete flows and returns (handle, wasCreated).
func (in *Instance) GetFlowWriter(rawDescriptor []byte, opts WriterOptions) (*WriterHandle, bool, error) {
	const op = "instance.GetFlowWriter"

	desc, err := flowdesc.Parse(rawDescriptor)
	if err != nil {
		return nil, false, mxlerr.New(mxlerr.InvalidArgument, op, err)
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if e, ok := in.writers[desc.ID]; ok {
		e.refs++
		return writerHandle(desc.ID, e), false, nil
	}

	var opened flowmgr.Opened
	var created bool

	switch desc.Format {
	case flowdesc.FormatAudio:
		bufferLength := DeriveBufferLength(in.historyDurationNs, desc.Rate, desc.SampleWordSize)
		// Default batch size is 10ms worth of samples.
		defaultHint := uint32(desc.Rate.Num / (100 * desc.Rate.Den))
		commitHint, syncHint := resolveHints(opts, defaultHint)
		geo := continuousflow.Geometry{
			ChannelCount:           desc.ChannelCount,
			SampleWordSize:         desc.SampleWordSize,
			BufferLength:           bufferLength,
			MaxCommitBatchSizeHint: commitHint,
			MaxSyncBatchSizeHint:   syncHint,
			Rate:                   desc.Rate,
			Format:                 desc.Format,
		}
		data, c, err := in.mgr.CreateOrOpenContinuous(desc.ID, rawDescriptor, geo)
		if err != nil {
			return nil, false, err
		}
		opened, created = flowmgr.Opened{Continuous: data}, c

	default: // video, data: discrete
		grainCount := DeriveGrainCount(in.historyDurationNs, desc.Rate)
		totalSlices := uint32(desc.TotalSlices())
		commitHint, syncHint := resolveHints(opts, totalSlices)
		geo := discreteflow.Geometry{
			GrainCount:             grainCount,
			PayloadSize:            desc.PayloadSize,
			TotalSlices:            totalSlices,
			SliceSizes:             desc.SliceSizes,
			MaxCommitBatchSizeHint: commitHint,
			MaxSyncBatchSizeHint:   syncHint,
			Rate:                   desc.Rate,
			Format:                 desc.Format,
		}
		data, c, err := in.mgr.CreateOrOpenDiscrete(desc.ID, rawDescriptor, geo)
		if err != nil {
			return nil, false, err
		}
		opened, created = flowmgr.Opened{Discrete: data}, c
	}

	e := &writerEntry{kind: kindOf(opened), opened: opened, refs: 1}
	switch e.kind {
	case flow.KindDiscrete:
		e.discrete = discreteflow.NewWriter(opened.Discrete)
		if in.watch != nil {
			if err := in.watch.Add(desc.ID, watcher.RoleWriter); err != nil {
				mxllog.ForFlow("instance", in.domain, desc.ID.String()).WithError(err).Warn("failed to watch flow for writer")
			}
		}
	case flow.KindContinuous:
		e.continuous = continuousflow.NewWriter(opened.Continuous)
	}

	in.writers[desc.ID] = e
	mxllog.ForFlow("instance", in.domain, desc.ID.String()).WithField("created", created).Debug("flow writer opened")
	return writerHandle(desc.ID, e), created, nil
}

// ReleaseFlowWriter decrements id's writer refcount. On last release it
// removes the watch registration and attempts the exclusive-lock
// handshake of spec §4.6/§4.13/§8.2: if no other process still holds a
// shared lock on the flow, this release was the last writer and the
// flow is deleted.
func (in *Instance) ReleaseFlowWriter(id uuid.UUID) error {
	const op = "instance.ReleaseFlowWriter"

	in.mu.Lock()
	defer in.mu.Unlock()

	e, ok := in.writers[id]
	if !ok {
		return mxlerr.New(mxlerr.InvalidArgument, op, fmt.Errorf("no writer for flow %s", id))
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}

	delete(in.writers, id)
	if e.kind == flow.KindDiscrete && in.watch != nil {
		in.watch.Remove(id, watcher.RoleWriter)
	}

	exclusive, closeErr := in.releaseLastWriter(e)
	if exclusive {
		in.mgr.Delete(id)
	}
	return closeErr
}

func (in *Instance) releaseLastWriter(e *writerEntry) (exclusive bool, err error) {
	switch e.kind {
	case flow.KindDiscrete:
		exclusive = e.opened.Discrete.IsExclusive()
		if !exclusive {
			exclusive, _ = e.opened.Discrete.MakeExclusive()
		}
	case flow.KindContinuous:
		exclusive = e.opened.Continuous.IsExclusive()
		if !exclusive {
			exclusive, _ = e.opened.Continuous.MakeExclusive()
		}
	}
	return exclusive, e.opened.Close()
}

// IsFlowActive reports whether a writer handle for id is currently
// registered in this instance.
func (in *Instance) IsFlowActive(id uuid.UUID) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	_, ok := in.writers[id]
	return ok
}

// GetFlowRuntimeInfo returns a point-in-time snapshot of id's live
// counters, opening a transient read-only mapping if the flow isn't
// already cached.
func (in *Instance) GetFlowRuntimeInfo(id uuid.UUID) (RuntimeInfo, error) {
	in.mu.Lock()
	if e, ok := in.readers[id]; ok {
		info := runtimeInfoOf(e.kind, e.opened)
		in.mu.Unlock()
		return info, nil
	}
	if e, ok := in.writers[id]; ok {
		info := runtimeInfoOf(e.kind, e.opened)
		in.mu.Unlock()
		return info, nil
	}
	in.mu.Unlock()

	opened, err := in.mgr.Open(id, false)
	if err != nil {
		return RuntimeInfo{}, err
	}
	defer opened.Close()
	return runtimeInfoOf(kindOf(opened), opened), nil
}

// GarbageCollect sweeps every flow directory in the domain and deletes
// those with no live writer: it opens each flow's "data" file and
// attempts a non-blocking exclusive flock; obtaining one means no other
// process holds the flow's shared lock, so its writer has either
// released cleanly or leaked without cleanup (spec §4.13, §8.4 scenario
// 6). Errors on individual flows are logged and skipped, never
// propagated: one stuck flow must not stop the sweep of the rest.
func (in *Instance) GarbageCollect() int {
	log := mxllog.For("instance.gc")

	ids, err := in.mgr.List()
	if err != nil {
		log.WithError(err).Warn("failed to list domain")
		return 0
	}

	count := 0
	for _, id := range ids {
		in.mu.Lock()
		_, hasReader := in.readers[id]
		_, hasWriter := in.writers[id]
		in.mu.Unlock()
		if hasReader || hasWriter {
			continue
		}

		path := pathutil.Data(in.domain, id)
		active, err := isActiveFlow(path)
		if err != nil {
			log.WithField("flow", id.String()).WithError(err).Debug("failed to probe flow liveness")
			continue
		}
		if active {
			continue
		}
		if in.mgr.Delete(id) {
			count++
		}
	}
	return count
}

func resolveHints(opts WriterOptions, defaultHint uint32) (commit, sync uint32) {
	commit = opts.MaxCommitBatchSizeHint
	sync = opts.MaxSyncBatchSizeHint
	if commit == 0 {
		commit = defaultHint
	}
	if commit == 0 {
		commit = 1
	}
	if sync == 0 {
		sync = commit
	}
	return commit, sync
}

// DeriveGrainCount computes a discrete flow's ring size from the
// instance's configured history duration and the flow's grain rate,
// rounded to the nearest whole grain and floored at 2 so a single-grain
// ring (which can never hold both a "current" and a "previous" slot) is
// never produced.
func DeriveGrainCount(historyDurationNs int64, rate rational.Rate) uint64 {
	if !rate.Valid() || rate.Num <= 0 {
		return 2
	}
	num := historyDurationNs * rate.Num
	den := rate.Den * 1_000_000_000
	n := (num + den/2) / den
	if n < 2 {
		n = 2
	}
	return uint64(n)
}

// DeriveBufferLength computes a continuous flow's sample-buffer capacity
// from the history duration and sample rate, then rounds it up to a
// whole number of 4KiB pages worth of samples.
func DeriveBufferLength(historyDurationNs int64, rate rational.Rate, sampleWordSize int) int {
	const pageSize = 4096
	if !rate.Valid() || rate.Num <= 0 || sampleWordSize <= 0 {
		return pageSize / max(sampleWordSize, 1)
	}
	n := (historyDurationNs * rate.Num) / (rate.Den * 1_000_000_000)
	samplesPerPage := pageSize / sampleWordSize
	if samplesPerPage < 1 {
		samplesPerPage = 1
	}
	pages := (int(n) + samplesPerPage - 1) / samplesPerPage
	if pages < 1 {
		pages = 1
	}
	return pages * samplesPerPage
}

func kindOf(o flowmgr.Opened) flow.Kind {
	if o.Discrete != nil {
		return flow.KindDiscrete
	}
	return flow.KindContinuous
}

func readerHandle(id uuid.UUID, e *readerEntry) *ReaderHandle {
	return &ReaderHandle{ID: id, Kind: e.kind, Discrete: e.discrete, Continuous: e.continuous}
}

func writerHandle(id uuid.UUID, e *writerEntry) *WriterHandle {
	return &WriterHandle{ID: id, Kind: e.kind, Discrete: e.discrete, Continuous: e.continuous}
}

func runtimeInfoOf(kind flow.Kind, opened flowmgr.Opened) RuntimeInfo {
	switch kind {
	case flow.KindDiscrete:
		h := opened.Discrete.FlowInfo()
		info := RuntimeInfo{HeadIndex: h.HeadIndex, LastWriteTimeNs: h.LastWriteTimeNs, LastReadTimeNs: h.LastReadTimeNs}
		if h.HeadIndex != ^uint64(0) {
			offset := h.HeadIndex % h.GrainCount
			info.ValidSlices = flow.CastGrainInfo(opened.Discrete.GrainAt(offset)).ValidSlices
		}
		return info
	default:
		h := opened.Continuous.FlowInfo()
		return RuntimeInfo{HeadIndex: h.HeadIndex, LastWriteTimeNs: h.LastWriteTimeNs, LastReadTimeNs: h.LastReadTimeNs}
	}
}

// isActiveFlow opens path read-only and attempts a non-blocking exclusive
// flock: obtaining it means no writer currently holds the flow's shared
// lock, i.e. the flow is not active (spec §4.13 garbageCollect, §8.4
// scenario 6). The lock is released immediately either way — this is a
// probe, not a hold.
func isActiveFlow(path string) (bool, error) {
	seg, err := shm.OpenReadOnly(path)
	if err != nil {
		return false, err
	}
	defer seg.Close()

	obtained, err := seg.MakeExclusive()
	if err != nil {
		return false, err
	}
	return !obtained, nil
}
