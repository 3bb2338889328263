// Package flowmgr implements the Flow Manager of spec §4.6: domain CRUD
// with atomic creation-by-staging-and-rename — build into a temp
// directory, then rename into place so a reader never observes a
// half-built tree.
package flowmgr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mxllabs/mxl/internal/continuousflow"
	"github.com/mxllabs/mxl/internal/discreteflow"
	"github.com/mxllabs/mxl/internal/flow"
	"github.com/mxllabs/mxl/internal/mxlerr"
	"github.com/mxllabs/mxl/internal/pathutil"
	"github.com/mxllabs/mxl/internal/shm"
)

// Manager performs domain CRUD: create-or-open, open, delete, list, and
// descriptor lookup, all scoped to one domain directory.
type Manager struct {
	domain string
}

// New canonicalizes domain and verifies it is an existing directory.
func New(domain string) (*Manager, error) {
	const op = "flowmgr.New"
	abs, err := filepath.Abs(domain)
	if err != nil {
		return nil, mxlerr.New(mxlerr.InvalidArgument, op, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, mxlerr.New(mxlerr.FlowNotFound, op, err)
		}
		return nil, mxlerr.New(mxlerr.Unknown, op, err)
	}
	if !fi.IsDir() {
		return nil, mxlerr.New(mxlerr.InvalidArgument, op, fmt.Errorf("%s is not a directory", abs))
	}
	return &Manager{domain: abs}, nil
}

// Domain returns the canonical domain path this manager is bound to.
func (m *Manager) Domain() string { return m.domain }

// Opened is the tagged-sum result of Open/CreateOrOpen*: exactly one of
// Discrete or Continuous is non-nil, mirroring the discrete/continuous
// polymorphism spec §4.5 describes for the data carriers themselves.
type Opened struct {
	Discrete   *discreteflow.Data
	Continuous *continuousflow.Data
}

// Close releases whichever carrier is populated.
func (o Opened) Close() error {
	if o.Discrete != nil {
		return o.Discrete.Close()
	}
	if o.Continuous != nil {
		return o.Continuous.Close()
	}
	return nil
}

// stage creates a staging directory inside the domain, writes
// flow_def.json and a zero-byte access file for id into it, and invokes
// populate to build the format-specific "data"/"grains"/"channels"
// layout. On any failure the staging directory is removed and the error
// returned. On success stage renames the populated flow directory into
// place and reports whether this call won the creation race.
//
// The carrier packages (discreteflow/continuousflow) address files via
// FlowDir(domain, id) = domain/<id>.mxl-flow, so populate is invoked
// against a one-level-deeper "stagingRoot" wrapper rather than renaming
// the mkdtemp result directly: stagingRoot/<id>.mxl-flow is built first,
// then that inner directory — not stagingRoot itself — is the thing
// renamed into <domain>/<id>.mxl-flow. stagingRoot is discarded right
// after. This preserves the same atomicity point (one rename of a fully
// built directory) spec §4.6 step 5 describes, with mkdtemp supplying
// the collision-proof staging name one level up instead of in place.
func (m *Manager) stage(id uuid.UUID, rawDescriptor []byte, populate func(stagingRoot string) error) (stagingFlowDir string, created bool, err error) {
	const op = "flowmgr.stage"

	stagingRoot, err := os.MkdirTemp(m.domain, pathutil.NewStagingDirPattern())
	if err != nil {
		return "", false, mxlerr.New(mxlerr.Unknown, op, err)
	}
	cleanupStaging := true
	defer func() {
		if cleanupStaging {
			os.RemoveAll(stagingRoot)
		}
	}()

	innerFlowDir := pathutil.FlowDir(stagingRoot, id)
	if err := os.Mkdir(innerFlowDir, 0o755); err != nil {
		return "", false, mxlerr.New(mxlerr.Unknown, op, err)
	}
	if err := os.WriteFile(pathutil.FlowDef(stagingRoot, id), rawDescriptor, 0o644); err != nil {
		return "", false, mxlerr.New(mxlerr.Unknown, op, err)
	}
	if err := os.WriteFile(pathutil.Access(stagingRoot, id), nil, 0o644); err != nil {
		return "", false, mxlerr.New(mxlerr.Unknown, op, err)
	}

	if err := populate(stagingRoot); err != nil {
		return "", false, err
	}

	finalDir := pathutil.FlowDir(m.domain, id)
	if err := os.Rename(innerFlowDir, finalDir); err != nil {
		// Lost the creation race: another creator's rename already landed
		// at finalDir. Per spec §4.6, become an opener instead.
		return "", false, nil
	}

	cleanupStaging = false
	os.Remove(stagingRoot) // now-empty temp wrapper; ignore ENOTEMPTY races harmlessly
	return finalDir, true, nil
}

// CreateOrOpenDiscrete is the writer-side atomic publish of spec §4.6 for
// discrete flows. If another creator wins the race, it opens the
// existing flow read-write with a shared lock and reports created=false.
func (m *Manager) CreateOrOpenDiscrete(id uuid.UUID, rawDescriptor []byte, geo discreteflow.Geometry) (*discreteflow.Data, bool, error) {
	const op = "flowmgr.CreateOrOpenDiscrete"

	var built *discreteflow.Data
	_, created, err := m.stage(id, rawDescriptor, func(stagingRoot string) error {
		data, err := discreteflow.Create(stagingRoot, id, geo)
		if err != nil {
			return err
		}
		built = data
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		built.Rebase(m.domain)
		return built, true, nil
	}

	// Race lost: the data we built lives under a staging dir that's about
	// to be removed. Tear it down and open the winner's flow instead.
	if built != nil {
		built.Close()
	}
	data, err := discreteflow.Open(m.domain, id, true)
	if err != nil {
		return nil, false, mxlerr.New(mxlerr.Unknown, op, err)
	}
	return data, false, nil
}

// CreateOrOpenContinuous is the continuous-flow analogue of
// CreateOrOpenDiscrete.
func (m *Manager) CreateOrOpenContinuous(id uuid.UUID, rawDescriptor []byte, geo continuousflow.Geometry) (*continuousflow.Data, bool, error) {
	const op = "flowmgr.CreateOrOpenContinuous"

	var built *continuousflow.Data
	_, created, err := m.stage(id, rawDescriptor, func(stagingRoot string) error {
		data, err := continuousflow.Create(stagingRoot, id, geo)
		if err != nil {
			return err
		}
		built = data
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		built.Rebase(m.domain)
		return built, true, nil
	}

	if built != nil {
		built.Close()
	}
	data, err := continuousflow.Open(m.domain, id, true)
	if err != nil {
		return nil, false, mxlerr.New(mxlerr.Unknown, op, err)
	}
	return data, false, nil
}

// Open maps an existing flow read-only or read-write and dispatches on
// its stored Kind. There is no create-read-write mode here; creation
// only happens through CreateOrOpen* (spec §4.6, "CreateReadWrite here
// is an error").
func (m *Manager) Open(id uuid.UUID, writable bool) (Opened, error) {
	const op = "flowmgr.Open"

	kind, err := m.peekKind(id)
	if err != nil {
		return Opened{}, err
	}

	switch kind {
	case flow.KindDiscrete:
		data, err := discreteflow.Open(m.domain, id, writable)
		if err != nil {
			return Opened{}, err
		}
		return Opened{Discrete: data}, nil
	case flow.KindContinuous:
		data, err := continuousflow.Open(m.domain, id, writable)
		if err != nil {
			return Opened{}, err
		}
		return Opened{Continuous: data}, nil
	default:
		return Opened{}, mxlerr.New(mxlerr.FlowInvalid, op, fmt.Errorf("unrecognized flow kind %d", kind))
	}
}

// peekKind opens the flow's "data" file read-only just long enough to
// read the Kind discriminator shared by both header layouts, so Open can
// dispatch into the right package without either package needing to
// know about the other's header layout.
func (m *Manager) peekKind(id uuid.UUID) (flow.Kind, error) {
	const op = "flowmgr.peekKind"

	path := pathutil.Data(m.domain, id)
	seg, err := shm.OpenReadOnly(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, mxlerr.New(mxlerr.FlowNotFound, op, err)
		}
		return 0, mxlerr.New(mxlerr.Unknown, op, err)
	}
	defer seg.Close()

	kind, err := flow.PeekKind(seg.Bytes())
	if err != nil {
		return 0, mxlerr.New(mxlerr.FlowInvalid, op, err)
	}
	return kind, nil
}

// Delete removes the flow directory, swallowing every error (missing
// directory, permission denial, anything else) into a plain false, per
// spec §4.6.
func (m *Manager) Delete(id uuid.UUID) bool {
	dir := pathutil.FlowDir(m.domain, id)
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	return os.RemoveAll(dir) == nil
}

// List scans the domain for flow directories and returns their UUIDs.
func (m *Manager) List() ([]uuid.UUID, error) {
	const op = "flowmgr.List"

	entries, err := os.ReadDir(m.domain)
	if err != nil {
		return nil, mxlerr.New(mxlerr.Unknown, op, err)
	}

	var ids []uuid.UUID
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if id, ok := pathutil.ParseFlowDirName(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// GetDescriptor reads flow_def.json for id, distinguishing "not found"
// from other I/O errors.
func (m *Manager) GetDescriptor(id uuid.UUID) ([]byte, error) {
	const op = "flowmgr.GetDescriptor"

	raw, err := os.ReadFile(pathutil.FlowDef(m.domain, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, mxlerr.New(mxlerr.FlowNotFound, op, err)
		}
		return nil, mxlerr.New(mxlerr.Unknown, op, err)
	}
	return raw, nil
}
