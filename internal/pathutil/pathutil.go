// Package pathutil centralizes the canonical on-disk names for domain,
// flow, grain, and channel files (spec §3). Nothing outside this package
// should format or parse one of these paths by hand.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	flowDirSuffix  = ".mxl-flow"
	stagingPrefix  = ".mxl-tmp-"
	flowDefFile    = "flow_def.json"
	dataFile       = "data"
	accessFile     = "access"
	grainsDir      = "grains"
	channelsFile   = "channels"
	optionsFile    = "options.json"
	grainFilePrefx = "data."
)

// FlowDir returns <domain>/<uuid>.mxl-flow.
func FlowDir(domain string, id uuid.UUID) string {
	return filepath.Join(domain, id.String()+flowDirSuffix)
}

// FlowDef returns <domain>/<uuid>.mxl-flow/flow_def.json.
func FlowDef(domain string, id uuid.UUID) string {
	return filepath.Join(FlowDir(domain, id), flowDefFile)
}

// Data returns <domain>/<uuid>.mxl-flow/data.
func Data(domain string, id uuid.UUID) string {
	return filepath.Join(FlowDir(domain, id), dataFile)
}

// Access returns <domain>/<uuid>.mxl-flow/access.
func Access(domain string, id uuid.UUID) string {
	return filepath.Join(FlowDir(domain, id), accessFile)
}

// GrainsDir returns <domain>/<uuid>.mxl-flow/grains.
func GrainsDir(domain string, id uuid.UUID) string {
	return filepath.Join(FlowDir(domain, id), grainsDir)
}

// GrainFile returns <domain>/<uuid>.mxl-flow/grains/data.<slot>.
func GrainFile(domain string, id uuid.UUID, slot uint64) string {
	return filepath.Join(GrainsDir(domain, id), fmt.Sprintf("%s%d", grainFilePrefx, slot))
}

// Channels returns <domain>/<uuid>.mxl-flow/channels.
func Channels(domain string, id uuid.UUID) string {
	return filepath.Join(FlowDir(domain, id), channelsFile)
}

// DomainOptions returns <domain>/options.json.
func DomainOptions(domain string) string {
	return filepath.Join(domain, optionsFile)
}

// NewStagingDirPattern returns a staging directory template suitable for
// os.MkdirTemp(domain, pattern): the leading "." and the ".mxl-tmp-"
// prefix, with no ".mxl-flow" suffix, keep it from colliding with, or
// being listed as, a real flow directory. MkdirTemp replaces "*" with a
// random decimal string whose length is not fixed.
func NewStagingDirPattern() string {
	return stagingPrefix + "*"
}

// IsStagingDir reports whether name (a directory base name, not a full
// path) is a staging directory left behind by an interrupted publish.
func IsStagingDir(name string) bool {
	return strings.HasPrefix(name, stagingPrefix)
}

// ParseFlowDirName extracts the UUID from a flow directory's base name,
// e.g. "5fbec3b1-....mxl-flow" -> the UUID, ok=true. Returns ok=false for
// anything that doesn't end in the flow suffix or whose stem isn't a
// valid UUID.
func ParseFlowDirName(name string) (uuid.UUID, bool) {
	stem, ok := strings.CutSuffix(name, flowDirSuffix)
	if !ok {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(stem)
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}
