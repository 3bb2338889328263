// Package watcher implements the Domain Watcher of spec §4.12: one
// background goroutine per domain that turns filesystem notifications
// on flows' "data"/"access" files into callbacks, grounded on the
// teacher's raw-event-buffer poll loop in internal/vm/uffd_linux.go
// (lazyFaultHandler): poll the fd, read a batch of fixed-size event
// records into a buffer, dispatch each by type.
package watcher

import (
	"fmt"

	"github.com/google/uuid"
)

// Role selects which file of a flow is watched and what event class
// matters: readers watch "data" for content modifications made by the
// writer; writers watch "access" for the attribute-change readers leave
// behind when they touch it (spec §4.12).
type Role int

const (
	RoleReader Role = iota
	RoleWriter
)

func (r Role) String() string {
	if r == RoleWriter {
		return "writer"
	}
	return "reader"
}

// Callback is invoked on the watcher's worker goroutine whenever a
// watched file changes. For RoleWriter callbacks this is the only
// signal that delivers "a reader read from this flow" to the writer,
// which then updates lastReadTime (spec §4.12).
type Callback func(flowID uuid.UUID, role Role)

type watchKey struct {
	flowID uuid.UUID
	role   Role
}

// record is the bookkeeping entry spec §4.12 describes: "a multimap of
// watch-descriptor -> record { flowID, role, useCount, filename }".
type record struct {
	flowID   uuid.UUID
	role     Role
	filename string
	useCount int
}

var errUnwatched = fmt.Errorf("mxl: (flowID, role) is not currently watched")
