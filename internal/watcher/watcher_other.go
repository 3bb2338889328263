//go:build !linux

package watcher

import (
	"fmt"

	"github.com/google/uuid"
)

// Watcher is unimplemented off Linux. MXL's Domain Watcher is built on
// inotify; other platforms would need a distinct kqueue/ReadDirectoryChangesW
// implementation, out of scope (spec §1, out of scope).
type Watcher struct{}

var errUnsupported = fmt.Errorf("mxl: the domain watcher is not supported on this platform")

func New(domain string, callback Callback) (*Watcher, error) { return nil, errUnsupported }

func (w *Watcher) Add(flowID uuid.UUID, role Role) error    { return errUnsupported }
func (w *Watcher) Remove(flowID uuid.UUID, role Role) error { return errUnsupported }
func (w *Watcher) Close() error                             { return nil }
