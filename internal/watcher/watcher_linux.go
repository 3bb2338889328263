//go:build linux

package watcher

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/mxllabs/mxl/internal/pathutil"
)

// inotifyEventHeaderSize is sizeof(struct inotify_event)'s fixed part:
// wd(4) + mask(4) + cookie(4) + len(4), followed by len bytes of name.
const inotifyEventHeaderSize = 16

// Watcher is the inotify-backed Domain Watcher of spec §4.12.
type Watcher struct {
	domain   string
	callback Callback
	fd       int

	mu    sync.Mutex
	byKey map[watchKey]int32
	byWd  map[int32]*record

	stop chan struct{}
	done chan struct{}
}

// New validates that domain is a directory, opens a close-on-exec,
// non-blocking inotify instance, and starts the worker goroutine.
func New(domain string, callback Callback) (*Watcher, error) {
	const op = "watcher.New"

	fi, err := os.Stat(domain)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: %s is not a directory", op, domain)
	}

	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("%s: inotify_init1: %w", op, err)
	}

	w := &Watcher{
		domain:   domain,
		callback: callback,
		fd:       fd,
		byKey:    make(map[watchKey]int32),
		byWd:     make(map[int32]*record),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Add registers interest in (flowID, role): readers watch the flow's
// "data" file for content modifications, writers watch "access" for the
// attribute changes readers leave behind via Touch (spec §4.12). Repeat
// calls for the same key increment a reference count rather than
// re-registering the watch descriptor.
func (w *Watcher) Add(flowID uuid.UUID, role Role) error {
	const op = "watcher.Add"
	key := watchKey{flowID: flowID, role: role}

	w.mu.Lock()
	defer w.mu.Unlock()

	if wd, ok := w.byKey[key]; ok {
		w.byWd[wd].useCount++
		return nil
	}

	path := filenameFor(w.domain, flowID, role)
	wd, err := unix.InotifyAddWatch(w.fd, path, maskFor(role))
	if err != nil {
		return fmt.Errorf("%s: inotify_add_watch %s: %w", op, path, err)
	}

	w.byKey[key] = int32(wd)
	w.byWd[int32(wd)] = &record{flowID: flowID, role: role, filename: path, useCount: 1}
	return nil
}

// Remove decrements the reference count for (flowID, role), detaching
// the watch descriptor once it reaches zero.
func (w *Watcher) Remove(flowID uuid.UUID, role Role) error {
	const op = "watcher.Remove"
	key := watchKey{flowID: flowID, role: role}

	w.mu.Lock()
	defer w.mu.Unlock()

	wd, ok := w.byKey[key]
	if !ok {
		return fmt.Errorf("%s: %w", op, errUnwatched)
	}
	rec := w.byWd[wd]
	rec.useCount--
	if rec.useCount > 0 {
		return nil
	}

	delete(w.byKey, key)
	delete(w.byWd, wd)
	unix.InotifyRmWatch(w.fd, uint32(wd))
	return nil
}

// Close stops the worker goroutine and releases the inotify descriptor.
func (w *Watcher) Close() error {
	close(w.stop)
	<-w.done
	return unix.Close(w.fd)
}

// run is the worker goroutine: poll the inotify fd with a 250ms tick,
// read a batch of raw event records, and dispatch each by watch
// descriptor.
func (w *Watcher) run() {
	defer close(w.done)

	var buf [64 * (inotifyEventHeaderSize + 256)]byte
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		n, err := unix.Poll(fds, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if n == 0 {
			continue
		}

		nr, err := unix.Read(w.fd, buf[:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return
		}

		w.dispatch(buf[:nr])
	}
}

func (w *Watcher) dispatch(buf []byte) {
	for off := 0; off+inotifyEventHeaderSize <= len(buf); {
		wd := int32(binary.NativeEndian.Uint32(buf[off : off+4]))
		nameLen := binary.NativeEndian.Uint32(buf[off+12 : off+16])
		off += inotifyEventHeaderSize + int(nameLen)

		w.mu.Lock()
		rec, ok := w.byWd[wd]
		w.mu.Unlock()
		if !ok {
			continue
		}
		if w.callback != nil {
			w.callback(rec.flowID, rec.role)
		}
	}
}

func filenameFor(domain string, flowID uuid.UUID, role Role) string {
	if role == RoleWriter {
		return pathutil.Access(domain, flowID)
	}
	return pathutil.Data(domain, flowID)
}

func maskFor(role Role) uint32 {
	if role == RoleWriter {
		return unix.IN_ATTRIB
	}
	return unix.IN_MODIFY
}
