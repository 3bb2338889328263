//go:build linux

package watcher_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxllabs/mxl/internal/pathutil"
	"github.com/mxllabs/mxl/internal/watcher"
)

func makeFlowFiles(t *testing.T, domain string, id uuid.UUID) {
	t.Helper()
	dir := pathutil.FlowDir(domain, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(pathutil.Data(domain, id), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(pathutil.Access(domain, id), nil, 0o644))
}

func TestNewRejectsNonDirectory(t *testing.T) {
	domain := t.TempDir()
	file := filepath.Join(domain, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := watcher.New(file, nil)
	require.Error(t, err)
}

func TestReaderRoleFiresOnDataWrite(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	makeFlowFiles(t, domain, id)

	var mu sync.Mutex
	var gotID uuid.UUID
	var gotRole watcher.Role
	fired := make(chan struct{}, 1)

	w, err := watcher.New(domain, func(flowID uuid.UUID, role watcher.Role) {
		mu.Lock()
		gotID, gotRole = flowID, role
		mu.Unlock()
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add(id, watcher.RoleReader))

	require.NoError(t, os.WriteFile(pathutil.Data(domain, id), []byte("yy"), 0o644))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reader-role callback")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, id, gotID)
	assert.Equal(t, watcher.RoleReader, gotRole)
}

func TestWriterRoleFiresOnAccessTouch(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	makeFlowFiles(t, domain, id)

	fired := make(chan watcher.Role, 1)
	w, err := watcher.New(domain, func(flowID uuid.UUID, role watcher.Role) {
		select {
		case fired <- role:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add(id, watcher.RoleWriter))

	now := time.Now()
	require.NoError(t, os.Chtimes(pathutil.Access(domain, id), now, now))

	select {
	case role := <-fired:
		assert.Equal(t, watcher.RoleWriter, role)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for writer-role callback")
	}
}

func TestRemoveDetachesAtZeroUseCount(t *testing.T) {
	domain := t.TempDir()
	id := uuid.New()
	makeFlowFiles(t, domain, id)

	w, err := watcher.New(domain, func(uuid.UUID, watcher.Role) {})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add(id, watcher.RoleReader))
	require.NoError(t, w.Add(id, watcher.RoleReader))
	require.NoError(t, w.Remove(id, watcher.RoleReader))
	require.NoError(t, w.Remove(id, watcher.RoleReader))

	err = w.Remove(id, watcher.RoleReader)
	assert.Error(t, err)
}
