//go:build windows

package shm

import "fmt"

// Segment is unimplemented on Windows. MXL's shared-memory domain model
// depends on POSIX advisory flock semantics and mmap'd inode identity;
// Windows support would need a distinct implementation built on
// CreateFileMapping/LockFileEx and is out of scope (spec §1, out of scope).
type Segment struct{}

var errUnsupported = fmt.Errorf("mxl: shared-memory segments are not supported on this platform")

func CreateExclusive(path string, size int) (*Segment, error) { return nil, errUnsupported }
func OpenReadWrite(path string) (*Segment, error)              { return nil, errUnsupported }
func OpenReadOnly(path string) (*Segment, error)                { return nil, errUnsupported }
func CreatePlain(path string, size int) (*Segment, error)       { return nil, errUnsupported }
func OpenPlain(path string) (*Segment, error)                   { return nil, errUnsupported }
func OpenPlainReadOnly(path string) (*Segment, error)           { return nil, errUnsupported }
func CurrentInode(path string) (uint64, error)                  { return 0, errUnsupported }
func Touch(path string) error                                   { return errUnsupported }

func (s *Segment) Bytes() []byte            { return nil }
func (s *Segment) Inode() uint64            { return 0 }
func (s *Segment) IsExclusive() bool        { return false }
func (s *Segment) Downgrade() error         { return errUnsupported }
func (s *Segment) MakeExclusive() (bool, error) { return false, errUnsupported }
func (s *Segment) Close() error             { return nil }
