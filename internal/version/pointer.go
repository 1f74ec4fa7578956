package version

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/Rubentxu/code-context-graph/api"
	"golang.org/x/sys/unix"
)

// pointerSize is one page; the control block layout below must stay
// within it.
const pointerSize = 4096

const pointerMagic = 0x43434750 // 'CCGP'

// pointerBlock is the memory-mapped record of the last version this
// process observed the graph store converge on. It must match across
// reads/writes byte-for-byte, same constraint as a C struct overlay.
//
// This is a local fast-path cache only, not the system of record: the
// authoritative apply marker lives in the graph store itself under
// __ccg_apply_marker (spec.md §6), written by the Graph Writer as the
// last step of applying a plan. This pointer lets a restarting process
// skip a graph-store round trip in the common case where nothing
// crashed between the last plan and its marker write.
type pointerBlock struct {
	Magic      uint32
	_          uint32 // alignment padding
	Generation uint64 // atomic; bumped on every Set
	VersionID  [64]byte
	RootHash   [32]byte
	Padding    [pointerSize - 4 - 4 - 8 - 64 - 32]byte
}

// Pointer is a crash-safe mmap'd cache of "the last version this host
// believes was fully applied", adapted from the teacher's
// Controller/Block double-buffer pattern (internal/control/control.go).
type Pointer struct {
	file *os.File
	data []byte
	ptr  *pointerBlock
}

// OpenPointer opens or creates the pointer file at path.
func OpenPointer(path string) (*Pointer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("version: mkdir pointer dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("version: open pointer file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("version: stat pointer file: %w", err)
	}
	if info.Size() < pointerSize {
		if err := f.Truncate(pointerSize); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("version: truncate pointer file: %w", err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, pointerSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("version: mmap pointer file: %w", err)
	}

	ptr := (*pointerBlock)(unsafe.Pointer(&data[0]))
	if ptr.Magic == 0 {
		ptr.Magic = pointerMagic
	} else if ptr.Magic != pointerMagic {
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("version: invalid pointer magic %x", ptr.Magic)
	}

	return &Pointer{file: f, data: data, ptr: ptr}, nil
}

// Current returns the last version id/root hash observed, and the
// generation counter (0 if the pointer has never been set).
func (p *Pointer) Current() (versionID string, rootHash api.Hash, generation uint64) {
	generation = atomic.LoadUint64(&p.ptr.Generation)
	if generation == 0 {
		return "", api.Hash{}, 0
	}
	b := p.ptr.VersionID[:]
	n := len(b)
	for i, v := range b {
		if v == 0 {
			n = i
			break
		}
	}
	return string(b[:n]), p.ptr.RootHash, generation
}

// Set records versionID/rootHash as applied, bumping the generation.
// The new generation is the last field written so a reader racing the
// write either sees the old, fully-consistent record or the new one.
func (p *Pointer) Set(versionID string, rootHash api.Hash) error {
	if len(versionID) >= len(p.ptr.VersionID) {
		return fmt.Errorf("version: version id %q too long for pointer record", versionID)
	}
	copy(p.ptr.VersionID[:], versionID)
	p.ptr.VersionID[len(versionID)] = 0
	p.ptr.RootHash = rootHash
	atomic.AddUint64(&p.ptr.Generation, 1)
	return nil
}

// Close unmaps and closes the pointer file.
func (p *Pointer) Close() error {
	if err := unix.Munmap(p.data); err != nil {
		return err
	}
	return p.file.Close()
}
