package counter

import (
	"fmt"

	"github.com/babblebase/filecount/internal/counter/memfile"
	"github.com/babblebase/filecount/internal/counter/memory"
	apperrors "github.com/babblebase/filecount/pkg/errors"
)

// MemoryStats describes the Engine's translation memory.
type MemoryStats struct {
	Loaded      bool   `json:"loaded"`
	Entries     int    `json:"entries"`
	Hasher      string `json:"hasher"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// SetMemory replaces the translation memory. A nil x removes it. x must use
// the Engine's hasher, and the Engine takes ownership of it.
func (e *Engine) SetMemory(x *memory.Index) error {
	if x != nil && x.Hasher().Name() != e.Hasher().Name() {
		return apperrors.Newf(apperrors.ErrInvalidInput,
			"memory uses hasher %s, counter uses %s", x.Hasher().Name(), e.Hasher().Name())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memory = x
	e.memoryChanged()
	return nil
}

// Remember adds text to the memory, creating an empty memory first if
// there is none.
func (e *Engine) Remember(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.memory == nil {
		e.memory = memory.NewWithHasher(e.Hasher())
	}
	e.memory.Add(text)
	e.memoryChanged()
}

// MergeMemory adds every entry of x to the memory, creating an empty
// memory first if there is none. x must use the Engine's hasher.
func (e *Engine) MergeMemory(x *memory.Index) error {
	if x == nil {
		return nil
	}
	if x.Hasher().Name() != e.Hasher().Name() {
		return apperrors.Newf(apperrors.ErrInvalidInput,
			"memory uses hasher %s, counter uses %s", x.Hasher().Name(), e.Hasher().Name())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.memory == nil {
		e.memory = memory.NewWithHasher(e.Hasher())
	}
	if err := e.memory.Merge(x); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err, "merging memory")
	}
	e.memoryChanged()
	return nil
}

// Forget removes text from the memory and reports whether it was there.
func (e *Engine) Forget(text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.memory == nil || !e.memory.Delete(text) {
		return false
	}
	e.memoryChanged()
	return true
}

// Remembers reports whether text is in the memory.
func (e *Engine) Remembers(text string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.memory != nil && e.memory.Contains(text)
}

func (e *Engine) MemoryStats() MemoryStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return MemoryStats{
		Loaded:      e.memory != nil,
		Entries:     e.memory.Len(),
		Hasher:      e.Hasher().Name(),
		Fingerprint: e.fingerprint,
	}
}

// Fingerprint identifies the current memory content. It is empty when there
// is no memory and changes whenever the memory does.
func (e *Engine) Fingerprint() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fingerprint
}

// SaveMemory writes the memory to path as a snapshot. With no memory an
// empty snapshot is written.
func (e *Engine) SaveMemory(path string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	x := e.memory
	if x == nil {
		x = memory.NewWithHasher(e.Hasher())
	}
	if err := memfile.Write(path, x); err != nil {
		return fmt.Errorf("saving memory: %w", err)
	}
	e.logger.Info("memory saved", "path", path, "entries", x.Len())
	return nil
}

// memoryChanged refreshes the cached fingerprint and the size gauge. The
// caller holds e.mu for writing.
func (e *Engine) memoryChanged() {
	if e.memory == nil {
		e.fingerprint = ""
	} else {
		e.fingerprint = fmt.Sprintf("%016x", e.memory.Fingerprint())
	}
	if e.metrics != nil {
		e.metrics.MemoryEntries.Set(float64(e.memory.Len()))
	}
}
