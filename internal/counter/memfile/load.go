package memfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/babblebase/filecount/internal/counter/hashment"
	"github.com/babblebase/filecount/internal/counter/memory"
)

// Load reads a translation memory from path, which may hold either a
// snapshot written by Write or a TMX document. The kind is decided by the
// file's leading bytes, not its extension.
func Load(path string, hasher hashment.Hasher) (*memory.Index, error) {
	logger := slog.Default().With("component", "memfile", "path", path)
	start := time.Now()

	snapshot, err := IsSnapshot(path)
	if err != nil {
		return nil, err
	}

	var x *memory.Index
	if snapshot {
		r, err := OpenReader(path)
		if err != nil {
			return nil, err
		}
		x, err = r.Index(hasher)
		if err != nil {
			return nil, err
		}
		logger.Info("memory snapshot loaded",
			"entries", x.Len(),
			"hasher", r.Header().Hasher,
			"created_at", r.CreatedAt(),
			"duration", time.Since(start),
		)
		return x, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening memory corpus: %w", err)
	}
	defer f.Close()
	x, err = memory.ParseTMX(bufio.NewReaderSize(f, 64<<10), hasher)
	if err != nil {
		return nil, fmt.Errorf("loading memory corpus %s: %w", path, err)
	}
	logger.Info("memory corpus loaded",
		"entries", x.Len(),
		"hasher", x.Hasher().Name(),
		"duration", time.Since(start),
	)
	return x, nil
}

// IsSnapshot reports whether the file at path starts with the snapshot magic.
func IsSnapshot(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("opening memory file: %w", err)
	}
	defer f.Close()
	var magic [4]byte
	n, err := f.Read(magic[:])
	if n < len(magic) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading memory file: %w", err)
	}
	return binary.LittleEndian.Uint32(magic[:]) == MagicBytes, nil
}
