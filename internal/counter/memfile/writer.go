// Package memfile persists a translation memory as a compact binary
// snapshot, so a large TMX corpus is parsed once and reloaded cheaply.
//
// A snapshot is a 64-byte header, the sorted identifiers as little-endian
// uint64 values and a 32-byte footer carrying a CRC-32 of the identifiers.
package memfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/babblebase/filecount/internal/counter/memory"
)

// MagicBytes identifies a snapshot file ("FCMI").
const (
	MagicBytes    uint32 = 0x46434D49
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
	maxHasherName int    = 24
)

// Header is the 64-byte header written at the start of every snapshot.
type Header struct {
	Magic      uint32
	Version    uint32
	Count      uint64
	CreatedAt  int64
	DataOffset int64
	DataSize   int64
	Hasher     string
}

func (h Header) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint64(b[8:16], h.Count)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DataOffset))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.DataSize))
	copy(b[40:64], h.Hasher)
	return b
}

// Write atomically replaces path with a snapshot of x. It writes to a .tmp
// file first and renames on success. The caller must keep writers away from
// x until Write returns.
func Write(path string, x *memory.Index) error {
	name := x.Hasher().Name()
	if len(name) > maxHasherName {
		return fmt.Errorf("hasher name %q exceeds %d bytes", name, maxHasherName)
	}
	ids := x.IDs()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	header := Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		Count:      uint64(len(ids)),
		CreatedAt:  time.Now().Unix(),
		DataOffset: int64(HeaderSize),
		DataSize:   int64(len(ids)) * 8,
		Hasher:     name,
	}

	w := bufio.NewWriter(f)
	if _, err := w.Write(header.encode()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	crc := crc32.NewIEEE()
	var buf [8]byte
	for _, id := range ids {
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		crc.Write(buf[:])
		if _, err := w.Write(buf[:]); err != nil {
			return fmt.Errorf("writing identifiers: %w", err)
		}
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint64(footer[8:16], header.Count)
	binary.LittleEndian.PutUint64(footer[16:24], uint64(header.DataOffset))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(header.DataSize))
	if _, err := w.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing snapshot file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	return nil
}
