package memfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"slices"
	"time"

	"github.com/babblebase/filecount/internal/counter/hashment"
	"github.com/babblebase/filecount/internal/counter/memory"
	apperrors "github.com/babblebase/filecount/pkg/errors"
)

// Reader holds a validated snapshot in memory. It answers membership
// queries by binary search and never changes, so it is safe for concurrent
// use.
type Reader struct {
	filePath string
	header   Header
	ids      []hashment.ID
}

// OpenReader reads and validates the snapshot at path.
func OpenReader(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot file: %w", err)
	}
	header, ids, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return &Reader{filePath: path, header: header, ids: ids}, nil
}

func decode(data []byte) (Header, []hashment.ID, error) {
	if len(data) < HeaderSize+FooterSize {
		return Header{}, nil, apperrors.Newf(apperrors.ErrCorruptSnapshot, "file is %d bytes, shorter than header and footer", len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != MagicBytes {
		return Header{}, nil, apperrors.Newf(apperrors.ErrCorruptSnapshot, "bad magic bytes %x", magic)
	}
	header := Header{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(data[4:8]),
		Count:      binary.LittleEndian.Uint64(data[8:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(data[16:24])),
		DataOffset: int64(binary.LittleEndian.Uint64(data[24:32])),
		DataSize:   int64(binary.LittleEndian.Uint64(data[32:40])),
		Hasher:     string(bytes.TrimRight(data[40:64], "\x00")),
	}
	if header.Version != FormatVersion {
		return Header{}, nil, apperrors.Newf(apperrors.ErrCorruptSnapshot, "unsupported version %d", header.Version)
	}
	if header.Count > uint64(len(data)-HeaderSize-FooterSize)/8 {
		return Header{}, nil, apperrors.Newf(apperrors.ErrCorruptSnapshot, "count %d does not fit in %d bytes", header.Count, len(data))
	}
	if header.DataOffset != int64(HeaderSize) ||
		header.DataSize != int64(header.Count)*8 ||
		int64(len(data)) != header.DataOffset+header.DataSize+int64(FooterSize) {
		return Header{}, nil, apperrors.New(apperrors.ErrCorruptSnapshot, "layout does not match header")
	}

	body := data[header.DataOffset : header.DataOffset+header.DataSize]
	footer := data[len(data)-FooterSize:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(footer[0:4]) {
		return Header{}, nil, apperrors.New(apperrors.ErrCorruptSnapshot, "checksum mismatch")
	}
	if binary.LittleEndian.Uint64(footer[8:16]) != header.Count {
		return Header{}, nil, apperrors.New(apperrors.ErrCorruptSnapshot, "footer count does not match header")
	}

	ids := make([]hashment.ID, header.Count)
	for i := range ids {
		ids[i] = hashment.ID(binary.LittleEndian.Uint64(body[i*8:]))
		if i > 0 && ids[i] <= ids[i-1] {
			return Header{}, nil, apperrors.New(apperrors.ErrCorruptSnapshot, "identifiers are not strictly ascending")
		}
	}
	return header, ids, nil
}

func (r *Reader) Header() Header {
	return r.header
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) CreatedAt() time.Time {
	return time.Unix(r.header.CreatedAt, 0)
}

func (r *Reader) Len() int {
	return len(r.ids)
}

// ContainsID reports whether id is in the snapshot.
func (r *Reader) ContainsID(id hashment.ID) bool {
	if r == nil {
		return false
	}
	_, ok := slices.BinarySearch(r.ids, id)
	return ok
}

// Index builds a mutable Index from the snapshot. hasher must have the name
// recorded in the header; a nil hasher adopts the recorded one.
func (r *Reader) Index(hasher hashment.Hasher) (*memory.Index, error) {
	if hasher == nil {
		h, err := hashment.HasherByName(r.header.Hasher)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCorruptSnapshot, err, r.filePath)
		}
		hasher = h
	}
	if hasher.Name() != r.header.Hasher {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput,
			"snapshot %s was built with hasher %s, counter uses %s", r.filePath, r.header.Hasher, hasher.Name())
	}
	x := memory.NewWithHasher(hasher)
	for _, id := range r.ids {
		x.AddID(id)
	}
	return x, nil
}
