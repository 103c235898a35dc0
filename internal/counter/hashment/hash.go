package hashment

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// ID identifies a unit of text by its content. Units with equal IDs are
// treated as equal text. IDs are 64-bit xxHash digests; two distinct texts
// collide with probability around 2^-64 and such collisions are accepted.
type ID uint64

func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// Hasher maps text to an ID. Hash must be deterministic within and across
// processes, since IDs are persisted in memory snapshots under Name.
type Hasher interface {
	Hash(text string) ID
	Name() string
}

// Normalization selects how text is canonicalised before hashing.
type Normalization int

const (
	// Exact hashes the raw bytes.
	Exact Normalization = iota
	// Trim ignores leading and trailing whitespace, so a sentence hashes the
	// same whether or not the whitespace after it is attached.
	Trim
	// NFC trims and then applies Unicode canonical composition.
	NFC
)

// ParseNormalization maps a configuration value to a Normalization.
func ParseNormalization(s string) (Normalization, error) {
	switch s {
	case "none", "exact":
		return Exact, nil
	case "", "trim":
		return Trim, nil
	case "nfc":
		return NFC, nil
	default:
		return Exact, fmt.Errorf("unknown normalization %q", s)
	}
}

// Digest is the xxHash64 Hasher.
type Digest struct {
	Normalization Normalization
}

var _ Hasher = Digest{}

func (d Digest) Hash(text string) ID {
	switch d.Normalization {
	case Trim:
		text = strings.TrimSpace(text)
	case NFC:
		text = norm.NFC.String(strings.TrimSpace(text))
	}
	return ID(xxhash.Sum64String(text))
}

func (d Digest) Name() string {
	switch d.Normalization {
	case Trim:
		return "xxh64+trim"
	case NFC:
		return "xxh64+nfc"
	default:
		return "xxh64"
	}
}

// DefaultHasher is the Hasher used when none is configured.
func DefaultHasher() Hasher {
	return Digest{Normalization: Trim}
}

// Hash identifies text with the default Hasher.
func Hash(text string) ID {
	return DefaultHasher().Hash(text)
}

// HasherByName returns the Hasher that reports the given Name.
func HasherByName(name string) (Hasher, error) {
	for _, n := range []Normalization{Exact, Trim, NFC} {
		if d := (Digest{Normalization: n}); d.Name() == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("unknown hasher %q", name)
}
