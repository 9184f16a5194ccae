package uuidv7

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/google/uuid"
)

// Generator builds UUIDv7 values (RFC 9562, millisecond precision) from an
// injectable clock and entropy source.
type Generator struct {
	Now  func() time.Time
	Rand io.Reader
}

// New returns a UUIDv7 from the wall clock and crypto/rand.
func New() (uuid.UUID, error) {
	return Generator{}.New()
}

// NewString returns a UUIDv7 string. It is the default record and export id
// generator.
func NewString() (string, error) {
	return Generator{}.NewString()
}

func (g Generator) New() (uuid.UUID, error) {
	now, r := time.Now, io.Reader(rand.Reader)
	if g.Now != nil {
		now = g.Now
	}
	if g.Rand != nil {
		r = g.Rand
	}

	var b [16]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return uuid.Nil, err
	}

	ms := uint64(now().UnixMilli())
	b[0] = byte(ms >> 40)
	b[1] = byte(ms >> 32)
	b[2] = byte(ms >> 24)
	b[3] = byte(ms >> 16)
	b[4] = byte(ms >> 8)
	b[5] = byte(ms)

	// Version 7 (0b0111)
	b[6] = (b[6] & 0x0f) | 0x70
	// Variant RFC 4122 (0b10xxxxxx)
	b[8] = (b[8] & 0x3f) | 0x80

	return uuid.FromBytes(b[:])
}

func (g Generator) NewString() (string, error) {
	u, err := g.New()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
