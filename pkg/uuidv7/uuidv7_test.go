package uuidv7

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestNew(t *testing.T) {
	u, err := New()
	if err != nil {
		t.Fatalf("expected nil err, got %v", err)
	}
	if u.Version() != 7 {
		t.Fatalf("expected version 7, got %d", u.Version())
	}
	if u.Variant() != uuid.RFC4122 {
		t.Fatalf("expected RFC4122 variant, got %v", u.Variant())
	}
}

func TestNewString(t *testing.T) {
	got, err := NewString()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("got=%q err=%v", got, err)
	}
}

func TestGenerator_TimeOrdered(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	earlier := Generator{Now: func() time.Time { return base }, Rand: bytes.NewReader(bytes.Repeat([]byte{0xff}, 16))}
	later := Generator{Now: func() time.Time { return base.Add(time.Millisecond) }, Rand: bytes.NewReader(make([]byte, 16))}

	a, err := earlier.NewString()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	b, err := later.NewString()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if strings.Compare(a, b) >= 0 {
		t.Fatalf("expected %s < %s", a, b)
	}

	if !strings.HasPrefix(strings.ReplaceAll(a, "-", ""), "019b7ca98c88") {
		t.Fatalf("unexpected timestamp prefix: %s", a)
	}
}

func TestGenerator_RandError(t *testing.T) {
	g := Generator{Rand: errReader{}}
	if _, err := g.New(); err == nil {
		t.Fatal("expected error")
	}
	if _, err := g.NewString(); err == nil {
		t.Fatal("expected error")
	}
}
