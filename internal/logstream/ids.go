package logstream

import (
	"crypto/rand"
	"io"
	mrand "math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces identifiers for entries the server sent without one.
type IDGenerator interface {
	NewID() string
}

// SecureIDs generates random UUIDv4 values from a cryptographic source.
type SecureIDs struct {
	Reader io.Reader
}

// Generate returns a new UUID or the error reported by the random source.
func (s SecureIDs) Generate() (string, error) {
	r := s.Reader
	if r == nil {
		r = rand.Reader
	}
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// FallbackIDs formats UUIDv4-shaped strings from a pseudo-random source.
type FallbackIDs struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewFallbackIDs returns a formatter driven by src, or by the global source
// when src is nil.
func NewFallbackIDs(src mrand.Source) *FallbackIDs {
	f := &FallbackIDs{}
	if src != nil {
		f.rng = mrand.New(src)
	}
	return f
}

const uuidTemplate = "xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx"

// NewID fills the v4 template: x is any hex digit, y is one of 8, 9, a or b.
func (f *FallbackIDs) NewID() string {
	const hex = "0123456789abcdef"
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []byte(uuidTemplate)
	for i, c := range out {
		switch c {
		case 'x':
			out[i] = hex[f.intN(16)]
		case 'y':
			out[i] = hex[f.intN(16)&0x3|0x8]
		}
	}
	return string(out)
}

func (f *FallbackIDs) intN(n int) int {
	if f.rng != nil {
		return f.rng.IntN(n)
	}
	return mrand.IntN(n)
}

type preferSecure struct {
	secure   SecureIDs
	fallback *FallbackIDs
}

// NewIDGenerator prefers SecureIDs backed by reader (crypto/rand when nil)
// and drops to the fallback formatter whenever the secure source fails.
func NewIDGenerator(reader io.Reader) IDGenerator {
	return &preferSecure{
		secure:   SecureIDs{Reader: reader},
		fallback: NewFallbackIDs(nil),
	}
}

func (p *preferSecure) NewID() string {
	if id, err := p.secure.Generate(); err == nil {
		return id
	}
	return p.fallback.NewID()
}
