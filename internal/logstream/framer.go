package logstream

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	frameDelimiter = "\n\n"
	dataPrefix     = "data: "
)

// Framer turns raw stream chunks into frame payloads. Chunks may split a
// multi-byte character or a frame delimiter anywhere; the incomplete tail is
// carried over to the next Push.
type Framer struct {
	decoder transform.Transformer
	pending []byte
	scratch []byte
	buffer  strings.Builder
}

// NewFramer returns a Framer with an empty buffer.
func NewFramer() *Framer {
	return &Framer{
		decoder: unicode.UTF8.NewDecoder(),
		scratch: make([]byte, 4096),
	}
}

// Push consumes chunk and returns the payloads of every frame it completed.
func (f *Framer) Push(chunk []byte) []string {
	f.buffer.WriteString(f.decode(chunk))

	text := f.buffer.String()
	segments := strings.Split(text, frameDelimiter)
	rest := segments[len(segments)-1]
	f.buffer.Reset()
	f.buffer.WriteString(rest)

	var payloads []string
	for _, segment := range segments[:len(segments)-1] {
		if payload, ok := framePayload(segment); ok {
			payloads = append(payloads, payload)
		}
	}
	return payloads
}

// Buffered returns the text held back waiting for a delimiter.
func (f *Framer) Buffered() string {
	return f.buffer.String()
}

func (f *Framer) decode(chunk []byte) string {
	src := append(f.pending, chunk...)
	var out strings.Builder
	for len(src) > 0 {
		nDst, nSrc, err := f.decoder.Transform(f.scratch, src, false)
		out.Write(f.scratch[:nDst])
		src = src[nSrc:]
		if errors.Is(err, transform.ErrShortDst) && (nDst > 0 || nSrc > 0) {
			continue
		}
		// ErrShortSrc: an incomplete rune waits for the next chunk.
		break
	}
	f.pending = append(f.pending[:0], src...)
	return out.String()
}

func framePayload(segment string) (string, bool) {
	line := strings.TrimSpace(segment)
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == "" {
		return "", false
	}
	return payload, true
}
