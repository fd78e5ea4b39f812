package adapters

import (
	"bytes"
	"io"
)

const replaceChunkSize = 32 * 1024

// ReplaceReader substitutes every occurrence of old with new while streaming.
// At most len(old)-1 bytes are held back between reads, so the body is never
// fully buffered.
type ReplaceReader struct {
	src      io.ReadCloser
	old, new []byte
	in       []byte // unscanned tail that may start a match
	out      []byte // ready for the caller
	buf      []byte
	err      error
}

// NewReplaceReader wraps src. An empty old returns src unchanged.
func NewReplaceReader(src io.ReadCloser, old, new string) io.ReadCloser {
	if old == "" {
		return src
	}
	return &ReplaceReader{
		src: src,
		old: []byte(old),
		new: []byte(new),
		buf: make([]byte, replaceChunkSize),
	}
}

func (r *ReplaceReader) Read(p []byte) (int, error) {
	for len(r.out) == 0 {
		if r.err != nil {
			if len(r.in) > 0 {
				r.scan(true)
				continue
			}
			return 0, r.err
		}
		n, err := r.src.Read(r.buf)
		r.in = append(r.in, r.buf[:n]...)
		r.err = err
		r.scan(err != nil)
	}
	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

// scan moves everything that cannot be part of a future match from in to out.
func (r *ReplaceReader) scan(final bool) {
	for {
		i := bytes.Index(r.in, r.old)
		if i < 0 {
			break
		}
		r.out = append(r.out, r.in[:i]...)
		r.out = append(r.out, r.new...)
		r.in = r.in[i+len(r.old):]
	}
	if final {
		r.out = append(r.out, r.in...)
		r.in = nil
		return
	}
	if keep := len(r.old) - 1; len(r.in) > keep {
		cut := len(r.in) - keep
		r.out = append(r.out, r.in[:cut]...)
		r.in = append([]byte(nil), r.in[cut:]...)
	}
}

func (r *ReplaceReader) Close() error {
	return r.src.Close()
}
