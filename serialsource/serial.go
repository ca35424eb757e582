// Package serialsource captures blackbox log data from a character device:
// it opens a serial port and refills a bounded buffer on demand. Parse
// needs a session's complete byte range up front, so this package does not
// plug a live port directly into the bit-level stream reader; instead
// ReadAll drains a Source into one growing slice that is handed to
// blackbox.OpenStream once the port goes quiet. OpenStream, not Open: a
// capture is a single session spanning the whole window and may not begin
// on the start-of-log marker.
package serialsource

import (
	"context"
	"io"

	serial "github.com/tarm/goserial"

	"github.com/betaflight/blackbox-go/blackbox"
)

// Source refills a bounded buffer from a serial port on demand.
type Source struct {
	port io.ReadWriteCloser
	buf  []byte
	n    int // valid bytes currently in buf[:n]
}

// Open starts a serial connection at devicePath/baud.
func Open(devicePath string, baud int) (*Source, error) {
	port, err := serial.OpenPort(&serial.Config{Name: devicePath, Baud: baud})
	if err != nil {
		return nil, err
	}
	return newSource(port), nil
}

func newSource(port io.ReadWriteCloser) *Source {
	return &Source{port: port, buf: make([]byte, blackbox.SerialBufLen)}
}

// Refill drops the first consumed bytes the caller has already processed,
// shifts any remaining unread bytes to the front, then performs one blocking
// read to top the buffer back up, returning the valid window. consumed must
// not exceed the length of the slice previously returned by Refill. Refill
// propagates io.EOF from the underlying port unchanged, the same as
// io.Reader, rather than swallowing it: a closed port is the caller's signal
// to stop driving it.
func (s *Source) Refill(consumed int) ([]byte, error) {
	if consumed > 0 {
		if consumed > s.n {
			consumed = s.n
		}
		copy(s.buf, s.buf[consumed:s.n])
		s.n -= consumed
	}

	nr, err := s.port.Read(s.buf[s.n:])
	s.n += nr
	if err != nil {
		return s.buf[:s.n], err
	}
	return s.buf[:s.n], nil
}

// ReadAll drives Refill in a loop, accumulating every byte the port
// produces into a single slice suitable for blackbox.OpenStream, until the
// port reports io.EOF, a read error occurs, or ctx is cancelled.
func ReadAll(ctx context.Context, s *Source) ([]byte, error) {
	var out []byte
	consumed := 0
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		window, err := s.Refill(consumed)
		out = append(out, window...)
		consumed = len(window)

		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		if len(window) == 0 {
			return out, nil
		}
	}
}

// Close releases the underlying serial port.
func (s *Source) Close() error {
	return s.port.Close()
}
