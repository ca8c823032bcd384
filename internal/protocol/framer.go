package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize caps a single request or response line. Payloads are
// developer data and can be large; bufio's 64KiB default is not enough.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge reports an inbound line over MaxFrameSize. The
// oversized line has been fully consumed when this is returned, so the
// caller can answer it with a parse-error frame and keep reading.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Framer reads request frames from one stream and writes response
// frames to another. It owns framing only; interpretation of methods
// belongs to the dispatcher.
//
// Writes are serialized by a mutex so that the worker's single response
// stream can also carry the initial ready notification safely.
type Framer struct {
	r  *bufio.Reader
	w  io.Writer
	mu sync.Mutex
}

// NewFramer creates a framer over an inbound and an outbound stream.
func NewFramer(r io.Reader, w io.Writer) *Framer {
	return &Framer{r: bufio.NewReaderSize(r, 64*1024), w: w}
}

// ReadLine returns the next non-empty line from the inbound stream.
// io.EOF signals an orderly end of input (the host closed the pipe);
// ErrFrameTooLarge signals one discarded oversized line, with the
// stream still usable.
func (f *Framer) ReadLine() ([]byte, error) {
	for {
		line, err := f.readLine()
		if err != nil {
			return nil, err
		}
		if len(trimSpace(line)) == 0 {
			continue
		}
		return line, nil
	}
}

// readLine accumulates one newline-terminated line. An oversized line
// is drained to its newline before ErrFrameTooLarge is returned, so
// the next read starts on the following line.
func (f *Framer) readLine() ([]byte, error) {
	var line []byte
	oversized := false
	for {
		chunk, err := f.r.ReadSlice('\n')
		if !oversized {
			line = append(line, chunk...)
			// Allow the line terminator beyond the cap; content is
			// checked after trimming.
			if len(trimNewline(line)) > MaxFrameSize {
				oversized = true
				line = nil
			}
		}

		switch {
		case err == nil:
			if oversized {
				return nil, ErrFrameTooLarge
			}
			return trimNewline(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if oversized {
				return nil, ErrFrameTooLarge
			}
			if line = trimNewline(line); len(line) == 0 {
				return nil, io.EOF
			}
			return line, nil
		default:
			return nil, err
		}
	}
}

func trimNewline(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

// ParseRequest decodes one line into a request frame.
func ParseRequest(line []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("parse request frame: %w", err)
	}
	return &req, nil
}

// WriteRequest writes one request frame followed by a newline. The
// host side of the pipe uses this; workers only ever read requests.
func (f *Framer) WriteRequest(req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return f.writeLine(data)
}

// WriteResponse writes one response frame followed by a newline.
func (f *Framer) WriteResponse(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		// A response that cannot be serialized must still produce a
		// frame, or the host would hang waiting for the correlated id.
		fallback := NewErrorResponse(resp.ID, CodeInternalError, fmt.Sprintf("marshal response: %v", err))
		if data, err = json.Marshal(fallback); err != nil {
			return fmt.Errorf("marshal fallback response: %w", err)
		}
	}
	return f.writeLine(data)
}

// WriteReady writes the one-time ready notification.
func (f *Framer) WriteReady() error {
	data, err := json.Marshal(Ready{Type: ReadyType})
	if err != nil {
		return fmt.Errorf("marshal ready: %w", err)
	}
	return f.writeLine(data)
}

func (f *Framer) writeLine(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func trimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\t' || b[start] == '\r') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t' || b[end-1] == '\r') {
		end--
	}
	return b[start:end]
}
