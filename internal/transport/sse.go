package transport

import (
	"bufio"
	"bytes"
	"io"
)

// maxFrameSize bounds one SSE line.
const maxFrameSize = 1 << 20

// frameReader splits a text/event-stream body into the data payloads of its
// events. Comments, ids and event names are skipped; multiple data lines of
// one event are joined with '\n'.
type frameReader struct {
	scanner *bufio.Scanner
	data    bytes.Buffer
}

func newFrameReader(r io.Reader) *frameReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), maxFrameSize)
	return &frameReader{scanner: s}
}

// Next returns the next event's data. It returns io.EOF when the stream ends.
func (f *frameReader) Next() ([]byte, error) {
	f.data.Reset()
	hasData := false
	for f.scanner.Scan() {
		line := f.scanner.Bytes()
		if len(line) == 0 {
			if hasData {
				return bytes.Clone(f.data.Bytes()), nil
			}
			continue
		}
		if line[0] == ':' {
			continue
		}
		field, value, _ := bytes.Cut(line, []byte{':'})
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte{' '})
		if hasData {
			f.data.WriteByte('\n')
		}
		f.data.Write(value)
		hasData = true
	}
	if err := f.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
