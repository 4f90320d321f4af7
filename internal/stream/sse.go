package stream

import (
	"bufio"
	"bytes"
	"io"
)

// maxEventLine bounds a single SSE line; image payloads can be large.
const maxEventLine = 4 << 20

// eventReader reads the data field of Server-Sent Events.
type eventReader struct {
	reader *bufio.Reader
}

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{reader: bufio.NewReaderSize(r, 64*1024)}
}

// ReadData returns the joined data lines of the next event, or io.EOF.
func (e *eventReader) ReadData() ([]byte, error) {
	var dataLines [][]byte
	for {
		line, err := e.readLine()
		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			return nil, err
		}

		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		// Other fields (event:, id:, retry:, comments) carry nothing we use.
		if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
	}
}

func (e *eventReader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := e.reader.ReadLine()
		if err != nil {
			return nil, err
		}
		if len(line)+len(chunk) > maxEventLine {
			return nil, bufio.ErrTooLong
		}
		line = append(line, chunk...)
		if !isPrefix {
			return line, nil
		}
	}
}
