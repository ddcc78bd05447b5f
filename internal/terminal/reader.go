package terminal

import (
	"bufio"
	"io"
	"strings"
)

// Reader collects multiline user messages from the terminal. A
// message ends at the first blank line; Ctrl-D ends input as well. An
// empty message is the end-of-input signal and is reported as io.EOF.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps the given input source, normally os.Stdin.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: scanner}
}

// ReadMessage returns the next message, lines joined with newlines.
func (r *Reader) ReadMessage() (string, error) {
	var lines []string
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", io.EOF
	}
	return strings.Join(lines, "\n"), nil
}
