package ffmpeg

import (
	"bufio"
	"io"
	"iter"
)

const maxLineBytes = 1024 * 1024

func isLineBreak(b byte) bool { return b == '\n' || b == '\r' }

// splitByNewlineOrCR splits on either \n or \r so carriage-return progress updates
// arrive as separate lines. Runs of separators are consumed together, so no empty
// token is ever returned.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && isLineBreak(data[start]) {
		start++
	}
	for i := start; i < len(data); i++ {
		if isLineBreak(data[i]) {
			return i + 1, data[start:i], nil
		}
	}
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	// only separators so far: drop them and ask for more
	return start, nil, nil
}

// Lines yields the non-empty lines of r. When reading stops on anything but EOF, the
// last pair carries the error and an empty line.
func Lines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				if !yield(line, nil) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", err)
		}
	}
}
