// Package instructions streams prompt text out of newline-delimited JSON files.
//
// Each non-blank line must be a JSON object with an "instruction" key. A line
// whose instruction is null is skipped. Every call to Read opens the file
// afresh, so concurrent readers each get their own full pass.
package instructions

import (
	"bufio"
	"errors"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// Field is the JSON key holding the prompt text on each line.
const Field = "instruction"

// maxLineSize bounds a single NDJSON line.
const maxLineSize = 16 * 1024 * 1024

var (
	ErrMalformed  = errors.New("line is not valid JSON")
	ErrNotObject  = errors.New("line is not a JSON object")
	ErrMissingKey = errors.New(`missing "instruction" key`)
	ErrNotString  = errors.New(`"instruction" is not a string`)
)

// DataError reports a problem with the instruction file. Line is 1-based and
// zero when the file itself could not be opened or read.
type DataError struct {
	Path string
	Line int
	Err  error
}

func (e *DataError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("data file %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("data file %s: %v", e.Path, e.Err)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// Read returns a single-pass sequence over the instructions in path. The file
// is opened when iteration starts and closed when it ends, fails, or the
// consumer stops early. After yielding an error the sequence stops.
func Read(path string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		file, err := os.Open(path)
		if err != nil {
			yield("", &DataError{Path: path, Err: err})
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}
			text, ok, err := parseLine(line)
			if err != nil {
				yield("", &DataError{Path: path, Line: lineNo, Err: err})
				return
			}
			if !ok {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", &DataError{Path: path, Line: lineNo + 1, Err: err})
		}
	}
}

// Count walks one full pass and returns how many instructions it yields.
func Count(path string) (int, error) {
	n := 0
	for _, err := range Read(path) {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// parseLine extracts the instruction from one line. ok is false when the
// instruction is null and the line should be skipped.
func parseLine(line string) (text string, ok bool, err error) {
	if !gjson.Valid(line) {
		return "", false, ErrMalformed
	}
	doc := gjson.Parse(line)
	if !doc.IsObject() {
		return "", false, ErrNotObject
	}
	value := doc.Get(Field)
	switch {
	case !value.Exists():
		return "", false, ErrMissingKey
	case value.Type == gjson.Null:
		return "", false, nil
	case value.Type != gjson.String:
		return "", false, ErrNotString
	}
	return value.String(), true, nil
}
