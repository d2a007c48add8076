package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds. Typed errors below unwrap to them.
var (
	ErrEncoding = errors.New("unable to detect file encoding")
	ErrSchema   = errors.New("required columns missing")
)

// EncodingError reports that the input could not be confidently decoded as text.
type EncodingError struct {
	Charset    string
	Confidence int
	Err        error
}

func (e *EncodingError) Error() string {
	switch {
	case e.Charset == "" && e.Err != nil:
		return fmt.Sprintf("%v: %v", ErrEncoding, e.Err)
	case e.Charset == "":
		return ErrEncoding.Error()
	case e.Err != nil:
		return fmt.Sprintf("%v: %s (confidence %d): %v", ErrEncoding, e.Charset, e.Confidence, e.Err)
	default:
		return fmt.Sprintf("%v: best guess %s has confidence %d", ErrEncoding, e.Charset, e.Confidence)
	}
}

// Unwrap allows errors.Is(err, ErrEncoding).
func (e *EncodingError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrEncoding, e.Err}
	}
	return []error{ErrEncoding}
}

// SchemaError reports required columns that are absent from the header row.
type SchemaError struct {
	Missing []string
	Found   []string
}

func (e *SchemaError) Error() string {
	lines := []string{
		fmt.Sprintf("the file must contain the columns: %s", quoteAll(e.Missing)),
	}
	if len(e.Found) == 0 {
		lines = append(lines, "columns found in the file: (none)")
	} else {
		lines = append(lines, fmt.Sprintf("columns found in the file: %s", quoteAll(e.Found)))
	}
	return strings.Join(lines, "\n")
}

// Unwrap allows errors.Is(err, ErrSchema).
func (e *SchemaError) Unwrap() error {
	return ErrSchema
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ", ")
}
