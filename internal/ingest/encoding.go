package ingest

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

const charsetUTF8 = "UTF-8"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Detected is the outcome of charset detection.
type Detected struct {
	Charset    string
	Confidence int
	Encoding   encoding.Encoding
}

// DetectEncoding guesses the charset of raw from its first sampleSize bytes.
func DetectEncoding(raw []byte, sampleSize, minConfidence int) (Detected, error) {
	if len(raw) == 0 {
		return Detected{}, &EncodingError{Err: errors.New("input is empty")}
	}
	sample := raw
	truncated := false
	if sampleSize > 0 && len(sample) > sampleSize {
		sample = sample[:sampleSize]
		truncated = true
	}
	// NUL bytes point at UTF-16 without a BOM, which is also valid UTF-8.
	if bytes.HasPrefix(sample, utf8BOM) || (bytes.IndexByte(sample, 0) < 0 && validUTF8(sample, truncated)) {
		return Detected{Charset: charsetUTF8, Confidence: 100, Encoding: unicode.UTF8BOM}, nil
	}

	result, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil {
		return Detected{}, &EncodingError{Err: err}
	}
	if result.Confidence < minConfidence {
		return Detected{}, &EncodingError{Charset: result.Charset, Confidence: result.Confidence}
	}
	enc, err := lookupEncoding(result.Charset)
	if err != nil {
		return Detected{}, &EncodingError{Charset: result.Charset, Confidence: result.Confidence, Err: err}
	}
	return Detected{Charset: result.Charset, Confidence: result.Confidence, Encoding: enc}, nil
}

// validUTF8 reports whether sample is UTF-8. A truncated sample may end
// with an incomplete rune.
func validUTF8(sample []byte, truncated bool) bool {
	if utf8.Valid(sample) {
		return true
	}
	if !truncated {
		return false
	}
	for cut := 1; cut < utf8.UTFMax && cut < len(sample); cut++ {
		head, tail := sample[:len(sample)-cut], sample[len(sample)-cut:]
		if !utf8.Valid(head) {
			continue
		}
		return utf8.RuneStart(tail[0]) && !utf8.FullRune(tail)
	}
	return false
}

// ICU names that the WHATWG index spells differently.
var charsetAliases = map[string]string{
	"gb-18030": "gb18030",
	"utf-32be": "",
	"utf-32le": "",
}

func lookupEncoding(charset string) (encoding.Encoding, error) {
	name := strings.ToLower(charset)
	if name == "utf-8" {
		return unicode.UTF8BOM, nil
	}
	if alias, ok := charsetAliases[name]; ok {
		if alias == "" {
			return nil, errors.New("no decoder available")
		}
		name = alias
	}
	return htmlindex.Get(name)
}
