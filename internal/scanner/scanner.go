// Package scanner extracts lazy-loaded image URLs from the reader area of a
// chapter page.
//
// It does not parse HTML. The reader area is located with literal substring
// searches, and the closing tag is the first "</div>" after the opening tag,
// not the one that balances it. A nested div inside the reader area ends the
// region early.
package scanner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
	"unsafe"
)

// Markers searched for in the document.
const (
	RegionOpen    = `<div id="readerarea"`
	RegionClose   = `</div>`
	ImageOpen     = `<img`
	LazySrcAttr   = `data-lazy-src="`
	DataURIPrefix = `data:`
)

// ErrInvalidUTF8 is returned by Extract for input that is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("document is not valid UTF-8")

// Region returns the text between the end of the reader area's opening tag
// and the first closing div after it. found is false when the document has
// no reader area. An opening tag that is never closed with '>' yields an
// empty region.
func Region(html string) (region string, found bool) {
	start := strings.Index(html, RegionOpen)
	if start < 0 {
		return "", false
	}

	gt := strings.IndexByte(html[start:], '>')
	if gt < 0 {
		return "", true
	}
	body := start + gt + 1

	end := strings.Index(html[body:], RegionClose)
	if end < 0 {
		return html[body:], true
	}
	return html[body : body+end], true
}

// Scan returns the sorted, deduplicated data-lazy-src values of the image
// tags inside the reader area. The result is never nil.
func Scan(html string) []string {
	region, found := Region(html)
	if !found {
		return []string{}
	}

	refs := collect(region)
	slices.Sort(refs)
	return slices.Compact(refs)
}

func collect(region string) []string {
	refs := make([]string, 0, 16)

	pos := 0
	for pos < len(region) {
		i := strings.Index(region[pos:], ImageOpen)
		if i < 0 {
			break
		}
		start := pos + i

		end := strings.IndexByte(region[start:], '>')
		if end < 0 {
			// Unterminated tag: step past its start and keep scanning.
			pos = start + 1
			continue
		}
		tag := region[start : start+end+1]

		if ref, ok := lazySrc(tag); ok {
			refs = append(refs, ref)
		}
		pos = start + end + 1
	}

	return refs
}

// lazySrc returns the data-lazy-src value of a single tag, skipping empty
// values and inline data URIs.
func lazySrc(tag string) (string, bool) {
	i := strings.Index(tag, LazySrcAttr)
	if i < 0 {
		return "", false
	}
	value := tag[i+len(LazySrcAttr):]

	q := strings.IndexByte(value, '"')
	if q < 0 {
		return "", false
	}
	value = value[:q]

	if value == "" || strings.HasPrefix(value, DataURIPrefix) {
		return "", false
	}
	return value, true
}

// Encode serializes refs as a JSON array of strings without HTML escaping
// or a trailing newline. A nil or empty slice encodes as [].
func Encode(refs []string) ([]byte, error) {
	if refs == nil {
		refs = []string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(refs); err != nil {
		return nil, fmt.Errorf("encode image list: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Extract validates doc as UTF-8, scans it and returns the serialized
// result without a terminator. doc must not change until Extract returns;
// the result does not alias it.
func Extract(doc []byte) ([]byte, error) {
	if !utf8.Valid(doc) {
		return nil, ErrInvalidUTF8
	}
	// Scan only reads the document, and Encode copies what it keeps.
	return Encode(Scan(unsafe.String(unsafe.SliceData(doc), len(doc))))
}
