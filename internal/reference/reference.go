// Package reference re-extracts chapter images with a real HTML parser so
// guest output can be cross-checked.
//
// The parser balances nested divs inside the reader area and decodes
// character references in attribute values, so its output can legitimately
// differ from the guest's literal scan. Differences are reported, not
// treated as errors.
package reference

import (
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extract returns the sorted, deduplicated data-lazy-src values of the
// reader area's images. The result is never nil.
func Extract(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	refs := []string{}
	doc.Find("#readerarea").First().Find("img[data-lazy-src]").Each(func(_ int, img *goquery.Selection) {
		v, _ := img.Attr("data-lazy-src")
		if v == "" || strings.HasPrefix(v, "data:") {
			return
		}
		refs = append(refs, v)
	})

	slices.Sort(refs)
	return slices.Compact(refs), nil
}

// Report is the outcome of comparing guest output against the reference.
type Report struct {
	// Missing holds URLs the reference found but the guest did not.
	Missing []string
	// Extra holds URLs the guest returned but the reference did not.
	Extra []string
}

// Match reports whether both sides agree.
func (r *Report) Match() bool {
	return len(r.Missing) == 0 && len(r.Extra) == 0
}

// Compare extracts the reference list from html and diffs guest against it.
func Compare(html string, guest []string) (*Report, error) {
	ref, err := Extract(html)
	if err != nil {
		return nil, err
	}

	missing, extra := Diff(guest, ref)
	return &Report{Missing: missing, Extra: extra}, nil
}

// Diff returns the values of ref absent from guest and the values of guest
// absent from ref, each sorted.
func Diff(guest, ref []string) (missing, extra []string) {
	inGuest := make(map[string]struct{}, len(guest))
	for _, g := range guest {
		inGuest[g] = struct{}{}
	}
	inRef := make(map[string]struct{}, len(ref))
	for _, r := range ref {
		inRef[r] = struct{}{}
	}

	missing = []string{}
	for r := range inRef {
		if _, ok := inGuest[r]; !ok {
			missing = append(missing, r)
		}
	}
	extra = []string{}
	for g := range inGuest {
		if _, ok := inRef[g]; !ok {
			extra = append(extra, g)
		}
	}

	slices.Sort(missing)
	slices.Sort(extra)
	return missing, extra
}
