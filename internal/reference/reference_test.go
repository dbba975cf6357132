package reference

import (
	"slices"
	"testing"

	"github.com/woxQAQ/readerscan/internal/scanner"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []string
	}{
		{
			name: "basic",
			html: `<div id="readerarea"><img data-lazy-src="b.jpg"><img data-lazy-src="a.jpg"></div>`,
			want: []string{"a.jpg", "b.jpg"},
		},
		{
			name: "no reader area",
			html: `<div><img data-lazy-src="a.jpg"></div>`,
			want: []string{},
		},
		{
			name: "filters data uris and empty values",
			html: `<div id="readerarea"><img data-lazy-src="data:image/png;base64,xx"><img data-lazy-src=""><img data-lazy-src="ok.jpg"></div>`,
			want: []string{"ok.jpg"},
		},
		{
			name: "deduplicates",
			html: `<div id="readerarea"><img data-lazy-src="a.jpg"><img data-lazy-src="a.jpg"></div>`,
			want: []string{"a.jpg"},
		},
		{
			name: "ignores images outside",
			html: `<img data-lazy-src="out.jpg"><div id="readerarea"><img data-lazy-src="in.jpg"></div><img data-lazy-src="after.jpg">`,
			want: []string{"in.jpg"},
		},
		{
			name: "nested div",
			html: `<div id="readerarea"><div><img data-lazy-src="a.jpg"></div><img data-lazy-src="b.jpg"></div>`,
			want: []string{"a.jpg", "b.jpg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.html)
			if err != nil {
				t.Fatalf("Extract() failed: %v", err)
			}
			if got == nil {
				t.Fatal("Extract() should never return nil")
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Extract() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiff(t *testing.T) {
	missing, extra := Diff(
		[]string{"a.jpg", "c.jpg", "c.jpg"},
		[]string{"b.jpg", "a.jpg", "d.jpg"},
	)

	if !slices.Equal(missing, []string{"b.jpg", "d.jpg"}) {
		t.Errorf("missing = %v", missing)
	}
	if !slices.Equal(extra, []string{"c.jpg"}) {
		t.Errorf("extra = %v", extra)
	}

	missing, extra = Diff(nil, nil)
	if missing == nil || extra == nil {
		t.Error("Diff() should return non-nil slices")
	}
	if len(missing) != 0 || len(extra) != 0 {
		t.Errorf("expected no differences, got %v / %v", missing, extra)
	}
}

func TestCompareAgreesWithScanner(t *testing.T) {
	html := `<html><body><div id="readerarea" class="rdminimal">` +
		`<img src="data:image/gif;base64,R0l" data-lazy-src="https://cdn.example.com/ch1/01.jpg">` +
		`<img src="data:image/gif;base64,R0l" data-lazy-src="https://cdn.example.com/ch1/02.jpg">` +
		`</div></body></html>`

	report, err := Compare(html, scanner.Scan(html))
	if err != nil {
		t.Fatalf("Compare() failed: %v", err)
	}

	if !report.Match() {
		t.Errorf("expected agreement, missing=%v extra=%v", report.Missing, report.Extra)
	}
}

func TestCompareReportsNestedDiv(t *testing.T) {
	// The scanner stops at the first closing div; the parser does not.
	html := `<div id="readerarea"><div class="ad"></div><img data-lazy-src="late.jpg"></div>`

	report, err := Compare(html, scanner.Scan(html))
	if err != nil {
		t.Fatalf("Compare() failed: %v", err)
	}

	if report.Match() {
		t.Fatal("expected a difference for nested divs")
	}
	if !slices.Equal(report.Missing, []string{"late.jpg"}) {
		t.Errorf("Missing = %v, want [late.jpg]", report.Missing)
	}
	if len(report.Extra) != 0 {
		t.Errorf("Extra = %v, want none", report.Extra)
	}
}

func TestCompareReportsEntityDecoding(t *testing.T) {
	html := `<div id="readerarea"><img data-lazy-src="a.jpg?x=1&amp;y=2"></div>`

	report, err := Compare(html, scanner.Scan(html))
	if err != nil {
		t.Fatalf("Compare() failed: %v", err)
	}

	if !slices.Equal(report.Missing, []string{"a.jpg?x=1&y=2"}) {
		t.Errorf("Missing = %v", report.Missing)
	}
	if !slices.Equal(report.Extra, []string{"a.jpg?x=1&amp;y=2"}) {
		t.Errorf("Extra = %v", report.Extra)
	}
}
