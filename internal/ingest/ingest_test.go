package ingest

import (
	"reflect"
	"testing"
)

func TestSortPDFsByNumber(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			"numeric suffixes sort numerically",
			[]string{"batch-10.pdf", "batch-2.pdf", "batch-1.pdf"},
			[]string{"batch-1.pdf", "batch-2.pdf", "batch-10.pdf"},
		},
		{
			"unnumbered files come first",
			[]string{"batch-2.pdf", "cover.pdf", "batch-1.pdf"},
			[]string{"cover.pdf", "batch-1.pdf", "batch-2.pdf"},
		},
		{
			"lexical fallback without numbers",
			[]string{"b.pdf", "a.pdf"},
			[]string{"a.pdf", "b.pdf"},
		},
		{
			"paths keep their directories",
			[]string{"/in/doc-3.pdf", "/in/doc-1.pdf"},
			[]string{"/in/doc-1.pdf", "/in/doc-3.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sortPDFsByNumber(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("sortPDFsByNumber(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSortPDFsByNumberDoesNotMutateInput(t *testing.T) {
	in := []string{"batch-2.pdf", "batch-1.pdf"}
	sortPDFsByNumber(in)
	if in[0] != "batch-2.pdf" {
		t.Error("input slice must not be reordered")
	}
}

func TestDeriveBatchID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"depositions-1.pdf", "depositions"},
		{"/scans/depositions-12.pdf", "depositions"},
		{"exhibits.pdf", "exhibits"},
		{"case-42-part-3.pdf", "case-42-part"},
	}

	for _, tt := range tests {
		if got := deriveBatchID(tt.path); got != tt.want {
			t.Errorf("deriveBatchID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
