package snapshot

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/blocktree-io/blocktree"
	"github.com/blocktree-io/blocktree/memstore"
)

func buildStore(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New()
	t.Cleanup(func() { s.Close() })
	_, err := s.CreateBlocks([]blocktree.NewBlock{
		{ID: "a", Content: "alpha"},
		{ID: "b", ParentID: "a", Content: "beta"},
		{ID: "c", ParentID: "a", Content: "gamma"},
		{ID: "d", ParentID: "c", Content: "delta"},
		{ID: "e", Content: "epsilon"},
	})
	if err != nil {
		t.Fatalf("CreateBlocks() error = %v", err)
	}
	return s
}

func TestExportImportRoundTrip(t *testing.T) {
	src := buildStore(t)
	doc, err := Export(src)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if doc.Len() != 5 {
		t.Fatalf("expected 5 blocks, got %d", doc.Len())
	}
	if len(doc.Blocks) != 2 || doc.Blocks[0].ID != "a" || doc.Blocks[1].ID != "e" {
		t.Fatalf("unexpected top level: %+v", doc.Blocks)
	}

	dst := memstore.New()
	defer dst.Close()
	if err := Import(dst, doc); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	got, err := Export(dst)
	if err != nil {
		t.Fatalf("Export(dst) error = %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	b, err := dst.GetBlock("d")
	if err != nil {
		t.Fatalf("GetBlock(d) error = %v", err)
	}
	if b.ParentID != "c" || b.Content != "delta" {
		t.Errorf("imported block wrong: %+v", b)
	}
}

func TestImport_EmptyDoc(t *testing.T) {
	s := memstore.New()
	defer s.Close()
	if err := Import(s, &Doc{}); err != nil {
		t.Fatalf("Import(empty) error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  *Doc
		want string
	}{
		{
			"duplicate id",
			&Doc{Blocks: []*Node{{ID: "a"}, {ID: "b", Children: []*Node{{ID: "a"}}}}},
			"duplicate id",
		},
		{
			"empty id",
			&Doc{Blocks: []*Node{{ID: ""}}},
			"empty id",
		},
		{
			"reserved id",
			&Doc{Blocks: []*Node{{ID: blocktree.RootID}}},
			"reserved",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	src := buildStore(t)
	doc, err := Export(src)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("JSON round trip mismatch (-want +got):\n%s", diff)
	}

	if _, err := Decode([]byte("{not json")); err == nil {
		t.Error("expected decode error for garbage")
	}
	if _, err := Decode([]byte(`{"blocks":[{"id":"x"},{"id":"x"}]}`)); err == nil {
		t.Error("expected decode to reject duplicate ids")
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	src := buildStore(t)
	doc, err := Export(src)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data, err := EncodeYAML(doc)
	if err != nil {
		t.Fatalf("EncodeYAML() error = %v", err)
	}
	got, err := DecodeYAML(data)
	if err != nil {
		t.Fatalf("DecodeYAML() error = %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("YAML round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffApplyMergePatch(t *testing.T) {
	a := &Doc{Blocks: []*Node{
		{ID: "x", Content: "one", Children: []*Node{{ID: "y", Content: "two"}}},
	}}
	b := &Doc{Blocks: []*Node{
		{ID: "x", Content: "edited", Children: []*Node{{ID: "y", Content: "two"}}},
		{ID: "z", Content: "new"},
	}}

	patch, err := Diff(a, b)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	got, err := ApplyPatch(a, patch, false)
	if err != nil {
		t.Fatalf("ApplyPatch() error = %v", err)
	}
	if diff := cmp.Diff(b, got); diff != "" {
		t.Errorf("patched doc mismatch (-want +got):\n%s", diff)
	}

	// No difference yields the empty patch.
	patch, err = Diff(b, b)
	if err != nil {
		t.Fatalf("Diff(b, b) error = %v", err)
	}
	if string(patch) != "{}" {
		t.Errorf("expected empty patch, got %s", patch)
	}
}

func TestApplyPatch_Operations(t *testing.T) {
	d := &Doc{Blocks: []*Node{{ID: "a", Content: "one"}}}

	got, err := ApplyPatch(d, []byte(`[{"op":"replace","path":"/blocks/0/content","value":"two"}]`), true)
	if err != nil {
		t.Fatalf("ApplyPatch(rfc6902) error = %v", err)
	}
	if got.Blocks[0].Content != "two" {
		t.Errorf("expected replaced content, got %q", got.Blocks[0].Content)
	}

	if _, err := ApplyPatch(d, []byte(`[{"op":"nope"}]`), true); err == nil {
		t.Error("expected error for a bad operation list")
	}

	// A patch that makes the document invalid is rejected.
	if _, err := ApplyPatch(d, []byte(`{"blocks":[{"id":"a"},{"id":"a"}]}`), false); err == nil {
		t.Error("expected validation to reject the patched doc")
	}
}
