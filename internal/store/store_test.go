package store

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/dgallion1/pagemark/internal/hash"
	"github.com/dgallion1/pagemark/internal/meta"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func sampleRecord(sum string) *meta.SourceMeta {
	rec := meta.New(sum)
	rec.Timestamp = 1700000000
	allies := meta.NewSection()
	allies.Name = "Allies"
	allies.Pages = meta.PageRange{Start: 12, End: 13}
	allies.Span = meta.Range(40, 900)
	allies.Kind = meta.Merit(meta.MeritSocial)
	allies.AppendOp(meta.DeleteRange(100, 141))
	rec.AddSection(allies)

	animalism := meta.NewSection()
	animalism.Name = "Animalism"
	animalism.Pages = meta.PageRange{Start: 100, End: 104}
	animalism.Span = meta.From(220)
	animalism.Kind = meta.Plain(meta.KindDiscipline)
	rec.AddSection(animalism)
	return rec
}

func TestFindOrCreate_EmptyDir(t *testing.T) {
	src := writeSource(t, t.TempDir(), "Vampire Core.pdf", "%PDF fake")
	metaDir := t.TempDir()
	s := New(metaDir, nil)

	got, err := s.FindOrCreate(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Found {
		t.Error("expected a fresh record")
	}
	if len(got.Record.Sections) != 0 {
		t.Errorf("expected no sections, got %d", len(got.Record.Sections))
	}
	if got.Record.Timestamp != 0 {
		t.Errorf("expected zero timestamp, got %d", got.Record.Timestamp)
	}
	if got.Record.Hash != hash.Bytes([]byte("%PDF fake")) {
		t.Errorf("expected record keyed by content hash, got %q", got.Record.Hash)
	}
	want := filepath.Join(metaDir, "Vampire Core.json")
	if got.Path != want {
		t.Errorf("expected sidecar path %q, got %q", want, got.Path)
	}
}

func TestFindOrCreate_MissingDirIsEmpty(t *testing.T) {
	src := writeSource(t, t.TempDir(), "core.pdf", "x")
	s := New(filepath.Join(t.TempDir(), "does-not-exist"), nil)

	got, err := s.FindOrCreate(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Found {
		t.Error("expected a fresh record")
	}
}

func TestFindOrCreate_MatchByHashNotName(t *testing.T) {
	src := writeSource(t, t.TempDir(), "renamed.pdf", "book bytes")
	s := New(t.TempDir(), nil)

	stored := sampleRecord(hash.Bytes([]byte("book bytes")))
	sidecar := filepath.Join(s.Dir(), "original-name.json")
	if err := s.Save(stored, sidecar); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.FindOrCreate(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Found {
		t.Fatal("expected existing sidecar to be found")
	}
	if got.Path != sidecar {
		t.Errorf("expected path %q, got %q", sidecar, got.Path)
	}
	if !reflect.DeepEqual(got.Record, stored) {
		t.Errorf("expected record unchanged:\nwant %+v\ngot  %+v", stored, got.Record)
	}
}

func TestFindOrCreate_SkipsCorruptSidecar(t *testing.T) {
	src := writeSource(t, t.TempDir(), "core.pdf", "target")
	s := New(t.TempDir(), nil)

	other := sampleRecord(hash.Bytes([]byte("another book")))
	target := sampleRecord(hash.Bytes([]byte("target")))
	if err := s.Save(other, filepath.Join(s.Dir(), "a-other.json")); err != nil {
		t.Fatal(err)
	}
	corrupt := filepath.Join(s.Dir(), "b-corrupt.json")
	if err := os.WriteFile(corrupt, []byte(`{"hash": "tr`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(target, filepath.Join(s.Dir(), "c-target.json")); err != nil {
		t.Fatal(err)
	}
	// Not a sidecar.
	writeSource(t, s.Dir(), "notes.txt", "ignore me")

	got, err := s.FindOrCreate(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Found || got.Path != filepath.Join(s.Dir(), "c-target.json") {
		t.Fatalf("expected c-target.json to match, got found=%v path=%q", got.Found, got.Path)
	}
	if len(got.Skipped) != 1 {
		t.Fatalf("expected 1 skipped sidecar, got %d", len(got.Skipped))
	}
	if got.Skipped[0].Path != corrupt {
		t.Errorf("expected %q skipped, got %q", corrupt, got.Skipped[0].Path)
	}
	if !errors.Is(got.Skipped[0].Err, ErrCorruptSidecar) {
		t.Errorf("expected ErrCorruptSidecar, got %v", got.Skipped[0].Err)
	}
}

func TestFindOrCreate_FirstMatchWins(t *testing.T) {
	src := writeSource(t, t.TempDir(), "core.pdf", "dup")
	s := New(t.TempDir(), nil)
	sum := hash.Bytes([]byte("dup"))

	first := meta.New(sum)
	first.Timestamp = 1
	second := meta.New(sum)
	second.Timestamp = 2
	if err := s.Save(second, filepath.Join(s.Dir(), "z.json")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(first, filepath.Join(s.Dir(), "a.json")); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindOrCreate(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Record.Timestamp != 1 {
		t.Errorf("expected a.json to win, got timestamp %d", got.Record.Timestamp)
	}
}

func TestFindOrCreate_HashFailure(t *testing.T) {
	s := New(t.TempDir(), nil)
	_, err := s.FindOrCreate(filepath.Join(t.TempDir(), "missing.pdf"))
	if !errors.Is(err, ErrHashFailed) {
		t.Fatalf("expected ErrHashFailed, got %v", err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := New(t.TempDir(), nil)
	rec := sampleRecord("abc123")
	path := filepath.Join(s.Dir(), "core.json")

	if err := s.Save(rec, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Errorf("round trip changed record:\nwant %+v\ngot  %+v", rec, got)
	}

	// Saving what was loaded produces the same bytes.
	before, _ := os.ReadFile(path)
	if err := s.Save(got, path); err != nil {
		t.Fatalf("save again: %v", err)
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Errorf("expected stable output, got:\n%s\nthen:\n%s", before, after)
	}
}

func TestSave_OverwritesAndLeavesNoTemp(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "meta")
	s := New(dir, nil)
	path := filepath.Join(dir, "core.json")

	if err := s.Save(sampleRecord("one"), path); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(meta.New("two"), path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Hash != "two" || len(got.Sections) != 0 {
		t.Errorf("expected overwritten record, got %+v", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the sidecar in dir, got %v", names)
	}
}

func TestSidecarPath(t *testing.T) {
	s := New("meta", nil)
	tests := []struct {
		source string
		want   string
	}{
		{"/books/Vampire Core.pdf", filepath.Join("meta", "Vampire Core.json")},
		{"rules.v2.pdf", filepath.Join("meta", "rules.v2.json")},
		{"noext", filepath.Join("meta", "noext.json")},
	}
	for _, tt := range tests {
		if got := s.SidecarPath(tt.source); got != tt.want {
			t.Errorf("SidecarPath(%q): expected %q, got %q", tt.source, tt.want, got)
		}
	}
}
