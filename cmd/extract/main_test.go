package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/pagemark/internal/hash"
	"github.com/dgallion1/pagemark/internal/meta"
	"github.com/dgallion1/pagemark/internal/store"
)

func setup(t *testing.T) (src, metaDir string) {
	t.Helper()
	content := "Merits\fAllies -- 12 -- help."
	src = filepath.Join(t.TempDir(), "core.txt")
	if err := os.WriteFile(src, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	metaDir = t.TempDir()

	rec := meta.New(hash.Bytes([]byte(content)))
	allies := meta.NewSection()
	allies.Name = "Allies"
	allies.Pages = meta.PageRange{Start: 2, End: 2}
	allies.Kind = meta.Merit(meta.MeritSocial)
	allies.AppendOp(meta.DeleteRange(6, 15))
	rec.AddSection(allies)

	broken := meta.NewSection()
	broken.Name = "Broken"
	broken.Pages = meta.PageRange{Start: 2, End: 4}
	rec.AddSection(broken)

	if err := store.New(metaDir, nil).Save(rec, filepath.Join(metaDir, "core.json")); err != nil {
		t.Fatal(err)
	}
	return src, metaDir
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-meta", "/m", "-json", "-section", "2", "book.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.metaDir != "/m" || !opts.asJSON || opts.section != 2 || opts.source != "book.pdf" {
		t.Errorf("unexpected options %+v", opts)
	}
	if _, err := parseFlags([]string{"-json"}); err == nil {
		t.Error("expected error without source")
	}
}

func TestRun_Text(t *testing.T) {
	src, metaDir := setup(t)
	var out bytes.Buffer
	err := run(options{source: src, metaDir: metaDir, section: -1}, &out, slog.New(slog.DiscardHandler))
	if !errors.Is(err, errSectionsFailed) {
		t.Fatalf("expected errSectionsFailed for the broken section, got %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "== [0] Allies (merit/social, pages 2-2) ==\nAllies help.\n") {
		t.Errorf("missing Allies section in output:\n%s", got)
	}
	if !strings.Contains(got, "== [1] Broken") || !strings.Contains(got, "error: ") {
		t.Errorf("expected broken section to be reported in place:\n%s", got)
	}
}

func TestRun_JSONSingleSection(t *testing.T) {
	src, metaDir := setup(t)
	var out bytes.Buffer
	err := run(options{source: src, metaDir: metaDir, section: 0, asJSON: true}, &out, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got sectionOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if got.Name != "Allies" || got.Text != "Allies help." || got.Error != "" {
		t.Errorf("unexpected output %+v", got)
	}
}

func TestRun_NoSidecar(t *testing.T) {
	src, _ := setup(t)
	err := run(options{source: src, metaDir: t.TempDir(), section: -1}, &bytes.Buffer{}, slog.New(slog.DiscardHandler))
	if err == nil || !strings.Contains(err.Error(), "no sidecar") {
		t.Errorf("expected no sidecar error, got %v", err)
	}
}

func TestRun_CorruptSidecarLoggedOnce(t *testing.T) {
	src, metaDir := setup(t)
	if err := os.WriteFile(filepath.Join(metaDir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))

	err := run(options{source: src, metaDir: metaDir, section: 0}, &bytes.Buffer{}, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(logs.String(), "level=WARN"); n != 1 || !strings.Contains(logs.String(), "broken.json") {
		t.Errorf("expected the corrupt sidecar logged once, got %d:\n%s", n, logs.String())
	}
}
