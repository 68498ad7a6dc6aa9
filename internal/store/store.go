// Package store keeps metadata records as JSON sidecar files in one
// directory. Records are found by the content hash they carry, not by file
// name, so either file can be renamed without losing the association.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/pagemark/internal/hash"
	"github.com/dgallion1/pagemark/internal/meta"
)

const sidecarExt = ".json"

var (
	// ErrHashFailed means the source could not be read for hashing. Without a
	// hash the document has no identity, so lookup stops.
	ErrHashFailed = errors.New("hash source")

	// ErrCorruptSidecar marks a sidecar that could not be read or parsed. The
	// directory scan skips such files.
	ErrCorruptSidecar = errors.New("corrupt sidecar")
)

// Skipped records one sidecar the scan could not use.
type Skipped struct {
	Path string
	Err  error
}

// Lookup is the result of FindOrCreate.
type Lookup struct {
	Record  *meta.SourceMeta
	Path    string    // Sidecar path to save to
	Found   bool      // False when Record was freshly created
	Skipped []Skipped // Unreadable sidecars passed over during the scan
}

// Store is a directory of sidecar files.
type Store struct {
	dir string
	log *slog.Logger
}

func New(dir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Store{dir: dir, log: log}
}

// Dir returns the sidecar directory.
func (s *Store) Dir() string {
	return s.dir
}

// FindOrCreate hashes the source file and looks up its record.
func (s *Store) FindOrCreate(sourcePath string) (*Lookup, error) {
	sum, err := hash.File(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHashFailed, err)
	}
	return s.FindByHash(sum, sourcePath)
}

// FindByHash scans the directory for the first sidecar whose hash field equals
// sum. Files are visited in lexical order. When nothing matches, a new empty
// record is returned with a path derived from the source's base name; that
// path may collide with an unrelated sidecar of the same name.
func (s *Store) FindByHash(sum, sourcePath string) (*Lookup, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read meta dir: %w", err)
	}

	var skipped []Skipped
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), sidecarExt) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		rec, err := s.Load(path)
		if err != nil {
			s.log.Warn("skipping sidecar", "path", path, "error", err)
			skipped = append(skipped, Skipped{Path: path, Err: err})
			continue
		}
		if rec.Hash == sum {
			s.log.Debug("sidecar matched", "path", path, "hash", sum, "sections", len(rec.Sections))
			return &Lookup{Record: rec, Path: path, Found: true, Skipped: skipped}, nil
		}
	}

	path := s.SidecarPath(sourcePath)
	s.log.Info("no sidecar for source, creating", "source", sourcePath, "hash", sum, "path", path)
	return &Lookup{Record: meta.New(sum), Path: path, Skipped: skipped}, nil
}

// SidecarPath derives the sidecar path for a new record from the source file
// name, replacing its extension.
func (s *Store) SidecarPath(sourcePath string) string {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "unnamed"
	}
	return filepath.Join(s.dir, base+sidecarExt)
}

// Load reads and parses one sidecar file.
func (s *Store) Load(path string) (*meta.SourceMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrCorruptSidecar, path, err)
	}
	rec, err := meta.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrCorruptSidecar, path, err)
	}
	return rec, nil
}

// Save writes rec to path, replacing any existing file. The new content goes
// to a temp file in the same directory which is then renamed over path, so a
// failed write leaves the previous sidecar intact.
func (s *Store) Save(rec *meta.SourceMeta, path string) error {
	data, err := meta.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create meta dir: %w", err)
	}
	if err := writeAtomic(dir, path, data); err != nil {
		return fmt.Errorf("write sidecar %s: %w", path, err)
	}

	s.log.Info("sidecar saved", "path", path, "hash", rec.Hash, "sections", len(rec.Sections))
	return nil
}

func writeAtomic(dir, dest string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, 0o644)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
