// Package tracker maintains the per-corpus indexing manifest: which
// files the index has seen and the content fingerprint of each. The
// manifest is what makes re-indexing incremental.
package tracker

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aixtools/kmcp/internal/corpus"
	"github.com/aixtools/kmcp/internal/document"
	"github.com/aixtools/kmcp/internal/log"
)

const manifestName = "tracking.json"

// Fingerprint identifies a file's content at index time. Hash is the
// md5 of the raw bytes and is authoritative; MTime is informational.
type Fingerprint struct {
	Hash  string
	MTime float64
}

// MarshalJSON encodes the fingerprint as the two-element
// ["hash", mtime] form the manifest uses on disk.
func (f Fingerprint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{f.Hash, f.MTime})
}

func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &f.Hash); err != nil {
		return fmt.Errorf("fingerprint hash: %w", err)
	}
	if err := json.Unmarshal(pair[1], &f.MTime); err != nil {
		return fmt.Errorf("fingerprint mtime: %w", err)
	}
	return nil
}

// Compute fingerprints the file at path.
func Compute(path string) (Fingerprint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	sum := md5.Sum(raw)
	return Fingerprint{
		Hash:  hex.EncodeToString(sum[:]),
		MTime: float64(info.ModTime().UnixNano()) / float64(time.Second),
	}, nil
}

type manifest struct {
	LastChecked float64                `json:"last_checked"`
	Directory   string                 `json:"directory"`
	Files       map[string]Fingerprint `json:"files"`
}

// Diff is the result of comparing a directory against its manifest.
// Changed holds new and modified files; Removed holds manifest entries
// whose file no longer exists on disk.
type Diff struct {
	Changed []string
	Removed []string
}

// Tracker reads and writes manifests under a cache root.
type Tracker struct {
	cacheRoot string
	logger    log.Logger
}

// New creates a Tracker rooted at cacheRoot.
func New(cacheRoot string, logger log.Logger) *Tracker {
	return &Tracker{
		cacheRoot: cacheRoot,
		logger:    logger.With("component", "tracker"),
	}
}

// ManifestPath returns the manifest location for a corpus directory.
func (t *Tracker) ManifestPath(dir string) string {
	return filepath.Join(corpus.CacheDir(t.cacheRoot, dir), manifestName)
}

// HasManifest reports whether the corpus has ever been indexed.
func (t *Tracker) HasManifest(dir string) bool {
	_, err := os.Stat(t.ManifestPath(dir))
	return err == nil
}

// ListFiles returns the absolute paths of all recognized files under
// dir. Hidden files and hidden directories are skipped. With recursive
// false only the top level is scanned.
func ListFiles(dir string, recursive bool) ([]string, error) {
	var files []string

	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || hidden(e.Name()) || !document.Recognized(e.Name()) {
				continue
			}
			files = append(files, filepath.Join(dir, e.Name()))
		}
		return files, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !hidden(d.Name()) && document.Recognized(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return files, nil
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// TrackedFiles returns the manifest's file set. A missing or unreadable
// manifest reads as empty.
func (t *Tracker) TrackedFiles(dir string) map[string]Fingerprint {
	return t.load(dir).Files
}

// LastChecked returns when the corpus was last refreshed. Zero time if
// never.
func (t *Tracker) LastChecked(dir string) time.Time {
	sec := t.load(dir).LastChecked
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(sec*float64(time.Second)))
}

// Diff compares the directory's current contents against the manifest.
// Every candidate file is hashed; a stale mtime with identical content
// is not a change. Files that vanished since the last index show up in
// Removed.
func (t *Tracker) Diff(dir string, recursive bool) (Diff, error) {
	present, err := ListFiles(dir, recursive)
	if err != nil {
		return Diff{}, err
	}
	tracked := t.TrackedFiles(dir)

	var d Diff
	seen := make(map[string]bool, len(present))
	for _, path := range present {
		seen[path] = true

		prev, ok := tracked[path]
		if !ok {
			d.Changed = append(d.Changed, path)
			continue
		}
		fp, err := Compute(path)
		if err != nil {
			// File disappeared or became unreadable mid-scan; the
			// indexing pass will surface it.
			t.logger.Warn("failed to fingerprint file", "path", path, "error", err)
			continue
		}
		if fp.Hash != prev.Hash {
			d.Changed = append(d.Changed, path)
		}
	}

	for path := range tracked {
		if !seen[path] {
			d.Removed = append(d.Removed, path)
		}
	}
	return d, nil
}

// ForceAll lists every present file as changed, still reporting
// removed manifest entries so a forced reindex prunes them too.
func (t *Tracker) ForceAll(dir string, recursive bool) (Diff, error) {
	present, err := ListFiles(dir, recursive)
	if err != nil {
		return Diff{}, err
	}
	tracked := t.TrackedFiles(dir)

	seen := make(map[string]bool, len(present))
	for _, path := range present {
		seen[path] = true
	}

	d := Diff{Changed: present}
	for path := range tracked {
		if !seen[path] {
			d.Removed = append(d.Removed, path)
		}
	}
	return d, nil
}

// Commit records a file's fingerprint and persists the manifest.
func (t *Tracker) Commit(dir, path string, fp Fingerprint) error {
	m := t.load(dir)
	m.Files[path] = fp
	return t.save(dir, m)
}

// Forget drops a file from the manifest and persists it.
func (t *Tracker) Forget(dir, path string) error {
	m := t.load(dir)
	delete(m.Files, path)
	return t.save(dir, m)
}

// Touch updates the corpus's last-checked timestamp.
func (t *Tracker) Touch(dir string) error {
	m := t.load(dir)
	m.LastChecked = float64(time.Now().UnixNano()) / float64(time.Second)
	return t.save(dir, m)
}

// Drop deletes the manifest file. Missing manifests are fine.
func (t *Tracker) Drop(dir string) error {
	err := os.Remove(t.ManifestPath(dir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	return nil
}

func (t *Tracker) load(dir string) manifest {
	empty := manifest{Files: make(map[string]Fingerprint)}

	raw, err := os.ReadFile(t.ManifestPath(dir))
	if err != nil {
		return empty
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		// A corrupt manifest means a full reindex, not a failure.
		t.logger.Warn("discarding unreadable manifest", "dir", dir, "error", err)
		return empty
	}
	if m.Files == nil {
		m.Files = make(map[string]Fingerprint)
	}
	return m
}

// CorpusInfo describes one manifest found under the cache root.
type CorpusInfo struct {
	Directory   string
	FileCount   int
	LastChecked time.Time
}

// All scans the cache root and returns every corpus with a manifest.
func (t *Tracker) All() ([]CorpusInfo, error) {
	entries, err := os.ReadDir(t.cacheRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache root: %w", err)
	}

	var infos []CorpusInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(t.cacheRoot, e.Name(), manifestName))
		if err != nil {
			continue
		}
		var m manifest
		if err := json.Unmarshal(raw, &m); err != nil || m.Directory == "" {
			t.logger.Warn("skipping unreadable manifest", "cache", e.Name())
			continue
		}

		info := CorpusInfo{Directory: m.Directory, FileCount: len(m.Files)}
		if m.LastChecked > 0 {
			info.LastChecked = time.Unix(0, int64(m.LastChecked*float64(time.Second)))
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// save writes the manifest atomically: temp file in the same directory,
// then rename over the target.
func (t *Tracker) save(dir string, m manifest) error {
	m.Directory = dir
	target := t.ManifestPath(dir)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), manifestName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}
