package retention

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// artifactTimeFormat is used in artifact file names, e.g. empty_cells_20260302_080000.json.
const artifactTimeFormat = "20060102_150405"

// Artifact is a file produced by a run.
type Artifact struct {
	Path  string
	Kind  string
	RunAt time.Time
}

// ArtifactStore writes run artifacts into one directory and remembers which
// run produced them, so retention can delete them by run age.
// It implements render.ArtifactSink.
type ArtifactStore struct {
	dir string

	mu      sync.Mutex
	entries map[string]Artifact
}

// NewArtifactStore returns a store writing into dir. The directory is
// created on the first write.
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{
		dir:     dir,
		entries: make(map[string]Artifact),
	}
}

// Dir returns the artifact directory.
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// SaveArtifact writes data to <dir>/<kind>_<run time>.<ext> and registers it.
// An existing file with the same name gets a numeric suffix instead of being
// overwritten.
func (s *ArtifactStore) SaveArtifact(kind string, runAt time.Time, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s", kind, runAt.UTC().Format(artifactTimeFormat))
	for n := 1; ; n++ {
		name := base + "." + ext
		if n > 1 {
			name = fmt.Sprintf("%s_%d.%s", base, n, ext)
		}
		path := filepath.Join(s.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600) //nolint:gosec // path built from the artifact dir
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create artifact: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("failed to write artifact: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close artifact: %w", err)
		}
		s.Register(path, kind, runAt)
		return path, nil
	}
}

// Register records a file written elsewhere as an artifact of the run at runAt.
func (s *ArtifactStore) Register(path, kind string, runAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[path] = Artifact{Path: path, Kind: kind, RunAt: runAt}
}

// Expired returns the artifacts whose run is older than maxAge at now,
// oldest first.
func (s *ArtifactStore) Expired(now time.Time, maxAge time.Duration) []Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Artifact
	for _, a := range s.entries {
		if now.Sub(a.RunAt) > maxAge {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RunAt.Equal(out[j].RunAt) {
			return out[i].RunAt.Before(out[j].RunAt)
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Forget drops an artifact from the registry.
func (s *ArtifactStore) Forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, path)
}

// Len returns the number of registered artifacts.
func (s *ArtifactStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
