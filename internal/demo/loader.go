package demo

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"

	"github.com/kastrel/nest/internal/trace"
)

// Loader reads pre-recorded trace fixtures from a local directory.
// Files may be plain JSON (one entry or a list) or gzip-compressed
// (.json.gz), which keeps larger recorded sessions manageable.
type Loader struct {
	dataPath string
}

// NewLoader creates a loader rooted at dataPath, creating it if needed.
func NewLoader(dataPath string) (*Loader, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create demo data dir: %w", err)
	}
	return &Loader{dataPath: dataPath}, nil
}

// List returns the available fixture file names, sorted.
func (l *Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list demo data: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Load reads one fixture file, or every available file when filename is
// empty, and returns the contained trace entries.
func (l *Loader) Load(filename string) ([]trace.Entry, error) {
	if filename != "" {
		return l.loadFile(filepath.Join(l.dataPath, filepath.Base(filename)))
	}

	names, err := l.List()
	if err != nil {
		return nil, err
	}
	var all []trace.Entry
	for _, name := range names {
		entries, err := l.loadFile(filepath.Join(l.dataPath, name))
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

func (l *Loader) loadFile(path string) ([]trace.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("demo data file not found: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
		}
		defer gz.Close()
		r = gz
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	// Either a list of entries or a single entry object.
	var entries []trace.Entry
	if err := sonic.Unmarshal(raw, &entries); err == nil {
		return entries, nil
	}
	var single trace.Entry
	if err := sonic.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return []trace.Entry{single}, nil
}
