package file

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cachegrove/memoize/internal/backend"
)

// This file exposes read-only, lock-free introspection of the on-disk
// layout for the out-of-process inspection CLI (spec §4.12, component
// C12). It never participates in the live Backend's hot path.

// FunctionDir is one function's cache directory discovered under a root.
type FunctionDir struct {
	// EncodedID is the sha256-hex directory name (the function identity is
	// not recoverable from it; the CLI reports the encoding verbatim).
	EncodedID string
	Path      string
}

// ListFunctionDirs enumerates every function subdirectory under root.
func ListFunctionDirs(root string) ([]FunctionDir, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dirs []FunctionDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dirs = append(dirs, FunctionDir{EncodedID: e.Name(), Path: filepath.Join(root, e.Name())})
	}
	return dirs, nil
}

// EntryInfo is one key's on-disk state, reported without resolving the
// original fingerprint (the CLI only ever sees the encoded form).
type EntryInfo struct {
	EncodedKey string
	Entry      backend.Entry
}

// ListEntries reads every entry under a function directory for layout.
// Corrupt files are skipped rather than failing the whole listing, mirroring
// the live backend's "corrupt entry treated as absent" policy (spec §4.4).
func ListEntries(dir string, layout Layout) ([]EntryInfo, error) {
	if layout == LayoutSingleFile {
		data, err := os.ReadFile(filepath.Join(dir, dataFileName))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		m, err := decodeMap(data)
		if err != nil {
			return nil, nil
		}
		out := make([]EntryInfo, 0, len(m))
		for k, e := range m {
			out = append(out, EntryInfo{EncodedKey: k, Entry: e})
		}
		return out, nil
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []EntryInfo
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || name == lockFileName || !strings.HasSuffix(name, ".entry") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		e, err := decodeEntry(data)
		if err != nil {
			continue
		}
		out = append(out, EntryInfo{EncodedKey: strings.TrimSuffix(name, ".entry"), Entry: e})
	}
	return out, nil
}

// RemoveFunctionDir deletes a function's entire cache directory, equivalent
// to ClearAll but usable without constructing a live Backend (no watcher to
// tear down).
func RemoveFunctionDir(path string) error {
	return os.RemoveAll(path)
}
