package infra

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LevelFiles finds level definitions on disk.
type LevelFiles struct {
	homeDir string
}

// LevelEntry is one level file found by Discover.
type LevelEntry struct {
	Path  string
	Name  string
	Nodes int
	Err   error // set when the file does not parse
}

// NewLevelFiles creates a finder that expands ~ to the user's home directory.
func NewLevelFiles() *LevelFiles {
	home, _ := os.UserHomeDir()
	return &LevelFiles{homeDir: home}
}

// NewLevelFilesWithHome creates a finder with custom home (for testing).
func NewLevelFilesWithHome(home string) *LevelFiles {
	return &LevelFiles{homeDir: home}
}

// Exists checks if a path exists.
func (lf *LevelFiles) Exists(path string) bool {
	_, err := os.Stat(lf.ExpandHome(path))
	return err == nil
}

// Resolve turns a level argument into a file path. A directory resolves to
// its level.yaml.
func (lf *LevelFiles) Resolve(path string) string {
	expanded := lf.ExpandHome(path)
	if info, err := os.Stat(expanded); err == nil && info.IsDir() {
		return filepath.Join(expanded, "level.yaml")
	}
	return expanded
}

// Discover lists the level files under dir, or matching dir when it is a glob
// pattern. Files that fail to parse are still listed, with Err set.
func (lf *LevelFiles) Discover(dir string) ([]LevelEntry, error) {
	expanded := lf.ExpandHome(dir)

	var patterns []string
	if strings.ContainsAny(expanded, "*?[") {
		patterns = []string{expanded}
	} else {
		patterns = []string{
			filepath.Join(expanded, "*.yaml"),
			filepath.Join(expanded, "*.yml"),
			filepath.Join(expanded, "*", "level.yaml"),
		}
	}

	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)

	entries := make([]LevelEntry, 0, len(paths))
	for _, p := range paths {
		entry := LevelEntry{Path: p}
		level, err := LoadLevel(p)
		if err != nil {
			entry.Err = err
		} else {
			entry.Name = level.Name
			entry.Nodes = len(level.Nodes)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ExpandHome expands ~ to the user's home directory.
func (lf *LevelFiles) ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(lf.homeDir, path[2:])
	}
	if path == "~" {
		return lf.homeDir
	}
	return path
}
