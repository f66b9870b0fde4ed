// Package diff splits unified git diff output into per-file sections and
// computes the churn statistics the context assembler's truncation policy
// ranks files by.
package diff

import (
	"regexp"
	"strings"
)

// FileDiff is one file's portion of a unified diff.
type FileDiff struct {
	// OldPath is the "a/" side path, "" for newly added files.
	OldPath string
	// Path is the "b/" side path, "" for deleted files.
	Path string
	// Raw is the full diff text for this file, header included.
	Raw string
	// Added and Removed count +/- lines (churn).
	Added   int
	Removed int
}

// Churn is the total number of changed lines in the file.
func (f FileDiff) Churn() int {
	return f.Added + f.Removed
}

var headerRe = regexp.MustCompile(`^diff --git a/(.+) b/(.+)$`)

// Split parses a unified diff into per-file sections, preserving input
// order. The split is purely textual; malformed sections keep their raw
// text with empty paths rather than failing the whole diff.
func Split(diffText string) []FileDiff {
	if diffText == "" {
		return nil
	}

	var files []FileDiff
	var cur *FileDiff

	lines := strings.SplitAfter(diffText, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSuffix(line, "\n")
		if m := headerRe.FindStringSubmatch(trimmed); m != nil {
			if cur != nil {
				files = append(files, *cur)
			}
			cur = &FileDiff{OldPath: m[1], Path: m[2]}
		}
		if cur == nil {
			continue
		}
		cur.Raw += line

		switch {
		case strings.HasPrefix(trimmed, "+++ "):
			if trimmed == "+++ /dev/null" {
				cur.Path = ""
			}
		case strings.HasPrefix(trimmed, "--- "):
			if trimmed == "--- /dev/null" {
				cur.OldPath = ""
			}
		case strings.HasPrefix(trimmed, "+"):
			cur.Added++
		case strings.HasPrefix(trimmed, "-"):
			cur.Removed++
		}
	}
	if cur != nil {
		files = append(files, *cur)
	}

	return files
}

// PreviousPaths returns the distinct "a/" side paths of a diff: the files
// that existed before the change and were modified or deleted by it.
// Order follows first appearance in the diff.
func PreviousPaths(diffText string) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, f := range Split(diffText) {
		if f.OldPath == "" || seen[f.OldPath] {
			continue
		}
		seen[f.OldPath] = true
		paths = append(paths, f.OldPath)
	}
	return paths
}

// Low-priority suffixes: generated artifacts and lock files are the first
// content dropped when a diff exceeds the context budget.
var lowPrioritySuffixes = []string{
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
	"Cargo.lock",
	"Gemfile.lock",
	"poetry.lock",
	"composer.lock",
	".min.js",
	".min.css",
	".pb.go",
	"_generated.go",
	".generated.ts",
	".snap",
}

// LowPriority reports whether a path is a generated or lock file.
func LowPriority(path string) bool {
	base := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		base = path[i+1:]
	}
	for _, suffix := range lowPrioritySuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}
