package assembler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/reposcope/internal/core"
	"github.com/reposcope/internal/diff"
)

const truncationMarker = "\n... [diff truncated: %d file(s) omitted]\n"

// TruncateDiff fits a unified diff into budget bytes. Files are kept whole
// where possible, chunked at file boundaries: generated and lock files are
// dropped first, then the lowest-churn files, so as much of the
// highest-churn real code survives as fits. The selection is a pure
// function of the input, so re-truncating the same diff yields
// byte-identical output.
func TruncateDiff(diffText string, budget int) (string, error) {
	if len(diffText) <= budget {
		return diffText, nil
	}
	if budget <= 0 {
		return "", fmt.Errorf("%w: diff of %d bytes against empty budget", core.ErrContextTooLarge, len(diffText))
	}

	files := diff.Split(diffText)
	if len(files) == 0 {
		// Not a recognizable diff; fall back to a hard cut.
		return diffText[:budget], nil
	}

	type candidate struct {
		idx  int
		file diff.FileDiff
	}
	ranked := make([]candidate, 0, len(files))
	for i, f := range files {
		ranked = append(ranked, candidate{idx: i, file: f})
	}
	// Keep order: real files before low-priority ones, higher churn first,
	// original position as the tie-breaker.
	sort.SliceStable(ranked, func(i, j int) bool {
		li, lj := diff.LowPriority(ranked[i].file.Path), diff.LowPriority(ranked[j].file.Path)
		if li != lj {
			return !li
		}
		if ranked[i].file.Churn() != ranked[j].file.Churn() {
			return ranked[i].file.Churn() > ranked[j].file.Churn()
		}
		return ranked[i].idx < ranked[j].idx
	})

	marker := len(truncationMarker) + 8
	remaining := budget - marker
	kept := make(map[int]bool, len(ranked))
	for _, c := range ranked {
		if len(c.file.Raw) <= remaining {
			kept[c.idx] = true
			remaining -= len(c.file.Raw)
		}
	}

	if len(kept) == 0 {
		// Even the most important file alone exceeds the budget: keep its
		// head so the highest-churn change is still visible.
		top := ranked[0].file
		if remaining <= 0 {
			return "", fmt.Errorf("%w: no file section fits in %d bytes", core.ErrContextTooLarge, budget)
		}
		out := top.Raw[:remaining] + fmt.Sprintf(truncationMarker, len(files))
		return out, nil
	}

	// Emit kept sections in original diff order so the result reads like a
	// normal diff.
	var sb strings.Builder
	dropped := 0
	for i, f := range files {
		if kept[i] {
			sb.WriteString(f.Raw)
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		sb.WriteString(fmt.Sprintf(truncationMarker, dropped))
	}
	return sb.String(), nil
}

// TruncateText hard-cuts free text (README, file contents) at budget,
// appending a marker when anything was cut.
func TruncateText(text string, budget int) string {
	if len(text) <= budget {
		return text
	}
	if budget <= 0 {
		return ""
	}
	return text[:budget] + "\n... [content truncated]"
}
