package coder

import (
	"fmt"
	"strings"
)

const (
	searchMarker  = "<<<<<<< SEARCH"
	dividerMarker = "======="
	replaceMarker = ">>>>>>> REPLACE"
)

// Edit is one SEARCH/REPLACE block from an assistant reply.
type Edit struct {
	Path    string
	Search  string
	Replace string
}

// ParseEdits extracts every SEARCH/REPLACE block from text. The file name is
// taken from the closest non-empty line above the SEARCH marker that is not a
// code fence. Blocks without a file name or without a closing marker are
// skipped.
func ParseEdits(text string) []Edit {
	lines := strings.Split(text, "\n")
	var edits []Edit

	for i := 0; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != searchMarker {
			continue
		}

		path := findPath(lines[:i])

		var search, replace []string
		j := i + 1
		for ; j < len(lines) && strings.TrimSpace(lines[j]) != dividerMarker; j++ {
			search = append(search, lines[j])
		}
		k := j + 1
		for ; k < len(lines) && strings.TrimSpace(lines[k]) != replaceMarker; k++ {
			replace = append(replace, lines[k])
		}
		if j >= len(lines) || k >= len(lines) {
			break
		}
		i = k

		if path == "" {
			continue
		}
		edits = append(edits, Edit{
			Path:    path,
			Search:  joinBlock(search),
			Replace: joinBlock(replace),
		})
	}
	return edits
}

func findPath(above []string) string {
	for i := len(above) - 1; i >= 0 && i >= len(above)-3; i-- {
		line := strings.TrimSpace(above[i])
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.Trim(line, "`*#: ")
		return line
	}
	return ""
}

// joinBlock rejoins block lines with a trailing newline so replacements keep
// whole-line structure.
func joinBlock(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// apply returns content with edit applied. An empty SEARCH appends to the
// file (or creates it). A non-empty SEARCH must occur exactly once.
func apply(content string, exists bool, e Edit) (string, error) {
	if e.Search == "" {
		if !exists {
			return e.Replace, nil
		}
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		return content + e.Replace, nil
	}
	if !exists {
		return "", fmt.Errorf("%s does not exist", e.Path)
	}

	count := strings.Count(content, e.Search)
	if count == 0 {
		return "", fmt.Errorf("SEARCH block not found in %s", e.Path)
	}
	if count > 1 {
		return "", fmt.Errorf("SEARCH block found %d times in %s; it must be unique", count, e.Path)
	}
	return strings.Replace(content, e.Search, e.Replace, 1), nil
}
