package coder

import (
	"fmt"
	"strings"
)

const systemPrompt = `Act as an expert software developer pairing with the user on a git repository.
Follow the conventions and libraries already present in the code base.

When you change code, describe each change with a SEARCH/REPLACE block:

path/to/file.ext
<<<<<<< SEARCH
exact existing lines to replace
=======
new lines
>>>>>>> REPLACE

Rules:
- Put the full file path alone on the line before the SEARCH marker.
- The SEARCH section must match the existing file content exactly and must be unique in the file.
- To create a new file, leave the SEARCH section empty.
- Only edit files that have been added to the chat. If you need other files, ask the user to add them.
`

// buildSystem renders the system prompt followed by the current content of
// every in-chat file.
func buildSystem(files map[string]string, order []string) string {
	if len(order) == 0 {
		return systemPrompt
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\nThese files have been added to the chat so you can edit them:\n")
	for _, name := range order {
		fmt.Fprintf(&b, "\n%s\n```\n%s", name, files[name])
		if !strings.HasSuffix(files[name], "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```\n")
	}
	return b.String()
}

// commitMessage derives the auto-commit message from the prompt's first line.
func commitMessage(prompt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	line = strings.TrimSpace(line)
	if len(line) > 72 {
		line = line[:69] + "..."
	}
	if line == "" {
		line = "apply edits"
	}
	return "pairline: " + line
}
