// Package review writes the markdown document listing generated artifacts for
// human inspection.
package review

import (
	"bytes"

	"tapedeck/internal/fileutil"
	"tapedeck/internal/services"
)

// Render formats one block per artifact, in the given order: the path on its
// own line followed by an inline image reference.
func Render(artifacts []string) []byte {
	var buf bytes.Buffer
	for _, path := range artifacts {
		buf.WriteString(path)
		buf.WriteString("\n\n![](")
		buf.WriteString(path)
		buf.WriteString(")\n\n")
	}
	return buf.Bytes()
}

// Write replaces the document at dest with the rendered artifact list. Entries
// from earlier runs never survive.
func Write(dest string, artifacts []string) error {
	if dest == "" {
		return services.Wrap(services.ErrConfiguration, "review", "write", "review file path required", nil)
	}
	if err := fileutil.WriteFileAtomic(dest, Render(artifacts), 0o644); err != nil {
		return services.Wrap(services.ErrExternalTool, "review", "write", dest, err)
	}
	return nil
}
