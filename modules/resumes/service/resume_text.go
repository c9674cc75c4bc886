package service

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const maxResumeTextLen = 8000

// ExtractResumeText pulls plain text out of a PDF resume already injected
// into a sandbox. The text seeds essay-generation prompts; extraction
// failures are not fatal to a session.
func ExtractResumeText(path string) (string, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return "", fmt.Errorf("unsupported resume format: %s", path)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("unable to open resume pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("unable to extract resume text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}

	text := strings.TrimSpace(buf.String())
	if len(text) > maxResumeTextLen {
		text = text[:maxResumeTextLen]
	}
	return text, nil
}
