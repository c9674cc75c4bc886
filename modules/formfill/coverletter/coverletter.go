package coverletter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx"
	profileModel "github.com/protocorn/launchway/modules/profile/model"
)

// Context carries the per-job substitutions for the template tokens
type Context struct {
	Company string
	Role    string
}

// Render substitutes the user's cover-letter template and writes it as a
// .docx inside the sandbox home, returning the path. No content is ever
// generated here; the text is the user's own template with tokens
// replaced.
func Render(profile *profileModel.ProfileView, jobCtx Context, sandboxHome string) (string, error) {
	template := strings.TrimSpace(profile.CoverLetterTemplate)
	if template == "" {
		return "", fmt.Errorf("profile has no cover letter template")
	}

	text := Substitute(template, profile, jobCtx)

	doc, err := godocx.NewDocument()
	if err != nil {
		return "", fmt.Errorf("unable to create document: %w", err)
	}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		doc.AddParagraph(strings.ReplaceAll(para, "\n", " "))
	}

	dest := filepath.Join(sandboxHome, "cover_letter.docx")
	if err := doc.SaveTo(dest); err != nil {
		return "", fmt.Errorf("unable to save cover letter: %w", err)
	}
	if err := os.Chmod(dest, 0o600); err != nil {
		return "", err
	}
	return dest, nil
}

// Substitute replaces the recognized placeholder tokens. Unknown tokens
// are left verbatim so the user can see what the template still needs.
func Substitute(template string, profile *profileModel.ProfileView, jobCtx Context) string {
	replacer := strings.NewReplacer(
		"{name}", profile.FullName(),
		"{first_name}", profile.FirstName,
		"{last_name}", profile.LastName,
		"{email}", profile.Email,
		"{phone}", profile.Phone,
		"{company}", jobCtx.Company,
		"{role}", jobCtx.Role,
		"{city}", profile.City,
	)
	return replacer.Replace(template)
}
