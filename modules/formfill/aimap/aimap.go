package aimap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/protocorn/launchway/internal/platform/llm"
	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/protocorn/launchway/modules/formfill/model"
	profileModel "github.com/protocorn/launchway/modules/profile/model"
	"go.uber.org/zap"
)

// Generator is the slice of the LLM gateway the mapper needs
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// Mapper resolves fields the deterministic passes could not. The three
// mapping batches make at most one model call each per page pass;
// GenerateEssay makes one further call per essay field.
type Mapper struct {
	gw  Generator
	log *logger.Logger

	essayMaxTokens int
}

// New creates the AI mapper
func New(gw Generator, essayMaxTokens int, log *logger.Logger) *Mapper {
	return &Mapper{gw: gw, essayMaxTokens: essayMaxTokens, log: log}
}

const systemPrompt = `You map a job applicant's profile onto web form fields.
Rules:
- Use only information from the provided profile. Never invent facts.
- Never answer questions about disability, veteran status, criminal history,
  religion, sexual orientation, gender identity or medical conditions unless
  the profile explicitly states the answer. Return null for those.
- Reply with a single JSON object and nothing else.`

// MapText resolves text-like fields where the profile has candidate data
// but the synonym table was inconclusive. Returns stable_id -> string.
func (m *Mapper) MapText(ctx context.Context, userID string, fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, error) {
	if len(fields) == 0 {
		return model.Mapping{}, nil
	}

	var sb strings.Builder
	sb.WriteString("Profile:\n")
	sb.WriteString(profileSummary(profile))
	sb.WriteString("\nForm fields (fill from the profile, null when nothing fits):\n")
	for _, f := range fields {
		fmt.Fprintf(&sb, "- %q: label=%q type=%s\n", f.StableID, f.Label, f.Category)
	}
	sb.WriteString("\nReturn JSON: {\"<stable_id>\": \"<value>\" | null, ...}\n")

	raw, err := m.gw.Generate(ctx, llm.Request{
		System: systemPrompt,
		Prompt: sb.String(),
		UserID: userID,
	})
	if err != nil {
		return nil, err
	}

	answers := map[string]*string{}
	if err := decodeJSON(raw, &answers); err != nil {
		return nil, fmt.Errorf("text batch reply unparseable: %w", err)
	}

	out := make(model.Mapping)
	for _, f := range fields {
		if v, ok := answers[f.StableID]; ok && v != nil && strings.TrimSpace(*v) != "" {
			out[f.StableID] = model.Simple(strings.TrimSpace(*v))
		}
	}
	return out, nil
}

// MapDropdowns picks one option per dropdown by displayed text. Each input
// carries the full extracted option list.
func (m *Mapper) MapDropdowns(ctx context.Context, userID string, fields []*model.FieldDescriptor, profile *profileModel.ProfileView, candidates map[string][]string) (model.Mapping, error) {
	if len(fields) == 0 {
		return model.Mapping{}, nil
	}

	var sb strings.Builder
	sb.WriteString("Profile:\n")
	sb.WriteString(profileSummary(profile))
	sb.WriteString("\nDropdowns (pick exactly one option text per field, null when none fits):\n")
	for _, f := range fields {
		fmt.Fprintf(&sb, "- %q: label=%q\n  options: ", f.StableID, f.Label)
		texts := make([]string, 0, len(f.Options))
		for _, o := range f.Options {
			texts = append(texts, o.Text)
		}
		fmt.Fprintf(&sb, "%s\n", strings.Join(texts, " | "))
		if hints := candidates[f.StableID]; len(hints) > 0 {
			fmt.Fprintf(&sb, "  profile hint: %s\n", strings.Join(hints, ", "))
		}
	}
	sb.WriteString("\nReturn JSON: {\"<stable_id>\": \"<option text>\" | null, ...}\n")

	raw, err := m.gw.Generate(ctx, llm.Request{
		System: systemPrompt,
		Prompt: sb.String(),
		UserID: userID,
	})
	if err != nil {
		return nil, err
	}

	answers := map[string]*string{}
	if err := decodeJSON(raw, &answers); err != nil {
		return nil, fmt.Errorf("dropdown batch reply unparseable: %w", err)
	}

	out := make(model.Mapping)
	for _, f := range fields {
		v, ok := answers[f.StableID]
		if !ok || v == nil {
			continue
		}
		choice := strings.TrimSpace(*v)
		if choice == "" || !optionExists(f.Options, choice) {
			m.log.Debug("dropdown pick not among options, dropping",
				zap.String("stable_id", f.StableID), zap.String("pick", choice))
			continue
		}
		out[f.StableID] = model.Selection(choice)
	}
	return out, nil
}

// checkAnswer is the per-field reply shape of the check batch
type checkAnswer struct {
	Decision *bool  `json:"decision"`
	Reason   string `json:"reason"`
}

// MapChecks decides checkboxes, radios and button groups
func (m *Mapper) MapChecks(ctx context.Context, userID string, fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, error) {
	if len(fields) == 0 {
		return model.Mapping{}, nil
	}

	var sb strings.Builder
	sb.WriteString("Profile:\n")
	sb.WriteString(profileSummary(profile))
	sb.WriteString("\nCheckbox/radio questions (decide true/false, null when the profile cannot answer):\n")
	for _, f := range fields {
		fmt.Fprintf(&sb, "- %q: %q\n", f.StableID, f.Label)
	}
	sb.WriteString("\nReturn JSON: {\"<stable_id>\": {\"decision\": true|false, \"reason\": \"...\"} | null, ...}\n")

	raw, err := m.gw.Generate(ctx, llm.Request{
		System: systemPrompt,
		Prompt: sb.String(),
		UserID: userID,
	})
	if err != nil {
		return nil, err
	}

	answers := map[string]*checkAnswer{}
	if err := decodeJSON(raw, &answers); err != nil {
		return nil, fmt.Errorf("check batch reply unparseable: %w", err)
	}

	out := make(model.Mapping)
	for _, f := range fields {
		if a, ok := answers[f.StableID]; ok && a != nil && a.Decision != nil {
			out[f.StableID] = model.CheckDecision(*a.Decision, a.Reason)
		}
	}
	return out, nil
}

// GenerateEssay produces a submission-ready response for one long-form
// prompt. The result carries no placeholder tokens or bracketed
// assumptions; anything that looks templated is rejected.
func (m *Mapper) GenerateEssay(ctx context.Context, userID string, field *model.FieldDescriptor, profile *profileModel.ProfileView, jobContext string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write the applicant's answer to this application question: %q\n\n", field.Label)
	sb.WriteString("Applicant profile:\n")
	sb.WriteString(profileSummary(profile))
	if jobContext != "" {
		sb.WriteString("\nJob context:\n")
		sb.WriteString(truncate(jobContext, 2000))
	}
	sb.WriteString(`
Constraints:
- First person, ready to submit verbatim.
- 120 to 220 words.
- No placeholders, no brackets, no headers, no sign-off.
- Only facts from the profile.`)

	text, err := m.gw.Generate(ctx, llm.Request{
		System:    systemPrompt,
		Prompt:    sb.String(),
		MaxTokens: m.essayMaxTokens,
		UserID:    userID,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, "[]{}") || strings.Contains(text, "XXX") {
		return "", fmt.Errorf("generated answer failed the placeholder check")
	}
	return text, nil
}

func optionExists(options []model.Option, choice string) bool {
	lower := strings.ToLower(choice)
	for _, o := range options {
		t := strings.ToLower(o.Text)
		if t == lower || strings.Contains(t, lower) || strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// decodeJSON tolerates replies wrapped in markdown fences
func decodeJSON(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "```"); idx >= 0 {
		raw = raw[idx+3:]
		raw = strings.TrimPrefix(raw, "json")
		if end := strings.Index(raw, "```"); end >= 0 {
			raw = raw[:end]
		}
	}
	// Fall back to the outermost object if the model added prose.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		raw = raw[start : end+1]
	}
	return json.Unmarshal([]byte(raw), v)
}

func profileSummary(p *profileModel.ProfileView) string {
	var sb strings.Builder
	line := func(k, v string) {
		if strings.TrimSpace(v) != "" {
			fmt.Fprintf(&sb, "  %s: %s\n", k, v)
		}
	}
	line("name", p.FullName())
	line("email", p.Email)
	line("phone", p.Phone)
	line("location", strings.TrimSpace(strings.Join(nonEmpty(p.City, p.State, p.Country), ", ")))
	line("linkedin", p.LinkedIn)
	line("github", p.GitHub)
	line("visa status", p.VisaStatus)
	line("visa sponsorship", p.VisaSponsorship)
	line("summary", truncate(p.Summary, 600))
	for i, e := range p.Education {
		if i >= 3 {
			break
		}
		line("education", fmt.Sprintf("%s, %s in %s (%s - %s)", e.School, e.Degree, e.FieldOfStudy, e.StartDate, e.EndDate))
	}
	for i, w := range p.WorkExperience {
		if i >= 4 {
			break
		}
		line("experience", fmt.Sprintf("%s at %s (%s - %s): %s", w.Title, w.Company, w.StartDate, endOr(w), truncate(w.Description, 200)))
	}
	if skills := p.AllSkills(); len(skills) > 0 {
		line("skills", strings.Join(skills, ", "))
	}
	return sb.String()
}

func endOr(w profileModel.WorkEntry) string {
	if w.Current {
		return "present"
	}
	return w.EndDate
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
