package sensitive

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/protocorn/launchway/modules/formfill/model"
	profileModel "github.com/protocorn/launchway/modules/profile/model"
	"gopkg.in/yaml.v3"
)

// Rule identifies one category of field that must never be filled
// autonomously. Detection is deterministic by design; this list is never
// replaced with model inference.
type Rule struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
	// ProfileKey, when set, names the profile key whose explicit presence
	// makes the field safe to fill (e.g. veteran status the user provided).
	ProfileKey string `yaml:"profile_key,omitempty"`

	compiled []*regexp.Regexp
}

// Detector flags fields excluded from all mapping passes
type Detector struct {
	rules []Rule
}

func defaultRules() []Rule {
	return []Rule{
		{
			Name: "national_id",
			Patterns: []string{
				`social\s*security`,
				`\bssn\b`,
				`national\s*(id|identification)`,
				`tax\s*(id|payer)`,
				`passport\s*number`,
			},
		},
		{
			Name: "financial_history",
			Patterns: []string{
				`salary\s*history`,
				`current\s*(salary|compensation)`,
				`bank\s*account`,
				`credit\s*(check|score|card)`,
			},
		},
		{
			Name: "security_question",
			Patterns: []string{
				`security\s*question`,
				`mother'?s\s*maiden`,
				`secret\s*(question|answer)`,
			},
		},
		{
			Name: "criminal_history",
			Patterns: []string{
				`convicted`,
				`felony`,
				`misdemeanor`,
				`criminal\s*(record|history|conviction)`,
			},
		},
		{
			Name:       "disability",
			ProfileKey: "disabilities",
			Patterns: []string{
				`\bdisabilit`,
				`disabled`,
			},
		},
		{
			Name:       "veteran",
			ProfileKey: string(profileModel.KeyVeteranStatus),
			Patterns: []string{
				`veteran`,
				`military\s*(service|status)`,
			},
		},
		{
			Name: "protected_identity",
			Patterns: []string{
				`transgender`,
				`sexual\s*orientation`,
				`\blgbtq?\b`,
				`religio(n|us)`,
				`medical\s*condition`,
				`pregnan`,
			},
		},
		{
			Name:       "date_of_birth_optional",
			ProfileKey: string(profileModel.KeyDateOfBirth),
			Patterns: []string{
				`date\s*of\s*birth`,
				`\bdob\b`,
				`birth\s*date`,
			},
		},
	}
}

// NewDetector builds the detector. rulesFile optionally replaces the
// built-in rule list with a YAML document of the same shape.
func NewDetector(rulesFile string) (*Detector, error) {
	rules := defaultRules()
	if rulesFile != "" {
		raw, err := os.ReadFile(rulesFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read sensitive rules file: %w", err)
		}
		var override struct {
			Sensitive []Rule `yaml:"sensitive"`
		}
		if err := yaml.Unmarshal(raw, &override); err != nil {
			return nil, fmt.Errorf("invalid sensitive rules file: %w", err)
		}
		if len(override.Sensitive) > 0 {
			rules = override.Sensitive
		}
	}

	for i := range rules {
		for _, p := range rules[i].Patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, fmt.Errorf("invalid sensitive pattern %q: %w", p, err)
			}
			rules[i].compiled = append(rules[i].compiled, re)
		}
	}
	return &Detector{rules: rules}, nil
}

// Match returns the rule name that makes the field sensitive, or "" if the
// field is safe. A rule with a ProfileKey is suppressed when the profile
// explicitly carries that value — the user chose to disclose it.
func (d *Detector) Match(field *model.FieldDescriptor, profile *profileModel.ProfileView) string {
	haystack := strings.ToLower(field.Label + " " + field.Placeholder)
	if strings.TrimSpace(haystack) == "" {
		return ""
	}
	for _, rule := range d.rules {
		if rule.ProfileKey != "" && profile != nil && profileHas(profile, rule.ProfileKey) {
			continue
		}
		for _, re := range rule.compiled {
			if re.MatchString(haystack) {
				return rule.Name
			}
		}
	}
	return ""
}

// Split partitions descriptors into safe and sensitive sets
func (d *Detector) Split(fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (safe, held []*model.FieldDescriptor) {
	for _, f := range fields {
		if d.Match(f, profile) != "" {
			held = append(held, f)
		} else {
			safe = append(safe, f)
		}
	}
	return safe, held
}

func profileHas(profile *profileModel.ProfileView, key string) bool {
	if key == "disabilities" {
		return len(profile.Disabilities) > 0
	}
	v, ok := profile.Value(profileModel.Key(key))
	return ok && v != ""
}
