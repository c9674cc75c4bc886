package fastmap

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/protocorn/launchway/modules/formfill/model"
	profileModel "github.com/protocorn/launchway/modules/profile/model"
	"gopkg.in/yaml.v3"
)

// Mapper resolves fields deterministically from synonym and pattern tables.
// No value it emits ever comes from outside the profile or the documented
// catalog defaults below.
type Mapper struct {
	synonyms map[profileModel.Key][]string
	yesNo    []yesNoRule
}

// yesNoRule answers one regulated question category. Defaults are explicit
// and auditable; anything the catalog refuses to default is left for the
// sensitive detector or the review handoff.
type yesNoRule struct {
	name     string
	patterns []*regexp.Regexp
	answer   func(p *profileModel.ProfileView) (string, bool)
}

func defaultSynonyms() map[profileModel.Key][]string {
	return map[profileModel.Key][]string{
		profileModel.KeyFirstName:   {"first name", "fname", "given name", "forename"},
		profileModel.KeyLastName:    {"last name", "lname", "surname", "family name", "lastname"},
		profileModel.KeyEmail:       {"email", "e-mail", "email address", "mail"},
		profileModel.KeyPhone:       {"phone", "phone number", "telephone", "mobile", "cell"},
		profileModel.KeyAddress:     {"address", "street address", "address line 1", "home address"},
		profileModel.KeyCity:        {"city", "town", "locality"},
		profileModel.KeyState:       {"state", "province", "region"},
		profileModel.KeyZip:         {"zip", "zip code", "postal code", "zipcode"},
		profileModel.KeyCountry:     {"country", "country of residence"},
		profileModel.KeyCountryCode: {"country code", "dial code", "phone country"},
		// 'sex' is deliberately absent: it collides with sexual orientation,
		// which is a sensitive category.
		profileModel.KeyGender:      {"gender"},
		profileModel.KeyNationality: {"nationality", "country of citizenship", "citizenship"},
		profileModel.KeyLinkedIn:    {"linkedin", "linkedin profile", "linkedin url"},
		profileModel.KeyGitHub:      {"github", "github profile", "github url", "git hub", "portfolio url"},
		profileModel.KeyVisaStatus:  {"visa status", "current visa", "immigration status"},
		profileModel.KeySummary:     {"summary", "about you", "professional summary"},
	}
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

func defaultYesNoRules() []yesNoRule {
	return []yesNoRule{
		{
			name: "work_authorization",
			patterns: compileAll(
				`authorized.*work`,
				`work.*authorization`,
				`legal(ly)?.*(work|employ)`,
				`eligible.*work`,
			),
			answer: func(p *profileModel.ProfileView) (string, bool) {
				status := strings.ToLower(p.VisaStatus)
				switch {
				case status == "":
					return "", false
				case strings.Contains(status, "citizen"),
					strings.Contains(status, "permanent"),
					strings.Contains(status, "green card"),
					strings.Contains(status, "h-1b"), strings.Contains(status, "h1b"),
					strings.Contains(status, "f-1"), strings.Contains(status, "f1"),
					strings.Contains(status, "opt"), strings.Contains(status, "cpt"):
					return "Yes", true
				default:
					return "No", true
				}
			},
		},
		{
			name: "sponsorship_required",
			patterns: compileAll(
				`visa.*sponsorship`,
				`require.*sponsorship`,
				`need.*sponsorship`,
				`sponsorship.*required`,
				`h-?1b.*sponsorship`,
			),
			answer: func(p *profileModel.ProfileView) (string, bool) {
				sponsorship := strings.ToLower(p.VisaSponsorship)
				if sponsorship != "" {
					if strings.Contains(sponsorship, "require") || sponsorship == "yes" {
						return "Yes", true
					}
					return "No", true
				}
				status := strings.ToLower(p.VisaStatus)
				switch {
				case status == "":
					return "", false
				case strings.Contains(status, "citizen"),
					strings.Contains(status, "permanent"),
					strings.Contains(status, "green card"):
					return "No", true
				default:
					return "Yes", true
				}
			},
		},
		{
			name: "background_check",
			patterns: compileAll(
				`background.*check`,
				`consent.*background`,
			),
			// Standard consent.
			answer: func(*profileModel.ProfileView) (string, bool) { return "Yes", true },
		},
		{
			name: "drug_test",
			patterns: compileAll(
				`drug.*test`,
				`substance.*test`,
			),
			answer: func(*profileModel.ProfileView) (string, bool) { return "Yes", true },
		},
		{
			name: "relocation",
			patterns: compileAll(
				`willing.*relocat`,
				`open.*relocat`,
				`relocate.*position`,
			),
			answer: func(p *profileModel.ProfileView) (string, bool) {
				switch p.WillingToRelocate {
				case profileModel.TriYes:
					return "Yes", true
				case profileModel.TriNo:
					return "No", true
				default:
					return "", false
				}
			},
		},
		{
			name: "onsite_availability",
			patterns: compileAll(
				`available.*work.*onsite`,
				`work.*(from|in).*office`,
				`commute.*office`,
			),
			answer: func(p *profileModel.ProfileView) (string, bool) {
				if p.WillingToRelocate == profileModel.TriNo {
					return "No", true
				}
				return "Yes", true
			},
		},
	}
}

// overrides is the YAML shape accepted from the deployment rules file
type overrides struct {
	Synonyms map[string][]string `yaml:"synonyms"`
}

// New creates the mapper. rulesFile may extend the synonym table.
func New(rulesFile string) (*Mapper, error) {
	m := &Mapper{
		synonyms: defaultSynonyms(),
		yesNo:    defaultYesNoRules(),
	}
	if rulesFile != "" {
		raw, err := os.ReadFile(rulesFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read rules file: %w", err)
		}
		var o overrides
		if err := yaml.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("invalid rules file: %w", err)
		}
		for key, extra := range o.Synonyms {
			k := profileModel.Key(key)
			m.synonyms[k] = append(m.synonyms[k], extra...)
		}
	}
	return m, nil
}

// PatternPass answers regulated yes/no questions with tight label-anchored
// regexes. It only touches categories that take a yes/no style answer.
func (m *Mapper) PatternPass(fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, []*model.FieldDescriptor) {
	hits := make(model.Mapping)
	var remaining []*model.FieldDescriptor

	for _, f := range fields {
		if !yesNoCapable(f.Category) {
			remaining = append(remaining, f)
			continue
		}
		answer, ok := m.matchYesNo(f.Label, profile)
		if !ok {
			remaining = append(remaining, f)
			continue
		}
		switch f.Category {
		case model.CategoryCheckbox, model.CategoryRadio:
			hits[f.StableID] = model.CheckDecision(answer == "Yes", "catalog answer")
		default:
			hits[f.StableID] = model.Selection(answer)
		}
	}
	return hits, remaining
}

func (m *Mapper) matchYesNo(label string, profile *profileModel.ProfileView) (string, bool) {
	for _, rule := range m.yesNo {
		for _, re := range rule.patterns {
			if re.MatchString(label) {
				return rule.answer(profile)
			}
		}
	}
	return "", false
}

func yesNoCapable(c model.FieldCategory) bool {
	switch c {
	case model.CategoryRadio, model.CategoryCheckbox, model.CategoryButtonGroup,
		model.CategorySelectNative, model.CategorySelectCustom,
		model.CategorySelectWorkday, model.CategorySelectGreenhouse:
		return true
	}
	return false
}

// BatchPass maps the remaining fields by case-insensitive substring match
// against the synonym table. Values that would be nonsense for the field's
// category fall through to the AI pass instead of being filled with junk.
func (m *Mapper) BatchPass(fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, []*model.FieldDescriptor) {
	hits := make(model.Mapping)
	var remaining []*model.FieldDescriptor

	for _, f := range fields {
		value, ok := m.lookup(f, profile)
		if !ok || nonsensical(f, value) {
			remaining = append(remaining, f)
			continue
		}
		if f.Category.IsDropdown() {
			hits[f.StableID] = model.Selection(value)
		} else {
			hits[f.StableID] = model.Simple(value)
		}
	}
	return hits, remaining
}

func (m *Mapper) lookup(f *model.FieldDescriptor, profile *profileModel.ProfileView) (string, bool) {
	label := strings.ToLower(strings.TrimSpace(f.Label))
	if label == "" {
		label = strings.ToLower(strings.TrimSpace(f.Placeholder))
	}
	if label == "" {
		return "", false
	}

	// Full name fields have no single canonical key.
	if strings.Contains(label, "full name") || label == "name" || label == "your name" {
		if name := profile.FullName(); name != "" {
			return name, true
		}
	}

	var best profileModel.Key
	bestLen := 0
	for key, synonyms := range m.synonyms {
		for _, syn := range synonyms {
			// Longest synonym wins so "email address" beats "address".
			if strings.Contains(label, syn) && len(syn) > bestLen {
				best = key
				bestLen = len(syn)
			}
		}
	}
	if bestLen == 0 {
		return "", false
	}
	return profile.Value(best)
}

// nonsensical guards against category/value mismatches: long narratives in
// short inputs, prose where a number is expected, and the like.
func nonsensical(f *model.FieldDescriptor, value string) bool {
	switch f.Category {
	case model.CategoryNumber:
		for _, r := range value {
			if (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' {
				return true
			}
		}
	case model.CategoryEmail:
		return !strings.Contains(value, "@")
	case model.CategoryURL:
		return !strings.Contains(value, ".")
	case model.CategoryText:
		return len(value) > 200 || strings.Contains(value, "\n")
	case model.CategoryRadio, model.CategoryCheckbox, model.CategoryButtonGroup:
		// Yes/No style targets never take free text from the synonym table.
		lower := strings.ToLower(value)
		return lower != "yes" && lower != "no"
	}
	return false
}

// DropdownCandidates returns profile values plausible for a dropdown with
// the given label, in preference order. Used to seed the AI dropdown batch.
func (m *Mapper) DropdownCandidates(label string, profile *profileModel.ProfileView) []string {
	lower := strings.ToLower(label)
	var out []string
	add := func(v string) {
		if v != "" {
			out = append(out, v)
		}
	}
	switch {
	case strings.Contains(lower, "country"):
		add(profile.Country)
		add(profile.Nationality)
	case strings.Contains(lower, "state") || strings.Contains(lower, "province"):
		add(profile.State)
	case strings.Contains(lower, "gender"):
		add(profile.Gender)
	case strings.Contains(lower, "visa") || strings.Contains(lower, "immigration"):
		add(profile.VisaStatus)
	case strings.Contains(lower, "degree") || strings.Contains(lower, "education"):
		for _, e := range profile.Education {
			add(e.Degree)
		}
	case strings.Contains(lower, "location"):
		out = append(out, profile.PreferredLocations...)
		add(profile.City)
	}
	return out
}

// NormalizeOption widens a profile value into the aliases a form might use
// for it, so option matching tolerates "US" vs "United States" style drift.
func NormalizeOption(value string) []string {
	aliases := map[string][]string{
		"united states":  {"US", "USA", "United States", "America", "U.S.", "U.S.A.", "United States of America"},
		"canada":         {"CA", "CAN", "Canada"},
		"united kingdom": {"UK", "GB", "United Kingdom", "Britain", "England"},
		"bachelor":       {"Bachelor", "BS", "BA", "B.S.", "B.A.", "Bachelor's", "Bachelors"},
		"master":         {"Master", "MS", "MA", "M.S.", "M.A.", "Master's", "Masters"},
		"phd":            {"PhD", "Ph.D.", "Doctorate", "Doctoral"},
		"male":           {"Male", "M", "Man"},
		"female":         {"Female", "F", "Woman"},
		"green card":     {"Green Card", "Permanent Resident", "LPR"},
		"us citizen":     {"US Citizen", "Citizen", "American Citizen"},
	}
	if alts, ok := aliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return alts
	}
	return []string{value}
}
