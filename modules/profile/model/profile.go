package model

import "strings"

// TriState is a yes/no/unknown answer
type TriState string

const (
	TriYes     TriState = "yes"
	TriNo      TriState = "no"
	TriUnknown TriState = "unknown"
)

// Key is a canonical profile key. The set is closed; unknown keys are
// dropped at the storage boundary and never propagate inward.
type Key string

const (
	KeyFirstName         Key = "first_name"
	KeyLastName          Key = "last_name"
	KeyEmail             Key = "email"
	KeyPhone             Key = "phone"
	KeyAddress           Key = "address"
	KeyCity              Key = "city"
	KeyState             Key = "state"
	KeyZip               Key = "zip"
	KeyCountry           Key = "country"
	KeyCountryCode       Key = "country_code"
	KeyLinkedIn          Key = "linkedin"
	KeyGitHub            Key = "github"
	KeyDateOfBirth       Key = "date_of_birth"
	KeyGender            Key = "gender"
	KeyNationality       Key = "nationality"
	KeyVisaStatus        Key = "visa_status"
	KeyVisaSponsorship   Key = "visa_sponsorship"
	KeyVeteranStatus     Key = "veteran_status"
	KeySummary           Key = "summary"
)

// EducationEntry is one education record
type EducationEntry struct {
	School       string `json:"school"`
	Degree       string `json:"degree"`
	FieldOfStudy string `json:"field_of_study"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	GPA          string `json:"gpa,omitempty"`
}

// WorkEntry is one work-experience record
type WorkEntry struct {
	Company     string `json:"company"`
	Title       string `json:"title"`
	Location    string `json:"location"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Current     bool   `json:"current"`
	Description string `json:"description"`
}

// ProjectEntry is one project record
type ProjectEntry struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description"`
}

// ProfileView is the read-only input to one job. Missing string values are
// empty strings; callers treat empty as absent.
type ProfileView struct {
	UserID string `json:"user_id"`

	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Address         string `json:"address"`
	City            string `json:"city"`
	State           string `json:"state"`
	Zip             string `json:"zip"`
	Country         string `json:"country"`
	CountryCode     string `json:"country_code"`
	LinkedIn        string `json:"linkedin"`
	GitHub          string `json:"github"`
	DateOfBirth     string `json:"date_of_birth"`
	Gender          string `json:"gender"`
	Nationality     string `json:"nationality"`
	VisaStatus      string `json:"visa_status"`
	VisaSponsorship string `json:"visa_sponsorship"`
	VeteranStatus   string `json:"veteran_status"`

	Disabilities       []string `json:"disabilities"`
	WillingToRelocate  TriState `json:"willing_to_relocate"`
	PreferredLocations []string `json:"preferred_locations"`
	Summary            string   `json:"summary"`

	Education      []EducationEntry `json:"education"`
	WorkExperience []WorkEntry      `json:"work_experience"`
	Projects       []ProjectEntry   `json:"projects"`

	// Skills maps category (e.g. "languages") to an ordered list.
	Skills map[string][]string `json:"skills"`

	ResumeBlobRef       string `json:"resume_blob_ref"`
	CoverLetterTemplate string `json:"cover_letter_template,omitempty"`
}

// Value returns the scalar value for a canonical key and whether it is
// present. Sequence-valued keys are not addressable here.
func (p *ProfileView) Value(key Key) (string, bool) {
	var v string
	switch key {
	case KeyFirstName:
		v = p.FirstName
	case KeyLastName:
		v = p.LastName
	case KeyEmail:
		v = p.Email
	case KeyPhone:
		v = p.Phone
	case KeyAddress:
		v = p.Address
	case KeyCity:
		v = p.City
	case KeyState:
		v = p.State
	case KeyZip:
		v = p.Zip
	case KeyCountry:
		v = p.Country
	case KeyCountryCode:
		v = p.CountryCode
	case KeyLinkedIn:
		v = p.LinkedIn
	case KeyGitHub:
		v = p.GitHub
	case KeyDateOfBirth:
		v = p.DateOfBirth
	case KeyGender:
		v = p.Gender
	case KeyNationality:
		v = p.Nationality
	case KeyVisaStatus:
		v = p.VisaStatus
	case KeyVisaSponsorship:
		v = p.VisaSponsorship
	case KeyVeteranStatus:
		v = p.VeteranStatus
	case KeySummary:
		v = p.Summary
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// FullName joins first and last names
func (p *ProfileView) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// AllSkills flattens the skills map preserving category order is not
// guaranteed; entries are deduplicated case-insensitively.
func (p *ProfileView) AllSkills() []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range p.Skills {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			lower := strings.ToLower(s)
			if !seen[lower] {
				seen[lower] = true
				out = append(out, s)
			}
		}
	}
	return out
}
