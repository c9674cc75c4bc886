package expander

import (
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/protocorn/launchway/internal/platform/logger"
	profileModel "github.com/protocorn/launchway/modules/profile/model"
	"go.uber.org/zap"
)

// section describes one cardinal profile section and how to find it on a
// form.
type section struct {
	name     string
	keywords []string
}

var sections = []section{
	{name: "education", keywords: []string{"education", "school", "degree", "university"}},
	{name: "work_experience", keywords: []string{"experience", "employment", "work history", "position"}},
	{name: "projects", keywords: []string{"project", "portfolio"}},
}

// Expander reconciles form section cardinality with the profile: when the
// profile has more entries than the form shows, it clicks the section's
// "Add" affordance exactly once per pass and lets the orchestrator rescan.
type Expander struct {
	log        *logger.Logger
	settleWait time.Duration

	// clicks counts per-section clicks across passes so the expander
	// never exceeds profile cardinality even if section counting fails.
	clicks map[string]int
}

// New creates an expander for one session
func New(settleWait time.Duration, log *logger.Logger) *Expander {
	if settleWait <= 0 {
		settleWait = 500 * time.Millisecond
	}
	return &Expander{log: log, settleWait: settleWait, clicks: make(map[string]int)}
}

// ExpandIfNeeded returns true when a section grew and the page needs a
// rescan. At most one click happens per call.
func (e *Expander) ExpandIfNeeded(page *rod.Page, profile *profileModel.ProfileView) bool {
	for _, sec := range sections {
		want := profileCount(profile, sec.name)
		if want <= 1 {
			continue
		}
		if e.clicks[sec.name] >= want-1 {
			// The form refused earlier clicks or hides entries; give up on
			// this section rather than clicking forever.
			continue
		}
		have := e.countSections(page, sec.keywords)
		if have == 0 || have >= want {
			continue
		}
		if e.clickAdd(page, sec) {
			e.clicks[sec.name]++
			e.log.Info("section expanded",
				zap.String("section", sec.name),
				zap.Int("have", have),
				zap.Int("want", want),
			)
			time.Sleep(e.settleWait)
			return true
		}
	}
	return false
}

// countSections counts visible repeating containers matching the keyword
// set. Containers are identified by heading or legend text.
func (e *Expander) countSections(page *rod.Page, keywords []string) int {
	res, err := page.Eval(`(keywords) => {
		const containers = document.querySelectorAll('fieldset, section, [class*="section"], [class*="entry"], [class*="repeat"]');
		let count = 0;
		for (const c of containers) {
			const heading = c.querySelector('legend, h1, h2, h3, h4, label');
			const text = ((heading && heading.textContent) || '').toLowerCase();
			if (keywords.some(k => text.includes(k)) && c.querySelector('input, select, textarea')) count++;
		}
		return count;
	}`, keywords)
	if err != nil {
		e.log.Debug("section count failed", zap.Error(err))
		return 0
	}
	return res.Value.Int()
}

// clickAdd clicks the section's add affordance once. Section-labeled
// buttons ("Add Education") win over generic ones ("Add").
func (e *Expander) clickAdd(page *rod.Page, sec section) bool {
	buttons, err := page.Elements(`button, a[role="button"], [class*="add"]`)
	if err != nil {
		return false
	}

	var generic *rod.Element
	for _, b := range buttons {
		text, err := b.Text()
		if err != nil {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(text))
		if lower == "" || !strings.Contains(lower, "add") {
			continue
		}
		for _, k := range sec.keywords {
			if strings.Contains(lower, k) {
				return e.click(b)
			}
		}
		if generic == nil && (lower == "add" || strings.HasPrefix(lower, "add another")) {
			generic = b
		}
	}
	if generic != nil {
		return e.click(generic)
	}
	return false
}

func (e *Expander) click(el *rod.Element) bool {
	if err := el.ScrollIntoView(); err != nil {
		return false
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		e.log.Debug("add button click failed", zap.Error(err))
		return false
	}
	return true
}

func profileCount(p *profileModel.ProfileView, name string) int {
	switch name {
	case "education":
		return len(p.Education)
	case "work_experience":
		return len(p.WorkExperience)
	case "projects":
		return len(p.Projects)
	}
	return 0
}
