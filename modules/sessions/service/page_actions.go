package service

import (
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/protocorn/launchway/internal/platform/browser"
)

// applyKeywords order matters: explicit manual-apply affordances first.
// Autofill-with-resume buttons are deliberately absent — they degrade
// accuracy and are ignored by policy.
var applyKeywords = []string{
	"apply manually",
	"apply now",
	"apply for this job",
	"apply",
	"start application",
	"begin application",
	"submit application",
}

var submitKeywords = []string{
	"submit application",
	"submit",
	"send application",
	"finish",
	"review and submit",
	"next",
	"continue",
}

// detectCaptcha looks for captcha iframes and keywords on the page
func detectCaptcha(page *rod.Page) bool {
	res, err := page.Eval(`() => {
		if (document.querySelector('iframe[src*="recaptcha"], iframe[src*="hcaptcha"], iframe[title*="captcha" i], [class*="captcha"], #captcha')) return true;
		const text = document.body ? document.body.innerText.toLowerCase() : '';
		return text.includes('verify you are human') || text.includes('prove you are not a robot');
	}`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// detectLoginWall reports a page that demands authentication before the
// form is reachable.
func detectLoginWall(page *rod.Page) bool {
	res, err := page.Eval(`() => {
		const pw = document.querySelectorAll('input[type="password"]');
		if (pw.length === 0) return false;
		// A password field inside an application form (account creation
		// step) is not a wall; a page that is mostly a login form is.
		const inputs = document.querySelectorAll('input:not([type="hidden"])');
		return inputs.length <= 4;
	}`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// clickEntryAction finds and clicks the apply affordance when the landing
// page is a job description rather than the form itself. Returns true if
// something was clicked.
func clickEntryAction(page *rod.Page) bool {
	buttons, err := page.Elements(`button, a, input[type="submit"], [role="button"]`)
	if err != nil {
		return false
	}

	for _, keyword := range applyKeywords {
		for _, b := range buttons {
			text := elementText(b)
			if text == "" || !strings.Contains(text, keyword) {
				continue
			}
			// Autofill affordances often contain the same verbs; skip them
			// explicitly.
			if strings.Contains(text, "autofill") || strings.Contains(text, "with resume") ||
				strings.Contains(text, "with linkedin") || strings.Contains(text, "with indeed") {
				continue
			}
			if visible, verr := b.Visible(); verr != nil || !visible {
				continue
			}
			if err := b.ScrollIntoView(); err != nil {
				continue
			}
			if err := b.Click(proto.InputMouseButtonLeft, 1); err != nil {
				continue
			}
			browser.WaitSettled(page, 5*time.Second)
			return true
		}
	}
	return false
}

// attemptSubmit locates and clicks a submit/next control, then decides
// success by URL change or absence of visible error indicators.
func attemptSubmit(page *rod.Page) (clicked, succeeded bool) {
	before := browser.CurrentURL(page)

	buttons, err := page.Elements(`button, input[type="submit"], a[role="button"]`)
	if err != nil {
		return false, false
	}

	var target *rod.Element
	for _, keyword := range submitKeywords {
		for _, b := range buttons {
			text := elementText(b)
			if text == "" || !strings.Contains(text, keyword) {
				continue
			}
			if visible, verr := b.Visible(); verr != nil || !visible {
				continue
			}
			target = b
			break
		}
		if target != nil {
			break
		}
	}
	if target == nil {
		return false, false
	}

	if err := target.ScrollIntoView(); err != nil {
		return false, false
	}
	if err := target.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, false
	}
	browser.WaitSettled(page, 8*time.Second)

	after := browser.CurrentURL(page)
	if after != "" && after != before {
		return true, true
	}
	return true, !hasVisibleErrors(page)
}

// hasVisibleErrors looks for validation error indicators after submit
func hasVisibleErrors(page *rod.Page) bool {
	res, err := page.Eval(`() => {
		const nodes = document.querySelectorAll('[class*="error"], [role="alert"], [aria-invalid="true"]');
		for (const n of nodes) {
			const style = window.getComputedStyle(n);
			const rect = n.getBoundingClientRect();
			if (style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0) {
				if ((n.textContent || '').trim().length > 0 || n.matches('[aria-invalid="true"]')) return true;
			}
		}
		return false;
	}`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// hasFormFields reports whether the page exposes enough inputs to be an
// application form.
func hasFormFields(page *rod.Page) bool {
	res, err := page.Eval(`() => document.querySelectorAll('input:not([type="hidden"]), select, textarea').length`)
	if err != nil {
		return false
	}
	return res.Value.Int() >= 2
}

func elementText(el *rod.Element) string {
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(text))
}

// fillLoginForm types a stored credential into a login wall's fields and
// submits. Returns false when the form shape is unrecognizable.
func fillLoginForm(page *rod.Page, username, password string) bool {
	userInput, err := page.Element(`input[type="email"], input[name*="user" i], input[name*="email" i], input[type="text"]`)
	if err != nil {
		return false
	}
	passInput, err := page.Element(`input[type="password"]`)
	if err != nil {
		return false
	}

	if err := userInput.SelectAllText(); err != nil {
		return false
	}
	if err := userInput.Input(username); err != nil {
		return false
	}
	if err := passInput.SelectAllText(); err != nil {
		return false
	}
	if err := passInput.Input(password); err != nil {
		return false
	}

	if submit, err := page.Element(`button[type="submit"], input[type="submit"]`); err == nil {
		if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return false
		}
	} else {
		if err := passInput.Type(input.Enter); err != nil {
			return false
		}
	}
	return true
}
