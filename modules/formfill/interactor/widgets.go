package interactor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/protocorn/launchway/modules/formfill/model"
	"go.uber.org/zap"
)

const popupSelector = `[role="listbox"], [role="menu"], ul[class*="option"], div[class*="option"], div[class*="menu"]`
const optionSelector = `[role="option"], li, [class*="option"]`

// selectCustom opens a custom/vendor dropdown, clicks the best-matching
// option, and closes any residual overlay.
func (in *Interactor) selectCustom(page *rod.Page, el *rod.Element, field *model.FieldDescriptor, optionText string) (*model.Verification, error) {
	if err := in.ensureActionable(el); err != nil {
		return nil, err
	}
	if err := in.robustClick(el); err != nil {
		return nil, fmt.Errorf("unable to open dropdown: %w", err)
	}

	popup, err := page.Timeout(3 * time.Second).Element(popupSelector)
	if err != nil {
		_ = page.Keyboard.Press(input.Escape)
		return nil, fmt.Errorf("dropdown popup did not appear: %w", err)
	}

	options, err := popup.Elements(optionSelector)
	if err != nil || len(options) == 0 {
		_ = page.Keyboard.Press(input.Escape)
		return nil, fmt.Errorf("dropdown popup has no options")
	}

	target := in.pickOption(options, optionText)
	if target == nil {
		_ = page.Keyboard.Press(input.Escape)
		return nil, fmt.Errorf("no option matching %q", optionText)
	}

	picked, _ := target.Text()
	picked = strings.TrimSpace(picked)
	if err := in.robustClick(target); err != nil {
		_ = page.Keyboard.Press(input.Escape)
		return nil, fmt.Errorf("option click failed: %w", err)
	}
	time.Sleep(in.cfg.SettleWait)

	// Residual overlays swallow later clicks; Escape is harmless when the
	// popup already closed.
	if stillOpen, _, _ := page.Has(popupSelector); stillOpen {
		_ = page.Keyboard.Press(input.Escape)
	}

	return &model.Verification{Expected: optionText, Actual: picked}, nil
}

// pickOption finds the first exact/containment match, then falls back to
// the best word-Jaccard candidate over the configured threshold.
func (in *Interactor) pickOption(options rod.Elements, intended string) *rod.Element {
	var bestEl *rod.Element
	bestScore := 0.0
	for _, opt := range options {
		text, err := opt.Text()
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, intended) {
			return opt
		}
		if textMatches(intended, text) && bestScore < 1 {
			bestEl = opt
			bestScore = 1
			continue
		}
		if score := wordJaccard(intended, text); score > bestScore {
			bestEl = opt
			bestScore = score
		}
	}
	if bestScore >= 1 {
		return bestEl
	}
	if bestScore >= in.cfg.SkillMatchThreshold {
		return bestEl
	}
	return nil
}

// clickButtonGroup clicks the sibling button whose text equals the
// intended value, then verifies via aria-pressed or a selection class.
func (in *Interactor) clickButtonGroup(el *rod.Element, value model.ResolvedValue) (*model.Verification, error) {
	intended := value.Text
	if value.Kind == model.ValueCheck {
		if value.Checked {
			intended = "Yes"
		} else {
			intended = "No"
		}
	}

	parent, err := el.Parent()
	if err != nil {
		return nil, fmt.Errorf("button group parent not found: %w", err)
	}
	buttons, err := parent.Elements("button")
	if err != nil || len(buttons) == 0 {
		return nil, fmt.Errorf("button group has no buttons")
	}

	var target *rod.Element
	for _, b := range buttons {
		text, err := b.Text()
		if err != nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(intended)) {
			target = b
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("no button with text %q", intended)
	}

	if err := in.robustClick(target); err != nil {
		return nil, err
	}
	time.Sleep(in.cfg.SettleWait)

	pressed, _ := target.Attribute("aria-pressed")
	class, _ := target.Attribute("class")
	selected := (pressed != nil && *pressed == "true") ||
		(class != nil && (strings.Contains(*class, "selected") || strings.Contains(*class, "active")))

	v := &model.Verification{Expected: intended, Actual: fmt.Sprintf("pressed=%t", selected)}
	if !selected {
		return v, fmt.Errorf("button group selection not confirmed")
	}
	return v, nil
}

// uploadFile sets the file on the input and verifies via files count or a
// visible filename indicator.
func (in *Interactor) uploadFile(page *rod.Page, el *rod.Element, path string) (*model.Verification, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("upload source missing: %w", err)
	}

	if err := el.SetFiles([]string{path}); err != nil {
		return nil, fmt.Errorf("set files failed: %w", err)
	}
	time.Sleep(in.cfg.SettleWait)

	res, err := el.Eval(`() => this.files ? this.files.length : 0`)
	if err == nil && res.Value.Int() > 0 {
		return &model.Verification{Expected: path, Actual: fmt.Sprintf("%d file(s)", res.Value.Int())}, nil
	}

	// Dropzone-style widgets clear the input and render the name instead.
	base := path[strings.LastIndex(path, "/")+1:]
	if has, _, _ := page.HasR("*", regexpEscape(base)); has {
		return &model.Verification{Expected: path, Actual: base}, nil
	}
	return nil, fmt.Errorf("upload not confirmed")
}

// fillSkills adds each skill through the multiselect's search input. A
// skill commits only on an exact/containment suggestion or a suggestion
// over the similarity threshold; anything else is discarded.
func (in *Interactor) fillSkills(ctx context.Context, page *rod.Page, el *rod.Element, skills []string) (*model.Verification, error) {
	if len(skills) > in.cfg.MaxSkills {
		skills = skills[:in.cfg.MaxSkills]
	}

	search, err := in.findSearchInput(el)
	if err != nil {
		return nil, err
	}

	var added []string
	for _, skill := range skills {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := in.addSkill(page, search, skill); err != nil {
			in.log.Debug("skill not added", zap.String("skill", skill), zap.Error(err))
			continue
		}
		added = append(added, skill)
	}

	v := &model.Verification{
		Expected: strings.Join(skills, ", "),
		Actual:   strings.Join(added, ", "),
	}
	if len(added) == 0 {
		return v, fmt.Errorf("no skills could be added")
	}
	return v, nil
}

func (in *Interactor) findSearchInput(el *rod.Element) (*rod.Element, error) {
	tag, err := el.Eval(`() => this.tagName.toLowerCase()`)
	if err == nil && tag.Value.Str() == "input" {
		return el, nil
	}
	search, err := el.Element(`input[type="text"], input[type="search"], input:not([type])`)
	if err != nil {
		return nil, fmt.Errorf("multiselect search input not found: %w", err)
	}
	return search, nil
}

func (in *Interactor) addSkill(page *rod.Page, search *rod.Element, skill string) error {
	if err := search.Focus(); err != nil {
		return err
	}
	if err := search.SelectAllText(); err != nil {
		return err
	}
	if err := search.Input(skill); err != nil {
		return err
	}
	time.Sleep(in.cfg.SettleWait)

	// Prefer clicking an exact/containment suggestion.
	if popup, err := page.Timeout(2 * time.Second).Element(popupSelector); err == nil {
		if options, err := popup.Elements(optionSelector); err == nil {
			for _, opt := range options {
				text, err := opt.Text()
				if err != nil {
					continue
				}
				if textMatches(skill, text) {
					return in.robustClick(opt)
				}
			}
			// Enter commits the typed value; accept the top suggestion
			// only when it is close enough to what was intended.
			if len(options) > 0 {
				top, err := options[0].Text()
				if err == nil && wordJaccard(skill, top) >= in.cfg.SkillMatchThreshold {
					if err := search.Type(input.Enter); err != nil {
						return err
					}
					return nil
				}
			}
		}
	}
	return fmt.Errorf("no acceptable suggestion for %q", skill)
}

// robustClick recovers from overlay interception: scroll into view, try a
// native click, then a box-center mouse click, then event dispatch, and as
// a last resort dismiss common overlays and retry.
func (in *Interactor) robustClick(el *rod.Element) error {
	_ = el.ScrollIntoView()

	if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
		return nil
	}

	if shape, err := el.Shape(); err == nil {
		if box := shape.Box(); box != nil {
			page := el.Page()
			if err := page.Mouse.MoveTo(proto.Point{X: box.X + box.Width/2, Y: box.Y + box.Height/2}); err == nil {
				if err := page.Mouse.Click(proto.InputMouseButtonLeft, 1); err == nil {
					return nil
				}
			}
		}
	}

	if _, err := el.Eval(`() => this.click()`); err == nil {
		return nil
	}

	in.dismissOverlays(el.Page())
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed after overlay dismissal: %w", err)
	}
	return nil
}

// dismissOverlays closes cookie banners and modal scrims that intercept
// pointer events.
func (in *Interactor) dismissOverlays(page *rod.Page) {
	_ = page.Keyboard.Press(input.Escape)
	_, _ = page.Eval(`() => {
		const selectors = [
			'[class*="cookie"] button',
			'[id*="cookie"] button',
			'[class*="consent"] button',
			'[class*="modal"] [class*="close"]',
			'[aria-label="Close"]'
		];
		for (const sel of selectors) {
			const btn = document.querySelector(sel);
			if (btn) { btn.click(); return true; }
		}
		return false;
	}`)
}

func regexpEscape(s string) string {
	replacer := strings.NewReplacer(
		`.`, `\.`, `+`, `\+`, `*`, `\*`, `?`, `\?`, `(`, `\(`, `)`, `\)`,
		`[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`, `^`, `\^`, `$`, `\$`, `|`, `\|`,
	)
	return replacer.Replace(s)
}
