package detector

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/protocorn/launchway/modules/formfill/classifier"
	"github.com/protocorn/launchway/modules/formfill/model"
	"go.uber.org/zap"
)

// interactiveSelector is the union of elements the engine can operate on.
// Custom widgets surface through their inner input or their combobox role.
const interactiveSelector = `input, select, textarea, [role="combobox"], [aria-haspopup="listbox"], [aria-haspopup="true"]`

// elementFacts is the JS observation for one element. Field names mirror
// the script below.
type elementFacts struct {
	Tag            string `json:"tag"`
	Type           string `json:"type"`
	ID             string `json:"id"`
	Name           string `json:"name"`
	AriaLabel      string `json:"ariaLabel"`
	Placeholder    string `json:"placeholder"`
	Label          string `json:"label"`
	Required       bool   `json:"required"`
	Filled         bool   `json:"filled"`
	Visible        bool   `json:"visible"`
	Role           string `json:"role"`
	AriaHasPopup   string `json:"ariaHasPopup"`
	ContainerClass string `json:"containerClass"`
	AutomationID   string `json:"automationId"`
	SiblingButtons int    `json:"siblingButtons"`
	Hidden         bool   `json:"hidden"`
	HasSearchInput bool   `json:"hasSearchInput"`
	Multiple       bool   `json:"multiple"`
}

// factsScript resolves the label chain and structural facts for one
// element. Read-only: it never scrolls or mutates the DOM.
const factsScript = `() => {
	const el = this;
	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();

	const text = n => (n && n.textContent || '').replace(/\s+/g, ' ').trim();

	const labelFor = () => {
		if (el.id) {
			const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (l) return text(l);
		}
		return '';
	};
	const labelledBy = () => {
		const ids = el.getAttribute('aria-labelledby');
		if (!ids) return '';
		return ids.split(/\s+/).map(id => text(document.getElementById(id))).join(' ').trim();
	};
	const legend = () => {
		const type = (el.getAttribute('type') || '').toLowerCase();
		if (type !== 'radio' && type !== 'checkbox') return '';
		const fs = el.closest('fieldset');
		if (!fs) return '';
		const lg = fs.querySelector('legend');
		if (!lg) return '';
		const own = el.closest('label');
		return (text(lg) + ' ' + (own ? text(own) : '')).trim();
	};
	const precedingText = () => {
		const form = el.closest('form, [role="form"], .application-form, body');
		let node = el;
		while (node && node !== form) {
			let sib = node.previousElementSibling;
			while (sib) {
				if (/^(LABEL|LEGEND|H1|H2|H3|H4|H5|H6|P|SPAN|DIV)$/.test(sib.tagName)) {
					const t = text(sib);
					if (t && t.length < 200 && !sib.querySelector('input, select, textarea')) return t;
				}
				sib = sib.previousElementSibling;
			}
			node = node.parentElement;
		}
		return '';
	};

	const label = labelFor()
		|| el.getAttribute('aria-label')
		|| labelledBy()
		|| legend()
		|| precedingText()
		|| el.getAttribute('placeholder')
		|| '';

	const tag = el.tagName.toLowerCase();
	const type = (el.getAttribute('type') || '').toLowerCase();
	const container = el.closest('[data-automation-id], [class*="select"], [class*="dropdown"], [class*="combobox"], [class*="multiselect"]');
	const parent = el.parentElement;

	let siblingButtons = 0;
	if (parent) siblingButtons = parent.querySelectorAll(':scope > button').length;

	const hiddenByStyle = style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0';
	const zeroBox = rect.width === 0 || rect.height === 0;

	let filled = false;
	if (type === 'checkbox' || type === 'radio') filled = el.checked;
	else if (tag === 'select') filled = el.selectedIndex > 0 || (el.value || '') !== '';
	else filled = (el.value || '') !== '';

	return {
		tag: tag,
		type: type,
		id: el.id || '',
		name: el.getAttribute('name') || '',
		ariaLabel: el.getAttribute('aria-label') || '',
		placeholder: el.getAttribute('placeholder') || '',
		label: label.trim(),
		required: el.required === true || el.getAttribute('aria-required') === 'true',
		filled: filled,
		visible: !zeroBox && !hiddenByStyle && type !== 'hidden',
		role: el.getAttribute('role') || '',
		ariaHasPopup: el.getAttribute('aria-haspopup') || '',
		containerClass: container ? (container.getAttribute('class') || '') : '',
		automationId: (container && container.getAttribute('data-automation-id')) || el.getAttribute('data-automation-id') || '',
		siblingButtons: siblingButtons,
		hidden: hiddenByStyle || zeroBox,
		hasSearchInput: !!(container && container.querySelector('input[type="text"], input[type="search"], input:not([type])')),
		multiple: el.multiple === true || el.getAttribute('aria-multiselectable') === 'true'
	};
}`

const defaultPopupWait = 3 * time.Second

// Detector enumerates the interactive elements of a page or frame
type Detector struct {
	log *logger.Logger
}

// New creates a detector
func New(log *logger.Logger) *Detector {
	return &Detector{log: log}
}

// Scan returns descriptors for every currently visible interactive
// element, in document order. Stable ids are unique within the result; a
// colliding id gets an ordinal suffix.
func (d *Detector) Scan(page *rod.Page) ([]*model.FieldDescriptor, error) {
	elements, err := page.Elements(interactiveSelector)
	if err != nil {
		return nil, fmt.Errorf("element enumeration failed: %w", err)
	}

	seen := make(map[string]int)
	var out []*model.FieldDescriptor

	for i, el := range elements {
		facts, err := d.observe(el)
		if err != nil {
			d.log.Debug("element observation failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		// Hidden inputs fronted by custom chrome (vendor dropdowns,
		// button groups) stay in; truly invisible elements are skipped.
		structural := facts.SiblingButtons >= 2 ||
			facts.AriaHasPopup != "" ||
			strings.Contains(strings.ToLower(facts.ContainerClass), "select")
		if !facts.Visible && !(facts.Hidden && structural) {
			continue
		}

		ef := model.ElementFacts{
			Role:           facts.Role,
			AriaHasPopup:   facts.AriaHasPopup,
			ContainerClass: facts.ContainerClass,
			AutomationID:   facts.AutomationID,
			SiblingButtons: facts.SiblingButtons,
			Hidden:         facts.Hidden,
			HasSearchInput: facts.HasSearchInput,
			Multiple:       facts.Multiple,
		}

		stableID := model.StableID(facts.ID, facts.Name, facts.AriaLabel, facts.Label, facts.Placeholder, facts.Tag, facts.Type, i)
		if n := seen[stableID]; n > 0 {
			seen[stableID] = n + 1
			stableID = fmt.Sprintf("%s#%d", stableID, n)
		} else {
			seen[stableID] = 1
		}

		out = append(out, &model.FieldDescriptor{
			StableID:    stableID,
			Label:       facts.Label,
			Category:    classifier.Classify(facts.Tag, facts.Type, ef),
			Required:    facts.Required,
			Filled:      facts.Filled,
			Placeholder: facts.Placeholder,
			Tag:         facts.Tag,
			InputType:   facts.Type,
			Index:       i,
			Facts:       ef,
			Handle:      el,
		})
	}

	d.log.Debug("page scan complete", zap.Int("fields", len(out)))
	return out, nil
}

func (d *Detector) observe(el *rod.Element) (*elementFacts, error) {
	res, err := el.Eval(factsScript)
	if err != nil {
		return nil, err
	}
	facts := &elementFacts{}
	raw, err := json.Marshal(res.Value)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, facts); err != nil {
		return nil, err
	}
	return facts, nil
}

// Resolve rejoins a stable id to a live element by rescanning. Handles are
// never trusted across passes; this is the only sanctioned way back.
func (d *Detector) Resolve(page *rod.Page, stableID string) (*rod.Element, error) {
	descriptors, err := d.Scan(page)
	if err != nil {
		return nil, err
	}
	for _, desc := range descriptors {
		if desc.StableID == stableID {
			if el, ok := desc.Handle.(*rod.Element); ok {
				return el, nil
			}
		}
	}
	return nil, fmt.Errorf("element %q not found on page", stableID)
}

// ExtractOptions reads the option list of a dropdown-like field. Expensive
// for custom widgets (opens the popup), so callers gate it behind the
// completion tracker.
func (d *Detector) ExtractOptions(page *rod.Page, field *model.FieldDescriptor) ([]model.Option, error) {
	el, ok := field.Handle.(*rod.Element)
	if !ok {
		var err error
		el, err = d.Resolve(page, field.StableID)
		if err != nil {
			return nil, err
		}
	}

	if field.Category == model.CategorySelectNative {
		return nativeOptions(el)
	}
	return popupOptions(page, el)
}

func nativeOptions(el *rod.Element) ([]model.Option, error) {
	res, err := el.Eval(`() => Array.from(this.options).map(o => ({text: o.textContent.trim(), value: o.value}))`)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Text  string `json:"text"`
		Value string `json:"value"`
	}
	encoded, err := json.Marshal(res.Value)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(encoded, &raw); err != nil {
		return nil, err
	}
	out := make([]model.Option, 0, len(raw))
	for _, o := range raw {
		if o.Text == "" && o.Value == "" {
			continue
		}
		out = append(out, model.Option{Text: o.Text, Value: o.Value})
	}
	return out, nil
}

// popupOptions opens a custom dropdown, reads its popup entries, and
// closes it again with Escape.
func popupOptions(page *rod.Page, el *rod.Element) ([]model.Option, error) {
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("unable to open dropdown: %w", err)
	}

	list, err := page.Timeout(defaultPopupWait).Element(`[role="listbox"], [role="menu"], ul[class*="option"], div[class*="option"]`)
	if err != nil {
		_ = page.Keyboard.Press(input.Escape)
		return nil, fmt.Errorf("dropdown popup did not appear: %w", err)
	}

	res, err := list.Eval(`() => Array.from(this.querySelectorAll('[role="option"], li, [class*="option"]'))
		.map(o => o.textContent.replace(/\s+/g, ' ').trim())
		.filter(t => t.length > 0)`)
	if err != nil {
		_ = page.Keyboard.Press(input.Escape)
		return nil, err
	}
	var texts []string
	encoded, err := json.Marshal(res.Value)
	if err == nil {
		err = json.Unmarshal(encoded, &texts)
	}
	if err != nil {
		_ = page.Keyboard.Press(input.Escape)
		return nil, err
	}

	_ = page.Keyboard.Press(input.Escape)

	seen := make(map[string]bool)
	out := make([]model.Option, 0, len(texts))
	for _, t := range texts {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, model.Option{Text: t, Value: t})
	}
	return out, nil
}
