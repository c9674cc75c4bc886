package interactor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/protocorn/launchway/modules/formfill/model"
	"github.com/protocorn/launchway/modules/formfill/recorder"
	"go.uber.org/zap"
)

// Resolver rejoins a stable id to a live element. Satisfied by the
// detector; split out so tests can stub re-resolution.
type Resolver interface {
	Resolve(page *rod.Page, stableID string) (*rod.Element, error)
}

// Config tunes the retry/verify loop
type Config struct {
	MaxRetries          int
	SettleWait          time.Duration
	SkillMatchThreshold float64
	MaxSkills           int
}

// Interactor performs DOM interactions with verification and retries.
// Every attempt follows the same shape: re-resolve, act, settle, verify,
// retry with backoff, record.
type Interactor struct {
	resolver Resolver
	rec      *recorder.Recorder
	cfg      Config
	log      *logger.Logger
}

// New creates the interactor
func New(resolver Resolver, rec *recorder.Recorder, cfg Config, log *logger.Logger) *Interactor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SettleWait <= 0 {
		cfg.SettleWait = 300 * time.Millisecond
	}
	if cfg.SkillMatchThreshold <= 0 {
		cfg.SkillMatchThreshold = 0.8
	}
	if cfg.MaxSkills <= 0 {
		cfg.MaxSkills = 10
	}
	return &Interactor{resolver: resolver, rec: rec, cfg: cfg, log: log}
}

// ErrUnfillable marks a value/category combination with no strategy
var ErrUnfillable = errors.New("no strategy for field")

// Fill drives one field to the resolved value. Returns nil only after a
// successful verification.
func (in *Interactor) Fill(ctx context.Context, page *rod.Page, field *model.FieldDescriptor, value model.ResolvedValue) error {
	if value.Kind == model.ValueSkip {
		in.rec.Record(model.ActionRecord{
			Kind:     actionKind(field.Category),
			StableID: field.StableID,
			Success:  true,
			Value:    "",
			Error:    "skipped: " + value.Reason,
		})
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= in.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		verification, err := in.attempt(ctx, page, field, value)
		if err == nil {
			in.rec.Record(model.ActionRecord{
				Kind:         actionKind(field.Category),
				StableID:     field.StableID,
				Value:        recordedValue(field, value),
				Success:      true,
				RetryCount:   attempt,
				Verification: verification,
			})
			return nil
		}
		lastErr = err
		in.log.Debug("field attempt failed",
			zap.String("stable_id", field.StableID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	in.rec.Record(model.ActionRecord{
		Kind:       actionKind(field.Category),
		StableID:   field.StableID,
		Value:      recordedValue(field, value),
		Success:    false,
		RetryCount: in.cfg.MaxRetries,
		Error:      lastErr.Error(),
	})
	return lastErr
}

// attempt runs one perform+verify cycle for the field's category
func (in *Interactor) attempt(ctx context.Context, page *rod.Page, field *model.FieldDescriptor, value model.ResolvedValue) (*model.Verification, error) {
	el, err := in.resolver.Resolve(page, field.StableID)
	if err != nil {
		return nil, fmt.Errorf("re-resolution failed: %w", err)
	}

	switch field.Category {
	case model.CategoryText, model.CategoryEmail, model.CategoryPhone,
		model.CategoryURL, model.CategoryNumber, model.CategoryDate,
		model.CategoryPassword:
		return in.fillText(el, value.Text)
	case model.CategoryTextarea:
		return in.fillTextarea(el, value.Text)
	case model.CategorySelectNative:
		return in.selectNative(el, value.Text)
	case model.CategorySelectCustom, model.CategorySelectWorkday, model.CategorySelectGreenhouse:
		return in.selectCustom(page, el, field, value.Text)
	case model.CategoryButtonGroup:
		return in.clickButtonGroup(el, value)
	case model.CategoryCheckbox, model.CategoryRadio:
		return in.setChecked(el, value)
	case model.CategoryFileUpload:
		return in.uploadFile(page, el, value.Text)
	case model.CategoryMultiselectSkills:
		return in.fillSkills(ctx, page, el, splitSkills(value.Text))
	default:
		return nil, ErrUnfillable
	}
}

// fillText clears, types and verifies by exact read-back
func (in *Interactor) fillText(el *rod.Element, text string) (*model.Verification, error) {
	if err := in.ensureActionable(el); err != nil {
		return nil, err
	}
	if err := el.SelectAllText(); err != nil {
		return nil, fmt.Errorf("select-all failed: %w", err)
	}
	if err := el.Input(text); err != nil {
		return nil, fmt.Errorf("typing failed: %w", err)
	}
	time.Sleep(in.cfg.SettleWait)

	actual, err := in.readValue(el)
	if err != nil {
		return nil, fmt.Errorf("read-back failed: %w", err)
	}
	v := &model.Verification{Expected: text, Actual: actual}
	if actual != text {
		return v, fmt.Errorf("read-back mismatch: want %q got %q", text, actual)
	}
	return v, nil
}

// fillTextarea fills long text; read-back only, no deeper verification
func (in *Interactor) fillTextarea(el *rod.Element, text string) (*model.Verification, error) {
	return in.fillText(el, text)
}

// selectNative selects by label; when that fails it retries with the same
// text as the option's value attribute. Duplicate labels are not detected.
func (in *Interactor) selectNative(el *rod.Element, optionText string) (*model.Verification, error) {
	if err := in.ensureActionable(el); err != nil {
		return nil, err
	}
	if err := el.Select([]string{optionText}, true, rod.SelectorTypeText); err != nil {
		// Fallback: select by value attribute.
		if err2 := in.selectByValue(el, optionText); err2 != nil {
			return nil, fmt.Errorf("select failed: %v (by value: %v)", err, err2)
		}
	}
	time.Sleep(in.cfg.SettleWait)

	actual, err := in.selectedLabel(el)
	if err != nil {
		return nil, err
	}
	v := &model.Verification{Expected: optionText, Actual: actual}
	if !textMatches(optionText, actual) {
		return v, fmt.Errorf("selection mismatch: want %q got %q", optionText, actual)
	}
	return v, nil
}

func (in *Interactor) selectByValue(el *rod.Element, value string) error {
	_, err := el.Eval(`(v) => {
		const opt = Array.from(this.options).find(o => o.value === v);
		if (!opt) throw new Error('no option with value ' + v);
		this.value = opt.value;
		this.dispatchEvent(new Event('change', {bubbles: true}));
	}`, value)
	return err
}

func (in *Interactor) selectedLabel(el *rod.Element) (string, error) {
	res, err := el.Eval(`() => {
		const o = this.options[this.selectedIndex];
		return o ? o.textContent.trim() : '';
	}`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// setChecked drives a checkbox/radio to the decided state
func (in *Interactor) setChecked(el *rod.Element, value model.ResolvedValue) (*model.Verification, error) {
	want := value.Checked
	if value.Kind == model.ValueSelection || value.Kind == model.ValueSimple {
		want = strings.EqualFold(strings.TrimSpace(value.Text), "yes")
	}

	current, err := in.isChecked(el)
	if err != nil {
		return nil, err
	}
	if current != want {
		// Native check first; click as fallback for styled inputs.
		if _, err := el.Eval(`(v) => { this.checked = v; this.dispatchEvent(new Event('change', {bubbles: true})); }`, want); err != nil {
			if err := in.robustClick(el); err != nil {
				return nil, fmt.Errorf("toggle failed: %w", err)
			}
		}
		time.Sleep(in.cfg.SettleWait)
		current, err = in.isChecked(el)
		if err != nil {
			return nil, err
		}
		if current != want {
			// Styled widgets sometimes ignore property writes; click.
			if err := in.robustClick(el); err != nil {
				return nil, fmt.Errorf("toggle click failed: %w", err)
			}
			time.Sleep(in.cfg.SettleWait)
			current, err = in.isChecked(el)
			if err != nil {
				return nil, err
			}
		}
	}

	v := &model.Verification{Expected: fmt.Sprintf("%t", want), Actual: fmt.Sprintf("%t", current)}
	if current != want {
		return v, fmt.Errorf("checked state mismatch")
	}
	return v, nil
}

func (in *Interactor) isChecked(el *rod.Element) (bool, error) {
	res, err := el.Property("checked")
	if err != nil {
		return false, err
	}
	return res.Bool(), nil
}

func (in *Interactor) readValue(el *rod.Element) (string, error) {
	res, err := el.Property("value")
	if err != nil {
		return "", err
	}
	return res.Str(), nil
}

// ensureActionable scrolls the element into view
func (in *Interactor) ensureActionable(el *rod.Element) error {
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll into view failed: %w", err)
	}
	return nil
}

func actionKind(c model.FieldCategory) model.ActionKind {
	switch c {
	case model.CategorySelectNative, model.CategorySelectCustom,
		model.CategorySelectWorkday, model.CategorySelectGreenhouse:
		return model.ActionSelect
	case model.CategoryCheckbox, model.CategoryRadio, model.CategoryButtonGroup:
		return model.ActionClick
	case model.CategoryFileUpload:
		return model.ActionUpload
	default:
		return model.ActionFill
	}
}

func recordedValue(field *model.FieldDescriptor, value model.ResolvedValue) string {
	if field.Category == model.CategoryPassword {
		return "[redacted]"
	}
	if value.Kind == model.ValueCheck {
		return fmt.Sprintf("%t", value.Checked)
	}
	return value.Text
}

func splitSkills(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
