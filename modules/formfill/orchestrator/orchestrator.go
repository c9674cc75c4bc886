package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/go-rod/rod"
	"github.com/protocorn/launchway/internal/platform/llm"
	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/protocorn/launchway/modules/formfill/model"
	"github.com/protocorn/launchway/modules/formfill/tracker"
	profileModel "github.com/protocorn/launchway/modules/profile/model"
	"go.uber.org/zap"
)

// Scanner detects fields and lazily extracts dropdown options
type Scanner interface {
	Scan(page *rod.Page) ([]*model.FieldDescriptor, error)
	ExtractOptions(page *rod.Page, field *model.FieldDescriptor) ([]model.Option, error)
}

// SensitiveSplitter partitions fields into safe and held sets
type SensitiveSplitter interface {
	Split(fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (safe, held []*model.FieldDescriptor)
}

// FastMapper is the deterministic mapping pair of passes
type FastMapper interface {
	PatternPass(fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, []*model.FieldDescriptor)
	BatchPass(fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, []*model.FieldDescriptor)
	DropdownCandidates(label string, profile *profileModel.ProfileView) []string
}

// AIMapper is the quota-governed mapping batch trio plus essay generation
type AIMapper interface {
	MapText(ctx context.Context, userID string, fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, error)
	MapDropdowns(ctx context.Context, userID string, fields []*model.FieldDescriptor, profile *profileModel.ProfileView, candidates map[string][]string) (model.Mapping, error)
	MapChecks(ctx context.Context, userID string, fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, error)
	GenerateEssay(ctx context.Context, userID string, field *model.FieldDescriptor, profile *profileModel.ProfileView, jobContext string) (string, error)
}

// Filler performs the verified DOM interaction for one field
type Filler interface {
	Fill(ctx context.Context, page *rod.Page, field *model.FieldDescriptor, value model.ResolvedValue) error
}

// SectionExpander reconciles repeating-section cardinality
type SectionExpander interface {
	ExpandIfNeeded(page *rod.Page, profile *profileModel.ProfileView) bool
}

// Config bounds the control loop
type Config struct {
	MaxPasses int
}

// Result summarizes one full fill run over a page
type Result struct {
	Passes             int
	Filled             int
	Failed             int
	SensitiveHeld      int
	RequiredUnresolved bool
	LLMDeferred        bool
}

// Orchestrator runs detection and mapping passes until quiescent. The pass
// order is load-bearing: patterns are free and precise, keyword mapping is
// free and broad, option extraction mutates third-party DOM, and model
// calls burn quota — so each stage only sees what the previous one left.
type Orchestrator struct {
	scanner   Scanner
	sensitive SensitiveSplitter
	fast      FastMapper
	ai        AIMapper
	filler    Filler
	expander  SectionExpander
	cfg       Config
	log       *logger.Logger
}

// New creates the orchestrator
func New(scanner Scanner, sensitive SensitiveSplitter, fast FastMapper, ai AIMapper, filler Filler, expander SectionExpander, cfg Config, log *logger.Logger) *Orchestrator {
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = 4
	}
	return &Orchestrator{
		scanner:   scanner,
		sensitive: sensitive,
		fast:      fast,
		ai:        ai,
		filler:    filler,
		expander:  expander,
		cfg:       cfg,
		log:       log,
	}
}

// Run fills the current page for the given profile
func (o *Orchestrator) Run(ctx context.Context, page *rod.Page, userID string, profile *profileModel.ProfileView, trk *tracker.Tracker, jobContext string) (*Result, error) {
	result := &Result{}
	requiredIDs := make(map[string]bool)

	for pass := 0; pass < o.cfg.MaxPasses; pass++ {
		result.Passes = pass + 1
		fills := 0

		descriptors, err := o.scanner.Scan(page)
		if err != nil {
			return result, err
		}
		byID := make(map[string]*model.FieldDescriptor, len(descriptors))
		for _, d := range descriptors {
			byID[d.StableID] = d
			if d.Required {
				requiredIDs[d.StableID] = true
			}
		}

		safe, held := o.sensitive.Split(descriptors, profile)
		result.SensitiveHeld = len(held)

		eligible := trk.Filter(safe)
		eligible = skipPrefilled(eligible, trk)

		patternHits, remaining := o.fast.PatternPass(eligible, profile)
		fills += o.apply(ctx, page, byID, patternHits, trk, result)

		fastHits, remaining := o.fast.BatchPass(remaining, profile)
		fills += o.apply(ctx, page, byID, fastHits, trk, result)

		fills += o.essayPass(ctx, page, userID, byID, remaining, profile, trk, jobContext, result)

		aiHits := o.aiPass(ctx, page, userID, remaining, profile, result)
		fills += o.apply(ctx, page, byID, aiHits, trk, result)

		expanded := o.expander.ExpandIfNeeded(page, profile)
		if !expanded && fills == 0 {
			break
		}
	}

	result.RequiredUnresolved = unresolvedRequired(requiredIDs, trk)
	o.log.Info("fill run finished",
		zap.Int("passes", result.Passes),
		zap.Int("filled", result.Filled),
		zap.Int("failed", result.Failed),
		zap.Int("sensitive_held", result.SensitiveHeld),
		zap.Bool("required_unresolved", result.RequiredUnresolved),
	)
	return result, nil
}

// apply drives every mapping entry through the filler and tracks outcomes
func (o *Orchestrator) apply(ctx context.Context, page *rod.Page, byID map[string]*model.FieldDescriptor, mapping model.Mapping, trk *tracker.Tracker, result *Result) int {
	fills := 0
	for id, value := range mapping {
		field, ok := byID[id]
		if !ok {
			continue
		}
		if value.Kind == model.ValueSkip {
			trk.Record(id, model.StatusSkipped, "")
			continue
		}
		if err := o.filler.Fill(ctx, page, field, value); err != nil {
			trk.Record(id, model.StatusFailed, value.Text)
			result.Failed++
			continue
		}
		trk.Record(id, model.StatusSucceeded, value.Text)
		result.Filled++
		fills++
	}
	return fills
}

// essayPass generates long-form answers for question-style textareas
func (o *Orchestrator) essayPass(ctx context.Context, page *rod.Page, userID string, byID map[string]*model.FieldDescriptor, remaining []*model.FieldDescriptor, profile *profileModel.ProfileView, trk *tracker.Tracker, jobContext string, result *Result) int {
	fills := 0
	for _, f := range remaining {
		if f.Category != model.CategoryTextarea || !looksLikeEssay(f.Label) {
			continue
		}
		text, err := o.ai.GenerateEssay(ctx, userID, f, profile, jobContext)
		if err != nil {
			if errors.Is(err, llm.ErrQuotaExhausted) {
				result.LLMDeferred = true
				return fills
			}
			trk.Record(f.StableID, model.StatusFailed, "")
			result.Failed++
			continue
		}
		if err := o.filler.Fill(ctx, page, f, model.Generated(text)); err != nil {
			trk.Record(f.StableID, model.StatusFailed, "")
			result.Failed++
			continue
		}
		trk.Record(f.StableID, model.StatusSucceeded, text)
		result.Filled++
		fills++
	}
	return fills
}

// aiPass runs the three model batches over whatever is still unresolved.
// Quota exhaustion defers the batch to a later pass instead of failing.
func (o *Orchestrator) aiPass(ctx context.Context, page *rod.Page, userID string, remaining []*model.FieldDescriptor, profile *profileModel.ProfileView, result *Result) model.Mapping {
	out := make(model.Mapping)

	var textFields, dropdowns, checks []*model.FieldDescriptor
	for _, f := range remaining {
		switch {
		case f.Category.IsDropdown():
			dropdowns = append(dropdowns, f)
		case f.Category == model.CategoryCheckbox || f.Category == model.CategoryRadio || f.Category == model.CategoryButtonGroup:
			checks = append(checks, f)
		case f.Category.IsTextLike() && f.Category != model.CategoryTextarea:
			textFields = append(textFields, f)
		}
	}

	if hits, err := o.ai.MapText(ctx, userID, textFields, profile); err == nil {
		out.Merge(hits)
	} else if errors.Is(err, llm.ErrQuotaExhausted) {
		result.LLMDeferred = true
		return out
	} else {
		o.log.Warn("ai text batch failed", zap.Error(err))
	}

	// Option extraction happens only now, and only for fields that made it
	// this far: it opens popups on third-party pages.
	candidates := make(map[string][]string)
	var extractable []*model.FieldDescriptor
	for _, f := range dropdowns {
		options, err := o.scanner.ExtractOptions(page, f)
		if err != nil || len(options) == 0 {
			o.log.Debug("option extraction failed", zap.String("stable_id", f.StableID), zap.Error(err))
			continue
		}
		f.Options = options
		candidates[f.StableID] = o.fast.DropdownCandidates(f.Label, profile)
		extractable = append(extractable, f)
	}

	if hits, err := o.ai.MapDropdowns(ctx, userID, extractable, profile, candidates); err == nil {
		out.Merge(hits)
	} else if errors.Is(err, llm.ErrQuotaExhausted) {
		result.LLMDeferred = true
		return out
	} else {
		o.log.Warn("ai dropdown batch failed", zap.Error(err))
	}

	if hits, err := o.ai.MapChecks(ctx, userID, checks, profile); err == nil {
		out.Merge(hits)
	} else if errors.Is(err, llm.ErrQuotaExhausted) {
		result.LLMDeferred = true
	} else {
		o.log.Warn("ai check batch failed", zap.Error(err))
	}

	return out
}

// skipPrefilled records pre-filled fields as succeeded so they are elided
// from every later pass.
func skipPrefilled(fields []*model.FieldDescriptor, trk *tracker.Tracker) []*model.FieldDescriptor {
	out := make([]*model.FieldDescriptor, 0, len(fields))
	for _, f := range fields {
		if f.Filled {
			// A pre-filled field counts as done; later passes elide it and
			// the required check treats it as resolved.
			trk.Record(f.StableID, model.StatusSucceeded, "")
			continue
		}
		out = append(out, f)
	}
	return out
}

func unresolvedRequired(requiredIDs map[string]bool, trk *tracker.Tracker) bool {
	for id := range requiredIDs {
		if !trk.Succeeded(id) {
			return true
		}
	}
	return false
}

func looksLikeEssay(label string) bool {
	lower := strings.ToLower(label)
	for _, marker := range []string{"why", "describe", "tell us", "cover letter", "explain", "what interests", "motivation"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
