package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/go-rod/rod"
	"github.com/protocorn/launchway/internal/platform/llm"
	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/protocorn/launchway/modules/formfill/model"
	"github.com/protocorn/launchway/modules/formfill/tracker"
	profileModel "github.com/protocorn/launchway/modules/profile/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockScanner implements Scanner
type MockScanner struct {
	ScanFunc           func(page *rod.Page) ([]*model.FieldDescriptor, error)
	ExtractOptionsFunc func(page *rod.Page, field *model.FieldDescriptor) ([]model.Option, error)
	ScanCalls          int
	ExtractCalls       int
}

func (m *MockScanner) Scan(page *rod.Page) ([]*model.FieldDescriptor, error) {
	m.ScanCalls++
	if m.ScanFunc != nil {
		return m.ScanFunc(page)
	}
	return nil, nil
}

func (m *MockScanner) ExtractOptions(page *rod.Page, field *model.FieldDescriptor) ([]model.Option, error) {
	m.ExtractCalls++
	if m.ExtractOptionsFunc != nil {
		return m.ExtractOptionsFunc(page, field)
	}
	return nil, nil
}

// MockSplitter implements SensitiveSplitter
type MockSplitter struct {
	SplitFunc func(fields []*model.FieldDescriptor, profile *profileModel.ProfileView) ([]*model.FieldDescriptor, []*model.FieldDescriptor)
}

func (m *MockSplitter) Split(fields []*model.FieldDescriptor, profile *profileModel.ProfileView) ([]*model.FieldDescriptor, []*model.FieldDescriptor) {
	if m.SplitFunc != nil {
		return m.SplitFunc(fields, profile)
	}
	return fields, nil
}

// MockFast implements FastMapper
type MockFast struct {
	PatternFunc func(fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, []*model.FieldDescriptor)
	BatchFunc   func(fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, []*model.FieldDescriptor)
}

func (m *MockFast) PatternPass(fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, []*model.FieldDescriptor) {
	if m.PatternFunc != nil {
		return m.PatternFunc(fields, profile)
	}
	return model.Mapping{}, fields
}

func (m *MockFast) BatchPass(fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, []*model.FieldDescriptor) {
	if m.BatchFunc != nil {
		return m.BatchFunc(fields, profile)
	}
	return model.Mapping{}, fields
}

func (m *MockFast) DropdownCandidates(label string, profile *profileModel.ProfileView) []string {
	return nil
}

// MockAI implements AIMapper
type MockAI struct {
	MapTextFunc      func(ctx context.Context, userID string, fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, error)
	MapDropdownsFunc func(ctx context.Context, userID string, fields []*model.FieldDescriptor, profile *profileModel.ProfileView, candidates map[string][]string) (model.Mapping, error)
	MapChecksFunc    func(ctx context.Context, userID string, fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, error)
	TextCalls        int
	DropdownCalls    int
}

func (m *MockAI) MapText(ctx context.Context, userID string, fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, error) {
	if len(fields) > 0 {
		m.TextCalls++
	}
	if m.MapTextFunc != nil {
		return m.MapTextFunc(ctx, userID, fields, profile)
	}
	return model.Mapping{}, nil
}

func (m *MockAI) MapDropdowns(ctx context.Context, userID string, fields []*model.FieldDescriptor, profile *profileModel.ProfileView, candidates map[string][]string) (model.Mapping, error) {
	if len(fields) > 0 {
		m.DropdownCalls++
	}
	if m.MapDropdownsFunc != nil {
		return m.MapDropdownsFunc(ctx, userID, fields, profile, candidates)
	}
	return model.Mapping{}, nil
}

func (m *MockAI) MapChecks(ctx context.Context, userID string, fields []*model.FieldDescriptor, profile *profileModel.ProfileView) (model.Mapping, error) {
	if m.MapChecksFunc != nil {
		return m.MapChecksFunc(ctx, userID, fields, profile)
	}
	return model.Mapping{}, nil
}

func (m *MockAI) GenerateEssay(ctx context.Context, userID string, field *model.FieldDescriptor, profile *profileModel.ProfileView, jobContext string) (string, error) {
	return "", errors.New("no essay in this test")
}

// MockFiller implements Filler
type MockFiller struct {
	FillFunc func(ctx context.Context, page *rod.Page, field *model.FieldDescriptor, value model.ResolvedValue) error
	Filled   []string
}

func (m *MockFiller) Fill(ctx context.Context, page *rod.Page, field *model.FieldDescriptor, value model.ResolvedValue) error {
	if m.FillFunc != nil {
		if err := m.FillFunc(ctx, page, field, value); err != nil {
			return err
		}
	}
	m.Filled = append(m.Filled, field.StableID)
	return nil
}

// MockExpander implements SectionExpander
type MockExpander struct {
	ExpandFunc func(page *rod.Page, profile *profileModel.ProfileView) bool
	Calls      int
}

func (m *MockExpander) ExpandIfNeeded(page *rod.Page, profile *profileModel.ProfileView) bool {
	m.Calls++
	if m.ExpandFunc != nil {
		return m.ExpandFunc(page, profile)
	}
	return false
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error", "console")
	require.NoError(t, err)
	return log
}

func textField(id, label string) *model.FieldDescriptor {
	return &model.FieldDescriptor{StableID: id, Label: label, Category: model.CategoryText}
}

func TestOrchestrator_HappyPath(t *testing.T) {
	// Four contact fields resolved entirely by the fast pass: no model
	// calls, quiescent after the second pass.
	fields := []*model.FieldDescriptor{
		textField("f1", "First Name"),
		textField("f2", "Last Name"),
		textField("f3", "Email"),
		textField("f4", "Phone"),
	}
	values := model.Mapping{
		"f1": model.Simple("Jane"),
		"f2": model.Simple("Doe"),
		"f3": model.Simple("jane@x.io"),
		"f4": model.Simple("555-1234"),
	}

	scanner := &MockScanner{ScanFunc: func(*rod.Page) ([]*model.FieldDescriptor, error) {
		return fields, nil
	}}
	fast := &MockFast{BatchFunc: func(in []*model.FieldDescriptor, _ *profileModel.ProfileView) (model.Mapping, []*model.FieldDescriptor) {
		hits := model.Mapping{}
		for _, f := range in {
			if v, ok := values[f.StableID]; ok {
				hits[f.StableID] = v
			}
		}
		return hits, nil
	}}
	ai := &MockAI{}
	filler := &MockFiller{}
	expander := &MockExpander{}

	orch := New(scanner, &MockSplitter{}, fast, ai, filler, expander, Config{MaxPasses: 4}, testLogger(t))
	trk := tracker.New("page", 3)

	result, err := orch.Run(context.Background(), nil, "u1", &profileModel.ProfileView{}, trk, "")

	require.NoError(t, err)
	assert.Equal(t, 4, result.Filled)
	assert.Equal(t, 0, result.Failed)
	assert.False(t, result.RequiredUnresolved)
	assert.Zero(t, ai.TextCalls)
	assert.Zero(t, scanner.ExtractCalls)
	// Pass 1 fills, pass 2 confirms quiescence.
	assert.Equal(t, 2, result.Passes)
	assert.Len(t, filler.Filled, 4)
}

func TestOrchestrator_SucceededFieldsNotRetouched(t *testing.T) {
	fields := []*model.FieldDescriptor{textField("f1", "First Name")}
	scanner := &MockScanner{ScanFunc: func(*rod.Page) ([]*model.FieldDescriptor, error) {
		return fields, nil
	}}
	fast := &MockFast{BatchFunc: func(in []*model.FieldDescriptor, _ *profileModel.ProfileView) (model.Mapping, []*model.FieldDescriptor) {
		hits := model.Mapping{}
		for _, f := range in {
			hits[f.StableID] = model.Simple("Jane")
		}
		return hits, nil
	}}
	filler := &MockFiller{}

	orch := New(scanner, &MockSplitter{}, fast, &MockAI{}, filler, &MockExpander{}, Config{MaxPasses: 4}, testLogger(t))
	trk := tracker.New("page", 3)
	trk.Record("f1", model.StatusSucceeded, "Jane")

	result, err := orch.Run(context.Background(), nil, "u1", &profileModel.ProfileView{}, trk, "")

	require.NoError(t, err)
	assert.Empty(t, filler.Filled)
	assert.Equal(t, 0, result.Filled)
	assert.Equal(t, 1, result.Passes)
}

func TestOrchestrator_SensitiveNeverReachesFiller(t *testing.T) {
	fields := []*model.FieldDescriptor{
		textField("safe", "First Name"),
		textField("ssn", "Social Security Number"),
	}
	scanner := &MockScanner{ScanFunc: func(*rod.Page) ([]*model.FieldDescriptor, error) {
		return fields, nil
	}}
	splitter := &MockSplitter{SplitFunc: func(in []*model.FieldDescriptor, _ *profileModel.ProfileView) ([]*model.FieldDescriptor, []*model.FieldDescriptor) {
		var safe, held []*model.FieldDescriptor
		for _, f := range in {
			if f.StableID == "ssn" {
				held = append(held, f)
			} else {
				safe = append(safe, f)
			}
		}
		return safe, held
	}}
	fast := &MockFast{BatchFunc: func(in []*model.FieldDescriptor, _ *profileModel.ProfileView) (model.Mapping, []*model.FieldDescriptor) {
		hits := model.Mapping{}
		for _, f := range in {
			hits[f.StableID] = model.Simple("value")
		}
		return hits, nil
	}}
	filler := &MockFiller{}

	orch := New(scanner, splitter, fast, &MockAI{}, filler, &MockExpander{}, Config{MaxPasses: 4}, testLogger(t))
	result, err := orch.Run(context.Background(), nil, "u1", &profileModel.ProfileView{}, tracker.New("page", 3), "")

	require.NoError(t, err)
	assert.Equal(t, 1, result.SensitiveHeld)
	assert.NotContains(t, filler.Filled, "ssn")
	assert.Contains(t, filler.Filled, "safe")
}

func TestOrchestrator_QuotaExhaustionDefers(t *testing.T) {
	fields := []*model.FieldDescriptor{textField("f1", "Unmappable question")}
	scanner := &MockScanner{ScanFunc: func(*rod.Page) ([]*model.FieldDescriptor, error) {
		return fields, nil
	}}
	ai := &MockAI{MapTextFunc: func(context.Context, string, []*model.FieldDescriptor, *profileModel.ProfileView) (model.Mapping, error) {
		return nil, llm.ErrQuotaExhausted
	}}

	orch := New(scanner, &MockSplitter{}, &MockFast{}, ai, &MockFiller{}, &MockExpander{}, Config{MaxPasses: 4}, testLogger(t))
	result, err := orch.Run(context.Background(), nil, "u1", &profileModel.ProfileView{}, tracker.New("page", 3), "")

	require.NoError(t, err)
	assert.True(t, result.LLMDeferred)
	assert.Equal(t, 0, result.Filled)
}

func TestOrchestrator_RequiredUnresolved(t *testing.T) {
	fields := []*model.FieldDescriptor{
		{StableID: "f1", Label: "Obscure required field", Category: model.CategoryText, Required: true},
	}
	scanner := &MockScanner{ScanFunc: func(*rod.Page) ([]*model.FieldDescriptor, error) {
		return fields, nil
	}}

	orch := New(scanner, &MockSplitter{}, &MockFast{}, &MockAI{}, &MockFiller{}, &MockExpander{}, Config{MaxPasses: 4}, testLogger(t))
	result, err := orch.Run(context.Background(), nil, "u1", &profileModel.ProfileView{}, tracker.New("page", 3), "")

	require.NoError(t, err)
	assert.True(t, result.RequiredUnresolved)
}

func TestOrchestrator_PassBound(t *testing.T) {
	// The expander keeps reporting growth; the loop must stop at the
	// configured bound anyway.
	scanner := &MockScanner{ScanFunc: func(*rod.Page) ([]*model.FieldDescriptor, error) {
		return nil, nil
	}}
	expander := &MockExpander{ExpandFunc: func(*rod.Page, *profileModel.ProfileView) bool { return true }}

	orch := New(scanner, &MockSplitter{}, &MockFast{}, &MockAI{}, &MockFiller{}, expander, Config{MaxPasses: 3}, testLogger(t))
	result, err := orch.Run(context.Background(), nil, "u1", &profileModel.ProfileView{}, tracker.New("page", 3), "")

	require.NoError(t, err)
	assert.Equal(t, 3, result.Passes)
	assert.Equal(t, 3, expander.Calls)
}
