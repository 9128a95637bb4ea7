package rules

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/llm"
)

type ruleStore struct {
	mu           sync.Mutex
	items        map[string]*domain.Item
	rules        []domain.Rule
	stakeholders map[string]*domain.Stakeholder
	events       map[string][]domain.ItemEvent
}

func newRuleStore(items ...*domain.Item) *ruleStore {
	s := &ruleStore{
		items:        map[string]*domain.Item{},
		stakeholders: map[string]*domain.Stakeholder{},
		events:       map[string][]domain.ItemEvent{},
	}
	for _, it := range items {
		s.items[it.ID] = it
	}

	return s
}

func (s *ruleStore) ListEnabledRules(context.Context) ([]domain.Rule, error) {
	return s.rules, nil
}

func (s *ruleStore) LookupStakeholder(_ context.Context, handle string) (*domain.Stakeholder, error) {
	if sh, ok := s.stakeholders[handle]; ok {
		return sh, nil
	}

	return nil, apperrors.ErrNotFound
}

func (s *ruleStore) MutateItem(_ context.Context, id string, fn func(*domain.Item) error) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.items[id]
	if err := fn(item); err != nil {
		return nil, err
	}

	item.Revision++

	return item, nil
}

func (s *ruleStore) AppendEvent(_ context.Context, itemID string, kind domain.EventKind, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[itemID] = append(s.events[itemID], domain.ItemEvent{ItemID: itemID, Kind: kind, Payload: payload})

	return nil
}

func (s *ruleStore) GetItem(_ context.Context, id string) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *s.items[id]

	return &cp, nil
}

type yesLLM struct{ answer string }

func (y yesLLM) Complete(context.Context, string, string, float32, int) (llm.Completion, error) {
	return llm.Completion{Text: y.answer, Provider: llm.ProviderMock}, nil
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()

	return &l
}

func TestKeywordRuleForcedPriority(t *testing.T) {
	item := &domain.Item{
		ID:      "i1",
		Title:   "Haushalt 2026",
		Content: "Das Land plant die Streichung mehrerer Förderprogramme.",
	}
	store := newRuleStore(item)
	store.rules = []domain.Rule{{
		ID: "r1", Name: "Haushaltskürzung", Kind: domain.RuleKeyword,
		Pattern: "kürzung,streichung", ForcedPriority: domain.PriorityHigh, Enabled: true,
	}}

	e := NewEngine(store, nil, nopLogger())

	require.NoError(t, e.Apply(context.Background(), "i1"))

	assert.Equal(t, domain.PriorityHigh, item.Priority)
	assert.Contains(t, item.Tags, "rule:Haushaltskürzung")
	require.Len(t, store.events["i1"], 1)
	assert.Equal(t, domain.EventRuleApplied, store.events["i1"][0].Kind)
}

func TestForcedPriorityIdempotent(t *testing.T) {
	item := &domain.Item{ID: "i1", Title: "Titel", Content: "Streichung angekündigt", PriorityScore: 12, Priority: domain.PriorityLow}
	store := newRuleStore(item)
	store.rules = []domain.Rule{{
		ID: "r1", Name: "Kürzungsregel", Kind: domain.RuleKeyword,
		Pattern: "streichung", PriorityDelta: 20, ForcedPriority: domain.PriorityHigh, Enabled: true,
	}}

	e := NewEngine(store, nil, nopLogger())

	require.NoError(t, e.Apply(context.Background(), "i1"))
	firstScore := item.PriorityScore

	require.NoError(t, e.Apply(context.Background(), "i1"))

	assert.Equal(t, domain.PriorityHigh, item.Priority)
	assert.Equal(t, firstScore, item.PriorityScore, "score must not drift")
	assert.Equal(t, 12, item.PriorityScore, "forced rules contribute no delta")
}

func TestDeltaRuleRebuckets(t *testing.T) {
	item := &domain.Item{ID: "i1", Title: "Pflegebericht", Content: "Bericht zur Pflege", PriorityScore: 30, Priority: domain.PriorityLow}
	store := newRuleStore(item)
	store.rules = []domain.Rule{{
		ID: "r1", Name: "Pflege", Kind: domain.RuleKeyword, Pattern: "pflege", PriorityDelta: 40, Enabled: true,
	}}

	e := NewEngine(store, nil, nopLogger())

	require.NoError(t, e.Apply(context.Background(), "i1"))

	assert.Equal(t, 70, item.PriorityScore)
	assert.Equal(t, domain.PriorityHigh, item.Priority)
}

func TestDeltaClampsToScoreRange(t *testing.T) {
	item := &domain.Item{ID: "i1", Title: "Thema", Content: "kürzung", PriorityScore: 95}
	store := newRuleStore(item)
	store.rules = []domain.Rule{{
		ID: "r1", Name: "Boost", Kind: domain.RuleKeyword, Pattern: "kürzung", PriorityDelta: 50, Enabled: true,
	}}

	e := NewEngine(store, nil, nopLogger())

	require.NoError(t, e.Apply(context.Background(), "i1"))
	assert.Equal(t, 100, item.PriorityScore)
}

func TestRegexRule(t *testing.T) {
	item := &domain.Item{ID: "i1", Title: "Landtag", Content: "Drucksache 20/1234 wurde veröffentlicht."}
	store := newRuleStore(item)
	store.rules = []domain.Rule{{
		ID: "r1", Name: "Drucksachen", Kind: domain.RuleRegex, Pattern: `drucksache \d+/\d+`, PriorityDelta: 15, Enabled: true,
	}}

	e := NewEngine(store, nil, nopLogger())

	require.NoError(t, e.Apply(context.Background(), "i1"))
	assert.Equal(t, 15, item.PriorityScore)
	assert.Equal(t, domain.PriorityLow, item.Priority)
}

func TestSemanticRuleYesFirstLine(t *testing.T) {
	item := &domain.Item{ID: "i1", Title: "Kita-Finanzierung", Content: "Debatte über Betreuungsschlüssel."}
	store := newRuleStore(item)
	store.rules = []domain.Rule{{
		ID: "r1", Name: "Kita", Kind: domain.RuleSemantic, Pattern: "Geht es um Kinderbetreuung?", PriorityDelta: 10, Enabled: true,
	}}

	e := NewEngine(store, yesLLM{answer: "Ja, eindeutig.\nBegründung folgt."}, nopLogger())

	require.NoError(t, e.Apply(context.Background(), "i1"))
	assert.Contains(t, item.Tags, "rule:Kita")
}

func TestSemanticRuleJSONVerdict(t *testing.T) {
	item := &domain.Item{ID: "i1", Title: "Sportnachricht", Content: "Spielbericht vom Wochenende."}
	store := newRuleStore(item)
	store.rules = []domain.Rule{{
		ID: "r1", Name: "Kita", Kind: domain.RuleSemantic, Pattern: "Geht es um Kinderbetreuung?", PriorityDelta: 10, Enabled: true,
	}}

	e := NewEngine(store, yesLLM{answer: `{"match": false}`}, nopLogger())

	require.NoError(t, e.Apply(context.Background(), "i1"))
	assert.Empty(t, item.Tags)
	assert.Empty(t, store.events["i1"])
}

func TestMentionBoosts(t *testing.T) {
	item := &domain.Item{
		ID:      "i1",
		Title:   "Frage an das Ministerium",
		Content: "Die Liga kritisiert die Pläne. Warum wird gekürzt?",
		Metadata: map[string]any{
			domain.MetaMentionedHandles: []string{"sozialmin_hessen", "ligahessen"},
		},
	}
	store := newRuleStore(item)
	store.stakeholders = map[string]*domain.Stakeholder{
		"sozialmin_hessen": {Handle: "sozialmin_hessen", Organization: "Sozialministerium"},
		"ligahessen":       {Handle: "ligahessen", Organization: "Liga Hessen", IsMemberOrg: true},
	}

	e := NewEngine(store, nil, nopLogger())

	require.NoError(t, e.Apply(context.Background(), "i1"))

	// direct +25, member +15, question +10, criticism +10 = 60 → medium.
	assert.Equal(t, 60, item.PriorityScore)
	assert.Equal(t, domain.PriorityMedium, item.Priority)
	assert.Len(t, store.events["i1"], 4)
}

func TestNoMatchLeavesItemUntouched(t *testing.T) {
	item := &domain.Item{ID: "i1", Title: "Wetter", Content: "Sonnig.", Priority: domain.PriorityNone}
	store := newRuleStore(item)
	store.rules = []domain.Rule{{
		ID: "r1", Name: "Kürzung", Kind: domain.RuleKeyword, Pattern: "kürzung", PriorityDelta: 30, Enabled: true,
	}}

	e := NewEngine(store, nil, nopLogger())

	require.NoError(t, e.Apply(context.Background(), "i1"))

	assert.Zero(t, item.PriorityScore)
	assert.Zero(t, item.Revision)
	assert.Empty(t, store.events["i1"])
}
