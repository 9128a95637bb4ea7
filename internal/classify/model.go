// Package classify implements the embedding-based pre-filter: a prototype
// (centroid) model over retrieval embeddings that derives each item's
// retry-priority bucket before any LLM work happens.
package classify

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/storage"
)

// Decision cuts on the relevance score. The score maps the cosine gap between
// the relevant and irrelevant centroids into [0,1]; items above the relevant
// cut go straight to the LLM, items below the irrelevant cut skip it, the band
// in between is ambiguous.
const (
	DefaultRelevantThreshold   = 0.65
	DefaultIrrelevantThreshold = 0.35

	groupSuggestMinScore = 0.50
)

// Output is the multi-output classifier result for one item.
type Output struct {
	Relevant bool
	// Score is the relevance score in [0,1]; 0.5 means equidistant from both
	// relevance centroids.
	Score      float64
	Confidence float64
	// GroupConfidences maps working-group tags to centroid similarity.
	GroupConfidences map[string]float64
	// GroupSuggestions are the groups above the suggestion cut, best first.
	GroupSuggestions []string
	// PrioritySuggestion is the closest priority-bucket centroid.
	PrioritySuggestion domain.Priority

	relevantCut   float64
	irrelevantCut float64
}

// RetryPriority derives the bucket per the classification contract.
func (o Output) RetryPriority() domain.RetryPriority {
	switch {
	case o.Score >= o.relevantCut:
		return domain.RetryHigh
	case o.Score <= o.irrelevantCut:
		return domain.RetryLow
	default:
		return domain.RetryEdgeCase
	}
}

// Model is the centroid classifier. Prototypes live in the store and are
// rebuildable; an empty prototype set leaves the model unavailable and every
// item in the unknown bucket.
type Model struct {
	mu            sync.RWMutex
	relevant      []float32
	irrelevant    []float32
	groups        map[string][]float32
	priorities    map[domain.Priority][]float32
	relevantCut   float64
	irrelevantCut float64
}

// NewModel creates an empty (unavailable) model with the reference decision
// cuts.
func NewModel() *Model {
	return &Model{
		groups:        map[string][]float32{},
		priorities:    map[domain.Priority][]float32{},
		relevantCut:   DefaultRelevantThreshold,
		irrelevantCut: DefaultIrrelevantThreshold,
	}
}

// SetThresholds overrides the decision cuts. Values that do not satisfy
// 0 < irrelevant < relevant < 1 are ignored.
func (m *Model) SetThresholds(relevant, irrelevant float64) {
	if irrelevant <= 0 || relevant >= 1 || irrelevant >= relevant {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.relevantCut = relevant
	m.irrelevantCut = irrelevant
}

// Load replaces the prototype set from the store.
func (m *Model) Load(ctx context.Context, store PrototypeStore) error {
	protos, err := store.ListPrototypes(ctx)
	if err != nil {
		return fmt.Errorf("load prototypes: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.relevant, m.irrelevant = nil, nil
	m.groups = map[string][]float32{}
	m.priorities = map[domain.Priority][]float32{}

	for _, p := range protos {
		switch p.Kind {
		case storage.PrototypeRelevance:
			if p.Label == "relevant" {
				m.relevant = p.Vec
			} else {
				m.irrelevant = p.Vec
			}
		case storage.PrototypeGroup:
			m.groups[p.Label] = p.Vec
		case storage.PrototypePriority:
			m.priorities[domain.Priority(p.Label)] = p.Vec
		}
	}

	return nil
}

// PrototypeStore is the slice of the store the model loads from.
type PrototypeStore interface {
	ListPrototypes(ctx context.Context) ([]storage.Prototype, error)
}

// Available reports whether the model has the relevance centroids it needs.
func (m *Model) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.relevant) > 0 && len(m.irrelevant) > 0
}

// Classify scores one retrieval embedding. ok is false when the model is
// unavailable, which maps to the unknown bucket.
func (m *Model) Classify(vec []float32) (Output, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.relevant) == 0 || len(m.irrelevant) == 0 {
		return Output{}, false
	}

	cosRel := cosine(vec, m.relevant)
	cosIrr := cosine(vec, m.irrelevant)

	out := Output{
		Relevant: cosRel >= cosIrr,
		// Map the centroid gap [-1,1] onto the [0,1] score scale.
		Score:              (cosRel - cosIrr + 1) / 2,
		Confidence:         math.Abs(cosRel - cosIrr),
		GroupConfidences:   make(map[string]float64, len(m.groups)),
		PrioritySuggestion: domain.PriorityNone,
		relevantCut:        m.relevantCut,
		irrelevantCut:      m.irrelevantCut,
	}

	for group, centroid := range m.groups {
		out.GroupConfidences[group] = cosine(vec, centroid)
	}

	for group, score := range out.GroupConfidences {
		if score >= groupSuggestMinScore {
			out.GroupSuggestions = append(out.GroupSuggestions, group)
		}
	}

	sort.Slice(out.GroupSuggestions, func(i, j int) bool {
		a, b := out.GroupSuggestions[i], out.GroupSuggestions[j]
		if out.GroupConfidences[a] != out.GroupConfidences[b] {
			return out.GroupConfidences[a] > out.GroupConfidences[b]
		}

		return a < b
	})

	best := math.Inf(-1)

	for prio, centroid := range m.priorities {
		if score := cosine(vec, centroid); score > best {
			best = score
			out.PrioritySuggestion = prio
		}
	}

	return out, true
}

// cosine computes the cosine similarity of two vectors; mismatched or zero
// vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}

	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
