// Package rules applies the post-analysis adjustments: implicit stakeholder
// mention boosts first, then user-authored keyword, regex and semantic rules
// in ascending order key.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/domain"
	apperrors "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/errors"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/core/llm"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/observability"
)

// Mention boost values, applied before user rules.
const (
	boostDirectMention = 25
	boostMemberOrg     = 15
	boostQuestion      = 10
	boostCriticism     = 10
)

// Semantic rule calls stay cheap and bounded.
const (
	semanticTemperature = 0.0
	semanticMaxTokens   = 50
	semanticContentCap  = 4000
)

// criticismMarkers flag critical coverage of a tracked stakeholder.
var criticismMarkers = []string{"kritik", "kritisiert", "vorwurf", "vorwürfe", "skandal", "versagen", "scharf"}

// Store is the storage surface the engine uses.
type Store interface {
	ListEnabledRules(ctx context.Context) ([]domain.Rule, error)
	LookupStakeholder(ctx context.Context, handle string) (*domain.Stakeholder, error)
	MutateItem(ctx context.Context, id string, fn func(*domain.Item) error) (*domain.Item, error)
	AppendEvent(ctx context.Context, itemID string, kind domain.EventKind, payload map[string]any) error
	GetItem(ctx context.Context, id string) (*domain.Item, error)
}

// Engine evaluates rules against items.
type Engine struct {
	store  Store
	llm    llm.Client
	logger *zerolog.Logger
}

// NewEngine wires the rule engine. The LLM client is only consulted for
// semantic rules; a nil client makes semantic rules non-matching.
func NewEngine(store Store, llmClient llm.Client, logger *zerolog.Logger) *Engine {
	return &Engine{store: store, llm: llmClient, logger: logger}
}

// adjustment is one matched rule's effect, recorded before the item mutation.
type adjustment struct {
	ruleID   string
	ruleName string
	kind     string
	delta    int
	forced   domain.Priority
}

// Apply evaluates the implicit boosts and all enabled rules against the item
// and commits the combined adjustment in one optimistic item update.
func (e *Engine) Apply(ctx context.Context, itemID string) error {
	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load item: %w", err)
	}

	corpus := item.Title + " " + item.Content

	adjustments := e.mentionBoosts(ctx, item, corpus)

	userRules, err := e.store.ListEnabledRules(ctx)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	for _, rule := range userRules {
		matched, err := e.matches(ctx, rule, item.Title, item.Content)
		if err != nil {
			e.logger.Warn().Err(err).Str("rule", rule.Name).Msg("rule evaluation failed, skipped")

			continue
		}

		if !matched {
			continue
		}

		adjustments = append(adjustments, adjustment{
			ruleID:   rule.ID,
			ruleName: rule.Name,
			kind:     string(rule.Kind),
			delta:    rule.PriorityDelta,
			forced:   rule.ForcedPriority,
		})
	}

	if len(adjustments) == 0 {
		return nil
	}

	return e.commit(ctx, itemID, adjustments)
}

// mentionBoosts builds the implicit adjustments from the stakeholder
// directory. Each boost category fires at most once per item.
func (e *Engine) mentionBoosts(ctx context.Context, item *domain.Item, corpus string) []adjustment {
	handles := metadataHandles(item.Metadata)
	if len(handles) == 0 {
		return nil
	}

	var (
		adjustments       []adjustment
		sawDirect, sawOrg bool
	)

	tracked := false

	for _, handle := range handles {
		sh, err := e.store.LookupStakeholder(ctx, handle)
		if err != nil {
			if !apperrors.Is(err, apperrors.ErrNotFound) {
				e.logger.Warn().Err(err).Str("handle", handle).Msg("stakeholder lookup failed")
			}

			continue
		}

		tracked = true

		if sh.IsMemberOrg && !sawOrg {
			sawOrg = true

			adjustments = append(adjustments, adjustment{
				ruleName: "mention:" + sh.Organization, kind: "mention_member", delta: boostMemberOrg,
			})
		}

		if !sh.IsMemberOrg && !sawDirect {
			sawDirect = true

			adjustments = append(adjustments, adjustment{
				ruleName: "mention:" + sh.Organization, kind: "mention_direct", delta: boostDirectMention,
			})
		}
	}

	if !tracked {
		return adjustments
	}

	lower := strings.ToLower(corpus)

	if strings.Contains(corpus, "?") {
		adjustments = append(adjustments, adjustment{ruleName: "mention:question", kind: "mention_question", delta: boostQuestion})
	}

	for _, marker := range criticismMarkers {
		if strings.Contains(lower, marker) {
			adjustments = append(adjustments, adjustment{ruleName: "mention:criticism", kind: "mention_criticism", delta: boostCriticism})

			break
		}
	}

	return adjustments
}

// matches evaluates one rule against the item text.
func (e *Engine) matches(ctx context.Context, rule domain.Rule, title, content string) (bool, error) {
	corpus := title + " " + content

	switch rule.Kind {
	case domain.RuleKeyword:
		lower := strings.ToLower(corpus)

		for _, token := range strings.Split(rule.Pattern, ",") {
			token = strings.ToLower(strings.TrimSpace(token))
			if token != "" && strings.Contains(lower, token) {
				return true, nil
			}
		}

		return false, nil

	case domain.RuleRegex:
		re, err := regexp.Compile("(?im)" + rule.Pattern)
		if err != nil {
			return false, fmt.Errorf("compile pattern: %w", err)
		}

		return re.MatchString(corpus), nil

	case domain.RuleSemantic:
		return e.semanticMatch(ctx, rule, title, content)

	default:
		return false, fmt.Errorf("unknown rule kind %q", rule.Kind)
	}
}

// semanticMatch asks the LLM whether the item fits the rule description. The
// verdict is the JSON answer when parseable, otherwise a ja/yes in the first
// response line.
func (e *Engine) semanticMatch(ctx context.Context, rule domain.Rule, title, content string) (bool, error) {
	if e.llm == nil {
		return false, nil
	}

	if len(content) > semanticContentCap {
		content = content[:semanticContentCap]
	}

	completion, err := e.llm.Complete(ctx,
		llm.SemanticRuleSystemPrompt,
		llm.SemanticRuleUserPrompt(rule.Pattern, title, content),
		semanticTemperature, semanticMaxTokens)
	if err != nil {
		return false, fmt.Errorf("semantic rule completion: %w", err)
	}

	var verdict llm.SemanticMatch
	if err := llm.ExtractJSON(completion.Text, &verdict); err == nil {
		return verdict.Match, nil
	}

	firstLine, _, _ := strings.Cut(strings.TrimSpace(completion.Text), "\n")
	firstLine = strings.ToLower(firstLine)

	return strings.Contains(firstLine, "ja") || strings.Contains(firstLine, "yes"), nil
}

// commit applies the adjustments: deltas re-bucket the score, the first
// forced priority wins, tags gain rule:<name>, one rule_applied event per
// matched rule.
func (e *Engine) commit(ctx context.Context, itemID string, adjustments []adjustment) error {
	_, err := e.store.MutateItem(ctx, itemID, func(it *domain.Item) error {
		forced := domain.Priority("")
		score := it.PriorityScore

		for _, adj := range adjustments {
			// A forced rule sets the priority and contributes no delta,
			// keeping repeated application idempotent.
			if adj.forced != "" {
				if forced == "" {
					forced = adj.forced
				}
			} else {
				score += adj.delta
			}

			tag := "rule:" + adj.ruleName
			if !hasTag(it.Tags, tag) {
				it.Tags = append(it.Tags, tag)
			}
		}

		it.PriorityScore = domain.ClampScore(score)

		if forced != "" {
			it.Priority = forced
		} else {
			it.Priority = domain.PriorityFromScore(it.PriorityScore)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("apply rule adjustments: %w", err)
	}

	for _, adj := range adjustments {
		observability.RulesApplied.WithLabelValues(adj.kind).Inc()

		payload := map[string]any{"rule_name": adj.ruleName, "kind": adj.kind, "delta": adj.delta}
		if adj.ruleID != "" {
			payload["rule_id"] = adj.ruleID
		}

		if adj.forced != "" {
			payload["forced_priority"] = string(adj.forced)
		}

		if err := e.store.AppendEvent(ctx, itemID, domain.EventRuleApplied, payload); err != nil {
			return fmt.Errorf("rule applied event: %w", err)
		}
	}

	return nil
}

// metadataHandles reads the mentioned-handles list, tolerating both []string
// and the []any shape JSON round-trips produce.
func metadataHandles(meta map[string]any) []string {
	if meta == nil {
		return nil
	}

	switch v := meta[domain.MetaMentionedHandles].(type) {
	case []string:
		return v
	case []any:
		handles := make([]string, 0, len(v))

		for _, h := range v {
			if s, ok := h.(string); ok {
				handles = append(handles, s)
			}
		}

		return handles
	default:
		return nil
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}

	return false
}
