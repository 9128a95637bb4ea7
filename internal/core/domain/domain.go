// Package domain holds the core entities shared across the ingestion and
// analysis pipeline: sources, channels, items, audit events, rules and the
// closed vocabularies that tie them together.
package domain

import "time"

// ConnectorKind identifies the protocol/shape family a connector driver handles.
type ConnectorKind string

// Connector kinds. The set is closed; dispatch happens by tag.
const (
	KindFeed             ConnectorKind = "feed"
	KindHTML             ConnectorKind = "html"
	KindShortPost        ConnectorKind = "short_post"
	KindFederated        ConnectorKind = "federated"
	KindParaphrasedAlert ConnectorKind = "paraphrased_alert"
	KindLongPost         ConnectorKind = "long_post"
	KindChannelPost      ConnectorKind = "channel_post"
	KindSearchAlert      ConnectorKind = "search_alert"
	KindDocument         ConnectorKind = "document"
)

// AllKinds lists every supported connector kind.
func AllKinds() []ConnectorKind {
	return []ConnectorKind{
		KindFeed, KindHTML, KindShortPost, KindFederated, KindParaphrasedAlert,
		KindLongPost, KindChannelPost, KindSearchAlert, KindDocument,
	}
}

// IsSocial reports whether the kind is one of the social-timeline variants.
// They share one scheduler concurrency budget and fetch deadline.
func (k ConnectorKind) IsSocial() bool {
	switch k {
	case KindShortPost, KindFederated, KindParaphrasedAlert, KindLongPost, KindChannelPost:
		return true
	default:
		return false
	}
}

// Priority is the editorial urgency bucket of an item.
type Priority string

// Priority buckets, ordered high > medium > low > none.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = "none"
)

// Rank returns a comparable ordering value, higher = more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Score bucket thresholds for deriving Priority from a numeric score.
const (
	ScoreHighThreshold   = 67
	ScoreMediumThreshold = 34
	ScoreLowThreshold    = 10
	ScoreMax             = 100
	ScoreMin             = 0
)

// PriorityFromScore maps a numeric priority score in [0,100] to its bucket.
func PriorityFromScore(score int) Priority {
	switch {
	case score >= ScoreHighThreshold:
		return PriorityHigh
	case score >= ScoreMediumThreshold:
		return PriorityMedium
	case score >= ScoreLowThreshold:
		return PriorityLow
	default:
		return PriorityNone
	}
}

// ClampScore clamps a priority score into the valid [0,100] range.
func ClampScore(score int) int {
	if score < ScoreMin {
		return ScoreMin
	}

	if score > ScoreMax {
		return ScoreMax
	}

	return score
}

// RetryPriority is the classifier-assigned disposition gating LLM work.
type RetryPriority string

// Retry-priority buckets. Backlog ordering is High, Unknown, EdgeCase; Low is
// never picked up by the LLM worker.
const (
	RetryHigh     RetryPriority = "high"
	RetryEdgeCase RetryPriority = "edge_case"
	RetryUnknown  RetryPriority = "unknown"
	RetryLow      RetryPriority = "low"
)

// WorkingGroups is the closed vocabulary of working-group tags.
var WorkingGroups = []string{"AK1", "AK2", "AK3", "AK4", "AK5", "QAG"}

// IsWorkingGroup reports whether tag is part of the closed group vocabulary.
func IsWorkingGroup(tag string) bool {
	for _, g := range WorkingGroups {
		if g == tag {
			return true
		}
	}

	return false
}

// Source is an organization or publisher grouping one or more channels.
type Source struct {
	ID            string
	Name          string
	Enabled       bool
	IsStakeholder bool
	CreatedAt     time.Time
}

// Channel is a concrete pollable endpoint of one connector kind.
type Channel struct {
	ID              string
	SourceID        string
	Kind            ConnectorKind
	Config          map[string]string
	Enabled         bool
	IntervalMinutes int
	LastPollAt      *time.Time
	LastError       string
	CreatedAt       time.Time
}

// Interval returns the desired poll interval as a duration.
func (c Channel) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Due reports whether the channel is due for polling at the given instant.
func (c Channel) Due(now time.Time) bool {
	if !c.Enabled {
		return false
	}

	if c.LastPollAt == nil {
		return true
	}

	return !now.Before(c.LastPollAt.Add(c.Interval()))
}

// RawItem is the normalized unit a connector driver yields before ingestion.
type RawItem struct {
	ExternalID  string
	Title       string
	Content     string
	URL         string
	Author      string
	PublishedAt time.Time
	// HashOverride replaces the computed content hash when set (document
	// connector uses the binary digest).
	HashOverride string
	Metadata     map[string]any
}

// Metadata keys stored in the item metadata map.
const (
	MetaClassifierConfidence = "classifier_confidence"
	MetaRetryPriority        = "retry_priority"
	MetaSourceDomain         = "source_domain"
	MetaLLMRaw               = "llm_raw_analysis"
	MetaLLMProvider          = "llm_provider"
	MetaGroupSuggestions     = "group_suggestions"
	MetaPrioritySuggestion   = "priority_suggestion"
	MetaMentionedHandles     = "mentioned_handles"
)

// Item is a single persisted news unit together with its enrichment state.
type Item struct {
	ID            string
	ChannelID     string
	ExternalID    string
	Title         string
	Content       string
	URL           string
	Author        string
	PublishedAt   time.Time
	FirstSeenAt   time.Time
	ContentHash   string
	Summary       string
	Analysis      string
	Priority      Priority
	PriorityScore int
	Groups        []string
	Tags          []string
	IsRead        bool
	IsStarred     bool
	IsArchived    bool
	NeedsLLM      bool
	SimilarTo     string
	Metadata      map[string]any
	Revision      int64
}

// MarkRead sets the read flag. It reports whether this call set a previously
// clear flag, which is the only transition the audit trail records.
func (it *Item) MarkRead(read bool) bool {
	record := read && !it.IsRead
	it.IsRead = read

	return record
}

// MarkStarred sets the starred flag, which exempts the item from the
// retention sweep. Reporting follows MarkRead.
func (it *Item) MarkStarred(starred bool) bool {
	record := starred && !it.IsStarred
	it.IsStarred = starred

	return record
}

// MarkArchived sets the archived flag, hiding the item from briefing
// selection. Reporting follows MarkRead.
func (it *Item) MarkArchived(archived bool) bool {
	record := archived && !it.IsArchived
	it.IsArchived = archived

	return record
}

// RetryPriority reads the classifier disposition out of the metadata map.
// Items never classified report RetryUnknown.
func (it Item) RetryPriority() RetryPriority {
	if it.Metadata == nil {
		return RetryUnknown
	}

	v, ok := it.Metadata[MetaRetryPriority].(string)
	if !ok || v == "" {
		return RetryUnknown
	}

	return RetryPriority(v)
}

// EventKind identifies an entry in the per-item audit trail.
type EventKind string

// Audit event kinds.
const (
	EventFetched             EventKind = "fetched"
	EventFetchFailed         EventKind = "fetch_failed"
	EventClassified          EventKind = "classified"
	EventLLMAnalyzed         EventKind = "llm_analyzed"
	EventLLMFailed           EventKind = "llm_failed"
	EventRuleApplied         EventKind = "rule_applied"
	EventMarkedRead          EventKind = "marked_read"
	EventStarred             EventKind = "starred"
	EventArchived            EventKind = "archived"
	EventDuplicateIdentity   EventKind = "duplicate_by_identity"
	EventDuplicateContent    EventKind = "duplicate_by_content"
	EventDuplicateTitle      EventKind = "duplicate_by_title"
	EventDuplicateParaphrase EventKind = "duplicate_by_paraphrase"
	EventParaphraseSkipped   EventKind = "dedupe_paraphrase_skipped"
)

// ItemEvent is an append-only audit entry for an item.
type ItemEvent struct {
	ID        string
	ItemID    string
	Kind      EventKind
	Payload   map[string]any
	CreatedAt time.Time
}

// RuleKind identifies how a rule pattern is evaluated.
type RuleKind string

// Rule kinds.
const (
	RuleKeyword  RuleKind = "keyword"
	RuleRegex    RuleKind = "regex"
	RuleSemantic RuleKind = "semantic"
)

// Rule priority delta bounds.
const (
	RuleDeltaMin = -50
	RuleDeltaMax = 50
)

// Rule is a user-authored classification adjustment.
type Rule struct {
	ID             string
	Name           string
	Kind           RuleKind
	Pattern        string
	PriorityDelta  int
	ForcedPriority Priority
	Enabled        bool
	OrderKey       int
	CreatedAt      time.Time
}

// Stakeholder is one entry of the read-only stakeholder directory.
type Stakeholder struct {
	Handle       string
	Organization string
	Category     string
	Party        string
	IsMemberOrg  bool
}

// HousekeepingConfig governs the retention sweep.
type HousekeepingConfig struct {
	RetentionDays  map[Priority]int
	AutoPurge      bool
	ExcludeStarred bool
}

// DefaultHousekeepingConfig returns the reference retention settings.
func DefaultHousekeepingConfig() HousekeepingConfig {
	return HousekeepingConfig{
		RetentionDays: map[Priority]int{
			PriorityHigh:   365,
			PriorityMedium: 180,
			PriorityLow:    90,
			PriorityNone:   30,
		},
		AutoPurge:      true,
		ExcludeStarred: true,
	}
}

// RetentionFor returns the retention in days for a priority bucket. Unknown
// buckets fall back to the none bucket.
func (hc HousekeepingConfig) RetentionFor(p Priority) int {
	if d, ok := hc.RetentionDays[p]; ok {
		return d
	}

	return hc.RetentionDays[PriorityNone]
}

// DuplicateSibling is the short item projection exchanged with the UI for an
// item's cross-source twins.
type DuplicateSibling struct {
	ID         string
	Title      string
	URL        string
	Priority   Priority
	SourceName string
}

// ItemDetail is the item record exchanged with UI and export consumers.
type ItemDetail struct {
	Item
	SourceName string
	Kind       ConnectorKind
	Siblings   []DuplicateSibling
}
