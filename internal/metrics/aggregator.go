// Package metrics turns the stored activity into a usage snapshot and
// exposes it as Prometheus gauges.
package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/MrSnakeDoc/folio/internal/domain"
	store "github.com/MrSnakeDoc/folio/internal/store/redis"
)

const (
	topTopics    = 20
	topEndorsers = 10
	hourlySlots  = 24
)

// window is a trailing period ending now.
type window struct {
	name string
	span time.Duration
}

var windows = []window{
	{"last_hour", time.Hour},
	{"last_day", 24 * time.Hour},
	{"last_week", 7 * 24 * time.Hour},
	{"last_month", 30 * 24 * time.Hour},
}

// Source is the read side of the store used by the aggregator.
type Source interface {
	ModelUsage(ctx context.Context) ([]domain.ModelUsage, error)
	LLMUsageSince(ctx context.Context, since time.Time) ([]domain.LLMUsage, error)
	ConversationSummaries(ctx context.Context) ([]domain.ConversationSummary, error)
	AllEndorsements(ctx context.Context) ([]*domain.Endorsement, error)
	AllOTPs(ctx context.Context) ([]*domain.OTPRecord, error)
	APICallTotals(ctx context.Context) (store.APICallCounters, error)
	APICallsSince(ctx context.Context, since time.Time) ([]domain.APICall, error)
	CountExports(ctx context.Context, since time.Time) (int64, int64, error)
	CountContacts(ctx context.Context, since time.Time) (int64, int64, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// SkillNamer resolves skill ids to display names.
type SkillNamer interface {
	SkillName(id string) (string, bool)
}

// Tokens is a token and request tally.
type Tokens struct {
	Prompt     int64 `json:"prompt"`
	Completion int64 `json:"completion"`
	Total      int64 `json:"total"`
	Requests   int64 `json:"requests"`
}

func (t *Tokens) add(u domain.LLMUsage) {
	t.Prompt += u.PromptTokens
	t.Completion += u.CompletionTokens
	t.Total += u.TotalTokens
	t.Requests++
}

// HourBucket is the usage of one hour, [Start, Start+1h).
type HourBucket struct {
	Start time.Time `json:"hour"`
	Usage Tokens    `json:"usage"`
}

// Ranked is a key with its count, used for top-N lists.
type Ranked struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type LLMStats struct {
	TotalTokens      int64                        `json:"total_tokens"`
	PromptTokens     int64                        `json:"total_prompt_tokens"`
	CompletionTokens int64                        `json:"total_completion_tokens"`
	Models           map[string]int64             `json:"models"`
	ByWindow         map[string]Tokens            `json:"tokens_by_time"`
	ModelByWindow    map[string]map[string]Tokens `json:"model_usage_by_time"`
	Hourly           []HourBucket                 `json:"hourly_trends"`
}

type ConversationStats struct {
	Total         int            `json:"total"`
	ByWindow      map[string]int `json:"by_time"`
	TotalMessages int            `json:"total_messages"`
	AvgMessages   float64        `json:"avg_messages_per_conversation"`
}

type TopicStats struct {
	Frequency   []Ranked `json:"frequency"`
	TotalUnique int      `json:"total_unique_topics"`
}

type EndorsementStats struct {
	Active       int            `json:"total_active"`
	Deleted      int            `json:"total_deleted"`
	LastDay      int            `json:"last_day"`
	LastWeek     int            `json:"last_week"`
	BySkill      map[string]int `json:"by_skill"`
	TopEndorsers []Ranked       `json:"top_endorsers"`
	DeletionRate float64        `json:"deletion_rate"`
}

type OTPStats struct {
	Total    int            `json:"total_generated"`
	Active   int            `json:"active"`
	Expired  int            `json:"expired"`
	LastHour int            `json:"last_hour"`
	LastDay  int            `json:"last_day"`
	ByAction map[string]int `json:"by_action"`
}

type APIStats struct {
	Total         int64            `json:"total_api_calls"`
	TotalLastHour int64            `json:"total_api_calls_last_hour"`
	TotalLastDay  int64            `json:"total_api_calls_last_day"`
	ByEndpoint    map[string]int64 `json:"endpoints_total"`
	LastHour      map[string]int64 `json:"endpoints_last_hour"`
	LastDay       map[string]int64 `json:"endpoints_last_day"`
	ByStatus      map[string]int64 `json:"status_code_distribution"`
}

type CountStats struct {
	Total   int64 `json:"total"`
	LastDay int64 `json:"last_day"`
}

type SystemStats struct {
	DatabaseConnected bool  `json:"database_connection"`
	Collections       int   `json:"collections_count"`
	TotalDocuments    int64 `json:"total_documents"`
}

// Snapshot is the full usage picture at one instant.
type Snapshot struct {
	Timestamp     time.Time         `json:"timestamp"`
	LLM           LLMStats          `json:"llm_usage"`
	Conversations ConversationStats `json:"conversations"`
	Topics        TopicStats        `json:"topics"`
	Endorsements  EndorsementStats  `json:"endorsements"`
	OTP           OTPStats          `json:"otp"`
	API           APIStats          `json:"api_usage"`
	Exports       CountStats        `json:"exports"`
	Contacts      CountStats        `json:"contact_forms"`
	System        SystemStats       `json:"system_health"`
}

// Aggregator computes snapshots. It holds no state between calls.
type Aggregator struct {
	src    Source
	skills SkillNamer
	now    func() time.Time
}

// NewAggregator creates an aggregator.
func NewAggregator(src Source, skills SkillNamer) *Aggregator {
	return &Aggregator{src: src, skills: skills, now: time.Now}
}

// inputs is everything read from the store for one snapshot.
type inputs struct {
	models        []domain.ModelUsage
	usage         []domain.LLMUsage
	conversations []domain.ConversationSummary
	endorsements  []*domain.Endorsement
	otps          []*domain.OTPRecord
	apiTotals     store.APICallCounters
	apiRecent     []domain.APICall
	exports       CountStats
	contacts      CountStats
	stats         store.Stats
}

// Snapshot reads the store and computes a snapshot.
func (a *Aggregator) Snapshot(ctx context.Context) (*Snapshot, error) {
	now := a.now().UTC()
	in, err := a.gather(ctx, now)
	if err != nil {
		return nil, err
	}
	return compute(now, in, a.skills), nil
}

func (a *Aggregator) gather(ctx context.Context, now time.Time) (*inputs, error) {
	var (
		in  inputs
		err error
	)
	monthAgo := now.Add(-windows[len(windows)-1].span)
	dayAgo := now.Add(-24 * time.Hour)

	if in.models, err = a.src.ModelUsage(ctx); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if in.usage, err = a.src.LLMUsageSince(ctx, monthAgo); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if in.conversations, err = a.src.ConversationSummaries(ctx); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if in.endorsements, err = a.src.AllEndorsements(ctx); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if in.otps, err = a.src.AllOTPs(ctx); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if in.apiTotals, err = a.src.APICallTotals(ctx); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if in.apiRecent, err = a.src.APICallsSince(ctx, dayAgo); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if in.exports.Total, in.exports.LastDay, err = a.src.CountExports(ctx, dayAgo); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if in.contacts.Total, in.contacts.LastDay, err = a.src.CountContacts(ctx, dayAgo); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if in.stats, err = a.src.Stats(ctx); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	return &in, nil
}

func compute(now time.Time, in *inputs, skills SkillNamer) *Snapshot {
	s := &Snapshot{Timestamp: now}

	s.LLM = llmStats(now, in.models, in.usage)
	s.Conversations, s.Topics = conversationStats(now, in.conversations)
	s.Endorsements = endorsementStats(now, in.endorsements, skills)
	s.OTP = otpStats(now, in.otps)
	s.API = apiStats(now, in.apiTotals, in.apiRecent)
	s.Exports = in.exports
	s.Contacts = in.contacts

	s.System = SystemStats{
		DatabaseConnected: true,
		Collections:       in.stats.Collections,
		TotalDocuments: int64(s.Conversations.Total) +
			in.exports.Total +
			in.contacts.Total +
			int64(s.OTP.Total) +
			int64(s.Endorsements.Active+s.Endorsements.Deleted) +
			int64(len(in.models)),
	}
	return s
}

func llmStats(now time.Time, models []domain.ModelUsage, usage []domain.LLMUsage) LLMStats {
	st := LLMStats{
		Models:        make(map[string]int64, len(models)),
		ByWindow:      make(map[string]Tokens, len(windows)),
		ModelByWindow: make(map[string]map[string]Tokens, len(models)),
		Hourly:        make([]HourBucket, hourlySlots),
	}

	for _, m := range models {
		st.TotalTokens += m.TotalTokens
		st.PromptTokens += m.PromptTokens
		st.CompletionTokens += m.CompletionTokens
		st.Models[m.Model] = m.TotalTokens
		st.ModelByWindow[m.Model] = emptyWindows()
	}
	for _, w := range windows {
		st.ByWindow[w.name] = Tokens{}
	}

	// oldest first: slot 0 is [now-24h, now-23h)
	for i := range st.Hourly {
		st.Hourly[i].Start = now.Add(-time.Duration(hourlySlots-i) * time.Hour)
	}

	for _, u := range usage {
		perModel, ok := st.ModelByWindow[u.Model]
		if !ok {
			perModel = emptyWindows()
			st.ModelByWindow[u.Model] = perModel
		}
		for _, w := range windows {
			if u.Timestamp.Before(now.Add(-w.span)) {
				continue
			}
			t := st.ByWindow[w.name]
			t.add(u)
			st.ByWindow[w.name] = t

			mt := perModel[w.name]
			mt.add(u)
			perModel[w.name] = mt
		}

		if !u.Timestamp.Before(now) {
			continue
		}
		ago := now.Sub(u.Timestamp)
		if slot := int((ago - 1) / time.Hour); slot < hourlySlots {
			st.Hourly[hourlySlots-1-slot].Usage.add(u)
		}
	}
	return st
}

func emptyWindows() map[string]Tokens {
	m := make(map[string]Tokens, len(windows))
	for _, w := range windows {
		m[w.name] = Tokens{}
	}
	return m
}

func conversationStats(now time.Time, convs []domain.ConversationSummary) (ConversationStats, TopicStats) {
	cs := ConversationStats{
		Total:    len(convs),
		ByWindow: make(map[string]int, len(windows)),
	}
	for _, w := range windows {
		cs.ByWindow[w.name] = 0
	}

	freq := map[string]int{}
	for _, c := range convs {
		cs.TotalMessages += c.MessageCount
		for _, w := range windows {
			if !c.UpdatedAt.Before(now.Add(-w.span)) {
				cs.ByWindow[w.name]++
			}
		}
		for _, t := range c.Topics {
			freq[t]++
		}
	}
	cs.AvgMessages = round2(float64(cs.TotalMessages) / float64(max(cs.Total, 1)))

	top := rank(freq, topTopics)
	return cs, TopicStats{Frequency: top, TotalUnique: len(top)}
}

func endorsementStats(now time.Time, all []*domain.Endorsement, skills SkillNamer) EndorsementStats {
	es := EndorsementStats{BySkill: map[string]int{}}
	endorsers := map[string]int{}
	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.Add(-7 * 24 * time.Hour)

	for _, e := range all {
		if !e.IsActive() {
			es.Deleted++
			continue
		}
		es.Active++
		if !e.CreatedAt.Before(dayAgo) {
			es.LastDay++
		}
		if !e.CreatedAt.Before(weekAgo) {
			es.LastWeek++
		}

		name := e.SkillID
		if skills != nil {
			if n, ok := skills.SkillName(e.SkillID); ok {
				name = n
			}
		}
		es.BySkill[name]++
		endorsers[e.Email]++
	}

	es.TopEndorsers = rank(endorsers, topEndorsers)
	es.DeletionRate = round2(float64(es.Deleted) / float64(max(es.Active+es.Deleted, 1)) * 100)
	return es
}

func otpStats(now time.Time, otps []*domain.OTPRecord) OTPStats {
	os := OTPStats{
		Total: len(otps),
		ByAction: map[string]int{
			string(domain.ActionEndorse): 0,
			string(domain.ActionDelete):  0,
		},
	}
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	for _, r := range otps {
		if r.ActiveAt(now) {
			os.Active++
		}
		if r.ExpiresAt.Before(now) {
			os.Expired++
		}
		if !r.CreatedAt.Before(hourAgo) {
			os.LastHour++
		}
		if !r.CreatedAt.Before(dayAgo) {
			os.LastDay++
		}
		os.ByAction[string(r.Action)]++
	}
	return os
}

func apiStats(now time.Time, totals store.APICallCounters, recent []domain.APICall) APIStats {
	as := APIStats{
		Total:      totals.Total,
		ByEndpoint: totals.ByEndpoint,
		ByStatus:   totals.ByStatus,
		LastHour:   map[string]int64{},
		LastDay:    map[string]int64{},
	}
	if as.ByEndpoint == nil {
		as.ByEndpoint = map[string]int64{}
	}
	if as.ByStatus == nil {
		as.ByStatus = map[string]int64{}
	}

	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)
	for _, c := range recent {
		if !c.Timestamp.Before(dayAgo) {
			as.LastDay[c.Endpoint]++
			as.TotalLastDay++
		}
		if !c.Timestamp.Before(hourAgo) {
			as.LastHour[c.Endpoint]++
			as.TotalLastHour++
		}
	}
	return as
}

// rank sorts counts by count descending then key ascending and keeps the first n.
func rank(counts map[string]int, n int) []Ranked {
	out := make([]Ranked, 0, len(counts))
	for k, v := range counts {
		out = append(out, Ranked{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
