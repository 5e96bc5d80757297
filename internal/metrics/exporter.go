package metrics

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"

	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxLabelLen = 50

// Snapshotter produces snapshots. *Aggregator implements it.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Exporter refreshes a set of gauges from a fresh snapshot on every scrape.
type Exporter struct {
	src Snapshotter
	log logger.Logger

	mu       sync.Mutex
	registry *prometheus.Registry
	handler  http.Handler

	llmTotal          prometheus.Gauge
	llmPrompt         prometheus.Gauge
	llmCompletion     prometheus.Gauge
	llmByModel        *prometheus.GaugeVec
	llmWindowTokens   *prometheus.GaugeVec
	llmWindowRequests *prometheus.GaugeVec
	convTotal         prometheus.Gauge
	convMessages      prometheus.Gauge
	convAvg           prometheus.Gauge
	convByWindow      *prometheus.GaugeVec
	topicFreq         *prometheus.GaugeVec
	topicUnique       prometheus.Gauge
	endorseActive     prometheus.Gauge
	endorseDeleted    prometheus.Gauge
	endorseRate       prometheus.Gauge
	endorseBySkill    *prometheus.GaugeVec
	endorseByEndorser *prometheus.GaugeVec
	apiTotal          prometheus.Gauge
	apiByEndpoint     *prometheus.GaugeVec
	apiByStatus       *prometheus.GaugeVec
	otpTotal          prometheus.Gauge
	otpActive         prometheus.Gauge
	otpExpired        prometheus.Gauge
	otpByAction       *prometheus.GaugeVec
	exportsTotal      prometheus.Gauge
	contactsTotal     prometheus.Gauge
	dbConnection      prometheus.Gauge
	collectionsCount  prometheus.Gauge
	documentsTotal    prometheus.Gauge
	resettable        []*prometheus.GaugeVec
}

// NewExporter registers every gauge on a private registry.
func NewExporter(src Snapshotter, log logger.Logger) *Exporter {
	e := &Exporter{src: src, log: log, registry: prometheus.NewRegistry()}

	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		e.registry.MustRegister(g)
		return g
	}
	vec := func(name, help string, labels ...string) *prometheus.GaugeVec {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
		e.registry.MustRegister(g)
		e.resettable = append(e.resettable, g)
		return g
	}

	e.llmTotal = gauge("llm_total_tokens", "Total LLM tokens used")
	e.llmPrompt = gauge("llm_total_prompt_tokens", "Total LLM prompt tokens used")
	e.llmCompletion = gauge("llm_total_completion_tokens", "Total LLM completion tokens used")
	e.llmByModel = vec("llm_tokens_by_model", "Total tokens used by model", "model")
	e.llmWindowTokens = vec("llm_tokens_by_window", "LLM tokens used in a trailing window", "window")
	e.llmWindowRequests = vec("llm_requests_by_window", "LLM requests in a trailing window", "window")

	e.convTotal = gauge("conversations_total", "Total conversations")
	e.convMessages = gauge("conversations_total_messages", "Total messages in all conversations")
	e.convAvg = gauge("conversations_avg_messages", "Average messages per conversation")
	e.convByWindow = vec("conversations_by_window", "Conversations updated in a trailing window", "window")

	e.topicFreq = vec("conversation_topics_frequency", "Frequency of conversation topics", "topic")
	e.topicUnique = gauge("conversation_topics_total_unique", "Total number of unique topics")

	e.endorseActive = gauge("endorsements_total_active", "Total active endorsements")
	e.endorseDeleted = gauge("endorsements_total_deleted", "Total deleted endorsements")
	e.endorseRate = gauge("endorsements_deletion_rate", "Endorsement deletion rate percentage")
	e.endorseBySkill = vec("endorsements_by_skill", "Endorsements count by skill", "skill_name")
	e.endorseByEndorser = vec("endorsements_by_endorser", "Endorsements count by endorser email", "email")

	e.apiTotal = gauge("api_total_calls", "Total API calls")
	e.apiByEndpoint = vec("api_calls_by_endpoint", "API calls by endpoint", "endpoint")
	e.apiByStatus = vec("api_calls_by_status", "API calls by HTTP status code", "status_code")

	e.otpTotal = gauge("otp_total_generated", "Total OTP codes generated")
	e.otpActive = gauge("otp_active", "Currently active OTP codes")
	e.otpExpired = gauge("otp_expired", "Expired OTP codes")
	e.otpByAction = vec("otp_by_action", "OTP codes by action type", "action")

	e.exportsTotal = gauge("exports_total", "Total chat exports")
	e.contactsTotal = gauge("contact_submissions_total", "Total contact form submissions")

	e.dbConnection = gauge("system_database_connection", "Database connection status (1=connected, 0=disconnected)")
	e.collectionsCount = gauge("system_collections_count", "Number of database collections")
	e.documentsTotal = gauge("system_total_documents", "Total number of documents across all collections")

	e.handler = promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
	return e
}

// ServeHTTP refreshes the gauges and writes the exposition. A failed
// snapshot only flips system_database_connection to 0; the scrape still
// succeeds.
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Refresh(r.Context())
	e.handler.ServeHTTP(w, r)
}

// Refresh updates every gauge from a new snapshot.
func (e *Exporter) Refresh(ctx context.Context) {
	s, err := e.src.Snapshot(ctx)
	if err != nil {
		e.log.Warn("metrics snapshot failed", logger.Error(err))
		e.dbConnection.Set(0)
		return
	}
	e.apply(s)
}

func (e *Exporter) apply(s *Snapshot) {
	for _, v := range e.resettable {
		v.Reset()
	}

	e.llmTotal.Set(float64(s.LLM.TotalTokens))
	e.llmPrompt.Set(float64(s.LLM.PromptTokens))
	e.llmCompletion.Set(float64(s.LLM.CompletionTokens))
	for model, n := range s.LLM.Models {
		e.llmByModel.WithLabelValues(model).Set(float64(n))
	}
	for w, t := range s.LLM.ByWindow {
		e.llmWindowTokens.WithLabelValues(w).Set(float64(t.Total))
		e.llmWindowRequests.WithLabelValues(w).Set(float64(t.Requests))
	}

	e.convTotal.Set(float64(s.Conversations.Total))
	e.convMessages.Set(float64(s.Conversations.TotalMessages))
	e.convAvg.Set(s.Conversations.AvgMessages)
	for w, n := range s.Conversations.ByWindow {
		e.convByWindow.WithLabelValues(w).Set(float64(n))
	}

	for _, t := range s.Topics.Frequency {
		e.topicFreq.WithLabelValues(SanitizeLabel(t.Key)).Add(float64(t.Count))
	}
	e.topicUnique.Set(float64(s.Topics.TotalUnique))

	e.endorseActive.Set(float64(s.Endorsements.Active))
	e.endorseDeleted.Set(float64(s.Endorsements.Deleted))
	e.endorseRate.Set(s.Endorsements.DeletionRate)
	for skill, n := range s.Endorsements.BySkill {
		e.endorseBySkill.WithLabelValues(SanitizeLabel(skill)).Add(float64(n))
	}
	for _, r := range s.Endorsements.TopEndorsers {
		e.endorseByEndorser.WithLabelValues(EndorserLabel(r.Key)).Add(float64(r.Count))
	}

	e.apiTotal.Set(float64(s.API.Total))
	for ep, n := range s.API.ByEndpoint {
		e.apiByEndpoint.WithLabelValues(EndpointLabel(ep)).Add(float64(n))
	}
	for code, n := range s.API.ByStatus {
		e.apiByStatus.WithLabelValues(code).Set(float64(n))
	}

	e.otpTotal.Set(float64(s.OTP.Total))
	e.otpActive.Set(float64(s.OTP.Active))
	e.otpExpired.Set(float64(s.OTP.Expired))
	for action, n := range s.OTP.ByAction {
		e.otpByAction.WithLabelValues(action).Set(float64(n))
	}

	e.exportsTotal.Set(float64(s.Exports.Total))
	e.contactsTotal.Set(float64(s.Contacts.Total))

	e.dbConnection.Set(boolGauge(s.System.DatabaseConnected))
	e.collectionsCount.Set(float64(s.System.Collections))
	e.documentsTotal.Set(float64(s.System.TotalDocuments))
}

// SanitizeLabel lowercases s, maps spaces and dashes to underscores and
// truncates it. Used for topics and skill names.
func SanitizeLabel(s string) string {
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return truncate(strings.ToLower(s))
}

// EndpointLabel maps slashes and dashes to underscores and truncates.
// Case is preserved.
func EndpointLabel(s string) string {
	return truncate(strings.NewReplacer("/", "_", "-", "_").Replace(s))
}

// EndorserLabel replaces an email with a short stable hash.
func EndorserLabel(email string) string {
	sum := md5.Sum([]byte(email))
	return "user_" + hex.EncodeToString(sum[:])[:8]
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > maxLabelLen {
		return string(r[:maxLabelLen])
	}
	return s
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
