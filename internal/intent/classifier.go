// Package intent assigns one label from the closed intent set to each user
// input. Classification is rule-first and deterministic: explicit signals
// (uploaded artifacts, data-query keywords, domain keywords) are checked in
// a fixed priority order before any model fallback runs.
package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/elvinasadov/agroflow/internal/logging"
	"github.com/elvinasadov/agroflow/pkg/domain"
	"github.com/elvinasadov/agroflow/pkg/model"
)

// Keyword tables cover Azerbaijani and English phrasing. Matching is
// case-insensitive substring containment on the normalized input.
var (
	dataQueryKeywords = []string{
		"göstər", "göstərin", "siyahı", "neçə", "hansı ferm", "cədvəl",
		"show", "list", "how many", "count", "average", "total",
		"select", "query", "database", "records", "report",
	}

	irrigationKeywords = []string{
		"suvar", "su ver", "damcı", "irrigat", "water", "watering", "drip", "moisture",
	}

	fertilizationKeywords = []string{
		"gübrə", "azot", "fosfor", "kalium", "fertiliz", "nutrient", "nitrogen", "compost",
	}

	pestKeywords = []string{
		"zərərverici", "həşərat", "xəstəlik", "göbələk", "mənənə",
		"pest", "insect", "aphid", "disease", "fungus", "mildew", "larva",
	}

	weatherKeywords = []string{
		"hava", "yağış", "proqnoz", "şaxta", "külək",
		"weather", "rain", "forecast", "frost", "temperature", "wind", "humidity",
	}

	greetingKeywords = []string{
		"salam", "necəsən", "sağ ol", "hello", "hi", "hey", "good morning", "thanks", "thank you",
	}
)

// Classifier implements rule-first classification with an optional model
// fallback for inputs no rule resolves.
type Classifier struct {
	fallback model.Model
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures the Classifier.
type Option func(*Classifier)

// WithFallbackModel enables model-based classification for inputs the rules
// cannot resolve. Output is parsed back into the closed set; anything else
// maps to UNKNOWN.
func WithFallbackModel(m model.Model) Option {
	return func(c *Classifier) {
		c.fallback = m
	}
}

// WithTimeout bounds the fallback generation call (default 10s).
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		c.timeout = d
	}
}

// WithLogger configures structured logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		timeout: 10 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify assigns an intent to the current input. Tie-break priority when
// multiple explicit signals match: VISION_ANALYSIS > DATA_QUERY > domain
// intents > GREETING > UNKNOWN.
func (c *Classifier) Classify(ctx context.Context, input string, artifacts []string, recent []domain.Message) domain.Intent {
	// Uploaded artifacts force vision analysis regardless of text.
	if len(artifacts) > 0 {
		return domain.IntentVisionAnalysis
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return domain.IntentUnknown
	}

	if containsAny(normalized, dataQueryKeywords) {
		return domain.IntentDataQuery
	}

	switch {
	case containsAny(normalized, irrigationKeywords):
		return domain.IntentIrrigation
	case containsAny(normalized, fertilizationKeywords):
		return domain.IntentFertilization
	case containsAny(normalized, pestKeywords):
		return domain.IntentPest
	case containsAny(normalized, weatherKeywords):
		return domain.IntentWeather
	}

	// Greetings are short by nature; a keyword buried in a long question is
	// not a greeting.
	if len(strings.Fields(normalized)) <= 4 && matchesGreeting(normalized) {
		return domain.IntentGreeting
	}

	return c.classifyWithModel(ctx, input, recent)
}

func (c *Classifier) classifyWithModel(ctx context.Context, input string, recent []domain.Message) domain.Intent {
	if c.fallback == nil {
		return domain.IntentUnknown
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	labels := make([]string, 0, len(domain.Intents()))
	for _, i := range domain.Intents() {
		labels = append(labels, string(i))
	}

	msgs := append([]domain.Message{}, tail(recent, 6)...)
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: input})

	out, err := c.fallback.Generate(ctx, model.Request{
		System: "You classify farm-assistant messages. Respond with exactly one label from: " +
			strings.Join(labels, ", ") + ". Respond with the label only.",
		Messages:    msgs,
		Temperature: 0.01,
		MaxTokens:   16,
	})
	if err != nil {
		c.logger.Warn("fallback classification failed", "err", err)
		return domain.IntentUnknown
	}

	return domain.ParseIntent(out)
}

// matchesGreeting matches single-word greetings on whole words (so "hi"
// inside another word does not count) and phrases on containment.
func matchesGreeting(s string) bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?'
	})
	for _, kw := range greetingKeywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(s, kw) {
				return true
			}
			continue
		}
		for _, f := range fields {
			if f == kw {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func tail(msgs []domain.Message, n int) []domain.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
