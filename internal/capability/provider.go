package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hmochat/internal/conversation"
	"github.com/fyrsmithlabs/hmochat/internal/llm"
	"github.com/fyrsmithlabs/hmochat/internal/logging"
	"github.com/fyrsmithlabs/hmochat/internal/metrics"
	"github.com/fyrsmithlabs/hmochat/internal/vectorstore"
)

// DefaultK is the number of excerpts returned when the caller passes k <= 0.
const DefaultK = 3

var tracer = otel.Tracer("hmochat.capability")

// ErrEmptyTranscript is wrapped in an ExtractionError when there is nothing
// to extract from.
var ErrEmptyTranscript = errors.New("empty transcript")

// ExtractionError reports that a transcript could not be turned into a
// complete profile, either because the model call failed or because its
// payload did not fit the schema.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return e.Err.Error()
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Excerpt is one ranked knowledge base passage.
type Excerpt struct {
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// Provider implements the capabilities over a JSON completer and a searcher.
type Provider struct {
	completer llm.Completer
	searcher  vectorstore.Searcher
	metrics   *metrics.Collector
	logger    *logging.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithMetrics records capability outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Provider) { p.metrics = c }
}

// WithLogger sets the provider logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// NewProvider builds a Provider. A nil searcher behaves as an unloaded index.
func NewProvider(completer llm.Completer, searcher vectorstore.Searcher, opts ...Option) *Provider {
	p := &Provider{
		completer: completer,
		searcher:  searcher,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExtractProfile asks the model for the profile found in transcript. Every
// failure is an *ExtractionError.
func (p *Provider) ExtractProfile(ctx context.Context, transcript string) (profile conversation.Profile, err error) {
	ctx, span := tracer.Start(ctx, "capability.ExtractProfile")
	defer span.End()
	start := time.Now()
	defer func() {
		outcome := metrics.CapabilityOK
		if err != nil {
			outcome = metrics.CapabilityError
			span.RecordError(err)
			span.SetStatus(codes.Error, "extraction failed")
		}
		p.metrics.RecordCapability(string(conversation.ExtractProfile), outcome, time.Since(start))
	}()

	if strings.TrimSpace(transcript) == "" {
		return conversation.Profile{}, &ExtractionError{Err: ErrEmptyTranscript}
	}

	payload, err := p.completer.CompleteJSON(ctx, extractionPrompt, fmt.Sprintf(historyTemplate, transcript))
	if err != nil {
		return conversation.Profile{}, &ExtractionError{Err: fmt.Errorf("extraction call: %w", err)}
	}

	profile, err = conversation.ParseProfile(payload)
	if err != nil {
		p.logger.Warn(ctx, "extraction payload rejected", zap.Error(err))
		return conversation.Profile{}, &ExtractionError{Err: err}
	}

	p.logger.Info(ctx, "profile extracted", zap.Object("profile", profile))
	return profile, nil
}

// SearchKnowledge returns up to k excerpts for question, best first. filter
// restricts results by document metadata. An unloaded index yields no
// excerpts and no error.
func (p *Provider) SearchKnowledge(ctx context.Context, question string, k int, filter map[string]string) (excerpts []Excerpt, err error) {
	ctx, span := tracer.Start(ctx, "capability.SearchKnowledge")
	defer span.End()
	if k <= 0 {
		k = DefaultK
	}
	span.SetAttributes(attribute.Int("k", k), attribute.Int("filters", len(filter)))

	start := time.Now()
	defer func() {
		outcome := metrics.CapabilityOK
		switch {
		case err != nil:
			outcome = metrics.CapabilityError
			span.RecordError(err)
			span.SetStatus(codes.Error, "search failed")
		case len(excerpts) == 0:
			outcome = metrics.CapabilityEmpty
		}
		p.metrics.RecordCapability(string(conversation.SearchKnowledge), outcome, time.Since(start))
	}()

	if p.searcher == nil {
		return nil, nil
	}

	results, err := p.searcher.Search(ctx, question, k, filter)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge base: %w", err)
	}

	excerpts = make([]Excerpt, 0, len(results))
	for _, r := range results {
		excerpts = append(excerpts, Excerpt{Content: r.Content, Score: r.Score})
	}
	span.SetAttributes(attribute.Int("results", len(excerpts)))
	p.logger.Debug(ctx, "knowledge search",
		zap.Int("k", k),
		zap.Int("results", len(excerpts)))
	return excerpts, nil
}
