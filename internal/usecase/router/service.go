// Package router is the minimal agent core: it classifies a natural-language
// request into one of a closed set of intents and dispatches it to the
// retrieval engine, the external summarizer, or a named workflow. Requests
// are independent; the router keeps no conversation state.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/grantwatch/retrieval/internal/domain"
	"github.com/grantwatch/retrieval/internal/domain/search/filter"
	"github.com/grantwatch/retrieval/internal/domain/search/request"
	"github.com/grantwatch/retrieval/internal/domain/search/result"
)

// DefaultRetryBackoff is the pause before the single summarizer retry.
const DefaultRetryBackoff = 2 * time.Second

// Response is the outcome of routing one request.
type Response struct {
	State         State
	Intent        Intent
	Results       []result.Result
	Summary       string
	Degraded      bool   // summarizer failed; Results carry the raw record
	Clarification string // set when the request was unroutable
}

// Service routes requests.
type Service struct {
	search     GrantSearcher
	meta       MetadataReader
	summarizer Summarizer
	workflows  map[string]Workflow
	backoff    time.Duration
	minScore   float64
	topK       int
	logger     *zap.Logger
}

// New creates a router. workflows is the closed set of named handlers;
// summarizer may be nil, which degrades summarize requests to raw records.
func New(
	search GrantSearcher, meta MetadataReader, summarizer Summarizer,
	workflows map[string]Workflow, logger *zap.Logger,
) *Service {
	return &Service{
		search:     search,
		meta:       meta,
		summarizer: summarizer,
		workflows:  workflows,
		backoff:    DefaultRetryBackoff,
		topK:       request.DefaultTopK,
		logger:     logger,
	}
}

// WithSearchDefaults configures the topK and similarity floor used when the
// router dispatches a search.
func (s *Service) WithSearchDefaults(topK int, minScore float64) *Service {
	if topK > 0 {
		s.topK = topK
	}
	s.minScore = minScore
	return s
}

// WithRetryBackoff configures the pause before the summarizer retry.
func (s *Service) WithRetryBackoff(d time.Duration) *Service {
	if d >= 0 {
		s.backoff = d
	}
	return s
}

// Handle walks one request through the state machine. An unroutable request
// produces a completed Response carrying a clarification prompt together with
// ErrUnroutableQuery; transport layers render it as a question, not a crash.
func (s *Service) Handle(ctx context.Context, text string) (Response, error) {
	resp := Response{State: StateReceived}

	cls, err := Classify(text)
	if err != nil {
		resp.State = StateFailed
		resp.Clarification = "I could not route this request. Try a search phrase, " +
			"an opportunity ID like NSF-AI-2024-001, or \"workflow:<name>\"."
		return resp, err
	}
	resp.State = StateClassified
	resp.Intent = cls.Intent

	s.logger.Debug("Request classified",
		zap.String("intent", string(cls.Intent)),
		zap.String("grant_id", cls.GrantID),
		zap.String("workflow", cls.Workflow),
	)

	resp.State = StateDispatched
	switch cls.Intent {
	case IntentSearch:
		err = s.dispatchSearch(ctx, cls.Query, &resp)
	case IntentSummarize:
		err = s.dispatchSummarize(ctx, cls.GrantID, &resp)
	case IntentWorkflow:
		err = s.dispatchWorkflow(ctx, cls.Workflow, &resp)
	default:
		err = fmt.Errorf("unknown intent %q: %w", cls.Intent, domain.ErrUnroutableQuery)
	}

	if err != nil {
		resp.State = StateFailed
		return resp, err
	}
	resp.State = StateCompleted
	return resp, nil
}

func (s *Service) dispatchSearch(ctx context.Context, query string, resp *Response) error {
	req, err := request.New(query, s.topK, s.minScore, filter.Filter{})
	if err != nil {
		return err
	}
	results, err := s.search.SearchGrants(ctx, &req)
	if err != nil {
		return fmt.Errorf("search dispatch: %w", err)
	}
	resp.Results = results
	return nil
}

// dispatchSummarize hydrates the record and calls the external summarizer,
// retrying once after a backoff. If the tool still fails, the response
// degrades to the raw record with no summary rather than failing the request.
func (s *Service) dispatchSummarize(ctx context.Context, id string, resp *Response) error {
	rec, err := s.meta.Get(id)
	if err != nil {
		return fmt.Errorf("summarize dispatch: %w", err)
	}
	resp.Results = []result.Result{result.New(id, 1.0, rec)}

	if s.summarizer == nil {
		resp.Degraded = true
		return nil
	}

	summary, err := s.summarizer.Summarize(ctx, rec)
	if err != nil && isRecoverableToolError(err) {
		s.logger.Warn("Summarizer failed, retrying once",
			zap.String("opportunity_id", id),
			zap.Duration("backoff", s.backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			resp.Degraded = true
			return nil
		case <-time.After(s.backoff):
		}
		summary, err = s.summarizer.Summarize(ctx, rec)
	}
	if err != nil {
		if !isRecoverableToolError(err) {
			return fmt.Errorf("summarize dispatch: %w", err)
		}
		s.logger.Warn("Summarizer failed after retry, returning raw record",
			zap.String("opportunity_id", id),
			zap.Error(err),
		)
		resp.Degraded = true
		return nil
	}

	resp.Summary = summary
	return nil
}

func (s *Service) dispatchWorkflow(ctx context.Context, name string, resp *Response) error {
	wf, ok := s.workflows[name]
	if !ok {
		resp.Clarification = fmt.Sprintf("Unknown workflow %q. Available workflows: %s.",
			name, workflowNames(s.workflows))
		return fmt.Errorf("workflow %q is not registered: %w", name, domain.ErrUnroutableQuery)
	}
	results, err := wf.Run(ctx)
	if err != nil {
		return fmt.Errorf("workflow %q: %w", name, err)
	}
	resp.Results = results
	return nil
}

func isRecoverableToolError(err error) bool {
	return errors.Is(err, domain.ErrExternalToolTimeout) ||
		errors.Is(err, domain.ErrExternalToolError) ||
		errors.Is(err, context.DeadlineExceeded)
}

func workflowNames(workflows map[string]Workflow) string {
	if len(workflows) == 0 {
		return "none"
	}
	names := make([]string, 0, len(workflows))
	for name := range workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
