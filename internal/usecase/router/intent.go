package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/grantwatch/retrieval/internal/domain"
)

// Intent is one of the closed set of request kinds the router dispatches.
type Intent string

// Supported intents.
const (
	IntentSearch    Intent = "search"
	IntentSummarize Intent = "summarize"
	IntentWorkflow  Intent = "workflow"
)

// State tracks a request through the routing state machine.
type State string

// Request states. Each request moves Received -> Classified -> Dispatched ->
// Completed or Failed; no state is shared across requests.
const (
	StateReceived   State = "received"
	StateClassified State = "classified"
	StateDispatched State = "dispatched"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// workflowPrefix marks a named-workflow request, e.g. "workflow:deadline-alerts".
const workflowPrefix = "workflow:"

// opportunityIDPattern matches id-like tokens such as NSF-AI-2024-001:
// uppercase groups joined by at least two hyphens.
var opportunityIDPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9.]*(?:-[A-Z0-9.]+){2,}\b`)

// Classification is the routing decision for one request.
type Classification struct {
	Intent   Intent
	Query    string // free text for search
	GrantID  string // target for summarize
	Workflow string // name for workflow
}

// Classify applies the routing rules: a "workflow:" prefix routes to a named
// workflow, an id-like token routes to summarize-by-id, anything else falls
// back to search. Blank input is unroutable.
func Classify(text string) (Classification, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Classification{}, fmt.Errorf("request text is empty: %w", domain.ErrUnroutableQuery)
	}

	if rest, ok := strings.CutPrefix(strings.ToLower(trimmed), workflowPrefix); ok {
		name := strings.TrimSpace(rest)
		if name == "" {
			return Classification{}, fmt.Errorf("workflow name is missing: %w", domain.ErrUnroutableQuery)
		}
		return Classification{Intent: IntentWorkflow, Workflow: name}, nil
	}

	if id := opportunityIDPattern.FindString(trimmed); id != "" {
		return Classification{Intent: IntentSummarize, GrantID: id}, nil
	}

	return Classification{Intent: IntentSearch, Query: trimmed}, nil
}
