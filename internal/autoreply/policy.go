// ABOUTME: Auto-response policy engine gating AI-suggested supportive replies
// ABOUTME: Conservative by default - any classification failure means no reply

package autoreply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuideme/care-gateway/internal/ai"
)

// Classifier is the AI capability consulted for the reply decision.
type Classifier interface {
	ClassifyAutoReply(ctx context.Context, text string) (ai.Decision, error)
}

// Engine decides whether to send an automated supportive reply to a
// non-alerting inbound message. The engine itself enforces only the shape
// of the decision; the conversational judgment (affirm simple updates,
// defer questions and complaints to a human) lives in the classifier's
// instruction contract.
type Engine struct {
	classifier Classifier
	logger     *slog.Logger
}

// New creates a policy engine. A nil classifier disables the engine:
// Decide then always answers "do not reply" without error.
func New(classifier Classifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		classifier: classifier,
		logger:     logger.With("component", "autoreply"),
	}
}

// Enabled reports whether the engine has a classifier to consult.
func (e *Engine) Enabled() bool {
	return e.classifier != nil
}

// Decide consults the classifier for the given message text. Any failure
// to invoke or parse the decision, or a positive decision without reply
// text, resolves to shouldReply=false with the underlying error returned
// for logging only. There is no retry.
func (e *Engine) Decide(ctx context.Context, text string) (bool, string, error) {
	if e.classifier == nil {
		return false, "", nil
	}

	decision, err := e.classifier.ClassifyAutoReply(ctx, text)
	if err != nil {
		return false, "", fmt.Errorf("consulting classifier: %w", err)
	}

	if !decision.ShouldReply {
		return false, "", nil
	}

	reply := strings.TrimSpace(decision.ReplyText)
	if reply == "" {
		return false, "", fmt.Errorf("classifier approved reply without text")
	}

	e.logger.Debug("auto-reply approved")
	return true, reply, nil
}
