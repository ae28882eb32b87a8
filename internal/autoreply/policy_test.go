// ABOUTME: Tests for the auto-response policy engine
// ABOUTME: Verifies gating, conservative failure handling, and decision passthrough

package autoreply

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuideme/care-gateway/internal/ai"
)

// mockClassifier implements Classifier for testing
type mockClassifier struct {
	decision ai.Decision
	err      error
	calls    int
}

func (m *mockClassifier) ClassifyAutoReply(ctx context.Context, text string) (ai.Decision, error) {
	m.calls++
	return m.decision, m.err
}

func TestDecide_ApprovedReply(t *testing.T) {
	classifier := &mockClassifier{
		decision: ai.Decision{ShouldReply: true, ReplyText: "Ótimo, continue assim!"},
	}
	e := New(classifier, nil)

	shouldReply, reply, err := e.Decide(context.Background(), "Tomei o remédio, obrigado!")
	require.NoError(t, err)
	assert.True(t, shouldReply)
	assert.Equal(t, "Ótimo, continue assim!", reply)
	assert.Equal(t, 1, classifier.calls)
}

func TestDecide_DeclinedReply(t *testing.T) {
	classifier := &mockClassifier{decision: ai.Decision{ShouldReply: false}}
	e := New(classifier, nil)

	shouldReply, reply, err := e.Decide(context.Background(), "Qual a dose do remédio?")
	require.NoError(t, err)
	assert.False(t, shouldReply)
	assert.Empty(t, reply)
}

func TestDecide_ClassifierErrorMeansNoReply(t *testing.T) {
	classifier := &mockClassifier{err: errors.New("malformed model output")}
	e := New(classifier, nil)

	shouldReply, reply, err := e.Decide(context.Background(), "oi")
	assert.False(t, shouldReply)
	assert.Empty(t, reply)
	assert.Error(t, err, "error is surfaced for logging only")
}

func TestDecide_ApprovedWithoutTextMeansNoReply(t *testing.T) {
	classifier := &mockClassifier{decision: ai.Decision{ShouldReply: true, ReplyText: "   "}}
	e := New(classifier, nil)

	shouldReply, _, err := e.Decide(context.Background(), "oi")
	assert.False(t, shouldReply)
	assert.Error(t, err)
}

func TestDecide_NilClassifierDisablesEngine(t *testing.T) {
	e := New(nil, nil)

	assert.False(t, e.Enabled())

	shouldReply, reply, err := e.Decide(context.Background(), "oi")
	require.NoError(t, err)
	assert.False(t, shouldReply)
	assert.Empty(t, reply)
}
