package faults

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "model_unavailable", KindModelUnavailable.String())
	assert.Equal(t, "malformed_stage_output", KindMalformedStageOutput.String())
	assert.Equal(t, "missing_configuration", KindMissingConfiguration.String())
	assert.Equal(t, "invalid_input", KindInvalidInput.String())
	assert.Equal(t, "timeout", KindTimeout.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestIsAndKindOfThroughWrapping(t *testing.T) {
	err := fmt.Errorf("run failed: %w", MalformedStageOutput("Research Agent", "{", errors.New("unexpected EOF")))

	assert.True(t, Is(err, KindMalformedStageOutput))
	assert.False(t, Is(err, KindModelUnavailable))
	assert.Equal(t, KindMalformedStageOutput, KindOf(err))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestMalformedStageOutputKeepsBoundedExcerpt(t *testing.T) {
	text := strings.Repeat("x", 5000)
	err := MalformedStageOutput("Divergent Brainstorm Agent", text, errors.New("bad json"))

	assert.Len(t, err.Excerpt, ExcerptLimit)
	assert.Equal(t, "Divergent Brainstorm Agent", err.Stage)
	assert.Contains(t, err.Error(), "Divergent Brainstorm Agent")
}

func TestExcerptIsRuneSafe(t *testing.T) {
	text := strings.Repeat("å", ExcerptLimit+10)
	got := Excerpt(text)
	assert.Equal(t, ExcerptLimit, len([]rune(got)))
}

func TestModelUnavailableUnwraps(t *testing.T) {
	cause := context.DeadlineExceeded
	err := ModelUnavailable("google/gemini-2.5-pro", 3, 503, cause)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, err.Attempts)
	assert.Equal(t, 503, err.StatusCode)
}

func TestWithStage(t *testing.T) {
	assert.NoError(t, WithStage(nil, "x"))

	tagged := WithStage(ModelUnavailable("m", 1, 0, errors.New("down")), "Financial Analyst Agent")
	fe, ok := As(tagged)
	require.True(t, ok)
	assert.Equal(t, "Financial Analyst Agent", fe.Stage)
	assert.Equal(t, KindModelUnavailable, fe.Kind)

	plain := WithStage(errors.New("boom"), "Agent Roundtable")
	fe, ok = As(plain)
	require.True(t, ok)
	assert.Equal(t, KindUnknown, fe.Kind)
	assert.Equal(t, "Agent Roundtable", fe.Stage)
}
