package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/llm"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour})

	b.Record(false)
	assert.Equal(t, Closed, b.GetState())
	b.Record(false)
	assert.Equal(t, Open, b.GetState())
	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	now := time.Unix(0, 0)
	b := newWithClock(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Minute}, func() time.Time { return now })

	b.Record(false)
	require.Equal(t, Open, b.GetState())

	now = now.Add(time.Minute)
	assert.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.GetState())

	b.Record(true)
	assert.Equal(t, HalfOpen, b.GetState())
	b.Record(true)
	assert.Equal(t, Closed, b.GetState())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	b := newWithClock(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Second}, func() time.Time { return now })

	b.Record(false)
	now = now.Add(time.Second)
	require.True(t, b.Allow())

	b.Record(false)
	assert.Equal(t, Open, b.GetState())
}

func TestRegistryIsolatesModels(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, Timeout: time.Hour})

	r.For("google/gemini-2.5-flash").Record(false)

	assert.Equal(t, Open, r.For("google/gemini-2.5-flash").GetState())
	assert.Equal(t, Closed, r.For("google/gemini-2.5-pro").GetState())
	assert.Len(t, r.States(), 2)
}

func TestMiddlewareRejectsWhenOpen(t *testing.T) {
	calls := 0
	base := llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			calls++
			return llm.CompletionResponse{}, errors.New("boom")
		},
		nil,
		func() string { return "m" },
	)
	client := Middleware(New(Config{FailureThreshold: 1, Timeout: time.Hour}))(base)

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)

	_, err = client.Complete(context.Background(), llm.CompletionRequest{})
	var cbErr *Error
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, Open, cbErr.State)
	assert.Equal(t, "m", cbErr.Model)
	assert.Equal(t, 1, calls)
}
