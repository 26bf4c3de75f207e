package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"payment_reminder/internal/domain/billing"
	"payment_reminder/internal/infra/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context) (*Summary, error)

func (f runnerFunc) Run(ctx context.Context) (*Summary, error) { return f(ctx) }

func buildOK(r Runner) BuildFunc {
	return func(ctx context.Context) (Runner, error) { return r, nil }
}

func TestHandle_Success(t *testing.T) {
	f := newWeeklyFixture()
	resp := Handle(context.Background(), buildOK(f.service()), logger.Discard())

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Message string `json:"message"`
		Period  struct {
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"period"`
		Results []struct {
			Entity    string `json:"entity"`
			Minutes   int    `json:"minutes"`
			AmountDue string `json:"amount_due"`
			Delivered bool   `json:"delivered"`
		} `json:"results"`
		SuppressedErrors int    `json:"suppressed_errors"`
		RunID            string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "MathPracs Payment Reminder executed successfully", body.Message)
	assert.Equal(t, "2025-03-02", body.Period.Start)
	assert.Equal(t, "2025-03-08", body.Period.End)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "Algebra", body.Results[0].Entity)
	assert.Equal(t, "75.00", body.Results[0].AmountDue)
	assert.True(t, body.Results[0].Delivered)
	assert.Equal(t, "run-1", body.RunID)
}

func TestHandle_EmptyResultsEncodeAsArray(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context) (*Summary, error) {
		return &Summary{Message: "ok", Results: []billing.NotificationResult{}}, nil
	})
	resp := Handle(context.Background(), buildOK(runner), logger.Discard())

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, `"results":[]`)
	assert.Contains(t, resp.Body, `"suppressed_errors":0`)
}

func TestHandle_BuildFailure(t *testing.T) {
	build := func(ctx context.Context) (Runner, error) { return nil, errors.New("secret not found") }

	resp := Handle(context.Background(), build, logger.Discard())

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"secret not found"}`, resp.Body)
}

func TestHandle_RunFailure(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context) (*Summary, error) { return nil, context.DeadlineExceeded })

	resp := Handle(context.Background(), buildOK(runner), logger.Discard())

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, resp.Body, "deadline exceeded")
}

func TestHandle_Panic(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context) (*Summary, error) { panic("boom") })

	resp := Handle(context.Background(), buildOK(runner), logger.Discard())

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"panic: boom"}`, resp.Body)
}

func TestExclusive_RejectsOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context) (*Summary, error) {
		close(started)
		<-release
		return &Summary{Results: []billing.NotificationResult{}}, nil
	})
	ex := NewExclusive(buildOK(runner), logger.Discard())

	var wg sync.WaitGroup
	wg.Add(1)
	var first Response
	go func() {
		defer wg.Done()
		first, _ = ex.TryInvoke(context.Background())
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first invocation did not start")
	}
	_, ok := ex.TryInvoke(context.Background())
	assert.False(t, ok)

	close(release)
	wg.Wait()
	assert.Equal(t, http.StatusOK, first.StatusCode)
}
