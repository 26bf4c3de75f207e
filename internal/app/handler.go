// internal/app/handler.go
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"payment_reminder/internal/domain/billing"

	"github.com/sirupsen/logrus"
)

// Response is the invocation envelope: statusCode plus a JSON-encoded body.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type successBody struct {
	Message          string                       `json:"message"`
	Period           periodBody                   `json:"period"`
	Results          []billing.NotificationResult `json:"results"`
	SuppressedErrors int                          `json:"suppressed_errors"`
	RunID            string                       `json:"run_id,omitempty"`
}

type periodBody struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type errorBody struct {
	Error string `json:"error"`
}

// BuildFunc assembles a Runner for one invocation, fetching secrets and
// creating clients. Any error it returns is fatal for the invocation.
type BuildFunc func(ctx context.Context) (Runner, error)

// Handle runs one invocation. It answers 500 only when the runner cannot be
// built, the pass itself returns an error, or something panics; everything
// else degrades to partial results with 200.
func Handle(ctx context.Context, build BuildFunc, logger *logrus.Entry) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Unhandled panic during invocation")
			resp = errorResponse(fmt.Errorf("panic: %v", r))
		}
	}()

	runner, err := build(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to initialise invocation")
		return errorResponse(err)
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		logger.WithError(err).Error("Reconciliation failed")
		return errorResponse(err)
	}

	body, err := json.Marshal(successBody{
		Message:          summary.Message,
		Period:           periodBody{Start: summary.Period.StartDate(), End: summary.Period.EndDate()},
		Results:          summary.Results,
		SuppressedErrors: summary.SuppressedErrors,
		RunID:            summary.RunID,
	})
	if err != nil {
		return errorResponse(fmt.Errorf("encode response: %w", err))
	}
	return Response{StatusCode: http.StatusOK, Body: string(body)}
}

func errorResponse(err error) Response {
	body, _ := json.Marshal(errorBody{Error: err.Error()})
	return Response{StatusCode: http.StatusInternalServerError, Body: string(body)}
}

// Exclusive lets at most one invocation run at a time within this process.
// The ledger's conditional writes still guard against other processes.
type Exclusive struct {
	mu     sync.Mutex
	build  BuildFunc
	logger *logrus.Entry
}

func NewExclusive(build BuildFunc, logger *logrus.Entry) *Exclusive {
	return &Exclusive{build: build, logger: logger}
}

// TryInvoke runs Handle unless another invocation is in flight, in which case
// it returns false immediately.
func (e *Exclusive) TryInvoke(ctx context.Context) (Response, bool) {
	if !e.mu.TryLock() {
		e.logger.Warn("Invocation skipped: another run is still in progress")
		return Response{}, false
	}
	defer e.mu.Unlock()
	return Handle(ctx, e.build, e.logger), true
}
