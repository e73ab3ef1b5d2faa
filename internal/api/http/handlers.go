package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
	"github.com/vadimbarashkov/affiliate-publisher/pkg/response"
)

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

type runRequest struct {
	// Links are seed links published ahead of anything the sources produce.
	Links []models.AffiliateLink `json:"links,omitempty" validate:"omitempty,dive"`
	// TimeBudgetSeconds bounds this run; 0 inherits the configured budget.
	TimeBudgetSeconds int `json:"time_budget_seconds,omitempty" validate:"omitempty,min=1"`
}

type runResponse struct {
	RunID           string `json:"run_id"`
	LinksConsidered int    `json:"links_considered"`
	LinksPublished  int    `json:"links_published"`
	LinksExhausted  int    `json:"links_exhausted"`
	ChannelFailures int    `json:"channel_failures"`
	ElapsedSeconds  int64  `json:"elapsed_seconds"`
}

func toRunResponse(report models.RunReport) runResponse {
	return runResponse{
		RunID:           report.RunID,
		LinksConsidered: report.LinksConsidered,
		LinksPublished:  report.LinksPublished,
		LinksExhausted:  report.LinksExhausted,
		ChannelFailures: report.ChannelFailures,
		ElapsedSeconds:  int64(report.Elapsed.Seconds()),
	}
}

func handleStartRun(runner Runner, validate *validator.Validate, inFlight *sync.Mutex) http.HandlerFunc {
	const op = "api.http.handleStartRun"
	const successMsg = "The publishing run has finished."

	return func(w http.ResponseWriter, r *http.Request) {
		var req runRequest

		// An empty body is a plain "run now" over the configured sources.
		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		if !inFlight.TryLock() {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.RunInProgressResponse)
			return
		}
		defer inFlight.Unlock()

		ctx := r.Context()
		if req.TimeBudgetSeconds > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeBudgetSeconds)*time.Second)
			defer cancel()
		}

		report, err := runner.Run(ctx, req.Links)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toRunResponse(report)))
	}
}
