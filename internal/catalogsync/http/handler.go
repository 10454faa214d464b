// Package synchttp exposes the catalog sync admin endpoints.
package synchttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/greenline/possync/internal/platform/httpx"
	"github.com/greenline/possync/internal/syncrun"
	"github.com/greenline/possync/jobs"
)

type launcher interface {
	Launch(ctx context.Context, vendor string, initiatingUserID int64, locationIDs []int64) (*asynq.TaskInfo, error)
	ListRunningTasks(ctx context.Context) ([]jobs.RunningTask, error)
}

type runReader interface {
	ListByRun(ctx context.Context, runID uuid.UUID) ([]syncrun.Run, error)
	LatestByLocation(ctx context.Context, locationID int64) (syncrun.Run, error)
}

// Handler wires HTTP endpoints for launching and inspecting catalog syncs.
type Handler struct {
	logger        *slog.Logger
	launcher      launcher
	runs          runReader
	vendors       []string
	defaultUserID int64
	validate      *validator.Validate
}

// NewHandler constructs Handler. vendors lists the accepted vendor tags.
func NewHandler(logger *slog.Logger, launcher launcher, runs runReader, vendors []string, defaultUserID int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:        logger,
		launcher:      launcher,
		runs:          runs,
		vendors:       vendors,
		defaultUserID: defaultUserID,
		validate:      validator.New(),
	}
}

// MountRoutes attaches the sync routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{vendor}", h.launch)
	r.Get("/running", h.running)
	r.Get("/runs/{runID}", h.listRun)
	r.Get("/locations/{locationID}/latest", h.latest)
}

type launchRequest struct {
	LocationIDs []int64 `json:"location_ids" validate:"omitempty,dive,gt=0"`
	InitiatedBy int64   `json:"initiated_by" validate:"gte=0"`
}

type launchResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
	Vendor string `json:"vendor"`
}

func (h *Handler) launch(w http.ResponseWriter, r *http.Request) {
	vendor := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "vendor")))
	if !slices.Contains(h.vendors, vendor) {
		httpx.RespondError(w, fmt.Errorf("%w: unknown vendor %q", httpx.ErrValidation, vendor))
		return
	}

	var req launchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if req.InitiatedBy == 0 {
		req.InitiatedBy = h.defaultUserID
	}

	info, err := h.launcher.Launch(r.Context(), vendor, req.InitiatedBy, req.LocationIDs)
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
		return
	}
	if err != nil {
		h.logger.Error("launch catalog sync", slog.String("vendor", vendor), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("catalog sync launched", slog.String("vendor", vendor), slog.String("task_id", info.ID), slog.Int64("initiated_by", req.InitiatedBy))
	httpx.JSON(w, http.StatusAccepted, launchResponse{TaskID: info.ID, Queue: info.Queue, Vendor: vendor})
}

func (h *Handler) running(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.launcher.ListRunningTasks(r.Context())
	if err != nil {
		h.logger.Error("list running catalog syncs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if tasks == nil {
		tasks = []jobs.RunningTask{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

type runView struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	LocationID  int64     `json:"location_id"`
	Vendor      string    `json:"vendor"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	ItemCount   int       `json:"item_count"`
	InitiatedBy int64     `json:"initiated_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toView(run syncrun.Run) runView {
	return runView{
		ID:          run.ID,
		RunID:       run.RunID.String(),
		LocationID:  run.LocationID,
		Vendor:      run.Vendor,
		Status:      run.Status.String(),
		Message:     run.Message,
		ItemCount:   run.ItemCount,
		InitiatedBy: run.InitiatedBy,
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   run.UpdatedAt,
	}
}

func (h *Handler) listRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: run id", httpx.ErrValidation))
		return
	}
	runs, err := h.runs.ListByRun(r.Context(), runID)
	if err != nil {
		h.logger.Error("list sync runs", slog.String("run_id", runID.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if len(runs) == 0 {
		httpx.RespondError(w, fmt.Errorf("%w: run %s", httpx.ErrNotFound, runID))
		return
	}
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, toView(run))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"run_id": runID.String(), "locations": views})
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	locationID, err := strconv.ParseInt(chi.URLParam(r, "locationID"), 10, 64)
	if err != nil || locationID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: location id", httpx.ErrValidation))
		return
	}
	run, err := h.runs.LatestByLocation(r.Context(), locationID)
	if errors.Is(err, syncrun.ErrNotFound) {
		httpx.RespondError(w, fmt.Errorf("%w: no runs for location %d", httpx.ErrNotFound, locationID))
		return
	}
	if err != nil {
		h.logger.Error("latest sync run", slog.Int64("location_id", locationID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(run))
}
