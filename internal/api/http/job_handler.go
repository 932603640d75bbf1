// internal/api/http/job_handler.go
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"job-scheduler/internal/domain"
	"job-scheduler/internal/metrics"
	"job-scheduler/internal/usecase"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// JobHandler handles the HTTP requests for jobs.
type JobHandler struct {
	service  *usecase.JobService
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

// NewJobHandler creates a new JobHandler and registers the custom validators.
func NewJobHandler(service *usecase.JobService, logger *slog.Logger) *JobHandler {
	validate := validator.New()

	_ = validate.RegisterValidation("isoduration", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseInterval(fl.Field().String())
		return err == nil
	})

	return &JobHandler{
		service:  service,
		logger:   logger.With("component", "job-handler"),
		validate: validate,
		tracer:   otel.Tracer("job-scheduler-api"),
	}
}

// A helper struct to capture the status code
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// RegisterRoutes registers job-related routes to the http.ServeMux.
func (h *JobHandler) RegisterRoutes(mux *http.ServeMux) {
	baseHandler := http.HandlerFunc(h.handleJobs)

	instrumentedHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routeLabel(r.URL.Path)

		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method+" "+path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		r = r.WithContext(ctx)

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		baseHandler.ServeHTTP(iw, r)

		metrics.HttpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(iw.statusCode)).Inc()

		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})

	mux.Handle("/jobs/", instrumentedHandler)
}

func routeLabel(urlPath string) string {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(urlPath, "/jobs"), "/"), "/")
	switch {
	case len(parts) == 0 || parts[0] == "":
		return "/jobs/"
	case len(parts) == 1:
		return "/jobs/{id}"
	default:
		return "/jobs/{id}/" + parts[1]
	}
}

// handleJobs is a general dispatcher for /jobs/ path
func (h *JobHandler) handleJobs(w http.ResponseWriter, r *http.Request) {
	// e.g. /jobs/42/history -> ["jobs", "42", "history"]
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	if len(pathParts) < 1 || pathParts[0] != "jobs" || len(pathParts) > 3 {
		http.NotFound(w, r)
		return
	}

	var id, action string
	if len(pathParts) > 1 {
		id = pathParts[1]
	}
	if len(pathParts) > 2 {
		action = pathParts[2]
	}

	switch {
	case id == "":
		switch r.Method {
		case http.MethodGet:
			h.handleListJobs(w, r)
		case http.MethodPost:
			h.handleCreateJob(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case action == "":
		switch r.Method {
		case http.MethodGet:
			h.handleGetJob(w, r, id)
		case http.MethodDelete:
			h.handleDeleteJob(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		h.handleAction(w, r, id, action)
	}
}

func (h *JobHandler) handleAction(w http.ResponseWriter, r *http.Request, id, action string) {
	type route struct {
		method  string
		handler func(http.ResponseWriter, *http.Request, string)
	}
	routes := map[string]route{
		"history":        {http.MethodGet, h.handleGetJobHistory},
		"run":            {http.MethodPost, h.handleRunJob},
		"end-repetition": {http.MethodPost, h.handleEndRepetition},
		"reset":          {http.MethodPost, h.handleResetJob},
		"schedule":       {http.MethodPut, h.handleScheduleJob},
		"repeat":         {http.MethodPut, h.handleRepeatJob},
	}

	rt, ok := routes[action]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Method != rt.method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rt.handler(w, r, id)
}

// handleGetJobHistory handles listing execution history for a job (GET /jobs/{id}/history)
func (h *JobHandler) handleGetJobHistory(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetJobHistory")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20 // default and max page size
	}
	span.SetAttributes(attribute.Int("page", page), attribute.Int("page_size", pageSize))

	history, err := h.service.ListHistory(ctx, id, page, pageSize)
	if err != nil {
		h.writeError(w, span, "error listing job history", id, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *JobHandler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.CreateJob")
	defer span.End()

	var req CreateJobRequest
	if !h.decode(w, r, span, &req) {
		return
	}

	job, err := h.service.Create(ctx, req.ToInput())
	if err != nil {
		h.writeError(w, span, "error creating job", "", err)
		return
	}
	span.SetAttributes(attribute.String("job.id", job.ID()))
	writeJSON(w, http.StatusCreated, newJobResponse(job.Snapshot()))
}

func (h *JobHandler) handleDeleteJob(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.DeleteJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	if err := h.service.Delete(ctx, id); err != nil {
		h.writeError(w, span, "error deleting job", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JobHandler) handleGetJob(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	job, err := h.service.Get(ctx, id)
	if err != nil {
		h.writeError(w, span, "error getting job", id, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job.Snapshot()))
}

func (h *JobHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ListJobs")
	defer span.End()

	jobs, err := h.service.List(ctx)
	if err != nil {
		h.writeError(w, span, "error listing jobs", "", err)
		return
	}

	resp := make([]JobResponse, 0, len(jobs))
	for _, rec := range jobs {
		resp = append(resp, newJobResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRunJob dispatches a job once (POST /jobs/{id}/run). A failing program
// still answers 200 with the failed execution record.
func (h *JobHandler) handleRunJob(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.RunJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	record, err := h.service.Dispatch(ctx, id)
	if record == nil {
		h.writeError(w, span, "error dispatching job", id, err)
		return
	}
	if err != nil {
		span.RecordError(err)
		h.logger.Warn("job dispatch failed", "job_id", id, "execution_id", record.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *JobHandler) handleEndRepetition(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.EndRepetition")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	job, err := h.service.EndRepetition(ctx, id)
	if err != nil {
		h.writeError(w, span, "error ending job repetition", id, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job.Snapshot()))
}

func (h *JobHandler) handleResetJob(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ResetJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	job, err := h.service.Reset(ctx, id)
	if err != nil {
		h.writeError(w, span, "error resetting job", id, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job.Snapshot()))
}

func (h *JobHandler) handleScheduleJob(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ScheduleJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	var req ScheduleRequest
	if !h.decode(w, r, span, &req) {
		return
	}

	job, err := h.service.Reschedule(ctx, id, req.At)
	if err != nil {
		h.writeError(w, span, "error rescheduling job", id, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job.Snapshot()))
}

func (h *JobHandler) handleRepeatJob(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.RepeatJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id))

	var req RepeatRequest
	if !h.decode(w, r, span, &req) {
		return
	}

	job, err := h.service.SetRepeatEvery(ctx, id, req.Every)
	if err != nil {
		h.writeError(w, span, "error setting job repetition", id, err)
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job.Snapshot()))
}

// decode reads and validates a JSON body. It writes the 400 response itself
// and reports false when the request is unusable.
func (h *JobHandler) decode(w http.ResponseWriter, r *http.Request, span trace.Span, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		span.SetStatus(codes.Error, "Failed to decode request body")
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}

	if err := h.validate.Struct(req); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		span.RecordError(err)
		var validationErrors []string
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			for _, err := range fieldErrors {
				validationErrors = append(validationErrors,
					"Field '"+err.Field()+"' failed on the '"+err.Tag()+"' tag.",
				)
			}
		}
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Validation failed",
			"details": validationErrors,
		})
		return false
	}
	return true
}

func (h *JobHandler) writeError(w http.ResponseWriter, span trace.Span, msg, id string, err error) {
	status := statusFor(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)

	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "job_id", id, "error", err)
		http.Error(w, "Internal server error", status)
		return
	}
	h.logger.Warn(msg, "job_id", id, "error", err)
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case errors.IsAny(err,
		domain.ErrLocked,
		domain.ErrNotPending,
		domain.ErrNotWaiting,
		domain.ErrNotFailed,
		domain.ErrAlreadyStarted,
		domain.ErrConcurrentUpdate,
		domain.ErrInconsistentState):
		return http.StatusConflict
	case errors.IsAny(err,
		domain.ErrInvalidIntervalSpec,
		domain.ErrUnknownProgram,
		domain.ErrUnknownService):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
