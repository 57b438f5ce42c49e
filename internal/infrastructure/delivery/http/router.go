// Package httprouter exposes the download orchestrator over HTTP.
package httprouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"clipd/internal/consts"
	"clipd/internal/entity"
	"clipd/internal/errs"
	"clipd/internal/infrastructure/delivery/http/middleware"
	"clipd/internal/infrastructure/delivery/http/request"
	"clipd/internal/infrastructure/delivery/http/response"
	"clipd/internal/observability"
	"clipd/internal/orchestrator"
)

// Downloads is the orchestrator surface the router needs.
type Downloads interface {
	StartDownload(ctx context.Context, url string, opts entity.Options) (entity.Progress, error)
	CancelDownload(ctx context.Context, downloadID string) (bool, error)
	DeleteDownload(ctx context.Context, downloadID string) (bool, error)
	RetryDownload(ctx context.Context, downloadID string) (entity.Progress, error)
	GetProgress(ctx context.Context, downloadID string) (entity.Progress, error)
	ListByFilter(ctx context.Context, filter orchestrator.Filter) ([]entity.Progress, error)
	GetStats(ctx context.Context) (orchestrator.Stats, error)
	SetMaxConcurrent(n int)
	ClearCompleted(ctx context.Context) (int, error)
	FetchInfo(ctx context.Context, url string) (entity.VideoInfo, error)
	Subscribe() chan entity.Event
	Unsubscribe(ch chan entity.Event)
}

type chain []func(http.Handler) http.Handler

func (c chain) then(h http.Handler) http.Handler {
	for _, mw := range slices.Backward(c) {
		h = mw(h)
	}

	return h
}

type Router struct {
	*http.ServeMux
	log         *slog.Logger
	globalChain []func(http.Handler) http.Handler
	routeChain  []func(http.Handler) http.Handler
	isSubRouter bool
	svc         Downloads
	ready       func() bool
	metrics     *observability.Metrics
}

// New builds the router with all routes and global middleware attached.
// ready gates /v1/readyz; nil means always ready.
func New(log *slog.Logger, svc Downloads, ready func() bool, metrics *observability.Metrics) *Router {
	r := &Router{
		ServeMux: http.NewServeMux(),
		log:      log.With(slog.String("package", "httprouter")),
		svc:      svc,
		ready:    ready,
		metrics:  metrics,
	}

	r.SetGlobalMiddlewares()
	r.SetRoutes()

	return r
}

func (r *Router) Use(middleware ...func(http.Handler) http.Handler) {
	if r.isSubRouter {
		r.routeChain = append(r.routeChain, middleware...)
	} else {
		r.globalChain = append(r.globalChain, middleware...)
	}
}

func (r *Router) HandleFunc(pattern string, h http.HandlerFunc) {
	r.Handle(pattern, h)
}

func (r *Router) Handle(pattern string, h http.Handler) {
	for _, middleware := range slices.Backward(r.routeChain) {
		h = middleware(h)
	}

	r.ServeMux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	chain(r.globalChain).then(r.ServeMux).ServeHTTP(w, req)
}

func (r *Router) SetGlobalMiddlewares() {
	r.Use(
		middleware.Recoverer(r.log),
		middleware.RequestID,
		middleware.Logger,
		middleware.Metrics(r.metrics),
	)
}

func (r *Router) SetRoutes() {
	r.SetRoutesHealthcheck()
	r.SetRoutesDownloads()
	r.SetRoutesInfo()
	r.SetRoutesEvents()
	r.SetRoutesSettings()

	r.Handle("GET /metrics", observability.Handler())
}

func (r *Router) SetRoutesHealthcheck() {
	r.HandleFunc("GET /v1/readyz", func(w http.ResponseWriter, req *http.Request) {
		if r.ready != nil && !r.ready() {
			response.ServiceUnavailable(w, "not ready", nil)

			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func (ro *Router) SetRoutesDownloads() {
	ro.HandleFunc("POST /v1/downloads", ro.StartDownload)
	ro.HandleFunc("GET /v1/downloads", ro.ListDownloads)

	dlRouter := &Router{
		ServeMux: http.NewServeMux(),
	}
	dlRouter.HandleFunc("GET /stats", ro.GetStats)
	dlRouter.HandleFunc("GET /{id}", ro.GetDownload)
	dlRouter.HandleFunc("POST /{id}/retry", ro.RetryDownload)
	dlRouter.HandleFunc("DELETE /{id}/cancel", ro.CancelDownload)
	dlRouter.HandleFunc("DELETE /completed", ro.ClearCompleted)
	dlRouter.HandleFunc("DELETE /{id}", ro.DeleteDownload)

	ro.Handle("/v1/downloads/", http.StripPrefix("/v1/downloads", dlRouter))
}

func (ro *Router) SetRoutesInfo() {
	ro.HandleFunc("GET /v1/info", ro.GetInfo)
}

func (ro *Router) SetRoutesEvents() {
	ro.HandleFunc("GET /v1/events", ro.Events)
}

func (ro *Router) SetRoutesSettings() {
	ro.HandleFunc("PUT /v1/settings/max-concurrent", ro.SetMaxConcurrent)
}

func (ro *Router) StartDownload(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "StartDownload")
	ctx := r.Context()

	var in request.StartDownload
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		log.ErrorContext(ctx, consts.RespInvalidRequestBody, slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidRequestBody, err)

		return
	}

	if err := in.Validate(); err != nil {
		log.ErrorContext(ctx, consts.RespUnprocessableEntity, slog.Any("error", err))
		response.UnprocessableEntity(w, consts.RespUnprocessableEntity, err)

		return
	}

	progress, err := ro.svc.StartDownload(ctx, in.URL, in.Options)
	if errors.Is(err, errs.ErrFetchInfo) {
		log.WarnContext(ctx, consts.RespDownloadStartFail, slog.Any("error", err))
		response.UnprocessableEntity(w, consts.RespDownloadStartFail, err)

		return
	}

	if errors.Is(err, errs.ErrServiceClosed) {
		log.WarnContext(ctx, consts.RespDownloadStartFail, slog.Any("error", err))
		response.ServiceUnavailable(w, consts.RespDownloadStartFail, err)

		return
	}

	if err != nil {
		log.ErrorContext(ctx, consts.RespDownloadStartFail, slog.Any("error", err))
		response.InternalServerError(w, consts.RespDownloadStartFail, nil, err)

		return
	}

	log.InfoContext(ctx, consts.RespDownloadStarted, slog.String("download_id", progress.DownloadID))

	response.Accepted(w, consts.RespDownloadStarted, progress, nil)
}

func (ro *Router) ListDownloads(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "ListDownloads")

	ctx, cancel := context.WithTimeout(r.Context(), consts.DefaultHandlerTimeout)
	defer cancel()

	filter, err := orchestrator.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		log.ErrorContext(ctx, consts.RespQueryParamMissing, slog.Any("error", err))
		response.BadRequest(w, consts.RespQueryParamMissing, err)

		return
	}

	downloads, err := ro.svc.ListByFilter(ctx, filter)
	if err != nil {
		log.ErrorContext(ctx, consts.RespDownloadsRetrieved, slog.Any("error", err))
		response.InternalServerError(w, consts.RespDownloadsRetrieved, nil, err)

		return
	}

	response.OK(w, consts.RespDownloadsRetrieved, downloads, nil)
}

func (ro *Router) GetDownload(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "GetDownload")

	ctx, cancel := context.WithTimeout(r.Context(), consts.DefaultHandlerTimeout)
	defer cancel()

	id := r.PathValue("id")

	progress, err := ro.svc.GetProgress(ctx, id)
	if errors.Is(err, errs.ErrDownloadNotFound) {
		log.DebugContext(ctx, consts.RespDownloadNotFound, slog.String("download_id", id))
		response.NotFound(w, consts.RespDownloadNotFound, err)

		return
	}

	if err != nil {
		log.ErrorContext(ctx, consts.RespDownloadRetrieved, slog.Any("error", err))
		response.InternalServerError(w, consts.RespDownloadRetrieved, nil, err)

		return
	}

	response.OK(w, consts.RespDownloadRetrieved, progress, nil)
}

func (ro *Router) GetStats(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "GetStats")

	ctx, cancel := context.WithTimeout(r.Context(), consts.DefaultHandlerTimeout)
	defer cancel()

	stats, err := ro.svc.GetStats(ctx)
	if err != nil {
		log.ErrorContext(ctx, consts.RespStatsRetrieved, slog.Any("error", err))
		response.InternalServerError(w, consts.RespStatsRetrieved, nil, err)

		return
	}

	response.OK(w, consts.RespStatsRetrieved, stats, nil)
}

func (ro *Router) RetryDownload(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "RetryDownload")
	ctx := r.Context()

	id := r.PathValue("id")

	progress, err := ro.svc.RetryDownload(ctx, id)
	if errors.Is(err, errs.ErrNotRetryable) {
		log.DebugContext(ctx, consts.RespRetryFail, slog.String("download_id", id))
		response.Conflict(w, consts.RespRetryFail, err)

		return
	}

	if errors.Is(err, errs.ErrServiceClosed) {
		response.ServiceUnavailable(w, consts.RespRetryFail, err)

		return
	}

	if err != nil {
		log.ErrorContext(ctx, consts.RespRetryFail, slog.Any("error", err))
		response.InternalServerError(w, consts.RespRetryFail, nil, err)

		return
	}

	log.InfoContext(ctx, consts.RespDownloadRetried,
		slog.String("download_id", id), slog.String("retry_id", progress.DownloadID))

	response.Accepted(w, consts.RespDownloadRetried, progress, nil)
}

func (ro *Router) CancelDownload(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "CancelDownload")
	ctx := r.Context()

	id := r.PathValue("id")

	cancelled, err := ro.svc.CancelDownload(ctx, id)
	if errors.Is(err, errs.ErrDownloadNotFound) {
		log.DebugContext(ctx, consts.RespDownloadNotFound, slog.String("download_id", id))
		response.NotFound(w, consts.RespDownloadNotFound, err)

		return
	}

	if err != nil {
		log.ErrorContext(ctx, consts.RespCancelFail, slog.Any("error", err))
		response.InternalServerError(w, consts.RespCancelFail, nil, err)

		return
	}

	if !cancelled {
		log.WarnContext(ctx, consts.RespCancelFail, slog.String("download_id", id))
		response.Conflict(w, consts.RespCancelFail, nil)

		return
	}

	response.OK(w, consts.RespDownloadCancelled, nil, nil)
}

func (ro *Router) DeleteDownload(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "DeleteDownload")
	ctx := r.Context()

	id := r.PathValue("id")

	removed, err := ro.svc.DeleteDownload(ctx, id)
	if err != nil {
		log.ErrorContext(ctx, consts.RespDownloadDeleted, slog.Any("error", err))
		response.InternalServerError(w, consts.RespDownloadDeleted, nil, err)

		return
	}

	if !removed {
		log.DebugContext(ctx, consts.RespDownloadNotFound, slog.String("download_id", id))
		response.NotFound(w, consts.RespDownloadNotFound, nil)

		return
	}

	response.OK(w, consts.RespDownloadDeleted, nil, nil)
}

func (ro *Router) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "ClearCompleted")
	ctx := r.Context()

	cleared, err := ro.svc.ClearCompleted(ctx)
	if err != nil {
		log.ErrorContext(ctx, consts.RespCompletedCleared, slog.Any("error", err))
		response.InternalServerError(w, consts.RespCompletedCleared, nil, err)

		return
	}

	response.OK(w, consts.RespCompletedCleared, map[string]int{"cleared": cleared}, nil)
}

func (ro *Router) SetMaxConcurrent(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "SetMaxConcurrent")
	ctx := r.Context()

	var in request.SetMaxConcurrent
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		log.ErrorContext(ctx, consts.RespInvalidRequestBody, slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidRequestBody, err)

		return
	}

	if err := in.Validate(); err != nil {
		log.ErrorContext(ctx, consts.RespUnprocessableEntity, slog.Any("error", err))
		response.UnprocessableEntity(w, consts.RespUnprocessableEntity, err)

		return
	}

	ro.svc.SetMaxConcurrent(in.MaxConcurrent)

	response.OK(w, consts.RespSettingsUpdated, in, nil)
}

func (ro *Router) GetInfo(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "GetInfo")

	ctx, cancel := context.WithTimeout(r.Context(), consts.DefaultHandlerTimeout)
	defer cancel()

	url := r.URL.Query().Get("url")
	if url == "" {
		log.ErrorContext(ctx, consts.RespQueryParamMissing)
		response.BadRequest(w, consts.RespQueryParamMissing, nil)

		return
	}

	info, err := ro.svc.FetchInfo(ctx, url)
	if errors.Is(err, errs.ErrInvalidURL) {
		log.DebugContext(ctx, consts.RespInfoFail, slog.Any("error", err))
		response.UnprocessableEntity(w, consts.RespInfoFail, err)

		return
	}

	if err != nil {
		log.ErrorContext(ctx, consts.RespInfoFail, slog.Any("error", err))
		response.InternalServerError(w, consts.RespInfoFail, nil, err)

		return
	}

	response.OK(w, consts.RespInfoRetrieved, info, nil)
}

// Events streams lifecycle events as server-sent events until the client
// disconnects.
func (ro *Router) Events(w http.ResponseWriter, r *http.Request) {
	log := ro.log.With("handler", "Events")
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalServerError(w, "streaming unsupported", nil, nil)

		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := ro.svc.Subscribe()
	defer ro.svc.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}

			data, err := json.Marshal(ev.Progress)
			if err != nil {
				log.ErrorContext(ctx, "marshal event", slog.Any("error", err))

				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
