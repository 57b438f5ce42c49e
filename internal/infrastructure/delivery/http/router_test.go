package httprouter_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clipd/internal/entity"
	"clipd/internal/errs"
	httprouter "clipd/internal/infrastructure/delivery/http"
	"clipd/internal/observability"
	"clipd/internal/orchestrator"
)

var testMetrics = observability.New()

// stubDownloads scripts the orchestrator surface per test.
type stubDownloads struct {
	startFunc  func(ctx context.Context, url string, opts entity.Options) (entity.Progress, error)
	cancelFunc func(ctx context.Context, id string) (bool, error)
	deleteFunc func(ctx context.Context, id string) (bool, error)
	retryFunc  func(ctx context.Context, id string) (entity.Progress, error)
	getFunc    func(ctx context.Context, id string) (entity.Progress, error)
	listFunc   func(ctx context.Context, f orchestrator.Filter) ([]entity.Progress, error)
	infoFunc   func(ctx context.Context, url string) (entity.VideoInfo, error)

	maxConcurrent int
	events        chan entity.Event
}

func (s *stubDownloads) StartDownload(ctx context.Context, url string, opts entity.Options) (entity.Progress, error) {
	return s.startFunc(ctx, url, opts)
}

func (s *stubDownloads) CancelDownload(ctx context.Context, id string) (bool, error) {
	return s.cancelFunc(ctx, id)
}

func (s *stubDownloads) DeleteDownload(ctx context.Context, id string) (bool, error) {
	return s.deleteFunc(ctx, id)
}

func (s *stubDownloads) RetryDownload(ctx context.Context, id string) (entity.Progress, error) {
	return s.retryFunc(ctx, id)
}

func (s *stubDownloads) GetProgress(ctx context.Context, id string) (entity.Progress, error) {
	return s.getFunc(ctx, id)
}

func (s *stubDownloads) ListByFilter(ctx context.Context, f orchestrator.Filter) ([]entity.Progress, error) {
	return s.listFunc(ctx, f)
}

func (s *stubDownloads) GetStats(context.Context) (orchestrator.Stats, error) {
	return orchestrator.Stats{Total: 2, Completed: 1, Failed: 1}, nil
}

func (s *stubDownloads) SetMaxConcurrent(n int) { s.maxConcurrent = n }

func (s *stubDownloads) ClearCompleted(context.Context) (int, error) { return 1, nil }

func (s *stubDownloads) FetchInfo(ctx context.Context, url string) (entity.VideoInfo, error) {
	return s.infoFunc(ctx, url)
}

func (s *stubDownloads) Subscribe() chan entity.Event { return s.events }

func (s *stubDownloads) Unsubscribe(chan entity.Event) {}

func newRouter(t *testing.T, svc *stubDownloads, ready func() bool) *httprouter.Router {
	t.Helper()

	return httprouter.New(slog.New(slog.DiscardHandler), svc, ready, testMetrics)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	return body
}

func TestStartDownload(t *testing.T) {
	svc := &stubDownloads{
		startFunc: func(_ context.Context, url string, _ entity.Options) (entity.Progress, error) {
			return entity.Progress{DownloadID: "dl-1", Status: entity.StatusQueued}, nil
		},
	}
	router := newRouter(t, svc, nil)

	tests := []struct {
		name       string
		body       string
		start      func(context.Context, string, entity.Options) (entity.Progress, error)
		wantStatus int
	}{
		{
			name:       "accepted",
			body:       `{"url":"https://example.com/v","options":{"quality":"720"}}`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "garbage body",
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid url",
			body:       `{"url":"ftp://example.com/v"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "service closed",
			body: `{"url":"https://example.com/v"}`,
			start: func(context.Context, string, entity.Options) (entity.Progress, error) {
				return entity.Progress{}, errs.ErrServiceClosed
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.start != nil {
				svc.startFunc = tt.start
				defer func() {
					svc.startFunc = func(_ context.Context, url string, _ entity.Options) (entity.Progress, error) {
						return entity.Progress{DownloadID: "dl-1", Status: entity.StatusQueued}, nil
					}
				}()
			}

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/downloads", strings.NewReader(tt.body))

			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			if tt.wantStatus == http.StatusAccepted {
				body := decodeBody(t, rec)

				data, _ := body["data"].(map[string]any)
				if data["downloadId"] != "dl-1" {
					t.Errorf("downloadId = %v, want dl-1", data["downloadId"])
				}
			}
		})
	}
}

func TestGetDownload(t *testing.T) {
	svc := &stubDownloads{
		getFunc: func(_ context.Context, id string) (entity.Progress, error) {
			if id != "dl-1" {
				return entity.Progress{}, errs.ErrDownloadNotFound
			}

			return entity.Progress{DownloadID: id, Status: entity.StatusDownloading, Progress: 50}, nil
		},
	}
	router := newRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/downloads/dl-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/downloads/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestListDownloads(t *testing.T) {
	var gotFilter orchestrator.Filter

	svc := &stubDownloads{
		listFunc: func(_ context.Context, f orchestrator.Filter) ([]entity.Progress, error) {
			gotFilter = f

			return []entity.Progress{{DownloadID: "dl-1"}}, nil
		},
	}
	router := newRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/downloads?filter=active", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	if gotFilter != orchestrator.FilterActive {
		t.Errorf("filter = %v, want active", gotFilter)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/downloads?filter=bogus", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRetryDownload(t *testing.T) {
	svc := &stubDownloads{
		retryFunc: func(_ context.Context, id string) (entity.Progress, error) {
			if id != "failed-1" {
				return entity.Progress{}, errs.ErrNotRetryable
			}

			return entity.Progress{DownloadID: "retry-1", Status: entity.StatusRetrying, RetryCount: 1}, nil
		},
	}
	router := newRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/downloads/failed-1/retry", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/downloads/done-1/retry", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestCancelDownload(t *testing.T) {
	svc := &stubDownloads{
		cancelFunc: func(_ context.Context, id string) (bool, error) {
			switch id {
			case "dl-1":
				return true, nil
			case "dl-stuck":
				// Engine refused, download stays active.
				return false, nil
			default:
				return false, errs.ErrDownloadNotFound
			}
		},
	}
	router := newRouter(t, svc, nil)

	tests := []struct {
		id         string
		wantStatus int
	}{
		{id: "dl-1", wantStatus: http.StatusOK},
		{id: "dl-stuck", wantStatus: http.StatusConflict},
		{id: "nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/downloads/"+tt.id+"/cancel", nil))

		if rec.Code != tt.wantStatus {
			t.Errorf("cancel %s: status = %d, want %d", tt.id, rec.Code, tt.wantStatus)
		}
	}
}

func TestDeleteDownload(t *testing.T) {
	svc := &stubDownloads{
		deleteFunc: func(_ context.Context, id string) (bool, error) {
			return id == "dl-1", nil
		},
	}
	router := newRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/downloads/dl-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/downloads/dl-1", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("repeat delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetStats(t *testing.T) {
	router := newRouter(t, &stubDownloads{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/downloads/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	body := decodeBody(t, rec)

	data, _ := body["data"].(map[string]any)
	if data["total"] != float64(2) {
		t.Errorf("total = %v, want 2", data["total"])
	}
}

func TestReadyz(t *testing.T) {
	ready := false
	router := newRouter(t, &stubDownloads{}, func() bool { return ready })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	ready = true

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestGetInfo(t *testing.T) {
	svc := &stubDownloads{
		infoFunc: func(_ context.Context, url string) (entity.VideoInfo, error) {
			return entity.VideoInfo{ID: "abc", Title: "clip"}, nil
		},
	}
	router := newRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/info?url=https://example.com/v", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/info", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing url status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSetMaxConcurrent(t *testing.T) {
	svc := &stubDownloads{}
	router := newRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/settings/max-concurrent", strings.NewReader(`{"maxConcurrent":5}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	if svc.maxConcurrent != 5 {
		t.Errorf("maxConcurrent = %d, want 5", svc.maxConcurrent)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/v1/settings/max-concurrent", strings.NewReader(`{"maxConcurrent":0}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestClearCompleted(t *testing.T) {
	router := newRouter(t, &stubDownloads{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/downloads/completed", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	body := decodeBody(t, rec)

	data, _ := body["data"].(map[string]any)
	if data["cleared"] != float64(1) {
		t.Errorf("cleared = %v, want 1", data["cleared"])
	}
}
