package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/api/v1/datasets/{key}/filters", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, key := range []string{"vlc", "seis"} {
		req := httptest.NewRequest("GET", "/api/v1/datasets/"+key+"/filters", http.NoBody)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	}

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/v1/datasets/{key}/filters", "200"))
	if got < 2 {
		t.Errorf("expected both requests under one pattern, got %f", got)
	}
}

func TestMiddleware_StatusCodes(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	tests := []struct {
		path, status string
	}{
		{"/missing", "404"},
		{"/broken", "500"},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest("GET", tc.path, http.NoBody))
			if v := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", tc.path, tc.status)); v < 1 {
				t.Errorf("expected a %s sample for %s, got %f", tc.status, tc.path, v)
			}
		})
	}
}

func TestStatusWriterFlushes(t *testing.T) {
	rr := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rr, status: http.StatusOK}
	w.Flush()
	if !rr.Flushed {
		t.Error("expected Flush to reach the recorder")
	}
}

func TestNormalizePath(t *testing.T) {
	if got := normalizePath(""); got != "unknown" {
		t.Errorf("normalizePath(\"\") = %q", got)
	}
	if got := normalizePath("/health"); got != "/health" {
		t.Errorf("normalizePath(/health) = %q", got)
	}
}

func TestObserveLoad(t *testing.T) {
	before := testutil.ToFloat64(DatasetLoadsTotal.WithLabelValues("test", "ok"))
	ObserveLoad("test", "ok", 10*time.Millisecond, 42)
	ObserveLoad("test", "error", time.Millisecond, 0)
	if got := testutil.ToFloat64(DatasetLoadsTotal.WithLabelValues("test", "ok")); got != before+1 {
		t.Errorf("ok loads = %f, want %f", got, before+1)
	}
	if testutil.CollectAndCount(DatasetFeatures) == 0 {
		t.Error("expected a features observation")
	}
}
