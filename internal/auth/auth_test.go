package auth

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func privilegeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Privileged", strconv.FormatBool(Privileged(r.Context())))
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		keys       []string
		header     string
		value      string
		wantStatus int
		wantPriv   string
	}{
		{"anonymous", []string{"secret"}, "", "", http.StatusOK, "false"},
		{"bearer", []string{"secret"}, "Authorization", "Bearer secret", http.StatusOK, "true"},
		{"api key header", []string{"other", "secret"}, HeaderAPIKey, "secret", http.StatusOK, "true"},
		{"wrong key", []string{"secret"}, "Authorization", "Bearer nope", http.StatusUnauthorized, ""},
		{"basic scheme", []string{"secret"}, "Authorization", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, ""},
		{"no keys configured", nil, HeaderAPIKey, "secret", http.StatusUnauthorized, ""},
		{"empty keys ignored", []string{""}, "Authorization", "Bearer ", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Middleware(tt.keys)(privilegeHandler())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/datasets", http.NoBody)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("X-Privileged"); got != tt.wantPriv {
				t.Errorf("privileged = %q, want %q", got, tt.wantPriv)
			}
		})
	}
}

func TestPrivilegedDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	if Privileged(req.Context()) {
		t.Fatal("bare context must not be privileged")
	}
}
