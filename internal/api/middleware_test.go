package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

var okBody = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func doRequest(h http.Handler, method, target, remoteAddr string, header map[string]string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestID(t *testing.T) {
	t.Run("generates_when_absent", func(t *testing.T) {
		rec := doRequest(RequestID(okBody), "GET", "/", "", nil)
		if id := rec.Header().Get("X-Request-ID"); len(id) != 16 {
			t.Errorf("generated id %q, want 16 hex chars", id)
		}
	})

	t.Run("echoes_client_id", func(t *testing.T) {
		rec := doRequest(RequestID(okBody), "GET", "/", "", map[string]string{"X-Request-ID": "trace-42"})
		if id := rec.Header().Get("X-Request-ID"); id != "trace-42" {
			t.Errorf("id = %q, want trace-42", id)
		}
	})
}

func TestCORSWithOrigins(t *testing.T) {
	t.Run("no_allowlist_means_wildcard", func(t *testing.T) {
		rec := doRequest(CORSWithOrigins(nil)(okBody), "GET", "/", "", nil)
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("expected wildcard Access-Control-Allow-Origin")
		}
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("listed_origin_is_echoed", func(t *testing.T) {
		mw := CORSWithOrigins([]string{"https://reader.example"})
		rec := doRequest(mw(okBody), "GET", "/", "", map[string]string{"Origin": "https://reader.example"})
		if rec.Header().Get("Access-Control-Allow-Origin") != "https://reader.example" {
			t.Error("listed origin not echoed")
		}
		if rec.Header().Get("Vary") != "Origin" {
			t.Error("missing Vary: Origin")
		}
	})

	t.Run("unlisted_origin_served_without_cors_headers", func(t *testing.T) {
		mw := CORSWithOrigins([]string{"https://reader.example"})
		rec := doRequest(mw(okBody), "GET", "/", "", map[string]string{"Origin": "https://intruder.example"})
		if rec.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("unlisted origin received CORS header")
		}
		if rec.Code != http.StatusOK {
			t.Errorf("plain request should still be served, got %d", rec.Code)
		}
	})

	t.Run("unlisted_origin_preflight_refused", func(t *testing.T) {
		mw := CORSWithOrigins([]string{"https://reader.example"})
		rec := doRequest(mw(okBody), "OPTIONS", "/", "", map[string]string{"Origin": "https://intruder.example"})
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("preflight_short_circuits", func(t *testing.T) {
		reached := false
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { reached = true })
		rec := doRequest(CORSWithOrigins(nil)(inner), "OPTIONS", "/", "", nil)
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
		if reached {
			t.Error("preflight must not reach the handler")
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("under_limit_passes", func(t *testing.T) {
		mw := RateLimiter(100, 100)(okBody)
		rec := doRequest(mw, "GET", "/", "192.0.2.1:40001", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("burst_exhaustion_gets_429", func(t *testing.T) {
		mw := RateLimiter(1, 2)(okBody)
		for i := 0; i < 2; i++ {
			if rec := doRequest(mw, "GET", "/", "192.0.2.2:40001", nil); rec.Code != http.StatusOK {
				t.Fatalf("request %d within burst: status = %d", i, rec.Code)
			}
		}
		rec := doRequest(mw, "GET", "/", "192.0.2.2:40001", nil)
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d, want 429", rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Error("missing Retry-After header")
		}
	})

	t.Run("limits_are_per_ip", func(t *testing.T) {
		mw := RateLimiter(1, 1)(okBody)
		doRequest(mw, "GET", "/", "192.0.2.3:40001", nil)
		if rec := doRequest(mw, "GET", "/", "192.0.2.3:40001", nil); rec.Code != http.StatusTooManyRequests {
			t.Errorf("exhausted ip: status = %d, want 429", rec.Code)
		}
		if rec := doRequest(mw, "GET", "/", "192.0.2.4:40001", nil); rec.Code != http.StatusOK {
			t.Errorf("fresh ip: status = %d, want 200", rec.Code)
		}
	})
}

func TestBearerAuth(t *testing.T) {
	cases := []struct {
		name   string
		token  string
		header string
		target string
		want   int
	}{
		{"no_token_configured_allows_all", "", "", "/", http.StatusOK},
		{"matching_header", "hunter2", "Bearer hunter2", "/", http.StatusOK},
		{"wrong_header", "hunter2", "Bearer nope", "/", http.StatusUnauthorized},
		{"no_credentials", "hunter2", "", "/", http.StatusUnauthorized},
		{"wrong_scheme", "hunter2", "Basic aHVudGVyMg==", "/", http.StatusUnauthorized},
		// EventSource cannot set headers, so the token may ride the query string.
		{"query_param_fallback", "hunter2", "", "/?token=hunter2", http.StatusOK},
		{"wrong_query_param", "hunter2", "", "/?token=nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := map[string]string{}
			if tc.header != "" {
				header["Authorization"] = tc.header
			}
			rec := doRequest(BearerAuth(tc.token)(okBody), "GET", tc.target, "", header)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	t.Run("no_token_configured_refuses", func(t *testing.T) {
		rec := doRequest(RequireAuth("")(okBody), "DELETE", "/", "", nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("token_configured_passes_through", func(t *testing.T) {
		rec := doRequest(RequireAuth("hunter2")(okBody), "DELETE", "/", "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestRecoverer(t *testing.T) {
	t.Run("passes_through", func(t *testing.T) {
		rec := doRequest(Recoverer(okBody), "GET", "/", "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("panic_becomes_500_json", func(t *testing.T) {
		boom := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("benchmark table ate itself")
		})
		rec := doRequest(Recoverer(boom), "GET", "/", "", nil)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		var body ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("body is not JSON: %v", err)
		}
		if body.Error != "internal server error" {
			t.Errorf("error = %q", body.Error)
		}
	})
}
