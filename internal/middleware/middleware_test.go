package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/doggos/internal/model"
)

func TestStatusRecorder_WriteHeader_OnlyOnce(t *testing.T) {
	// Arrange
	w := httptest.NewRecorder()
	sr := newStatusRecorder(w)

	// Act
	sr.WriteHeader(http.StatusCreated)
	sr.WriteHeader(http.StatusConflict)

	// Assert
	if sr.status != http.StatusCreated {
		t.Errorf("status = %d, want %d", sr.status, http.StatusCreated)
	}
	if w.Code != http.StatusCreated {
		t.Errorf("recorded code = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestStatusRecorder_Write_ImpliesOK(t *testing.T) {
	// Arrange
	w := httptest.NewRecorder()
	sr := newStatusRecorder(w)

	// Act
	n, err := sr.Write([]byte("woof"))

	// Assert
	if err != nil || n != 4 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if !sr.wroteHeader || sr.status != http.StatusOK {
		t.Errorf("wroteHeader = %v, status = %d, want true, %d", sr.wroteHeader, sr.status, http.StatusOK)
	}
}

func TestStatusRecorder_Hijack_NotSupported(t *testing.T) {
	sr := newStatusRecorder(httptest.NewRecorder())

	if _, _, err := sr.Hijack(); err != http.ErrNotSupported {
		t.Errorf("Hijack() error = %v, want %v", err, http.ErrNotSupported)
	}
}

func TestChain_Order(t *testing.T) {
	// Arrange
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	handler := Chain(mark("first"), mark("second"), mark("third"))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			order = append(order, "handler")
			w.WriteHeader(http.StatusOK)
		}),
	)

	// Act
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	// Assert
	if got := strings.Join(order, ","); got != "first,second,third,handler" {
		t.Errorf("order = %s", got)
	}
}

func TestLogging_Levels(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel zapcore.Level
	}{
		{"api request", "/api/v1/dogs", http.StatusOK, zapcore.InfoLevel},
		{"client error", "/api/v1/dogs", http.StatusConflict, zapcore.InfoLevel},
		{"server error", "/api/v1/dogs", http.StatusInternalServerError, zapcore.ErrorLevel},
		{"health probe", "/health", http.StatusOK, zapcore.DebugLevel},
		{"metrics scrape", "/metrics", http.StatusOK, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			core, logs := observer.New(zapcore.DebugLevel)
			handler := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			// Act
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			// Assert
			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("log entries = %d, want 1", len(entries))
			}
			if entries[0].Level != tt.wantLevel {
				t.Errorf("level = %s, want %s", entries[0].Level, tt.wantLevel)
			}
			if got := entries[0].ContextMap()["status"]; got != int64(tt.status) {
				t.Errorf("status field = %v, want %d", got, tt.status)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	// Arrange
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := Recovery(zap.New(core))(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("chewed the cable")
	}))
	rr := httptest.NewRecorder()

	// Act
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/dogs", nil))

	// Assert
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	var body model.APIResponse[any]
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body %q: %v", rr.Body.String(), err)
	}
	if body.Success || body.Code != http.StatusInternalServerError || body.Error != "internal server error" {
		t.Errorf("body = %+v, want the 500 error envelope", body)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Error("panic was not logged")
	}
}

func TestRecovery_RepanicsAbortHandler(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"generated", ""},
		{"propagated", "req-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			var seen string
			handler := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = RequestIDFrom(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rr := httptest.NewRecorder()

			// Act
			handler.ServeHTTP(rr, req)

			// Assert
			if seen == "" {
				t.Fatal("request ID missing from context")
			}
			if tt.incoming != "" && seen != tt.incoming {
				t.Errorf("request ID = %s, want %s", seen, tt.incoming)
			}
			if rr.Header().Get(RequestIDHeader) != seen {
				t.Errorf("response header = %s, want %s", rr.Header().Get(RequestIDHeader), seen)
			}
		})
	}
}

func TestRequestIDFrom_Missing(t *testing.T) {
	if got := RequestIDFrom(context.Background()); got != "" {
		t.Errorf("RequestIDFrom() = %q, want empty", got)
	}
}

func TestMetrics_PassesThrough(t *testing.T) {
	// Arrange
	router := mux.NewRouter()
	router.Use(mux.MiddlewareFunc(Metrics()))
	router.HandleFunc("/api/v1/dogs/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rr := httptest.NewRecorder()

	// Act
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/dogs/Rex", nil))

	// Assert
	if rr.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusTeapot)
	}
}

func TestRouteTemplate(t *testing.T) {
	// Arrange
	var got string
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/dogs/{name}/like", func(_ http.ResponseWriter, r *http.Request) {
		got = routeTemplate(r)
	})

	// Act
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/dogs/Rex/like", nil))

	// Assert
	if got != "/api/v1/dogs/{name}/like" {
		t.Errorf("routeTemplate() = %s, want the route template", got)
	}
	if unmatched := routeTemplate(httptest.NewRequest(http.MethodGet, "/api/v1/dogs/Rex", nil)); unmatched != "unmatched" {
		t.Errorf("routeTemplate() without route = %s, want unmatched", unmatched)
	}
	if probe := routeTemplate(httptest.NewRequest(http.MethodGet, "/health", nil)); probe != "/health" {
		t.Errorf("routeTemplate() for probe = %s, want /health", probe)
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name            string
		origins         []string
		origin          string
		method          string
		wantStatus      int
		wantAllowOrigin string
		wantCredentials string
	}{
		{"wildcard", []string{"*"}, "http://app.example", http.MethodGet, http.StatusOK, "http://app.example", ""},
		{"listed origin", []string{"http://app.example"}, "http://app.example", http.MethodGet, http.StatusOK, "http://app.example", "true"},
		{"unlisted origin", []string{"http://app.example"}, "http://evil.example", http.MethodGet, http.StatusOK, "", ""},
		{"no origin", []string{"*"}, "", http.MethodGet, http.StatusOK, "", ""},
		{"preflight", []string{"*"}, "http://app.example", http.MethodOptions, http.StatusNoContent, "http://app.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cfg := DefaultCORSConfig()
			cfg.AllowedOrigins = tt.origins
			handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(tt.method, "/api/v1/dogs", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()

			// Act
			handler.ServeHTTP(rr, req)

			// Assert
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllowOrigin)
			}
			if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCredentials {
				t.Errorf("Allow-Credentials = %q, want %q", got, tt.wantCredentials)
			}
			if !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "X-API-Key") {
				t.Error("Allow-Headers should include X-API-Key")
			}
		})
	}
}

func TestChain_Integration(t *testing.T) {
	// Arrange
	logger := zap.NewNop()
	handler := Chain(
		Recovery(logger),
		RequestID(),
		Logging(logger),
		Metrics(),
		CORS(DefaultCORSConfig()),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFrom(r.Context()) == "" {
			t.Error("request ID should be set before the handler runs")
		}
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dogs", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()

	// Act
	handler.ServeHTTP(rr, req)

	// Assert
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("response should carry the request ID")
	}
	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("response should carry CORS headers")
	}
}
