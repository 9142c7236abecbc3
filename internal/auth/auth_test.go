package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/doggos/internal/auth"
)

func generateBcryptHash(t *testing.T, password string) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}

	return string(hash)
}

func TestSubjectFrom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"empty context", context.Background(), ""},
		{"nil info", auth.WithAuthInfo(context.Background(), nil), ""},
		{
			"authenticated",
			auth.WithAuthInfo(context.Background(), &auth.AuthInfo{Method: auth.AuthMethodAPIKey, Subject: "jan"}),
			"jan",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			got := auth.SubjectFrom(tt.ctx)

			// Assert
			if got != tt.want {
				t.Errorf("SubjectFrom() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	// Arrange
	info := &auth.AuthInfo{Method: auth.AuthMethodBasic, Subject: "jan"}
	ctx := auth.WithAuthInfo(context.Background(), info)

	// Act
	got, ok := auth.FromContext(ctx)

	// Assert
	if !ok {
		t.Fatal("FromContext() ok = false, want true")
	}
	if got != info {
		t.Errorf("FromContext() = %+v, want %+v", got, info)
	}
	if _, ok := auth.FromContext(context.Background()); ok {
		t.Error("FromContext() on empty context ok = true, want false")
	}
}

func TestNewAPIKeyAuthenticator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  string
		wantErr bool
	}{
		{"single key", "secret-1:jan", false},
		{"multiple keys", "k1:jan, k2:ola ,", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"no colon", "keyonly", true},
		{"empty key", ":jan", true},
		{"empty subject", "k1:", true},
		{"only separators", ",,", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			a, err := auth.NewAPIKeyAuthenticator(tt.config)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("NewAPIKeyAuthenticator() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewAPIKeyAuthenticator() error = %v", err)
			}
			if a.Method() != auth.AuthMethodAPIKey {
				t.Errorf("Method() = %s, want %s", a.Method(), auth.AuthMethodAPIKey)
			}
		})
	}
}

func TestAPIKeyAuthenticator_Authenticate(t *testing.T) {
	t.Parallel()

	a, err := auth.NewAPIKeyAuthenticator("k1:jan,k2:ola")
	if err != nil {
		t.Fatalf("NewAPIKeyAuthenticator() error = %v", err)
	}

	tests := []struct {
		name        string
		key         string
		wantSubject string
		wantErr     error
	}{
		{"first key", "k1", "jan", nil},
		{"second key", "k2", "ola", nil},
		{"missing header", "", "", auth.ErrUnauthenticated},
		{"wrong key", "k3", "", auth.ErrInvalidAPIKey},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			req := httptest.NewRequest(http.MethodGet, "/api/v1/dogs", nil)
			if tt.key != "" {
				req.Header.Set(auth.APIKeyHeader, tt.key)
			}

			// Act
			info, err := a.Authenticate(req)

			// Assert
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if info.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", info.Subject, tt.wantSubject)
			}
			if info.Method != auth.AuthMethodAPIKey {
				t.Errorf("Method = %s, want %s", info.Method, auth.AuthMethodAPIKey)
			}
		})
	}
}

func TestBasicAuthenticator_Authenticate(t *testing.T) {
	t.Parallel()

	hash := generateBcryptHash(t, "woof")
	a, err := auth.NewBasicAuthenticator("jan:" + hash)
	if err != nil {
		t.Fatalf("NewBasicAuthenticator() error = %v", err)
	}

	tests := []struct {
		name     string
		user     string
		password string
		noAuth   bool
		wantErr  error
	}{
		{name: "valid credentials", user: "jan", password: "woof"},
		{name: "wrong password", user: "jan", password: "meow", wantErr: auth.ErrInvalidCredentials},
		{name: "unknown user", user: "ola", password: "woof", wantErr: auth.ErrInvalidCredentials},
		{name: "no credentials", noAuth: true, wantErr: auth.ErrUnauthenticated},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			req := httptest.NewRequest(http.MethodGet, "/api/v1/dogs", nil)
			if !tt.noAuth {
				req.SetBasicAuth(tt.user, tt.password)
			}

			// Act
			info, err := a.Authenticate(req)

			// Assert
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if info.Subject != tt.user {
				t.Errorf("Subject = %q, want %q", info.Subject, tt.user)
			}
		})
	}
}

func TestNewBasicAuthenticator_Errors(t *testing.T) {
	t.Parallel()

	for _, config := range []string{"", "nohash", "user:", ":hash"} {
		if _, err := auth.NewBasicAuthenticator(config); err == nil {
			t.Errorf("NewBasicAuthenticator(%q) error = nil, want error", config)
		}
	}
}

func TestMultiAuthenticator_Authenticate(t *testing.T) {
	t.Parallel()

	hash := generateBcryptHash(t, "woof")
	basic, err := auth.NewBasicAuthenticator("jan:" + hash)
	if err != nil {
		t.Fatalf("NewBasicAuthenticator() error = %v", err)
	}
	apiKey, err := auth.NewAPIKeyAuthenticator("k1:ola")
	if err != nil {
		t.Fatalf("NewAPIKeyAuthenticator() error = %v", err)
	}
	multi := auth.NewMultiAuthenticator(basic, apiKey)

	tests := []struct {
		name        string
		setup       func(r *http.Request)
		wantSubject string
		wantErr     error
	}{
		{
			name:        "basic wins",
			setup:       func(r *http.Request) { r.SetBasicAuth("jan", "woof") },
			wantSubject: "jan",
		},
		{
			name:        "falls through to api key",
			setup:       func(r *http.Request) { r.Header.Set(auth.APIKeyHeader, "k1") },
			wantSubject: "ola",
		},
		{
			name: "invalid basic fails immediately",
			setup: func(r *http.Request) {
				r.SetBasicAuth("jan", "wrong")
				r.Header.Set(auth.APIKeyHeader, "k1")
			},
			wantErr: auth.ErrInvalidCredentials,
		},
		{
			name:    "no credentials",
			setup:   func(_ *http.Request) {},
			wantErr: auth.ErrUnauthenticated,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			req := httptest.NewRequest(http.MethodGet, "/api/v1/dogs", nil)
			tt.setup(req)

			// Act
			info, err := multi.Authenticate(req)

			// Assert
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if info.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", info.Subject, tt.wantSubject)
			}
		})
	}

	if multi.Method() != auth.AuthMethodMulti {
		t.Errorf("Method() = %s, want %s", multi.Method(), auth.AuthMethodMulti)
	}
	if _, err := auth.NewMultiAuthenticator().Authenticate(httptest.NewRequest(http.MethodGet, "/", nil)); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("empty MultiAuthenticator error = %v, want %v", err, auth.ErrUnauthenticated)
	}
}
