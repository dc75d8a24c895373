package auth_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/johnkord/sendie/internal/allowlist"
	"github.com/johnkord/sendie/internal/auth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestMiddlewareAnonymousWithoutHeader(t *testing.T) {
	var got auth.Principal
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got.Authenticated {
		t.Fatalf("expected anonymous principal, got %+v", got)
	}
}

func TestMiddlewareAttachesHeaderClaim(t *testing.T) {
	var got auth.Principal
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.PrincipalFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(auth.HeaderUserID, "user-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !got.Authenticated || got.UserID != "user-1" {
		t.Fatalf("expected authenticated principal for user-1, got %+v", got)
	}
}

func TestKernelPolicies(t *testing.T) {
	allow := allowlist.Load(discardLogger(), t.TempDir(), []string{"admin-1"}, []string{"member-1"})
	k := auth.NewKernel(allow)

	cases := []struct {
		name      string
		p         auth.Principal
		wantUser  bool
		wantAdmin bool
	}{
		{"anonymous", auth.Principal{}, false, false},
		{"member", auth.Principal{UserID: "member-1", Authenticated: true}, true, false},
		{"admin", auth.Principal{UserID: "admin-1", Authenticated: true}, true, true},
		{"stranger", auth.Principal{UserID: "stranger", Authenticated: true}, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := k.IsAllowedUser(tc.p); got != tc.wantUser {
				t.Errorf("IsAllowedUser = %v, want %v", got, tc.wantUser)
			}
			if got := k.IsAdmin(tc.p); got != tc.wantAdmin {
				t.Errorf("IsAdmin = %v, want %v", got, tc.wantAdmin)
			}
		})
	}
}
