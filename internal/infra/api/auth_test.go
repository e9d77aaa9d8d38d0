//go:build !integration

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAuthManager_Sessions(t *testing.T) {
	a := NewAuthManager("secret", true, time.Hour)
	var seen string
	protected := a.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("cookie from mint authorizes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		if _, err := a.Mint(rec); err != nil {
			t.Fatalf("mint: %v", err)
		}
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || !cookies[0].HttpOnly || !cookies[0].Secure {
			t.Fatalf("unexpected cookie %+v", cookies)
		}

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.AddCookie(cookies[0])
		out := httptest.NewRecorder()
		protected.ServeHTTP(out, req)

		if out.Code != http.StatusNoContent || seen == "" {
			t.Fatalf("want 204 with a session id, got %d %q", out.Code, seen)
		}
	})

	t.Run("expired session is rejected", func(t *testing.T) {
		old := NewAuthManager("secret", false, time.Minute)
		old.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := old.Mint(httptest.NewRecorder())
		if err != nil {
			t.Fatalf("mint: %v", err)
		}

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		out := httptest.NewRecorder()
		protected.ServeHTTP(out, req)

		if out.Code != http.StatusUnauthorized || out.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("want 401 with a challenge, got %d", out.Code)
		}
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Basic abc")
		out := httptest.NewRecorder()
		protected.ServeHTTP(out, req)

		if out.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", out.Code)
		}
	})

	t.Run("logout clears the cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		a.Clear(rec)
		c := rec.Result().Cookies()
		if len(c) != 1 || c[0].MaxAge >= 0 {
			t.Fatalf("expected an expiring cookie, got %+v", c)
		}
	})
}
