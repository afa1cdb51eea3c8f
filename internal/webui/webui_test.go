package webui

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"smtpblackhole/internal/store"
	"smtpblackhole/internal/userstore"
	"smtpblackhole/internal/usersession"
)

func newTestUI(t *testing.T) (*UI, http.Handler) {
	t.Helper()
	users, err := userstore.New("admin", "changeme")
	if err != nil {
		t.Fatalf("userstore.New: %v", err)
	}
	u := &UI{
		Store:      store.NewMemStore(),
		Users:      users,
		Sessions:   usersession.New("test-secret"),
		CookieName: "smtpblackhole_session",
	}
	return u, u.Handler()
}

func TestLoginPageRendersWithoutSession(t *testing.T) {
	_, h := newTestUI(t)
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<form") {
		t.Errorf("expected login form in body")
	}
}

func TestRootRedirectsToLoginWhenAnonymous(t *testing.T) {
	_, h := newTestUI(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("got %d %q, want 303 /login", rec.Code, rec.Header().Get("Location"))
	}
}

func TestEmailsRequiresAuth(t *testing.T) {
	_, h := newTestUI(t)
	req := httptest.NewRequest(http.MethodGet, "/emails", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("got %d, want 303", rec.Code)
	}
}

func TestLoginSubmitWrongCredentialsRerenders401(t *testing.T) {
	_, h := newTestUI(t)
	form := url.Values{"username": {"admin"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rec.Code)
	}
}

func loginAndGetCookie(t *testing.T, h http.Handler) *http.Cookie {
	t.Helper()
	form := url.Values{"username": {"admin"}, "password": {"changeme"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login failed: got %d, body %q", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("expected a session cookie to be set")
	}
	return cookies[0]
}

func TestLoginSuccessThenBrowseEmails(t *testing.T) {
	u, h := newTestUI(t)
	id, err := u.Store.Create(store.Email{
		Sender:     "a@example.com",
		Recipients: []string{"b@example.com"},
		Subject:    "hi there",
		Body:       "body text",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cookie := loginAndGetCookie(t, h)

	req := httptest.NewRequest(http.MethodGet, "/emails", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hi there") {
		t.Errorf("expected subject in email list body")
	}

	req = httptest.NewRequest(http.MethodGet, "/emails/"+id, nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail: got %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "body text") {
		t.Errorf("expected body text in detail page")
	}
}

func TestMarkReadAndWipe(t *testing.T) {
	u, h := newTestUI(t)
	id, _ := u.Store.Create(store.Email{Sender: "a@example.com"})
	cookie := loginAndGetCookie(t, h)

	req := httptest.NewRequest(http.MethodPost, "/emails/"+id+"/mark-read", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("mark-read: got %d, want 303", rec.Code)
	}
	e, _ := u.Store.Get(id)
	if e.Status != store.StatusRead {
		t.Errorf("status = %q, want %q", e.Status, store.StatusRead)
	}

	req = httptest.NewRequest(http.MethodPost, "/emails/wipe", nil)
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("wipe: got %d, want 303", rec.Code)
	}
	if u.Store.Count() != 0 {
		t.Errorf("expected store to be empty after wipe")
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	_, h := newTestUI(t)
	cookie := loginAndGetCookie(t, h)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	req2 := httptest.NewRequest(http.MethodGet, "/emails", nil)
	req2.AddCookie(cookie)
	for _, c := range rec.Result().Cookies() {
		req2.AddCookie(c)
	}
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusSeeOther {
		t.Fatalf("expected logged-out request to redirect, got %d", rec2.Code)
	}
}
