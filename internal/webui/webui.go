// Package webui implements the companion read-only-ish HTTP UI: a single
// admin account logs in to browse, inspect, mark read, and wipe the mail
// the SMTP front-end has accepted. It never composes or sends mail.
package webui

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"blitiri.com.ar/go/log"

	"smtpblackhole/internal/store"
	"smtpblackhole/internal/userstore"
	"smtpblackhole/internal/usersession"
)

//go:embed templates/*.html
var templatesFS embed.FS

var tmpl = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// UI serves the admin web interface.
type UI struct {
	Store      store.EmailStore
	Users      *userstore.Store
	Sessions   *usersession.Manager
	CookieName string
}

// Handler returns the UI's http.Handler, routing all of its endpoints.
func (u *UI) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", u.handleRoot)
	mux.HandleFunc("/login", u.handleLogin)
	mux.HandleFunc("/logout", u.handleLogout)
	mux.HandleFunc("/emails", u.handleEmailList)
	mux.HandleFunc("/emails/", u.handleEmailSubroutes)
	return mux
}

func (u *UI) currentUser(r *http.Request) (string, bool) {
	c, err := r.Cookie(u.CookieName)
	if err != nil {
		return "", false
	}
	return u.Sessions.Verify(c.Value, time.Now())
}

func (u *UI) requireAuth(w http.ResponseWriter, r *http.Request) (username string, ok bool) {
	username, ok = u.currentUser(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
	return username, ok
}

func (u *UI) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if _, ok := u.currentUser(r); !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/emails", http.StatusSeeOther)
}

func (u *UI) handleLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := u.currentUser(r); ok {
		http.Redirect(w, r, "/emails", http.StatusSeeOther)
		return
	}

	switch r.Method {
	case http.MethodGet:
		u.render(w, "login.html", map[string]any{"Error": ""})

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		username := r.FormValue("username")
		password := r.FormValue("password")

		if !u.Users.Verify(username, password) {
			w.WriteHeader(http.StatusUnauthorized)
			u.render(w, "login.html", map[string]any{
				"Error": "Invalid username or password",
			})
			return
		}

		token := u.Sessions.Issue(username, time.Now())
		http.SetCookie(w, &http.Cookie{
			Name:     u.CookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   int(usersession.MaxAge.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, "/emails", http.StatusSeeOther)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (u *UI) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     u.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (u *UI) handleEmailList(w http.ResponseWriter, r *http.Request) {
	username, ok := u.requireAuth(w, r)
	if !ok {
		return
	}

	emails := u.Store.List()
	u.render(w, "emails.html", map[string]any{
		"Emails":     emails,
		"EmailCount": len(emails),
		"Username":   username,
	})
}

// handleEmailSubroutes dispatches /emails/{id} and /emails/{id}/mark-read,
// and /emails/wipe, all of which share the "/emails/" prefix.
func (u *UI) handleEmailSubroutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path[len("/emails/"):]
	if path == "" {
		http.NotFound(w, r)
		return
	}
	if path == "wipe" {
		u.handleWipe(w, r)
		return
	}

	const markReadSuffix = "/mark-read"
	if len(path) > len(markReadSuffix) && path[len(path)-len(markReadSuffix):] == markReadSuffix {
		id := path[:len(path)-len(markReadSuffix)]
		u.handleMarkRead(w, r, id)
		return
	}

	u.handleEmailDetail(w, r, path)
}

func (u *UI) handleEmailDetail(w http.ResponseWriter, r *http.Request, id string) {
	username, ok := u.requireAuth(w, r)
	if !ok {
		return
	}

	e, found := u.Store.Get(id)
	if !found {
		http.NotFound(w, r)
		return
	}

	u.render(w, "email_detail.html", map[string]any{
		"Email":    e,
		"Username": username,
	})
}

func (u *UI) handleMarkRead(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := u.requireAuth(w, r); !ok {
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := u.Store.MarkRead(id); err != nil {
		log.Errorf("webui: mark-read %q: %v", id, err)
	}
	http.Redirect(w, r, "/emails/"+id, http.StatusSeeOther)
}

func (u *UI) handleWipe(w http.ResponseWriter, r *http.Request) {
	if _, ok := u.requireAuth(w, r); !ok {
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := u.Store.DeleteAll(); err != nil {
		log.Errorf("webui: wipe: %v", err)
	}
	http.Redirect(w, r, "/emails", http.StatusSeeOther)
}

func (u *UI) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Errorf("webui: rendering %s: %v", name, err)
	}
}
