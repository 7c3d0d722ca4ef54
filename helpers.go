package main

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// --- Session helpers ---

// currentUser returns the logged-in username, or "" when there is none.
// An unreadable session counts as logged out.
func (a *App) currentUser(r *http.Request) string {
	session, err := a.sessions.Get(r, sessionName)
	if err != nil || session == nil {
		return ""
	}
	user, _ := session.Values[userKey].(string)
	return user
}

// requireLogin lets the request through only when a user is logged in.
func (a *App) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.currentUser(r) == "" {
			http.Redirect(w, r, "/bloggar/login", http.StatusFound)
			return
		}
		next(w, r)
	}
}

// --- Request helpers ---

// pathID parses the {id} route variable. ok is false when it is not an
// integer, in which case no post can match.
func pathID(r *http.Request) (id int, ok bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	return id, err == nil
}

func formFields(r *http.Request) PostFields {
	return PostFields{
		Title:    r.FormValue("title"),
		Category: r.FormValue("category"),
		Author:   r.FormValue("author"),
		Text:     r.FormValue("text"),
		Date:     r.FormValue("date"),
	}
}

// --- Response helpers ---

func (a *App) renderView(w http.ResponseWriter, r *http.Request, name string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	if _, ok := data["user"]; !ok {
		data["user"] = a.currentUser(r)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := a.views.render(w, name, data); err != nil {
		a.serverError(w, r, err)
	}
}

func (a *App) serverError(w http.ResponseWriter, r *http.Request, err error) {
	a.log.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).WithError(err).Error("request failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// logRequests is router middleware that logs every request once served.
func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		a.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   m.Code,
			"bytes":    m.Written,
			"duration": m.Duration.String(),
		}).Info("request")
	})
}
