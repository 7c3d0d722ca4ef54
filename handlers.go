package main

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const loginFailedMessage = "Ogiltigt användarnamn eller lösenord"

// GET / — send visitors to the blog listing
func (a *App) rootHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/bloggar", http.StatusFound)
}

// GET /bloggar — all posts, or those matching ?searchTerm=
func (a *App) indexHandler(w http.ResponseWriter, r *http.Request) {
	searchTerm := r.URL.Query().Get("searchTerm")

	posts, err := a.posts.List(searchTerm)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	categories, err := a.posts.Categories()
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	a.renderView(w, r, "index", map[string]interface{}{
		"blogPosts":        postViews(posts),
		"uniqueCategories": categories,
		"categoryLinks":    categoryLinks(categories),
		"searchTerm":       searchTerm,
	})
}

// GET /bloggar/skapa-blogg
func (a *App) createFormHandler(w http.ResponseWriter, r *http.Request) {
	a.renderView(w, r, "skapa", nil)
}

// POST /bloggar/skapa-blogg
func (a *App) createHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	post, err := a.posts.Create(formFields(r))
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	a.log.WithFields(logrus.Fields{"id": post.ID, "user": a.currentUser(r)}).Info("post created")

	http.Redirect(w, r, "/bloggar", http.StatusFound)
}

// lookupPost returns the post named by the {id} route variable, or nil.
func (a *App) lookupPost(r *http.Request) (*Post, error) {
	id, ok := pathID(r)
	if !ok {
		return nil, nil
	}
	return a.posts.Get(id)
}

// GET /bloggar/blogg/{id} — the post may be missing; the view handles that
func (a *App) postHandler(w http.ResponseWriter, r *http.Request) {
	post, err := a.lookupPost(r)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	a.renderView(w, r, "blogg", map[string]interface{}{
		"blogPost": postView(post),
	})
}

// GET /bloggar/blogg/{id}/redigera
func (a *App) editFormHandler(w http.ResponseWriter, r *http.Request) {
	post, err := a.lookupPost(r)
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	a.renderView(w, r, "edit", map[string]interface{}{
		"postToEdit": postView(post),
	})
}

// POST /bloggar/blogg/{id}/redigera
func (a *App) editHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	err := a.posts.Update(id, formFields(r))
	if errors.Is(err, ErrPostNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		a.serverError(w, r, err)
		return
	}
	a.log.WithFields(logrus.Fields{"id": id, "user": a.currentUser(r)}).Info("post updated")

	http.Redirect(w, r, "/bloggar", http.StatusFound)
}

// GET + POST /bloggar/blogg/{id}/radera
func (a *App) deleteHandler(w http.ResponseWriter, r *http.Request) {
	if id, ok := pathID(r); ok {
		n, err := a.posts.Delete(id)
		if err != nil {
			a.serverError(w, r, err)
			return
		}
		if n > 0 {
			a.log.WithFields(logrus.Fields{"id": id, "user": a.currentUser(r)}).Info("post deleted")
		}
	}
	http.Redirect(w, r, "/bloggar", http.StatusFound)
}

// GET /bloggar/login
func (a *App) loginFormHandler(w http.ResponseWriter, r *http.Request) {
	a.renderView(w, r, "login", nil)
}

// POST /bloggar/login
func (a *App) loginHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	username := r.FormValue("username")
	user := a.users.Authenticate(username, r.FormValue("password"))
	if user == nil {
		a.log.WithField("username", username).Info("login failed")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(loginFailedMessage))
		return
	}

	// A stale or forged cookie still yields a usable fresh session.
	session, _ := a.sessions.Get(r, sessionName)
	session.Values[userKey] = user.Username
	if err := session.Save(r, w); err != nil {
		a.serverError(w, r, err)
		return
	}
	a.log.WithField("username", user.Username).Info("logged in")

	http.Redirect(w, r, "/bloggar", http.StatusFound)
}

// GET /bloggar/logout
func (a *App) logoutHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := a.sessions.Get(r, sessionName)
	if session != nil {
		user, _ := session.Values[userKey].(string)
		delete(session.Values, userKey)
		session.Options.MaxAge = -1
		if err := session.Save(r, w); err != nil {
			a.log.WithError(err).Error("destroying session")
		} else if user != "" {
			a.log.WithField("username", user).Info("logged out")
		}
	}
	http.Redirect(w, r, "/bloggar", http.StatusFound)
}
