package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// App holds everything the handlers share.
type App struct {
	posts     PostStore
	users     *IdentityStore
	sessions  sessions.Store
	views     *views
	log       *logrus.Logger
	staticDir string

	memSessions *memoryBackend
	closers     []func() error
}

func newPostStore(cfg Config) (PostStore, error) {
	if cfg.PostStore == "sqlite" {
		return newSQLiteStore(cfg.SQLiteDSN, cfg.IDPolicy)
	}
	return newMemoryStore(cfg.IDPolicy), nil
}

func newApp(ctx context.Context, cfg Config, log *logrus.Logger) (*App, error) {
	a := &App{log: log, staticDir: cfg.StaticDir}

	var err error
	if a.views, err = loadViews(cfg.TemplateDir); err != nil {
		return nil, err
	}
	if a.users, err = newIdentityStore(); err != nil {
		return nil, err
	}

	secret := []byte(cfg.SessionSecret)
	switch cfg.SessionBackend {
	case "cookie":
		a.sessions = newCookieStore(cfg.SessionMaxAge, secret)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, errors.Wrap(err, "connecting to redis")
		}
		a.closers = append(a.closers, client.Close)
		a.sessions = newServerStore(newRedisBackend(client), cfg.SessionMaxAge, secret)
	default:
		a.memSessions = newMemoryBackend()
		a.sessions = newServerStore(a.memSessions, cfg.SessionMaxAge, secret)
	}

	if a.posts, err = newPostStore(cfg); err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.posts.Close)

	return a, nil
}

// Close releases the post store and any session backend connection.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (a *App) setupRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.logRequests)

	fs := http.FileServer(http.Dir(a.staticDir))
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", fs))

	r.HandleFunc("/", a.rootHandler).Methods("GET")
	r.HandleFunc("/bloggar", a.indexHandler).Methods("GET")
	r.HandleFunc("/bloggar/skapa-blogg", a.requireLogin(a.createFormHandler)).Methods("GET")
	r.HandleFunc("/bloggar/skapa-blogg", a.requireLogin(a.createHandler)).Methods("POST")
	r.HandleFunc("/bloggar/blogg/{id}", a.postHandler).Methods("GET")
	r.HandleFunc("/bloggar/blogg/{id}/redigera", a.requireLogin(a.editFormHandler)).Methods("GET")
	r.HandleFunc("/bloggar/blogg/{id}/redigera", a.requireLogin(a.editHandler)).Methods("POST")
	r.HandleFunc("/bloggar/blogg/{id}/radera", a.requireLogin(a.deleteHandler)).Methods("GET", "POST")
	r.HandleFunc("/bloggar/login", a.loginFormHandler).Methods("GET")
	r.HandleFunc("/bloggar/login", a.loginHandler).Methods("POST")
	r.HandleFunc("/bloggar/logout", a.logoutHandler).Methods("GET")

	return r
}

// sweepSessions drops expired in-memory sessions until ctx is done.
func (a *App) sweepSessions(ctx context.Context, every time.Duration) {
	if a.memSessions == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.memSessions.sweep(); n > 0 {
				a.log.WithField("count", n).Debug("expired sessions removed")
			}
		}
	}
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := loadConfig()
	if err != nil {
		log.WithError(err).Fatal("loading config")
	}
	log.SetLevel(cfg.LogLevel)
	if cfg.SessionSecret == defaultSessionSecret {
		log.Warn("SESSION_SECRET not set, using default secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("initializing app")
	}
	defer app.Close()

	go app.sweepSessions(ctx, time.Hour)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: app.setupRouter(),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	log.WithFields(logrus.Fields{
		"port":     cfg.Port,
		"sessions": cfg.SessionBackend,
		"posts":    cfg.PostStore,
		"ids":      cfg.IDPolicy,
	}).Info("Servern lyssnar")

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	log.Info("server stopped")
}
