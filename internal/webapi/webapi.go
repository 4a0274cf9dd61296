// Package webapi exposes the core's only two public-facing HTTP surfaces
// (§6): the internal diff-render endpoint the renderer authenticates
// against to capture each side of a DiffHtml, and the human-visible
// change-log page for a WebUpdate. Both are go-chi/chi/v5 routed,
// following the teacher's internal/server router setup.
package webapi

// @title moku-wst API
// @version 0.1
// @description Diff-render and change-log HTTP surface for the website
// @description change-tracking pipeline.
// @BasePath /

import (
	"html/template"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/raysh454/moku-wst/internal/authtoken"
	"github.com/raysh454/moku-wst/internal/interfaces"
	"github.com/raysh454/moku-wst/internal/model"
	"github.com/raysh454/moku-wst/internal/render"
)

// Server is the HTTP API surface for the change-tracking core.
type Server struct {
	store    interfaces.Store
	signer   *authtoken.Signer
	logger   interfaces.Logger
	router   chi.Router
	upgrader websocket.Upgrader
}

// New builds a Server wired to store and signer.
func New(store interfaces.Store, signer *authtoken.Signer, logger interfaces.Logger) *Server {
	s := &Server{
		store:  store,
		signer: signer,
		logger: logger,
		router: chi.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

// ServeHTTP makes Server an http.Handler, logging each request before
// dispatching to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.logger != nil {
		s.logger.Info("http_request",
			interfaces.Field{Key: "method", Value: r.Method},
			interfaces.Field{Key: "path", Value: r.URL.Path})
	}
	s.router.ServeHTTP(w, r)
}

// HTTPServer builds an *http.Server bound to addr, ready to ListenAndServe.
// WriteTimeout is left at zero to allow the websocket job-progress stream
// to run unbounded.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
	}
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)

	r.Get("/internal/diff-html/{encID}/{field}/", s.handleDiffHTML)
	r.Get("/tracking/{encID}/change-log/", s.handleChangeLog)
	r.Get("/ws/jobs/{job}", s.handleJobProgress)
	r.Get("/swagger/*", httpSwagger.WrapHandler)
}

// handleDiffHTML serves a side of a DiffHtml row's annotated HTML. Callers
// authenticate with a WST-Auth-Key header carrying a short-lived,
// AES-CBC-encrypted deadline token (§6); the id segment is itself
// encrypted, so the endpoint never exposes raw DiffHtml ids.
//
// @Summary Render one side of a DiffHtml
// @Param encID path string true "Encrypted DiffHtml id"
// @Param field path string true "Opaque field token (old|new side)"
// @Header 200 {string} WST-Auth-Key "Deadline token minted by the renderer"
// @Success 200 {string} string "annotated HTML"
// @Failure 401 {string} string "missing or expired token"
// @Failure 404 {string} string "diff_html not found"
// @Router /internal/diff-html/{encID}/{field}/ [get]
func (s *Server) handleDiffHTML(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("WST-Auth-Key")
	if token == "" {
		http.Error(w, "missing WST-Auth-Key", http.StatusUnauthorized)
		return
	}
	if err := s.signer.VerifyDeadlineToken(token, time.Now()); err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	encID := chi.URLParam(r, "encID")
	id, err := s.signer.DecryptID(encID)
	if err != nil {
		http.Error(w, "malformed id", http.StatusBadRequest)
		return
	}

	d, err := s.store.GetDiffHtml(r.Context(), id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	field := chi.URLParam(r, "field")
	var body string
	switch field {
	case render.FieldOld:
		body = d.OldDiffHTML
	case render.FieldNew:
		body = d.NewDiffHTML
	default:
		http.Error(w, "unknown field token", http.StatusBadRequest)
		return
	}
	if body == "" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

// handleChangeLog renders the human-visible change-log page for a
// WebUpdate: the target plus prior WebUpdates for the same web_source_id
// with pub_date <= target's, excluding the target itself, newest first.
//
// @Summary Change-log page for a WebUpdate
// @Param encID path string true "Encrypted WebUpdate id"
// @Success 200 {string} string "HTML change log"
// @Failure 404 {string} string "web_update not found"
// @Router /tracking/{encID}/change-log/ [get]
func (s *Server) handleChangeLog(w http.ResponseWriter, r *http.Request) {
	encID := chi.URLParam(r, "encID")
	id, err := s.signer.DecryptID(encID)
	if err != nil {
		http.Error(w, "malformed id", http.StatusBadRequest)
		return
	}

	target, err := s.store.GetWebUpdate(r.Context(), id)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	const defaultLimit = 50
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	prior, err := s.store.ChangeLogForWebUpdate(r.Context(), target, limit)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	encIDs := make(map[int64]string, len(prior))
	for _, p := range prior {
		if enc, err := s.signer.EncryptID(p.ID); err == nil {
			encIDs[p.ID] = enc
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := changeLogTemplate.Execute(w, changeLogPage{Target: target, Prior: prior, EncIDs: encIDs}); err != nil && s.logger != nil {
		s.logger.Error("webapi: render change log", interfaces.Field{Key: "error", Value: err.Error()})
	}
}

type changeLogPage struct {
	Target *model.WebUpdate
	Prior  []*model.WebUpdate
	EncIDs map[int64]string
}

var changeLogTemplate = template.Must(template.New("change-log").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Target.Title}}</title></head>
<body>
<article>
  <h1>{{.Target.Title}}</h1>
  <p>{{.Target.Description}}</p>
  <time>{{.Target.PubDate}}</time>
</article>
<section>
  <h2>Prior updates</h2>
  <ul>
  {{range .Prior}}
    <li><a href="/tracking/{{index $.EncIDs .ID}}/change-log/">{{.Title}}</a> <time>{{.PubDate}}</time></li>
  {{end}}
  </ul>
</section>
</body></html>`))

// handleJobProgress streams JobEvents for the `fetch`/`process-snapshots`
// job names over a websocket connection (§6, ambient — strictly
// observational). It relays only events published through Publish inside
// this process; the `serve` mode runs no job itself. This handler only
// upgrades the connection and relays events; it holds no entity state.
//
// @Summary Live job-progress stream
// @Param job path string true "Job name: fetch|process-snapshots"
// @Router /ws/jobs/{job} [get]
func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	if job != "fetch" && job != "process-snapshots" {
		http.Error(w, "unknown job", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("webapi: websocket upgrade failed", interfaces.Field{Key: "error", Value: err.Error()})
		}
		return
	}
	defer conn.Close()

	events, unsubscribe := subscribe(job)
	defer unsubscribe()

	for evt := range events {
		if err := conn.WriteJSON(evt); err != nil {
			return
		}
	}
}

// JobEvent is a single progress update relayed to job-progress
// subscribers.
type JobEvent struct {
	Job     string `json:"job"`
	Message string `json:"message"`
}

var jobBus = newEventBus()

// eventBus fans JobEvents out to per-job subscriber sets. It exists so
// Publish can be called from job code that has no reference to a live
// websocket connection, and so handleJobProgress can go away the moment
// its caller disconnects without leaking a goroutine.
type eventBus struct {
	mu   sync.Mutex
	subs map[string]map[chan JobEvent]struct{}
}

func newEventBus() *eventBus {
	return &eventBus{subs: map[string]map[chan JobEvent]struct{}{}}
}

func (b *eventBus) publish(evt JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[evt.Job] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (b *eventBus) subscribe(job string) (<-chan JobEvent, func()) {
	ch := make(chan JobEvent, 16)
	b.mu.Lock()
	if b.subs[job] == nil {
		b.subs[job] = map[chan JobEvent]struct{}{}
	}
	b.subs[job][ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs[job], ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}

// Publish broadcasts evt to every subscriber of evt.Job in this process.
// The `fetch` and `process-snapshots` commands call it once when a run
// completes; it is a no-op if nobody is listening.
func Publish(evt JobEvent) {
	jobBus.publish(evt)
}

func subscribe(job string) (<-chan JobEvent, func()) {
	return jobBus.subscribe(job)
}
