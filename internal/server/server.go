// Package server exposes sessions, runs and event streams over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ShayCichocki/pairline/internal/events"
	"github.com/ShayCichocki/pairline/internal/llm"
	"github.com/ShayCichocki/pairline/internal/logging"
	"github.com/ShayCichocki/pairline/internal/pipeline"
	"github.com/ShayCichocki/pairline/internal/session"
	"github.com/ShayCichocki/pairline/internal/worker"
)

// DefaultTasks is the task count used when a request omits num_tasks.
const DefaultTasks = 10

// Scraper returns the readable text of a URL.
type Scraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// Config holds transport settings.
type Config struct {
	// APIKey enables bearer auth on /api when non-empty.
	APIKey string
	// KeepAlive is the idle period of the event streams.
	KeepAlive time.Duration
	// DefaultTasks applies when generate_tasks or parse_prd omit num_tasks.
	DefaultTasks int
}

// Server holds the handlers' collaborators.
type Server struct {
	store    *session.Store
	runner   *worker.Runner
	pipeline *pipeline.Pipeline
	scraper  Scraper
	usage    func() llm.Usage
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// streams is cancelled by CloseStreams to end open event streams.
	streams     context.Context
	stopStreams context.CancelFunc
}

// Deps are the collaborators a Server needs. Usage may be nil.
type Deps struct {
	Store    *session.Store
	Runner   *worker.Runner
	Pipeline *pipeline.Pipeline
	Scraper  Scraper
	Usage    func() llm.Usage
}

// New creates a Server.
func New(deps Deps, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = events.DefaultKeepAlive
	}
	if cfg.DefaultTasks < 1 {
		cfg.DefaultTasks = DefaultTasks
	}
	streams, stopStreams := context.WithCancel(context.Background())
	return &Server{
		streams:     streams,
		stopStreams: stopStreams,
		store:       deps.Store,
		runner:      deps.Runner,
		pipeline:    deps.Pipeline,
		scraper:     deps.Scraper,
		usage:       deps.Usage,
		cfg:         cfg,
		logger:      logging.ComponentLogger(logger, "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router creates the chi router with all routes and middleware.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(s.logger))
	r.Use(Recovery(s.logger))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(BearerAuth(s.cfg.APIKey))

		r.Post("/init", s.initSession)
		r.Get("/get_files", s.getFiles)
		r.Post("/add_files", s.addFiles)
		r.Post("/remove_files", s.removeFiles)
		r.Post("/add_web_page", s.addWebPage)
		r.Post("/undo_commit", s.undoCommit)
		r.Post("/clear_history", s.clearHistory)

		r.Post("/send_message", s.sendMessage)
		r.Post("/generate_prd", s.generatePRD)
		r.Post("/generate_tasks", s.generateTasks)
		r.Post("/parse_prd", s.parsePRD)
		r.Post("/execute_tasks", s.executeTasks)
		r.Get("/task_status", s.taskStatus)
		r.Get("/usage", s.getUsage)

		r.Get("/events", s.streamSSE)
		r.Get("/ws", s.streamWebSocket)
	})

	return r
}

// CloseStreams ends every open event stream. Buffered events stay on their
// session channels. Register it with http.Server.RegisterOnShutdown, since
// Shutdown does not wait for hijacked or long-lived connections to finish.
func (s *Server) CloseStreams() {
	s.stopStreams()
}

// streamContext is cancelled when the request ends or CloseStreams is called.
func (s *Server) streamContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(s.streams, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.store.Len(),
	})
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	var usage llm.Usage
	if s.usage != nil {
		usage = s.usage()
	}
	writeSuccess(w, map[string]any{"usage": usage})
}
