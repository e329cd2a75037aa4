package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	mng "github.com/loykin/localcompose/internal/manager"
	"github.com/loykin/localcompose/internal/metrics"
)

// Router provides embeddable HTTP handlers to observe and control a running
// orchestrator.
// Endpoints:
//
//	GET  {basePath}/status   query: name=... (one service) or nothing (all)
//	POST {basePath}/stop     query: name=...&force=true (one service) or nothing (shut down)
//	GET  {basePath}/metrics  Prometheus metrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	pool     *mng.Pool
	shutdown func()
	basePath string
}

// NewRouter constructs a Router over pool. shutdown is called when the whole
// orchestrator is asked to stop.
func NewRouter(pool *mng.Pool, shutdown func(), basePath string) *Router {
	return &Router{pool: pool, shutdown: shutdown, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/stop", r.handleStop)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// Server runs a Router on a listener owned by the caller's lifecycle.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// NewServer returns a stopped server for r on addr.
func NewServer(addr string, r *Router, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}
}

// Start serves in the background. Errors after startup are logged.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server", "addr", s.srv.Addr, "error", err)
		}
	}()
}

func (s *Server) Addr() string { return s.srv.Addr }

// Shutdown stops the server, waiting at most one second for open requests.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// ServiceStatus is the wire form of one executor's state.
type ServiceStatus struct {
	Name         string `json:"name"`
	Color        string `json:"color,omitempty"`
	Running      bool   `json:"running"`
	Started      bool   `json:"started"`
	Stopped      bool   `json:"stopped"`
	NeedsRestart bool   `json:"needs_restart"`
	PID          *int   `json:"pid,omitempty"`
	ReturnCode   *int   `json:"return_code,omitempty"`
	Runs         int    `json:"runs"`
	Restarts     int    `json:"restarts"`
}

func statusOf(e *mng.Executor) ServiceStatus {
	st := e.State()
	s := ServiceStatus{
		Name:         e.Name(),
		Color:        e.Spec().Color,
		Running:      st.PID != nil && st.ReturnCode == nil,
		Started:      st.Started,
		Stopped:      st.Stopped,
		NeedsRestart: st.NeedsRestart,
		PID:          st.PID,
		ReturnCode:   st.ReturnCode,
		Runs:         e.Runs(),
	}
	if r := e.Policy().Retry(); r != nil {
		s.Restarts = r.Used()
	}
	return s
}

func (r *Router) handleStatus(c *gin.Context) {
	if name := c.Query("name"); name != "" {
		e, ok := r.pool.Get(name)
		if !ok {
			writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown service: " + name})
			return
		}
		writeJSON(c, http.StatusOK, statusOf(e))
		return
	}
	all := r.pool.All()
	sts := make([]ServiceStatus, 0, len(all))
	for _, e := range all {
		sts = append(sts, statusOf(e))
	}
	writeJSON(c, http.StatusOK, sts)
}

func (r *Router) handleStop(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		if r.shutdown == nil {
			writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "shutdown not supported"})
			return
		}
		r.shutdown()
		writeJSON(c, http.StatusAccepted, okResp{OK: true})
		return
	}
	e, ok := r.pool.Get(name)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown service: " + name})
		return
	}
	e.Stop(c.Query("force") == "true")
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}
