// Package server exposes the control surface over HTTP and the live event
// surface over WebSocket. It is a thin front end: every operation delegates
// to the run registry.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/missionmesh/logging"
	"github.com/hupe1980/missionmesh/registry"
)

// Options configure optional Server behavior.
type Options struct {
	Logger *logging.MissionLogger
	// AllowOrigins configures CORS. Empty allows all origins.
	AllowOrigins []string
	WriteTimeout time.Duration
}

// Server is the HTTP front end for the run registry.
type Server struct {
	registry *registry.Registry
	logger   *logging.MissionLogger
	engine   *gin.Engine
	upgrader websocket.Upgrader
	opts     Options
}

// New builds the router. Call Run or use Handler to serve it.
func New(reg *registry.Registry, optFns ...func(o *Options)) *Server {
	opts := Options{WriteTimeout: 10 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	s := &Server{
		registry: reg,
		logger:   opts.Logger.WithComponent("server"),
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(opts.AllowOrigins) > 0 {
		corsCfg.AllowOrigins = opts.AllowOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	engine.Use(cors.New(corsCfg))

	api := engine.Group("/api")
	{
		api.POST("/run", s.handleStart)
		api.POST("/run/:run_id/stop", s.handleStop)
		api.POST("/run/:run_id/input/:task_id", s.handleInput)
		api.GET("/runs", s.handleList)
		api.GET("/run/:run_id", s.handleGet)
		api.GET("/health", s.handleHealth)
	}
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws/:run_id", s.handleWebSocket)

	s.engine = engine
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("listening on %s", addr)
	return s.engine.Run(addr)
}

type startRequest struct {
	ConfigPath string `json:"config_path" binding:"required"`
	Engine     string `json:"engine"`
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.registry.Start(c.Request.Context(), req.ConfigPath, req.Engine)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleStop(c *gin.Context) {
	acknowledged := s.registry.Stop(c.Param("run_id"))
	c.JSON(http.StatusOK, gin.H{"acknowledged": acknowledged})
}

func (s *Server) handleInput(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.registry.SubmitInput(c.Param("run_id"), c.Param("task_id"), fields); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.registry.List()})
}

func (s *Server) handleGet(c *gin.Context) {
	run, ok := s.registry.Get(c.Param("run_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleWebSocket streams a run's events: the late-joiner snapshot first,
// then the live tail until the terminal event or client disconnect.
func (s *Server) handleWebSocket(c *gin.Context) {
	runID := c.Param("run_id")
	snapshot, sub, err := s.registry.Subscribe(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade for run %s: %s", runID, err.Error())
		return
	}
	defer conn.Close()

	// Reader goroutine: detects client-side close.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, ev := range snapshot {
		if err := s.writeEvent(conn, ev); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := s.writeEvent(conn, ev); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, ev any) error {
	if s.opts.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	return conn.WriteJSON(ev)
}
