package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/OldStager01/alarm-evaluator/api/handlers"
	"github.com/OldStager01/alarm-evaluator/api/middleware"
	"github.com/OldStager01/alarm-evaluator/api/websocket"
	"github.com/OldStager01/alarm-evaluator/internal/events"
	"github.com/OldStager01/alarm-evaluator/internal/metrics"
	"github.com/OldStager01/alarm-evaluator/pkg/config"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
	"github.com/gin-gonic/gin"
)

// Dependencies are the collaborators behind the read-only API. Any may be nil
// except Alarms; missing pieces disable the routes or checks that need them.
type Dependencies struct {
	DB         handlers.Pinger
	Statistics handlers.StatisticsChecker
	Alarms     handlers.AlarmLister
	History    handlers.HistoryReader
	Metrics    *metrics.Metrics
	EventBus   *events.EventBus
	WebSocket  *config.WebSocketConfig
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.APIConfig
	deps       Dependencies
	wsHub      *websocket.Hub
	wsBridge   *websocket.EventBridge
}

func NewServer(cfg config.APIConfig, mode string, deps Dependencies) *Server {
	if mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.Get()
	}

	s := &Server{
		router: gin.New(),
		config: cfg,
		deps:   deps,
		wsHub:  websocket.NewHub(deps.WebSocket),
	}

	s.setupMiddleware()
	s.setupRoutes()

	go s.wsHub.Run()

	if deps.EventBus != nil {
		s.wsBridge = websocket.NewEventBridge(s.wsHub, deps.EventBus.Subscribe(models.EventTypeAlarmTransition))
		s.wsBridge.Start()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.CORS(middleware.CORSFromConfig(s.config.CORS)))
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestLogger())
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.DB, s.deps.Statistics)
	alarmHandler := handlers.NewAlarmHandler(s.deps.Alarms, s.deps.History, s.config.HistoryLimit)

	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)

	s.router.GET("/alarms", alarmHandler.List)
	s.router.GET("/alarms/:id", alarmHandler.Get)
	s.router.GET("/alarms/:id/history", alarmHandler.History)

	s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))

	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))
}

func (s *Server) Start() error {
	idle := s.config.IdleTimeout
	if idle <= 0 {
		idle = 60 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  idle,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}
	s.wsHub.Stop()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}
