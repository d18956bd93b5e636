package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"roadwatch-event-engine/internal/api/handlers"
	"roadwatch-event-engine/internal/config"
)

type Server struct {
	config *config.Config
	router *gin.Engine
	server *http.Server

	healthHandler *handlers.HealthHandler
	eventHandler  *handlers.EventHandler
}

func NewServer(cfg *config.Config, processor handlers.Processor) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	return &Server{
		config:        cfg,
		router:        router,
		healthHandler: handlers.NewHealthHandler(cfg.Version),
		eventHandler:  handlers.NewEventHandler(processor),
	}
}

func (s *Server) Setup() error {
	s.setupMiddleware()

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	return nil
}

func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("Starting event engine API")
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	log.Info().Msg("Stopping event engine API")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) GetServer() *http.Server {
	return s.server
}
