// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package statusserver exposes a read-only HTTP view of one deployment
// target: its releases, its run history and facteur metrics.
package statusserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/facteur/cmd/facteur/internal/history"
	"github.com/AleutianAI/facteur/cmd/facteur/internal/releasetree"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// HistorySource lists recorded runs.
type HistorySource interface {
	List(ctx context.Context, filter history.Filter) ([]history.Record, error)
}

// Config configures a Server.
type Config struct {
	// Addr is the listen address, host:port.
	Addr string

	// Tree is the target being observed. Required.
	Tree *releasetree.Tree

	// History is optional. Without it /history answers 503.
	History HistorySource

	// Metrics serves /metrics when set.
	Metrics http.Handler

	Logger *slog.Logger

	// ServiceName labels request spans. Default: "facteur"
	ServiceName string

	ShutdownTimeout time.Duration
}

// Server is the status HTTP server.
type Server struct {
	config Config
	router *gin.Engine
}

// ReleaseView is one entry of GET /releases.
type ReleaseView struct {
	ID      string `json:"id"`
	Current bool   `json:"current"`
}

// ReleasesResponse is the body of GET /releases.
type ReleasesResponse struct {
	Basedir  string        `json:"basedir"`
	Current  string        `json:"current,omitempty"`
	Releases []ReleaseView `json:"releases"`
}

// New builds the router.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ServiceName == "" {
		config.ServiceName = "facteur"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	s := &Server{config: config, router: gin.New()}
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(config.ServiceName))
	s.router.Use(s.requestLogger())

	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/releases", s.handleReleases)
	s.router.GET("/history", s.handleHistory)
	if config.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(config.Metrics))
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
//
// # Outputs
//
//   - error: nil after a graceful shutdown, the listen error otherwise.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.config.Logger.Info("Status server listening", "addr", s.config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		s.config.Logger.Info("Status server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.config.Logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReleases(c *gin.Context) {
	ids, err := s.config.Tree.ListReleases()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	current, err := s.config.Tree.Current()
	if err != nil {
		current = ""
	}

	resp := ReleasesResponse{
		Basedir:  s.config.Tree.Basedir(),
		Current:  current,
		Releases: make([]ReleaseView, 0, len(ids)),
	}
	for _, id := range ids {
		resp.Releases = append(resp.Releases, ReleaseView{ID: id, Current: id == current})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.config.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is disabled"})
		return
	}

	filter := history.Filter{Basedir: s.config.Tree.Basedir(), Limit: 50}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}

	records, err := s.config.History.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": records})
}
