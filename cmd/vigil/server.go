package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fedimod/vigil/appeal"
	"github.com/fedimod/vigil/cachestore"
	"github.com/fedimod/vigil/engine"
	"github.com/fedimod/vigil/governance"
	"github.com/fedimod/vigil/moderr"
	"github.com/fedimod/vigil/notify"
	"github.com/fedimod/vigil/platform"
	"github.com/fedimod/vigil/store"
	"github.com/fedimod/vigil/users"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
)

type Server struct {
	logger *slog.Logger
	store  *store.Store
	engine *engine.Engine
	gov    *governance.Service
	appeal *appeal.Service
	config Config
}

type Config struct {
	Logger              *slog.Logger
	GovernanceCommunity int64
	ScanInterval        time.Duration
	GovernanceInterval  time.Duration
	SeenGCInterval      time.Duration
	SeenRetention       time.Duration
}

func NewServer(db *store.Store, client platform.Client, usvc *users.Service, cache cachestore.CacheStore, notifier notify.Notifier, config Config) *Server {
	logger := config.Logger
	return &Server{
		logger: logger,
		store:  db,
		engine: engine.New(db, client, notifier, usvc, logger),
		gov:    governance.NewService(db, client, usvc, cache, notifier, config.GovernanceCommunity, logger),
		appeal: appeal.NewService(db, client, usvc, notifier, logger),
		config: config,
	}
}

// Run starts the worker loops and blocks until the context ends. Each loop
// recovers panics and backs off briefly before the next cycle; loops share
// nothing in-process beyond the store and the notifier.
func (s *Server) Run(ctx context.Context) error {
	go s.runLoop(ctx, "scan", s.config.ScanInterval, func(ctx context.Context) error {
		s.engine.ScanCycle(ctx)
		return nil
	})
	go s.runLoop(ctx, "governance", s.config.GovernanceInterval, func(ctx context.Context) error {
		s.gov.RunCycle(ctx)
		return nil
	})
	go s.runLoop(ctx, "seen-gc", s.config.SeenGCInterval, func(ctx context.Context) error {
		n, err := s.store.GCSeen(s.config.SeenRetention)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("garbage collected seen markers", "rows", n)
		}
		return nil
	})

	<-ctx.Done()
	return nil
}

const errorBackoff = 5 * time.Second

func (s *Server) runLoop(ctx context.Context, name string, interval time.Duration, cycle func(context.Context) error) {
	logger := s.logger.With("loop", name)
	logger.Info("starting worker loop", "interval", interval)
	for {
		sleep := interval
		if err := s.runCycle(ctx, cycle); err != nil {
			logger.Error("cycle failed, backing off", "err", err)
			sleep = errorBackoff
		}
		select {
		case <-ctx.Done():
			logger.Info("worker loop stopping")
			return
		case <-time.After(sleep):
		}
	}
}

func (s *Server) runCycle(ctx context.Context, cycle func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	return cycle(ctx)
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// RunAPI serves the operator-facing inspection API: health, filters, appeals.
func (s *Server) RunAPI(listen string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(s.logger))
	e.Use(middleware.Recover())

	e.GET("/_health", s.handleHealthCheck)
	e.GET("/filters", s.handleListFilters)
	e.GET("/filters/:id", s.handleGetFilter)
	e.POST("/filters", s.handleCreateFilter)
	e.DELETE("/filters/:id", s.handleDeleteFilter)
	e.GET("/appeals", s.handleListAppeals)
	e.GET("/appeals/:id", s.handleGetAppeal)
	e.POST("/appeals/:id/restore", s.handleResolveAppeal(s.appeal.Restore))
	e.POST("/appeals/:id/reject", s.handleRejectAppeal)

	s.logger.Info("starting admin API", "bind", listen)
	return e.Start(listen)
}

type healthStatus struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, healthStatus{Status: "ok"})
}

func (s *Server) handleListFilters(c echo.Context) error {
	filters, err := s.store.ListFilters()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, filters)
}

func (s *Server) handleGetFilter(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filter ID")
	}
	f, err := s.store.GetFilter(uint(id))
	if err != nil {
		return err
	}
	if f == nil {
		return echo.NewHTTPError(http.StatusNotFound, "filter not found")
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Server) handleListAppeals(c echo.Context) error {
	status := store.AppealStatus(c.QueryParam("status"))
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	appeals, err := s.store.ListAppeals(status, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, appeals)
}

type createFilterRequest struct {
	Requester   string `json:"requester"`
	Pattern     string `json:"pattern"`
	Target      string `json:"target"`
	Action      string `json:"action"`
	Scope       string `json:"scope,omitempty"`
	Reason      string `json:"reason"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleCreateFilter(c echo.Context) error {
	var req createFilterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	owner, err := s.requireFilterPrivilege(req.Requester)
	if err != nil {
		return err
	}
	target, err := store.ParseFilterTarget(req.Target)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	action, err := store.ParseActionTier(req.Action)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f := store.Filter{
		Pattern:     req.Pattern,
		Target:      target,
		Action:      action,
		Scope:       req.Scope,
		Reason:      req.Reason,
		Description: req.Description,
		OwnerID:     owner.ID,
	}
	if err := s.store.CreateFilter(&f); err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (s *Server) handleDeleteFilter(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filter ID")
	}
	if _, err := s.requireFilterPrivilege(c.QueryParam("requester")); err != nil {
		return err
	}
	if err := s.store.DeleteFilter(uint(id)); err != nil {
		if moderr.IsDomain(err) {
			return echo.NewHTTPError(http.StatusNotFound, "filter not found")
		}
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) requireFilterPrivilege(actorURL string) (*store.User, error) {
	if actorURL == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "requester actor URL required")
	}
	u, err := s.store.GetUser(actorURL)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsModerator() {
		return nil, echo.NewHTTPError(http.StatusForbidden, "filter management requires moderation privilege")
	}
	return u, nil
}

type resolveRequest struct {
	Resolver string `json:"resolver"`
	Reply    string `json:"reply,omitempty"`
}

type resolveResponse struct {
	Message string `json:"message"`
}

// handleResolveAppeal adapts an appeal transition into an endpoint. The
// resolver actor URL comes from the request body; privilege and validity
// checks happen in the appeal service and surface as 400.
func (s *Server) handleResolveAppeal(resolve func(context.Context, string, uint) (string, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid appeal ID")
		}
		var req resolveRequest
		if err := c.Bind(&req); err != nil || req.Resolver == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "resolver actor URL required")
		}
		msg, err := resolve(c.Request().Context(), req.Resolver, uint(id))
		if err != nil {
			return apiError(err)
		}
		return c.JSON(http.StatusOK, resolveResponse{Message: msg})
	}
}

func (s *Server) handleRejectAppeal(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appeal ID")
	}
	var req resolveRequest
	if err := c.Bind(&req); err != nil || req.Resolver == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "resolver actor URL required")
	}
	msg, err := s.appeal.Reject(c.Request().Context(), req.Resolver, uint(id), req.Reply)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, resolveResponse{Message: msg})
}

// apiError maps the workflow error taxonomy onto HTTP statuses; anything
// unclassified stays a 500.
func apiError(err error) error {
	if ufe, ok := moderr.AsUserFacing(err); ok {
		return echo.NewHTTPError(http.StatusBadRequest, ufe.Msg)
	}
	if moderr.IsDomain(err) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return err
}

func (s *Server) handleGetAppeal(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appeal ID")
	}
	a, err := s.store.GetAppeal(uint(id))
	if err != nil {
		return err
	}
	if a == nil {
		return echo.NewHTTPError(http.StatusNotFound, "appeal not found")
	}
	return c.JSON(http.StatusOK, a)
}
