package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"opsconsole/internal/api"
	"opsconsole/internal/clock"
	"opsconsole/internal/config"
	"opsconsole/internal/domain"
	"opsconsole/internal/feed"
	"opsconsole/internal/ingest"
	"opsconsole/internal/logging"
	"opsconsole/internal/notify"
	"opsconsole/internal/upstream"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config source and shared runtime components.
// Returns: runnable console service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	clock     clock.Clock
	client    *upstream.Client
	manager   *Manager
	escalator *notify.Escalator
	hub       *api.Hub
	httpSrv   *http.Server
	natsSub   interface{ Close() error }
	kafkaSub  interface{ Close() error }
	streamSub interface{ Close() error }
	readyFlag atomic.Bool
	caseKick  chan struct{}
	escCtx    context.Context
	escCancel context.CancelFunc
}

// NewService builds the service instance from a config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger = logger.With("service", cfg.Service.Name)
	if clk == nil {
		clk = clock.RealClock{}
	}

	client := upstream.NewClient(cfg.Upstream, logger)
	manager := NewManager(logger, feed.NewStore(cfg.Feed.Limit), client, clk)

	escCtx, escCancel := context.WithCancel(context.Background())
	service := &Service{
		cfg:       cfg,
		logger:    logger,
		closeLog:  closeLog,
		clock:     clk,
		client:    client,
		manager:   manager,
		caseKick:  make(chan struct{}, 1),
		escCtx:    escCtx,
		escCancel: escCancel,
	}

	if cfg.Notify.Telegram.Enabled {
		escalator, err := notify.NewEscalator(cfg.Notify, clk, logger)
		if err != nil {
			service.cleanupInitResources()
			return nil, err
		}
		service.escalator = escalator
	}

	manager.SetListeners(Listeners{
		FeedChanged:  service.onFeedChanged,
		CasesChanged: service.onCasesChanged,
		RefetchCases: service.kickCaseRefetch,
		AlertPushed:  service.onAlertPushed,
	})

	if err := service.buildHTTPServer(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildIngestSubscribers(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}

	return service, nil
}

// Run starts the service lifecycle and blocks until shutdown.
// Params: root context for the service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	shutdownCtx, shutdownCancel := context.WithCancel(ctx)
	defer shutdownCancel()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("console api starting", "listen", s.cfg.API.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.pollLoop(shutdownCtx, "alerts", time.Duration(s.cfg.Upstream.AlertsPollSec)*time.Second, s.refreshAlerts)
	go s.pollLoop(shutdownCtx, "unread stats", time.Duration(s.cfg.Upstream.StatsPollSec)*time.Second, s.refreshStats)
	go s.casesLoop(shutdownCtx, time.Duration(s.cfg.Upstream.CasesPollSec)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// Refresh forces one alerts snapshot and stats refetch.
// Params: request context bounding both fetches.
// Returns: first fetch error; applied results reach listeners before return.
func (s *Service) Refresh(ctx context.Context) error {
	if err := s.refreshAlerts(ctx); err != nil {
		return err
	}
	return s.refreshStats(ctx)
}

// refreshAlerts loads one alerts page and applies it to the feed.
// Params: fetch context.
// Returns: fetch error; readiness flips after the first successful load.
func (s *Service) refreshAlerts(ctx context.Context) error {
	page, err := s.client.FetchAlerts(ctx, s.cfg.Feed.Limit, 0)
	if err != nil {
		return err
	}
	s.manager.ApplyAlertSnapshot(page.Items, page.UnreadCount)
	if s.readyFlag.CompareAndSwap(false, true) {
		s.logger.Info("first alert snapshot loaded, console ready")
	}
	return nil
}

func (s *Service) refreshStats(ctx context.Context) error {
	stats, err := s.client.FetchUnreadStats(ctx)
	if err != nil {
		return err
	}
	s.manager.ApplyUnreadStats(stats)
	return nil
}

func (s *Service) refreshCases(ctx context.Context) error {
	cases, err := s.client.FetchCases(ctx, upstream.CaseQuery{
		Status: s.cfg.Upstream.CasesStatus,
		Limit:  s.cfg.Upstream.CasesLimit,
	})
	if err != nil {
		return err
	}
	s.manager.ApplyCases(cases)
	return nil
}

// pollLoop runs one fetch immediately and then on every tick.
// Params: loop context, log label, interval, and fetch function.
// Returns: nothing; fetch errors are logged, last-known-good state stays.
func (s *Service) pollLoop(ctx context.Context, label string, interval time.Duration, fetch func(context.Context) error) {
	s.runFetch(ctx, label, fetch)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runFetch(ctx, label, fetch)
		}
	}
}

// casesLoop refetches cases on the timer and on push-event kicks.
// Params: loop context and poll interval.
// Returns: nothing; kicks collapse into at most one pending refetch.
func (s *Service) casesLoop(ctx context.Context, interval time.Duration) {
	s.runFetch(ctx, "cases", s.refreshCases)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runFetch(ctx, "cases", s.refreshCases)
		case <-s.caseKick:
			s.runFetch(ctx, "cases", s.refreshCases)
		}
	}
}

func (s *Service) runFetch(ctx context.Context, label string, fetch func(context.Context) error) {
	if err := fetch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("upstream poll failed", "poll", label, "error", err.Error())
	}
}

func (s *Service) onFeedChanged(snapshot feed.Snapshot) {
	s.hub.BroadcastFeed(snapshot)
}

func (s *Service) onCasesChanged() {
	s.hub.BroadcastCasesUpdated()
}

// kickCaseRefetch requests one case refetch without blocking the push path.
func (s *Service) kickCaseRefetch() {
	select {
	case s.caseKick <- struct{}{}:
	default:
	}
}

// onAlertPushed escalates qualifying pushed alerts without blocking ingest.
// Params: record materialized from a push event.
// Returns: nothing; escalation failures are logged, never fatal.
func (s *Service) onAlertPushed(record domain.AlertRecord) {
	if s.escalator == nil || !s.escalator.ShouldEscalate(record) {
		return
	}
	go func() {
		if err := s.escalator.Escalate(s.escCtx, record); err != nil {
			s.logger.Error("escalation failed", "identity", record.Identity, "error", err.Error())
		}
	}()
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "error", err.Error())
			markErr(fmt.Errorf("nats subscriber close: %w", err))
		}
	}
	if s.kafkaSub != nil {
		if err := s.kafkaSub.Close(); err != nil {
			s.logger.Error("kafka subscriber close failed", "error", err.Error())
			markErr(fmt.Errorf("kafka subscriber close: %w", err))
		}
	}
	if s.streamSub != nil {
		if err := s.streamSub.Close(); err != nil {
			s.logger.Error("event stream close failed", "error", err.Error())
			markErr(fmt.Errorf("event stream close: %w", err))
		}
	}
	s.escCancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.streamSub != nil {
		_ = s.streamSub.Close()
		s.streamSub = nil
	}
	if s.kafkaSub != nil {
		_ = s.kafkaSub.Close()
		s.kafkaSub = nil
	}
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.hub != nil {
		s.hub.Close()
		s.hub = nil
	}
	s.escCancel()
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires the mux with console API and ingest endpoints.
// Params: none.
// Returns: setup error.
func (s *Service) buildHTTPServer() error {
	s.hub = api.NewHub(s.cfg.API.MaxSocketConns, s.logger)
	handler := api.NewHandler(s.cfg.API, s.manager, s, s.readyFlag.Load, s.clock, s.hub, s.logger)

	mux := http.NewServeMux()
	handler.Register(mux)
	if s.cfg.Ingest.HTTP.Enabled {
		mux.Handle(s.cfg.Ingest.HTTP.Path, ingest.NewHTTPHandler(s.manager, s.cfg.Ingest.HTTP.MaxBodyBytes))
	}

	s.httpSrv = &http.Server{
		Addr:              s.cfg.API.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// buildIngestSubscribers starts the enabled push-event transports.
// Params: none.
// Returns: initialization error.
func (s *Service) buildIngestSubscribers() error {
	if s.cfg.Ingest.NATS.Enabled {
		subscriber, err := ingest.NewNATSSubscriber(s.cfg.Ingest.NATS, s.manager, s.logger)
		if err != nil {
			return err
		}
		s.natsSub = subscriber
	}
	if s.cfg.Ingest.Kafka.Enabled {
		s.kafkaSub = ingest.NewKafkaSubscriber(s.cfg.Ingest.Kafka, s.manager, s.logger)
	}
	if s.cfg.Ingest.Websocket.Enabled {
		s.streamSub = ingest.NewStreamSubscriber(s.cfg.Ingest.Websocket, s.cfg.Upstream.Token, s.manager, s.logger)
	}
	return nil
}
