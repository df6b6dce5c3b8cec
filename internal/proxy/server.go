// Package proxy implements the C5 proxy core: an HTTP server that parses
// each inbound request, computes signals, selects a routing decision, and
// forwards the request to the resolved upstream Model (spec §4.5).
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cortexrouter/semantic-proxy/internal/decision"
	"github.com/cortexrouter/semantic-proxy/internal/logging"
	"github.com/cortexrouter/semantic-proxy/internal/metrics"
	"github.com/cortexrouter/semantic-proxy/internal/proxyerr"
	"github.com/cortexrouter/semantic-proxy/internal/reqparse"
	"github.com/cortexrouter/semantic-proxy/internal/routerconfig"
)

// SignalComputer is satisfied by both ComplexityComputer and
// UseCaseComputer; the server fans a request's content out across every
// configured SignalConfig concurrently.
type SignalComputer interface {
	Compute(ctx context.Context, cfg routerconfig.SignalConfig, content string) (routerconfig.Signal, bool, error)
}

// Config carries the Server's runtime options (spec §4.5, §9).
type Config struct {
	Host              string
	Port              int
	RequestTimeout    time.Duration
	UpstreamBase      string
	BufferUpstream    bool
	StrictParseStatus bool
}

// Server is the single catch-all HTTP proxy described in spec §4.5.
type Server struct {
	cfg        Config
	router     *routerconfig.RouterConfig
	engine     *decision.Engine
	computers  map[routerconfig.SignalType]SignalComputer
	httpClient *http.Client
	httpServer *http.Server
	logger     *slog.Logger
}

// New wires a Server around the given RouterConfig, decision Engine, and
// per-signal-type computers.
func New(cfg Config, router *routerconfig.RouterConfig, engine *decision.Engine, computers map[routerconfig.SignalType]SignalComputer) *Server {
	s := &Server{
		cfg:       cfg,
		router:    router,
		engine:    engine,
		computers: computers,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logging.WithComponent("proxy"),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.recoverMiddleware(s.handle))

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: mux,
	}

	return s
}

// Start runs the HTTP server until it is shut down or fails.
func (s *Server) Start() error {
	s.logger.Info("proxy server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// recoverMiddleware turns a panicking handler into a 500 instead of
// crashing the process; one request's bug must not take down others.
func (s *Server) recoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "panic", rec, "path", r.URL.Path)
				http.Error(w, "Bad Gateway", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// handle runs the ten-step per-request pipeline of spec §4.5.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	// Step 1: read the full body. A read failure here is a C4-stage fault,
	// not an upstream one, so it surfaces the same way a parse failure does.
	body, err := io.ReadAll(r.Body)
	logging.RequestReceived(s.logger, r.Method, r.URL.Path, len(body))
	s.logger.Debug("request id assigned", "request_id", requestID)
	if err != nil {
		logging.ParseError(s.logger, err)
		s.respondParseFailure(w, r, start)

		return
	}

	// Step 2+3: parse, on failure respond per the configured quirk/flag.
	parsed, err := reqparse.Parse(body)
	if err != nil {
		logging.ParseError(s.logger, err)
		s.respondParseFailure(w, r, start)

		return
	}

	extracted, err := reqparse.Extract(parsed)
	if err != nil {
		logging.ParseError(s.logger, err)
		s.respondParseFailure(w, r, start)

		return
	}

	if !extracted.HasUserContent {
		s.logger.Warn("request has no user content; routing to default model")
	}

	// Step 4: compute signals, running every configured SignalConfig's
	// computer concurrently and joining the results.
	signals := s.computeSignals(ctx, extracted.UserContent)

	// Step 5: select a decision.
	result, matched := s.engine.Select(signals)

	// Step 6: resolve the target Model.
	target, err := s.resolveTarget(result, matched)
	if err != nil {
		s.respondUpstreamFailure(w, r, start, "")
		return
	}

	logging.UpstreamTarget(s.logger, target.Name, target.Endpoint)

	// Steps 7-10: build and forward the upstream request. The body was
	// already fully drained in step 1, so it is replaced here before
	// handing the request to the reverse proxy; the timeout context
	// computed above is attached so the proxied round-trip is bounded by
	// request_timeout.
	r = r.WithContext(ctx)
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))

	s.forward(w, r, target, start)
}

// computeSignals runs every configured SignalConfig's computer
// concurrently (spec §5: "multiple signal computations may proceed in
// parallel; their results are collected before step 5"), and omits any
// signal whose computer errors (logging a warning) or whose confidence
// falls below threshold.
func (s *Server) computeSignals(ctx context.Context, content string) map[routerconfig.SignalType]routerconfig.Signal {
	out := make(map[routerconfig.SignalType]routerconfig.Signal)

	type entry struct {
		signalType routerconfig.SignalType
		signal     routerconfig.Signal
		emitted    bool
	}

	results := make([]entry, len(s.router.Signals))

	g, gctx := errgroup.WithContext(ctx)

	for i, cfg := range s.router.Signals {
		i, cfg := i, cfg

		computer, ok := s.computers[cfg.SignalType]
		if !ok {
			continue
		}

		g.Go(func() error {
			sig, emitted, err := computer.Compute(gctx, cfg, content)
			if err != nil {
				logging.SignalOmitted(s.logger, string(cfg.SignalType), err)
				return nil
			}

			results[i] = entry{signalType: cfg.SignalType, signal: sig, emitted: emitted}

			return nil
		})
	}

	// Errors from individual computers are already logged and swallowed
	// above; Wait only reports unexpected errgroup-level failures.
	_ = g.Wait()

	for _, r := range results {
		if r.emitted {
			out[r.signalType] = r.signal
		}
	}

	return out
}

// resolveTarget implements spec §4.5 step 6: the selected decision's
// model_ref if one matched, else the RouterConfig's default Model, else a
// synthetic Model built from Config.UpstreamBase (spec §6: "fallback if no
// decision and no default").
func (s *Server) resolveTarget(result decision.Result, matched bool) (routerconfig.Model, error) {
	if matched {
		if m, ok := s.router.ModelByName(result.Decision.ModelRef); ok {
			return m, nil
		}
	} else {
		s.logger.Debug("decision selection failed", "err", proxyerr.NoDecisionMatched())
	}

	if m, ok := s.router.DefaultModel(); ok {
		return m, nil
	}

	if s.cfg.UpstreamBase != "" {
		return routerconfig.Model{
			Name:      "upstream_base",
			Endpoint:  s.cfg.UpstreamBase,
			ModelType: routerconfig.ModelTypeOpenAI,
		}, nil
	}

	return routerconfig.Model{}, proxyerr.ConfigError("no default model or upstream_base configured")
}

// respondParseFailure implements the documented 500-on-parse-failure
// quirk, with an opt-out to the corrected 400 status.
func (s *Server) respondParseFailure(w http.ResponseWriter, r *http.Request, start time.Time) {
	status := http.StatusInternalServerError
	if s.cfg.StrictParseStatus {
		status = http.StatusBadRequest
	}

	metrics.RequestsTotal.WithLabelValues(r.Method, fmt.Sprint(status)).Inc()
	http.Error(w, "Bad Gateway", status)
}

func (s *Server) respondUpstreamFailure(w http.ResponseWriter, r *http.Request, start time.Time, model string) {
	metrics.RequestsTotal.WithLabelValues(r.Method, fmt.Sprint(http.StatusBadGateway)).Inc()
	metrics.UpstreamDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	http.Error(w, "Bad Gateway", http.StatusBadGateway)
}
