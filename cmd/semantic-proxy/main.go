package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/cortexrouter/semantic-proxy/internal/appconfig"
	"github.com/cortexrouter/semantic-proxy/internal/classifier"
	"github.com/cortexrouter/semantic-proxy/internal/decision"
	"github.com/cortexrouter/semantic-proxy/internal/logging"
	"github.com/cortexrouter/semantic-proxy/internal/proxy"
	"github.com/cortexrouter/semantic-proxy/internal/routerconfig"
	signalcomp "github.com/cortexrouter/semantic-proxy/internal/signal"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to the router configuration file")
	localEndpoint := flag.String("local-endpoint", "http://localhost:11434", "Base URL of the local classifier backend")
	openaiEndpoint := flag.String("openai-endpoint", "https://api.openai.com", "Base URL of the OpenAI-compatible classifier backend")
	flag.Parse()

	cfg, err := appconfig.Load(*configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	runtimeCfg := classifier.RuntimeConfig{
		LocalEndpoint:   *localEndpoint,
		OpenAIEndpoint:  *openaiEndpoint,
		OpenAIAccessKey: os.Getenv("OPENAI_API_KEY"),
	}

	rt := classifier.NewRuntime(classifier.NewLoader(runtimeCfg))
	defer rt.Close()

	computers := map[routerconfig.SignalType]proxy.SignalComputer{
		routerconfig.SignalTypeComplexity: &signalcomp.ComplexityComputer{Runtime: rt},
		routerconfig.SignalTypeUseCase:    &signalcomp.UseCaseComputer{Runtime: rt},
	}

	engine := decision.NewEngine(cfg.Router.Decisions)

	srv := proxy.New(proxy.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		RequestTimeout:    time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		UpstreamBase:      cfg.UpstreamBase,
		BufferUpstream:    cfg.BufferUpstream,
		StrictParseStatus: cfg.StrictParseStatus,
	}, &cfg.Router, engine, computers)

	errCh := make(chan error, 1)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	osignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("proxy server failed: %v", err)
	case sig := <-sigCh:
		logging.Logger.Info("shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Fatalf("graceful shutdown failed: %v", err)
		}
	}
}
