package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/quotefeed/quotefeed/internal/api"
	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/httpclient"
	"github.com/quotefeed/quotefeed/internal/orchestrator"
	"github.com/quotefeed/quotefeed/internal/quotecache"
	"github.com/quotefeed/quotefeed/internal/ratelimit"
	"github.com/quotefeed/quotefeed/internal/refetch"
	"github.com/quotefeed/quotefeed/internal/registry"
	"github.com/quotefeed/quotefeed/internal/source"
	"github.com/quotefeed/quotefeed/internal/streaming"
	"github.com/quotefeed/quotefeed/internal/symbolmap"
)

const limiterStopGrace = 5 * time.Second

// coinListHost serves the symbol→id list the CoinGecko adapter depends on.
const coinListBaseURL = "https://api.coingecko.com"

type quotefeedApp struct {
	envCfg *config.EnvConfig

	limiters  *ratelimit.Registry
	symbols   *symbolmap.Service
	sources   *source.Registry
	cache     *quotecache.Cache
	pairs     *registry.Registry
	streaming *streaming.Service
	refetch   *refetch.Loop
	apiSrv    *api.Server
}

func run() error {
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}
	fileCfg, err := config.LoadFileConfig(envCfg.ConfigFile)
	if err != nil {
		return err
	}

	app, err := newQuotefeedApp(envCfg, fileCfg)
	if err != nil {
		return err
	}

	serverErrCh := app.startServers()
	runtimeErr := waitForShutdown(serverErrCh)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.shutdown(ctx)

	if runtimeErr != nil {
		return fmt.Errorf("runtime server error: %w", runtimeErr)
	}
	return nil
}

func newQuotefeedApp(envCfg *config.EnvConfig, fileCfg *config.FileConfig) (*quotefeedApp, error) {
	app := &quotefeedApp{
		envCfg:   envCfg,
		limiters: ratelimit.NewRegistry(),
	}

	symbols, err := app.buildSymbolMap()
	if err != nil {
		return nil, err
	}
	app.symbols = symbols

	app.sources, err = source.NewRegistry(fileCfg, source.Deps{
		Limiters: app.limiters,
		Symbols:  app.symbols,
		Debug:    envCfg.Debug(),
	})
	if err != nil {
		return nil, err
	}

	app.cache, err = quotecache.New(envCfg.QuoteCacheCapacity)
	if err != nil {
		return nil, err
	}
	app.pairs = registry.New()

	orc := orchestrator.New(orchestrator.Options{
		Sources:        app.sources,
		Cache:          app.cache,
		Pairs:          app.pairs,
		RequestTimeout: envCfg.RequestTimeout,
	})

	app.streaming = streaming.New(streaming.Options{
		Pairs:          app.pairs,
		Cache:          app.cache,
		Configs:        app.sources,
		CoalesceWindow: envCfg.SubscribeCoalesceWindow,
		WriteBatch:     envCfg.StreamWriteBatchSize,
		FlushInterval:  envCfg.StreamWriteFlushInterval,
	})

	app.refetch = refetch.New(refetch.Options{
		Pairs:   app.pairs,
		Cache:   app.cache,
		Sources: app.sources,
		Fetch:   orc.Refresh,
	})

	app.apiSrv = api.NewServer(
		envCfg.ListenAddress,
		envCfg.Port,
		orc,
		app.pairs,
		app.cache,
		int64(envCfg.APIMaxBodyBytes),
	)

	app.startBackgroundServices()
	return app, nil
}

// buildSymbolMap wires the CoinGecko coin-list refresher. The list client
// shares the same host limiter the CoinGecko price adapter uses, so both
// stay under one budget.
func (a *quotefeedApp) buildSymbolMap() (*symbolmap.Service, error) {
	client, err := httpclient.NewBuilder().
		BaseURL(coinListBaseURL).
		Timeout(30 * time.Second).
		Limiter(a.limiters.For("api.coingecko.com", 0.5, 2, 2)).
		Debug(a.envCfg.Debug()).
		Build()
	if err != nil {
		return nil, fmt.Errorf("symbol map client: %w", err)
	}
	return symbolmap.NewService(symbolmap.ServiceConfig{
		Lister:          &symbolmap.HTTPLister{Client: client},
		RefreshSchedule: a.envCfg.SymbolMapRefreshSchedule,
	}), nil
}

func (a *quotefeedApp) startBackgroundServices() {
	a.symbols.Start()
	a.streaming.Start()
	a.refetch.Start()
}

func (a *quotefeedApp) startServers() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("quotefeed API server starting on %s:%d",
			a.envCfg.ListenAddress, a.envCfg.Port)
		if err := a.apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

// shutdown stops the app leaves-first: no new requests, then the loops
// that generate traffic, then the shared plumbing underneath them.
func (a *quotefeedApp) shutdown(ctx context.Context) {
	if err := a.apiSrv.Shutdown(ctx); err != nil {
		log.Printf("API server shutdown error: %v", err)
	}
	a.refetch.Stop()
	a.streaming.Stop()
	a.limiters.StopAll(limiterStopGrace)
	a.symbols.Stop()
	a.cache.Close()
	log.Println("Server stopped")
}
