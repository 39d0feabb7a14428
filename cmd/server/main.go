// Command server wires cachify's composite orchestrator, backplane, and
// request-cache middleware into a runnable HTTP demo surface with a
// signal-driven graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfreddev/cachify/backplane"
	"github.com/alfreddev/cachify/cache"
	"github.com/alfreddev/cachify/clock"
	"github.com/alfreddev/cachify/config"
	"github.com/alfreddev/cachify/handler"
	"github.com/alfreddev/cachify/logger"
	"github.com/alfreddev/cachify/observability"
	"github.com/alfreddev/cachify/redisclient"
	"github.com/alfreddev/cachify/requestcache"
	"github.com/alfreddev/cachify/router"
	"github.com/alfreddev/cachify/similarity"
	"github.com/alfreddev/cachify/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)
	log.Info().Str("env", cfg.Env).Msg("cachify starting")

	reg := prometheus.NewRegistry()
	metrics := observability.New(reg)

	rc, err := redisclient.New(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("redis init failed — continuing L2-less")
	} else if err := rc.Ping(); err != nil {
		log.Warn().Err(err).Msg("redis ping failed — continuing L2-less")
		rc = nil
	} else {
		log.Info().Msg("redis connected")
	}

	l1 := store.NewMemoryStore(0, clock.Real{})
	var l2 store.Store = noopL2{}
	if rc != nil {
		l2 = store.NewDistributedStore(rc.Raw())
	}

	facadeOpts := cache.DefaultFacadeOptions()
	facadeOpts.KeyPrefix = cfg.KeyPrefix
	facadeOpts.DefaultTTL = cfg.DefaultTTL
	facadeOpts.JitterRatio = cfg.JitterRatio
	facadeOpts.FailFastOnL2Errors = cfg.FailFastOnL2Errors
	facadeOpts.Resilience = cache.ResilienceOptions{
		FailSafeMaxDuration:     cfg.Resilience.FailSafeMaxDuration,
		SoftTimeout:             cfg.Resilience.SoftTimeout,
		HardTimeout:             cfg.Resilience.HardTimeout,
		EnableBackgroundRefresh: cfg.Resilience.EnableBackgroundRefresh,
	}

	facadeOptions := []cache.Option{cache.WithMetrics(metrics)}

	instanceID := cfg.Backplane.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	var publisher *backplane.Publisher
	var subscriber *backplane.Subscriber
	if cfg.Backplane.Enabled && rc != nil {
		transport := backplane.NewRedisTransport(rc.Raw())
		publisher = backplane.NewPublisher(transport, cfg.Backplane.ChannelName, instanceID, cfg.Backplane.BatchSize, cfg.Backplane.BatchWindow, clock.Real{}, log, metrics)
		subscriber = backplane.NewSubscriber(transport, cfg.Backplane.ChannelName, instanceID, log, metrics)
		facadeOptions = append(facadeOptions, cache.WithInvalidator(publisher))
		log.Info().Str("instance_id", instanceID).Msg("backplane enabled")
	}

	facade := cache.New(l1, l2, facadeOpts, log, facadeOptions...)

	if subscriber != nil {
		subscriber.OnInvalidation(func(ctx context.Context, inv backplane.Invalidation) error {
			if inv.Key != "" {
				facade.HandleInvalidation(ctx, inv.Key)
				return nil
			}
			if inv.Tag != "" {
				log.Debug().Str("tag", inv.Tag).Msg("tag invalidation received (no-op in this core)")
			}
			return nil
		})
	}

	var simIndex *similarity.Index
	if cfg.Similarity.Enabled {
		simIndex = similarity.NewIndex(cfg.Similarity.MaxIndexEntries, cfg.Similarity.MaxEntryAge, clock.Real{})
	}

	rcMiddleware := requestcache.New(facade, cfg.Request, cfg.Similarity, simIndex, log, metrics, clock.Real{})
	admin := handler.NewAdminHandler(facade, simIndex, log)
	r := router.New(cfg, log, rcMiddleware, admin, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("cachify listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	if subscriber != nil {
		subscriber.Close()
	}
	if publisher != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := publisher.Close(flushCtx); err != nil {
			log.Warn().Err(err).Msg("backplane publisher flush on shutdown failed")
		}
		flushCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("cachify stopped gracefully")
	}
	if rc != nil {
		_ = rc.Close()
	}
}

// noopL2 is used when no Redis connection is available: every L2 read is a
// miss and every write is silently dropped, so the orchestrator still runs
// on L1 alone — degraded resilience (no cross-process fail-safe fallback),
// not incorrect behavior.
type noopL2 struct{}

func (noopL2) Get(context.Context, string) ([]byte, bool, error)             { return nil, false, nil }
func (noopL2) Set(context.Context, string, []byte, time.Duration, bool) error { return nil }
func (noopL2) Remove(context.Context, string) error                          { return nil }
