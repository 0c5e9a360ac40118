package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"runtime/pprof"
	commonOtel "ticket-reservation/common/otel"
	"ticket-reservation/engine"
	inboundCron "ticket-reservation/inbound/cron"
	inboundHttp "ticket-reservation/inbound/http"
	"ticket-reservation/outbound/postgres"
	"time"

	"github.com/go-playground/validator/v10"
)

func runHttpServerCmd(ctx context.Context) {
	cfg := newCfg("env")

	if cfg.GetString("env") == "dev" {
		cpu, err := os.Create("http-cpu.prof")
		if err != nil {
			log.Fatalf("could not create CPU profile: %v", err)
		}
		defer cpu.Close()

		err = pprof.StartCPUProfile(cpu)
		if err != nil {
			log.Fatalf("could not start CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()

		mem, err := os.Create("http-mem.prof")
		if err != nil {
			log.Fatalf("could not create memory profile: %v", err)
		}
		defer mem.Close()

		err = pprof.WriteHeapProfile(mem)
		if err != nil {
			log.Fatalf("could not write memory profile: %v", err)
		}
		defer mem.Close()
	}

	shutdownTracer := commonOtel.InitTracerProvider(ctx, cfg)
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Error("failed to shutdown tracer provider", slog.Any("error", err))
		}
	}()

	validate := validator.New()

	db := newDb(cfg)
	defer db.Close()

	cacheClient := newRedis(cfg)
	defer cacheClient.Close()

	natsConn := newNats(cfg)
	defer natsConn.Close()

	js := newJs(natsConn)
	createStreamWorkQueue(ctx, js)

	querier := postgres.New(db)
	providers := newProviderRegistry(cfg)

	holds := &engine.HoldManager{
		Db:             db,
		Querier:        querier,
		TimeNow:        time.Now,
		DefaultTTL:     cfg.GetDuration("hold.ttl"),
		SweepBatchSize: cfg.GetInt32("hold.sweep_batch_size"),
	}

	payments := &engine.PaymentStore{
		Db:        db,
		Querier:   querier,
		Providers: providers,
		TimeNow:   time.Now,
	}

	finalizer := &engine.Finalizer{
		Db:        db,
		Querier:   querier,
		Publisher: js,
		TimeNow:   time.Now,
	}

	reconciler := &engine.Reconciler{
		Querier:   querier,
		Providers: providers,
		Payments:  payments,
		Finalizer: finalizer,
		TimeNow:   time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		slog.DebugContext(r.Context(), "health check")
		w.WriteHeader(http.StatusOK)
	})

	timeoutMiddleware := inboundHttp.TimeoutMiddleware(20 * time.Second)

	inboundHttp.RegisterAvailabilityHttp(mux, querier, cacheClient)
	inboundHttp.RegisterHoldHttp(mux, holds, validate)
	inboundHttp.RegisterPaymentHttp(mux, payments, finalizer, reconciler, providers, cacheClient, js, validate)

	sweepCron := inboundCron.SweepCron{
		Cfg:   cfg,
		Holds: holds,
	}

	availabilityCron := inboundCron.AvailabilityCron{
		Cfg:     cfg,
		Cache:   cacheClient,
		Querier: querier,
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.GetInt("server.port")),
		Handler:           timeoutMiddleware(inboundHttp.CorsMiddleware(mux)),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalln("unable to start server", err)
		}
	}()

	slog.Info("http server started")

	go func() {
		sweepCron.Start(ctx)
	}()

	go func() {
		availabilityCron.Start(ctx)
	}()

	<-ctx.Done()

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutDown); err != nil {
		log.Fatalln("unable to shutdown server", err)
	}

	slog.Info("http server stopped")
}
