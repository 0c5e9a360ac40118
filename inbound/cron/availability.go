package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"ticket-reservation/common"
	"ticket-reservation/common/constant"
	"ticket-reservation/engine"
	"ticket-reservation/outbound/postgres"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// AvailabilityCron keeps the advisory remaining-stock cache warm so the
// availability endpoint rarely has to touch the ledger.
type AvailabilityCron struct {
	Cfg     *viper.Viper
	Cache   *redis.Client
	Querier *postgres.Queries
}

func (in AvailabilityCron) Start(ctx context.Context) {
	refreshTicker := time.NewTicker(in.Cfg.GetDuration("cron.availability.refresh.interval"))
	defer refreshTicker.Stop()

	in.refresh(ctx)

	slog.Info("availability cron started")

	for {
		select {
		case <-refreshTicker.C:
			in.refresh(ctx)
		case <-ctx.Done():
			slog.Info("availability cron stopped")
			return
		}
	}
}

func (in AvailabilityCron) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, in.Cfg.GetDuration("cron.availability.refresh.timeout"))
	defer cancel()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	slog.DebugContext(ctx, "refreshing availability cache", traceIdAttr)

	eventIds, err := in.Querier.ListEventIds(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list events", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return
	}

	pipeline := in.Cache.Pipeline()
	for _, eventID := range eventIds {
		resp, err := engine.BuildEventAvailability(ctx, in.Querier, eventID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to build availability", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			return
		}

		data, err := json.Marshal(resp)
		if err != nil {
			slog.ErrorContext(ctx, "failed to marshal availability", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			return
		}

		pipeline.Set(ctx, fmt.Sprintf(constant.EventAvailabilityKey, eventID), data, constant.EventAvailabilityTTL)
	}

	if _, err := pipeline.Exec(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to write availability cache", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return
	}

	slog.DebugContext(ctx, "availability cache refreshed", traceIdAttr)
}
