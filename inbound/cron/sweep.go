package cron

import (
	"context"
	"log/slog"
	"ticket-reservation/common"
	"ticket-reservation/common/constant"
	"ticket-reservation/engine"
	"time"

	"github.com/spf13/viper"
)

// SweepCron is the scheduled half of hold expiry; hold-touching
// transactions also sweep opportunistically.
type SweepCron struct {
	Cfg   *viper.Viper
	Holds *engine.HoldManager
}

func (in SweepCron) Start(ctx context.Context) {
	sweepTicker := time.NewTicker(in.Cfg.GetDuration("cron.sweep.interval"))
	defer sweepTicker.Stop()

	in.sweep(ctx)

	slog.Info("sweep cron started")

	for {
		select {
		case <-sweepTicker.C:
			in.sweep(ctx)
		case <-ctx.Done():
			slog.Info("sweep cron stopped")
			return
		}
	}
}

func (in SweepCron) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, in.Cfg.GetDuration("cron.sweep.timeout"))
	defer cancel()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	swept, err := in.Holds.SweepExpired(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to sweep expired holds", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return
	}

	if swept > 0 {
		slog.DebugContext(ctx, "sweep pass complete", traceIdAttr, slog.Int(constant.LogFieldResponse, swept))
	}
}
