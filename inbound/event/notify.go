package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"ticket-reservation/common"
	"ticket-reservation/common/constant"
	"ticket-reservation/common/otel"
	"ticket-reservation/engine"
	"ticket-reservation/model"
	"time"
)

type NotifyEvent struct {
	Notifier *engine.Notifier

	Timeout time.Duration
}

func (in NotifyEvent) IssuedHandler(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.TicketIssuedEventMessage
	err := json.Unmarshal(msg, &req)
	if err != nil {
		slog.WarnContext(ctx, "ticket issued event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	ctx, span := otel.Tracer.Start(ctx, "NotifyEvent.IssuedHandler")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	slog.InfoContext(ctx, "ticket issued event receive request", slog.Any(constant.LogFieldPayload, req), traceIdAttr)

	if err := in.Notifier.ClaimAndSend(ctx, req.OrderId); err != nil {
		slog.ErrorContext(ctx, "failed to send tickets", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return err
	}

	return nil
}
