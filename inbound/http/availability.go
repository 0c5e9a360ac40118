package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"ticket-reservation/common"
	"ticket-reservation/common/constant"
	"ticket-reservation/common/errs"
	"ticket-reservation/common/otel"
	"ticket-reservation/engine"
	"ticket-reservation/outbound/postgres"

	"github.com/redis/go-redis/v9"
)

// AvailabilityHttp serves remaining stock per ticket type from the
// advisory cache. Figures can be slightly stale; the reserve path is the
// only authority on stock.
type AvailabilityHttp struct {
	Querier *postgres.Queries
	Cache   *redis.Client
}

func RegisterAvailabilityHttp(
	mux *http.ServeMux,
	querier *postgres.Queries,
	cache *redis.Client,
) *AvailabilityHttp {
	in := &AvailabilityHttp{
		Querier: querier,
		Cache:   cache,
	}

	mux.HandleFunc("GET /api/events/{id}/availability", in.get)

	return in
}

func (in AvailabilityHttp) get(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "AvailabilityHttp.get")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	eventID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid event id"})
		return
	}

	cached, err := in.Cache.Get(ctx, fmt.Sprintf(constant.EventAvailabilityKey, eventID)).Result()
	if err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(cached))
		return
	}

	if err != redis.Nil {
		slog.WarnContext(ctx, "availability cache read failed", traceIdAttr, slog.Any(constant.LogFieldErr, err))
	}

	resp, err := engine.BuildEventAvailability(ctx, in.Querier, eventID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load availability", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if data, err := json.Marshal(resp); err == nil {
		if err := in.Cache.Set(ctx, fmt.Sprintf(constant.EventAvailabilityKey, eventID), data, constant.EventAvailabilityTTL).Err(); err != nil {
			slog.WarnContext(ctx, "availability cache write failed", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}

	writeJSONResponse(w, http.StatusOK, resp)
}
