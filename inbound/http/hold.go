package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"ticket-reservation/common"
	"ticket-reservation/common/constant"
	"ticket-reservation/common/errs"
	"ticket-reservation/common/otel"
	"ticket-reservation/engine"
	"ticket-reservation/model"

	"github.com/go-playground/validator/v10"
)

type HoldHttp struct {
	Holds    *engine.HoldManager
	Validate *validator.Validate
}

func RegisterHoldHttp(
	mux *http.ServeMux,
	holds *engine.HoldManager,
	validate *validator.Validate,
) *HoldHttp {
	in := &HoldHttp{
		Holds:    holds,
		Validate: validate,
	}

	mux.HandleFunc("POST /api/holds", in.create)
	mux.HandleFunc("DELETE /api/holds/{id}", in.release)

	return in
}

func (in HoldHttp) create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "HoldHttp.create")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	slog.InfoContext(ctx, "create hold receive request", slog.Any(constant.LogFieldPayload, req), traceIdAttr)

	resp, err := in.Holds.CreateOrReuse(ctx, req)
	if err != nil {
		slog.DebugContext(ctx, "create hold failed", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	slog.InfoContext(ctx, "create hold success", traceIdAttr, slog.Any(constant.LogFieldResponse, resp.HoldId))

	writeJSONResponse(w, http.StatusOK, resp)
}

func (in HoldHttp) release(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "HoldHttp.release")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	holdID := r.PathValue("id")
	if holdID == "" {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	slog.InfoContext(ctx, "release hold receive request", slog.String("hold_id", holdID), traceIdAttr)

	if err := in.Holds.Release(ctx, holdID); err != nil {
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, nil)
}
