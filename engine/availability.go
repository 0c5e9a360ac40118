package engine

import (
	"context"
	"ticket-reservation/common/errs"
	"ticket-reservation/model"
	"ticket-reservation/outbound/postgres"
)

// BuildEventAvailability snapshots remaining stock per ticket type for
// one event. Shared by the availability endpoint and the cache refresh
// cron; figures are advisory only.
func BuildEventAvailability(ctx context.Context, querier *postgres.Queries, eventID int64) (model.EventAvailabilityResponse, error) {
	resp := model.EventAvailabilityResponse{EventId: eventID}

	rows, err := querier.FindEventAvailability(ctx, eventID)
	if err != nil {
		return resp, err
	}

	if len(rows) == 0 {
		return resp, errs.ErrTicketTypeNotFound
	}

	for _, row := range rows {
		remaining := row.Remaining
		if remaining < 0 {
			remaining = 0
		}

		resp.TicketTypes = append(resp.TicketTypes, model.TicketTypeAvailability{
			TicketTypeId:   row.ID,
			Name:           row.Name,
			UnitPriceMinor: row.UnitPriceMinor,
			Remaining:      remaining,
		})
	}

	return resp, nil
}
