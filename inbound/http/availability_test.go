package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"ticket-reservation/common/constant"
	"ticket-reservation/model"
	"ticket-reservation/outbound/postgres"

	"github.com/go-redis/redismock/v9"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type AvailabilityHttpTestSuite struct {
	suite.Suite

	Querier *postgres.Queries
	PgxMock pgxmock.PgxPoolIface

	Cache     *redis.Client
	CacheMock redismock.ClientMock

	availabilityHttp *AvailabilityHttp
}

func (s *AvailabilityHttpTestSuite) SetupTest() {
	pool, err := pgxmock.NewPool()
	if err != nil {
		s.T().Fatalf("failed to create pgxmock pool: %v", err)
	}

	s.PgxMock = pool
	s.Querier = postgres.New(pool)

	rdb, mock := redismock.NewClientMock()
	s.Cache = rdb
	s.CacheMock = mock

	s.availabilityHttp = RegisterAvailabilityHttp(http.NewServeMux(), s.Querier, s.Cache)
}

func (s *AvailabilityHttpTestSuite) TearDownTest() {
	s.PgxMock.Close()

	if err := s.Cache.Close(); err != nil {
		s.T().Fatalf("failed to close redis mock: %v", err)
	}
}

func TestAvailabilityHttpTestSuite(t *testing.T) {
	suite.Run(t, new(AvailabilityHttpTestSuite))
}

const availabilityQuery = `SELECT id, name, unit_price_minor, capacity - sold - held AS remaining FROM ticket_types WHERE event_id = \$1 ORDER BY id`

var availabilityColumns = []string{"id", "name", "unit_price_minor", "remaining"}

func (s *AvailabilityHttpTestSuite) TestGet() {
	s.Run("invalid event id", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/events/abc/availability", nil)
		req.SetPathValue("id", "abc")
		w := httptest.NewRecorder()

		s.availabilityHttp.get(w, req)

		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal(`{"error":"Invalid event id"}`, strings.TrimSpace(w.Body.String()))
	})

	s.Run("cache hit serves the stored body", func() {
		cached := `{"event_id":7,"ticket_types":[{"ticket_type_id":1,"name":"VIP","unit_price_minor":150000,"remaining":12}]}`
		s.CacheMock.ExpectGet("event:7:availability").SetVal(cached)

		req := httptest.NewRequest(http.MethodGet, "/api/events/7/availability", nil)
		req.SetPathValue("id", "7")
		w := httptest.NewRecorder()

		s.availabilityHttp.get(w, req)

		s.Equal(http.StatusOK, w.Code)
		s.Equal(cached, w.Body.String())
		s.NoError(s.CacheMock.ExpectationsWereMet())
	})

	s.Run("cache miss loads from the database and backfills", func() {
		expected := model.EventAvailabilityResponse{
			EventId: 7,
			TicketTypes: []model.TicketTypeAvailability{
				{TicketTypeId: 1, Name: "VIP", UnitPriceMinor: 150000, Remaining: 12},
				{TicketTypeId: 2, Name: "Regular", UnitPriceMinor: 50000, Remaining: 40},
			},
		}
		data, err := json.Marshal(expected)
		s.NoError(err)

		s.CacheMock.ExpectGet("event:7:availability").RedisNil()
		s.PgxMock.ExpectQuery(availabilityQuery).
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows(availabilityColumns).
				AddRow(int64(1), "VIP", int64(150000), int32(12)).
				AddRow(int64(2), "Regular", int64(50000), int32(40)))
		s.CacheMock.ExpectSet("event:7:availability", data, constant.EventAvailabilityTTL).SetVal("OK")

		req := httptest.NewRequest(http.MethodGet, "/api/events/7/availability", nil)
		req.SetPathValue("id", "7")
		w := httptest.NewRecorder()

		s.availabilityHttp.get(w, req)

		s.Equal(http.StatusOK, w.Code)
		s.JSONEq(string(data), w.Body.String())
		s.NoError(s.CacheMock.ExpectationsWereMet())
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})

	s.Run("unknown event", func() {
		s.CacheMock.ExpectGet("event:404:availability").RedisNil()
		s.PgxMock.ExpectQuery(availabilityQuery).
			WithArgs(int64(404)).
			WillReturnRows(pgxmock.NewRows(availabilityColumns))

		req := httptest.NewRequest(http.MethodGet, "/api/events/404/availability", nil)
		req.SetPathValue("id", "404")
		w := httptest.NewRecorder()

		s.availabilityHttp.get(w, req)

		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal(`{"error":"Ticket type not found"}`, strings.TrimSpace(w.Body.String()))
		s.NoError(s.CacheMock.ExpectationsWereMet())
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})
}
