package http

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"ticket-reservation/engine"
	"ticket-reservation/outbound/postgres"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/suite"
)

type HoldHttpTestSuite struct {
	suite.Suite

	Querier *postgres.Queries
	PgxMock pgxmock.PgxPoolIface

	Validate *validator.Validate

	holds *engine.HoldManager
	now   time.Time
}

func (s *HoldHttpTestSuite) SetupTest() {
	pool, err := pgxmock.NewPool()
	if err != nil {
		s.T().Fatalf("failed to create pgxmock pool: %v", err)
	}

	s.PgxMock = pool
	s.Querier = postgres.New(pool)
	s.Validate = validator.New()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.holds = &engine.HoldManager{
		Db:             pool,
		Querier:        s.Querier,
		TimeNow:        func() time.Time { return s.now },
		DefaultTTL:     8 * time.Minute,
		SweepBatchSize: 50,
	}

	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func (s *HoldHttpTestSuite) TearDownTest() {
	s.PgxMock.Close()
}

func TestHoldHttpTestSuite(t *testing.T) {
	suite.Run(t, new(HoldHttpTestSuite))
}

const (
	sweepQuery     = `SELECT id, event_id, status, created_at, expires_at FROM holds WHERE status = 'ACTIVE' AND expires_at <= \$1 ORDER BY expires_at LIMIT \$2 FOR UPDATE SKIP LOCKED`
	lockTypesQuery = `SELECT id, event_id, name, unit_price_minor, capacity, sold, held FROM ticket_types WHERE event_id = \$1 AND id = ANY\(\$2\) ORDER BY id FOR UPDATE`
	findHoldQuery  = `SELECT id, event_id, status, created_at, expires_at FROM holds WHERE id = \$1 FOR UPDATE`
)

var holdColumns = []string{"id", "event_id", "status", "created_at", "expires_at"}
var ticketTypeColumns = []string{"id", "event_id", "name", "unit_price_minor", "capacity", "sold", "held"}

func (s *HoldHttpTestSuite) TestCreate() {
	tests := []struct {
		name           string
		reqBody        string
		setupMock      func()
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "invalid json",
			reqBody:        `{invalid json`,
			setupMock:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"Invalid request"}`,
		},
		{
			name:           "validation error - missing fields",
			reqBody:        `{}`,
			setupMock:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"Validation failed","data":{"EventId":"required","Items":"required"}}`,
		},
		{
			name:           "validation error - qty over limit",
			reqBody:        `{"event_id": 7, "items": [{"ticket_type_id": 1, "qty": 11}]}`,
			setupMock:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"Validation failed","data":{"Qty":"lte"}}`,
		},
		{
			name:    "insufficient stock",
			reqBody: `{"event_id": 7, "items": [{"ticket_type_id": 1, "qty": 5}]}`,
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(sweepQuery).
					WithArgs(pgtype.Timestamp{Time: s.now, Valid: true}, int32(50)).
					WillReturnRows(pgxmock.NewRows(holdColumns))
				s.PgxMock.ExpectQuery(lockTypesQuery).
					WithArgs(int64(7), []int64{1}).
					WillReturnRows(pgxmock.NewRows(ticketTypeColumns).
						AddRow(int64(1), int64(7), "VIP", int64(150000), int32(100), int32(98), int32(1)))
				s.PgxMock.ExpectRollback().WillReturnError(nil)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"error":"Insufficient stock"}`,
		},
		{
			name:    "success",
			reqBody: `{"event_id": 7, "items": [{"ticket_type_id": 1, "qty": 2}]}`,
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(sweepQuery).
					WithArgs(pgtype.Timestamp{Time: s.now, Valid: true}, int32(50)).
					WillReturnRows(pgxmock.NewRows(holdColumns))
				s.PgxMock.ExpectQuery(lockTypesQuery).
					WithArgs(int64(7), []int64{1}).
					WillReturnRows(pgxmock.NewRows(ticketTypeColumns).
						AddRow(int64(1), int64(7), "VIP", int64(150000), int32(100), int32(10), int32(5)))
				s.PgxMock.ExpectExec(`UPDATE ticket_types SET held = held \+ \$2`).
					WithArgs(int64(1), int32(2)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				s.PgxMock.ExpectExec("INSERT INTO holds").
					WithArgs(pgxmock.AnyArg(), int64(7), pgtype.Timestamp{Time: s.now.Add(8 * time.Minute), Valid: true}).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				s.PgxMock.ExpectExec("INSERT INTO hold_items").
					WithArgs(pgxmock.AnyArg(), int64(1), "VIP", int64(150000), int32(2)).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				s.PgxMock.ExpectCommit()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"hold_id"`,
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			holdHttp := RegisterHoldHttp(http.NewServeMux(), s.holds, s.Validate)

			tc.setupMock()

			req := httptest.NewRequest(http.MethodPost, "/api/holds", strings.NewReader(tc.reqBody))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			holdHttp.create(w, req)

			s.Equal(tc.expectedStatus, w.Code)

			if tc.expectedStatus == http.StatusOK {
				s.Contains(w.Body.String(), tc.expectedBody)
			} else {
				s.Equal(tc.expectedBody, strings.TrimSpace(w.Body.String()))
			}

			s.NoError(s.PgxMock.ExpectationsWereMet())
		})
	}
}

func (s *HoldHttpTestSuite) TestRelease() {
	tests := []struct {
		name           string
		holdID         string
		setupMock      func()
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "missing id",
			holdID:         "",
			setupMock:      func() {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"Invalid request"}`,
		},
		{
			name:   "hold not found",
			holdID: "HOLD1",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findHoldQuery).
					WithArgs("HOLD1").
					WillReturnError(pgx.ErrNoRows)
				s.PgxMock.ExpectRollback().WillReturnError(nil)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"error":"Hold not found"}`,
		},
		{
			name:   "already terminal is a no-op",
			holdID: "HOLD1",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findHoldQuery).
					WithArgs("HOLD1").
					WillReturnRows(pgxmock.NewRows(holdColumns).
						AddRow("HOLD1", int64(7), "CANCELED",
							pgtype.Timestamp{Time: s.now.Add(-time.Hour), Valid: true},
							pgtype.Timestamp{Time: s.now.Add(-30 * time.Minute), Valid: true}))
				s.PgxMock.ExpectCommit()
			},
			expectedStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			holdHttp := RegisterHoldHttp(http.NewServeMux(), s.holds, s.Validate)

			tc.setupMock()

			req := httptest.NewRequest(http.MethodDelete, "/api/holds/"+tc.holdID, nil)
			req.SetPathValue("id", tc.holdID)
			w := httptest.NewRecorder()

			holdHttp.release(w, req)

			s.Equal(tc.expectedStatus, w.Code)
			if tc.expectedBody != "" {
				s.Equal(tc.expectedBody, strings.TrimSpace(w.Body.String()))
			}

			s.NoError(s.PgxMock.ExpectationsWereMet())
		})
	}
}
