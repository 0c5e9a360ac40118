package engine

import (
	"context"
	"log/slog"
	"net/url"
	"testing"
	"ticket-reservation/common/constant"
	"ticket-reservation/common/errs"
	"ticket-reservation/model"
	"ticket-reservation/outbound/postgres"
	"ticket-reservation/outbound/provider"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/suite"
)

// stubAdapter records session calls so tests can assert the provider was
// (or was not) reached and with which idempotency key.
type stubAdapter struct {
	session     provider.Session
	sessionErr  error
	status      provider.Status
	statusErr   error
	createCalls int
	lastSession provider.SessionRequest
}

func (a *stubAdapter) Name() string { return "stub" }

func (a *stubAdapter) CreateSession(_ context.Context, req provider.SessionRequest) (provider.Session, error) {
	a.createCalls++
	a.lastSession = req
	return a.session, a.sessionErr
}

func (a *stubAdapter) GetStatus(context.Context, string) (provider.Status, error) {
	return a.status, a.statusErr
}

func (a *stubAdapter) MapStatus(raw string) provider.Status {
	st := provider.Status{Raw: raw}
	switch raw {
	case "paid":
		st.Local = constant.PaymentStatusPaid
	case "failed":
		st.Local = constant.PaymentStatusFailed
	default:
		st.Local = constant.PaymentStatusPending
	}
	return st
}

func (a *stubAdapter) DecodeCallback(params url.Values) (provider.Callback, error) {
	return provider.Callback{ProviderRef: params.Get("ref"), RawStatus: params.Get("status")}, nil
}

type PaymentStoreTestSuite struct {
	suite.Suite

	Querier *postgres.Queries
	PgxMock pgxmock.PgxPoolIface

	adapter  *stubAdapter
	payments PaymentStore
	now      time.Time
}

func (s *PaymentStoreTestSuite) SetupTest() {
	pool, err := pgxmock.NewPool()
	if err != nil {
		s.T().Fatalf("failed to create pgxmock pool: %v", err)
	}

	s.PgxMock = pool
	s.Querier = postgres.New(pool)
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.adapter = &stubAdapter{
		session: provider.Session{ProviderRef: "ref-1", RedirectUrl: "https://pay.example/ref-1"},
	}

	s.payments = PaymentStore{
		Db:        pool,
		Querier:   s.Querier,
		Providers: provider.NewRegistry(s.adapter),
		TimeNow:   func() time.Time { return s.now },
	}

	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func (s *PaymentStoreTestSuite) TearDownTest() {
	s.PgxMock.Close()
}

func TestPaymentStoreTestSuite(t *testing.T) {
	suite.Run(t, new(PaymentStoreTestSuite))
}

var paymentColumnNames = []string{
	"id", "hold_id", "provider", "provider_ref", "redirect_url", "buyer_name", "buyer_email",
	"amount_minor", "status", "order_id", "created_at", "updated_at",
}

const (
	paymentByHoldQuery   = `SELECT id, hold_id, provider, provider_ref, redirect_url, buyer_name, buyer_email, amount_minor, status, order_id, created_at, updated_at FROM payments WHERE hold_id = \$1 FOR UPDATE`
	paymentByRefQuery    = `SELECT id, hold_id, provider, provider_ref, redirect_url, buyer_name, buyer_email, amount_minor, status, order_id, created_at, updated_at FROM payments WHERE provider = \$1 AND provider_ref = \$2`
	paymentStatusExec    = `UPDATE payments SET status = \$2, updated_at = \$3 WHERE id = \$1 AND status IN \('CREATED', 'PENDING'\)`
	paymentProviderExec  = `UPDATE payments SET provider_ref = \$2, redirect_url = \$3, status = 'PENDING', updated_at = \$4 WHERE id = \$1 AND status IN \('CREATED', 'PENDING'\)`
	insertPaymentPattern = `INSERT INTO payments`
)

func (s *PaymentStoreTestSuite) paymentRow(id, holdID, status string) *pgxmock.Rows {
	return pgxmock.NewRows(paymentColumnNames).
		AddRow(id, holdID, "stub", pgtype.Text{String: "ref-1", Valid: true},
			pgtype.Text{String: "https://pay.example/ref-1", Valid: true},
			"John Doe", "john@example.com", int64(350000), status, pgtype.Text{},
			pgtype.Timestamp{Time: s.now, Valid: true}, pgtype.Timestamp{Time: s.now, Valid: true})
}

func (s *PaymentStoreTestSuite) TestCreate() {
	req := model.CreatePaymentRequest{
		HoldId:     "HOLD1",
		BuyerName:  "John Doe",
		BuyerEmail: "john@example.com",
	}

	activeHoldRows := func() *pgxmock.Rows {
		return pgxmock.NewRows(holdColumns).
			AddRow("HOLD1", int64(7), "ACTIVE",
				pgtype.Timestamp{Time: s.now.Add(-time.Minute), Valid: true},
				pgtype.Timestamp{Time: s.now.Add(5 * time.Minute), Valid: true})
	}

	tests := []struct {
		name             string
		providerName     string
		setupMock        func()
		expectedErr      error
		expectedStatus   string
		expectedRedirect string
		expectSession    bool
	}{
		{
			name:         "unknown provider",
			providerName: "nope",
			setupMock:    func() {},
			expectedErr:  errs.ErrUnknownProvider,
		},
		{
			name:         "hold not found",
			providerName: "stub",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findHoldQuery).
					WithArgs("HOLD1").
					WillReturnError(pgx.ErrNoRows)
				s.PgxMock.ExpectRollback().WillReturnError(nil)
			},
			expectedErr: errs.ErrHoldNotFound,
		},
		{
			name:         "expired hold is released before erroring",
			providerName: "stub",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findHoldQuery).
					WithArgs("HOLD1").
					WillReturnRows(pgxmock.NewRows(holdColumns).
						AddRow("HOLD1", int64(7), "ACTIVE",
							pgtype.Timestamp{Time: s.now.Add(-time.Hour), Valid: true},
							pgtype.Timestamp{Time: s.now.Add(-time.Minute), Valid: true}))
				s.PgxMock.ExpectQuery(holdItemsQuery).
					WithArgs("HOLD1").
					WillReturnRows(pgxmock.NewRows(holdItemColumns).
						AddRow("HOLD1", int64(1), "VIP", int64(150000), int32(2)))
				s.PgxMock.ExpectExec(releaseHeldExec).
					WithArgs(int64(1), int32(2)).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				s.PgxMock.ExpectExec(holdStatusExec).
					WithArgs("HOLD1", "EXPIRED", "ACTIVE").
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
				s.PgxMock.ExpectCommit()
			},
			expectedErr: errs.ErrHoldExpired,
		},
		{
			name:         "amount is priced from the item snapshots",
			providerName: "stub",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findHoldQuery).
					WithArgs("HOLD1").
					WillReturnRows(activeHoldRows())
				s.PgxMock.ExpectQuery(holdItemsQuery).
					WithArgs("HOLD1").
					WillReturnRows(pgxmock.NewRows(holdItemColumns).
						AddRow("HOLD1", int64(1), "VIP", int64(150000), int32(2)).
						AddRow("HOLD1", int64(2), "Regular", int64(50000), int32(1)))
				s.PgxMock.ExpectQuery(paymentByHoldQuery).
					WithArgs("HOLD1").
					WillReturnError(pgx.ErrNoRows)
				s.PgxMock.ExpectExec(insertPaymentPattern).
					WithArgs(pgxmock.AnyArg(), "HOLD1", "stub", "John Doe", "john@example.com", int64(350000)).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				s.PgxMock.ExpectCommit()
				s.PgxMock.ExpectExec(paymentProviderExec).
					WithArgs(pgxmock.AnyArg(), pgtype.Text{String: "ref-1", Valid: true},
						pgtype.Text{String: "https://pay.example/ref-1", Valid: true},
						pgtype.Timestamp{Time: s.now, Valid: true}).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
			expectedStatus:   "PENDING",
			expectedRedirect: "https://pay.example/ref-1",
			expectSession:    true,
		},
		{
			name:         "open session is reused without a provider call",
			providerName: "stub",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findHoldQuery).
					WithArgs("HOLD1").
					WillReturnRows(activeHoldRows())
				s.PgxMock.ExpectQuery(holdItemsQuery).
					WithArgs("HOLD1").
					WillReturnRows(pgxmock.NewRows(holdItemColumns).
						AddRow("HOLD1", int64(1), "VIP", int64(150000), int32(2)).
						AddRow("HOLD1", int64(2), "Regular", int64(50000), int32(1)))
				s.PgxMock.ExpectQuery(paymentByHoldQuery).
					WithArgs("HOLD1").
					WillReturnRows(s.paymentRow("PAY1", "HOLD1", "PENDING"))
				s.PgxMock.ExpectCommit()
			},
			expectedStatus:   "PENDING",
			expectedRedirect: "https://pay.example/ref-1",
		},
		{
			name:         "paid payment is returned unchanged",
			providerName: "stub",
			setupMock: func() {
				s.PgxMock.ExpectBegin()
				s.PgxMock.ExpectQuery(findHoldQuery).
					WithArgs("HOLD1").
					WillReturnRows(activeHoldRows())
				s.PgxMock.ExpectQuery(holdItemsQuery).
					WithArgs("HOLD1").
					WillReturnRows(pgxmock.NewRows(holdItemColumns).
						AddRow("HOLD1", int64(1), "VIP", int64(150000), int32(2)).
						AddRow("HOLD1", int64(2), "Regular", int64(50000), int32(1)))
				s.PgxMock.ExpectQuery(paymentByHoldQuery).
					WithArgs("HOLD1").
					WillReturnRows(s.paymentRow("PAY1", "HOLD1", "PAID"))
				s.PgxMock.ExpectCommit()
			},
			expectedStatus: "PAID",
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			s.adapter.createCalls = 0
			tc.setupMock()

			resp, err := s.payments.Create(context.Background(), tc.providerName, req)

			if tc.expectedErr != nil {
				s.ErrorIs(err, tc.expectedErr)
				s.Zero(s.adapter.createCalls)
			} else {
				s.NoError(err)
				s.Equal(tc.expectedStatus, resp.Status)
				s.Equal(int64(350000), resp.AmountMinor)
			}

			if tc.expectedRedirect != "" {
				s.Equal(tc.expectedRedirect, resp.RedirectUrl)
			}

			if tc.expectSession {
				s.Equal(1, s.adapter.createCalls)
				s.Equal(provider.IdempotencyKey("HOLD1", resp.PaymentId), s.adapter.lastSession.IdempotencyKey)
				s.Equal(int64(350000), s.adapter.lastSession.AmountMinor)
			} else {
				s.Zero(s.adapter.createCalls)
			}

			s.NoError(s.PgxMock.ExpectationsWereMet())
		})
	}
}

func (s *PaymentStoreTestSuite) TestConfirmCallback() {
	tests := []struct {
		name          string
		providerName  string
		cb            provider.Callback
		setupMock     func()
		expectedErr   error
		expectedLocal string
	}{
		{
			name:         "unknown provider",
			providerName: "nope",
			cb:           provider.Callback{ProviderRef: "ref-1", RawStatus: "paid"},
			setupMock:    func() {},
			expectedErr:  errs.ErrUnknownProvider,
		},
		{
			name:         "payment not found",
			providerName: "stub",
			cb:           provider.Callback{ProviderRef: "ref-404", RawStatus: "paid"},
			setupMock: func() {
				s.PgxMock.ExpectQuery(paymentByRefQuery).
					WithArgs("stub", "ref-404").
					WillReturnError(pgx.ErrNoRows)
			},
			expectedErr: errs.ErrPaymentNotFound,
		},
		{
			name:         "settlement is applied forward-only",
			providerName: "stub",
			cb:           provider.Callback{ProviderRef: "ref-1", RawStatus: "paid"},
			setupMock: func() {
				s.PgxMock.ExpectQuery(paymentByRefQuery).
					WithArgs("stub", "ref-1").
					WillReturnRows(s.paymentRow("PAY1", "HOLD1", "PENDING"))
				s.PgxMock.ExpectExec(paymentStatusExec).
					WithArgs("PAY1", "PAID", pgtype.Timestamp{Time: s.now, Valid: true}).
					WillReturnResult(pgxmock.NewResult("UPDATE", 1))
			},
			expectedLocal: "PAID",
		},
		{
			name:         "pending mapping touches nothing",
			providerName: "stub",
			cb:           provider.Callback{ProviderRef: "ref-1", RawStatus: "challenge"},
			setupMock: func() {
				s.PgxMock.ExpectQuery(paymentByRefQuery).
					WithArgs("stub", "ref-1").
					WillReturnRows(s.paymentRow("PAY1", "HOLD1", "PENDING"))
			},
			expectedLocal: "PENDING",
		},
	}

	for _, tc := range tests {
		s.Run(tc.name, func() {
			tc.setupMock()

			_, st, err := s.payments.ConfirmCallback(context.Background(), tc.providerName, tc.cb)

			if tc.expectedErr != nil {
				s.ErrorIs(err, tc.expectedErr)
			} else {
				s.NoError(err)
				s.Equal(tc.expectedLocal, st.Local)
			}

			s.NoError(s.PgxMock.ExpectationsWereMet())
		})
	}
}

func (s *PaymentStoreTestSuite) TestApplyProviderStatus() {
	s.Run("duplicate of a terminal status affects nothing", func() {
		s.PgxMock.ExpectExec(paymentStatusExec).
			WithArgs("PAY1", "PAID", pgtype.Timestamp{Time: s.now, Valid: true}).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		changed, err := s.payments.ApplyProviderStatus(context.Background(), "PAY1",
			provider.Status{Local: constant.PaymentStatusPaid, Raw: "paid"})

		s.NoError(err)
		s.False(changed)
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})

	s.Run("pending never writes", func() {
		changed, err := s.payments.ApplyProviderStatus(context.Background(), "PAY1",
			provider.Status{Local: constant.PaymentStatusPending, Raw: "challenge"})

		s.NoError(err)
		s.False(changed)
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})
}
