package cmd

import (
	"context"
	"log"
	"log/slog"
	"ticket-reservation/common/constant"
	commonOtel "ticket-reservation/common/otel"
	"ticket-reservation/engine"
	"ticket-reservation/inbound/event"
	"ticket-reservation/outbound/postgres"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

func runQueueFinalizeCmd(ctx context.Context) {
	cfg := newCfg("env")

	shutdownTracer := commonOtel.InitTracerProvider(ctx, cfg)
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Error("failed to shutdown tracer provider", slog.Any("error", err))
		}
	}()

	db := newDb(cfg)
	defer db.Close()

	querier := postgres.New(db)
	providers := newProviderRegistry(cfg)

	natsConn := newNats(cfg)
	defer natsConn.Close()

	js := newJs(natsConn)
	createStreamWorkQueue(ctx, js)

	st, err := js.Stream(ctx, constant.QueueStreamName)
	if err != nil {
		log.Fatalln("failed to get stream", err)
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

	paymentEvent := event.PaymentEvent{
		Payments:  payments,
		Finalizer: finalizer,
		Timeout:   cfg.GetDuration("queue.finalize.timeout"),
	}

	cons, err := st.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       "consumer:finalize",
		FilterSubject: constant.PaymentWildcard,
		MaxDeliver:    cfg.GetInt("queue.finalize.max_deliver"),
		AckWait:       cfg.GetDuration("queue.finalize.ack_wait"),
	})
	if err != nil {
		log.Fatalln("failed to create consumer", err)
	}

	iter, err := cons.Messages()
	if err != nil {
		panic(err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				msg, err := iter.Next()
				if err != nil && err != jetstream.ErrMsgIteratorClosed {
					slog.ErrorContext(ctx, "Error fetching message", slog.Any(constant.LogFieldErr, err))
					continue
				}

				if msg == nil {
					continue
				}

				var eventErr error
				switch msg.Subject() {
				case constant.SubjectPaymentConfirmed:
					eventErr = paymentEvent.ConfirmedHandler(ctx, msg.Data())
				}

				if eventErr != nil {
					msg.NakWithDelay(1 * time.Second)
					continue
				}

				if err := msg.Ack(); err != nil {
					slog.ErrorContext(ctx, "Error acknowledging message",
						slog.Any(constant.LogFieldErr, err),
						slog.Any(constant.LogFieldPayload, string(msg.Data())),
						slog.String("subject", msg.Subject()),
					)
					continue
				}
			}
		}
	}()

	slog.InfoContext(ctx, "finalize queue consumer started")

	<-ctx.Done()

	iter.Stop()

	slog.InfoContext(ctx, "finalize queue consumer stopped")
}
