package otel

import (
	"context"
	"log"

	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/spf13/viper"
)

var Tracer trace.Tracer = otelglobal.Tracer("ticket-reservation")

// InitTracerProvider wires the otlp grpc exporter and installs it as the
// global provider. The returned func flushes and shuts the provider down.
func InitTracerProvider(ctx context.Context, cfg *viper.Viper) func(context.Context) error {
	if !cfg.GetBool("otel.enabled") {
		return func(context.Context) error { return nil }
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.GetString("otel.endpoint")),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		log.Fatalln("unable to create otlp exporter", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName("ticket-reservation"),
		)),
	)

	otelglobal.SetTracerProvider(tp)
	Tracer = tp.Tracer("ticket-reservation")

	return tp.Shutdown
}
