package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/connector-manager/internal/config"
	"github.com/openkcm/connector-manager/internal/middleware/responsewriter"
)

type meters struct {
	app     commoncfg.Application
	counter metric.Int64Counter
	hist    metric.Int64Histogram
}

func newMeters(ctx context.Context, cfg *config.Config) (*meters, error) {
	meter := otel.Meter(
		"connector-manager/"+cfg.Application.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(cfg.Application)...),
	)

	counter, err := meter.Int64Counter(
		"http.request_count",
		metric.WithDescription("Incoming request count"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return nil, oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating request_count meter")
	}

	hist, err := meter.Int64Histogram(
		"http.duration",
		metric.WithDescription("Incoming end to end duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return nil, oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating duration meter")
	}

	return &meters{app: cfg.Application, counter: counter, hist: hist}, nil
}

// traced covers a handler with a request id, a span and the request
// metrics, labelled with the operation and the response status.
func (m *meters) traced(operation string, next http.HandlerFunc) http.Handler {
	traceAttrs := otlp.CreateAttributesFrom(m.app, attribute.String(commoncfg.AttrOperation, operation))
	tracer := otel.Tracer(operation, trace.WithInstrumentationAttributes(traceAttrs...))

	return responsewriter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := slogctx.With(r.Context(),
			commoncfg.AttrRequestID, uuid.NewString(),
			commoncfg.AttrOperation, operation,
		)

		parentCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))

		ctx, span := tracer.Start(parentCtx, operation+"-span", trace.WithAttributes(traceAttrs...))
		defer span.End()

		requestStartTime := time.Now()

		defer func() {
			elapsedTime := time.Since(requestStartTime)

			status := http.StatusOK
			if rec, err := responsewriter.RecorderFromContext(r.Context()); err == nil {
				status = rec.Status()
			}

			attrs := metric.WithAttributes(
				otlp.CreateAttributesFrom(m.app,
					attribute.String("userAgent", r.UserAgent()),
					attribute.String(commoncfg.AttrOperation, operation),
					attribute.String("status", strconv.Itoa(status)),
				)...,
			)

			m.counter.Add(ctx, 1, attrs)
			m.hist.Record(ctx, elapsedTime.Milliseconds(), attrs)

			slogctx.Info(ctx, "Finished request", "status", status, "duration", elapsedTime)
		}()

		slogctx.Debug(ctx, "Processing request", "path", r.URL.Path)
		next(w, r.WithContext(ctx))
	}))
}
