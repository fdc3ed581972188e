package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "board-service/api"
	requestSpanName    = "board.api.request"
	requestEventName   = "board.api.request"
	requestEventDomain = "app"
	observabilityEvent = "observability.event"

	attrRoute      = "http.route"
	attrMethod     = "http.method"
	attrStatusCode = "http.status_code"
	attrOperation  = "board.request.operation"
	attrActor      = "board.request.actor_id"
	attrTotalMs    = "board.request.total_ms"
	attrAuthMs     = "board.request.auth_ms"
	attrHandleMs   = "board.request.handle_ms"
	attrErrorStage = "board.request.error_stage"
	attrErrorMsg   = "error.message"
)

// requestMetrics records one API request as a span plus a matching
// observability.event log entry.
type requestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	route          string
	method         string
	operation      string
	actorID        string
	authDuration   time.Duration
	handleDuration time.Duration
	errorStage     string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route, operation string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(attrRoute, route),
			attribute.String(attrMethod, method),
			attribute.String(attrOperation, operation),
		),
	)
	return &requestMetrics{
		logger:    logger,
		span:      span,
		start:     time.Now(),
		route:     route,
		method:    method,
		operation: operation,
	}, spanCtx
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.authDuration = d
}

func (m *requestMetrics) ObserveHandle(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.handleDuration = d
}

func (m *requestMetrics) SetActor(id string) {
	if m == nil {
		return
	}
	m.actorID = id
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the span and emits the observability event.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrRoute, m.route),
		attribute.String(attrMethod, m.method),
		attribute.String(attrOperation, m.operation),
		attribute.Int(attrStatusCode, status),
		attribute.Float64(attrTotalMs, durationToMillis(time.Since(m.start))),
	}
	if m.actorID != "" {
		attrs = append(attrs, attribute.String(attrActor, m.actorID))
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrAuthMs, durationToMillis(m.authDuration)))
	}
	if m.handleDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrHandleMs, durationToMillis(m.handleDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrErrorStage, m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String(attrErrorMsg, err.Error()))
	}

	severityText, severityNumber := severityForStatus(status, err)
	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", requestEventName),
		attribute.String("event.domain", requestEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		if err != nil || status >= http.StatusInternalServerError {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	logged := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		logged[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      logged,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	m.logger.WithFields(fields).Log(levelForSeverity(severityNumber), observabilityEvent)
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError, err != nil && status < http.StatusBadRequest:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func levelForSeverity(n int) log.Level {
	switch {
	case n >= 17:
		return log.ErrorLevel
	case n >= 13:
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
