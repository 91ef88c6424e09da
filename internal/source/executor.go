// Package source builds and sends the HTTP request for one source and
// hands the response to the parser. All three configured source kinds
// (http, metadata, oauth2) share this one request/parse pipeline; they
// differ only in how their SourceSpec is populated, not in how it is
// executed.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/internal/parser"
	"github.com/AleksandrNi/token-agent/internal/tokencache"
	"github.com/AleksandrNi/token-agent/internal/valueref"
	"github.com/AleksandrNi/token-agent/pkg/metrics"
	"github.com/AleksandrNi/token-agent/pkg/tracing"
)

// defaultTimeout bounds every outbound fetch; net/http's default client
// imposes none, so one is set explicitly here.
const defaultTimeout = 30 * time.Second

// Executor fetches and parses the tokens for a single source.
type Executor struct {
	client  *http.Client
	cache   *tokencache.Cache
	parser  *parser.Parser
	log     *logrus.Entry
	metrics *metrics.Collector
	tracer  *tracing.TracerProvider
}

// New creates an Executor sharing the given cache, parser, and
// instrumentation. tracer may be nil to disable span emission.
func New(cache *tokencache.Cache, p *parser.Parser, log *logrus.Entry, collector *metrics.Collector, tracer *tracing.TracerProvider) *Executor {
	return &Executor{
		client:  &http.Client{Timeout: defaultTimeout},
		cache:   cache,
		parser:  p,
		log:     log,
		metrics: collector,
		tracer:  tracer,
	}
}

// Fetch builds and sends the configured request for spec, then parses the
// response into TokenRecords. A missing Ref/Template dependency is a hard
// fetch failure, surfaced for the retry engine to handle.
func (e *Executor) Fetch(ctx context.Context, spec model.SourceSpec, safetyMargin int64) ([]model.TokenRecord, error) {
	correlationID := uuid.New().String()

	if e.tracer != nil {
		var end func()
		ctx, end = e.startSpan(ctx, spec.ID, correlationID)
		defer end()
	}

	req, err := e.buildRequest(ctx, spec)
	if err != nil {
		e.logFailure(spec.ID, correlationID, "building request failed", err)
		return nil, model.NewKindError(model.ErrRefMissing, fmt.Sprintf("source %s: building request", spec.ID), err)
	}

	timer := metrics.NewTimer()
	resp, err := e.client.Do(req)
	if err != nil {
		e.recordFetch(spec.ID, "transport_error", timer)
		e.logFailure(spec.ID, correlationID, "fetch transport error", err)
		return nil, model.NewKindError(model.ErrFetchTransport, fmt.Sprintf("source %s", spec.ID), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.recordFetch(spec.ID, "read_error", timer)
		e.logFailure(spec.ID, correlationID, "reading response body failed", err)
		return nil, model.NewKindError(model.ErrFetchTransport, fmt.Sprintf("source %s: reading response body", spec.ID), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.recordFetch(spec.ID, "http_status", timer)
		e.logFailure(spec.ID, correlationID, fmt.Sprintf("fetch returned status %d", resp.StatusCode), nil)
		return nil, model.NewKindError(model.ErrFetchHTTPStatus, fmt.Sprintf("source %s: status %d", spec.ID, resp.StatusCode), nil)
	}

	e.recordFetch(spec.ID, "ok", timer)

	records := e.parser.Parse(ctx, spec.ID, spec.Parse, resp.Header, body, safetyMargin)
	return records, nil
}

// logFailure emits one fetch failure line carrying the source id and the
// correlation id attached to that fetch's trace span, so a span and its
// log lines can be correlated after the fact.
func (e *Executor) logFailure(sourceID, correlationID, msg string, err error) {
	if e.log == nil {
		return
	}
	fields := logrus.Fields{"source": sourceID, "correlation_id": correlationID}
	if err != nil {
		fields["error"] = err
	}
	e.log.WithFields(fields).Warn(msg)
}

func (e *Executor) recordFetch(sourceID, status string, timer metrics.Timer) {
	if e.metrics != nil {
		e.metrics.RecordFetch(sourceID, status, timer.Elapsed())
	}
}

func (e *Executor) startSpan(ctx context.Context, sourceID, correlationID string) (context.Context, func()) {
	spanCtx, span := e.tracer.StartSpan(ctx, tracing.SpanSourceFetch,
		tracing.AttributeSourceID.String(sourceID),
		tracing.AttributeCorrelationID.String(correlationID),
	)
	return spanCtx, func() { span.End() }
}

func (e *Executor) buildRequest(ctx context.Context, spec model.SourceSpec) (*http.Request, error) {
	headers, err := valueref.ResolveMap(spec.Request.Headers, e.cache)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	contentType := ""

	switch {
	case len(spec.Request.Body) > 0:
		resolved, err := valueref.ResolveMap(spec.Request.Body, e.cache)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(toAnyMap(resolved))
		if err != nil {
			return nil, fmt.Errorf("marshaling JSON body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
		contentType = "application/json"

	case len(spec.Request.Form) > 0:
		resolved, err := valueref.ResolveMap(spec.Request.Form, e.cache)
		if err != nil {
			return nil, err
		}
		form := url.Values{}
		for k, v := range resolved {
			form.Set(k, v)
		}
		bodyReader = bytes.NewReader([]byte(form.Encode()))
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, string(spec.Request.Method), spec.Request.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("constructing request: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return req, nil
}

func toAnyMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
