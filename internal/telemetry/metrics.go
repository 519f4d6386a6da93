package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the instruments shared by the API and the worker.
type Metrics struct {
	RequestCounter   metric.Int64Counter
	RequestDuration  metric.Float64Histogram
	PipelineDuration metric.Float64Histogram
	PagesOCRed       metric.Int64Counter
	ChunksStored     metric.Int64Counter
	SearchDuration   metric.Float64Histogram
}

// InitMetrics registers every instrument against the global meter.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("knowledge-ingest-platform")

	var err error
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	seconds := func(name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		return h
	}

	m := &Metrics{
		RequestCounter:   counter("http.requests.total", "Total HTTP requests"),
		RequestDuration:  seconds("http.request.duration", "HTTP request duration in seconds"),
		PipelineDuration: seconds("ingest.pipeline.duration", "Document pipeline duration in seconds"),
		PagesOCRed:       counter("ingest.pages.ocr.total", "Total pages sent through OCR"),
		ChunksStored:     counter("ingest.chunks.stored.total", "Total chunks written to the knowledge store"),
		SearchDuration:   seconds("search.duration", "Similarity search duration in seconds"),
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	)
	m.RequestCounter.Add(context.Background(), 1, attrs)
	m.RequestDuration.Record(context.Background(), duration, attrs)
}

// RecordPipeline tags each run with its terminal status and the dominant
// extraction method so OCR-heavy batches stand out.
func (m *Metrics) RecordPipeline(duration float64, status, method string) {
	m.PipelineDuration.Record(context.Background(), duration, metric.WithAttributes(
		attribute.String("pipeline.status", status),
		attribute.String("pipeline.method", method),
	))
}

func (m *Metrics) RecordPagesOCRed(pages int64) {
	m.PagesOCRed.Add(context.Background(), pages)
}

func (m *Metrics) RecordChunksStored(chunks int64, documentID string) {
	m.ChunksStored.Add(context.Background(), chunks, metric.WithAttributes(
		attribute.String("document.id", documentID),
	))
}

func (m *Metrics) RecordSearch(duration float64, results int) {
	m.SearchDuration.Record(context.Background(), duration, metric.WithAttributes(
		attribute.Int("search.results", results),
	))
}
