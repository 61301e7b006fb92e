package exporters

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"testing"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"github.com/harwoodlabs/meterbridge/internal/config"
	"github.com/harwoodlabs/meterbridge/internal/telemetry"
	"github.com/sirupsen/logrus"
)

type mockMetricsApi struct {
	submitMetricsCalls  int
	submitMetricsInput  datadogV2.MetricPayload
	submitMetricsErrors int // fail this many leading calls
}

func (m *mockMetricsApi) SubmitMetrics(
	ctx context.Context,
	body datadogV2.MetricPayload,
	o ...datadogV2.SubmitMetricsOptionalParameters,
) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	m.submitMetricsCalls++
	m.submitMetricsInput = body

	resp := &http.Response{
		StatusCode: http.StatusAccepted,
		Status:     "202 Accepted",
	}

	if m.submitMetricsCalls <= m.submitMetricsErrors {
		return datadogV2.IntakePayloadAccepted{}, resp, errors.New("intake unavailable")
	}
	return datadogV2.IntakePayloadAccepted{}, resp, nil
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testBatch() telemetry.MetricBatch {
	return telemetry.MetricBatch{
		Metrics: []telemetry.Metric{
			telemetry.NewGaugeMetric(
				"queue.size",
				1_700_000_000_000,
				3,
				telemetry.Attributes{"queue": "ingest"},
			),
			telemetry.NewCountMetric("requests", 1_700_000_000_000, 5, nil),
			telemetry.NewSummaryMetric("request.duration", 1_700_000_000_000, 2, 40, 10, 30, nil),
		},
		CommonAttributes: telemetry.Attributes{"service.name": "checkout"},
	}
}

func TestGetDatadogContext(t *testing.T) {
	t.Run("api key", func(t *testing.T) {
		cfg := &config.MeterbridgeConfig{
			APIKey:  "test-api-key",
			Datadog: &config.DatadogConfig{},
		}

		ctx := GetDatadogContext(cfg)
		ctxKeys, ok := ctx.Value(datadog.ContextAPIKeys).(map[string]datadog.APIKey)
		if !ok {
			t.Fatalf("expected api keys to be set in Datadog context")
		}
		if ctxKeys["apiKeyAuth"].Key != "test-api-key" {
			t.Errorf("expected apiKeyAuth to be test-api-key, got %s", ctxKeys["apiKeyAuth"].Key)
		}
		if ctx.Value(datadog.ContextServerVariables) != nil {
			t.Errorf("expected server variables to be nil")
		}
	})

	t.Run("license key falls back to apiKeyAuth", func(t *testing.T) {
		cfg := &config.MeterbridgeConfig{
			LicenseKey: "test-license-key",
			Datadog:    &config.DatadogConfig{},
		}

		ctx := GetDatadogContext(cfg)
		ctxKeys := ctx.Value(datadog.ContextAPIKeys).(map[string]datadog.APIKey)
		if ctxKeys["apiKeyAuth"].Key != "test-license-key" {
			t.Errorf("expected apiKeyAuth to carry the license key")
		}
	})

	t.Run("with site", func(t *testing.T) {
		cfg := &config.MeterbridgeConfig{
			APIKey:  "k",
			Datadog: &config.DatadogConfig{Site: "datadoghq.eu"},
		}

		ctx := GetDatadogContext(cfg)
		vars, ok := ctx.Value(datadog.ContextServerVariables).(map[string]string)
		if !ok {
			t.Fatalf("expected server variables in Datadog context")
		}
		if vars["site"] != "datadoghq.eu" {
			t.Errorf("expected site datadoghq.eu, got %s", vars["site"])
		}
	})
}

func TestGetTimeseries(t *testing.T) {
	series := getTimeseries(testBatch())

	// gauge + count + 4 expanded summary series
	if len(series) != 6 {
		t.Fatalf("expected 6 series, got %d", len(series))
	}

	byName := map[string]datadogV2.MetricSeries{}
	for _, s := range series {
		byName[s.Metric] = s
	}

	t.Run("gauge series", func(t *testing.T) {
		s, ok := byName["queue.size"]
		if !ok {
			t.Fatalf("missing queue.size series")
		}
		if s.GetType() != datadogV2.METRICINTAKETYPE_GAUGE {
			t.Errorf("expected gauge type")
		}
		if *s.Points[0].Value != 3 {
			t.Errorf("expected value 3, got %v", *s.Points[0].Value)
		}
		if *s.Points[0].Timestamp != 1_700_000_000 {
			t.Errorf("expected timestamp in epoch seconds, got %d", *s.Points[0].Timestamp)
		}
		if !slices.Contains(s.GetTags(), "queue:ingest") {
			t.Errorf("expected per-record tag, got %v", s.GetTags())
		}
		if !slices.Contains(s.GetTags(), "service.name:checkout") {
			t.Errorf("expected common attribute tag, got %v", s.GetTags())
		}
	})

	t.Run("count series", func(t *testing.T) {
		s, ok := byName["requests"]
		if !ok {
			t.Fatalf("missing requests series")
		}
		if s.GetType() != datadogV2.METRICINTAKETYPE_COUNT {
			t.Errorf("expected count type")
		}
	})

	t.Run("summary expands into component series", func(t *testing.T) {
		expectations := map[string]float64{
			"request.duration.count": 2,
			"request.duration.sum":   40,
			"request.duration.min":   10,
			"request.duration.max":   30,
		}
		for name, expected := range expectations {
			s, ok := byName[name]
			if !ok {
				t.Fatalf("missing %s series", name)
			}
			if *s.Points[0].Value != expected {
				t.Errorf("expected %s=%v, got %v", name, expected, *s.Points[0].Value)
			}
		}
	})
}

func TestDatadogBatchSenderSendBatch(t *testing.T) {
	t.Run("submits the converted payload", func(t *testing.T) {
		api := &mockMetricsApi{}
		sender := &DatadogBatchSender{
			api:            api,
			datadogContext: context.Background(),
			maxRetries:     3,
			logger:         newTestLogger(),
		}

		err := sender.SendBatch(context.Background(), testBatch())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if api.submitMetricsCalls != 1 {
			t.Errorf("expected one submission, got %d", api.submitMetricsCalls)
		}
		if len(api.submitMetricsInput.Series) != 6 {
			t.Errorf("expected 6 series in payload, got %d", len(api.submitMetricsInput.Series))
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		api := &mockMetricsApi{submitMetricsErrors: 2}
		sender := &DatadogBatchSender{
			api:            api,
			datadogContext: context.Background(),
			maxRetries:     3,
			logger:         newTestLogger(),
		}

		err := sender.SendBatch(context.Background(), testBatch())
		if err != nil {
			t.Fatalf("expected retries to succeed, got %v", err)
		}
		if api.submitMetricsCalls != 3 {
			t.Errorf("expected 3 attempts, got %d", api.submitMetricsCalls)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		api := &mockMetricsApi{submitMetricsErrors: 10}
		sender := &DatadogBatchSender{
			api:            api,
			datadogContext: context.Background(),
			maxRetries:     2,
			logger:         newTestLogger(),
		}

		err := sender.SendBatch(context.Background(), testBatch())
		if err == nil {
			t.Fatalf("expected an error after exhausting retries")
		}
		if api.submitMetricsCalls != 3 {
			t.Errorf("expected initial attempt plus 2 retries, got %d", api.submitMetricsCalls)
		}
	})

	t.Run("empty batch skips submission", func(t *testing.T) {
		api := &mockMetricsApi{}
		sender := &DatadogBatchSender{
			api:            api,
			datadogContext: context.Background(),
			maxRetries:     3,
			logger:         newTestLogger(),
		}

		err := sender.SendBatch(context.Background(), telemetry.MetricBatch{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if api.submitMetricsCalls != 0 {
			t.Errorf("expected no submission for an empty batch")
		}
	})
}

func TestNewDatadogBatchSender(t *testing.T) {
	cfg := &config.MeterbridgeConfig{
		Exporter: "datadog",
		APIKey:   "k",
		Datadog:  &config.DatadogConfig{},
	}

	sender, err := NewDatadogBatchSender(cfg, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.maxRetries != defaultMaxRetries {
		t.Errorf("expected default max retries, got %d", sender.maxRetries)
	}
	if err := sender.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error on shutdown: %v", err)
	}
}
