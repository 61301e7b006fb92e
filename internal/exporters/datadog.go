package exporters

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"github.com/cenkalti/backoff/v4"
	"github.com/harwoodlabs/meterbridge/internal/config"
	"github.com/harwoodlabs/meterbridge/internal/core"
	"github.com/harwoodlabs/meterbridge/internal/io"
	"github.com/harwoodlabs/meterbridge/internal/telemetry"
	"github.com/sirupsen/logrus"
)

const defaultMaxRetries = 3

type metricsApiClient interface {
	SubmitMetrics(
		ctx context.Context,
		body datadogV2.MetricPayload,
		o ...datadogV2.SubmitMetricsOptionalParameters,
	) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// DatadogBatchSender converts metric batches into Datadog timeseries
// payloads and submits them through the metrics API, retrying
// transient failures with exponential backoff.
type DatadogBatchSender struct {
	api            metricsApiClient
	datadogContext context.Context
	maxRetries     uint64
	logger         *logrus.Logger
	logFile        *os.File
}

var _ telemetry.BatchSender = &DatadogBatchSender{}

func NewDatadogBatchSender(
	cfg *config.MeterbridgeConfig,
	logDir string,
) (*DatadogBatchSender, error) {
	logger, logFile, err := io.CreateLogger(logDir, "datadog.log")
	if err != nil {
		return nil, fmt.Errorf("error creating datadog logger: %v", err)
	}

	datadogCfg := datadog.NewConfiguration()
	datadogCfg.UserAgent += " meterbridge/" + core.Version
	if cfg.Datadog.DisableCompression != nil {
		datadogCfg.Compress = !*cfg.Datadog.DisableCompression
	}
	if cfg.EndpointURL != "" {
		datadogCfg.Servers = datadog.ServerConfigurations{
			{URL: cfg.EndpointURL},
		}
	}

	client := datadog.NewAPIClient(datadogCfg)
	metricsApi := datadogV2.NewMetricsApi(client)

	maxRetries := uint64(defaultMaxRetries)
	if cfg.Datadog.MaxRetries != nil {
		maxRetries = uint64(*cfg.Datadog.MaxRetries)
	}

	return &DatadogBatchSender{
		api:            metricsApi,
		datadogContext: GetDatadogContext(cfg),
		maxRetries:     maxRetries,
		logger:         logger,
		logFile:        logFile,
	}, nil
}

func (dbs *DatadogBatchSender) SendBatch(ctx context.Context, batch telemetry.MetricBatch) error {
	series := getTimeseries(batch)
	if len(series) == 0 {
		return nil
	}
	payload := datadogV2.NewMetricPayload(series)

	submit := func() error {
		_, r, err := dbs.api.SubmitMetrics(dbs.datadogContext, *payload)
		if err != nil {
			dbs.logger.Errorf("error sending metrics batch to Datadog: %v", err)
			return err
		}
		dbs.logger.Infof("received %v response from Datadog", r.Status)
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), dbs.maxRetries),
		ctx,
	)
	return backoff.Retry(submit, policy)
}

func (dbs *DatadogBatchSender) Shutdown(ctx context.Context) error {
	// Submission is synchronous, so there is nothing buffered to drain.
	if dbs.logFile != nil {
		err := dbs.logFile.Close()
		dbs.logFile = nil
		return err
	}
	return nil
}

// GetDatadogContext builds the request context carrying API
// credentials and the optional site override. api_key and license_key
// are interchangeable here; config validation guarantees only one is
// set.
func GetDatadogContext(cfg *config.MeterbridgeConfig) context.Context {
	key := cfg.APIKey
	if key == "" {
		key = cfg.LicenseKey
	}

	keys := map[string]datadog.APIKey{
		"apiKeyAuth": {Key: key},
	}
	if cfg.Datadog.AppKey != "" {
		keys["appKeyAuth"] = datadog.APIKey{Key: cfg.Datadog.AppKey}
	}

	ctx := context.WithValue(context.Background(), datadog.ContextAPIKeys, keys)

	if cfg.Datadog.Site != "" {
		ctx = context.WithValue(
			ctx,
			datadog.ContextServerVariables,
			map[string]string{"site": cfg.Datadog.Site},
		)
	}

	return ctx
}

// getTimeseries flattens a batch into Datadog series: gauges and
// counts map one-to-one; a summary record expands into .count/.sum/
// .min/.max series. Batch common attributes become tags on every
// series.
func getTimeseries(batch telemetry.MetricBatch) []datadogV2.MetricSeries {
	commonTags := attributeTags(batch.CommonAttributes)

	series := make([]datadogV2.MetricSeries, 0, len(batch.Metrics))
	for _, metric := range batch.Metrics {
		tags := append(attributeTags(metric.Attributes), commonTags...)
		timestamp := metric.Timestamp / 1000

		switch metric.Kind {
		case telemetry.GaugeMetric:
			series = append(series, newSeries(
				metric.Name, datadogV2.METRICINTAKETYPE_GAUGE, timestamp, metric.Value, tags,
			))
		case telemetry.CountMetric:
			series = append(series, newSeries(
				metric.Name, datadogV2.METRICINTAKETYPE_COUNT, timestamp, metric.Value, tags,
			))
		case telemetry.SummaryMetric:
			series = append(series,
				newSeries(metric.Name+".count", datadogV2.METRICINTAKETYPE_COUNT, timestamp, float64(metric.Count), tags),
				newSeries(metric.Name+".sum", datadogV2.METRICINTAKETYPE_COUNT, timestamp, metric.Sum, tags),
				newSeries(metric.Name+".min", datadogV2.METRICINTAKETYPE_GAUGE, timestamp, metric.Min, tags),
				newSeries(metric.Name+".max", datadogV2.METRICINTAKETYPE_GAUGE, timestamp, metric.Max, tags),
			)
		}
	}

	return series
}

func newSeries(
	name string,
	seriesType datadogV2.MetricIntakeType,
	timestamp int64,
	value float64,
	tags []string,
) datadogV2.MetricSeries {
	point := datadogV2.MetricPoint{
		Timestamp: datadog.PtrInt64(timestamp),
		Value:     datadog.PtrFloat64(value),
	}
	series := datadogV2.NewMetricSeries(name, []datadogV2.MetricPoint{point})
	series.SetType(seriesType)
	series.SetTags(tags)
	return *series
}

func attributeTags(attrs telemetry.Attributes) []string {
	tags := make([]string, 0, len(attrs))
	for key, value := range attrs {
		tags = append(tags, fmt.Sprintf("%s:%v", key, value))
	}
	sort.Strings(tags)
	return tags
}
