package exporters

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/bombsimon/logrusr/v4"
	"github.com/harwoodlabs/meterbridge/internal/config"
	"github.com/harwoodlabs/meterbridge/internal/core"
	"github.com/harwoodlabs/meterbridge/internal/io"
	"github.com/harwoodlabs/meterbridge/internal/telemetry"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"
)

const otlpHandshakeTimeout = 7 * time.Second

// OTLPBatchSender converts metric batches into OTLP resource metrics
// and pushes them through an OTLP gRPC or HTTP exporter. Batch common
// attributes ride on the resource; per-record attributes ride on the
// data points.
type OTLPBatchSender struct {
	exporter  sdkmetric.Exporter
	resource  *resource.Resource
	startTime time.Time
	logger    *logrus.Logger
	logFile   *os.File
}

var _ telemetry.BatchSender = &OTLPBatchSender{}

func NewOTLPBatchSender(cfg *config.MeterbridgeConfig, logDir string) (*OTLPBatchSender, error) {
	logger, logFile, err := io.CreateLogger(logDir, "otel.log")
	if err != nil {
		return nil, fmt.Errorf("error creating otel logger: %v", err)
	}

	// Route OTel SDK internals into the exporter log.
	otel.SetLogger(logrusr.New(logger))

	var metricExporter sdkmetric.Exporter
	switch cfg.OTLP.Protocol {
	case "http":
		metricExporter, err = newOTLPMetricsHTTPExporter(cfg)
	case "grpc":
		metricExporter, err = newOTLPMetricsGRPCExporter(cfg)
	default:
		err = fmt.Errorf("unsupported OTLP protocol: %q", cfg.OTLP.Protocol)
	}
	if err != nil {
		return nil, err
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	return &OTLPBatchSender{
		exporter:  metricExporter,
		resource:  res,
		startTime: time.Now(),
		logger:    logger,
		logFile:   logFile,
	}, nil
}

func (obs *OTLPBatchSender) SendBatch(ctx context.Context, batch telemetry.MetricBatch) error {
	metrics := make([]metricdata.Metrics, 0, len(batch.Metrics))
	for _, metric := range batch.Metrics {
		metrics = append(metrics, toOTLPMetric(metric, batch.CommonAttributes, obs.startTime))
	}
	if len(metrics) == 0 {
		return nil
	}

	rm := metricdata.ResourceMetrics{
		Resource: obs.resource,
		ScopeMetrics: []metricdata.ScopeMetrics{
			{
				Scope: instrumentation.Scope{
					Name:    "meterbridge",
					Version: core.Version,
				},
				Metrics: metrics,
			},
		},
	}

	err := obs.exporter.Export(ctx, &rm)
	if err != nil {
		obs.logger.Errorf("error exporting metric batch over OTLP: %v", err)
		return err
	}
	return nil
}

func (obs *OTLPBatchSender) Shutdown(ctx context.Context) error {
	err := obs.exporter.Shutdown(ctx)
	if obs.logFile != nil {
		obs.logFile.Close()
		obs.logFile = nil
	}
	return err
}

func toOTLPMetric(metric telemetry.Metric, common telemetry.Attributes, startTime time.Time) metricdata.Metrics {
	attrs := attributeSet(metric.Attributes, common)
	ts := time.UnixMilli(metric.Timestamp)

	converted := metricdata.Metrics{Name: metric.Name}

	switch metric.Kind {
	case telemetry.CountMetric:
		converted.Data = metricdata.Sum[float64]{
			Temporality: metricdata.CumulativeTemporality,
			IsMonotonic: true,
			DataPoints: []metricdata.DataPoint[float64]{
				{Attributes: attrs, StartTime: startTime, Time: ts, Value: metric.Value},
			},
		}
	case telemetry.SummaryMetric:
		converted.Data = metricdata.Summary{
			DataPoints: []metricdata.SummaryDataPoint{
				{
					Attributes: attrs,
					StartTime:  startTime,
					Time:       ts,
					Count:      uint64(metric.Count),
					Sum:        metric.Sum,
					// Quantiles 0 and 1 carry the window's min and max.
					QuantileValues: []metricdata.QuantileValue{
						{Quantile: 0, Value: metric.Min},
						{Quantile: 1, Value: metric.Max},
					},
				},
			},
		}
	default:
		converted.Data = metricdata.Gauge[float64]{
			DataPoints: []metricdata.DataPoint[float64]{
				{Attributes: attrs, Time: ts, Value: metric.Value},
			},
		}
	}

	return converted
}

func attributeSet(attrs telemetry.Attributes, common telemetry.Attributes) attribute.Set {
	kvs := make([]attribute.KeyValue, 0, len(attrs)+len(common))
	for _, source := range []telemetry.Attributes{common, attrs} {
		for key, value := range source {
			switch v := value.(type) {
			case string:
				kvs = append(kvs, attribute.String(key, v))
			case bool:
				kvs = append(kvs, attribute.Bool(key, v))
			case int64:
				kvs = append(kvs, attribute.Int64(key, v))
			case int:
				kvs = append(kvs, attribute.Int(key, v))
			case float64:
				kvs = append(kvs, attribute.Float64(key, v))
			default:
				kvs = append(kvs, attribute.String(key, fmt.Sprintf("%v", v)))
			}
		}
	}
	return attribute.NewSet(kvs...)
}

func newResource(serviceName string) (*resource.Resource, error) {
	if serviceName == "" {
		serviceName = "meterbridge"
	}
	return resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(core.Version),
		),
	)
}

func newTLSConfig(cfg *config.TLSConfig) (*tls.Config, error) {
	tlsCfg := tls.Config{}

	tlsCfg.InsecureSkipVerify = cfg.InsecureSkipVerify
	if cfg.CAFile != "" {
		caPem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("error reading CA file: %v", err)
		}
		rootCAs := x509.NewCertPool()
		if !rootCAs.AppendCertsFromPEM(caPem) {
			return nil, fmt.Errorf("failed to append CA cert")
		}
		tlsCfg.RootCAs = rootCAs
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("error loading TLS cert/key pair: %v", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return &tlsCfg, nil
}

func newOTLPMetricsGRPCExporter(cfg *config.MeterbridgeConfig) (sdkmetric.Exporter, error) {
	options := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithHeaders(cfg.OTLP.Headers),
	}
	if cfg.EndpointURL != "" {
		options = append(options, otlpmetricgrpc.WithEndpointURL(cfg.EndpointURL))
	}

	tlsCfg, err := newTLSConfig(&cfg.OTLP.TLS)
	if err != nil {
		return nil, fmt.Errorf("error generating TLS config: %v", err)
	}

	if !cfg.OTLP.TLS.Insecure {
		options = append(options, otlpmetricgrpc.WithTLSCredentials(credentials.NewTLS(tlsCfg)))
	} else {
		options = append(options, otlpmetricgrpc.WithInsecure())
	}

	if cfg.OTLP.Timeout != nil {
		options = append(options, otlpmetricgrpc.WithTimeout(time.Duration(*cfg.OTLP.Timeout)*time.Second))
	}

	if cfg.OTLP.Compression != "" {
		options = append(options, otlpmetricgrpc.WithCompressor(cfg.OTLP.Compression))
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), otlpHandshakeTimeout)
	defer cancel()
	metricExporter, err := otlpmetricgrpc.New(timeoutCtx, options...)
	if err != nil {
		return nil, fmt.Errorf("error creating OTLP gRPC metrics exporter: %v", err)
	}

	return metricExporter, nil
}

func newOTLPMetricsHTTPExporter(cfg *config.MeterbridgeConfig) (sdkmetric.Exporter, error) {
	options := []otlpmetrichttp.Option{
		otlpmetrichttp.WithHeaders(cfg.OTLP.Headers),
	}
	if cfg.EndpointURL != "" {
		options = append(options, otlpmetrichttp.WithEndpointURL(cfg.EndpointURL))
	}

	tlsCfg, err := newTLSConfig(&cfg.OTLP.TLS)
	if err != nil {
		return nil, fmt.Errorf("error generating TLS config: %v", err)
	}

	if !cfg.OTLP.TLS.Insecure {
		options = append(options, otlpmetrichttp.WithTLSClientConfig(tlsCfg))
	} else {
		options = append(options, otlpmetrichttp.WithInsecure())
	}

	if cfg.OTLP.Timeout != nil {
		options = append(options, otlpmetrichttp.WithTimeout(time.Duration(*cfg.OTLP.Timeout)*time.Second))
	}

	if cfg.OTLP.Compression != "" {
		options = append(options, otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression))
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), otlpHandshakeTimeout)
	defer cancel()
	metricExporter, err := otlpmetrichttp.New(timeoutCtx, options...)
	if err != nil {
		return nil, fmt.Errorf("error creating OTLP HTTP metrics exporter: %v", err)
	}

	return metricExporter, nil
}
