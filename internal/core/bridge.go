package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/harwoodlabs/meterbridge/internal/meter"
	"github.com/harwoodlabs/meterbridge/internal/telemetry"
	"github.com/harwoodlabs/meterbridge/internal/transform"
	"github.com/sirupsen/logrus"
)

// Version is the collector version stamped into common attributes and
// the startup log line.
const Version = "0.4.0"

// BaseTimeUnit is the unit every time-valued record is scaled to.
const BaseTimeUnit = time.Millisecond

const (
	defaultBatchSize = 1000
	defaultStep      = 30 * time.Second
)

// transformerSet bundles one transformer per meter shape, all sharing
// one interval tracker.
type transformerSet struct {
	gauge               *transform.GaugeTransformer
	timeGauge           *transform.TimeGaugeTransformer
	counter             *transform.CounterTransformer
	timer               *transform.TimerTransformer
	functionTimer       *transform.FunctionTimerTransformer
	distributionSummary *transform.DistributionSummaryTransformer
	longTaskTimer       *transform.LongTaskTimerTransformer
	bare                *transform.BareMeterTransformer
}

func newTransformerSet(tracker *transform.IntervalTracker) transformerSet {
	return transformerSet{
		gauge:               transform.NewGaugeTransformer(tracker),
		timeGauge:           transform.NewTimeGaugeTransformer(tracker, BaseTimeUnit),
		counter:             transform.NewCounterTransformer(tracker),
		timer:               transform.NewTimerTransformer(tracker, BaseTimeUnit),
		functionTimer:       transform.NewFunctionTimerTransformer(tracker, BaseTimeUnit),
		distributionSummary: transform.NewDistributionSummaryTransformer(tracker),
		longTaskTimer:       transform.NewLongTaskTimerTransformer(tracker, BaseTimeUnit),
		bare:                transform.NewBareMeterTransformer(tracker),
	}
}

// Bridge owns the publish cadence: on every step it drains the meter
// registry, converts each meter into records, groups them into
// size-bounded batches, and hands the batches to the telemetry client.
// One dedicated goroutine drives publishing, so cycles never overlap.
type Bridge struct {
	registry         *meter.Registry
	client           *telemetry.TelemetryClient
	tracker          *transform.IntervalTracker
	transformers     transformerSet
	commonAttributes telemetry.Attributes
	batchSize        int
	step             time.Duration
	logger           *logrus.Logger

	incomingShutdown chan struct{}
	shutdownOnce     sync.Once
	wg               *sync.WaitGroup

	mu      sync.Mutex
	running bool
}

type BridgeOptions struct {
	BatchSize   int
	Step        time.Duration
	ServiceName string
}

func NewBridge(
	registry *meter.Registry,
	client *telemetry.TelemetryClient,
	tracker *transform.IntervalTracker,
	opts BridgeOptions,
	logger *logrus.Logger,
) (*Bridge, error) {
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	step := opts.Step
	if step == 0 {
		step = defaultStep
	}
	if step < 0 {
		return nil, fmt.Errorf("step must be positive, got %v", step)
	}

	commonAttributes := telemetry.Attributes{
		"instrumentation.provider": "meterbridge",
		"collector.name":           "meterbridge",
		"collector.version":        Version,
	}
	if opts.ServiceName != "" {
		commonAttributes["service.name"] = opts.ServiceName
	}

	return &Bridge{
		registry:         registry,
		client:           client,
		tracker:          tracker,
		transformers:     newTransformerSet(tracker),
		commonAttributes: commonAttributes,
		batchSize:        batchSize,
		step:             step,
		logger:           logger,
		incomingShutdown: make(chan struct{}),
		wg:               &sync.WaitGroup{},
	}, nil
}

func (b *Bridge) CommonAttributes() telemetry.Attributes {
	return b.commonAttributes
}

// Start begins the periodic publish cadence on a dedicated goroutine.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	err := b.client.Start()
	if err != nil {
		return fmt.Errorf("error starting telemetry client: %v", err)
	}

	b.logger.Infof("meterbridge version %s is starting (step=%v batch_size=%d)", Version, b.step, b.batchSize)

	b.wg.Add(1)
	go b.runPublishLoop()
	b.running = true
	return nil
}

// Close stops the cadence, runs one final drain cycle so the in-flight
// aggregation window is handed to the telemetry client, and only then
// shuts the client down. Blocks until everything accepted has been
// delivered. Idempotent.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	b.shutdownOnce.Do(func() {
		close(b.incomingShutdown)
	})
	b.wg.Wait()

	err := b.client.Shutdown()
	if err != nil {
		b.logger.Errorf("error shutting down telemetry client: %v", err)
	}
	b.client.Wait()

	b.mu.Lock()
	b.running = false
	b.mu.Unlock()

	b.logger.Info("meterbridge shutdown complete")
	return err
}

func (b *Bridge) runPublishLoop() {
	ticker := time.NewTicker(b.step)
	defer func() {
		ticker.Stop()
		b.wg.Done()
	}()

	for {
		select {
		case <-b.incomingShutdown:
			// Final drain: flush the window in progress before the
			// telemetry client is torn down.
			b.publish()
			return
		case <-ticker.C:
			b.publish()
		}
	}
}

// publish runs one cycle: partition the live meter population into
// fixed-size groups, transform every meter in each group, send one
// batch per group, then advance the interval tracker exactly once.
func (b *Bridge) publish() {
	meters := b.registry.Meters()

	for start := 0; start < len(meters); start += b.batchSize {
		end := start + b.batchSize
		if end > len(meters) {
			end = len(meters)
		}

		var metrics []telemetry.Metric
		for _, m := range meters[start:end] {
			metrics = append(metrics, b.transformMeter(m)...)
		}

		err := b.client.SendBatch(telemetry.MetricBatch{
			Metrics:          metrics,
			CommonAttributes: b.commonAttributes,
		})
		if err != nil {
			b.logger.Errorf("error handing off metric batch: %v", err)
		}
	}

	b.tracker.Tick()
}

// transformMeter routes one meter to its shape's transformer, most
// specific shape first. Unrecognized shapes fall through to the bare
// transformer so no meter is ever silently dropped.
func (b *Bridge) transformMeter(m meter.Meter) []telemetry.Metric {
	switch shaped := m.(type) {
	case *meter.TimeGauge:
		return b.transformers.timeGauge.Transform(shaped)
	case *meter.Gauge:
		return b.transformers.gauge.Transform(shaped)
	case *meter.Timer:
		return b.transformers.timer.Transform(shaped)
	case *meter.FunctionTimer:
		return b.transformers.functionTimer.Transform(shaped)
	case *meter.Counter:
		return b.transformers.counter.Transform(shaped)
	case *meter.DistributionSummary:
		return b.transformers.distributionSummary.Transform(shaped)
	case *meter.LongTaskTimer:
		return b.transformers.longTaskTimer.Transform(shaped)
	case *meter.FunctionCounter:
		return b.transformers.counter.Transform(shaped)
	default:
		return b.transformers.bare.Transform(shaped)
	}
}
