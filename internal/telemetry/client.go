package telemetry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BatchSender owns delivery of one MetricBatch to a telemetry backend,
// including any retry/backoff policy. Shutdown must drain anything the
// sender has already accepted before returning.
type BatchSender interface {
	SendBatch(ctx context.Context, batch MetricBatch) error
	Shutdown(ctx context.Context) error
}

// TelemetryClient decouples the publish path from network delivery.
// SendBatch hands a batch to a dedicated worker and returns without
// waiting for the backend. Shutdown is idempotent and non-blocking;
// use Wait() to block until every accepted batch has been delivered
// and the underlying sender has shut down.
type TelemetryClient struct {
	sender    BatchSender
	batchChan chan MetricBatch
	auditMode bool
	wg        *sync.WaitGroup
	logger    *logrus.Logger

	mu      sync.Mutex
	running bool
}

func NewTelemetryClient(sender BatchSender, auditMode bool, logger *logrus.Logger) *TelemetryClient {
	return &TelemetryClient{
		sender:    sender,
		batchChan: make(chan MetricBatch),
		auditMode: auditMode,
		wg:        &sync.WaitGroup{},
		logger:    logger,
	}
}

func (tc *TelemetryClient) Start() error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.running {
		return nil
	}

	tc.wg.Add(1)
	go tc.runBatchHandler()
	tc.running = true
	return nil
}

// SendBatch accepts a batch for asynchronous delivery. The batch must
// not be mutated by the caller after handoff.
func (tc *TelemetryClient) SendBatch(batch MetricBatch) error {
	tc.mu.Lock()
	if !tc.running {
		tc.mu.Unlock()
		return fmt.Errorf("telemetry client is not running")
	}
	tc.mu.Unlock()

	if tc.auditMode {
		tc.logger.Infof(
			"audit: accepted batch %s with %d metrics",
			uuid.NewString(),
			len(batch.Metrics),
		)
	}

	tc.batchChan <- batch
	return nil
}

func (tc *TelemetryClient) Shutdown() error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if !tc.running {
		return nil
	}

	close(tc.batchChan)
	tc.running = false
	return nil
}

func (tc *TelemetryClient) Wait() {
	tc.wg.Wait()
}

func (tc *TelemetryClient) runBatchHandler() {
	var internalWg sync.WaitGroup

	defer func() {
		internalWg.Wait()
		err := tc.sender.Shutdown(context.Background())
		if err != nil {
			tc.logger.Errorf("error shutting down batch sender: %v", err)
		}
		tc.wg.Done()
	}()

	tc.logger.Info("telemetry client started")

	for batch := range tc.batchChan {
		internalWg.Add(1)
		go func(b MetricBatch) {
			defer internalWg.Done()
			err := tc.sender.SendBatch(context.Background(), b)
			if err != nil {
				tc.logger.Errorf("error delivering metric batch: %v", err)
			}
		}(batch)
	}

	tc.logger.Info("batch channel closed. draining in-flight deliveries")
}
