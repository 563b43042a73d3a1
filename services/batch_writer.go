package services

import (
	"context"
	"time"

	"smartoffice/config"
	"smartoffice/metrics"
	"smartoffice/models"

	"go.uber.org/zap"
)

// ReadingSink receives flushed batches of sensor readings.
type ReadingSink interface {
	WriteBatch(ctx context.Context, batch []models.SensorReading) error
}

// BatchWriterService buffers sensor readings and flushes them to a sink when the batch
// is full, when the batch timeout elapses, and on shutdown.
type BatchWriterService struct {
	sink         ReadingSink
	logger       *zap.Logger
	input        chan models.SensorReading
	buffer       []models.SensorReading
	flushTimer   *time.Timer
	maxBatchSize int
	batchTimeout time.Duration
	opTimeout    time.Duration
	shutdownChan chan bool
}

// NewBatchWriterService creates a new batch writer service
func NewBatchWriterService(cfg *config.Config, sink ReadingSink, logger *zap.Logger) *BatchWriterService {
	size := cfg.FirebaseBatchSize
	if size <= 0 {
		size = 50
	}
	timeout := time.Duration(cfg.FirebaseBatchTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BatchWriterService{
		sink:         sink,
		logger:       logger,
		input:        make(chan models.SensorReading, size*2),
		buffer:       make([]models.SensorReading, 0, size),
		maxBatchSize: size,
		batchTimeout: timeout,
		opTimeout:    cfg.OperationTimeout,
		shutdownChan: make(chan bool, 1),
	}
}

// Add queues a reading without blocking; false means the queue was full.
func (bw *BatchWriterService) Add(reading models.SensorReading) bool {
	select {
	case bw.input <- reading:
		return true
	default:
		return false
	}
}

// Start begins the batch writer service
func (bw *BatchWriterService) Start(ctx context.Context) {
	bw.logger.Info("Starting batch writer service",
		zap.Int("max_batch_size", bw.maxBatchSize),
		zap.Duration("batch_timeout", bw.batchTimeout))

	bw.flushTimer = time.NewTimer(bw.batchTimeout)
	defer bw.flushTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			bw.logger.Info("Batch writer received shutdown signal")
			bw.drainInput()
			bw.flushBuffer()
			bw.shutdownChan <- true
			return

		case reading := <-bw.input:
			bw.buffer = append(bw.buffer, reading)

			if len(bw.buffer) >= bw.maxBatchSize {
				bw.logger.Debug("Buffer full, flushing mirror batch",
					zap.Int("buffer_size", len(bw.buffer)))

				if !bw.flushTimer.Stop() {
					select {
					case <-bw.flushTimer.C:
					default:
					}
				}

				bw.flushBuffer()
				bw.flushTimer.Reset(bw.batchTimeout)
			}

		case <-bw.flushTimer.C:
			if len(bw.buffer) > 0 {
				bw.logger.Debug("Batch timeout reached, flushing mirror batch",
					zap.Int("buffer_size", len(bw.buffer)))
				bw.flushBuffer()
			}
			bw.flushTimer.Reset(bw.batchTimeout)
		}
	}
}

func (bw *BatchWriterService) drainInput() {
	for {
		select {
		case reading := <-bw.input:
			bw.buffer = append(bw.buffer, reading)
		default:
			return
		}
	}
}

// flushBuffer writes the buffer once. A failed batch is dropped, not retried.
func (bw *BatchWriterService) flushBuffer() {
	if len(bw.buffer) == 0 {
		return
	}
	batch := make([]models.SensorReading, len(bw.buffer))
	copy(batch, bw.buffer)
	bw.buffer = bw.buffer[:0]

	ctx, cancel := context.WithTimeout(context.Background(), bw.opTimeout)
	defer cancel()

	err := bw.sink.WriteBatch(ctx, batch)
	metrics.ObserveMirrorBatch(err)
	if err != nil {
		bw.logger.Error("Failed to flush mirror batch, readings dropped",
			zap.Int("batch_size", len(batch)),
			zap.Error(err))
		return
	}
	bw.logger.Info("Flushed mirror batch", zap.Int("batch_size", len(batch)))
}

// WaitForShutdown waits for the batch writer to complete shutdown
func (bw *BatchWriterService) WaitForShutdown(timeout time.Duration) bool {
	select {
	case <-bw.shutdownChan:
		return true
	case <-time.After(timeout):
		return false
	}
}
