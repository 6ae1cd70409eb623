package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Kamar-Folarin/repo-ingest/internal/models"
)

// Config tunes a Processor
type Config struct {
	Size       int
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// ProgressFunc receives a copy of the progress after every batch.
type ProgressFunc func(models.BatchProgress)

// Processor handles batch processing of items
type Processor[T any] struct {
	config     Config
	onProgress ProgressFunc
}

// NewProcessor creates a new batch processor
func NewProcessor[T any](cfg Config, onProgress ProgressFunc) *Processor[T] {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Processor[T]{config: cfg, onProgress: onProgress}
}

// ProcessItems splits items into batches and runs processFn on them with a
// bounded worker pool. Failing batches are retried; the first error that
// survives retries is returned after all batches finish.
func (p *Processor[T]) ProcessItems(ctx context.Context, items []T, processFn func(ctx context.Context, batch []T) error) (models.BatchProgress, error) {
	totalItems := len(items)
	batchSize := p.config.Size
	totalBatches := (totalItems + batchSize - 1) / batchSize
	progress := models.BatchProgress{
		TotalBatches:   totalBatches,
		TotalItems:     totalItems,
		StartTime:      time.Now(),
		LastUpdateTime: time.Now(),
	}
	if totalItems == 0 {
		p.updateProgress(progress)
		return progress, nil
	}

	workerChan := make(chan struct{}, p.config.Workers)
	var wg sync.WaitGroup
	var processErr error
	var mu sync.Mutex

dispatch:
	for i := 0; i < totalBatches; i++ {
		select {
		case <-ctx.Done():
			mu.Lock()
			if processErr == nil {
				processErr = ctx.Err()
			}
			mu.Unlock()
			break dispatch
		case workerChan <- struct{}{}:
			wg.Add(1)
			go func(batchNum int) {
				defer wg.Done()
				defer func() { <-workerChan }()

				start := batchNum * batchSize
				end := start + batchSize
				if end > totalItems {
					end = totalItems
				}
				batch := items[start:end]

				err := p.processBatchWithRetry(ctx, batch, processFn)

				mu.Lock()
				defer mu.Unlock()
				progress.ProcessedBatches++
				if err != nil {
					if processErr == nil {
						processErr = err
					}
					progress.FailedItems += len(batch)
				} else {
					progress.ProcessedItems += len(batch)
				}
				progress.LastUpdateTime = time.Now()
				p.updateProgress(progress)
			}(i)
		}
	}

	wg.Wait()
	return progress, processErr
}

// processBatchWithRetry processes a batch with retry logic
func (p *Processor[T]) processBatchWithRetry(ctx context.Context, batch []T, processFn func(ctx context.Context, batch []T) error) error {
	var lastErr error
	for retry := 0; retry <= p.config.MaxRetries; retry++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := processFn(ctx, batch)
		if err == nil {
			return nil
		}
		lastErr = err

		if retry < p.config.MaxRetries && p.config.RetryDelay > 0 {
			backoff := p.config.RetryDelay * time.Duration(retry+1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed to process batch after %d retries: %w", p.config.MaxRetries, lastErr)
}

func (p *Processor[T]) updateProgress(progress models.BatchProgress) {
	if p.onProgress != nil {
		p.onProgress(progress)
	}
}
