// Package sync executes transfer jobs: it enumerates the job source,
// filters it and moves every matching file through a transfer client.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/juste-un-gars/anemone_transfer/internal/job"
	"github.com/juste-un-gars/anemone_transfer/internal/metrics"
	"github.com/juste-un-gars/anemone_transfer/internal/scanner"
	"github.com/juste-un-gars/anemone_transfer/internal/transfer"
)

// ClientFactory opens a transfer client for a connection profile
type ClientFactory interface {
	Open(ctx context.Context, name string) (transfer.Client, error)
}

// RunObserver receives progress of a run. Calls happen on the run goroutine.
type RunObserver interface {
	FileProcessed(summary *job.RunSummary, result job.TransferResult)
}

// ObserverFunc adapts a function to RunObserver
type ObserverFunc func(summary *job.RunSummary, result job.TransferResult)

// FileProcessed implements RunObserver
func (f ObserverFunc) FileProcessed(summary *job.RunSummary, result job.TransferResult) {
	f(summary, result)
}

// Orchestrator runs one execution of a job
type Orchestrator struct {
	factory  ClientFactory
	localFs  afero.Fs
	logger   *zap.Logger
	observer RunObserver
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator. localFs is the job-side filesystem.
func NewOrchestrator(factory ClientFactory, localFs afero.Fs, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if localFs == nil {
		localFs = afero.NewOsFs()
	}
	return &Orchestrator{
		factory: factory,
		localFs: localFs,
		logger:  logger.With(zap.String("component", "orchestrator")),
		now:     time.Now,
	}
}

// SetObserver installs the progress observer. Must be called before the first run.
func (o *Orchestrator) SetObserver(observer RunObserver) {
	o.observer = observer
}

// Run executes def once and returns the finalized summary. It never
// returns nil; failures before any file attempt are reported through
// the summary status.
func (o *Orchestrator) Run(ctx context.Context, def job.Definition) *job.RunSummary {
	summary := job.NewRunSummary(def, o.now())
	logger := o.logger.With(
		zap.Int64("job_id", def.ID),
		zap.String("job", def.Name),
		zap.String("direction", def.Direction.String()),
		zap.String("run_id", summary.RunID.String()),
	)

	metrics.RunsInProgress.Inc()
	defer metrics.RunsInProgress.Dec()

	logger.Info("run started",
		zap.String("source", def.SourcePath),
		zap.String("destination", def.DestinationPath),
		zap.Bool("recursive", def.IncludeSubfolders))

	o.execute(ctx, def, summary, logger)

	summary.Finalize(o.now())
	o.recordMetrics(summary)

	logger.Info("run completed",
		zap.String("status", string(summary.Status)),
		zap.Int("matched", summary.FilesMatched),
		zap.Int("completed", summary.FilesCompleted),
		zap.Int("failed", summary.FilesFailed),
		zap.Int("skipped", summary.FilesSkipped),
		zap.Int64("bytes", summary.TotalBytes),
		zap.Duration("duration", summary.Duration),
		zap.String("error", summary.Error))

	return summary
}

func (o *Orchestrator) execute(ctx context.Context, def job.Definition, summary *job.RunSummary, logger *zap.Logger) {
	if o.factory == nil {
		summary.Fail(ErrNoClientFactory)
		return
	}

	filter, err := scanner.NewFilter(def.Filter)
	if err != nil {
		logger.Error("invalid filter configuration", zap.Error(err))
		summary.Fail(fmt.Errorf("filter: %w", err))
		return
	}

	client, err := o.factory.Open(ctx, def.Connection)
	if err != nil {
		logger.Error("failed to open connection", zap.String("connection", def.Connection), zap.Error(err))
		summary.Fail(fmt.Errorf("connection: %w", err))
		return
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close connection", zap.Error(err))
		}
	}()

	if err := client.TestConnection(ctx); err != nil {
		logger.Error("connection test failed", zap.String("connection", def.Connection), zap.Error(err))
		summary.Fail(fmt.Errorf("connection: %w", err))
		return
	}

	policy := NewRetryPolicy(def.MaxRetries, def.RetryDelay(), logger)

	for fi, err := range o.sourceFiles(ctx, def, client) {
		if err != nil {
			if errors.Is(err, scanner.ErrRootUnavailable) {
				logger.Error("source unavailable", zap.String("source", def.SourcePath), zap.Error(err))
				summary.Fail(fmt.Errorf("enumerate: %w", err))
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				logger.Warn("run cancelled", zap.Int("attempted", summary.FilesMatched))
				summary.Fail(fmt.Errorf("%w: %w", ErrRunAborted, ctxErr))
				return
			}
			if errors.Is(err, scanner.ErrUnsafePath) {
				logger.Error("unsafe source entry rejected", zap.String("path", fi.Path), zap.Error(err))
				result := job.TransferResult{Path: fi.Path, Error: err.Error()}
				summary.AddResult(result)
				if o.observer != nil {
					o.observer.FileProcessed(summary, result)
				}
				continue
			}
			logger.Warn("cannot enumerate directory", zap.String("path", fi.Path), zap.Error(err))
			continue
		}

		if ok, reason := filter.Explain(fi); !ok {
			summary.FilesSkipped++
			logger.Debug("file skipped", zap.String("path", fi.RelPath), zap.String("reason", reason))
			continue
		}

		result := o.transferFile(ctx, def, client, policy, fi, logger)
		summary.AddResult(result)
		if o.observer != nil {
			o.observer.FileProcessed(summary, result)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn("run cancelled", zap.Int("attempted", summary.FilesMatched))
			summary.Fail(fmt.Errorf("%w: %w", ErrRunAborted, ctxErr))
			return
		}
	}
}

// transferFile moves one file under the retry policy then, on success,
// deletes the source when the job asks for it.
func (o *Orchestrator) transferFile(ctx context.Context, def job.Definition, client transfer.Client, policy *RetryPolicy, fi scanner.FileInfo, logger *zap.Logger) job.TransferResult {
	dest := destinationPath(def, fi)
	result := job.TransferResult{
		Path:            fi.Path,
		DestinationPath: dest,
	}

	var bytes int64
	res := policy.Execute(ctx, string(def.Direction)+" "+fi.RelPath, func(ctx context.Context) error {
		var err error
		if def.Direction == job.DirectionDownload {
			bytes, err = client.DownloadFile(ctx, fi.Path, dest)
		} else {
			bytes, err = client.UploadFile(ctx, fi.Path, dest)
		}
		return err
	})

	result.Attempts = res.Attempts
	if res.Attempts > 1 {
		metrics.RetriesTotal.Add(float64(res.Attempts - 1))
	}
	if res.Err != nil {
		category, _ := ClassifyError(res.Err)
		logger.Error("file transfer failed",
			zap.String("path", fi.Path),
			zap.String("destination", dest),
			zap.Int("attempts", res.Attempts),
			zap.String("category", string(category)),
			zap.Error(res.Err))
		result.Error = res.Err.Error()
		return result
	}

	result.Success = true
	result.BytesTransferred = bytes
	logger.Debug("file transferred",
		zap.String("path", fi.Path),
		zap.String("destination", dest),
		zap.Int64("bytes", bytes),
		zap.Int("attempts", res.Attempts))

	if def.DeleteSourceAfterTransfer {
		if err := o.deleteSource(ctx, def, client, fi.Path); err != nil {
			metrics.SourceDeleteFailuresTotal.Inc()
			logger.Warn("failed to delete source after transfer",
				zap.String("path", fi.Path), zap.Error(err))
			result.DeleteError = err.Error()
		} else {
			result.SourceDeleted = true
		}
	}
	return result
}

func (o *Orchestrator) deleteSource(ctx context.Context, def job.Definition, client transfer.Client, p string) error {
	if def.Direction == job.DirectionDownload {
		return client.DeleteFile(ctx, p)
	}
	if err := o.localFs.Remove(p); err != nil {
		return WrapTransferError(err, p, "delete")
	}
	return nil
}

func (o *Orchestrator) recordMetrics(s *job.RunSummary) {
	direction := s.Direction.String()
	metrics.RunsTotal.WithLabelValues(direction, string(s.Status)).Inc()
	metrics.RunDuration.WithLabelValues(direction).Observe(s.Duration.Seconds())
	metrics.FilesTotal.WithLabelValues(direction, "completed").Add(float64(s.FilesCompleted))
	metrics.FilesTotal.WithLabelValues(direction, "failed").Add(float64(s.FilesFailed))
	metrics.FilesTotal.WithLabelValues(direction, "skipped").Add(float64(s.FilesSkipped))
	metrics.BytesTotal.WithLabelValues(direction).Add(float64(s.TotalBytes))
}
