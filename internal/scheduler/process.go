package scheduler

import (
	"context"
	"errors"
	"log/slog"

	"vidcast/internal/accounts"
	"vidcast/internal/logging"
	"vidcast/internal/platform"
	"vidcast/internal/queue"
	"vidcast/internal/services"
)

func (s *Scheduler) runTask(ctx context.Context, task *queue.Task, account *accounts.Account) {
	defer s.wg.Done()
	defer func() {
		s.locks.Release(task.ResourceID, task.ID)
		s.mu.Lock()
		delete(s.active, task.ID)
		delete(s.cancelRequested, task.ID)
		s.mu.Unlock()
		<-s.slots
	}()

	ctx = services.WithTaskID(ctx, task.ID)
	ctx = services.WithAccountID(ctx, account.ID)
	logger := logging.WithContext(ctx, s.logger)

	logger.Info("upload started",
		logging.String("title", task.Title),
		logging.String(logging.FieldResourceID, task.ResourceID),
		logging.String(logging.FieldEventType, "task_started"),
	)

	cred, err := s.vault.Reveal(account.Credential)
	if err != nil {
		s.settleFailure(ctx, logger, task, account,
			services.Wrap(services.ErrCredentialInvalid, "scheduler", "dispatch", "stored credential unusable", err))
		return
	}

	req := platform.UploadRequest{
		FilePath:    task.SourcePath,
		Title:       task.Title,
		Description: task.Description,
		Tags:        task.Tags,
		CategoryID:  task.CategoryID,
		Credential:  cred,
	}

	result, err := s.uploader.Upload(ctx, req, s.progressFunc(ctx, logger, task))
	if err != nil {
		s.settleFailure(ctx, logger, task, account, err)
		return
	}

	// A cancel can land just as the upload finishes; the outcome still gets
	// recorded, so bookkeeping must survive the task context being cancelled.
	recordCtx := context.WithoutCancel(ctx)
	if err := s.store.MarkCompleted(recordCtx, task.ID, result.ContentID); err != nil {
		logger.Error("failed to record completion", logging.Error(err))
	}
	if err := s.accounts.TouchUsed(recordCtx, account.ID); err != nil {
		logger.Warn("failed to record account use", logging.Error(err))
	}
	s.recordOutcome(true)

	logger.Info("upload completed",
		logging.String("content_id", result.ContentID),
		logging.String(logging.FieldEventType, "task_completed"),
	)
	if s.notifier != nil {
		if err := s.notifier.NotifyTaskCompleted(recordCtx, task.Title, result.ContentID); err != nil {
			logger.Warn("completion notification failed", logging.Error(err))
		}
	}
}

// progressFunc persists chunk progress and pushes step notifications.
func (s *Scheduler) progressFunc(ctx context.Context, logger *slog.Logger, task *queue.Task) platform.ProgressFunc {
	step := s.cfg.Notifications.ProgressStepPercent
	if step <= 0 {
		step = 10
	}
	lastNotified := 0

	return func(completed, total int) {
		if total <= 0 {
			return
		}
		percent := completed * 100 / total
		if err := s.store.SetProgress(ctx, task.ID, float64(percent), ""); err != nil {
			logger.Warn("failed to persist progress", logging.Error(err))
		}
		if s.notifier != nil && percent >= lastNotified+step && percent < 100 {
			lastNotified = percent - percent%step
			if err := s.notifier.NotifyProgress(ctx, task.Title, percent); err != nil {
				logger.Warn("progress notification failed", logging.Error(err))
			}
		}
	}
}

// settleFailure routes a failed upload to cancellation, requeue, or terminal
// failure.
func (s *Scheduler) settleFailure(ctx context.Context, logger *slog.Logger, task *queue.Task, account *accounts.Account, taskErr error) {
	s.mu.Lock()
	userCancelled := s.cancelRequested[task.ID]
	delete(s.cancelRequested, task.ID)
	s.mu.Unlock()

	if userCancelled {
		if _, err := s.store.MarkCancelled(context.WithoutCancel(ctx), task.ID); err != nil {
			logger.Error("failed to record cancellation", logging.Error(err))
		}
		logger.Info("upload cancelled",
			logging.String(logging.FieldEventType, "task_cancelled"),
		)
		if s.notifier != nil {
			if err := s.notifier.NotifyTaskCancelled(context.WithoutCancel(ctx), task.Title); err != nil {
				logger.Warn("cancel notification failed", logging.Error(err))
			}
		}
		return
	}

	// Scheduler shutdown: leave the task processing; startup recovery will
	// requeue it.
	if ctx.Err() != nil && errors.Is(taskErr, context.Canceled) {
		logger.Info("upload interrupted by shutdown",
			logging.String(logging.FieldEventType, "task_interrupted"),
		)
		return
	}

	if errors.Is(taskErr, services.ErrCredentialInvalid) {
		logger.Warn("account credential rejected during upload",
			logging.String(logging.FieldAccountID, account.ID),
			logging.Error(taskErr),
		)
		if s.notifier != nil {
			if err := s.notifier.NotifyAccountAlert(ctx, account.Label, string(accounts.HealthCritical), taskErr.Error()); err != nil {
				logger.Warn("account alert failed", logging.Error(err))
			}
		}
	}

	if services.Retryable(taskErr) && task.RetryCount < task.MaxRetries {
		if err := s.store.Requeue(ctx, task.ID, taskErr.Error(), s.retryBackoff); err != nil {
			logger.Error("failed to requeue task", logging.Error(err))
			return
		}
		logger.Warn("upload failed, requeued",
			logging.Error(taskErr),
			logging.Int("retry", task.RetryCount+1),
			logging.Int("max_retries", task.MaxRetries),
			logging.String(logging.FieldEventType, "task_requeued"),
		)
		return
	}

	if err := s.store.MarkFailed(ctx, task.ID, taskErr.Error()); err != nil {
		logger.Error("failed to record failure", logging.Error(err))
	}
	s.recordOutcome(false)
	logger.Error("upload failed",
		logging.Error(taskErr),
		logging.String(logging.FieldEventType, "task_failed"),
	)
	if s.notifier != nil {
		if err := s.notifier.NotifyTaskFailed(ctx, task.Title, taskErr.Error()); err != nil {
			logger.Warn("failure notification failed", logging.Error(err))
		}
	}
}
