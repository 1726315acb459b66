package scheduler

import (
	"context"
	"time"

	"vidcast/internal/accounts"
	"vidcast/internal/logging"
	"vidcast/internal/queue"
)

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case s.slots <- struct{}{}:
		}

		claimed, idle := s.dispatchOne(ctx)
		if claimed {
			continue
		}
		<-s.slots
		if idle {
			s.maybeNotifyDrained(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.pollInterval):
		}
	}
}

// dispatchOne attempts to claim and launch the next dispatchable task. It
// returns claimed=true when a worker took the task, and idle=true when the
// queue had nothing dispatchable at all.
func (s *Scheduler) dispatchOne(ctx context.Context) (claimed, idle bool) {
	task, err := s.store.NextForDispatch(ctx, s.locks.HeldResources()...)
	if err != nil {
		s.logger.Error("failed to fetch next task",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_fetch_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return false, false
	}
	if task == nil {
		return false, true
	}

	account := s.pickAccount(ctx, task)
	if account == nil {
		// Pool exhaustion is a defer signal: the task stays queued untouched.
		s.logger.Debug("no usable account, deferring task",
			logging.String(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldEventType, "account_pool_exhausted"),
		)
		return false, false
	}

	if !s.locks.Acquire(task.ResourceID, task.ID, s.lockTTL) {
		s.logger.Debug("resource locked, deferring task",
			logging.String(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldResourceID, task.ResourceID),
			logging.String(logging.FieldEventType, "resource_locked"),
		)
		return false, false
	}

	// Register the cancel func before claiming the row. Once a Cancel caller
	// can observe the task as processing its active entry must already exist,
	// otherwise the cancel lands on the database row and the upload runs
	// anyway.
	taskCtx, cancelTask := context.WithCancel(ctx)
	s.mu.Lock()
	s.active[task.ID] = cancelTask
	s.mu.Unlock()

	ok, err := s.store.MarkProcessing(ctx, task.ID, account.ID)
	if err != nil || !ok {
		// Lost the claim, usually to a concurrent cancellation.
		cancelTask()
		s.mu.Lock()
		delete(s.active, task.ID)
		s.mu.Unlock()
		s.locks.Release(task.ResourceID, task.ID)
		if err != nil {
			s.logger.Error("failed to claim task", logging.Error(err),
				logging.String(logging.FieldTaskID, task.ID))
		}
		return false, false
	}

	s.markQueueActive()
	s.wg.Add(1)
	go s.runTask(taskCtx, task, account)
	return true, false
}

// pickAccount resolves the account a task should upload with. A pinned
// account id wins when it is still usable; otherwise the selector scores the
// pool.
func (s *Scheduler) pickAccount(ctx context.Context, task *queue.Task) *accounts.Account {
	pool, err := s.accounts.List(ctx)
	if err != nil {
		s.logger.Error("failed to list accounts", logging.Error(err))
		return nil
	}

	if task.AccountID != "" {
		for _, account := range pool {
			if account.ID == task.AccountID {
				if account.HealthStatus.Usable() {
					return account
				}
				s.logger.Warn("pinned account unusable",
					logging.String(logging.FieldTaskID, task.ID),
					logging.String(logging.FieldAccountID, task.AccountID),
					logging.String("health", string(account.HealthStatus)),
				)
				return nil
			}
		}
		s.logger.Warn("pinned account missing",
			logging.String(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldAccountID, task.AccountID),
		)
		return nil
	}

	return s.selector.SelectBest(pool, nil)
}

func (s *Scheduler) maybeNotifyDrained(ctx context.Context) {
	s.mu.Lock()
	if !s.queueActive || len(s.active) > 0 {
		s.mu.Unlock()
		return
	}
	completed, failed := s.completed, s.failed
	duration := time.Since(s.queueStart)
	s.queueActive = false
	s.mu.Unlock()

	if completed == 0 && failed == 0 {
		return
	}
	s.logger.Info("queue drained",
		logging.Int("completed", completed),
		logging.Int("failed", failed),
		logging.Duration("duration", duration),
	)
	if s.notifier != nil {
		if err := s.notifier.NotifyQueueDrained(ctx, completed, failed, duration); err != nil {
			s.logger.Warn("drain notification failed", logging.Error(err))
		}
	}
}

func (s *Scheduler) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()
	if s.boostInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.boostInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			boosted, err := s.store.BoostStarved(ctx, s.boostInterval)
			if err != nil {
				s.logger.Warn("starvation boost sweep failed", logging.Error(err))
				continue
			}
			if boosted > 0 {
				s.logger.Info("boosted starved tasks",
					logging.Int64("count", boosted),
					logging.String(logging.FieldEventType, "starvation_boost"),
				)
			}
		}
	}
}
