package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vidcast/internal/accounts"
	"vidcast/internal/config"
	"vidcast/internal/locks"
	"vidcast/internal/logging"
	"vidcast/internal/notifications"
	"vidcast/internal/platform"
	"vidcast/internal/queue"
	"vidcast/internal/services"
)

// Uploader runs the upload protocol for one task. Satisfied by
// *platform.Client.
type Uploader interface {
	Upload(ctx context.Context, req platform.UploadRequest, onProgress platform.ProgressFunc) (*platform.Result, error)
}

// Scheduler owns the dispatch loop and the upload worker pool.
type Scheduler struct {
	cfg      *config.Config
	store    *queue.Store
	accounts *accounts.Store
	vault    *accounts.Vault
	selector *accounts.Selector
	locks    *locks.Manager
	uploader Uploader
	notifier notifications.Service
	logger   *slog.Logger

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	lockTTL            time.Duration
	retryBackoff       time.Duration
	boostInterval      time.Duration

	mu              sync.Mutex
	running         bool
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	slots           chan struct{}
	active          map[string]context.CancelFunc
	cancelRequested map[string]bool

	queueActive bool
	queueStart  time.Time
	completed   int
	failed      int
}

// New constructs a scheduler. The uploader is pluggable so tests can swap the
// protocol client for a fake.
func New(cfg *config.Config, store *queue.Store, accountStore *accounts.Store, vault *accounts.Vault, uploader Uploader, notifier notifications.Service, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Scheduler.MaxConcurrent
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		accounts: accountStore,
		vault:    vault,
		selector: accounts.NewSelector(
			cfg.Accounts.SelectorVipWeight,
			cfg.Accounts.SelectorLevelWeight,
			cfg.Accounts.SelectorIdleWeight,
		),
		locks:    locks.NewManager(logger),
		uploader: uploader,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "scheduler"),

		pollInterval:       time.Duration(cfg.Scheduler.QueuePollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Scheduler.ErrorRetryInterval) * time.Second,
		lockTTL:            cfg.LockTTL(),
		retryBackoff:       time.Duration(cfg.Scheduler.RetryBackoffSeconds) * time.Second,
		boostInterval:      time.Duration(cfg.Scheduler.StarvationBoostSeconds) * time.Second,

		slots:           make(chan struct{}, workers),
		active:          make(map[string]context.CancelFunc),
		cancelRequested: make(map[string]bool),
	}
}

// Start begins background dispatch and maintenance.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.dispatchLoop(runCtx)
	go s.maintenanceLoop(runCtx)
	return nil
}

// Stop terminates background processing and waits for in-flight uploads to
// observe cancellation.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// Running reports whether the scheduler loops are active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Submit enqueues a new upload task.
func (s *Scheduler) Submit(ctx context.Context, params queue.NewTaskParams) (*queue.Task, error) {
	if params.MaxRetries <= 0 {
		params.MaxRetries = s.cfg.Scheduler.MaxRetries
	}
	task, err := s.store.Submit(ctx, params)
	if err != nil {
		return nil, err
	}
	s.markQueueActive()
	if s.notifier != nil {
		if err := s.notifier.NotifyTaskQueued(ctx, task.Title, task.Priority.String()); err != nil {
			s.logger.Warn("queued notification failed", logging.Error(err))
		}
	}
	return task, nil
}

// Cancel stops a task. Queued tasks move straight to cancelled; processing
// tasks have their upload context cancelled and settle asynchronously. Tasks
// that already finished are left untouched.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return services.Wrap(services.ErrNotFound, "scheduler", "cancel", "task not found", nil)
	}

	switch task.Status {
	case queue.StatusPending, queue.StatusQueued:
		cancelled, err := s.store.MarkCancelled(ctx, id)
		if err != nil {
			return err
		}
		if cancelled && s.notifier != nil {
			if err := s.notifier.NotifyTaskCancelled(ctx, task.Title); err != nil {
				s.logger.Warn("cancel notification failed", logging.Error(err))
			}
		}
		return nil
	case queue.StatusProcessing:
		s.mu.Lock()
		cancelTask, ok := s.active[id]
		if ok {
			s.cancelRequested[id] = true
		}
		s.mu.Unlock()
		if ok {
			cancelTask()
			return nil
		}
		// Processing but not owned by this scheduler instance; settle it
		// directly.
		_, err := s.store.MarkCancelled(ctx, id)
		return err
	default:
		s.logger.Info("cancel ignored for settled task",
			logging.String(logging.FieldTaskID, id),
			logging.String("status", string(task.Status)),
		)
		return nil
	}
}

// Status returns the current record for a task.
func (s *Scheduler) Status(ctx context.Context, id string) (*queue.Task, error) {
	return s.store.GetByID(ctx, id)
}

// QueueStatus returns aggregate queue counts.
func (s *Scheduler) QueueStatus(ctx context.Context) (queue.HealthSummary, error) {
	return s.store.Health(ctx)
}

// ActiveCount reports how many uploads are currently in flight.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) markQueueActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.queueActive {
		s.queueActive = true
		s.queueStart = time.Now()
		s.completed = 0
		s.failed = 0
	}
}

func (s *Scheduler) recordOutcome(succeeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if succeeded {
		s.completed++
	} else {
		s.failed++
	}
}
