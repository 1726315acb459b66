package scheduler

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"vidcast/internal/accounts"
	"vidcast/internal/config"
	"vidcast/internal/logging"
	"vidcast/internal/notifications"
	"vidcast/internal/platform"
	"vidcast/internal/queue"
	"vidcast/internal/services"
	"vidcast/internal/testsupport"
)

type fakeUploader struct {
	mu       sync.Mutex
	delay    time.Duration
	err      error
	calls    []string
	inFlight int
	maxSeen  int
	byRes    map[string]int
	overlap  bool
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{byRes: make(map[string]int)}
}

func (f *fakeUploader) Upload(ctx context.Context, req platform.UploadRequest, onProgress platform.ProgressFunc) (*platform.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Title)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.byRes[req.FilePath]++
	if f.byRes[req.FilePath] > 1 {
		f.overlap = true
	}
	delay := f.delay
	err := f.err
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.byRes[req.FilePath]--
		f.mu.Unlock()
	}()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(5, 5)
	}
	return &platform.Result{ContentID: "content-" + req.Title, UploadID: "up-" + req.Title}, nil
}

func (f *fakeUploader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type testEnv struct {
	scheduler *Scheduler
	store     *queue.Store
	accounts  *accounts.Store
	vault     *accounts.Vault
	cfg       *config.Config
}

func newTestEnv(t *testing.T, uploader Uploader, opts ...testsupport.ConfigOption) *testEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	accountStore, err := accounts.NewStoreWithDB(store.DB())
	if err != nil {
		t.Fatalf("open account store: %v", err)
	}

	key, err := hex.DecodeString(testsupport.TestCredentialKey)
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	vault, err := accounts.NewVault(key)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}

	sched := New(cfg, store, accountStore, vault, uploader, notifications.NewService(cfg), logging.NewNop())
	sched.pollInterval = 20 * time.Millisecond
	sched.errorRetryInterval = 20 * time.Millisecond
	sched.retryBackoff = 0

	return &testEnv{
		scheduler: sched,
		store:     store,
		accounts:  accountStore,
		vault:     vault,
		cfg:       cfg,
	}
}

func (e *testEnv) addHealthyAccount(t *testing.T, label string) *accounts.Account {
	t.Helper()
	sealed, err := e.vault.Seal(accounts.Credential{Session: "sess", CSRF: "csrf", UserID: "42"})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	account, err := e.accounts.Add(context.Background(), label, sealed, 1, false, nil)
	if err != nil {
		t.Fatalf("add account: %v", err)
	}
	report := &accounts.HealthReport{AccountID: account.ID, CheckedAt: time.Now().UTC()}
	report.Checks = []accounts.CheckResult{{Name: "login", Status: accounts.HealthHealthy}}
	report.Aggregate()
	if err := e.accounts.SaveHealth(context.Background(), report); err != nil {
		t.Fatalf("save health: %v", err)
	}
	return account
}

func (e *testEnv) start(t *testing.T) {
	t.Helper()
	if err := e.scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start scheduler: %v", err)
	}
	t.Cleanup(e.scheduler.Stop)
}

func (e *testEnv) submit(t *testing.T, title string, priority queue.Priority) *queue.Task {
	t.Helper()
	task, err := e.scheduler.Submit(context.Background(), queue.NewTaskParams{
		SourcePath: "/videos/" + title + ".mp4",
		Title:      title,
		Priority:   priority,
	})
	if err != nil {
		t.Fatalf("submit %s: %v", title, err)
	}
	return task
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (e *testEnv) waitForStatus(t *testing.T, id string, status queue.Status) *queue.Task {
	t.Helper()
	var last *queue.Task
	waitFor(t, 5*time.Second, fmt.Sprintf("task %s to reach %s", id, status), func() bool {
		task, err := e.store.GetByID(context.Background(), id)
		if err != nil || task == nil {
			return false
		}
		last = task
		return task.Status == status
	})
	return last
}

func TestSchedulerProcessesTask(t *testing.T) {
	uploader := newFakeUploader()
	env := newTestEnv(t, uploader)
	env.addHealthyAccount(t, "primary")
	env.start(t)

	task := env.submit(t, "episode-1", queue.PriorityNormal)
	done := env.waitForStatus(t, task.ID, queue.StatusCompleted)

	if done.ContentID != "content-episode-1" {
		t.Fatalf("content id = %s", done.ContentID)
	}
	if done.AccountID == "" {
		t.Fatal("expected assigned account recorded")
	}
	if uploader.callCount() != 1 {
		t.Fatalf("upload calls = %d, want 1", uploader.callCount())
	}
	if done.Progress != 100 {
		t.Fatalf("progress = %v, want 100", done.Progress)
	}
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	uploader := newFakeUploader()
	uploader.delay = 80 * time.Millisecond
	env := newTestEnv(t, uploader, testsupport.WithMaxConcurrent(2))
	env.addHealthyAccount(t, "primary")
	env.start(t)

	var tasks []*queue.Task
	for i := 0; i < 5; i++ {
		tasks = append(tasks, env.submit(t, fmt.Sprintf("clip-%d", i), queue.PriorityNormal))
	}
	for _, task := range tasks {
		env.waitForStatus(t, task.ID, queue.StatusCompleted)
	}

	uploader.mu.Lock()
	maxSeen := uploader.maxSeen
	uploader.mu.Unlock()
	if maxSeen > 2 {
		t.Fatalf("observed %d concurrent uploads, limit is 2", maxSeen)
	}
	if uploader.callCount() != 5 {
		t.Fatalf("upload calls = %d, want 5", uploader.callCount())
	}
}

func TestSchedulerDispatchesByPriority(t *testing.T) {
	uploader := newFakeUploader()
	env := newTestEnv(t, uploader, testsupport.WithMaxConcurrent(1))
	env.addHealthyAccount(t, "primary")

	low := env.submit(t, "low", queue.PriorityLow)
	urgent := env.submit(t, "urgent", queue.PriorityUrgent)
	env.start(t)

	env.waitForStatus(t, low.ID, queue.StatusCompleted)
	env.waitForStatus(t, urgent.ID, queue.StatusCompleted)

	uploader.mu.Lock()
	defer uploader.mu.Unlock()
	if len(uploader.calls) != 2 || uploader.calls[0] != "urgent" {
		t.Fatalf("dispatch order = %v, want urgent first", uploader.calls)
	}
}

func TestSchedulerRetriesTransientFailures(t *testing.T) {
	uploader := newFakeUploader()
	uploader.err = services.Wrap(services.ErrTransient, "platform", "chunk", "chunk 2 failed", nil)
	env := newTestEnv(t, uploader)
	env.addHealthyAccount(t, "primary")
	env.start(t)

	task, err := env.scheduler.Submit(context.Background(), queue.NewTaskParams{
		SourcePath: "/videos/flaky.mp4",
		Title:      "flaky",
		MaxRetries: 2,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done := env.waitForStatus(t, task.ID, queue.StatusFailed)
	if done.RetryCount != 2 {
		t.Fatalf("retry count = %d, want 2", done.RetryCount)
	}
	if uploader.callCount() != 3 {
		t.Fatalf("upload attempts = %d, want 3", uploader.callCount())
	}
}

func TestSchedulerDoesNotRetryValidationFailures(t *testing.T) {
	uploader := newFakeUploader()
	uploader.err = services.Wrap(services.ErrValidation, "platform", "submit", "title contains forbidden words", nil)
	env := newTestEnv(t, uploader)
	env.addHealthyAccount(t, "primary")
	env.start(t)

	task := env.submit(t, "rejected", queue.PriorityNormal)
	done := env.waitForStatus(t, task.ID, queue.StatusFailed)

	if done.RetryCount != 0 {
		t.Fatalf("retry count = %d, want 0", done.RetryCount)
	}
	if uploader.callCount() != 1 {
		t.Fatalf("upload attempts = %d, want 1", uploader.callCount())
	}
}

func TestSchedulerSerializesSameResource(t *testing.T) {
	uploader := newFakeUploader()
	uploader.delay = 60 * time.Millisecond
	env := newTestEnv(t, uploader, testsupport.WithMaxConcurrent(2))
	env.addHealthyAccount(t, "primary")
	env.start(t)

	first, err := env.scheduler.Submit(context.Background(), queue.NewTaskParams{
		ResourceID: "shared-resource",
		SourcePath: "/videos/shared.mp4",
		Title:      "first",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := env.scheduler.Submit(context.Background(), queue.NewTaskParams{
		ResourceID: "shared-resource",
		SourcePath: "/videos/shared.mp4",
		Title:      "second",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	env.waitForStatus(t, first.ID, queue.StatusCompleted)
	env.waitForStatus(t, second.ID, queue.StatusCompleted)

	uploader.mu.Lock()
	defer uploader.mu.Unlock()
	if uploader.overlap {
		t.Fatal("two uploads shared the same resource concurrently")
	}
}

func TestSchedulerCancelQueuedTask(t *testing.T) {
	uploader := newFakeUploader()
	env := newTestEnv(t, uploader)
	env.addHealthyAccount(t, "primary")

	task := env.submit(t, "pending-cancel", queue.PriorityNormal)
	if err := env.scheduler.Cancel(context.Background(), task.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	cancelled, err := env.store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cancelled.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want %s", cancelled.Status, queue.StatusCancelled)
	}
	if uploader.callCount() != 0 {
		t.Fatal("cancelled task must not upload")
	}
}

func TestSchedulerCancelProcessingTask(t *testing.T) {
	uploader := newFakeUploader()
	uploader.delay = 5 * time.Second
	env := newTestEnv(t, uploader)
	env.addHealthyAccount(t, "primary")
	env.start(t)

	task := env.submit(t, "in-flight", queue.PriorityNormal)
	env.waitForStatus(t, task.ID, queue.StatusProcessing)

	if err := env.scheduler.Cancel(context.Background(), task.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	env.waitForStatus(t, task.ID, queue.StatusCancelled)
}

func TestSchedulerRegistersCancelBeforeProcessingIsVisible(t *testing.T) {
	uploader := newFakeUploader()
	uploader.delay = 5 * time.Second
	env := newTestEnv(t, uploader)
	env.addHealthyAccount(t, "primary")
	env.start(t)

	task := env.submit(t, "claim-window", queue.PriorityNormal)
	env.waitForStatus(t, task.ID, queue.StatusProcessing)

	// Anyone who can observe the task as processing must also find its
	// cancel func, or their cancel writes the row directly and the upload
	// finishes anyway.
	env.scheduler.mu.Lock()
	_, registered := env.scheduler.active[task.ID]
	env.scheduler.mu.Unlock()
	if !registered {
		t.Fatal("task observable as processing before its cancel func was registered")
	}

	if err := env.scheduler.Cancel(context.Background(), task.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	env.waitForStatus(t, task.ID, queue.StatusCancelled)

	time.Sleep(50 * time.Millisecond)
	still, err := env.store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if still.Status != queue.StatusCancelled {
		t.Fatalf("status = %s after cancel, want %s", still.Status, queue.StatusCancelled)
	}
}

// stubbornUploader ignores context cancellation and succeeds once released,
// standing in for an upload whose final call completes before it can observe
// a cancel.
type stubbornUploader struct {
	release chan struct{}
}

func (u *stubbornUploader) Upload(ctx context.Context, req platform.UploadRequest, onProgress platform.ProgressFunc) (*platform.Result, error) {
	<-u.release
	return &platform.Result{ContentID: "content-" + req.Title}, nil
}

func TestSchedulerCancelRacingSuccessLeavesNoResidue(t *testing.T) {
	uploader := &stubbornUploader{release: make(chan struct{})}
	env := newTestEnv(t, uploader)
	env.addHealthyAccount(t, "primary")
	env.start(t)

	task := env.submit(t, "photo-finish", queue.PriorityNormal)
	env.waitForStatus(t, task.ID, queue.StatusProcessing)

	if err := env.scheduler.Cancel(context.Background(), task.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	close(uploader.release)

	done := env.waitForStatus(t, task.ID, queue.StatusCompleted)
	if done.ContentID == "" {
		t.Fatal("completed task missing content id")
	}

	waitFor(t, 2*time.Second, "cancel bookkeeping to clear", func() bool {
		env.scheduler.mu.Lock()
		defer env.scheduler.mu.Unlock()
		return len(env.scheduler.cancelRequested) == 0 && len(env.scheduler.active) == 0
	})
}

func TestSchedulerCancelCompletedTaskIsNoop(t *testing.T) {
	uploader := newFakeUploader()
	env := newTestEnv(t, uploader)
	env.addHealthyAccount(t, "primary")
	env.start(t)

	task := env.submit(t, "done", queue.PriorityNormal)
	env.waitForStatus(t, task.ID, queue.StatusCompleted)

	if err := env.scheduler.Cancel(context.Background(), task.ID); err != nil {
		t.Fatalf("cancel after completion: %v", err)
	}
	still, err := env.store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if still.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want %s", still.Status, queue.StatusCompleted)
	}
}

func TestSchedulerDefersWhenPoolExhausted(t *testing.T) {
	uploader := newFakeUploader()
	env := newTestEnv(t, uploader)
	env.start(t)

	task := env.submit(t, "stranded", queue.PriorityNormal)
	time.Sleep(150 * time.Millisecond)

	still, err := env.store.GetByID(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if still.Status != queue.StatusQueued {
		t.Fatalf("status = %s, want %s", still.Status, queue.StatusQueued)
	}
	if still.RetryCount != 0 {
		t.Fatal("pool exhaustion must not burn retries")
	}
	if uploader.callCount() != 0 {
		t.Fatal("no upload should run without a usable account")
	}
}

func TestSchedulerRotatesAccounts(t *testing.T) {
	uploader := newFakeUploader()
	env := newTestEnv(t, uploader, testsupport.WithMaxConcurrent(1))
	env.addHealthyAccount(t, "alpha")
	env.addHealthyAccount(t, "beta")
	env.start(t)

	used := make(map[string]struct{})
	for i := 0; i < 4; i++ {
		task := env.submit(t, fmt.Sprintf("rotate-%d", i), queue.PriorityNormal)
		done := env.waitForStatus(t, task.ID, queue.StatusCompleted)
		used[done.AccountID] = struct{}{}
	}
	if len(used) != 2 {
		t.Fatalf("expected both accounts to be used, got %d", len(used))
	}
}

func TestSchedulerHonorsPinnedAccount(t *testing.T) {
	uploader := newFakeUploader()
	env := newTestEnv(t, uploader, testsupport.WithMaxConcurrent(1))
	env.addHealthyAccount(t, "alpha")
	pinned := env.addHealthyAccount(t, "beta")
	env.start(t)

	task, err := env.scheduler.Submit(context.Background(), queue.NewTaskParams{
		SourcePath: "/videos/pinned.mp4",
		Title:      "pinned",
		AccountID:  pinned.ID,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	done := env.waitForStatus(t, task.ID, queue.StatusCompleted)
	if done.AccountID != pinned.ID {
		t.Fatalf("account = %s, want pinned %s", done.AccountID, pinned.ID)
	}
}

func TestSchedulerCancelUnknownTask(t *testing.T) {
	uploader := newFakeUploader()
	env := newTestEnv(t, uploader)

	err := env.scheduler.Cancel(context.Background(), "no-such-task")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
