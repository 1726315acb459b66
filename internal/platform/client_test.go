package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"vidcast/internal/accounts"
	"vidcast/internal/logging"
	"vidcast/internal/services"
	"vidcast/internal/testsupport"
)

const testChunkSize = 256 * 1024

type fakePlatform struct {
	*httptest.Server

	mu          sync.Mutex
	chunks      map[int][]byte
	chunkFails  map[int]int
	mergeFails  int
	mergeCalls  int
	submitCalls int
	negotiates  int

	chunkSize  int64
	submitCode int
	submitMsg  string
	contentID  string
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	fp := &fakePlatform{
		chunks:     make(map[int][]byte),
		chunkFails: make(map[int]int),
		chunkSize:  testChunkSize,
		contentID:  "content-9001",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/preupload", func(w http.ResponseWriter, r *http.Request) {
		fp.mu.Lock()
		fp.negotiates++
		chunkSize := fp.chunkSize
		fp.mu.Unlock()
		fmt.Fprintf(w,
			`{"code":0,"data":{"upload_id":"up-123","endpoints":"%s/chunk,%s/chunk-backup","auth":"auth-token","chunk_size":%d}}`,
			fp.URL, fp.URL, chunkSize)
	})
	mux.HandleFunc("/chunk", func(w http.ResponseWriter, r *http.Request) {
		part, _ := strconv.Atoi(r.URL.Query().Get("partNumber"))
		if r.Header.Get("X-Upload-Auth") != "auth-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		fp.mu.Lock()
		defer fp.mu.Unlock()
		if fp.chunkFails[part] > 0 {
			fp.chunkFails[part]--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fp.chunks[part] = body
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/merge", func(w http.ResponseWriter, r *http.Request) {
		fp.mu.Lock()
		defer fp.mu.Unlock()
		fp.mergeCalls++
		if fp.mergeFails > 0 {
			fp.mergeFails--
			io.WriteString(w, `{"code":-1,"message":"parts not ready"}`)
			return
		}
		io.WriteString(w, `{"code":0}`)
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		fp.mu.Lock()
		defer fp.mu.Unlock()
		fp.submitCalls++
		if fp.submitCode != 0 {
			fmt.Fprintf(w, `{"code":%d,"message":"%s"}`, fp.submitCode, fp.submitMsg)
			return
		}
		fmt.Fprintf(w, `{"code":0,"data":{"content_id":"%s"}}`, fp.contentID)
	})

	fp.Server = httptest.NewServer(mux)
	t.Cleanup(fp.Server.Close)
	return fp
}

func (fp *fakePlatform) assembled() []byte {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	var out []byte
	for part := 1; ; part++ {
		data, ok := fp.chunks[part]
		if !ok {
			break
		}
		out = append(out, data...)
	}
	return out
}

func newTestClient(t *testing.T, fp *fakePlatform) *Client {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(fp.URL))
	client := NewClient(cfg, logging.NewNop())
	client.chunkBackoff = time.Millisecond
	return client
}

func writeSourceFile(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "episode.mp4")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write source file: %v", err)
	}
	return path
}

func testRequest(path string) UploadRequest {
	return UploadRequest{
		FilePath:    path,
		Title:       "Weekly episode",
		Description: "recorded live",
		Tags:        []string{"weekly", "live"},
		CategoryID:  17,
		Credential:  accounts.Credential{Session: "sess", CSRF: "csrf", UserID: "42"},
	}
}

func TestClientUploadFullFlow(t *testing.T) {
	fp := newFakePlatform(t)
	client := newTestClient(t, fp)

	size := testChunkSize*4 + testChunkSize/2
	path := writeSourceFile(t, size)

	var progress [][2]int
	var progressMu sync.Mutex
	result, err := client.Upload(context.Background(), testRequest(path), func(done, total int) {
		progressMu.Lock()
		progress = append(progress, [2]int{done, total})
		progressMu.Unlock()
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if result.ContentID != "content-9001" {
		t.Fatalf("content id = %s", result.ContentID)
	}
	if result.UploadID != "up-123" {
		t.Fatalf("upload id = %s", result.UploadID)
	}

	if len(fp.chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(fp.chunks))
	}
	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read original: %v", err)
	}
	if !bytes.Equal(fp.assembled(), original) {
		t.Fatal("reassembled chunks do not match the source file")
	}
	if fp.mergeCalls != 1 {
		t.Fatalf("merge calls = %d, want 1", fp.mergeCalls)
	}
	if fp.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", fp.submitCalls)
	}

	if len(progress) != 5 {
		t.Fatalf("expected 5 progress updates, got %d", len(progress))
	}
	last := progress[len(progress)-1]
	if last[0] != 5 || last[1] != 5 {
		t.Fatalf("final progress = %v, want [5 5]", last)
	}
}

// phaseRecorder snoops the phase annotation on each outgoing request context.
type phaseRecorder struct {
	inner  Doer
	mu     sync.Mutex
	byPath map[string]string
}

func (p *phaseRecorder) Do(req *http.Request) (*http.Response, error) {
	phase, _ := services.PhaseFromContext(req.Context())
	p.mu.Lock()
	p.byPath[req.URL.Path] = phase
	p.mu.Unlock()
	return p.inner.Do(req)
}

func TestClientTagsRequestsWithPhase(t *testing.T) {
	fp := newFakePlatform(t)
	client := newTestClient(t, fp)
	recorder := &phaseRecorder{inner: &http.Client{}, byPath: make(map[string]string)}
	client.SetHTTPClient(recorder)

	path := writeSourceFile(t, testChunkSize+100)
	if _, err := client.Upload(context.Background(), testRequest(path), nil); err != nil {
		t.Fatalf("upload: %v", err)
	}

	want := map[string]string{
		"/preupload": "negotiate",
		"/chunk":     "chunk",
		"/merge":     "merge",
		"/submit":    "submit",
	}
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	for reqPath, phase := range want {
		if recorder.byPath[reqPath] != phase {
			t.Fatalf("phase for %s = %q, want %q", reqPath, recorder.byPath[reqPath], phase)
		}
	}
}

func TestClientUploadRejectsEmptyFile(t *testing.T) {
	fp := newFakePlatform(t)
	client := newTestClient(t, fp)
	path := filepath.Join(t.TempDir(), "empty.mp4")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := client.Upload(context.Background(), testRequest(path), nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fp.negotiates != 0 {
		t.Fatal("empty file should be rejected before negotiation")
	}
}

func TestClientUploadRejectsOversizeFile(t *testing.T) {
	fp := newFakePlatform(t)
	client := newTestClient(t, fp)
	client.maxUploadBytes = 1024

	path := writeSourceFile(t, 4096)
	_, err := client.Upload(context.Background(), testRequest(path), nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fp.negotiates != 0 {
		t.Fatal("oversize file should be rejected before negotiation")
	}
}

func TestClientUploadRejectsMissingTitle(t *testing.T) {
	fp := newFakePlatform(t)
	client := newTestClient(t, fp)
	path := writeSourceFile(t, 512)

	req := testRequest(path)
	req.Title = "  "
	if _, err := client.Upload(context.Background(), req, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestClientUploadIncompleteCredential(t *testing.T) {
	fp := newFakePlatform(t)
	client := newTestClient(t, fp)
	path := writeSourceFile(t, 512)

	req := testRequest(path)
	req.Credential.CSRF = ""
	if _, err := client.Upload(context.Background(), req, nil); !errors.Is(err, services.ErrCredentialInvalid) {
		t.Fatalf("expected credential error, got %v", err)
	}
}

func TestClientNegotiateInvalidChunkSize(t *testing.T) {
	fp := newFakePlatform(t)
	fp.chunkSize = 0
	client := newTestClient(t, fp)
	path := writeSourceFile(t, 1024)

	_, err := client.Upload(context.Background(), testRequest(path), nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for zero chunk size, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("zero chunk size must not be retryable")
	}
	if fp.negotiates != 1 {
		t.Fatalf("negotiate calls = %d, want 1", fp.negotiates)
	}
}

func TestClientChunkRetriesWithBackoff(t *testing.T) {
	fp := newFakePlatform(t)
	fp.chunkFails[2] = 2
	client := newTestClient(t, fp)

	var waits []time.Duration
	var waitsMu sync.Mutex
	client.sleep = func(ctx context.Context, d time.Duration) error {
		waitsMu.Lock()
		waits = append(waits, d)
		waitsMu.Unlock()
		return nil
	}

	path := writeSourceFile(t, testChunkSize*3)
	if _, err := client.Upload(context.Background(), testRequest(path), nil); err != nil {
		t.Fatalf("upload: %v", err)
	}

	if len(waits) != 2 {
		t.Fatalf("expected 2 retry waits, got %d", len(waits))
	}
	if waits[1] != waits[0]*2 {
		t.Fatalf("expected exponential backoff, got %v then %v", waits[0], waits[1])
	}
}

func TestClientChunkFailureExhaustsRetries(t *testing.T) {
	fp := newFakePlatform(t)
	fp.chunkFails[1] = 100
	client := newTestClient(t, fp)
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	path := writeSourceFile(t, testChunkSize)
	_, err := client.Upload(context.Background(), testRequest(path), nil)
	if err == nil {
		t.Fatal("expected chunk failure")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("exhausted chunk transfer should remain retryable at the task level")
	}
	if fp.mergeCalls != 0 {
		t.Fatal("merge must not run after a failed transfer")
	}
}

func TestClientMergeRetries(t *testing.T) {
	fp := newFakePlatform(t)
	fp.mergeFails = 1
	client := newTestClient(t, fp)
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	path := writeSourceFile(t, testChunkSize)
	if _, err := client.Upload(context.Background(), testRequest(path), nil); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if fp.mergeCalls != 2 {
		t.Fatalf("merge calls = %d, want 2", fp.mergeCalls)
	}
}

func TestClientSubmitRejectionIsFinal(t *testing.T) {
	fp := newFakePlatform(t)
	fp.submitCode = 21001
	fp.submitMsg = "title contains forbidden words"
	client := newTestClient(t, fp)

	path := writeSourceFile(t, testChunkSize)
	_, err := client.Upload(context.Background(), testRequest(path), nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "title contains forbidden words") {
		t.Fatalf("platform message should survive verbatim: %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("submit rejection must not be retryable")
	}
	if fp.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", fp.submitCalls)
	}
}

func TestClientUploadCancelledContext(t *testing.T) {
	fp := newFakePlatform(t)
	client := newTestClient(t, fp)
	path := writeSourceFile(t, testChunkSize)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Upload(ctx, testRequest(path), nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if fp.negotiates != 0 {
		t.Fatal("cancelled context should stop before negotiation")
	}
}

func TestSessionTracksRemainingParts(t *testing.T) {
	session := newSession("file.mp4", testChunkSize*2+1, negotiateData{
		UploadID:  "up-1",
		Endpoints: "http://a/chunk,http://b/chunk",
		Auth:      "tok",
		ChunkSize: testChunkSize,
	})

	if session.Endpoint != "http://a/chunk" {
		t.Fatalf("endpoint = %s, want first entry", session.Endpoint)
	}
	if got := session.TotalChunks(); got != 3 {
		t.Fatalf("total chunks = %d, want 3", got)
	}

	session.MarkCompleted(2)
	remaining := session.Remaining()
	if len(remaining) != 2 || remaining[0] != 1 || remaining[1] != 3 {
		t.Fatalf("remaining = %v, want [1 3]", remaining)
	}
	if !session.Completed(2) || session.Completed(1) {
		t.Fatal("completion tracking is wrong")
	}
}
