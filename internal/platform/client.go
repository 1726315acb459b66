package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"vidcast/internal/accounts"
	"vidcast/internal/config"
	"vidcast/internal/logging"
	"vidcast/internal/services"
)

// Doer executes HTTP requests. Satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxChunkParallelism = 4

// Client drives the four-phase upload protocol against one platform.
type Client struct {
	http             Doer
	baseURL          string
	profile          string
	maxUploadBytes   int64
	chunkParallelism int
	chunkRetries     int
	chunkBackoff     time.Duration
	mergeRetries     int
	logger           *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient constructs a protocol client from configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	parallelism := cfg.Platform.ChunkParallelism
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > maxChunkParallelism {
		parallelism = maxChunkParallelism
	}
	return &Client{
		http:             &http.Client{Timeout: cfg.PlatformTimeout()},
		baseURL:          strings.TrimRight(cfg.Platform.BaseURL, "/"),
		profile:          cfg.Platform.UploadProfile,
		maxUploadBytes:   cfg.MaxUploadBytes(),
		chunkParallelism: parallelism,
		chunkRetries:     cfg.Platform.ChunkRetries,
		chunkBackoff:     time.Duration(cfg.Platform.ChunkBackoffMS) * time.Millisecond,
		mergeRetries:     cfg.Platform.MergeRetries,
		logger:           logging.NewComponentLogger(logger, "platform"),
		sleep:            sleepContext,
	}
}

// SetHTTPClient overrides the HTTP client (used in tests).
func (c *Client) SetHTTPClient(doer Doer) {
	if doer != nil {
		c.http = doer
	}
}

// Upload runs the full protocol for one file: negotiate, chunk transfer,
// merge, submit. The returned result carries the platform content id. The
// context is honored between phases and inside every retry wait.
func (c *Client) Upload(ctx context.Context, req UploadRequest, onProgress ProgressFunc) (*Result, error) {
	size, err := c.validate(req)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(req.FilePath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "platform", "negotiate", "source file cannot be opened", err)
	}
	defer file.Close()

	negCtx := services.WithPhase(ctx, "negotiate")
	session, err := c.negotiate(negCtx, req, size)
	if err != nil {
		return nil, err
	}
	logging.WithContext(negCtx, c.logger).Info("upload session negotiated",
		logging.String("upload_id", session.UploadID),
		logging.Int("total_chunks", session.TotalChunks()),
		logging.Int64("chunk_size", session.ChunkSize),
	)

	if err := c.uploadChunks(services.WithPhase(ctx, "chunk"), file, session, onProgress); err != nil {
		return nil, err
	}
	if err := c.merge(services.WithPhase(ctx, "merge"), req, session); err != nil {
		return nil, err
	}
	contentID, err := c.submit(services.WithPhase(ctx, "submit"), req, session)
	if err != nil {
		return nil, err
	}

	c.logger.Info("upload completed",
		logging.String("upload_id", session.UploadID),
		logging.String("content_id", contentID),
	)
	return &Result{ContentID: contentID, UploadID: session.UploadID}, nil
}

func (c *Client) validate(req UploadRequest) (int64, error) {
	if !req.Credential.Complete() {
		return 0, services.Wrap(services.ErrCredentialInvalid, "platform", "negotiate", "credential missing required fields", nil)
	}
	if strings.TrimSpace(req.Title) == "" {
		return 0, services.Wrap(services.ErrValidation, "platform", "negotiate", "title is required", nil)
	}
	info, err := os.Stat(req.FilePath)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "platform", "negotiate", "source file not accessible", err)
	}
	if info.IsDir() {
		return 0, services.Wrap(services.ErrValidation, "platform", "negotiate", "source path is a directory", nil)
	}
	if info.Size() == 0 {
		return 0, services.Wrap(services.ErrValidation, "platform", "negotiate", "source file is empty", nil)
	}
	if c.maxUploadBytes > 0 && info.Size() > c.maxUploadBytes {
		return 0, services.Wrap(services.ErrValidation, "platform", "negotiate",
			fmt.Sprintf("source file exceeds the %d byte upload limit", c.maxUploadBytes), nil)
	}
	return info.Size(), nil
}

// negotiate opens an upload session. The platform returns a comma-separated
// endpoint list; only the first entry is used.
func (c *Client) negotiate(ctx context.Context, req UploadRequest, size int64) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "platform", "negotiate", "cancelled before negotiation", err)
	}

	fileName := filepath.Base(req.FilePath)
	query := url.Values{}
	query.Set("name", fileName)
	query.Set("size", strconv.FormatInt(size, 10))
	query.Set("profile", c.profile)

	env, err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/preupload?"+query.Encode(), nil, req.Credential)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "platform", "negotiate", "negotiation request failed", err)
	}
	if env.Code != 0 {
		return nil, services.Wrap(services.ErrTransient, "platform", "negotiate",
			fmt.Sprintf("platform rejected negotiation: %s", env.Message), nil)
	}

	var data negotiateData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, services.Wrap(services.ErrTransient, "platform", "negotiate", "malformed negotiation response", err)
	}
	if data.ChunkSize <= 0 {
		return nil, services.Wrap(services.ErrValidation, "platform", "negotiate", "negotiated chunk size is invalid", nil)
	}
	if data.UploadID == "" {
		return nil, services.Wrap(services.ErrTransient, "platform", "negotiate", "negotiation response missing upload id", nil)
	}

	session := newSession(fileName, size, data)
	if session.Endpoint == "" {
		return nil, services.Wrap(services.ErrTransient, "platform", "negotiate", "negotiation response missing endpoint", nil)
	}
	return session, nil
}

// uploadChunks streams every remaining part through a bounded worker pool.
// The first failed part cancels the rest.
func (c *Client) uploadChunks(ctx context.Context, file *os.File, session *Session, onProgress ProgressFunc) error {
	total := session.TotalChunks()
	remaining := session.Remaining()
	if len(remaining) == 0 {
		return nil
	}

	chunkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	parts := make(chan int)
	workers := c.chunkParallelism
	if workers > len(remaining) {
		workers = len(remaining)
	}

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for part := range parts {
				if err := c.uploadChunkWithRetry(chunkCtx, file, session, part, total); err != nil {
					fail(err)
					return
				}
				session.MarkCompleted(part)
				if onProgress != nil {
					onProgress(session.CompletedCount(), total)
				}
			}
		}()
	}

	for _, part := range remaining {
		select {
		case parts <- part:
		case <-chunkCtx.Done():
		}
		if chunkCtx.Err() != nil {
			break
		}
	}
	close(parts)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrTransient, "platform", "chunk", "cancelled during chunk transfer", err)
	}
	return nil
}

// uploadChunkWithRetry retries one part with exponential backoff. The wait is
// cancellable.
func (c *Client) uploadChunkWithRetry(ctx context.Context, file *os.File, session *Session, part, total int) error {
	var lastErr error
	for attempt := 0; attempt <= c.chunkRetries; attempt++ {
		if attempt > 0 {
			backoff := c.chunkBackoff << (attempt - 1)
			if err := c.sleep(ctx, backoff); err != nil {
				return services.Wrap(services.ErrTransient, "platform", "chunk",
					fmt.Sprintf("cancelled while retrying chunk %d", part), err)
			}
			logging.WithContext(ctx, c.logger).Debug("retrying chunk",
				logging.Int("part", part),
				logging.Int("attempt", attempt+1),
			)
		}
		lastErr = c.uploadChunk(ctx, file, session, part, total)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTransient, "platform", "chunk",
				fmt.Sprintf("cancelled while uploading chunk %d", part), ctx.Err())
		}
	}
	return services.Wrap(services.ErrTransient, "platform", "chunk",
		fmt.Sprintf("chunk %d failed after %d attempts", part, c.chunkRetries+1), lastErr)
}

func (c *Client) uploadChunk(ctx context.Context, file *os.File, session *Session, part, total int) error {
	start := int64(part-1) * session.ChunkSize
	length := session.ChunkSize
	if start+length > session.FileSize {
		length = session.FileSize - start
	}
	reader := io.NewSectionReader(file, start, length)

	query := url.Values{}
	query.Set("partNumber", strconv.Itoa(part))
	query.Set("uploadId", session.UploadID)
	query.Set("chunks", strconv.Itoa(total))
	query.Set("size", strconv.FormatInt(length, 10))
	query.Set("start", strconv.FormatInt(start, 10))
	query.Set("end", strconv.FormatInt(start+length, 10))
	query.Set("total", strconv.FormatInt(session.FileSize, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.Endpoint+"?"+query.Encode(), reader)
	if err != nil {
		return fmt.Errorf("build chunk request: %w", err)
	}
	req.ContentLength = length
	req.Header.Set("X-Upload-Auth", session.Auth)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("chunk %d returned status %d", part, resp.StatusCode)
	}
	return nil
}

// merge asks the platform to assemble the uploaded parts. Transient merge
// failures get a small retry budget.
func (c *Client) merge(ctx context.Context, req UploadRequest, session *Session) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrTransient, "platform", "merge", "cancelled before merge", err)
	}

	query := url.Values{}
	query.Set("uploadId", session.UploadID)
	query.Set("name", session.FileName)
	query.Set("csrf", req.Credential.CSRF)
	endpoint := c.baseURL + "/merge?" + query.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.mergeRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.chunkBackoff<<(attempt-1)); err != nil {
				return services.Wrap(services.ErrTransient, "platform", "merge", "cancelled while retrying merge", err)
			}
		}
		env, err := c.doJSON(ctx, http.MethodPost, endpoint, nil, req.Credential)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return services.Wrap(services.ErrTransient, "platform", "merge", "cancelled during merge", ctx.Err())
			}
			continue
		}
		if env.Code != 0 {
			lastErr = fmt.Errorf("platform rejected merge: %s", env.Message)
			continue
		}
		return nil
	}
	return services.Wrap(services.ErrTransient, "platform", "merge",
		fmt.Sprintf("merge failed after %d attempts", c.mergeRetries+1), lastErr)
}

// submit registers the assembled file with its metadata. A platform-side
// rejection here is a validation failure carrying the platform's message
// verbatim; retrying would re-earn the same answer.
func (c *Client) submit(ctx context.Context, req UploadRequest, session *Session) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", services.Wrap(services.ErrTransient, "platform", "submit", "cancelled before submit", err)
	}

	payload := map[string]any{
		"title":       req.Title,
		"desc":        req.Description,
		"tag":         strings.Join(req.Tags, ","),
		"tid":         req.CategoryID,
		"upload_id":   session.UploadID,
		"filename":    session.FileName,
		"csrf":        req.Credential.CSRF,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}

	env, err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/submit?csrf="+url.QueryEscape(req.Credential.CSRF), body, req.Credential)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "platform", "submit", "submission request failed", err)
	}
	if env.Code != 0 {
		return "", services.Wrap(services.ErrValidation, "platform", "submit", env.Message, nil)
	}

	var data submitData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", services.Wrap(services.ErrTransient, "platform", "submit", "malformed submission response", err)
	}
	if data.ContentID == "" {
		return "", services.Wrap(services.ErrTransient, "platform", "submit", "submission response missing content id", nil)
	}
	return data.ContentID, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body []byte, cred accounts.Credential) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Cookie", "SESSION="+cred.Session)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, fmt.Errorf("platform returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
