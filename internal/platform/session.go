package platform

import (
	"strings"
	"sync"
)

// Session holds the negotiated state of one upload. Chunk completion is
// tracked per part so a transfer can resume without re-sending finished
// parts.
type Session struct {
	UploadID  string
	Endpoint  string
	Auth      string
	ChunkSize int64
	FileSize  int64
	FileName  string

	mu        sync.Mutex
	completed map[int]struct{}
}

func newSession(fileName string, fileSize int64, data negotiateData) *Session {
	endpoint := data.Endpoints
	if idx := strings.IndexByte(endpoint, ','); idx >= 0 {
		endpoint = endpoint[:idx]
	}
	return &Session{
		UploadID:  data.UploadID,
		Endpoint:  strings.TrimSpace(endpoint),
		Auth:      data.Auth,
		ChunkSize: data.ChunkSize,
		FileSize:  fileSize,
		FileName:  fileName,
		completed: make(map[int]struct{}),
	}
}

// TotalChunks is the number of parts the file divides into.
func (s *Session) TotalChunks() int {
	if s.ChunkSize <= 0 {
		return 0
	}
	return int((s.FileSize + s.ChunkSize - 1) / s.ChunkSize)
}

// MarkCompleted records that a part finished uploading.
func (s *Session) MarkCompleted(part int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[part] = struct{}{}
}

// Completed reports whether a part already finished.
func (s *Session) Completed(part int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.completed[part]
	return ok
}

// CompletedCount returns how many parts have finished.
func (s *Session) CompletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

// Remaining lists the parts still to upload, in ascending order.
func (s *Session) Remaining() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	if s.ChunkSize > 0 {
		total = int((s.FileSize + s.ChunkSize - 1) / s.ChunkSize)
	}
	var parts []int
	for part := 1; part <= total; part++ {
		if _, ok := s.completed[part]; !ok {
			parts = append(parts, part)
		}
	}
	return parts
}
