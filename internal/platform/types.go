package platform

import (
	"encoding/json"

	"vidcast/internal/accounts"
)

// envelope is the outer JSON shape every platform endpoint responds with.
// Code zero means success; anything else carries a human-readable message.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type negotiateData struct {
	UploadID  string `json:"upload_id"`
	Endpoints string `json:"endpoints"`
	Auth      string `json:"auth"`
	ChunkSize int64  `json:"chunk_size"`
}

type submitData struct {
	ContentID string `json:"content_id"`
}

// UploadRequest describes one file to push through the full protocol.
type UploadRequest struct {
	FilePath    string
	Title       string
	Description string
	Tags        []string
	CategoryID  int
	Credential  accounts.Credential
}

// Result is the outcome of a completed upload.
type Result struct {
	ContentID string
	UploadID  string
}

// ProgressFunc receives chunk completion updates during the transfer phase.
type ProgressFunc func(completedChunks, totalChunks int)
