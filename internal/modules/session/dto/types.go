package dto

import (
	"io"
	"time"

	statsdto "komerge/internal/modules/stats/dto"
)

type Group struct {
	KeepID   int64   `json:"keep_id"`
	MergeIDs []int64 `json:"merge_ids"`
}

type CreateOutput struct {
	SessionID     string                `json:"session_id"`
	Books         []statsdto.BookOutput `json:"books"`
	ExpiresAt     time.Time             `json:"session_expires_at"`
	FileCleanupAt time.Time             `json:"file_cleanup_at"`
}

type BooksOutput struct {
	SessionID string                `json:"session_id"`
	Books     []statsdto.BookOutput `json:"books"`
	Groups    []Group               `json:"merge_groups"`
	Executed  bool                  `json:"executed"`
}

type AddGroupInput struct {
	SessionID string
	KeepID    int64
	MergeIDs  []int64
}

type GroupsOutput struct {
	SessionID string  `json:"session_id"`
	Groups    []Group `json:"merge_groups"`
}

type ExecuteOutput struct {
	SessionID        string                  `json:"session_id"`
	Groups           []statsdto.GroupSummary `json:"groups"`
	DownloadFilename string                  `json:"download_filename"`
}

type SweepOutput struct {
	CleanedSessions int `json:"cleaned_sessions"`
	RemovedOrphans  int `json:"removed_orphans"`
	ActiveSessions  int `json:"active_sessions"`
}

type ResultOutput struct {
	SessionID string                `json:"session_id"`
	Books     []statsdto.BookOutput `json:"books"`
}

// DownloadOutput carries an open handle on the processed database. The caller
// must close Body.
type DownloadOutput struct {
	Body     io.ReadCloser
	Size     int64
	Filename string
}

type RenewOutput struct {
	SessionID        string        `json:"session_id"`
	ExpiresAt        time.Time     `json:"session_expires_at"`
	FileCleanupAt    time.Time     `json:"file_cleanup_at"`
	SessionRemaining time.Duration `json:"-"`
	FileRemaining    time.Duration `json:"-"`
}

type InfoOutput struct {
	SessionID        string        `json:"session_id"`
	CreatedAt        time.Time     `json:"created_at"`
	ExpiresAt        time.Time     `json:"session_expires_at"`
	FileCleanupAt    time.Time     `json:"file_cleanup_at"`
	SessionRemaining time.Duration `json:"-"`
	FileRemaining    time.Duration `json:"-"`
	Expired          bool          `json:"expired"`
	State            string        `json:"state"`
	Executed         bool          `json:"executed"`
	GroupCount       int           `json:"merge_group_count"`
	BookCount        int           `json:"book_count"`
	HasProcessed     bool          `json:"has_processed_file"`
}
