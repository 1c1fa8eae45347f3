package dto

type BookOutput struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Authors     string `json:"authors"`
	Series      string `json:"series,omitempty"`
	Fingerprint string `json:"md5"`
	TotalTime   int64  `json:"total_read_time"`
	TotalPages  int64  `json:"total_read_pages"`
}

type GroupInput struct {
	KeepID   int64
	MergeIDs []int64
}

type ExecuteInput struct {
	SourcePath string
	TargetPath string
	Groups     []GroupInput
}

type GroupSummary struct {
	KeepID     int64   `json:"keep_id"`
	MergedIDs  []int64 `json:"merged_ids"`
	Events     int     `json:"events"`
	TotalTime  int64   `json:"total_read_time"`
	TotalPages int64   `json:"total_read_pages"`
}

type ExecuteOutput struct {
	TargetPath string         `json:"-"`
	Groups     []GroupSummary `json:"groups"`
}
