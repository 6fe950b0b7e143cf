package jobs

import "time"

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal は completed / failed のいずれかであれば true を返します。
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// statusRank は状態遷移の前進のみを保証するための順序です。
// pending → processing → completed/failed の逆方向への遷移は許可しません。
func statusRank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// Job は1件の変換リクエストの現在状態を表します。
type Job struct {
	ID             string     `json:"jobId"`
	SourceFilename string     `json:"sourceFilename"`
	SourcePath     string     `json:"sourcePath"`
	Status         Status     `json:"status"`
	OutputPath     string     `json:"outputPath,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`

	// seq は CreatedAt が同時刻の場合のFIFO順序を保証するための挿入順です。
	seq uint64
}

func (j *Job) clone() Job {
	copied := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		copied.CompletedAt = &t
	}
	return copied
}
