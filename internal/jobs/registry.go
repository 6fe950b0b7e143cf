// Package jobs はメモリ上のジョブ登録簿と、その参照用HTTPハンドラーを提供します。
package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound は指定されたジョブが存在しない場合に返されます。
	ErrNotFound = errors.New("job not found")
	// ErrTerminal は完了済みジョブへの変更を拒否した場合に返されます。
	ErrTerminal = errors.New("job already in terminal state")
)

// Registry はジョブ状態をプロセスメモリに保持するスレッドセーフな登録簿です。
// レコードの所有権は Registry が持ち、呼び出し側には常にコピーを返します。
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
	seq  uint64
}

// NewRegistry は空の Registry を作成します。
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
	}
}

// Insert は新しいジョブを pending 状態で登録し、そのコピーを返します。
func (r *Registry) Insert(sourceFilename, sourcePath string) Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	job := &Job{
		ID:             uuid.NewString(),
		SourceFilename: sourceFilename,
		SourcePath:     sourcePath,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
		seq:            r.seq,
	}
	r.jobs[job.ID] = job
	return job.clone()
}

// Get はジョブIDで1件取得します。
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// UpdateStatus はジョブの状態を更新します。
// completed / failed への遷移時に CompletedAt を設定し、以降の変更を拒否します。
// outputPath は completed、errMsg は failed のときのみ指定できます（相互排他）。
func (r *Registry) UpdateStatus(id string, status Status, outputPath, errMsg string) error {
	if outputPath != "" && errMsg != "" {
		return fmt.Errorf("outputPath and error are mutually exclusive")
	}
	if outputPath != "" && status != StatusCompleted {
		return fmt.Errorf("outputPath is only valid for status %s", StatusCompleted)
	}
	if errMsg != "" && status != StatusFailed {
		return fmt.Errorf("error is only valid for status %s", StatusFailed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.CompletedAt != nil {
		return ErrTerminal
	}
	// 逆方向への遷移は防波堤として拒否する
	if statusRank(status) < statusRank(job.Status) {
		return fmt.Errorf("invalid transition %s -> %s", job.Status, status)
	}

	job.Status = status
	if outputPath != "" {
		job.OutputPath = outputPath
	}
	if errMsg != "" {
		job.Error = errMsg
	}
	if status.IsTerminal() {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	return nil
}

// OldestPending は pending 状態のジョブのうち最も古いものを返します。
// 状態はポーリングの合間に変化しうるため、呼び出しごとに再計算します。
func (r *Registry) OldestPending() (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *Job
	for _, job := range r.jobs {
		if job.Status != StatusPending {
			continue
		}
		if oldest == nil {
			oldest = job
			continue
		}
		if job.CreatedAt.Before(oldest.CreatedAt) ||
			(job.CreatedAt.Equal(oldest.CreatedAt) && job.seq < oldest.seq) {
			oldest = job
		}
	}
	if oldest == nil {
		return Job{}, false
	}
	return oldest.clone(), true
}

// All は全ジョブのコピーを返します（順序不定、診断用）。
func (r *Registry) All() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		all = append(all, job.clone())
	}
	return all
}

// Clear は全ジョブを削除します。テストと管理用のリセット操作です。
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = make(map[string]*Job)
}
