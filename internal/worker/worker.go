// Package worker は保留中のジョブを順番に変換するバックグラウンドワーカーを提供します。
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/yourusername/hwp-forge/internal/convert"
	"github.com/yourusername/hwp-forge/internal/jobs"
)

const (
	outputFilename = "output.pdf"
	stopTimeout    = 5 * time.Second
)

// Selector は入力ファイルに対する変換バックエンドを選択します。
type Selector interface {
	ForFile(path string) (convert.Converter, error)
}

// Worker は登録簿をポーリングして変換を実行する単一のバックグラウンドループです。
// 外部のオートメーションインスタンスは並行利用できないため、変換は常に
// 同時に1件だけ実行されます。
type Worker struct {
	registry     *jobs.Registry
	selector     Selector
	pollInterval time.Duration
	logger       *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New は Worker を作成します。
func New(registry *jobs.Registry, selector Selector, pollInterval time.Duration, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		registry:     registry,
		selector:     selector,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Start はワーカーループを開始します。既に起動している場合は何もしません。
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.logger.Printf("conversion worker is already running")
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(w.stopCh, w.doneCh)
	w.logger.Printf("conversion worker started")
}

// Stop はループに終了を通知し、上限付きでゴルーチンの終了を待ちます。
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	w.logger.Printf("stopping conversion worker...")
	select {
	case <-done:
		w.logger.Printf("conversion worker stopped")
	case <-time.After(stopTimeout):
		// 変換は数分かかることがあるため、実行中のジョブを道連れにはしない
		w.logger.Printf("conversion worker did not stop within %s (conversion still in flight)", stopTimeout)
	}
}

// IsRunning はワーカーが起動中かどうかを返します。
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		default:
		}
		w.iterate(stopCh)
	}
}

// iterate はループ1周分の処理です。ジョブ処理の外で予期しない問題が起きても
// ループ自体は止めず、ポーリング間隔ぶん待ってから再開します。
func (w *Worker) iterate(stopCh chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Printf("unexpected error in worker loop: %v", r)
			w.sleep(stopCh)
		}
	}()

	job, ok := w.registry.OldestPending()
	if !ok {
		w.sleep(stopCh)
		return
	}
	w.processJob(job)
}

// sleep はポーリング間隔だけ待機します。停止要求で中断された場合は false を返します。
func (w *Worker) sleep(stopCh chan struct{}) bool {
	select {
	case <-stopCh:
		return false
	case <-time.After(w.pollInterval):
		return true
	}
}

// processJob は1件のジョブを処理します。
// ジョブ単位の失敗は failed として記録するだけで、ループは止めません。
func (w *Worker) processJob(job jobs.Job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Printf("panic while processing job %s: %v", job.ID, r)
			w.markFailed(job.ID, fmt.Sprintf("unexpected error: %v", r))
		}
	}()

	w.logger.Printf("processing job %s: %s", job.ID, job.SourceFilename)

	// 先に processing へ進めて、次のポーリングが同じジョブを拾う余地を塞ぐ。
	// ワーカーが1本だけであることを前提にした read-then-write です。
	if err := w.registry.UpdateStatus(job.ID, jobs.StatusProcessing, "", ""); err != nil {
		w.logger.Printf("failed to mark job %s as processing: %v", job.ID, err)
		return
	}

	converter, err := w.selector.ForFile(job.SourcePath)
	if err != nil {
		// 未対応の拡張子。バックエンドには一切触れずに失敗させる。
		w.logger.Printf("job %s rejected: %v", job.ID, err)
		w.markFailed(job.ID, err.Error())
		return
	}

	outputPath := filepath.Join(filepath.Dir(job.SourcePath), outputFilename)
	resultPath, err := converter.Convert(context.Background(), job.SourcePath, outputPath)
	if err != nil {
		var convErr *convert.Error
		if errors.As(err, &convErr) {
			w.logger.Printf("job %s failed: %v", job.ID, err)
			w.markFailed(job.ID, err.Error())
			return
		}
		w.logger.Printf("unexpected error processing job %s: %v", job.ID, err)
		w.markFailed(job.ID, fmt.Sprintf("unexpected error: %v", err))
		return
	}

	if err := w.registry.UpdateStatus(job.ID, jobs.StatusCompleted, resultPath, ""); err != nil {
		w.logger.Printf("failed to mark job %s as completed: %v", job.ID, err)
		return
	}
	w.logger.Printf("job %s completed: %s", job.ID, resultPath)
}

func (w *Worker) markFailed(jobID, message string) {
	if err := w.registry.UpdateStatus(jobID, jobs.StatusFailed, "", message); err != nil {
		w.logger.Printf("failed to mark job %s as failed: %v", jobID, err)
	}
}
