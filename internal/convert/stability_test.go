package convert

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWaitForStableFileSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.pdf")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 1000), 0o640); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	start := time.Now()
	if err := waitForStableFile(path, time.Second, 10*time.Millisecond); err != nil {
		t.Fatalf("waitForStableFile returned error: %v", err)
	}

	// 書き込み済みファイルは2回目の観測で確定する（スリープは1回だけ）
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("detection took too long: %s", elapsed)
	}
}

func TestWaitForStableFileTimesOutWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.pdf")

	timeout := 100 * time.Millisecond
	start := time.Now()
	err := waitForStableFile(path, timeout, 20*time.Millisecond)
	elapsed := time.Since(start)

	var convErr *Error
	if !errors.As(err, &convErr) || convErr.Code != CodeTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed < timeout {
		t.Fatalf("timed out too early: %s", elapsed)
	}
	// 許容誤差はポーリング間隔1回分
	if elapsed > timeout+40*time.Millisecond {
		t.Fatalf("timed out too late: %s", elapsed)
	}
}

func TestWaitForStableFileTimesOutWhileGrowing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "growing.pdf")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		// ポーリングのたびに必ずサイズが変わるよう書き込み続ける
		for {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
				f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
				if err != nil {
					continue
				}
				_, _ = f.Write(bytes.Repeat([]byte("y"), 64))
				f.Close()
			}
		}
	}()

	err := waitForStableFile(path, 150*time.Millisecond, 25*time.Millisecond)
	var convErr *Error
	if !errors.As(err, &convErr) || convErr.Code != CodeTimeout {
		t.Fatalf("expected timeout error for growing file, got %v", err)
	}
}

func TestWaitForStableFileRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.pdf")
	if err := os.WriteFile(path, nil, 0o640); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	err := waitForStableFile(path, 80*time.Millisecond, 20*time.Millisecond)
	var convErr *Error
	if !errors.As(err, &convErr) || convErr.Code != CodeTimeout {
		t.Fatalf("expected timeout error for empty file, got %v", err)
	}
}
