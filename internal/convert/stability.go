package convert

import (
	"fmt"
	"os"
	"time"
)

const defaultStabilityInterval = 500 * time.Millisecond

// waitForStableFile は外部プロセスが出力するファイルの書き込み完了を推定します。
// 外部プロセスからの完了通知がないため、サイズが0より大きく、かつ直前の観測と
// 同一である読み取りが2回連続した時点で完了とみなします。1回の安定読み取りでは
// 書き込み側がバッファ境界で一時停止しただけの可能性があるため不十分です。
// ポーリング中のファイルアクセスエラーは「未生成」として扱います。
func waitForStableFile(path string, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultStabilityInterval
	}

	deadline := time.Now().Add(timeout)
	var lastSize int64 = -1

	for {
		if info, err := os.Stat(path); err == nil {
			size := info.Size()
			if size > 0 && size == lastSize {
				return nil
			}
			lastSize = size
		} else {
			lastSize = -1
		}

		if time.Now().After(deadline) {
			return newError(CodeTimeout,
				fmt.Sprintf("出力ファイルが %s 以内に安定しませんでした: %s", timeout, path), nil)
		}
		time.Sleep(interval)
	}
}
