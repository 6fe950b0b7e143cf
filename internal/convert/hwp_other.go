//go:build !windows

package convert

import (
	"errors"
	"log"
)

// HWPのOLEオートメーションはWindows上のHancom Officeでのみ利用できます。
// 他のプラットフォームでは初期化エラーとして扱い、ワーカーがジョブを
// failed にします（.odt / .docx のLibreOffice経路は影響を受けません）。

func newAutomationDriver(visible bool) (automationDriver, error) {
	return nil, errors.New("HWP automation is only available on Windows")
}

func killHwpProcess(logger *log.Logger) {}
