//go:build windows

package convert

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"time"

	ole "github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

// Hancom Office のオートメーション登録名
const hwpProgID = "HWPFrame.HwpObject"

// oleDriver は go-ole 経由で HWP オートメーションを操作する実装です。
type oleDriver struct {
	hwp *ole.IDispatch
}

// newAutomationDriver は HWP のオートメーションオブジェクトを生成します。
func newAutomationDriver(visible bool) (automationDriver, error) {
	if err := ole.CoInitialize(0); err != nil {
		// 既に初期化済み（S_FALSE）の場合はそのまま続行する
		if oleErr, ok := err.(*ole.OleError); !ok || oleErr.Code() != 1 {
			return nil, fmt.Errorf("failed to initialize COM: %w", err)
		}
	}

	// セキュリティ承認モジュールが未登録だと変換のたびに確認ダイアログが出る
	ensureSecurityModule(log.Default())

	unknown, err := oleutil.CreateObject(hwpProgID)
	if err != nil {
		ole.CoUninitialize()
		return nil, fmt.Errorf("failed to create %s: %w", hwpProgID, err)
	}
	hwp, err := unknown.QueryInterface(ole.IID_IDispatch)
	unknown.Release()
	if err != nil {
		ole.CoUninitialize()
		return nil, fmt.Errorf("failed to query IDispatch: %w", err)
	}

	if _, err := oleutil.CallMethod(hwp, "RegisterModule", "FilePathCheckDLL", securityModuleName); err != nil {
		hwp.Release()
		ole.CoUninitialize()
		return nil, fmt.Errorf("failed to register security module: %w", err)
	}

	if err := setWindowVisible(hwp, visible); err != nil {
		log.Printf("failed to set HWP window visibility: %v", err)
	}

	return &oleDriver{hwp: hwp}, nil
}

func setWindowVisible(hwp *ole.IDispatch, visible bool) error {
	windows, err := oleutil.GetProperty(hwp, "XHwpWindows")
	if err != nil {
		return err
	}
	defer windows.Clear()

	item, err := oleutil.CallMethod(windows.ToIDispatch(), "Item", 0)
	if err != nil {
		return err
	}
	defer item.Clear()

	_, err = oleutil.PutProperty(item.ToIDispatch(), "Visible", visible)
	return err
}

func (d *oleDriver) Open(path, formatHint string) (bool, error) {
	result, err := oleutil.CallMethod(d.hwp, "Open", path, formatHint, "forceopen:true")
	if err != nil {
		return false, err
	}
	defer result.Clear()
	ok, _ := result.Value().(bool)
	return ok, nil
}

func (d *oleDriver) ExportPDF(outputPath string) (bool, error) {
	haction, err := oleutil.GetProperty(d.hwp, "HAction")
	if err != nil {
		return false, err
	}
	defer haction.Clear()

	pset, err := oleutil.GetProperty(d.hwp, "HParameterSet")
	if err != nil {
		return false, err
	}
	defer pset.Clear()

	openSave, err := oleutil.GetProperty(pset.ToIDispatch(), "HFileOpenSave")
	if err != nil {
		return false, err
	}
	defer openSave.Clear()

	hset, err := oleutil.GetProperty(openSave.ToIDispatch(), "HSet")
	if err != nil {
		return false, err
	}
	defer hset.Clear()

	if _, err := oleutil.CallMethod(haction.ToIDispatch(), "GetDefault", "FileSaveAs_S", hset.ToIDispatch()); err != nil {
		return false, err
	}
	if _, err := oleutil.PutProperty(openSave.ToIDispatch(), "filename", outputPath); err != nil {
		return false, err
	}
	if _, err := oleutil.PutProperty(openSave.ToIDispatch(), "Format", "PDF"); err != nil {
		return false, err
	}

	result, err := oleutil.CallMethod(haction.ToIDispatch(), "Execute", "FileSaveAs_S", hset.ToIDispatch())
	if err != nil {
		return false, err
	}
	defer result.Clear()
	ok, _ := result.Value().(bool)
	return ok, nil
}

func (d *oleDriver) ClearDocument() error {
	// 引数 1 = 変更を保存せずに閉じる
	_, err := oleutil.CallMethod(d.hwp, "Clear", 1)
	return err
}

func (d *oleDriver) Quit() error {
	if d.hwp == nil {
		return nil
	}
	_, err := oleutil.CallMethod(d.hwp, "Quit")
	d.hwp.Release()
	d.hwp = nil
	ole.CoUninitialize()
	return err
}

// killHwpProcess は応答しなくなった hwp.exe を強制終了します。
func killHwpProcess(logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "taskkill", "/F", "/IM", "hwp.exe")
	if err := cmd.Run(); err != nil {
		logger.Printf("failed to kill hwp.exe: %v", err)
		return
	}
	logger.Printf("killed hwp.exe process")
}
