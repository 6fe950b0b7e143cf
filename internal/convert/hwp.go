package convert

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourusername/hwp-forge/internal/config"
)

const initAttempts = 2

// automationDriver はHWPオートメーションオブジェクトへの薄い窓口です。
// 実体はWindowsのOLEオートメーション（hwp_windows.go）で、テストでは
// フェイクに差し替えます。
type automationDriver interface {
	// Open は文書を開きます。formatHint は "HWP" / "HWPX"、空文字で自動判別です。
	Open(path, formatHint string) (bool, error)
	// ExportPDF は現在の文書をPDFとして保存します。保存呼び出しは
	// ファイルの書き込み完了を待たずに戻ることがあります。
	ExportPDF(outputPath string) (bool, error)
	// ClearDocument は文書を保存せずに閉じます。
	ClearDocument() error
	// Quit はオートメーションオブジェクトを終了し、リソースを解放します。
	Quit() error
}

// HwpConverter はHWP/HWPX文書をOLEオートメーション経由でPDFに変換します。
type HwpConverter struct {
	timeout           time.Duration
	stabilityInterval time.Duration
	visible           bool
	logger            *log.Logger

	driver automationDriver

	// プラットフォーム依存部分と出力検証。テストで差し替えます。
	newDriver      func(visible bool) (automationDriver, error)
	killProcess    func(logger *log.Logger)
	validateOutput func(path string) error
}

// NewHwpConverter は HwpConverter を作成します。
// オートメーションオブジェクトの生成は最初の変換まで遅延されます。
func NewHwpConverter(cfg *config.Config, logger *log.Logger) *HwpConverter {
	if logger == nil {
		logger = log.Default()
	}
	return &HwpConverter{
		timeout:           cfg.ConvertTimeout(),
		stabilityInterval: cfg.StabilityInterval(),
		visible:           cfg.HwpVisible,
		logger:            logger,
		newDriver:         newAutomationDriver,
		killProcess:       killHwpProcess,
		validateOutput:    validatePDF,
	}
}

// Convert はHWP/HWPXファイルをPDFに変換します。
// オートメーションリソースは成功・失敗にかかわらず必ず解放します。
func (c *HwpConverter) Convert(ctx context.Context, inputPath, outputPath string) (_ string, err error) {
	defer func() {
		c.Close()
		// エラー時は応答しなくなったプロセスが残っている可能性があるため強制終了する
		if err != nil {
			c.killProcess(c.logger)
		}
	}()

	if _, statErr := os.Stat(inputPath); statErr != nil {
		return "", newError(CodeConversionFailed,
			fmt.Sprintf("入力ファイルが見つかりません: %s", inputPath), statErr)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return "", newError(CodeConversionFailed, "出力ディレクトリの作成に失敗しました", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := c.ensureInitialized(); err != nil {
		return "", err
	}

	formatHint := "HWP"
	if strings.ToLower(filepath.Ext(inputPath)) == ".hwpx" {
		formatHint = "HWPX"
	}

	opened, openErr := c.driver.Open(inputPath, formatHint)
	if openErr != nil || !opened {
		// 形式指定で開けない場合は自動判別で1回だけ再試行する
		c.logger.Printf("failed to open %s with format %q, retrying with auto-detect", inputPath, formatHint)
		opened, openErr = c.driver.Open(inputPath, "")
		if openErr != nil || !opened {
			return "", newError(CodeConversionFailed,
				fmt.Sprintf("ファイルを開けませんでした: %s", inputPath), openErr)
		}
	}

	saved, saveErr := c.driver.ExportPDF(outputPath)
	if saveErr != nil || !saved {
		return "", newError(CodeConversionFailed, "PDFの保存に失敗しました", saveErr)
	}

	if err := c.driver.ClearDocument(); err != nil {
		c.logger.Printf("failed to clear document after export: %v", err)
	}

	// 保存呼び出しはファイルのフラッシュを待たないため、サイズが安定するまで待つ
	if err := waitForStableFile(outputPath, c.timeout, c.stabilityInterval); err != nil {
		return "", err
	}

	if err := c.validateOutput(outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}

// ensureInitialized はオートメーションオブジェクトを初期化します。
// 失敗時はゾンビプロセスを強制終了してから1回だけ再試行します。
func (c *HwpConverter) ensureInitialized() error {
	if c.driver != nil {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= initAttempts; attempt++ {
		driver, err := c.newDriver(c.visible)
		if err == nil {
			c.driver = driver
			c.logger.Printf("HWP automation object initialized")
			return nil
		}
		lastErr = err
		c.logger.Printf("HWP initialization attempt %d failed: %v", attempt, err)
		if attempt < initAttempts {
			c.killProcess(c.logger)
		}
	}
	return newError(CodeInitFailed, "HWPオートメーションの初期化に失敗しました。Hancom Office がインストールされているか確認してください", lastErr)
}

// Close はオートメーションリソースを解放します。複数回呼び出しても安全です。
func (c *HwpConverter) Close() {
	if c.driver == nil {
		return
	}
	if err := c.driver.Quit(); err != nil {
		c.logger.Printf("error while closing HWP automation object: %v", err)
	}
	c.driver = nil
}
