package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/yourusername/hwp-forge/internal/config"
)

// SofficeConverter はODT/DOCX文書をLibreOfficeのヘッドレス実行でPDFに変換します。
type SofficeConverter struct {
	path   string // 実行ファイルのパス（空の場合は自動検索）
	logger *log.Logger

	// 出力PDFの検証。テストで差し替えます。
	validate func(path string) error
}

// NewSofficeConverter は SofficeConverter を作成します。
func NewSofficeConverter(cfg *config.Config, logger *log.Logger) *SofficeConverter {
	if logger == nil {
		logger = log.Default()
	}
	return &SofficeConverter{
		path:     cfg.SofficePath,
		logger:   logger,
		validate: validatePDF,
	}
}

// Convert は soffice --headless --convert-to pdf を実行して変換します。
// LibreOfficeは出力ファイル名を入力ファイル名から決めるため、要求された
// outputPath と異なる場合はリネームします（既存ファイルは置き換え）。
func (c *SofficeConverter) Convert(ctx context.Context, inputPath, outputPath string) (string, error) {
	bin := c.path
	if bin == "" {
		bin = locateSoffice()
	}
	if bin == "" {
		return "", newError(CodeInitFailed,
			"LibreOffice (soffice) が PATH にも標準のインストール先にも見つかりません", nil)
	}

	outDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return "", newError(CodeConversionFailed, "出力ディレクトリの作成に失敗しました", err)
	}

	cmd := exec.CommandContext(ctx, bin,
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outDir,
		inputPath,
	)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if isExecNotFound(err) {
			return "", newError(CodeInitFailed,
				"LibreOffice (soffice) の実行ファイルが見つかりません", err)
		}
		return "", newError(CodeConversionFailed,
			fmt.Sprintf("LibreOfficeによる変換に失敗しました: %s", strings.TrimSpace(output.String())), err)
	}

	// 出力ファイル名は入力の拡張子を除いた名前で決まる
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	produced := filepath.Join(outDir, stem+".pdf")
	if _, err := os.Stat(produced); err != nil {
		return "", newError(CodeConversionFailed,
			fmt.Sprintf("変換後のPDFが見つかりません: %s", produced), err)
	}

	if produced != outputPath {
		if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
			return "", newError(CodeConversionFailed, "既存の出力ファイルを置き換えられませんでした", err)
		}
		if err := os.Rename(produced, outputPath); err != nil {
			return "", newError(CodeConversionFailed, "出力ファイルのリネームに失敗しました", err)
		}
	}

	if err := c.validate(outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}

func isExecNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// locateSoffice は soffice の実行ファイルを探します。
// PATH を先に確認し、見つからなければ標準のインストール先を確認します。
func locateSoffice() string {
	for _, name := range []string{"libreoffice", "soffice"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	var candidates []string
	if runtime.GOOS == "windows" {
		for _, env := range []string{"ProgramFiles", "ProgramFiles(x86)"} {
			if base := os.Getenv(env); base != "" {
				candidates = append(candidates, filepath.Join(base, "LibreOffice", "program", "soffice.exe"))
			}
		}
	} else {
		candidates = append(candidates,
			"/usr/bin/soffice",
			"/opt/libreoffice/program/soffice",
			"/Applications/LibreOffice.app/Contents/MacOS/soffice",
		)
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
