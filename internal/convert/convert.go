// Package convert は外部アプリケーションによる文書→PDF変換アダプターを提供します。
package convert

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/yourusername/hwp-forge/internal/config"
)

// Converter は1ファイルの変換を実行します。
// 成功時には生成されたPDFのパスを返します。
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string) (string, error)
}

// Selector は入力ファイルの拡張子に応じて変換バックエンドを選択します。
type Selector struct {
	cfg    *config.Config
	logger *log.Logger
}

// NewSelector は Selector を作成します。
func NewSelector(cfg *config.Config, logger *log.Logger) *Selector {
	if logger == nil {
		logger = log.Default()
	}
	return &Selector{cfg: cfg, logger: logger}
}

// ForFile はファイルパスの拡張子（小文字化）でバックエンドを選択します。
// 対応していない拡張子の場合はバックエンドを一切生成せずにエラーを返します。
func (s *Selector) ForFile(path string) (Converter, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".hwp", ".hwpx":
		return NewHwpConverter(s.cfg, s.logger), nil
	case ".odt", ".docx":
		return NewSofficeConverter(s.cfg, s.logger), nil
	default:
		return nil, newError(CodeUnsupportedType,
			fmt.Sprintf("対応していないファイル形式です: %s（.hwp / .hwpx / .odt / .docx のみ対応）", ext), nil)
	}
}

// validatePDF は生成されたファイルがPDFとして読めることを確認します。
func validatePDF(path string) error {
	if err := pdfapi.ValidateFile(path, nil); err != nil {
		return newError(CodeConversionFailed,
			fmt.Sprintf("生成されたPDFの検証に失敗しました: %s", path), err)
	}
	return nil
}
