// Package storage はアップロードされたファイルのローカル保存を提供します。
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Local はジョブごとのディレクトリ配下にファイルを保存します。
// レイアウト: <baseDir>/<uploadID>/source.<ext>
type Local struct {
	baseDir string
}

// NewLocal は Local を作成し、ベースディレクトリを用意します。
func NewLocal(baseDir string) (*Local, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Local{baseDir: baseDir}, nil
}

// SaveUpload はアップロードされた内容を新しいジョブディレクトリに保存し、
// 保存先パスと検出したMIMEタイプを返します。
// ディレクトリの作成とファイルの書き込みはジョブ登録より前に完了させる必要が
// あるため、ここではジョブIDではなく独立したIDでディレクトリを切ります。
func (l *Local) SaveUpload(r io.Reader, originalName string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	dir := filepath.Join(l.baseDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", "", fmt.Errorf("failed to create job dir: %w", err)
	}

	path := filepath.Join(dir, "source"+ext)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		_ = os.RemoveAll(dir)
		return "", "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.RemoveAll(dir)
		return "", "", fmt.Errorf("failed to close file: %w", err)
	}

	// MIMEの検出失敗は保存の失敗としては扱わない（ログ表示用の補助情報）
	detected := ""
	if mtype, err := mimetype.DetectFile(path); err == nil {
		detected = mtype.String()
	}

	return path, detected, nil
}
