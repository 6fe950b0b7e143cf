// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// アプリケーション設定（管理用エンドポイントの認証）
	AppUsername     string // ログイン用ユーザー名
	AppPasswordHash string // bcryptでハッシュ化されたパスワード
	SessionSecret   string // セッション署名用の秘密鍵

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// アップロード設定
	StorageDir  string // ジョブごとのファイルを保存するディレクトリ
	MaxFileSize int64  // 単一ファイルの最大サイズ（バイト）

	// ワーカー/変換設定
	WorkerPollIntervalMS int    // ワーカーがキューを確認する間隔（ミリ秒）
	ConvertTimeoutSec    int    // 変換完了待ちのタイムアウト（秒）
	StabilityPollMS      int    // 出力ファイルの安定検知のポーリング間隔（ミリ秒）
	SofficePath          string // LibreOffice実行ファイルのパス（空の場合は自動検索）
	HwpVisible           bool   // 変換中にHWPウィンドウを表示するか
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// アプリケーション設定
		AppUsername:     getEnv("APP_USERNAME", ""),
		AppPasswordHash: getEnv("APP_PASSWORD_HASH", ""),
		SessionSecret:   getEnv("SESSION_SECRET", ""),

		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// アップロード設定
		StorageDir:  getEnv("STORAGE_DIR", "storage"),
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 104857600), // 100MB

		// ワーカー/変換設定
		WorkerPollIntervalMS: getEnvAsInt("WORKER_POLL_INTERVAL_MS", 1000),
		ConvertTimeoutSec:    getEnvAsInt("CONVERT_TIMEOUT_SEC", 30),
		StabilityPollMS:      getEnvAsInt("STABILITY_POLL_MS", 500),
		SofficePath:          getEnv("SOFFICE_PATH", ""),
		HwpVisible:           getEnvAsBool("HWP_VISIBLE", false),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発では認証設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.AppUsername == "" {
			return fmt.Errorf("APP_USERNAME is required in release mode")
		}
		if c.AppPasswordHash == "" {
			return fmt.Errorf("APP_PASSWORD_HASH is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
	}

	if c.WorkerPollIntervalMS <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL_MS must be positive")
	}
	if c.ConvertTimeoutSec <= 0 {
		return fmt.Errorf("CONVERT_TIMEOUT_SEC must be positive")
	}
	if c.StabilityPollMS <= 0 {
		return fmt.Errorf("STABILITY_POLL_MS must be positive")
	}

	return nil
}

// WorkerPollInterval はワーカーのポーリング間隔を time.Duration で返します。
func (c *Config) WorkerPollInterval() time.Duration {
	return time.Duration(c.WorkerPollIntervalMS) * time.Millisecond
}

// ConvertTimeout は変換完了待ちのタイムアウトを time.Duration で返します。
func (c *Config) ConvertTimeout() time.Duration {
	return time.Duration(c.ConvertTimeoutSec) * time.Second
}

// StabilityInterval は安定検知のポーリング間隔を time.Duration で返します。
func (c *Config) StabilityInterval() time.Duration {
	return time.Duration(c.StabilityPollMS) * time.Millisecond
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
