// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/hwp-forge/internal/auth"
	"github.com/yourusername/hwp-forge/internal/config"
	"github.com/yourusername/hwp-forge/internal/convert"
	"github.com/yourusername/hwp-forge/internal/jobs"
	"github.com/yourusername/hwp-forge/internal/storage"
	"github.com/yourusername/hwp-forge/internal/worker"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.Default()

	// ストレージとジョブ登録簿の初期化
	store, err := storage.NewLocal(cfg.StorageDir)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	registry := jobs.NewRegistry()

	// 変換ワーカーの構築（変換は常に1件ずつ実行される）
	selector := convert.NewSelector(cfg, logger)
	conversionWorker := worker.New(registry, selector, cfg.WorkerPollInterval(), logger)

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// セッションストアの設定（管理用エンドポイントの認証で使用）
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, sessionStore))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-CSRF-Token",
	}
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, cfg, registry, store, conversionWorker, logger)

	// ワーカーとサーバーの起動
	conversionWorker.Start()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// シグナルを受けたらワーカーを止めてからサーバーを閉じる
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Printf("Shutting down...")

	conversionWorker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("Server shutdown error: %v", err)
	}
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	registry *jobs.Registry,
	store *storage.Local,
	conversionWorker *worker.Worker,
	logger *log.Logger,
) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "ok",
			"service":       "hwp-forge-api",
			"workerRunning": conversionWorker.IsRunning(),
		})
	})

	authManager := auth.NewManager(cfg)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/login", authManager.Login)
			authRoutes.POST("/logout",
				authManager.RequireLogin(),
				authManager.VerifyCSRF(),
				authManager.Logout,
			)
		}

		// 変換の受付と結果取得は認証不要
		api.POST("/upload", jobs.UploadHandler(registry, store, cfg.MaxFileSize, logger))
		api.GET("/status/:id", jobs.StatusHandler(registry))
		api.GET("/download/:id", jobs.DownloadHandler(registry))

		// 診断・リセットは管理用（要ログイン）
		admin := api.Group("/jobs")
		admin.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
		{
			admin.GET("", jobs.ListHandler(registry))
			admin.POST("/clear", jobs.ClearHandler(registry, logger))
		}
	}
}
