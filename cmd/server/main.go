package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koopa0/system-design/14-realtime-pong/internal"
)

func main() {
	// 解析命令行參數（空值表示沿用配置檔/預設值）
	var (
		configPath = flag.String("config", "", "YAML 配置檔路徑（可選）")
		addr       = flag.String("addr", "", "服務監聽位址，如 :4000")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	// 載入配置：預設值 ← 配置檔 ← 命令行
	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		slog.Error("載入配置失敗", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}

	// 設置日誌
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// 組裝：註冊表 → 連線中心 / 讀取 API → 物理調度器
	registry := internal.NewRegistry(cfg, logger)
	hub := internal.NewHub(registry, logger)
	handler := internal.NewHandler(registry, logger)

	ticker := internal.NewTicker(registry, cfg.TickInterval(), logger)
	ticker.Start()

	// 設置路由
	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.HandleFunc("/ws", hub.ServeWS)

	// 創建 HTTP 服務器
	// 注意：不設整體 Read/Write 超時，否則長連線的 WebSocket 會被切斷；
	// WebSocket 的活性由讀寫泵的心跳期限管理
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// 啟動服務器
	go func() {
		logger.Info("對戰服務器啟動",
			"addr", cfg.Addr,
			"tick_rate", cfg.TickRate,
			"point_limit", cfg.PointLimit)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("服務器啟動失敗", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("收到關閉信號，開始優雅關閉...")

	// 優雅關閉：先停收新請求，再停調度器與連線
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	ticker.Stop()
	hub.Stop()

	logger.Info("服務器已關閉")
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
