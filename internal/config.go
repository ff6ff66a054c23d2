package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 遊戲服務器配置
//
// 設計原則：
//   - 程式碼內建預設值（DefaultConfig），無配置檔也能直接啟動
//   - YAML 檔案覆蓋預設值（部署環境差異：端口、日誌格式）
//   - 遊戲規則常數（場地尺寸、球速）不放配置：它們是物理引擎的一部分，
//     客戶端渲染依賴相同數值，不應被運維隨手改動
type Config struct {
	// HTTP 服務監聽位址
	Addr string `yaml:"addr"`

	// 物理推進頻率（每秒 Tick 數）
	TickRate int `yaml:"tick_rate"`

	// 雙方準備就緒後到發球的倒數秒數
	CountdownSeconds int `yaml:"countdown_seconds"`

	// 先達到此分數的一方獲勝
	PointLimit int `yaml:"point_limit"`

	// 日誌配置
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	return &Config{
		Addr:             ":4000",
		TickRate:         60, // 60 Hz，約 16.67ms 一幀
		CountdownSeconds: 3,
		PointLimit:       10,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// LoadConfig 載入配置：先取預設值，再以 YAML 檔案覆蓋
//
// path 為空字串時直接使用預設配置（本地開發的常見情況）。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置檔失敗: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 驗證配置合法性
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("監聽位址不能為空")
	}
	if c.TickRate <= 0 || c.TickRate > 1000 {
		return fmt.Errorf("tick_rate 必須在 1-1000 之間: %d", c.TickRate)
	}
	if c.CountdownSeconds < 0 {
		return fmt.Errorf("countdown_seconds 不能為負數: %d", c.CountdownSeconds)
	}
	if c.PointLimit <= 0 {
		return fmt.Errorf("point_limit 必須大於 0: %d", c.PointLimit)
	}
	return nil
}

// TickInterval 物理推進間隔
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// Countdown 倒數時長
func (c *Config) Countdown() time.Duration {
	return time.Duration(c.CountdownSeconds) * time.Second
}
