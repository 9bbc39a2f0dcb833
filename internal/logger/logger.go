package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// 中文说明：
// 轻量日志封装：支持设置全局级别，便于减少刷屏。
// 另提供分析引擎请求日志（独立文件），排查模型输出问题时使用。

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var current = LevelInfo

func SetLevel(s string) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		current = LevelDebug
	case "info":
		current = LevelInfo
	case "warn", "warning":
		current = LevelWarn
	case "error":
		current = LevelError
	default:
		current = LevelInfo
	}
}

func Debugf(format string, v ...any) {
	if current <= LevelDebug {
		log.Printf("[DEBUG] "+format, v...)
	}
}
func Infof(format string, v ...any) {
	if current <= LevelInfo {
		log.Printf("[INFO] "+format, v...)
	}
}
func Warnf(format string, v ...any) {
	if current <= LevelWarn {
		log.Printf("[WARN] "+format, v...)
	}
}
func Errorf(format string, v ...any) {
	if current <= LevelError {
		log.Printf("[ERROR] "+format, v...)
	}
}

var (
	analysisMu   sync.Mutex
	analysisPath string
)

// SetAnalysisLog 配置分析请求日志文件路径；空串表示关闭。
func SetAnalysisLog(path string) {
	analysisMu.Lock()
	analysisPath = strings.TrimSpace(path)
	analysisMu.Unlock()
}

// LogAnalysisPayload 追加一条模型请求体到分析日志（若已启用）。
func LogAnalysisPayload(model, body string) {
	analysisMu.Lock()
	path := analysisPath
	analysisMu.Unlock()
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		Debugf("analysis log open failed: %v", err)
		return
	}
	defer f.Close()
	ts := time.Now().UTC().Format(time.RFC3339)
	if _, err := fmt.Fprintf(f, "--- %s model=%s\n%s\n", ts, model, body); err != nil {
		Debugf("analysis log write failed: %v", err)
	}
}
