package analysis

import (
	"fmt"
	"strings"
	"time"
)

// ModelConfig 与配置文件 [analysis.models] 条目一一对应。
type ModelConfig struct {
	ID       string
	Provider string
	Enabled  bool
	APIURL   string
	APIKey   string
	Model    string
	Headers  map[string]string
}

// BuildEngines 按 engine 模式构造引擎列表：
// indicator 仅指标引擎；chat 仅启用的模型；both 两者都要。
func BuildEngines(mode string, models []ModelConfig, timeout time.Duration, withVision bool) ([]Engine, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "indicator"
	}
	switch mode {
	case "indicator", "chat", "both":
	default:
		return nil, fmt.Errorf("未知的 analysis.engine: %s", mode)
	}

	var out []Engine
	if mode == "indicator" || mode == "both" {
		out = append(out, NewIndicatorEngine())
	}
	if mode == "chat" || mode == "both" {
		for _, m := range models {
			if !m.Enabled {
				continue
			}
			id := strings.TrimSpace(m.ID)
			if id == "" {
				id = m.Model
			}
			client := &ChatClient{
				BaseURL:      m.APIURL,
				APIKey:       m.APIKey,
				Model:        m.Model,
				Timeout:      timeout,
				ExtraHeaders: m.Headers,
			}
			out = append(out, NewChatEngine(id, client, withVision))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("analysis.engine=%s 下没有可用引擎", mode)
	}
	return out, nil
}
