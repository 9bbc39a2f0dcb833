package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kestrel/internal/logger"
	"kestrel/internal/pkg/jsonutil"
	"kestrel/internal/pkg/sliceutil"
)

// 中文说明：
// 聊天引擎：一个 OpenAI 兼容模型即一个引擎实例，多模型的分歧交给
// Adapter 的聚合器处理。客户端自带 429/5xx 重试与 Retry-After 退避。

// ChatPayload 一次对话请求的材料
type ChatPayload struct {
	System    string
	User      string
	Images    []ImagePayload
	MaxTokens int
}

// ChatClient OpenAI 兼容的 chat/completions 客户端
type ChatClient struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxRetries   int
	ExtraHeaders map[string]string
}

func (c *ChatClient) Call(ctx context.Context, payload ChatPayload) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := c.MaxRetries
	if retries <= 0 {
		retries = 2
	}

	body := c.buildBody(payload)
	logger.LogAnalysisPayload(c.Model, jsonutil.Pretty(string(body)))

	httpc := &http.Client{Timeout: timeout}
	url := c.completionsURL()
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		for k, v := range c.headers() {
			req.Header.Set(k, v)
		}
		resp, err := httpc.Do(req)
		if err != nil {
			lastErr = err
			break
		}
		if resp.StatusCode/100 == 2 {
			return decodeChatContent(resp)
		}
		msg := decodeChatError(resp)
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
		if retryableStatus(resp.StatusCode) && attempt < retries {
			time.Sleep(retryAfter(resp.Header.Get("Retry-After"), attempt))
			continue
		}
		break
	}
	return "", lastErr
}

func (c *ChatClient) completionsURL() string {
	url := strings.TrimRight(c.BaseURL, "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func (c *ChatClient) buildBody(payload ChatPayload) []byte {
	messages := make([]map[string]any, 0, 2)
	if payload.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": payload.System})
	}
	messages = append(messages, userMessage(payload))

	maxTokens := payload.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	body := map[string]any{
		"model":           c.Model,
		"messages":        messages,
		"temperature":     0.3,
		"max_tokens":      maxTokens,
		"response_format": map[string]string{"type": "json_object"},
	}
	b, _ := json.Marshal(body)
	return b
}

func userMessage(payload ChatPayload) map[string]any {
	if len(payload.Images) == 0 {
		return map[string]any{"role": "user", "content": payload.User}
	}
	content := make([]map[string]any, 0, len(payload.Images)*2+1)
	content = append(content, map[string]any{"type": "text", "text": payload.User})
	for _, img := range payload.Images {
		uri := strings.TrimSpace(img.DataURI)
		if uri == "" {
			continue
		}
		content = append(content, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": uri},
		})
		if desc := strings.TrimSpace(img.Description); desc != "" {
			content = append(content, map[string]any{"type": "text", "text": desc})
		}
	}
	return map[string]any{"role": "user", "content": content}
}

func (c *ChatClient) headers() map[string]string {
	out := map[string]string{"Content-Type": "application/json"}
	if c.APIKey != "" {
		out["Authorization"] = "Bearer " + c.APIKey
	}
	for k, v := range c.ExtraHeaders {
		out[k] = v
	}
	return out
}

func decodeChatContent(resp *http.Response) (string, error) {
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Debugf("chat response body close failed: %v", cerr)
		}
	}()
	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", err
	}
	if len(r.Choices) == 0 {
		return "", fmt.Errorf("empty choices")
	}
	return r.Choices[0].Message.Content, nil
}

func decodeChatError(resp *http.Response) string {
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			logger.Debugf("chat response body close failed: %v", cerr)
		}
	}()
	var eresp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&eresp); err == nil && strings.TrimSpace(eresp.Error.Message) != "" {
		return eresp.Error.Message
	}
	return resp.Status
}

func retryableStatus(code int) bool {
	return code == 429 || code == 500 || code == 502 || code == 503 || code == 504
}

func retryAfter(v string, attempt int) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	wait := 800 * time.Millisecond << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}

// ChatEngine 绑定单个模型的分析引擎
type ChatEngine struct {
	id     string
	client *ChatClient
	vision bool
}

func NewChatEngine(id string, client *ChatClient, vision bool) *ChatEngine {
	return &ChatEngine{id: id, client: client, vision: vision}
}

func (e *ChatEngine) Name() string { return e.id }

func (e *ChatEngine) Analyze(ctx context.Context, in Input) (Recommendation, error) {
	if e.client == nil {
		return Recommendation{}, fmt.Errorf("模型 %s 未配置", e.id)
	}
	payload := ChatPayload{System: buildSystemPrompt(in), User: buildUserPrompt(in)}
	if e.vision {
		payload.Images = in.Images
	}
	raw, err := e.client.Call(ctx, payload)
	if err != nil {
		return Recommendation{}, fmt.Errorf("模型 %s 调用失败: %w", e.id, err)
	}
	rec, err := parseChatRecommendation(raw)
	if err != nil {
		return Recommendation{}, fmt.Errorf("模型 %s 输出解析失败: %w", e.id, err)
	}

	rec.Pair = in.Spec.Symbol
	rec.Style = in.Style.Name
	rec.Timeframes = sliceutil.Strings(in.Periods)
	rec.NewsCount = len(in.Articles)
	rec.Engine = e.id
	rec.GeneratedAt = time.Now()
	fillPricesFromPips(&rec, in)
	return rec, nil
}

type chatRecommendation struct {
	Recommendation string  `json:"recommendation"`
	Direction      string  `json:"direction"`
	Confidence     float64 `json:"confidence"`
	EntryZone      struct {
		Min  float64 `json:"min"`
		Max  float64 `json:"max"`
		Note string  `json:"price_description"`
	} `json:"entry_zone"`
	StopLoss struct {
		Price       float64 `json:"price"`
		Pips        float64 `json:"pips"`
		Description string  `json:"description"`
	} `json:"stop_loss"`
	TakeProfit struct {
		Price       float64 `json:"price"`
		Pips        float64 `json:"pips"`
		Description string  `json:"description"`
	} `json:"take_profit"`
	RiskRewardRatio float64  `json:"risk_reward_ratio"`
	Alignment       string   `json:"alignment"`
	Reasoning       string   `json:"reasoning"`
	KeyLevels       []string `json:"key_levels"`
}

// parseChatRecommendation 从模型文本中取首个配平的 JSON 对象并解析。
func parseChatRecommendation(raw string) (Recommendation, error) {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return Recommendation{}, fmt.Errorf("未找到 JSON 建议对象")
	}
	var payload chatRecommendation
	if err := json.Unmarshal([]byte(obj), &payload); err != nil {
		return Recommendation{}, err
	}

	direction := NormalizeDirection(payload.Recommendation)
	if direction == "" {
		direction = NormalizeDirection(payload.Direction)
	}
	if direction == "" {
		return Recommendation{}, fmt.Errorf("无法识别方向 %q", payload.Recommendation)
	}

	confidence := int(payload.Confidence)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	rec := Recommendation{
		Direction:  direction,
		Confidence: confidence,
		EntryZone:  EntryZone{Min: payload.EntryZone.Min, Max: payload.EntryZone.Max, Note: payload.EntryZone.Note},
		StopLoss: PricePips{
			Price: payload.StopLoss.Price, Pips: payload.StopLoss.Pips,
			Description: payload.StopLoss.Description,
		},
		TakeProfit: PricePips{
			Price: payload.TakeProfit.Price, Pips: payload.TakeProfit.Pips,
			Description: payload.TakeProfit.Description,
		},
		RiskReward: payload.RiskRewardRatio,
		Alignment:  normalizeAlignment(payload.Alignment),
		Reasoning:  strings.TrimSpace(payload.Reasoning),
		KeyLevels:  payload.KeyLevels,
	}
	if rec.RiskReward == 0 && rec.StopLoss.Pips > 0 && rec.TakeProfit.Pips > 0 {
		rec.RiskReward = rec.TakeProfit.Pips / rec.StopLoss.Pips
	}
	return rec, nil
}

func normalizeAlignment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case AlignmentAligned:
		return AlignmentAligned
	case AlignmentConflicting:
		return AlignmentConflicting
	}
	return AlignmentMixed
}

// fillPricesFromPips 模型只报点数时按现价折算绝对价位。
func fillPricesFromPips(rec *Recommendation, in Input) {
	current := in.CurrentPrice()
	if rec.Hold() || current <= 0 {
		return
	}
	offsetStop := in.Spec.PriceOffset(rec.StopLoss.Pips)
	offsetTake := in.Spec.PriceOffset(rec.TakeProfit.Pips)
	if rec.Direction == DirectionBuy {
		if rec.StopLoss.Price == 0 && rec.StopLoss.Pips > 0 {
			rec.StopLoss.Price = current - offsetStop
		}
		if rec.TakeProfit.Price == 0 && rec.TakeProfit.Pips > 0 {
			rec.TakeProfit.Price = current + offsetTake
		}
	} else {
		if rec.StopLoss.Price == 0 && rec.StopLoss.Pips > 0 {
			rec.StopLoss.Price = current + offsetStop
		}
		if rec.TakeProfit.Price == 0 && rec.TakeProfit.Pips > 0 {
			rec.TakeProfit.Price = current - offsetTake
		}
	}
	if rec.EntryZone.Min == 0 && rec.EntryZone.Max == 0 {
		band := 2 * in.Spec.PipSize
		rec.EntryZone = EntryZone{Min: current - band, Max: current + band, Note: "market"}
	}
}

// extractJSONObject 找首个配平的 JSON 对象，忽略字符串里的花括号。
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1]), true
			}
		}
	}
	return "", false
}
