package pairs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Provider 品种来源接口
type Provider interface {
	List(ctx context.Context) ([]string, error)
	Name() string
}

// 默认实现：静态列表
type DefaultProvider struct{ symbols []string }

func NewDefaultProvider(symbols []string) *DefaultProvider {
	if len(symbols) == 0 {
		symbols = DefaultSymbols
	}
	return &DefaultProvider{symbols: symbols}
}
func (p *DefaultProvider) Name() string { return "default" }
func (p *DefaultProvider) List(ctx context.Context) ([]string, error) {
	if len(p.symbols) == 0 {
		return nil, errors.New("默认品种列表为空")
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(p.symbols))
	for _, s := range p.symbols {
		s = Normalize(s)
		if len(s) != 6 {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.New("标准化后品种列表为空")
	}
	return out, nil
}

// HTTP 实现：从自定义 API 拉取。支持两种返回格式：
// 1) ["EURUSD","XAUUSD",...]
// 2) {"pairs": ["EURUSD","XAUUSD",...]}
type HTTPProvider struct {
	URL    string
	Client *http.Client
}

func NewHTTPProvider(url string) *HTTPProvider {
	return &HTTPProvider{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}
func (p *HTTPProvider) Name() string { return "http" }
func (p *HTTPProvider) List(ctx context.Context) ([]string, error) {
	if p.URL == "" {
		return nil, errors.New("pairs.api_url 未配置")
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, errors.New("http 状态异常")
	}
	// 尝试解析两种形式
	var arr []string
	if err := json.NewDecoder(resp.Body).Decode(&arr); err == nil {
		return NewDefaultProvider(arr).List(ctx)
	}
	// 回退解析对象包装
	resp.Body.Close()
	req2, _ := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	resp2, err := p.Client.Do(req2)
	if err != nil {
		return nil, err
	}
	defer resp2.Body.Close()
	var obj struct {
		Pairs []string `json:"pairs"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&obj); err != nil {
		return nil, err
	}
	return NewDefaultProvider(obj.Pairs).List(ctx)
}
