// Package stream 订阅报价桥的 websocket 行情，把 JSON 报价推给下游通道。
// 线上消息格式：
//
//	{"symbol":"EURUSD","bid":1.08520,"ask":1.08540,"time":1724300000000}
//
// 掉线后按指数退避自动重连，通道写满时丢弃报价而不是阻塞读循环。
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"kestrel/internal/logger"
	"kestrel/internal/market"
	"kestrel/internal/pairs"
)

// Config 报价桥连接参数。
type Config struct {
	URL               string
	ReconnectDelay    time.Duration // 首次重连等待，默认 2s
	MaxReconnectDelay time.Duration // 退避上限，默认 30s
}

func (c *Config) defaults() {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Client 报价桥客户端。
type Client struct {
	cfg Config

	// OnReconnect 每次断线重连前回调一次，可选。
	OnReconnect func()
}

func New(cfg Config) (*Client, error) {
	cfg.defaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("market.stream.url 不能为空")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("market.stream.url 非法: %w", err)
	}
	return &Client{cfg: cfg}, nil
}

// Run 连接报价桥并持续把报价写入 out，阻塞直到 ctx 取消。
// 断线自动重连，退避逐次翻倍直到上限。
func (c *Client) Run(ctx context.Context, out chan<- market.Quote) error {
	delay := c.cfg.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := c.runOnce(ctx, out)
		if err == nil {
			return nil
		}

		logger.Warnf("stream 连接断开(%v)，%s 后重连", err, delay)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// runOnce 单次连接，读到断线或 ctx 取消为止。ctx 取消返回 nil。
func (c *Client) runOnce(ctx context.Context, out chan<- market.Quote) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Infof("stream 已连接 %s", c.cfg.URL)

	// ctx 取消时主动关连接，促使 ReadMessage 立即返回
	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		q, ok := parseQuote(raw, time.Now)
		if !ok {
			continue
		}

		select {
		case out <- q:
		default:
			logger.Warnf("stream 报价通道已满，丢弃 %s", q.Symbol)
		}
	}
}

type wireQuote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Price  float64 `json:"price"`
	TimeMs int64   `json:"time"`
}

// parseQuote 解码一条桥报价。返回 false 表示该条应被丢弃。
func parseQuote(raw []byte, now func() time.Time) (market.Quote, bool) {
	var w wireQuote
	if err := json.Unmarshal(raw, &w); err != nil {
		logger.Warnf("stream 报价解析失败: %v", err)
		return market.Quote{}, false
	}
	sym := pairs.Normalize(w.Symbol)
	if sym == "" {
		return market.Quote{}, false
	}
	if w.Bid == 0 && w.Ask == 0 && w.Price == 0 {
		return market.Quote{}, false
	}
	q := market.Quote{Symbol: sym, Bid: w.Bid, Ask: w.Ask, Price: w.Price}
	if q.Price == 0 {
		q.Price = q.Mid()
	}
	if w.TimeMs > 0 {
		q.Time = time.UnixMilli(w.TimeMs)
	} else {
		q.Time = now()
	}
	return q, true
}
