// Package notifier 把交易信号与机器人异常推送到外部渠道。
package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Telegram 消息长度上限之下再留点余量
const maxMessageLen = 3800

// Telegram 通过 Bot API 推送文本消息。
type Telegram struct {
	client *resty.Client
	token  string
	chatID string
}

func NewTelegram(botToken, chatID string) *Telegram {
	client := resty.New().
		SetBaseURL("https://api.telegram.org").
		SetTimeout(10 * time.Second)
	return &Telegram{client: client, token: botToken, chatID: chatID}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendText 发送一条 Markdown 文本，超长自动截断。
func (t *Telegram) SendText(msg string) error {
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen] + "..."
	}
	var out apiResponse
	resp, err := t.client.R().
		SetBody(map[string]string{
			"chat_id":    t.chatID,
			"text":       msg,
			"parse_mode": "Markdown",
		}).
		SetResult(&out).
		SetError(&out).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram 发送失败: %w", err)
	}
	if resp.IsError() || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = resp.Status()
		}
		return fmt.Errorf("telegram 拒绝消息: %s", desc)
	}
	return nil
}

// SendBlock 按固定版式发送：标题一行，正文包在代码块里。
func (t *Telegram) SendBlock(title string, lines ...string) error {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n```\n")
	for _, line := range lines {
		b.WriteString(strings.ReplaceAll(line, "```", "'''"))
		b.WriteString("\n")
	}
	b.WriteString("```")
	return t.SendText(b.String())
}
