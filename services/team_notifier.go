package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"team-presence/database"
	"team-presence/pkg/common"
)

// TeamNotifier 群机器人通知器, 出勤窗口打开时提醒球队
type TeamNotifier struct {
	webhookURL string
	publicURL  string
	client     *http.Client
	enabled    bool
	logger     common.Logger
}

// NewTeamNotifier 创建通知器, webhook 为空时禁用
func NewTeamNotifier(webhookURL, publicURL string, logger common.Logger) *TeamNotifier {
	enabled := webhookURL != ""
	if enabled {
		logger.Info("Initialized with webhook")
	} else {
		logger.Info("Disabled (no webhook URL)")
	}

	return &TeamNotifier{
		webhookURL: webhookURL,
		publicURL:  strings.TrimSuffix(publicURL, "/"),
		client:     &http.Client{Timeout: 10 * time.Second},
		enabled:    enabled,
		logger:     logger,
	}
}

// ChatMessage webhook 消息结构
type ChatMessage struct {
	MsgType string      `json:"msg_type"`
	Content interface{} `json:"content"`
}

// ChatPostContent 富文本消息内容
type ChatPostContent struct {
	Post ChatPost `json:"post"`
}

type ChatPost struct {
	Default ChatPostLang `json:"en_us"`
}

type ChatPostLang struct {
	Title   string          `json:"title"`
	Content [][]ChatElement `json:"content"`
}

type ChatElement struct {
	Tag  string `json:"tag"`
	Text string `json:"text,omitempty"`
	Href string `json:"href,omitempty"`
}

// Publish 只处理出勤窗口打开的事件
func (n *TeamNotifier) Publish(ctx context.Context, event Event) error {
	if !n.enabled || event.Type != EventPresenceWindow {
		return nil
	}
	m, ok := event.Data.(*database.Match)
	if !ok || !m.PresenceOpen {
		return nil
	}
	return n.NotifyPresenceOpen(ctx, m)
}

// NotifyPresenceOpen 通知球队确认出勤
func (n *TeamNotifier) NotifyPresenceOpen(ctx context.Context, m *database.Match) error {
	venue := "away"
	if m.IsHome {
		venue = "home"
	}

	content := [][]ChatElement{
		{
			{Tag: "text", Text: "📣 Presences are open\n"},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("Opponent: %s (%s, %s)\n", m.Opponent, m.Type, venue)},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("Location: %s\n", m.Location)},
		},
		{
			{Tag: "text", Text: fmt.Sprintf("Date: %s\n", m.Date.Format("2006-01-02 15:04"))},
		},
	}
	if n.publicURL != "" {
		content = append(content, []ChatElement{
			{Tag: "a", Text: "Confirm your presence", Href: fmt.Sprintf("%s/matches/%s", n.publicURL, m.ID)},
		})
	}

	return n.send(ctx, ChatMessage{
		MsgType: "post",
		Content: ChatPostContent{
			Post: ChatPost{
				Default: ChatPostLang{
					Title:   "Match vs " + m.Opponent,
					Content: content,
				},
			},
		},
	})
}

// send 发送消息
func (n *TeamNotifier) send(ctx context.Context, message ChatMessage) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// Close 无需释放资源
func (n *TeamNotifier) Close() error {
	return nil
}
