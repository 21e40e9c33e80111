package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/IshaanNene/trendscope/internal/report"
	"github.com/IshaanNene/trendscope/internal/types"
)

const (
	wechatTimeout      = 10 * time.Second
	wechatPreviewLines = 15
	wechatPreviewChars = 1000
)

// WeChatNotifier posts to a WeCom (WeChat Work) group robot webhook.
type WeChatNotifier struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

// NewWeChatNotifier returns ErrNotifierDisabled when no webhook is set.
func NewWeChatNotifier(webhookURL string, logger *slog.Logger) (*WeChatNotifier, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("%w: wechat webhook URL is empty", types.ErrNotifierDisabled)
	}
	return &WeChatNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: wechatTimeout},
		logger:     logger.With("component", "wechat"),
	}, nil
}

func (n *WeChatNotifier) Name() string { return "wechat" }

type wechatText struct {
	Content       string   `json:"content"`
	MentionedList []string `json:"mentioned_list,omitempty"`
}

type wechatMarkdown struct {
	Content string `json:"content"`
}

type wechatMessage struct {
	MsgType  string          `json:"msgtype"`
	Text     *wechatText     `json:"text,omitempty"`
	Markdown *wechatMarkdown `json:"markdown,omitempty"`
}

type wechatResult struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// SendText sends a plain text message, optionally mentioning members
// ("@all" mentions everyone).
func (n *WeChatNotifier) SendText(ctx context.Context, content string, mentioned []string) error {
	return n.send(ctx, wechatMessage{
		MsgType: "text",
		Text:    &wechatText{Content: content, MentionedList: mentioned},
	})
}

// SendMarkdown sends a Markdown message.
func (n *WeChatNotifier) SendMarkdown(ctx context.Context, content string) error {
	return n.send(ctx, wechatMessage{
		MsgType:  "markdown",
		Markdown: &wechatMarkdown{Content: content},
	})
}

// SendReportSummary implements Notifier.
func (n *WeChatNotifier) SendReportSummary(ctx context.Context, s Summary) error {
	return n.SendMarkdown(ctx, wechatSummary(s))
}

// SendTest implements Notifier.
func (n *WeChatNotifier) SendTest(ctx context.Context) error {
	return n.SendText(ctx, "trendscope 测试消息："+time.Now().Format(report.TimeLayout), nil)
}

func wechatSummary(s Summary) string {
	return fmt.Sprintf("# 📊 %s Trending 日报已生成\n\n"+
		"**生成时间**: %s\n"+
		"**项目总数**: %d 个\n"+
		"**报告文件**: `%s`\n\n"+
		"## 📄 报告预览\n\n```\n%s\n```\n\n---\n*报告文件已保存到: %s*\n",
		s.Source.DisplayName(),
		s.GeneratedAt.Format(report.TimeLayout),
		s.Total,
		filepath.Base(s.ReportPath),
		preview(s.ReportPath, wechatPreviewLines, wechatPreviewChars),
		s.ReportPath,
	)
}

// send posts msg; it succeeds only on a 2xx status with errcode 0.
func (n *WeChatNotifier) send(ctx context.Context, msg wechatMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return &types.NotifyError{Channel: n.Name(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return &types.NotifyError{Channel: n.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return &types.NotifyError{Channel: n.Name(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return &types.NotifyError{Channel: n.Name(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &types.NotifyError{Channel: n.Name(), Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	var result wechatResult
	if err := json.Unmarshal(data, &result); err != nil {
		return &types.NotifyError{Channel: n.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if result.ErrCode != 0 {
		return &types.NotifyError{Channel: n.Name(), Err: fmt.Errorf("errcode %d: %s", result.ErrCode, result.ErrMsg)}
	}

	n.logger.Debug("webhook accepted message", "msgtype", msg.MsgType)
	return nil
}
