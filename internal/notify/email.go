package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/report"
	"github.com/IshaanNene/trendscope/internal/types"
)

const (
	emailPreviewLines = 20
	emailPreviewChars = 1500
	smtpDialTimeout   = 30 * time.Second
	defaultSender     = "noreply@github.com"
)

// deliverFunc hands a finished message to the mail server.
type deliverFunc func(ctx context.Context, from string, to []string, msg []byte) error

// EmailNotifier sends HTML summaries over SMTP.
type EmailNotifier struct {
	cfg        config.EmailConfig
	recipients []string
	deliver    deliverFunc
	logger     *slog.Logger
}

// NewEmailNotifier returns ErrNotifierDisabled when no SMTP server or
// recipient is configured.
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) (*EmailNotifier, error) {
	if cfg.SMTPServer == "" {
		return nil, fmt.Errorf("%w: no SMTP server configured", types.ErrNotifierDisabled)
	}
	recipients := config.SplitList(cfg.Recipient)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: no e-mail recipient configured", types.ErrNotifierDisabled)
	}

	n := &EmailNotifier{
		cfg:        *cfg,
		recipients: recipients,
		logger:     logger.With("component", "email"),
	}
	n.deliver = n.smtpDeliver
	return n, nil
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) sender() string {
	if n.cfg.SMTPUser != "" {
		return n.cfg.SMTPUser
	}
	return defaultSender
}

// SendReportSummary implements Notifier.
func (n *EmailNotifier) SendReportSummary(ctx context.Context, s Summary) error {
	generated := s.GeneratedAt.Format(report.TimeLayout)
	subject := fmt.Sprintf("📊 %s Trending 日报 - %s", s.Source.DisplayName(), generated)

	var attachments []string
	if n.cfg.SendAttachment {
		for _, path := range s.Attachments {
			if _, err := os.Stat(path); err == nil {
				attachments = append(attachments, path)
			}
		}
	}
	return n.send(ctx, subject, emailSummary(s, generated), attachments)
}

// SendTest implements Notifier.
func (n *EmailNotifier) SendTest(ctx context.Context) error {
	now := time.Now().Format(report.TimeLayout)
	body := "<p>trendscope 测试邮件</p><p>" + html.EscapeString(now) + "</p>"
	return n.send(ctx, "trendscope 测试邮件", body, nil)
}

func emailSummary(s Summary, generated string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
  .header { background-color: #4CAF50; color: white; padding: 20px; text-align: center; }
  .content { padding: 20px; }
  .info { background-color: #f4f4f4; padding: 15px; margin: 10px 0; border-radius: 5px; }
  .preview { background-color: #f9f9f9; padding: 15px; margin: 10px 0; border-left: 4px solid #4CAF50; }
  pre { white-space: pre-wrap; word-wrap: break-word; }
</style>
</head>
<body>
<div class="header"><h1>📊 %s Trending 日报已生成</h1></div>
<div class="content">
  <div class="info">
    <p><strong>生成时间:</strong> %s</p>
    <p><strong>项目总数:</strong> %d 个</p>
    <p><strong>报告文件:</strong> %s</p>
  </div>
  <h2>📄 报告预览</h2>
  <div class="preview"><pre>%s</pre></div>
  <p><em>完整报告请查看附件（如果已启用）</em></p>
</div>
</body>
</html>`,
		html.EscapeString(s.Source.DisplayName()),
		html.EscapeString(generated),
		s.Total,
		html.EscapeString(filepath.Base(s.ReportPath)),
		html.EscapeString(preview(s.ReportPath, emailPreviewLines, emailPreviewChars)),
	)
}

func (n *EmailNotifier) send(ctx context.Context, subject, htmlBody string, attachments []string) error {
	msg, err := buildMessage(n.sender(), n.recipients, subject, htmlBody, attachments)
	if err != nil {
		return &types.NotifyError{Channel: n.Name(), Err: err}
	}
	if err := n.deliver(ctx, n.sender(), n.recipients, msg); err != nil {
		return &types.NotifyError{Channel: n.Name(), Err: err}
	}
	n.logger.Debug("mail delivered", "recipients", len(n.recipients), "attachments", len(attachments))
	return nil
}

// buildMessage assembles a multipart/mixed message with an HTML body and
// base64 attachments.
func buildMessage(from string, to []string, subject, htmlBody string, attachments []string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	body, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64(body, []byte(htmlBody)); err != nil {
		return nil, err
	}

	for _, path := range attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		name := filepath.Base(path)
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"application/octet-stream"},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": name})},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, data); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeBase64 writes data base64-encoded in 76-column lines.
func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := w.Write([]byte(encoded[:76] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := w.Write([]byte(encoded + "\r\n"))
	return err
}

// smtpDeliver dials the server, upgrades with STARTTLS when configured,
// authenticates when credentials are set and sends msg.
func (n *EmailNotifier) smtpDeliver(ctx context.Context, from string, to []string, msg []byte) error {
	host := n.cfg.SMTPServer
	addr := net.JoinHostPort(host, strconv.Itoa(n.cfg.SMTPPort))

	dialer := net.Dialer{Timeout: smtpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if n.cfg.UseTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fmt.Errorf("server %s does not support STARTTLS", host)
		}
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if n.cfg.SMTPUser != "" && n.cfg.SMTPPassword != "" {
		if err := c.Auth(smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPassword, host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return c.Quit()
}
