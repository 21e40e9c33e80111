package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/observability"
	"github.com/IshaanNene/trendscope/internal/report"
	"github.com/IshaanNene/trendscope/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func writeReport(t *testing.T, lines int) string {
	t.Helper()
	var b strings.Builder
	for i := range lines {
		fmt.Fprintf(&b, "line %d\n", i+1)
	}
	path := filepath.Join(t.TempDir(), "github_trending_report_20240309.md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func sampleSummary(t *testing.T) Summary {
	path := writeReport(t, 30)
	return Summary{
		Source:      types.SourceGitHub,
		GeneratedAt: time.Date(2024, 3, 9, 9, 30, 0, 0, time.Local),
		Total:       25,
		ReportPath:  path,
		Attachments: []string{path},
	}
}

func TestPreview(t *testing.T) {
	path := writeReport(t, 30)

	got := preview(path, 15, 1000)
	if !strings.HasPrefix(got, "line 1\n") || !strings.Contains(got, "line 15\n") || strings.Contains(got, "line 16") {
		t.Errorf("expected first 15 lines, got %q", got)
	}

	long := filepath.Join(t.TempDir(), "long.md")
	if err := os.WriteFile(long, []byte(strings.Repeat("中", 1200)), 0o644); err != nil {
		t.Fatal(err)
	}
	got = preview(long, 15, 1000)
	if !strings.HasSuffix(got, truncationMarker) {
		t.Error("expected truncation marker")
	}
	if n := len([]rune(strings.TrimSuffix(got, truncationMarker))); n != 1000 {
		t.Errorf("expected 1000 characters before the marker, got %d", n)
	}

	if got := preview(filepath.Join(t.TempDir(), "missing.md"), 15, 1000); !strings.HasPrefix(got, "无法读取报告内容") {
		t.Errorf("expected read error message, got %q", got)
	}
}

// --- WeChat ---

type webhookRecorder struct {
	mu       sync.Mutex
	messages []map[string]any
	status   int
	reply    string
}

func (r *webhookRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var msg map[string]any
	_ = json.NewDecoder(req.Body).Decode(&msg)
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()

	if r.status != 0 {
		w.WriteHeader(r.status)
	}
	reply := r.reply
	if reply == "" {
		reply = `{"errcode":0,"errmsg":"ok"}`
	}
	_, _ = io.WriteString(w, reply)
}

func (r *webhookRecorder) last() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return nil
	}
	return r.messages[len(r.messages)-1]
}

func TestWeChatReportSummary(t *testing.T) {
	rec := &webhookRecorder{}
	ts := httptest.NewServer(rec)
	defer ts.Close()

	n, err := NewWeChatNotifier(ts.URL, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.SendReportSummary(context.Background(), sampleSummary(t)); err != nil {
		t.Fatalf("SendReportSummary: %v", err)
	}

	msg := rec.last()
	if msg["msgtype"] != "markdown" {
		t.Fatalf("expected markdown message, got %v", msg["msgtype"])
	}
	content := msg["markdown"].(map[string]any)["content"].(string)
	for _, want := range []string{
		"GitHub Trending 日报已生成",
		"2024年03月09日 09:30:00",
		"**项目总数**: 25 个",
		"`github_trending_report_20240309.md`",
		"line 15",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("summary missing %q", want)
		}
	}
	if strings.Contains(content, "line 16") {
		t.Error("preview should stop after 15 lines")
	}
}

func TestWeChatTextMentions(t *testing.T) {
	rec := &webhookRecorder{}
	ts := httptest.NewServer(rec)
	defer ts.Close()

	n, _ := NewWeChatNotifier(ts.URL, testLogger)
	if err := n.SendText(context.Background(), "hello", []string{"@all"}); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	text := rec.last()["text"].(map[string]any)
	if text["content"] != "hello" {
		t.Errorf("unexpected content %v", text["content"])
	}
	if m, ok := text["mentioned_list"].([]any); !ok || len(m) != 1 || m[0] != "@all" {
		t.Errorf("unexpected mentions %v", text["mentioned_list"])
	}
}

func TestWeChatFailures(t *testing.T) {
	tests := []struct {
		name string
		rec  *webhookRecorder
	}{
		{"errcode", &webhookRecorder{reply: `{"errcode":93000,"errmsg":"invalid webhook url"}`}},
		{"http status", &webhookRecorder{status: http.StatusInternalServerError}},
		{"bad body", &webhookRecorder{reply: "not json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.rec)
			defer ts.Close()

			n, _ := NewWeChatNotifier(ts.URL, testLogger)
			err := n.SendMarkdown(context.Background(), "x")
			var ne *types.NotifyError
			if !errors.As(err, &ne) || ne.Channel != "wechat" {
				t.Errorf("expected wechat NotifyError, got %v", err)
			}
		})
	}
}

func TestWeChatDisabledWithoutWebhook(t *testing.T) {
	if _, err := NewWeChatNotifier("", testLogger); !errors.Is(err, types.ErrNotifierDisabled) {
		t.Errorf("expected ErrNotifierDisabled, got %v", err)
	}
}

// --- Email ---

type capturedMail struct {
	from string
	to   []string
	msg  []byte
}

func newTestEmail(t *testing.T, cfg config.EmailConfig) (*EmailNotifier, *capturedMail) {
	t.Helper()
	n, err := NewEmailNotifier(&cfg, testLogger)
	if err != nil {
		t.Fatalf("NewEmailNotifier: %v", err)
	}
	got := &capturedMail{}
	n.deliver = func(_ context.Context, from string, to []string, msg []byte) error {
		got.from, got.to, got.msg = from, to, msg
		return nil
	}
	return n, got
}

func TestEmailReportSummary(t *testing.T) {
	n, got := newTestEmail(t, config.EmailConfig{
		Recipient:      "a@example.com, b@example.com",
		SMTPServer:     "smtp.example.com",
		SMTPPort:       587,
		SMTPUser:       "bot@example.com",
		SendAttachment: true,
	})

	s := sampleSummary(t)
	if err := n.SendReportSummary(context.Background(), s); err != nil {
		t.Fatalf("SendReportSummary: %v", err)
	}

	if got.from != "bot@example.com" || len(got.to) != 2 {
		t.Errorf("unexpected envelope from=%q to=%v", got.from, got.to)
	}

	m, err := mail.ReadMessage(strings.NewReader(string(got.msg)))
	if err != nil {
		t.Fatalf("parse message: %v", err)
	}
	subject, err := new(mime.WordDecoder).DecodeHeader(m.Header.Get("Subject"))
	if err != nil {
		t.Fatal(err)
	}
	if subject != "📊 GitHub Trending 日报 - 2024年03月09日 09:30:00" {
		t.Errorf("unexpected subject %q", subject)
	}

	_, params, err := mime.ParseMediaType(m.Header.Get("Content-Type"))
	if err != nil {
		t.Fatal(err)
	}
	mr := multipart.NewReader(m.Body, params["boundary"])

	var parts []*multipart.Part
	var bodies []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		raw, _ := io.ReadAll(p)
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(raw), "\r\n", ""))
		if err != nil {
			t.Fatalf("decode part: %v", err)
		}
		parts = append(parts, p)
		bodies = append(bodies, string(decoded))
	}

	if len(parts) != 2 {
		t.Fatalf("expected body + attachment, got %d parts", len(parts))
	}
	if !strings.Contains(bodies[0], "<strong>项目总数:</strong> 25 个") || !strings.Contains(bodies[0], "line 20") {
		t.Errorf("unexpected HTML body %q", bodies[0])
	}
	if strings.Contains(bodies[0], "line 21") {
		t.Error("email preview should stop after 20 lines")
	}
	if parts[1].FileName() != "github_trending_report_20240309.md" {
		t.Errorf("unexpected attachment name %q", parts[1].FileName())
	}
	if !strings.HasPrefix(bodies[1], "line 1\n") {
		t.Errorf("attachment content mismatch")
	}
}

func TestEmailWithoutAttachment(t *testing.T) {
	n, got := newTestEmail(t, config.EmailConfig{
		Recipient:  "a@example.com",
		SMTPServer: "smtp.example.com",
	})
	if err := n.SendReportSummary(context.Background(), sampleSummary(t)); err != nil {
		t.Fatal(err)
	}
	if got.from != defaultSender {
		t.Errorf("expected default sender, got %q", got.from)
	}
	if strings.Contains(string(got.msg), "Content-Disposition: attachment") {
		t.Error("attachment should be omitted when disabled")
	}
}

func TestEmailDisabled(t *testing.T) {
	if _, err := NewEmailNotifier(&config.EmailConfig{Recipient: "a@example.com"}, testLogger); !errors.Is(err, types.ErrNotifierDisabled) {
		t.Errorf("expected ErrNotifierDisabled without server, got %v", err)
	}
	if _, err := NewEmailNotifier(&config.EmailConfig{SMTPServer: "smtp.example.com"}, testLogger); !errors.Is(err, types.ErrNotifierDisabled) {
		t.Errorf("expected ErrNotifierDisabled without recipient, got %v", err)
	}
}

// --- Dispatcher ---

type fakeNotifier struct {
	name string
	err  error
	sent int
}

func (f *fakeNotifier) Name() string { return f.name }
func (f *fakeNotifier) SendReportSummary(context.Context, Summary) error {
	f.sent++
	return f.err
}
func (f *fakeNotifier) SendTest(context.Context) error { return f.err }

func TestDispatcherCountsOutcomes(t *testing.T) {
	m := observability.NewMetrics(testLogger)
	ok := &fakeNotifier{name: "ok"}
	bad := &fakeNotifier{name: "bad", err: errors.New("down")}
	d := NewDispatcherWith([]Notifier{bad, ok}, m, testLogger)

	if sent := d.Notify(context.Background(), Summary{}); sent != 1 {
		t.Errorf("expected 1 successful notification, got %d", sent)
	}
	if ok.sent != 1 {
		t.Error("a failing channel must not block the others")
	}
	if m.NotificationsSent.Load() != 1 || m.NotificationsFailed.Load() != 1 {
		t.Errorf("unexpected metrics sent=%d failed=%d", m.NotificationsSent.Load(), m.NotificationsFailed.Load())
	}
	if err := d.Test(context.Background()); err == nil {
		t.Error("expected joined error from failing channel")
	}
}

func TestDispatcherFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Notification
	if d := NewDispatcher(&cfg, nil, testLogger); d.Len() != 0 {
		t.Errorf("disabled notifications should yield no channels, got %d", d.Len())
	}

	cfg.Enabled = true
	cfg.WeChatWebhookURL = "https://qyapi.weixin.qq.com/cgi-bin/webhook/send?key=x"
	d := NewDispatcher(&cfg, nil, testLogger)
	if d.Len() != 1 {
		t.Errorf("expected only the wechat channel, got %d", d.Len())
	}

	empty := NewDispatcherWith(nil, nil, testLogger)
	if err := empty.Test(context.Background()); !errors.Is(err, types.ErrNotifierDisabled) {
		t.Errorf("expected ErrNotifierDisabled, got %v", err)
	}
}

func TestSummaryFromRun(t *testing.T) {
	run := types.NewRun(types.SourceZread, []*types.Project{types.NewProject(types.ProjectSummary{RepoID: "a/b"})})
	outputs := []report.Output{
		{Format: report.FormatHTML, Path: "/r/x.html"},
		{Format: report.FormatMarkdown, Path: "/r/x.md"},
	}
	s := SummaryFromRun(run, outputs)
	if s.ReportPath != "/r/x.md" || s.Total != 1 || len(s.Attachments) != 2 {
		t.Errorf("unexpected summary %+v", s)
	}
}
