package notify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/observability"
	"github.com/IshaanNene/trendscope/internal/report"
	"github.com/IshaanNene/trendscope/internal/types"
)

// Summary describes a finished run for notification.
type Summary struct {
	Source      types.Source
	GeneratedAt time.Time
	Total       int
	// ReportPath is the Markdown report used for the preview.
	ReportPath string
	// Attachments are sent by channels that support files.
	Attachments []string
}

// SummaryFromRun builds a Summary from a run and its report files.
func SummaryFromRun(run *types.Run, outputs []report.Output) Summary {
	s := Summary{
		Source:      run.Source,
		GeneratedAt: run.GeneratedAt,
		Total:       run.Total(),
	}
	if md, ok := report.Find(outputs, report.FormatMarkdown); ok {
		s.ReportPath = md.Path
	}
	for _, o := range outputs {
		s.Attachments = append(s.Attachments, o.Path)
	}
	return s
}

// Notifier pushes run summaries to a channel.
type Notifier interface {
	Name() string
	SendReportSummary(ctx context.Context, s Summary) error
	// SendTest sends a short connectivity message.
	SendTest(ctx context.Context) error
}

const truncationMarker = "\n\n...（内容过长，已截断）"

// preview returns the first maxLines lines of the file at path, cut to
// maxChars characters with a marker when longer.
func preview(path string, maxLines, maxChars int) string {
	if path == "" {
		return "无报告内容"
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("无法读取报告内容: %v", err)
	}
	defer f.Close()

	var b strings.Builder
	sc := bufio.NewScanner(f)
	for n := 0; n < maxLines && sc.Scan(); n++ {
		b.WriteString(sc.Text())
		b.WriteByte('\n')
	}

	text := b.String()
	if runes := []rune(text); len(runes) > maxChars {
		text = string(runes[:maxChars]) + truncationMarker
	}
	return text
}

// Dispatcher fans a summary out to every configured notifier. Failures are
// logged and counted, never returned to the run.
type Dispatcher struct {
	notifiers []Notifier
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewDispatcher builds the notifiers enabled in cfg. Channels that are not
// configured are skipped with a warning.
func NewDispatcher(cfg *config.NotificationConfig, metrics *observability.Metrics, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		metrics: metrics,
		logger:  logger.With("component", "notify"),
	}
	if metrics == nil {
		d.metrics = observability.NewMetrics(logger)
	}
	if !cfg.Enabled {
		return d
	}

	if wc, err := NewWeChatNotifier(cfg.WeChatWebhookURL, logger); err == nil {
		d.notifiers = append(d.notifiers, wc)
	} else {
		d.logger.Warn("wechat notifier disabled", "error", err)
	}
	if em, err := NewEmailNotifier(&cfg.Email, logger); err == nil {
		d.notifiers = append(d.notifiers, em)
	} else {
		d.logger.Warn("email notifier disabled", "error", err)
	}
	return d
}

// NewDispatcherWith wraps explicit notifiers.
func NewDispatcherWith(notifiers []Notifier, metrics *observability.Metrics, logger *slog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = observability.NewMetrics(logger)
	}
	return &Dispatcher{
		notifiers: notifiers,
		metrics:   metrics,
		logger:    logger.With("component", "notify"),
	}
}

// Len returns how many notifiers are active.
func (d *Dispatcher) Len() int { return len(d.notifiers) }

// Notify sends s through every notifier and returns how many succeeded.
func (d *Dispatcher) Notify(ctx context.Context, s Summary) int {
	return d.each(func(n Notifier) error { return n.SendReportSummary(ctx, s) })
}

// Test sends a test message through every notifier. It returns the joined
// errors of the channels that failed.
func (d *Dispatcher) Test(ctx context.Context) error {
	if len(d.notifiers) == 0 {
		return types.ErrNotifierDisabled
	}
	var errs []error
	d.each(func(n Notifier) error {
		err := n.SendTest(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		return err
	})
	return errors.Join(errs...)
}

func (d *Dispatcher) each(send func(Notifier) error) int {
	sent := 0
	for _, n := range d.notifiers {
		if err := send(n); err != nil {
			d.metrics.NotificationsFailed.Add(1)
			d.logger.Warn("notification failed", "channel", n.Name(), "error", err)
			continue
		}
		d.metrics.NotificationsSent.Add(1)
		d.logger.Info("notification sent", "channel", n.Name())
		sent++
	}
	return sent
}
