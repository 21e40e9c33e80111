package report

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/IshaanNene/trendscope/internal/config"
	"github.com/IshaanNene/trendscope/internal/types"
)

//go:embed templates/*.tmpl
var builtin embed.FS

// Report formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

const (
	markdownTemplate = "report.md.tmpl"
	htmlTemplate     = "report.html.tmpl"

	// TimeLayout is how the generation time is shown in reports and
	// notifications.
	TimeLayout = "2006年01月02日 15:04:05"

	maxTagsShown = 10
)

// Data is what the templates see.
type Data struct {
	Source      string
	GeneratedAt string
	Total       int
	Projects    []*types.Project
}

// NewData builds template data for a run.
func NewData(run *types.Run) Data {
	return Data{
		Source:      run.Source.DisplayName(),
		GeneratedAt: run.GeneratedAt.Format(TimeLayout),
		Total:       run.Total(),
		Projects:    run.Projects,
	}
}

// Output is one written report file.
type Output struct {
	Format string
	Path   string
}

var funcs = map[string]any{
	"add1": func(i int) int { return i + 1 },
	"join": strings.Join,
	"limitTags": func(tags []string) []string {
		if len(tags) > maxTagsShown {
			return tags[:maxTagsShown]
		}
		return tags
	},
}

// Renderer writes Markdown and HTML reports for runs.
type Renderer struct {
	outputDir string
	formats   []string
	md        *texttemplate.Template
	html      *htmltemplate.Template
	logger    *slog.Logger
}

// New parses the report templates. Files in cfg.TemplateDir named like the
// built-in templates replace them.
func New(cfg *config.ReportConfig, logger *slog.Logger) (*Renderer, error) {
	mdSrc, err := templateSource(cfg.TemplateDir, markdownTemplate)
	if err != nil {
		return nil, err
	}
	htmlSrc, err := templateSource(cfg.TemplateDir, htmlTemplate)
	if err != nil {
		return nil, err
	}

	md, err := texttemplate.New(markdownTemplate).Funcs(texttemplate.FuncMap(funcs)).Parse(mdSrc)
	if err != nil {
		return nil, &types.RenderError{Format: FormatMarkdown, Err: err}
	}
	html, err := htmltemplate.New(htmlTemplate).Funcs(htmltemplate.FuncMap(funcs)).Parse(htmlSrc)
	if err != nil {
		return nil, &types.RenderError{Format: FormatHTML, Err: err}
	}

	formats := cfg.Formats
	if len(formats) == 0 {
		formats = []string{FormatMarkdown, FormatHTML}
	}

	return &Renderer{
		outputDir: cfg.OutputDir,
		formats:   formats,
		md:        md,
		html:      html,
		logger:    logger.With("component", "report"),
	}, nil
}

func templateSource(dir, name string) (string, error) {
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("read template %s: %w", name, err)
		}
	}
	data, err := builtin.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("read built-in template %s: %w", name, err)
	}
	return string(data), nil
}

// FileName returns the report file name for a source, format and day.
func FileName(source types.Source, format string, t time.Time) string {
	ext := "md"
	if format == FormatHTML {
		ext = "html"
	}
	return fmt.Sprintf("%s_trending_report_%s.%s", source, t.Format("20060102"), ext)
}

// Render writes every configured format for run and returns the files in
// format order.
func (r *Renderer) Render(run *types.Run) ([]Output, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	outputs := make([]Output, 0, len(r.formats))
	for _, format := range r.formats {
		var buf bytes.Buffer
		if err := r.Write(&buf, format, run); err != nil {
			return outputs, err
		}

		path := filepath.Join(r.outputDir, FileName(run.Source, format, run.GeneratedAt))
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return outputs, &types.RenderError{Format: format, Err: err}
		}
		r.logger.Info("report written", "format", format, "path", path, "projects", run.Total())
		outputs = append(outputs, Output{Format: format, Path: path})
	}
	return outputs, nil
}

// Write renders one format of run to w.
func (r *Renderer) Write(w io.Writer, format string, run *types.Run) error {
	data := NewData(run)
	var err error
	switch format {
	case FormatMarkdown:
		err = r.md.Execute(w, data)
	case FormatHTML:
		err = r.html.Execute(w, data)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return &types.RenderError{Format: format, Err: err}
	}
	return nil
}

// Find returns the output with the given format.
func Find(outputs []Output, format string) (Output, bool) {
	for _, o := range outputs {
		if o.Format == format {
			return o, true
		}
	}
	return Output{}, false
}
