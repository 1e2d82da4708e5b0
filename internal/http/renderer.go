package httpx

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
)

//go:embed templates/*.tmpl templates/pages/*.tmpl
var embeddedTemplates embed.FS

// TemplateRenderer renders HTML templates for UI responses.
type TemplateRenderer struct {
	t      *template.Template
	logger *slog.Logger
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS        // defaults to the embedded templates
	Logger     *slog.Logger // optional
}

// NewTemplateRenderer parses the layout and page templates.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	fsys := cfg.TemplateFS
	if fsys == nil {
		sub, err := fs.Sub(embeddedTemplates, "templates")
		if err != nil {
			return nil, fmt.Errorf("open embedded templates: %w", err)
		}
		fsys = sub
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	renderer := &TemplateRenderer{logger: logger}
	t, err := template.New("root").Funcs(templateFuncs(&renderer.t)).ParseFS(fsys, "*.tmpl", "pages/*.tmpl")
	if err != nil {
		logger.Error("template parsing failed", slog.Any("error", err), slog.String("phase", "initialization"))
		return nil, err
	}
	renderer.t = t
	return renderer, nil
}

// RenderFull renders the full page (layout + page content).
func (r *TemplateRenderer) RenderFull(w http.ResponseWriter, status int, data any) error {
	return r.renderTemplate(w, status, "layout", data)
}

// RenderPartial renders only the main content area.
func (r *TemplateRenderer) RenderPartial(w http.ResponseWriter, status int, data any) error {
	return r.renderTemplate(w, status, "content", data)
}

// Render picks the partial for htmx requests and the full layout otherwise.
func (r *TemplateRenderer) Render(w http.ResponseWriter, req *http.Request, status int, data any) error {
	if WantsPartial(req) {
		return r.RenderPartial(w, status, data)
	}
	return r.RenderFull(w, status, data)
}

func (r *TemplateRenderer) renderTemplate(w http.ResponseWriter, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := r.t.ExecuteTemplate(&buf, name, data); err != nil {
		r.logger.Error("template execution failed", slog.String("template", name), slog.Any("error", err))
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		r.logger.Error("failed to write rendered template", slog.String("template", name), slog.Any("error", err))
		return err
	}
	return nil
}

func templateFuncs(t **template.Template) template.FuncMap {
	return template.FuncMap{
		"renderSection": func(page string, data any) (template.HTML, error) {
			if *t == nil {
				return "", errors.New("template not initialized")
			}
			var buf bytes.Buffer
			if err := (*t).ExecuteTemplate(&buf, ContentTemplateFor(page), data); err != nil {
				return "", err
			}
			// #nosec G203 - rendered by our own html/template set; values were escaped above.
			return template.HTML(buf.String()), nil
		},
		"money":       formatMoney,
		"date":        formatDate,
		"inputDate":   func(t time.Time) string { return t.Format(time.DateOnly) },
		"statusClass": statusClass,
		"statuses": func() []model.InvestmentStatus {
			return []model.InvestmentStatus{
				model.InvestmentStatusActive,
				model.InvestmentStatusPending,
				model.InvestmentStatusWithdrawn,
			}
		},
	}
}

// formatMoney renders an amount as rupees with two decimals and thousands separators.
func formatMoney(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	out := "₹" + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02 Jan 2006")
}

func statusClass(s model.InvestmentStatus) string {
	switch s {
	case model.InvestmentStatusActive:
		return "badge-success"
	case model.InvestmentStatusPending:
		return "badge-warning"
	case model.InvestmentStatusWithdrawn:
		return "badge-muted"
	default:
		return "badge"
	}
}
