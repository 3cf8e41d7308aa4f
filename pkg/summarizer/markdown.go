package summarizer

import (
	"fmt"
	"strings"
	"time"
)

// MarkdownFormatter renders a Summary as a Markdown report.
type MarkdownFormatter struct {
	translate func(string) string
	version   string
}

// Option configures a MarkdownFormatter.
type Option func(*MarkdownFormatter)

// WithTranslator sets the function used to translate headings and labels.
func WithTranslator(t func(string) string) Option {
	return func(f *MarkdownFormatter) {
		if t != nil {
			f.translate = t
		}
	}
}

// WithVersion adds the tool version to the report footer.
func WithVersion(v string) Option {
	return func(f *MarkdownFormatter) {
		f.version = v
	}
}

// NewMarkdownFormatter creates a MarkdownFormatter.
func NewMarkdownFormatter(opts ...Option) *MarkdownFormatter {
	f := &MarkdownFormatter{translate: func(s string) string { return s }}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	t := f.translate
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t("Export Summary"))
	fmt.Fprintf(&b, "%s: %s\n\n", t("Generated"), s.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(&b, "## %s\n\n", t("Source"))
	fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", t("Item"), t("Value"))
	row(&b, t("Path"), s.Source.Path)
	row(&b, t("Resolution"), fmt.Sprintf("%dx%d", s.Source.Width, s.Source.Height))
	row(&b, t("Frame Rate"), fmt.Sprintf("%.2f fps", s.Source.FPS))
	row(&b, t("Duration"), formatSeconds(s.Source.DurationSec))
	if s.Source.Codec != "" {
		row(&b, t("Codec"), s.Source.Codec)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## %s\n\n", t("Processing"))
	fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", t("Item"), t("Value"))
	row(&b, t("Mode"), s.Processing.Mode)
	chain := t("None")
	if len(s.Processing.Chain) > 0 {
		chain = strings.Join(s.Processing.Chain, " → ")
	}
	row(&b, t("Filters"), chain)
	zoom := t("None")
	if s.Processing.Zoom != "" {
		zoom = s.Processing.Zoom
	}
	row(&b, t("Zoom"), zoom)
	b.WriteString("\n")

	fmt.Fprintf(&b, "## %s\n\n", t("Export"))
	fmt.Fprintf(&b, "| %s | %s |\n|---|---|\n", t("Item"), t("Value"))
	row(&b, t("Output Mode"), s.Export.Granularity)
	row(&b, t("Destination"), s.Export.Destination)
	row(&b, t("Cut Points"), formatTimes(s.Export.CutPoints))
	row(&b, t("Boundaries"), formatTimes(s.Export.Boundaries))
	if s.Export.MergeWithin > 0 {
		row(&b, t("Merge Within"), fmt.Sprintf("%.2f s", s.Export.MergeWithin))
	}
	if s.Export.Codec != "" {
		row(&b, t("Codec"), s.Export.Codec)
		row(&b, t("Quality"), fmt.Sprintf("%d", s.Export.Quality))
	}
	row(&b, t("Total Frames"), fmt.Sprintf("%d", s.TotalFrames()))
	row(&b, t("Elapsed"), fmt.Sprintf("%d ms", s.Export.Elapsed.Milliseconds()))
	b.WriteString("\n")

	fmt.Fprintf(&b, "## %s\n\n", t("Segments"))
	if len(s.Segments) == 0 {
		fmt.Fprintf(&b, "%s\n\n", t("No segments were written."))
	} else {
		fmt.Fprintf(&b, "| # | %s | %s | %s | %s | %s |\n|---|---|---|---|---|---|\n",
			t("Start"), t("End"), t("Frames"), t("Output"), t("Status"))
		for _, seg := range s.Segments {
			status := t("OK")
			if seg.Error != "" {
				status = fmt.Sprintf("%s: %s", t("Failed"), seg.Error)
			} else if seg.Skipped > 0 {
				status = fmt.Sprintf("%s (%d %s)", t("OK"), seg.Skipped, t("skipped"))
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %d | %s | %s |\n",
				seg.Number, formatSeconds(seg.StartSec), formatSeconds(seg.EndSec), seg.Frames, seg.Path, status)
		}
		b.WriteString("\n")
	}

	if f.version != "" {
		fmt.Fprintf(&b, "---\n\nframelab %s\n", f.version)
	}
	return b.String()
}

func row(b *strings.Builder, k, v string) {
	fmt.Fprintf(b, "| %s | %s |\n", k, v)
}

// formatSeconds renders seconds as H:MM:SS.mmm.
func formatSeconds(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(sec*1000 + 0.5)
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, ms%1000)
}

func formatTimes(ts []float64) string {
	if len(ts) == 0 {
		return "-"
	}
	parts := make([]string, len(ts))
	for i, v := range ts {
		parts[i] = formatSeconds(v)
	}
	return strings.Join(parts, ", ")
}
