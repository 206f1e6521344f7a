package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// StyledRenderer prints colored, single-line progress updates for
// interactive terminals using lipgloss styles, without a full-screen TUI
// event loop.
type StyledRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
	stage  Stage
	errors []ErrorEvent
}

// NewStyledRenderer creates a styled renderer for interactive terminals.
func NewStyledRenderer(cfg Config) *StyledRenderer {
	return &StyledRenderer{
		out:    cfg.Output,
		styles: GetStyles(cfg.NoColor),
	}
}

// Start implements Renderer.
func (r *StyledRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *StyledRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = event.Stage

	label := r.styles.Stage.Render(event.Stage.String())
	var msg string
	switch {
	case event.Message != "":
		msg = event.Message
	case event.CurrentFile != "":
		msg = event.CurrentFile
	}

	switch {
	case event.Total > 0:
		counter := r.styles.Active.Render(fmt.Sprintf("%d/%d", event.Current, event.Total))
		_, _ = fmt.Fprintf(r.out, "\r%s %s %s", label, counter, msg)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "\r%s %s", label, msg)
	}
}

// AddError implements Renderer.
func (r *StyledRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	_, _ = fmt.Fprintln(r.out)
	prefix := r.styles.Error.Render("ERROR")
	if event.IsWarn {
		prefix = r.styles.Warning.Render("WARN")
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *StyledRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintln(r.out)
	header := r.styles.Success.Render(fmt.Sprintf(
		"Complete: %d files, %d documents indexed in %s",
		stats.Files, stats.Documents, stats.Duration.Round(millisecond*100)))
	_, _ = fmt.Fprintln(r.out, header)

	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, "%s %d errors, %d warnings\n",
			r.styles.Dim.Render("—"), stats.Errors, stats.Warnings)
	}

	if stats.Stages.Scan > 0 || stats.Stages.Index > 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Label.Render("Stage breakdown:"))
		_, _ = fmt.Fprintf(r.out, "  %s  %s\n", r.styles.Dim.Render("scan"), stats.Stages.Scan.Round(millisecond*100))
		if stats.Stages.Extract > 0 {
			_, _ = fmt.Fprintf(r.out, "  %s  %s\n", r.styles.Dim.Render("extract"), stats.Stages.Extract.Round(millisecond*100))
		}
		_, _ = fmt.Fprintf(r.out, "  %s  %s\n", r.styles.Dim.Render("index"), stats.Stages.Index.Round(millisecond*100))
	}
}

// Stop implements Renderer.
func (r *StyledRenderer) Stop() error {
	_, _ = fmt.Fprintln(r.out)
	return nil
}
