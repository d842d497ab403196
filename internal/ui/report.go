package ui

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// RunSummary mirrors the batch snapshot metadata to avoid circular imports.
type RunSummary struct {
	RunID        string
	ModelVersion string
	SnapshotPath string

	TilesInferred int
	TilesFailed   int
	DarkCount     int
	BrightCount   int
	BrightRatio   float64
	FailureRatio  float64

	FeatureMean   float64
	LatencyMeanMS float64
	Duration      time.Duration
}

// HealthView mirrors the health report structure.
type HealthView struct {
	Status          string
	Recommendations []string
	Drift           *DriftView
}

// DriftView mirrors the drift metrics structure.
type DriftView struct {
	LiveMean     float64
	TrainingMean float64
	MeanDelta    float64
}

// RunUI provides a rich UI for the run command
type RunUI struct {
	writer io.Writer
	quiet  bool
}

// NewRunUI creates a new UI handler for the run command
func NewRunUI(w io.Writer, quiet bool) *RunUI {
	return &RunUI{writer: w, quiet: quiet}
}

// PrintSummary renders the batch run summary
func (r *RunUI) PrintSummary(s RunSummary) {
	if r.quiet {
		return
	}

	var output strings.Builder

	output.WriteString(Success.Bold(true).Render("Batch Inference Summary"))
	output.WriteString("\n\n")

	output.WriteString(SectionHeader.Render("Run"))
	output.WriteString("\n")
	output.WriteString(FormatKeyValue("ID", Highlight.Render(s.RunID)))
	output.WriteString("\n")
	output.WriteString(FormatKeyValue("Model", s.ModelVersion))
	output.WriteString("\n")
	output.WriteString(FormatKeyValue("Duration", s.Duration.Round(time.Millisecond).String()))
	output.WriteString("\n\n")

	output.WriteString(SectionHeader.Render("Tiles"))
	output.WriteString("\n")
	output.WriteString(FormatKeyValue("Inferred", fmt.Sprintf("%d", s.TilesInferred)))
	output.WriteString("\n")
	if s.TilesFailed > 0 {
		output.WriteString(FormatKeyValue("Failed", Error.Render(fmt.Sprintf("%d (%.1f%%)", s.TilesFailed, s.FailureRatio*100))))
	} else {
		output.WriteString(FormatKeyValue("Failed", "0"))
	}
	output.WriteString("\n")
	output.WriteString(FormatKeyValue("Classes", fmt.Sprintf("%d dark / %d bright (%.1f%% bright)",
		s.DarkCount, s.BrightCount, s.BrightRatio*100)))
	output.WriteString("\n")
	output.WriteString(FormatKeyValue("Mean intensity", fmt.Sprintf("%.4f", s.FeatureMean)))
	output.WriteString("\n")
	output.WriteString(FormatKeyValue("Mean latency", fmt.Sprintf("%.2fms", s.LatencyMeanMS)))

	if s.SnapshotPath != "" {
		output.WriteString("\n\n")
		output.WriteString(Dim.Render("Snapshot: ") + Secondary.Render(s.SnapshotPath))
	}

	boxed := SuccessBox.Render(output.String())
	fmt.Fprintln(r.writer, boxed)
}

// HealthUI renders health reports for the run and health commands
type HealthUI struct {
	writer io.Writer
	quiet  bool
}

// NewHealthUI creates a new UI handler for health reports
func NewHealthUI(w io.Writer, quiet bool) *HealthUI {
	return &HealthUI{writer: w, quiet: quiet}
}

// PrintReport renders a health report with status and recommendations
func (h *HealthUI) PrintReport(view HealthView) {
	if h.quiet {
		return
	}

	var output strings.Builder

	output.WriteString(Bold.Render("Run Health"))
	output.WriteString("\n\n")
	output.WriteString(FormatKeyValue("Status", h.renderStatus(view.Status)))

	if view.Drift != nil {
		output.WriteString("\n\n")
		output.WriteString(SectionHeader.Render("Baseline Drift"))
		output.WriteString("\n")
		output.WriteString(FormatKeyValue("Live mean", fmt.Sprintf("%.4f", view.Drift.LiveMean)))
		output.WriteString("\n")
		output.WriteString(FormatKeyValue("Training mean", fmt.Sprintf("%.4f", view.Drift.TrainingMean)))
		output.WriteString("\n")
		output.WriteString(FormatKeyValue("Delta", h.renderDelta(view.Drift.MeanDelta)))
	}

	if len(view.Recommendations) > 0 {
		output.WriteString("\n\n")
		output.WriteString(Warning.Render(fmt.Sprintf("▼ Recommendations (%d)", len(view.Recommendations))))
		output.WriteString("\n")
		for _, rec := range view.Recommendations {
			output.WriteString("  ")
			output.WriteString(GetWarnMark())
			output.WriteString(" ")
			output.WriteString(rec)
			output.WriteString("\n")
		}
	}

	boxed := h.boxFor(view.Status).Render(strings.TrimRight(output.String(), "\n"))
	fmt.Fprintln(h.writer, boxed)
}

// PrintSimpleReport prints a minimal text report (fallback for quiet mode)
func (h *HealthUI) PrintSimpleReport(view HealthView) {
	fmt.Fprintf(h.writer, "Status: %s\n", view.Status)
	for _, rec := range view.Recommendations {
		fmt.Fprintf(h.writer, "  - %s\n", rec)
	}
}

func (h *HealthUI) renderStatus(status string) string {
	switch status {
	case "healthy":
		return Success.Render(status)
	case "drift-suspected":
		return Warning.Render(status)
	case "degraded":
		return Error.Render(status)
	}
	return Muted.Render(status)
}

func (h *HealthUI) renderDelta(delta float64) string {
	formatted := fmt.Sprintf("%+.4f", delta)
	if delta == 0 {
		return Dim.Render(formatted)
	}
	return Warning.Render(formatted)
}

func (h *HealthUI) boxFor(status string) boxWrapper {
	switch status {
	case "healthy":
		return SuccessBox
	case "degraded":
		return ErrorBox
	}
	return HighlightBox
}
