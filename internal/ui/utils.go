package ui

import (
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/forest-guardian/index-composite/internal/export"
	"github.com/forest-guardian/index-composite/internal/raster"
)

// Colors for consistent UI
const (
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorReset  = "\033[0m"
)

// PrintWarning displays a warning message with consistent formatting
func PrintWarning(message string) {
	fmt.Printf("%s\nWarning:%s\n", ColorYellow, ColorReset)
	fmt.Printf("%s%s%s\n", ColorYellow, message, ColorReset)
}

// PrintError displays an error message with consistent formatting
func PrintError(message string) {
	fmt.Printf("\n%sError: %s%s\n", ColorRed, message, ColorReset)
}

// PrintSuccess displays a success message with consistent formatting
func PrintSuccess(message string) {
	fmt.Printf("\n%s%s%s\n", ColorGreen, message, ColorReset)
}

// PrintInfo displays an info message with consistent formatting
func PrintInfo(message string) {
	fmt.Printf("%s%s%s\n", ColorBlue, message, ColorReset)
}

func stateColor(s export.State) string {
	switch s {
	case export.StateCompleted:
		return ColorGreen
	case export.StateFailed:
		return ColorRed
	case export.StateRunning:
		return ColorYellow
	default:
		return ColorBlue
	}
}

// WriteJobs prints one row per job.
func WriteJobs(w io.Writer, jobs []export.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATE\tUPDATED\tDESTINATION")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s%s%s\t%s\t%s\n",
			j.ID, j.Kind, stateColor(j.State), j.State, ColorReset,
			j.UpdatedAt.Local().Format(time.DateTime), j.Destination)
		if j.Error != "" {
			fmt.Fprintf(tw, "\t\t%s%s%s\t\t\n", ColorRed, j.Error, ColorReset)
		}
	}
	return tw.Flush()
}

func PrintJobs(jobs []export.Job) {
	if err := WriteJobs(os.Stdout, jobs); err != nil {
		PrintError(err.Error())
	}
}

// WriteStats prints per-band statistics of an exported raster.
func WriteStats(w io.Writer, stats []raster.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BAND\tPIXELS\tMIN\tMAX\tMEAN")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", s.Band, s.ValidPixels, formatValue(s.Min), formatValue(s.Max), formatValue(s.Mean))
	}
	return tw.Flush()
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", v)
}
