package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"meeting-bot/internal/domain/bot"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Active  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var DefaultTheme = Theme{
	Active:  lipgloss.Color("#5FAFD7"),
	Success: lipgloss.Color("#00D787"),
	Error:   lipgloss.Color("#FF005F"),
	Hint:    lipgloss.Color("#6C6C6C"),
}

type Formatter struct {
	w     io.Writer
	theme Theme
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w, theme: DefaultTheme}
}

func (f *Formatter) statusStyle(s bot.Status) lipgloss.Style {
	switch s {
	case bot.StatusCompleted:
		return lipgloss.NewStyle().Foreground(f.theme.Success).Bold(true)
	case bot.StatusFailed:
		return lipgloss.NewStyle().Foreground(f.theme.Error).Bold(true)
	case bot.StatusPending:
		return lipgloss.NewStyle().Foreground(f.theme.Hint)
	default:
		return lipgloss.NewStyle().Foreground(f.theme.Active)
	}
}

func (f *Formatter) Status(s bot.Status) string {
	return f.statusStyle(s).Render(string(s))
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintln(f.w, msg)
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintln(f.w, lipgloss.NewStyle().Foreground(f.theme.Error).Render("error: "+msg))
}

func (f *Formatter) Job(j bot.Job) {
	tw := tabwriter.NewWriter(f.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", j.ID)
	fmt.Fprintf(tw, "Status\t%s\n", f.Status(j.Status))
	fmt.Fprintf(tw, "Recording\t%s\n", j.RecordingID)
	fmt.Fprintf(tw, "Meeting\t%s\n", j.MeetingURL)
	fmt.Fprintf(tw, "Platform\t%s\n", j.Platform)
	fmt.Fprintf(tw, "Bot name\t%s\n", j.BotName)
	fmt.Fprintf(tw, "Started\t%s\n", j.StartedAt.Local().Format(time.DateTime))
	if j.EndedAt != nil {
		fmt.Fprintf(tw, "Ended\t%s (%s)\n", j.EndedAt.Local().Format(time.DateTime), j.EndedAt.Sub(j.StartedAt).Round(time.Second))
	}
	if j.AudioFilePath != "" {
		fmt.Fprintf(tw, "Audio\t%s\n", j.AudioFilePath)
	}
	if j.Error != "" {
		fmt.Fprintf(tw, "Error\t%s\n", j.Error)
	}
	_ = tw.Flush()
}

func (f *Formatter) JobList(jobs []bot.Job) {
	if len(jobs) == 0 {
		f.Info("No jobs")
		return
	}
	tw := tabwriter.NewWriter(f.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tRECORDING\tPLATFORM\tSTARTED\tERROR")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			j.ID, f.Status(j.Status), j.RecordingID, j.Platform, j.StartedAt.Local().Format(time.DateTime), j.Error)
	}
	_ = tw.Flush()
}

func (f *Formatter) JobEvent(j bot.Job) {
	fmt.Fprintf(f.w, "%s  %s  %s\n", time.Now().Format(time.TimeOnly), j.ID, f.Status(j.Status))
}
