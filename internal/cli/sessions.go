package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/soyeahso/chatrelay/internal/domain"
	"github.com/soyeahso/chatrelay/internal/notify"
	"github.com/soyeahso/chatrelay/internal/render"
	"github.com/soyeahso/chatrelay/internal/store"
	"github.com/spf13/cobra"
)

var (
	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect, export and deliver stored transcripts",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsExportCmd())
	cmd.AddCommand(newSessionsSendCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored transcripts, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			ts, err := store.OpenTranscripts(cfg.Store, paths, log)
			if err != nil {
				return err
			}
			defer ts.Close()
			return listSessions(cmd.Context(), cmd.OutOrStdout(), ts, time.Now())
		},
	}
}

func listSessions(ctx context.Context, out io.Writer, ts store.TranscriptStore, now time.Time) error {
	summaries, err := ts.List(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(out, headerStyle.Render("No sessions stored"))
		return nil
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d session(s)", len(summaries))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Turns")+"\t"+titleStyle.Render("Updated")+"\t")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n",
			idStyle.Render(s.SessionID),
			countStyle.Render(fmt.Sprint(s.Turns)),
			dimStyle.Render(relativeTime(s.UpdatedAt, now)),
		)
	}
	return w.Flush()
}

func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	t = t.Local()
	switch diff := now.Sub(t); {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func newSessionsExportCmd() *cobra.Command {
	var (
		format string
		locale string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Render a stored transcript (pdf, md, html or json)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			if format == "" {
				format = cfg.Render.Format
			}
			if locale == "" {
				locale = cfg.Render.Locale
			}

			ts, err := store.OpenTranscripts(cfg.Store, paths, log)
			if err != nil {
				return err
			}
			defer ts.Close()

			data, err := exportSession(cmd.Context(), ts, args[0], format, locale)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := store.WriteAtomic(output, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d bytes)\n", output, len(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "output format: pdf, md, html or json (default from config)")
	cmd.Flags().StringVar(&locale, "locale", "", "document labels: hu or en (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func loadTranscript(ctx context.Context, ts store.TranscriptStore, id string) (domain.Transcript, error) {
	if !domain.ValidSessionID(id) {
		return domain.Transcript{}, fmt.Errorf("%w: %q", domain.ErrInvalidSession, id)
	}
	t, err := ts.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return t, fmt.Errorf("no stored transcript for session %s", id)
	}
	return t, err
}

func exportSession(ctx context.Context, ts store.TranscriptStore, id, format, locale string) ([]byte, error) {
	t, err := loadTranscript(ctx, ts, id)
	if err != nil {
		return nil, err
	}
	if format == "json" {
		return json.MarshalIndent(t, "", "  ")
	}
	r, err := render.New(format, locale)
	if err != nil {
		return nil, err
	}
	art, err := r.Render(id, t.Turns)
	if err != nil {
		return nil, err
	}
	return art.Data, nil
}

func newSessionsSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <id>",
		Short: "Render a stored transcript and mail it now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			svc, err := buildServices(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			id := args[0]
			t, err := loadTranscript(cmd.Context(), svc.store, id)
			if err != nil {
				return err
			}
			art, err := svc.renderer.Render(id, t.Turns)
			if err != nil {
				return err
			}
			_, name := svc.coordinator.Names(id)
			doc := notify.Document{Name: name, ContentType: art.ContentType, Data: art.Data}
			if err := svc.scheduler.SendNow(cmd.Context(), id, doc); err != nil {
				if errors.Is(err, notify.ErrMailDisabled) {
					return fmt.Errorf("mail.driver is none; configure gmail or smtp first")
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", name, cfg.Mail.To)
			return nil
		},
	}
}
