package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/soyeahso/chatrelay/internal/config"
	"github.com/soyeahso/chatrelay/internal/version"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Width(9)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show relay status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printStatus(cmd.OutOrStdout())
			return nil
		},
	}
}

func printStatus(w io.Writer) {
	row := func(label, format string, args ...any) {
		fmt.Fprintln(w, labelStyle.Render(label)+" "+fmt.Sprintf(format, args...))
	}

	fmt.Fprintln(w, headerStyle.Render("chatrelay "+version.Version)+dimStyle.Render(" (commit "+version.Commit+")"))
	fmt.Fprintln(w)
	row("Config:", "%s", paths.Config)
	row("Data:", "%s", paths.Data)
	row("Logs:", "%s", paths.Logs)
	fmt.Fprintln(w)

	if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
		row("Config:", "%s", dimStyle.Render("not found (using defaults)"))
	}
	cfg, err := config.Load(paths.Config)
	if err != nil {
		row("Config:", "%s", warnStyle.Render("error loading: "+err.Error()))
		return
	}

	row("Gateway:", "port=%d bind=%s tls=%v", cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.TLS.Enabled)

	model := cfg.LLM.Model
	if model == "" {
		model = "(provider default)"
	}
	providers := []string{cfg.LLM.Provider}
	for _, fb := range cfg.LLM.Fallbacks {
		providers = append(providers, fb.Provider)
	}
	row("LLM:", "%s model=%s timeout=%s", strings.Join(providers, " → "), model, cfg.LLM.Timeout())

	storePath := cfg.Store.Path
	if storePath == "" && cfg.Store.Driver == "sqlite" {
		storePath = paths.Database()
	}
	row("Store:", "%s %s", cfg.Store.Driver, dimStyle.Render(storePath))
	row("Remote:", "%s", cfg.Remote.Driver)
	row("Mail:", "%s to=%s", cfg.Mail.Driver, cfg.Mail.To)
	row("Render:", "%s (%s)", cfg.Render.Format, cfg.Render.Locale)
	row("Notify:", "after %s quiet", cfg.Delivery.NotifyDelay())

	tokens := []struct{ label, path string }{
		{"Drive:", tokenPath("drive", cfg)},
		{"Gmail:", tokenPath("gmail", cfg)},
	}
	for _, tok := range tokens {
		state := okStyle.Render("authorized")
		if _, err := os.Stat(tok.path); err != nil {
			state = dimStyle.Render("no token")
		}
		row(tok.label, "%s", state)
	}

	if issues := config.Validate(&cfg); len(issues) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Validation issues (%d):", len(issues))))
		for _, issue := range issues {
			fmt.Fprintf(w, "  - %s: %s\n", issue.Path, issue.Message)
		}
	}
}
