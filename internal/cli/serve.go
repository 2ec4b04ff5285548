package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/soyeahso/chatrelay/internal/gateway"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"gateway"},
		Short:   "Start the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := buildServices(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			svc.coordinator.Attach(svc.hooks)

			log.Info().
				Str("store", cfg.Store.Driver).
				Str("remote", cfg.Remote.Driver).
				Str("mail", cfg.Mail.Driver).
				Str("render", svc.renderer.Extension()).
				Dur("notifyDelay", cfg.Delivery.NotifyDelay()).
				Msg("delivery pipeline ready")

			srv := gateway.New(cfg.Gateway, svc.runner, svc.sessions, log,
				gateway.WithHooks(svc.hooks),
				gateway.WithStore(svc.store),
				gateway.WithRenderer(svc.renderer),
				gateway.WithScheduler(svc.scheduler),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}
