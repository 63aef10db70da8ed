package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"datadeploy/internal/config"
	"datadeploy/internal/flags"
	"datadeploy/internal/logger"
	"datadeploy/internal/trigger"

	"github.com/spf13/cobra"
)

var serveNoSchedule bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chain on a schedule and on GitHub push webhooks",
	Long: `Run as a long-lived process that starts a run for every trigger:

	- schedule: the --cron expression evaluated in --timezone (default: daily 00:00 UTC)
	- push:     GitHub push deliveries for --branch posted to --listen + --webhook-path

Runs never overlap within one process; triggers that arrive during a run are
queued (up to --queue-size) and run in arrival order.

Webhook deliveries are verified against the secret in $WEBHOOK_SECRET (see
the secret_env config key). Without a secret, unsigned deliveries are accepted.

Examples:
	datadeploy serve --workdir /srv/spreads --listen :8080
	datadeploy serve --listen "" --cron "30 6 * * 1-5" --timezone Europe/Madrid
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(serve(cmd))
	},
}

func serve(cmd *cobra.Command) int {
	c, err := resolveConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	eng, err := newEngine(ctx, c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}

	srv, err := newServer(ctx, c, func(ctx context.Context, ev trigger.Event) int {
		return eng.Run(ctx, c, ev)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}
	if err := srv.Serve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 3
	}
	logger.Info(ctx, "serve stopped")
	return 0
}

func newServer(ctx context.Context, c *config.Config, run trigger.RunFunc) (*trigger.Server, error) {
	d := trigger.NewDispatcher(c.Schedule.QueueSize, run)
	srv := &trigger.Server{Dispatcher: d}

	if !serveNoSchedule {
		sched, err := trigger.ParseSchedule(c.Schedule.Cron, c.Schedule.Timezone)
		if err != nil {
			return nil, err
		}
		srv.Schedule = sched
	}

	if addr := strings.TrimSpace(c.Schedule.Listen); addr != "" {
		secret := os.Getenv(c.Schedule.SecretEnv)
		if secret == "" {
			logger.WarnKV(ctx, "webhook secret not set; accepting unsigned deliveries", "env", c.Schedule.SecretEnv)
		}
		srv.Addr = addr
		srv.WebhookPath = c.Schedule.WebhookPath
		srv.Webhook = trigger.NewWebhookHandler([]byte(secret), c.Repository.Branch, d.Submit)
	}
	return srv, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	bindChainFlags(serveCmd)

	f := serveCmd.Flags()
	f.StringVar(&cfg.Schedule.Cron, flags.FlagCron, config.DefaultCron, "Schedule as a 5-field cron expression")
	f.StringVar(&cfg.Schedule.Timezone, flags.FlagTimezone, config.DefaultTimezone, "IANA timezone the schedule is evaluated in")
	f.StringVar(&cfg.Schedule.Listen, flags.FlagListen, config.DefaultListen, "Webhook listen address (empty disables the webhook)")
	f.StringVar(&cfg.Schedule.WebhookPath, flags.FlagHookPath, config.DefaultWebhookPath, "HTTP path GitHub delivers push events to")
	f.IntVar(&cfg.Schedule.QueueSize, flags.FlagQueueSize, config.DefaultQueueSize, "Maximum queued triggers")
	f.BoolVar(&serveNoSchedule, "no-schedule", false, "Disable scheduled runs (webhook only)")
}
