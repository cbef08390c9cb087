package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/ArenaGo/config"
	"github.com/dyike/ArenaGo/internal/display"
	"github.com/dyike/ArenaGo/internal/logging"
	"github.com/dyike/ArenaGo/internal/server"
	"github.com/dyike/ArenaGo/internal/service"
	"github.com/dyike/ArenaGo/internal/trading"
	"github.com/dyike/ArenaGo/internal/utils"
)

const version = "1.0.0"

type rootOptions struct {
	configPath string
	debug      bool
	mgr        *config.Manager
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "arena",
		Short: "ArenaGo - trading bots competing on one stock",
		Long: `ArenaGo runs a paper-trading competition between a rule-based bot and two
LLM bots. Every tick snapshots the market, asks each bot for a decision and
settles it against its own portfolio.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := config.NewManager(config.WithConfigPath(opts.configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg := mgr.Get()
			logging.Setup(logging.Options{Debug: cfg.Debug || opts.debug, Format: cfg.LogFormat})
			opts.mgr = mgr
			return nil
		},
	}

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newTickCmd(opts))
	rootCmd.AddCommand(newStartCmd(opts))
	rootCmd.AddCommand(newStopCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Configuration file path")

	return rootCmd
}

// withApp wires the arena for the duration of one command.
func withApp(ctx context.Context, opts *rootOptions, fn func(*app) error) error {
	a, err := newApp(ctx, opts.mgr)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tick endpoint and the simulation API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, opts, func(a *app) error {
				if err := opts.mgr.Watch(ctx, a.reconfigure); err != nil {
					a.log.WithError(err).Warn("config hot reload disabled")
				}
				if addr == "" {
					addr = opts.mgr.Get().ListenAddr
				}
				srv := server.New(a.orchestrator, a.service)
				return srv.ListenAndServe(ctx, addr, 10*time.Second)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to listen_addr)")
	return cmd
}

func newTickCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one tick locally with the configured cron secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				res := a.orchestrator.Tick(cmd.Context(), trading.TickRequest{
					Credentials: trading.Credentials{Header: opts.mgr.Get().CronSecret},
					Force:       force,
				})
				fmt.Println(display.Tick(res))
				if res.Err != nil {
					return res.Err
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Bypass the weekend, holiday and once-per-hour guards")
	return cmd
}

func newStartCmd(opts *rootOptions) *cobra.Command {
	var (
		req         service.StartRequest
		weight      int
		user        string
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new simulation",
		Example: `  arena start --symbol AAPL --capital 10000
  arena start -i`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("weight") {
				req.WeightTechnical = &weight
			}
			if interactive || req.Symbol == "" {
				if err := promptStartRequest(&req, opts.mgr.Get()); err != nil {
					return err
				}
			}
			return withApp(cmd.Context(), opts, func(a *app) error {
				sim, err := a.service.Start(cmd.Context(), req, user)
				if err != nil {
					return err
				}
				fmt.Printf("🚀 Simulation %s started on %s for %d days\n", sim.ID, sim.Symbol, sim.DurationDays)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Symbol, "symbol", "", "Ticker symbol")
	cmd.Flags().Float64Var(&req.StartCapital, "capital", 10000, "Starting capital per bot")
	cmd.Flags().IntVar(&req.DurationDays, "days", 21, "Trading days to run")
	cmd.Flags().StringVar(&req.CheapModelID, "cheap-model", "", "Model id of the cheap bot")
	cmd.Flags().StringVar(&req.PremiumModelID, "premium-model", "", "Model id of the premium bot")
	cmd.Flags().BoolVar(&req.UseReddit, "social", false, "Include Reddit and Stocktwits signals")
	cmd.Flags().IntVar(&weight, "weight", 50, "Technical weight (0-100) of the algo bot")
	cmd.Flags().StringVar(&user, "user", "", "Creator id recorded on the simulation")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for every setting")
	return cmd
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	var id, user string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				sim, err := a.service.Stop(cmd.Context(), id, user)
				if err != nil {
					return err
				}
				fmt.Printf("🛑 Simulation %s stopped at day %d\n", sim.ID, sim.CurrentDay)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Simulation id (defaults to the running one)")
	cmd.Flags().StringVar(&user, "user", "", "Caller id, required when the simulation has a creator")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current simulation and leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				st, err := a.service.Status(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Println(display.Status(st))
				return nil
			})
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		id     string
		last   int
		csvDir string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show per-tick ROI of every bot against buy & hold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				h, err := a.service.History(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Println(display.History(h, last))
				if csvDir == "" {
					return nil
				}
				header, rows := h.CSV()
				path, err := utils.NewCSVManager(csvDir).WriteHistory(h.Simulation.Symbol, header, rows)
				if err != nil {
					return err
				}
				fmt.Printf("📄 Exported %d ticks to %s\n", len(rows), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Simulation id (defaults to the latest)")
	cmd.Flags().IntVar(&last, "last", 10, "Number of ticks to show, 0 for all")
	cmd.Flags().StringVar(&csvDir, "csv", "", "Also export the full history as CSV under this directory")
	return cmd
}

// newConfigCmd creates the config command
func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(opts.mgr.Get().Redacted(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("# %s\n%s\n", opts.mgr.Path(), data)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and report missing credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.mgr.Get()
			if err := cfg.Validate(); err != nil {
				return err
			}
			for _, w := range credentialWarnings(cfg) {
				fmt.Printf("⚠️  %s\n", w)
			}
			fmt.Println("✅ Configuration is valid")
			return nil
		},
	})

	return configCmd
}

func credentialWarnings(cfg config.Config) []string {
	var out []string
	if cfg.CronSecret == "" {
		out = append(out, "cron_secret is empty: every tick request will be rejected")
	}
	if cfg.FinnhubAPIKey == "" {
		out = append(out, "finnhub_api_key is empty: quotes and news are unavailable")
	}
	if cfg.ChatAPIKey() == "" {
		out = append(out, fmt.Sprintf("no API key for llm_provider %q: LLM bots will always HOLD", cfg.LLMProvider))
	}
	return out
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ArenaGo v%s\n", version)
		},
	}
}
