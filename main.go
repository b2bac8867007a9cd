package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fogleman/gg"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/watzon/cubeglobe-bot/bot"
	"github.com/watzon/cubeglobe-bot/bot/config"
	"github.com/watzon/cubeglobe-bot/bot/notify"
	"github.com/watzon/cubeglobe-bot/bot/platform"
	"github.com/watzon/cubeglobe-bot/render"
	"github.com/watzon/cubeglobe-bot/world"
)

const version = "0.2.0"

type app struct {
	configPath string
	tilesPath  string
	immediate  bool
	verbose    bool

	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "cubeglobe-bot",
		Short:   "Posts procedurally generated isometric landscapes to Mastodon",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load environment variables
			_ = godotenv.Load()

			logConfig := zap.NewProductionConfig()
			if a.verbose {
				logConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := logConfig.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE:         a.run,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config.toml", "path to the main config file")
	rootCmd.PersistentFlags().StringVarP(&a.tilesPath, "tiles", "t", "tiles.conf", "path to the tiles configuration file")
	rootCmd.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&a.immediate, "immediate", false, "immediately generate and post an image, and then exit")

	rootCmd.AddCommand(a.verifyCmd())
	rootCmd.AddCommand(a.renderCmd())

	return rootCmd
}

// loadRenderer reads the tiles file. It runs before any network access so
// that a bad tiles file never results in a partial post.
func (a *app) loadRenderer() (*render.Renderer, error) {
	tiles, err := render.LoadTiles(a.tilesPath)
	if err != nil {
		return nil, err
	}
	return render.NewRenderer(tiles)
}

// loadConfig reads and validates the config, warning when TZ could not be used.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		a.logger.Error("Problem reading bot config", zap.String("path", a.configPath), zap.Error(err))
		return nil, err
	}
	if tz := os.Getenv("TZ"); tz != "" && cfg.Bot.Timezone == "" {
		a.logger.Warn("Failed to load timezone from TZ, defaulting to UTC", zap.String("tz", tz))
	}
	return cfg, nil
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	renderer, err := a.loadRenderer()
	if err != nil {
		a.logger.Error("Problem initializing renderer", zap.String("path", a.tilesPath), zap.Error(err))
		return err
	}

	notifier, err := notify.New(cfg.MQTT, a.logger)
	if err != nil {
		a.logger.Error("Problem connecting to MQTT broker", zap.Error(err))
		return err
	}
	defer notifier.Close()

	b, err := bot.NewBot(cfg, bot.Deps{
		Poster:   platform.NewMastodonClient(cfg.Credentials, a.logger),
		Renderer: renderer,
		Notifier: notifier,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	if a.immediate {
		if err := b.PostOnce(ctx); err != nil {
			a.logger.Error("Immediate post failed", zap.Error(err))
			return err
		}
		return nil
	}

	a.logger.Info("Starting bot", zap.String("instance", cfg.Credentials.Base))
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Bot stopped", zap.Error(err))
		return err
	}
	a.logger.Info("Signal caught, exiting")
	return nil
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the config, tiles and Mastodon credentials without posting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				_, err := a.loadRenderer()
				return err
			})
			g.Go(func() error {
				return platform.NewMastodonClient(cfg.Credentials, a.logger).ValidateCredentials(ctx)
			})
			if err := g.Wait(); err != nil {
				a.logger.Error("Verification failed", zap.Error(err))
				return err
			}

			a.logger.Info("Configuration, tiles and credentials are valid")
			return nil
		},
	}
}

func (a *app) renderCmd() *cobra.Command {
	var (
		out  string
		seed int64
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a landscape to a local PNG file without posting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			renderer, err := a.loadRenderer()
			if err != nil {
				return err
			}

			generator, err := world.NewGenerator(cfg.Bot.WorldOptions())
			if err != nil {
				return err
			}

			m := generator.GenerateRandom()
			if cmd.Flags().Changed("seed") {
				m = generator.Generate(seed)
			}

			label := ""
			if cfg.Bot.ShowSeed {
				label = bot.Label(0, m.Seed)
			}
			img, err := renderer.Render(m, label)
			if err != nil {
				return err
			}
			if err := gg.SavePNG(out, img); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}

			a.logger.Info("Rendered landscape", zap.String("path", out), zap.Int64("seed", m.Seed))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "landscape.png", "output file")
	cmd.Flags().Int64Var(&seed, "seed", 0, "world seed (random when unset)")

	return cmd
}
