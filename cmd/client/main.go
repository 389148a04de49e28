package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cannonclash/client/internal/app"
	"github.com/cannonclash/client/internal/auth"
	"github.com/cannonclash/client/internal/config"
	"github.com/cannonclash/client/internal/conn"
	"github.com/cannonclash/client/internal/diag"
	"github.com/cannonclash/client/internal/log"
	"github.com/cannonclash/client/internal/store/sqlite"
)

func main() {
	var (
		serverURL  string
		configPath string
		tokenPath  string
		logLevel   string
		dev        bool
	)

	root := &cobra.Command{
		Use:   "cannonclash",
		Short: "Terminal client for the CannonClash game server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, serverURL, configPath, tokenPath, logLevel, dev)
		},
		SilenceUsage: true,
	}

	root.Flags().StringVar(&serverURL, "server", "", "game server websocket URL (overrides stored and default)")
	root.Flags().StringVar(&configPath, "config", "", "path to config file")
	root.Flags().StringVar(&tokenPath, "token-file", "", "file holding the identity provider token")
	root.Flags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	root.Flags().BoolVar(&dev, "dev", false, "enable developer mode (diagnostics overlay and endpoint)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, serverURL, configPath, tokenPath, logLevel string, dev bool) error {
	bootLog := log.New("info")
	cfg, cfgPath, err := config.Load(bootLog, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dev {
		cfg.Dev = true
	}

	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("path", cfgPath).Msg("configuration loaded")

	st, err := sqlite.New(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer st.Close()

	gate := auth.NewGate(tokenSource(tokenPath))
	gate.Refresh(ctx)

	term := newTerminal(os.Stdout)

	ctl, err := app.New(ctx, cfg, app.Options{
		Store:   st,
		Gate:    gate,
		Dial:    conn.DialWebSocket,
		FlagURL: serverURL,
		Collab:  term.collaborators(),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("build controller: %w", err)
	}

	if cfg.Dev {
		d := diag.New(cfg.DiagAddr, ctl.Status, logger)
		go func() {
			if err := d.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("diagnostics endpoint failed")
			}
		}()
	}

	go ctl.Run(ctx)

	return term.repl(ctx, ctl)
}

// tokenSource reads the token fresh per request so a rotated file is picked
// up without restarting. CANNON_TOKEN wins when set.
func tokenSource(path string) auth.TokenSource {
	return auth.TokenSourceFunc(func(context.Context) (string, error) {
		if tok := os.Getenv("CANNON_TOKEN"); tok != "" {
			return tok, nil
		}
		if path == "" {
			return "", auth.ErrNoToken
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read token file: %w", err)
		}
		tok := strings.TrimSpace(string(data))
		if tok == "" {
			return "", auth.ErrNoToken
		}
		return tok, nil
	})
}
