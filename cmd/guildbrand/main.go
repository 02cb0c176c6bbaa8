// Command guildbrand keeps guild icons and banners fresh with promotional photos.
//
// Usage:
//
//	guildbrand -config guildbrand.yaml                  # run the bot and the admin API
//	guildbrand -db guildbrand.db -addr :8420            # run with defaults
//	guildbrand -once icon -out icon.gif                 # build one icon and exit
//	guildbrand -once banner -guild 1234 -config gb.yaml # push one banner and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/guildbrand/brand"
	"github.com/hazyhaar/guildbrand/catalog"
	"github.com/hazyhaar/guildbrand/discord"
	"github.com/hazyhaar/guildbrand/shield"
)

func main() {
	configPath := flag.String("config", "", "path to guildbrand.yaml config file")
	dbPath := flag.String("db", "", "path to SQLite database")
	addr := flag.String("addr", "", "admin API listen address")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	once := flag.String("once", "", "build one artifact (icon or banner) and exit")
	guildID := flag.String("guild", "", "with -once: push the artifact to this guild")
	out := flag.String("out", "", "with -once: write the artifact to this file")
	flag.Parse()

	cfg, err := resolveConfig(*configPath, *dbPath, *addr, *logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "guildbrand:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once != "" {
		err = runOnce(ctx, logger, cfg, *once, *guildID, *out)
	} else {
		err = run(ctx, logger, cfg)
	}
	if err != nil {
		logger.Error("guildbrand: fatal", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func resolveConfig(configPath, dbPath, addr, logLevel string) (*brand.Config, error) {
	cfg := &brand.Config{}
	if configPath != "" {
		loaded, err := brand.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func run(ctx context.Context, logger *slog.Logger, cfg *brand.Config) error {
	svc, err := brand.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()

	if cfg.Discord.Token != "" {
		bot, err := discord.New(discord.Config{
			Token:         cfg.Discord.Token,
			CommandPrefix: cfg.Discord.CommandPrefix,
		}, svc, logger)
		if err != nil {
			return err
		}
		svc.SetTransport(bot)
		if err := bot.Open(ctx); err != nil {
			return err
		}
		defer bot.Close()
	} else {
		logger.Warn("guildbrand: DISCORD_TOKEN not set, running without transport")
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "guildbrand", Version: "1.0.0"}, nil)
	svc.RegisterMCP(mcpSrv)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)

	r := svc.Router()
	r.With(shield.BasicAuth(cfg.Admin.Users)).Handle("/mcp", mcpHandler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("guildbrand: http listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("guildbrand: http", "error", err)
		}
	}()

	svc.Start(ctx)
	logger.Info("guildbrand: running", "db", cfg.DBPath)

	<-ctx.Done()
	logger.Info("guildbrand: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runOnce(ctx context.Context, logger *slog.Logger, cfg *brand.Config, kind, guildID, out string) error {
	size, err := catalog.ParseSizeClass(kind)
	if err != nil {
		return err
	}
	if guildID == "" && out == "" {
		return fmt.Errorf("-once needs -out, -guild or both")
	}

	cfg.Scheduler.Disabled = true
	svc, err := brand.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()

	if err := svc.RefreshCatalog(ctx); err != nil {
		return err
	}
	data, contentType, err := svc.Preview(ctx, size)
	if err != nil {
		return err
	}

	if out != "" {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		logger.Info("guildbrand: artifact written", "path", out, "content_type", contentType, "bytes", len(data))
	}

	if guildID != "" {
		bot, err := discord.New(discord.Config{Token: cfg.Discord.Token}, svc, logger)
		if err != nil {
			return err
		}
		if size == catalog.Icon {
			err = bot.SetIcon(ctx, guildID, data)
		} else {
			err = bot.SetBanner(ctx, guildID, data)
		}
		if err != nil {
			return err
		}
		logger.Info("guildbrand: updated", "guild_id", guildID, "kind", size.String())
	}
	return nil
}
