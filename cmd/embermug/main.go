package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/embermug/internal/ble"
	"github.com/chaz8081/embermug/internal/config"
	"github.com/chaz8081/embermug/internal/console"
	"github.com/chaz8081/embermug/internal/monitor"
	"github.com/chaz8081/embermug/internal/publish"
	"github.com/chaz8081/embermug/internal/session"
	"github.com/chaz8081/embermug/internal/shell"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/embermug/config.yaml)")
	initConfig := flag.Bool("init-config", false, "write the default config file and exit")
	noShell := flag.Bool("no-shell", false, "run without the interactive shell")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
			return
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	printBanner(cfg)

	adapter, err := ble.NewAdapter(cfg.BLE.Backend)
	if err != nil {
		log.Fatalf("Failed to initialize Bluetooth: %v", err)
	}

	unit := cfg.TemperatureUnit()
	state := session.NewState(unit, session.Presets{
		Coffee: cfg.Presets.Coffee,
		Tea:    cfg.Presets.Tea,
	})
	keeper := session.NewKeeper(state, cfg.Session.PollInterval)
	dispatcher := session.NewDispatcher(state, keeper)

	// Signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	savePath := *configPath
	if savePath == "" {
		savePath = config.DefaultConfigPath()
	}
	cmds := shell.NewCommands(dispatcher, state.Presets, func(name string, centi int) error {
		switch name {
		case session.PresetCoffee:
			cfg.Presets.Coffee = centi
		case session.PresetTea:
			cfg.Presets.Tea = centi
		}
		return cfg.Save(savePath)
	})

	var out, logOut io.Writer = os.Stdout, os.Stderr
	var sh *shell.Shell
	if !*noShell {
		sh, err = shell.New(cmds)
		if err != nil {
			log.Fatalf("Failed to start shell: %v", err)
		}
		out, logOut = sh.Stdout(), sh.Stderr()
	}
	log.SetOutput(logOut)
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	con := console.New(out, unit)
	manager := session.NewManager(adapter, state, keeper, session.Options{
		DeviceName:     cfg.DeviceName,
		ScanTick:       cfg.Session.ScanTick,
		ScanRestart:    cfg.Session.ScanRestart,
		ConnectTimeout: cfg.Session.ConnectTimeout,
		Pair:           cfg.BLE.Pair,
		Status:         con.Status,
	})

	presenters := []monitor.Presenter{con}
	var pub *publish.Publisher
	if cfg.Redis.Enabled {
		store, err := publish.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer store.Close()
		pub = publish.NewPublisher(store, cfg.Redis.Key)
		presenters = append(presenters, pub)
		log.Printf("Publishing readings to Redis hash %q", cfg.Redis.Key)
	}
	refresher := monitor.NewRefresher(dispatcher, cfg.Session.RefreshInterval, presenters...)
	refresher.WaitFor(state)
	state.OnPhaseChange(refresher.PhaseChanged)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error { return refresher.Run(gctx) })
	if pub != nil {
		g.Go(func() error { return pub.ServeCommands(gctx, cmds.Execute) })
	}
	if sh != nil {
		g.Go(func() error { return sh.Run(gctx, cancel) })
	} else {
		g.Go(func() error {
			return con.Spinner(gctx, cfg.Session.ScanTick, manager.Progress, state.Phase)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		state.Stop()
		if sh != nil {
			sh.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("ERROR: %v", err)
	}
	log.Println("Goodbye!")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== embermug ===")
	fmt.Printf("  Device:  %s\n", cfg.DeviceName)
	fmt.Printf("  Unit:    %s\n", cfg.TemperatureUnit())
	fmt.Printf("  Presets: coffee %.2f°C, tea %.2f°C\n", float64(cfg.Presets.Coffee)/100, float64(cfg.Presets.Tea)/100)
	fmt.Printf("  BLE:     %s (pair: %v)\n", cfg.BLE.Backend, cfg.BLE.Pair)
	if cfg.Redis.Enabled {
		fmt.Printf("  Redis:   %s db %d key %q\n", cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Key)
	}
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("================")
}
