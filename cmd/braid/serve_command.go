package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/braidlog/braid/internal/httpserver"
	"github.com/braidlog/braid/internal/pager"
	"github.com/braidlog/braid/internal/socketrpc"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(configFlag *string) *cobra.Command {
	var (
		mergedDir string
		apiAddr   string
		sockPath  string
		noAPI     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a merged session over HTTP and a Unix socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("merged") {
				cfg.MergedDir = mergedDir
			}
			if cmd.Flags().Changed("api-addr") {
				cfg.APIAddr = apiAddr
			}
			if cmd.Flags().Changed("socket") {
				cfg.SocketPath = sockPath
			}
			if noAPI {
				cfg.APIEnabled = false
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&mergedDir, "merged", "", "merged session directory to serve")
	cmd.Flags().StringVar(&apiAddr, "api-addr", "", "HTTP API listen address")
	cmd.Flags().StringVar(&sockPath, "socket", "", "Unix socket path for RPC")
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "disable the HTTP API")

	return cmd
}

// runServe binds the pager to the merged directory and keeps both read
// surfaces up until a signal arrives.
func runServe(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	svc, err := pager.New()
	if err != nil {
		return fmt.Errorf("failed to initialize pager: %w", err)
	}
	defer svc.Close()

	if cfg.MergedDir != "" {
		if err := os.MkdirAll(cfg.MergedDir, 0755); err != nil {
			return fmt.Errorf("failed to prepare merged dir: %w", err)
		}
		if err := svc.SetManifestDir(cfg.MergedDir); err != nil {
			return fmt.Errorf("failed to bind merged dir: %w", err)
		}
	}

	// Start HTTP API server if enabled
	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, svc)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Start socket RPC server for viewer IPC
	sockServer := socketrpc.NewServer(cfg.SocketPath, svc)
	if err := sockServer.Start(); err != nil {
		log.Printf("Warning: failed to start socket server: %v", err)
	} else {
		defer sockServer.Stop()
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts at signal time, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	printStartupBanner(cfg, svc)

	// Use errgroup for concurrent goroutine lifecycle management.
	g, gctx := errgroup.WithContext(ctx)

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("serve: errgroup exited with error: %v", err)
	}

	// If we reach here, graceful shutdown succeeded within the deadline.
	// The signal goroutine (if active) dies with the process.
	signal.Stop(sigCh)

	return nil
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "braid")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "braid.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig, svc *pager.Service) {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		log.Printf("serve: http=%s socket=%s merged=%s", cfg.APIAddr, cfg.SocketPath, cfg.MergedDir)
		return
	}

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔╗ ╦═╗╔═╗╦╔╦╗
    ╠╩╗╠╦╝╠═╣║ ║║
    ╚═╝╩╚═╩ ╩╩═╩╝`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	// Gateway
	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")

	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}

	lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", check, cyan.Render(shortenPath(cfg.SocketPath))))
	lines = append(lines, "")

	// Session
	lines = append(lines, bold.Render("    Session"))
	lines = append(lines, "")

	if info, err := svc.Manifest(); err == nil {
		lines = append(lines, fmt.Sprintf("    %s  Merged Dir     %s", check, dim.Render(shortenPath(info.Dir))))
		lines = append(lines, fmt.Sprintf("    %s  Lines          %s", check, dim.Render(fmt.Sprintf("%d in %d chunks", info.MergedLines, info.ChunkCount))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Merged Dir     %s", dot, dim.Render("not bound")))
	}

	lines = append(lines, "")
	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
