// tsmreport: backup status reports for IBM Storage Protect (TSM) servers.
// Author: vesaa | License: MIT | https://github.com/vesaa/tsmreport
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vesaa/tsmreport/internal/agent"
	"github.com/vesaa/tsmreport/internal/collector"
	"github.com/vesaa/tsmreport/internal/config"
	"github.com/vesaa/tsmreport/internal/logging"
	"github.com/vesaa/tsmreport/internal/mailer"
	"github.com/vesaa/tsmreport/internal/report"
	"github.com/vesaa/tsmreport/internal/server"
)

const asciiLogo = `
 ████████╗███████╗███╗   ███╗    ██████╗ ███████╗██████╗  ██████╗ ██████╗ ████████╗
 ╚══██╔══╝██╔════╝████╗ ████║    ██╔══██╗██╔════╝██╔══██╗██╔═══██╗██╔══██╗╚══██╔══╝
    ██║   ███████╗██╔████╔██║    ██████╔╝█████╗  ██████╔╝██║   ██║██████╔╝   ██║
    ██║   ╚════██║██║╚██╔╝██║    ██╔══██╗██╔══╝  ██╔═══╝ ██║   ██║██╔══██╗   ██║
    ██║   ███████║██║ ╚═╝ ██║    ██║  ██║███████╗██║     ╚██████╔╝██║  ██║   ██║
    ╚═╝   ╚══════╝╚═╝     ╚═╝    ╚═╝  ╚═╝╚══════╝╚═╝      ╚═════╝ ╚═╝  ╚═╝   ╚═╝
`

const version = "v0.1.0"

func printBanner(mode string) {
	fmt.Println(asciiLogo)
	fmt.Printf("  ► tsmreport %s  |  Author: vesaa  |  Mode: %s\n\n", version, mode)
}

// setup loads and validates the config and installs the default logger.
// The returned func closes the log file.
func setup(path string) (*config.Config, func(), error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logging: %w", err)
	}
	slog.SetDefault(logger)
	return cfg, func() { _ = closer.Close() }, nil
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "tsmreport",
		Short: "Backup status reports for IBM Storage Protect",
		Long: `tsmreport queries IBM Storage Protect (TSM) servers through dsmadmc,
summarizes the last 24 hours of client backups per policy domain and mails
an HTML report to each domain's contact.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./tsmreport.yaml or ~/.tsmreport/tsmreport.yaml)")

	// ── run subcommand ────────────────────────────────────────────────────────
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Collect backup status and mail the reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("RUN")

			cfg, done, err := setup(configPath)
			if err != nil {
				return err
			}
			defer done()

			var opts agent.Options
			opts.UseCache, _ = cmd.Flags().GetBool("cache")
			opts.ExportDir, _ = cmd.Flags().GetString("export")
			opts.DisableMail, _ = cmd.Flags().GetBool("disable-mail-send")
			opts.Instances, _ = cmd.Flags().GetStringSlice("instance")
			opts.Interval, _ = cmd.Flags().GetDuration("interval")

			if !opts.DisableMail {
				if err := cfg.ValidateMail(); err != nil {
					return err
				}
			}
			if err := cfg.LoadPassword(); err != nil {
				return err
			}

			store, err := server.OpenStore(cfg.Cache.DBPath)
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}
			defer store.Close()

			renderer, err := report.New(cfg.TemplatePath)
			if err != nil {
				return err
			}

			runner := &agent.Runner{
				Config:   cfg,
				Store:    store,
				Renderer: renderer,
				Sender:   mailer.NewSMTPSender(cfg.Mail),
			}

			fmt.Printf("  ✓ Instances: %v\n", cfg.Instances)
			fmt.Printf("  ✓ Cache:     %s (use=%v)\n", cfg.Cache.DBPath, opts.UseCache)
			if opts.DisableMail {
				fmt.Printf("  ✓ Mail:      disabled\n\n")
			} else {
				fmt.Printf("  ✓ Mail:      %s:%d\n\n", cfg.Mail.ServerHost, cfg.Mail.ServerPort)
			}

			ctx, cancel := signalContext()
			defer cancel()
			return runner.Loop(ctx, opts)
		},
	}
	runCmd.Flags().Bool("cache", false, "Reuse the latest cached snapshot if younger than cache.max_age")
	runCmd.Flags().String("export", "", "Also write <instance>_<group>_report.html files to this directory")
	runCmd.Flags().Bool("disable-mail-send", false, "Do not send any mail")
	runCmd.Flags().StringSlice("instance", nil, "Restrict the run to these instances")
	runCmd.Flags().Duration("interval", 0, "Repeat the run at this interval until interrupted (0 = once)")

	// ── export subcommand ─────────────────────────────────────────────────────
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Render the latest cached snapshot of every instance to HTML files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, done, err := setup(configPath)
			if err != nil {
				return err
			}
			defer done()

			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.ExportDir
			}

			store, err := server.OpenStore(cfg.Cache.DBPath)
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}
			defer store.Close()

			renderer, err := report.New(cfg.TemplatePath)
			if err != nil {
				return err
			}

			runner := &agent.Runner{
				Config:   cfg,
				Store:    store,
				Renderer: renderer,
				Executor: cacheOnly,
			}
			// max_age 0 accepts snapshots of any age
			cfg.Cache.MaxAge = 0
			return runner.Cycle(context.Background(), agent.Options{UseCache: true, ExportDir: dir, DisableMail: true})
		},
	}
	exportCmd.Flags().String("dir", "", "Output directory (default export_dir)")

	// ── serve subcommand ──────────────────────────────────────────────────────
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve cached reports over HTTP (JWT-protected API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SERVE")

			cfg, done, err := setup(configPath)
			if err != nil {
				return err
			}
			defer done()
			if err := cfg.ValidateServer(); err != nil {
				return err
			}

			store, err := server.OpenStore(cfg.Cache.DBPath)
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}
			defer store.Close()

			renderer, err := report.New(cfg.TemplatePath)
			if err != nil {
				return err
			}
			loc, _ := cfg.Location()

			// Inject security settings into server package globals.
			server.SetJWTSecret(cfg.Server.JWTSecret)
			server.SetAdminCredentials(cfg.Server.AdminUser, cfg.Server.AdminPass)

			gin.SetMode(gin.ReleaseMode)
			engine := server.NewEngine(&server.API{
				Store:     store,
				Renderer:  renderer,
				Retention: cfg.RetentionDays,
				Location:  loc,
			})

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			fmt.Printf("  ✓ Reports (Web + JWT API) → http://%s\n", addr)
			fmt.Printf("  ✓ Login user: %s\n\n", cfg.Server.AdminUser)

			srv := &http.Server{Addr: addr, Handler: engine}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			ctx, cancel := signalContext()
			defer cancel()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				fmt.Println("\n  → Shutting down gracefully…")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	// ── config subcommand ─────────────────────────────────────────────────────
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg.Redacted())
		},
	}

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print tsmreport version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tsmreport %s  |  Author: vesaa\n", version)
		},
	}

	root.AddCommand(runCmd, exportCmd, serveCmd, configCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// errNoCache is returned by cacheOnly executors.
var errNoCache = errors.New("no cached snapshot; run \"tsmreport run\" first")

// cacheOnly refuses every console query so export never contacts a server.
func cacheOnly(string) collector.Executor { return cacheOnlyExec{} }

type cacheOnlyExec struct{}

func (cacheOnlyExec) Query(context.Context, string) ([]byte, error) { return nil, errNoCache }
