package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"prepcal/internal/config"
	"prepcal/internal/db"
	"prepcal/internal/domain"
	"prepcal/internal/migrate"
	"prepcal/internal/relay"
	"prepcal/internal/repo"
	"prepcal/internal/server"
	"prepcal/internal/viewrange"
)

var rootCmd = &cobra.Command{
	Use:   "prepcal",
	Short: "PrepCal calendar and workflow relay",
	Long: `PrepCal serves a calendar dashboard backed by Google Calendar and relays
chat messages to an external workflow system:
- Calendar: view windows (month, week, day, agenda), event CRUD proxied to
  the provider, and an iCalendar feed export.
- Chat: messages are forwarded to the workflow webhook; replies come back
  over the notify ingress and fan out to connected displays via SSE.
- Workspace: the .prepcal directory holds the SQLite database; prepcal.yml
  next to it holds server, auth, and workflow settings.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PREPCAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(windowCmd())
	rootCmd.AddCommand(pruneCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			applyEnvOverrides(cfg)
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret (or PREPCAL_JWT_SECRET) is required for bearer auth")
			}

			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}

			webhook := relay.NewWebhookClient(cfg.Workflow.WebhookURL, cfg.Workflow.APIKey)
			hub := relay.NewHub()
			session := relay.NewSession(relay.SessionConfig{
				Submit:          webhook,
				ResponseTimeout: time.Duration(cfg.Workflow.ResponseTimeout),
			})
			defer session.Close()

			sweeper := cron.New()
			ttl := time.Duration(cfg.Retention.ReplyTTL)
			if ttl > 0 {
				_, err := sweeper.AddFunc("@hourly", func() {
					ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					n, err := r.PruneAnsweredBefore(ctx, time.Now().Add(-ttl))
					if err != nil {
						log.Printf("retention: prune failed: %v", err)
						return
					}
					if n > 0 {
						log.Printf("retention: pruned %d answered requests", n)
					}
				})
				if err != nil {
					return err
				}
				sweeper.Start()
				defer sweeper.Stop()
			}

			handler, err := server.New(server.Config{
				Repo:         r,
				Hub:          hub,
				Session:      session,
				NotifySecret: cfg.Workflow.NotifySecret,
				BasePath:     cfg.Server.BasePath,
				Auth: server.AuthConfig{
					JWTSecret: cfg.Auth.JWTSecret,
					Google:    googleOAuth(cfg),
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving PrepCal API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("PREPCAL_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("PREPCAL_NOTIFY_SECRET"); v != "" {
		cfg.Workflow.NotifySecret = v
	}
	if v := os.Getenv("PREPCAL_GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.Google.ClientID = v
	}
	if v := os.Getenv("PREPCAL_GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.Google.ClientSecret = v
	}
	if v := os.Getenv("PREPCAL_WORKFLOW_API_KEY"); v != "" {
		cfg.Workflow.APIKey = v
	}
}

func googleOAuth(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.Auth.Google.ClientID,
		ClientSecret: cfg.Auth.Google.ClientSecret,
		RedirectURL:  cfg.Auth.Google.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			"https://www.googleapis.com/auth/calendar.events",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default prepcal.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func windowCmd() *cobra.Command {
	var view, date string
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Resolve a view window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := time.Now()
			if date != "" {
				parsed, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: use YYYY-MM-DD", date)
				}
				ref = parsed
			}
			kind := domain.ViewKind("")
			if view != "" {
				parsed, ok := domain.ParseViewKind(view)
				if !ok {
					return fmt.Errorf("invalid --view %q: use month, week, day, or agenda", view)
				}
				kind = parsed
			}
			return printJSON(viewrange.ComputeWindow(kind, ref))
		},
	}
	cmd.Flags().StringVar(&view, "view", "", "view kind (month, week, day, agenda)")
	cmd.Flags().StringVar(&date, "date", "", "reference date (YYYY-MM-DD)")
	return cmd
}

func pruneCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune answered chat requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			n, err := r.PruneAnsweredBefore(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"pruned": n})
			}
			fmt.Printf("Pruned %d answered requests\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "prune requests answered before now minus this age")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
