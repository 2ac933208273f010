package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/omnichat/internal/logging"
	"github.com/hrygo/omnichat/internal/profile"
	"github.com/hrygo/omnichat/internal/version"
	"github.com/hrygo/omnichat/server"
	"github.com/hrygo/omnichat/store"
	"github.com/hrygo/omnichat/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:   "omnichat",
		Short: `A conversational backend that routes chat turns across multiple AI providers.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Systemd units supply their environment through EnvironmentFile.
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			logging.Setup(os.Stderr, viper.GetString("mode"), viper.GetString("log-level"))
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			instanceProfile := &profile.Profile{
				Mode:    viper.GetString("mode"),
				Addr:    viper.GetString("addr"),
				Port:    viper.GetInt("port"),
				Data:    viper.GetString("data"),
				Driver:  viper.GetString("driver"),
				DSN:     viper.GetString("dsn"),
				Version: version.GetCurrentVersion(viper.GetString("mode")),
			}
			instanceProfile.FromEnv()
			if err := instanceProfile.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			dbDriver, err := db.NewDBDriver(instanceProfile)
			if err != nil {
				printDatabaseError(err, instanceProfile)
				return err
			}

			storeInstance := store.New(dbDriver, instanceProfile)
			if err := storeInstance.Migrate(ctx); err != nil {
				printDatabaseError(err, instanceProfile)
				_ = storeInstance.Close()
				return err
			}

			s, err := server.NewServer(ctx, instanceProfile, storeInstance)
			if err != nil {
				_ = storeInstance.Close()
				return err
			}

			c := make(chan os.Signal, 1)
			// Trigger graceful shutdown on SIGINT or SIGTERM.
			signal.Notify(c, terminationSignals...)

			if err := s.Start(ctx); err != nil {
				_ = storeInstance.Close()
				return err
			}

			printGreetings(instanceProfile)

			go func() {
				<-c
				s.Shutdown(ctx)
				cancel()
			}()

			// Wait for CTRL-C.
			<-ctx.Done()
			return nil
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres, mysql, bolt)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); defaults to debug in dev mode")

	for _, key := range []string{"mode", "addr", "port", "data", "driver", "dsn", "log-level"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("omnichat")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("OmniChat %s started successfully!\n", version.String(profile.Mode))

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.Providers) == 0 {
		fmt.Println("AI providers: none configured (set OPENAI_API_KEY, ANTHROPIC_API_KEY, ...)")
	} else {
		names := make([]string, 0, len(profile.Providers))
		for _, p := range profile.Providers {
			names = append(names, fmt.Sprintf("%s(%d)", p.Name, len(p.Models)))
		}
		fmt.Printf("AI providers: %s\n", strings.Join(names, " -> "))
	}

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
		fmt.Printf("Chat endpoint: http://localhost:%d/api/v1/chat\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
		fmt.Printf("Chat endpoint: http://%s:%d/api/v1/chat\n", profile.Addr, profile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printDatabaseError prints a hint for the most common connection failures.
func printDatabaseError(err error, profile *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nDatabase connection failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintf(os.Stderr, "\n  The %s server is not reachable. Check the DSN host and port.\n", profile.Driver)
		fmt.Fprintf(os.Stderr, "  Or use the embedded store: --driver=sqlite --data=./data\n")
	case strings.Contains(errMsg, "sslmode"):
		fmt.Fprintf(os.Stderr, "\n  Add ?sslmode=disable to your postgres DSN.\n")
	case strings.Contains(errMsg, "password authentication failed") || strings.Contains(errMsg, "Access denied"):
		fmt.Fprintf(os.Stderr, "\n  Authentication failed. Check the credentials in OMNICHAT_DSN.\n")
	case strings.Contains(errMsg, "timeout") && profile.Driver == "bolt":
		fmt.Fprintf(os.Stderr, "\n  The bolt file is locked by another process: %s\n", profile.DSN)
	default:
		fmt.Fprintln(os.Stderr, "\n  Error:", errMsg)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
