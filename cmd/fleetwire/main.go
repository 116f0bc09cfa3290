package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	serverrun "github.com/fleetwire/fleetwire/internal/cmd/server"
	cfgpkg "github.com/fleetwire/fleetwire/internal/config"
	logpkg "github.com/fleetwire/fleetwire/pkg/log"
)

var version = "dev"

func main() {
	// Respect FLEETWIRE_LOG_LEVEL for CLI output
	level := os.Getenv("FLEETWIRE_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "fleetwire",
		Short: "Fleetwire device pipeline CLI",
		Long:  "Fleetwire is a single-binary telemetry and command pipeline for device fleets. This CLI manages the server and basic operations.",
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServerCmd())
	rootCmd.AddCommand(newCommandCmd())
	rootCmd.AddCommand(newDeviceCmd())
	rootCmd.AddCommand(newIngestCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("fleetwire", version)
		},
	}
}

func newServerCmd() *cobra.Command {
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	startCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the fleetwire server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)
			overlayFlags(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := serverrun.Run(context.Background(), serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	startCmd.Flags().String("config", "", "Config file (JSON or YAML)")
	startCmd.Flags().String("data-dir", "", "Data directory (defaults to OS-specific application data directory)")
	startCmd.Flags().String("http", "", "HTTP listen address")
	startCmd.Flags().String("namespace", "", "Namespace for stream and queue keyspaces")
	startCmd.Flags().Int("partitions", 0, "Telemetry stream partition count")
	startCmd.Flags().String("fsync", "", "Fsync mode: always|interval|never")
	startCmd.Flags().String("postgres-dsn", "", "Postgres sink DSN (empty selects the in-memory sink)")
	startCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	startCmd.Flags().String("log-format", "", "Log format: text|json")
	serverCmd.AddCommand(startCmd)
	return serverCmd
}

// overlayFlags applies explicitly set flags on top of file and env config.
func overlayFlags(cmd *cobra.Command, cfg *cfgpkg.Config) {
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("http"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v, _ := cmd.Flags().GetString("namespace"); v != "" {
		cfg.Namespace = v
	}
	if v, _ := cmd.Flags().GetInt("partitions"); v > 0 {
		cfg.Stream.Partitions = v
	}
	if v, _ := cmd.Flags().GetString("fsync"); v != "" {
		cfg.Storage.FsyncMode = v
	}
	if v, _ := cmd.Flags().GetString("postgres-dsn"); v != "" {
		cfg.Sink.PostgresDSN = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
}

func newCommandCmd() *cobra.Command {
	commandCmd := &cobra.Command{Use: "command", Short: "Command operations"}

	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Queue a command for a device",
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, _ := cmd.Flags().GetString("device")
			ctype, _ := cmd.Flags().GetString("type")
			body, _ := json.Marshal(map[string]string{"deviceId": deviceID, "commandType": ctype})
			resp, err := http.Post(apiURL()+"/v1/commands", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			out, _ := io.ReadAll(resp.Body)
			fmt.Println("status:", resp.Status)
			fmt.Println(string(out))
			return nil
		},
	}
	sendCmd.Flags().String("device", "", "Target device id")
	sendCmd.Flags().String("type", "DoorLock", "Command type: DoorLock|DoorUnlock|EngineStart|EngineStop")
	_ = sendCmd.MarkFlagRequired("device")
	commandCmd.AddCommand(sendCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show a command's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			resp, err := http.Get(apiURL() + "/v1/commands/" + id)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			out, _ := io.ReadAll(resp.Body)
			fmt.Println("status:", resp.Status)
			fmt.Println(string(out))
			return nil
		},
	}
	statusCmd.Flags().String("id", "", "Command id")
	_ = statusCmd.MarkFlagRequired("id")
	commandCmd.AddCommand(statusCmd)

	return commandCmd
}

func newDeviceCmd() *cobra.Command {
	deviceCmd := &cobra.Command{Use: "device", Short: "Device operations"}
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show a device's state",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			resp, err := http.Get(apiURL() + "/v1/devices/" + id)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			out, _ := io.ReadAll(resp.Body)
			fmt.Println("status:", resp.Status)
			fmt.Println(string(out))
			return nil
		},
	}
	getCmd.Flags().String("id", "", "Device id")
	_ = getCmd.MarkFlagRequired("id")
	deviceCmd.AddCommand(getCmd)
	return deviceCmd
}

func newIngestCmd() *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Append a telemetry event (testing helper)",
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, _ := cmd.Flags().GetString("device")
			correlationID, _ := cmd.Flags().GetString("correlation-id")
			payload, _ := cmd.Flags().GetString("body")
			req := map[string]any{"deviceId": deviceID}
			if correlationID != "" {
				req["correlationId"] = correlationID
			}
			if payload != "" {
				req["body"] = json.RawMessage(payload)
			}
			body, err := json.Marshal(req)
			if err != nil {
				return err
			}
			resp, err := http.Post(apiURL()+"/v1/ingest", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			out, _ := io.ReadAll(resp.Body)
			fmt.Println("status:", resp.Status)
			fmt.Println(string(out))
			return nil
		},
	}
	ingestCmd.Flags().String("device", "", "Device id")
	ingestCmd.Flags().String("correlation-id", "", "Command id this event acknowledges")
	ingestCmd.Flags().String("body", "", "JSON payload")
	_ = ingestCmd.MarkFlagRequired("device")
	return ingestCmd
}

func apiURL() string {
	if v := os.Getenv("FLEETWIRE_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
