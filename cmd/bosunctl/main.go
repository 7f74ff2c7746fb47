// Package main is the entrypoint for bosunctl, the operator CLI for the
// bosun admin API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// apiClient talks to the bosun admin API.
type apiClient struct {
	serverURL  string
	username   string
	password   string
	httpClient *http.Client
}

func (c *apiClient) do(method, path string, query url.Values, body any) (map[string]json.RawMessage, error) {
	u := strings.TrimRight(c.serverURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result map[string]json.RawMessage
	if len(data) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return result, nil
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func newRootCmd() *cobra.Command {
	client := &apiClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}

	rootCmd := &cobra.Command{
		Use:          "bosunctl",
		Short:        "bosunctl - operate deployment backups and restores",
		Long:         "bosunctl drives the bosun admin API to manage backups and restores of managed deployments.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&client.serverURL, "server", envDefault("BOSUN_SERVER", "http://localhost:8080"), "bosun server URL")
	rootCmd.PersistentFlags().StringVar(&client.username, "username", os.Getenv("BOSUN_USERNAME"), "admin username")
	rootCmd.PersistentFlags().StringVar(&client.password, "password", os.Getenv("BOSUN_PASSWORD"), "admin password")

	rootCmd.AddCommand(
		newVersionCmd(),
		newBackupCmd(client),
		newRestoreCmd(client),
	)

	return rootCmd
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bosunctl %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newBackupCmd(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage deployment backups",
	}

	var directorName string

	startCmd := &cobra.Command{
		Use:   "start <deployment>",
		Short: "Trigger an on-demand backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if directorName != "" {
				body["director"] = directorName
			}
			result, err := client.do(http.MethodPost, "/admin/deployments/"+args[0]+"/backup", nil, body)
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	startCmd.Flags().StringVar(&directorName, "director", "", "director selector (default: the configured default director)")

	var guidFilter string
	listCmd := &cobra.Command{
		Use:   "list <deployment>",
		Short: "List backup history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if guidFilter != "" {
				query.Set("backup_guid", guidFilter)
			}
			result, err := client.do(http.MethodGet, "/admin/deployments/"+args[0]+"/backup", query, nil)
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	listCmd.Flags().StringVar(&guidFilter, "backup-guid", "", "only show the backup with this guid")

	statusCmd := &cobra.Command{
		Use:   "status <deployment> <token>",
		Short: "Poll live status of a backup operation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{"token": {args[1]}}
			result, err := client.do(http.MethodGet, "/admin/deployments/"+args[0]+"/backup/status", query, nil)
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}

	cmd.AddCommand(startCmd, listCmd, statusCmd)
	return cmd
}

func newRestoreCmd(client *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Manage deployment restores",
	}

	var (
		backupGUID   string
		timeStamp    string
		directorName string
	)

	startCmd := &cobra.Command{
		Use:   "start <deployment>",
		Short: "Restore a deployment from a completed backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if backupGUID != "" {
				body["backup_guid"] = backupGUID
			}
			if timeStamp != "" {
				body["time_stamp"] = timeStamp
			}
			if directorName != "" {
				body["director"] = directorName
			}
			result, err := client.do(http.MethodPost, "/admin/deployments/"+args[0]+"/restore", nil, body)
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	startCmd.Flags().StringVar(&backupGUID, "backup-guid", "", "guid of the backup to restore from")
	startCmd.Flags().StringVar(&timeStamp, "time-stamp", "", "restore from the latest backup at or before this ISO-8601 instant")
	startCmd.Flags().StringVar(&directorName, "director", "", "director selector (default: the configured default director)")

	infoCmd := &cobra.Command{
		Use:   "info <deployment>",
		Short: "Show the last restore record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := client.do(http.MethodGet, "/admin/deployments/"+args[0]+"/restore", nil, nil)
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status <deployment> <token>",
		Short: "Poll live status of a restore operation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{"token": {args[1]}}
			result, err := client.do(http.MethodGet, "/admin/deployments/"+args[0]+"/restore/status", query, nil)
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}

	cmd.AddCommand(startCmd, infoCmd, statusCmd)
	return cmd
}
