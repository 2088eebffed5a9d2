// Package main implements the uctx CLI for manual operations against the
// ultracontextd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ultracontext/internal/store"
)

var (
	// serverURL is the base URL for the ultracontextd HTTP server
	serverURL string
	// version information (set via ldflags during build)
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "uctx",
	Short: "CLI for ultracontextd server operations",
	Long: `uctx is a command-line interface for the ultracontextd HTTP server.
It compresses transcripts, manages stored contexts, expands summaries back
to their originals, and streams live daemon activity.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8420", "ultracontextd server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check ultracontextd server health",
	Long: `Check the health status of the ultracontextd HTTP server and show
its store totals.

Examples:
  # Check health
  uctx health

  # Check health on a different server
  uctx health --server http://localhost:8080`,
	RunE: runHealth,
}

// versionCmd prints the full build information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("uctx by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

// HealthResponse matches internal/httpapi/handlers.go HealthResponse
type HealthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version,omitempty"`
	Totals  store.Totals `json:"totals"`
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	var health HealthResponse
	if err := apiGet("/health", &health); err != nil {
		return err
	}

	fmt.Printf("Server Status: %s\n", health.Status)
	if health.Version != "" {
		fmt.Printf("Server Version: %s\n", health.Version)
	}
	fmt.Printf("Server URL: %s\n", serverURL)
	fmt.Printf("Contexts:     %d\n", health.Totals.Contexts)
	fmt.Printf("Messages:     %d\n", health.Totals.Messages)
	fmt.Printf("Versions:     %d\n", health.Totals.Versions)
	fmt.Printf("Compressions: %d\n", health.Totals.Compressions)

	return nil
}

// httpClient is shared by every command that talks to the server.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// apiGet issues a GET against the server and decodes the JSON response
// into out.
func apiGet(path string, out any) error {
	url := serverURL + path

	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiSend issues a request with a JSON body and decodes the JSON response
// into out. A nil in sends no body; a nil out discards the response.
func apiSend(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		reqJSON, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(reqJSON)
	}

	url := serverURL + path
	httpReq, err := http.NewRequest(method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// checkStatus reads the response body into the error on non-2xx statuses.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
