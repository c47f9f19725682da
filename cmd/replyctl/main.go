// Package main implements the replyctl CLI for manual operations against the
// replyd HTTP server and its interaction logs.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the replyd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "replyctl",
	Short: "CLI for replyd HTTP server operations",
	Long: `replyctl is a command-line interface for interacting with the replyd
HTTP server. It provides commands for running turns, submitting feedback,
listing styles, checking server health, inspecting persisted bandit state,
and reporting on interaction logs.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8710", "replyd server URL")
	rootCmd.AddCommand(turnCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(stylesCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(reportCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check replyd server health",
	Long: `Check the health status of the replyd HTTP server.

Examples:
  # Check health
  replyctl health

  # Check health on a different server
  replyctl health --server http://localhost:8080`,
	RunE: runHealth,
}

// HealthResponse matches internal/http HealthResponse
type HealthResponse struct {
	Status  string `json:"status"`
	Pending int    `json:"pending"`
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to %s: %v\n", url, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	fmt.Printf("Pending Turns: %d\n", healthResp.Pending)
	return nil
}
