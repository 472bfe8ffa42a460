package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const version = "0.1.0"

var (
	serverURL   string
	bearerToken string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "memhubctl",
		Short: "memhub CLI - interact with your memhub server",
		Long: `memhubctl is a command-line interface for the memhub memory service.
All output is structured JSON (pipe through jq for human-readable formatting).`,
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", getDefaultServer(), "memhub server URL")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", os.Getenv("MEMHUB_TOKEN"), "Bearer token for mutating endpoints")

	rootCmd.AddCommand(newMemoryCommand())
	rootCmd.AddCommand(newWorkflowCommand())
	rootCmd.AddCommand(newComposeCommand())
	rootCmd.AddCommand(newInsightsCommand())
	rootCmd.AddCommand(newProjectsCommand())
	rootCmd.AddCommand(newLoginCommand())
	rootCmd.AddCommand(newStatusCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getDefaultServer() string {
	if server := os.Getenv("MEMHUB_SERVER"); server != "" {
		return server
	}
	return "http://localhost:3022"
}

// --- HTTP client ---

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func newClient() *Client {
	return &Client{
		BaseURL: serverURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(method, path string, params url.Values, data interface{}) ([]byte, error) {
	u := fmt.Sprintf("%s%s", c.BaseURL, path)
	if params != nil {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}
		body = strings.NewReader(string(jsonData))
	}

	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func (c *Client) get(path string, params url.Values) ([]byte, error) {
	return c.do("GET", path, params, nil)
}

func (c *Client) post(path string, data interface{}) ([]byte, error) {
	return c.do("POST", path, nil, data)
}

func printJSON(body []byte) {
	fmt.Println(string(body))
}

// --- login ---

func newLoginCommand() *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange an agent key for a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(os.Stderr, "Agent key: ")
			keyBytes, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("failed to read agent key: %w", err)
			}

			body, err := newClient().post("/api/auth/login", map[string]string{
				"agentId": agentID,
				"key":     string(keyBytes),
			})
			if err != nil {
				return err
			}
			printJSON(body)
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id to log in as")
	cmd.MarkFlagRequired("agent")
	return cmd
}

// --- status ---

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newClient().get("/api/v1/health", nil)
			if err != nil {
				return err
			}
			printJSON(body)
			return nil
		},
	}
}
