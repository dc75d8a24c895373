package commands

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnkord/sendie/internal/auth"
)

var (
	// client is the HTTP client used for every admin request, initialized in
	// PersistentPreRunE.
	client *apiClient

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon's public HTTP address (host:port) sendiectl
	// talks to.
	serverAddr string

	// adminUserID is the caller's user ID, sent as the X-Sendie-User-Id
	// header so the daemon's auth kernel evaluates admin-gated requests
	// against it.
	adminUserID string
)

// apiClient is a thin wrapper over http.Client that addresses the sendied
// HTTP surface and attaches the caller's claimed identity. Every
// subcommand shares the one client initialized in PersistentPreRunE.
type apiClient struct {
	http    *http.Client
	baseURL string
	userID  string
}

func newAPIClient(addr, userID string) *apiClient {
	return &apiClient{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: "http://" + addr,
		userID:  userID,
	}
}

func (c *apiClient) newRequest(method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userID != "" {
		req.Header.Set(auth.HeaderUserID, c.userID)
	}

	return req, nil
}

// do issues req and decodes a non-2xx response into an apiError.
func (c *apiClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		var body struct {
			Error string `json:"error"`
		}
		_ = decodeJSONBody(resp.Body, &body)
		if body.Error == "" {
			body.Error = resp.Status
		}
		return nil, fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, body.Error)
	}

	return resp, nil
}

// rootCmd is the top-level cobra command for sendiectl.
var rootCmd = &cobra.Command{
	Use:   "sendiectl",
	Short: "CLI client for the Sendie signaling daemon",
	Long:  "sendiectl talks to the sendied daemon's HTTP admin surface to inspect sessions and manage the allow-list.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		client = newAPIClient(serverAddr, adminUserID)
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8080",
		"sendied daemon HTTP address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")
	rootCmd.PersistentFlags().StringVar(&adminUserID, "user", "",
		"user ID to authenticate as (required for admin commands)")

	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
