package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect signaling sessions",
	}

	cmd.AddCommand(sessionListCmd())
	cmd.AddCommand(sessionShowCmd())

	return cmd
}

// --- session list ---

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all live sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			req, err := client.newRequest(http.MethodGet, "/admin/sessions", nil)
			if err != nil {
				return err
			}

			resp, err := client.do(req)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			defer resp.Body.Close()

			var body struct {
				Sessions []sessionView `json:"sessions"`
			}
			if err := decodeJSONBody(resp.Body, &body); err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			out, err := formatSessions(body.Sessions, outputFormat)
			if err != nil {
				return fmt.Errorf("format sessions: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- session show ---

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show details of a single session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			req, err := client.newRequest(http.MethodGet, "/admin/sessions/"+args[0], nil)
			if err != nil {
				return err
			}

			resp, err := client.do(req)
			if err != nil {
				return fmt.Errorf("get session: %w", err)
			}
			defer resp.Body.Close()

			var view sessionView
			if err := decodeJSONBody(resp.Body, &view); err != nil {
				return fmt.Errorf("get session: %w", err)
			}

			out, err := formatSession(view, outputFormat)
			if err != nil {
				return fmt.Errorf("format session: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}
