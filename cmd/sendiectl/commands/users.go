package commands

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// errUserIDRequired is returned when a users subcommand is invoked
// without the target user ID argument it needs.
var errUserIDRequired = errors.New("user id argument is required")

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the allow-list (requires --user to authenticate as an admin)",
	}

	cmd.AddCommand(usersListCmd())
	cmd.AddCommand(usersAddCmd())
	cmd.AddCommand(usersRemoveCmd())

	return cmd
}

// --- users list ---

func usersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every allow-listed user",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			req, err := client.newRequest(http.MethodGet, "/admin/users", nil)
			if err != nil {
				return err
			}

			resp, err := client.do(req)
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			defer resp.Body.Close()

			var body struct {
				Users []userView `json:"users"`
			}
			if err := decodeJSONBody(resp.Body, &body); err != nil {
				return fmt.Errorf("list users: %w", err)
			}

			out, err := formatUsers(body.Users, outputFormat)
			if err != nil {
				return fmt.Errorf("format users: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- users add ---

func usersAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <user-id>",
		Short: "Grant a user access to the allow-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return mutateUser(http.MethodPost, args[0])
		},
	}
}

// --- users remove ---

func usersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user-id>",
		Short: "Revoke a user's allow-list access",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return mutateUser(http.MethodDelete, args[0])
		},
	}
}

// mutateUser issues the add/remove request against /admin/users/{id} and
// reports the daemon's success flag.
func mutateUser(method, userID string) error {
	if userID == "" {
		return errUserIDRequired
	}

	req, err := client.newRequest(method, "/admin/users/"+userID, nil)
	if err != nil {
		return err
	}

	resp, err := client.do(req)
	if err != nil {
		return fmt.Errorf("mutate user %s: %w", userID, err)
	}
	defer resp.Body.Close()

	var body struct {
		Success bool `json:"success"`
	}
	if err := decodeJSONBody(resp.Body, &body); err != nil {
		return fmt.Errorf("mutate user %s: %w", userID, err)
	}

	fmt.Printf("%s: success=%t\n", userID, body.Success)

	return nil
}
