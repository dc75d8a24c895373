// Package commands implements the sendiectl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// decodeJSONBody decodes r into v, closing nothing — callers own the body.
func decodeJSONBody(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// sessionView mirrors the admin session detail returned by
// GET /admin/sessions and /admin/sessions/{id}.
type sessionView struct {
	ID                string     `json:"id"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	AbsoluteExpiresAt time.Time  `json:"absolute_expires_at"`
	EmptySince        *time.Time `json:"empty_since,omitempty"`
	MaxPeers          int        `json:"max_peers"`
	PeerCount         int        `json:"peer_count"`
	ConnectedPairs    int        `json:"connected_pairs"`
	CreatorUserID     string     `json:"creator_user_id"`
	HostConnected     bool       `json:"host_connected"`
	IsLocked          bool       `json:"is_locked"`
	IsHostOnlySending bool       `json:"is_host_only_sending"`
}

// userView mirrors one entry of the allow-list returned by GET /admin/users.
type userView struct {
	UserID  string    `json:"discord_user_id"`
	AddedAt time.Time `json:"added_at"`
	AddedBy string    `json:"added_by"`
}

// formatSessions renders a slice of sessions in the requested format.
func formatSessions(sessions []sessionView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndented(sessions)
	case formatTable:
		return formatSessionsTable(sessions), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatSession renders a single session in the requested format.
func formatSession(s sessionView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndented(s)
	case formatTable:
		return formatSessionDetail(s), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatUsers renders a slice of allow-list entries in the requested format.
func formatUsers(users []userView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndented(users)
	case formatTable:
		return formatUsersTable(users), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func marshalIndented(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

func formatSessionsTable(sessions []sessionView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATOR\tPEERS\tPAIRS\tLOCKED\tHOST-CONNECTED\tEXPIRES")

	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%t\t%t\t%s\n",
			s.ID,
			valueOrDash(s.CreatorUserID),
			s.PeerCount, s.MaxPeers,
			s.ConnectedPairs,
			s.IsLocked,
			s.HostConnected,
			s.ExpiresAt.Format(time.RFC3339),
		)
	}

	w.Flush() //nolint:errcheck // tabwriter flush to a strings.Builder cannot fail

	return buf.String()
}

func formatSessionDetail(s sessionView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "ID:\t%s\n", s.ID)
	fmt.Fprintf(w, "Creator:\t%s\n", valueOrDash(s.CreatorUserID))
	fmt.Fprintf(w, "Peers:\t%d/%d\n", s.PeerCount, s.MaxPeers)
	fmt.Fprintf(w, "Connected Pairs:\t%d\n", s.ConnectedPairs)
	fmt.Fprintf(w, "Locked:\t%t\n", s.IsLocked)
	fmt.Fprintf(w, "Host-Only Sending:\t%t\n", s.IsHostOnlySending)
	fmt.Fprintf(w, "Host Connected:\t%t\n", s.HostConnected)
	fmt.Fprintf(w, "Created At:\t%s\n", s.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Expires At:\t%s\n", s.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Absolute Expires At:\t%s\n", s.AbsoluteExpiresAt.Format(time.RFC3339))
	if s.EmptySince != nil {
		fmt.Fprintf(w, "Empty Since:\t%s\n", s.EmptySince.Format(time.RFC3339))
	}

	w.Flush() //nolint:errcheck // tabwriter flush to a strings.Builder cannot fail

	return buf.String()
}

func formatUsersTable(users []userView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER-ID\tADDED-BY\tADDED-AT")

	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\n", u.UserID, u.AddedBy, u.AddedAt.Format(time.RFC3339))
	}

	w.Flush() //nolint:errcheck // tabwriter flush to a strings.Builder cannot fail

	return buf.String()
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
