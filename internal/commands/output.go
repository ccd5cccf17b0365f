package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/diogo/chatsync/internal/chat"
	apierrors "github.com/diogo/chatsync/internal/errors"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	dimColor     = color.New(color.FgHiBlack)
	warnColor    = color.New(color.FgYellow)
)

// cliNotifier prints store notifications. Errors are left to the command,
// which returns them.
type cliNotifier struct {
	w io.Writer
}

func (n cliNotifier) Notify(level chat.Level, message string) {
	switch level {
	case chat.LevelSuccess:
		successColor.Fprintln(n.w, "✓ "+message)
	case chat.LevelInfo:
		warnColor.Fprintln(n.w, message)
	}
}

// table writes aligned columns with a coloured header row
type table struct {
	tw *tabwriter.Writer
}

func newTable(w io.Writer, headers ...string) *table {
	t := &table{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = headerColor.Sprint(h)
	}
	fmt.Fprintln(t.tw, strings.Join(cells, "\t"))
	return t
}

func (t *table) row(cells ...any) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = fmt.Sprint(c)
	}
	fmt.Fprintln(t.tw, strings.Join(parts, "\t"))
}

func (t *table) flush() error {
	return t.tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func printSuccess(w io.Writer, format string, args ...any) {
	successColor.Fprintf(w, "✓ "+format+"\n", args...)
}

// formatErrorMessage formats an error with additional context from structured errors
func formatErrorMessage(err error, context string) string {
	if err == nil {
		return ""
	}

	msg := apierrors.UserMessage(err)
	if msg == "" {
		msg = err.Error()
	}

	var sb strings.Builder
	sb.WriteString(errorColor.Sprintf("✗ %s: %s", context, msg))

	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode > 0 {
			sb.WriteString(dimColor.Sprintf("\n  HTTP Status: %d", apiErr.StatusCode))
		}
		if apiErr.Endpoint != "" {
			sb.WriteString(dimColor.Sprintf("\n  Endpoint: %s", apiErr.Endpoint))
		}
		if apiErr.Body != "" {
			sb.WriteString(dimColor.Sprintf("\n\n  %s", strings.ReplaceAll(apiErr.Body, "\n", "\n  ")))
		}
		return sb.String()
	}

	var netErr *apierrors.NetworkError
	switch {
	case errors.As(err, &netErr):
		sb.WriteString(dimColor.Sprint("\n  Hint: Check base_url with 'chatsync config' and that the server is running"))
	case errors.Is(err, apierrors.ErrStreamStalled):
		sb.WriteString(dimColor.Sprint("\n  Hint: The server stopped sending. Raise stream_idle_timeout or try again"))
	}

	return sb.String()
}
