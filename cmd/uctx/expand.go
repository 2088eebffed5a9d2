// Package main implements expansion and search commands for the uctx CLI.
package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ultracontext/internal/expand"
)

var (
	// expand command flags
	expandVersion   int
	expandRecursive bool
	expandJSON      bool
	// search command flags
	searchRegex bool
	searchJSON  bool
)

func init() {
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(searchCmd)

	expandCmd.Flags().IntVar(&expandVersion, "version", 0, "Version to expand (0 expands the latest)")
	expandCmd.Flags().BoolVar(&expandRecursive, "recursive", false, "Expand nested summaries until none remain")
	expandCmd.Flags().BoolVar(&expandJSON, "json", false, "Output the full result as JSON")
	searchCmd.Flags().BoolVar(&searchRegex, "regex", false, "Treat the pattern as a regular expression")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output results as JSON")
}

// expandCmd reverses compression for a stored context
var expandCmd = &cobra.Command{
	Use:   "expand <context-id>",
	Short: "Expand summaries back to their original messages",
	Long: `Expand the summaries in a stored context back to the messages they
replaced. The expanded transcript is written to stdout.

Examples:
  # Expand the latest version
  uctx expand ctx_abc123

  # Expand a specific version, following nested summaries
  uctx expand ctx_abc123 --version 2 --recursive`,
	Args: cobra.ExactArgs(1),
	RunE: runExpand,
}

// searchCmd searches compressed-away originals
var searchCmd = &cobra.Command{
	Use:   "search <context-id> <pattern>",
	Short: "Search the originals behind a context's summaries",
	Long: `Search the stored originals behind a context's summaries without
expanding them into the transcript.

A pattern wrapped in slashes, or any pattern with --regex, is compiled
as a regular expression. Anything else matches as a literal substring.

Examples:
  # Literal search
  uctx search ctx_abc123 "connection refused"

  # Regular expression
  uctx search ctx_abc123 --regex 'error [0-9]+'`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

// ExpandRequest matches internal/httpapi/handlers.go ExpandRequest
type ExpandRequest struct {
	Version   int  `json:"version,omitempty"`
	Recursive bool `json:"recursive,omitempty"`
}

// SearchResponse matches internal/httpapi/handlers.go SearchResponse
type SearchResponse struct {
	Matches []expand.Match `json:"matches"`
}

// runExpand handles the expand command
func runExpand(cmd *cobra.Command, args []string) error {
	req := ExpandRequest{Version: expandVersion, Recursive: expandRecursive}

	var res expand.Result
	if err := apiSend(http.MethodPost, fmt.Sprintf("/v1/contexts/%s/expand", args[0]), req, &res); err != nil {
		return err
	}

	if expandJSON {
		return outputJSON(res)
	}

	if err := outputJSON(res.Messages); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "[uctx] %d expanded, %d passed through\n",
		res.MessagesExpanded, res.MessagesPassthrough)
	if len(res.MissingIDs) > 0 {
		fmt.Fprintf(os.Stderr, "[uctx] warning: %d original(s) missing: %s\n",
			len(res.MissingIDs), strings.Join(res.MissingIDs, ", "))
	}
	return nil
}

// runSearch handles the search command
func runSearch(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	q.Set("q", args[1])
	if searchRegex {
		q.Set("regex", "true")
	}

	var res SearchResponse
	if err := apiGet(fmt.Sprintf("/v1/contexts/%s/search?%s", args[0], q.Encode()), &res); err != nil {
		return err
	}

	if searchJSON {
		return outputJSON(res.Matches)
	}

	if len(res.Matches) == 0 {
		fmt.Println("No matches found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SUMMARY\tMESSAGE\tMATCHES")
	for _, m := range res.Matches {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			truncate(m.SummaryID, 20),
			truncate(m.MessageID, 20),
			truncate(strings.Join(m.Matches, ", "), 48))
	}
	return w.Flush()
}
