// Package main implements stored-context commands for the uctx CLI.
package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ultracontext/internal/store"
	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

var (
	// contexts command flags
	ctxLimit   int
	ctxOffset  int
	ctxVersion int
	ctxMeta    []string
	ctxJSON    bool
)

func init() {
	rootCmd.AddCommand(contextsCmd)
	contextsCmd.AddCommand(contextsListCmd)
	contextsCmd.AddCommand(contextsGetCmd)
	contextsCmd.AddCommand(contextsCreateCmd)
	contextsCmd.AddCommand(contextsAppendCmd)

	contextsCmd.PersistentFlags().BoolVar(&ctxJSON, "json", false, "Output results as JSON")
	contextsListCmd.Flags().IntVar(&ctxLimit, "limit", 0, "Maximum number of contexts to return (0 returns all)")
	contextsListCmd.Flags().IntVar(&ctxOffset, "offset", 0, "Number of contexts to skip")
	contextsGetCmd.Flags().IntVar(&ctxVersion, "version", 0, "Version to fetch (0 fetches the latest)")
	contextsCreateCmd.Flags().StringSliceVar(&ctxMeta, "meta", nil, "Metadata entries as key=value pairs")
}

// contextsCmd is the parent command for stored-context operations
var contextsCmd = &cobra.Command{
	Use:   "contexts",
	Short: "Manage stored contexts",
	Long: `Manage contexts stored on the ultracontextd server.

Stored contexts keep a version history, so compressing one never loses
the transcript it replaced.`,
}

// contextsListCmd lists stored contexts
var contextsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored contexts",
	Long: `List stored contexts, newest first.

Examples:
  uctx contexts list
  uctx contexts list --limit 10 --offset 10`,
	RunE: runContextsList,
}

// contextsGetCmd fetches one context
var contextsGetCmd = &cobra.Command{
	Use:   "get <context-id>",
	Short: "Show a stored context",
	Long: `Show one stored context at its latest or a named version.

Examples:
  # Latest version
  uctx contexts get ctx_abc123

  # A specific version
  uctx contexts get ctx_abc123 --version 2`,
	Args: cobra.ExactArgs(1),
	RunE: runContextsGet,
}

// contextsCreateCmd creates a context from a transcript
var contextsCreateCmd = &cobra.Command{
	Use:   "create [file]",
	Short: "Create a context from a file or stdin",
	Long: `Create a stored context from a JSON transcript.

Examples:
  # Create from a file with metadata
  uctx contexts create transcript.json --meta session=alpha --meta agent=planner

  # Create from stdin
  cat transcript.json | uctx contexts create -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runContextsCreate,
}

// contextsAppendCmd appends messages to a context
var contextsAppendCmd = &cobra.Command{
	Use:   "append <context-id> [file]",
	Short: "Append messages to a context",
	Long: `Append a JSON message array to a stored context, creating a new
version.

Examples:
  # Append from a file
  uctx contexts append ctx_abc123 new-messages.json

  # Append from stdin
  cat new-messages.json | uctx contexts append ctx_abc123`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runContextsAppend,
}

// ListContextsResponse matches internal/httpapi/handlers.go ListContextsResponse
type ListContextsResponse struct {
	Contexts []store.Context `json:"contexts"`
}

// CreateContextRequest matches internal/httpapi/handlers.go CreateContextRequest
type CreateContextRequest struct {
	Metadata map[string]string    `json:"metadata,omitempty"`
	Messages []transcript.Message `json:"messages"`
}

// AppendRequest matches internal/httpapi/handlers.go AppendRequest
type AppendRequest struct {
	Messages []transcript.Message `json:"messages"`
}

// runContextsList handles the contexts list command
func runContextsList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if ctxLimit > 0 {
		q.Set("limit", strconv.Itoa(ctxLimit))
	}
	if ctxOffset > 0 {
		q.Set("offset", strconv.Itoa(ctxOffset))
	}
	path := "/v1/contexts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res ListContextsResponse
	if err := apiGet(path, &res); err != nil {
		return err
	}

	if ctxJSON {
		return outputJSON(res.Contexts)
	}

	if len(res.Contexts) == 0 {
		fmt.Println("No contexts found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tMETADATA")
	for _, c := range res.Contexts {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			c.ID,
			c.CreatedAt.Format("2006-01-02 15:04"),
			truncate(formatMeta(c.Metadata), 48))
	}
	return w.Flush()
}

// runContextsGet handles the contexts get command
func runContextsGet(cmd *cobra.Command, args []string) error {
	path := fmt.Sprintf("/v1/contexts/%s", args[0])
	if ctxVersion > 0 {
		path += fmt.Sprintf("?version=%d", ctxVersion)
	}

	var snap store.Snapshot
	if err := apiGet(path, &snap); err != nil {
		return err
	}

	if ctxJSON {
		return outputJSON(snap)
	}
	printSnapshot(&snap)
	return nil
}

// runContextsCreate handles the contexts create command
func runContextsCreate(cmd *cobra.Command, args []string) error {
	msgs, err := readMessages(args)
	if err != nil {
		return err
	}
	meta, err := parseMeta(ctxMeta)
	if err != nil {
		return err
	}

	req := CreateContextRequest{Metadata: meta, Messages: msgs}
	var snap store.Snapshot
	if err := apiSend(http.MethodPost, "/v1/contexts", req, &snap); err != nil {
		return err
	}

	if ctxJSON {
		return outputJSON(snap)
	}
	fmt.Printf("Created context %s (version %d, %d message(s))\n",
		snap.Context.ID, snap.Version.Version, len(snap.Messages))
	return nil
}

// runContextsAppend handles the contexts append command
func runContextsAppend(cmd *cobra.Command, args []string) error {
	msgs, err := readMessages(args[1:])
	if err != nil {
		return err
	}

	req := AppendRequest{Messages: msgs}
	var snap store.Snapshot
	if err := apiSend(http.MethodPost, fmt.Sprintf("/v1/contexts/%s/messages", args[0]), req, &snap); err != nil {
		return err
	}

	if ctxJSON {
		return outputJSON(snap)
	}
	fmt.Printf("Appended %d message(s) to %s (version %d, %d total)\n",
		len(msgs), snap.Context.ID, snap.Version.Version, len(snap.Messages))
	return nil
}

// printSnapshot writes a human-readable view of one snapshot.
func printSnapshot(snap *store.Snapshot) {
	fmt.Printf("Context: %s (version %d, %s)\n", snap.Context.ID, snap.Version.Version, snap.Version.Operation)
	fmt.Printf("Created: %s\n", snap.Context.CreatedAt.Format("2006-01-02 15:04"))
	if len(snap.Context.Metadata) > 0 {
		fmt.Printf("Metadata: %s\n", formatMeta(snap.Context.Metadata))
	}
	fmt.Printf("Messages: %d\n\n", len(snap.Messages))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROLE\tCONTENT")
	for _, m := range snap.Messages {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			truncate(m.ID, 16),
			m.Role,
			truncate(oneLine(m.Content), 60))
	}
	_ = w.Flush()
}

// parseMeta splits key=value flag entries into a metadata map.
func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata entry %q, want key=value", pair)
		}
		meta[k] = v
	}
	return meta, nil
}

// formatMeta renders metadata as sorted key=value pairs.
func formatMeta(meta map[string]string) string {
	if len(meta) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+meta[k])
	}
	return strings.Join(parts, ", ")
}

// oneLine collapses whitespace so message previews stay on one row.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
