// Package main implements transcript compression commands for the uctx CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ultracontext/internal/compress"
	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

var (
	// compress command flags
	compressLocal     bool
	compressSummarize bool
	compressPreserve  []string
	compressWindow    int
	compressMinWindow int
	compressBudget    int
	compressConverge  bool
	compressNoDedup   bool
	compressEmbedIDs  bool
	compressJSON      bool
)

func init() {
	rootCmd.AddCommand(compressCmd)

	compressCmd.Flags().BoolVar(&compressLocal, "local", false, "Compress in-process instead of calling the server")
	compressCmd.Flags().BoolVar(&compressSummarize, "summarize", false, "Ask the server for LLM-backed summaries")
	compressCmd.Flags().StringSliceVar(&compressPreserve, "preserve", nil, "Roles that are never compressed")
	compressCmd.Flags().IntVar(&compressWindow, "recency-window", -1, "Trailing messages kept verbatim (-1 keeps the server default)")
	compressCmd.Flags().IntVar(&compressMinWindow, "min-recency-window", 0, "Window floor for token-budget convergence")
	compressCmd.Flags().IntVar(&compressBudget, "token-budget", 0, "Target token budget (0 disables budgeting)")
	compressCmd.Flags().BoolVar(&compressConverge, "force-converge", false, "Truncate oversized messages after a budget miss")
	compressCmd.Flags().BoolVar(&compressNoDedup, "no-dedup", false, "Disable the exact-duplicate pass")
	compressCmd.Flags().BoolVar(&compressEmbedIDs, "embed-summary-id", false, "Embed summary ids in marker prefixes")
	compressCmd.Flags().BoolVar(&compressJSON, "json", false, "Output the full result as JSON")
}

// compressCmd compresses a transcript from a file or stdin
var compressCmd = &cobra.Command{
	Use:   "compress [file]",
	Short: "Compress a transcript from a file or stdin",
	Long: `Compress a JSON transcript through the ultracontextd server.

The input is a JSON array of message objects, each carrying at least an
"id" and a "role". The compressed transcript is written to stdout and a
stats line to stderr, so the output can be piped onward.

Examples:
  # Compress a transcript file
  uctx compress transcript.json

  # Compress from stdin
  cat transcript.json | uctx compress -

  # Keep the last 8 messages and converge on a budget
  uctx compress --recency-window 8 --token-budget 4000 transcript.json

  # Compress in-process without a daemon
  uctx compress --local transcript.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompress,
}

// CompressOptions matches internal/httpapi/handlers.go CompressRequest
type CompressOptions struct {
	Preserve         []string `json:"preserve,omitempty"`
	RecencyWindow    *int     `json:"recency_window,omitempty"`
	Dedup            *bool    `json:"dedup,omitempty"`
	MinRecencyWindow int      `json:"min_recency_window,omitempty"`
	TokenBudget      *int     `json:"token_budget,omitempty"`
	ForceConverge    bool     `json:"force_converge,omitempty"`
	EmbedSummaryID   bool     `json:"embed_summary_id,omitempty"`
	Summarize        bool     `json:"summarize,omitempty"`
}

// CompressPayload matches internal/httpapi/handlers.go StatelessCompressRequest
type CompressPayload struct {
	Messages []transcript.Message `json:"messages"`
	CompressOptions
}

// runCompress handles the compress command
func runCompress(cmd *cobra.Command, args []string) error {
	msgs, err := readMessages(args)
	if err != nil {
		return err
	}

	if compressLocal {
		return runCompressLocal(msgs)
	}

	payload := CompressPayload{
		Messages:        msgs,
		CompressOptions: compressOptions(),
	}

	var res compress.Result
	if err := apiSend(http.MethodPost, "/v1/compress", payload, &res); err != nil {
		return err
	}
	return printCompressResult(&res)
}

// runCompressLocal runs the engine in-process. Summaries stay
// deterministic because no summarizer is wired without a daemon.
func runCompressLocal(msgs []transcript.Message) error {
	if compressSummarize {
		return fmt.Errorf("--summarize needs the server, remove --local")
	}

	svc, err := compress.NewService()
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	opts := localOptions()
	res, err := svc.Compress(context.Background(), msgs, &opts)
	if err != nil {
		return fmt.Errorf("failed to compress transcript: %w", err)
	}
	return printCompressResult(res)
}

// readMessages loads a transcript from the file argument or stdin.
func readMessages(args []string) ([]transcript.Message, error) {
	var data []byte
	var err error

	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("no messages to read")
	}

	msgs, err := transcript.ParseMessages(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transcript: %w", err)
	}
	return msgs, nil
}

// compressOptions maps the flags onto the request envelope. Unset flags
// stay omitted so the daemon's defaults apply.
func compressOptions() CompressOptions {
	opts := CompressOptions{
		Preserve:         compressPreserve,
		MinRecencyWindow: compressMinWindow,
		ForceConverge:    compressConverge,
		EmbedSummaryID:   compressEmbedIDs,
		Summarize:        compressSummarize,
	}
	if compressWindow >= 0 {
		opts.RecencyWindow = &compressWindow
	}
	if compressNoDedup {
		opts.Dedup = compress.Bool(false)
	}
	if compressBudget > 0 {
		opts.TokenBudget = &compressBudget
	}
	return opts
}

// localOptions maps the same flags onto engine options for --local runs.
func localOptions() compress.Options {
	var o compress.Options
	if len(compressPreserve) > 0 {
		o.Preserve = make(map[string]bool, len(compressPreserve))
		for _, role := range compressPreserve {
			o.Preserve[role] = true
		}
	}
	if compressWindow >= 0 {
		o.RecencyWindow = &compressWindow
	}
	if compressNoDedup {
		o.Dedup = compress.Bool(false)
	}
	o.MinRecencyWindow = compressMinWindow
	if compressBudget > 0 {
		o.TokenBudget = &compressBudget
	}
	o.ForceConverge = compressConverge
	o.EmbedSummaryID = compressEmbedIDs
	return o
}

// printCompressResult writes the compressed transcript to stdout and the
// stats to stderr.
func printCompressResult(res *compress.Result) error {
	if compressJSON {
		return outputJSON(res)
	}

	if err := outputJSON(res.Messages); err != nil {
		return err
	}

	st := res.Compression
	fmt.Fprintf(os.Stderr, "[uctx] %d preserved, %d compressed, %d deduped (ratio %.2f)\n",
		st.MessagesPreserved, st.MessagesCompressed, st.MessagesDeduped, st.Ratio)
	if res.Fits != nil && res.TokenCount != nil {
		fmt.Fprintf(os.Stderr, "[uctx] budget: fits=%v, tokens=%d\n", *res.Fits, *res.TokenCount)
	}
	return nil
}
