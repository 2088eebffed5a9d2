package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ultracontext/internal/transcript"
)

// maxLineSize bounds a single session-log line. Agent transcripts inline
// whole tool outputs, so lines run far past the scanner default.
const maxLineSize = 10 * 1024 * 1024

const defaultMaxErrors = 100

// line is the raw shape of one session-log record.
type line struct {
	ID        string          `json:"uuid"`
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// payload is the nested message body. Content is either a bare string or
// a block array, depending on the writer.
type payload struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// block is one entry of a structured content array.
type block struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Name    string          `json:"name,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Content string          `json:"content,omitempty"`
}

// LineError records a malformed line that parsing skipped.
type LineError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// Result holds the messages recovered from one session log.
type Result struct {
	// Session identifies the conversation. Taken from the first record
	// that carries a session id, else derived from the file name.
	Session  string
	Messages []transcript.Message

	// ErrorCount counts every skipped line; Errors keeps the first few.
	ErrorCount int
	Errors     []LineError
}

// Parser reads JSONL session logs into transcript messages.
type Parser struct {
	maxErrors int
}

// NewParser returns a parser that retains at most maxErrors line errors
// per file. Zero or negative selects the default of 100.
func NewParser(maxErrors int) *Parser {
	if maxErrors <= 0 {
		maxErrors = defaultMaxErrors
	}
	return &Parser{maxErrors: maxErrors}
}

// ParseFile reads one JSONL session log. Malformed lines are recorded and
// skipped; the returned error covers file-level failures only.
func (p *Parser) ParseFile(path string) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	defer file.Close()

	fileSession := sessionFromPath(path)
	res := &Result{Session: fileSession}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)

	num := 0
	sessionSet := false
	for scanner.Scan() {
		num++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}

		var ln line
		if err := json.Unmarshal([]byte(text), &ln); err != nil {
			p.record(res, num, fmt.Sprintf("bad json: %v", err))
			continue
		}
		if !sessionSet && ln.SessionID != "" {
			res.Session = ln.SessionID
			sessionSet = true
		}
		if ln.Type != transcript.RoleUser && ln.Type != transcript.RoleAssistant {
			continue
		}

		msg, err := p.toMessage(ln, fileSession, num)
		if err != nil {
			p.record(res, num, err.Error())
			continue
		}
		if msg == nil {
			continue
		}
		msg.Index = len(res.Messages)
		res.Messages = append(res.Messages, *msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning session log: %w", err)
	}
	return res, nil
}

// toMessage converts one record into a transcript message. A nil message
// with a nil error means the record carried nothing worth keeping.
func (p *Parser) toMessage(ln line, fileSession string, num int) (*transcript.Message, error) {
	var body payload
	if len(ln.Message) > 0 {
		if err := json.Unmarshal(ln.Message, &body); err != nil {
			return nil, fmt.Errorf("bad message body: %v", err)
		}
	}

	content, calls, err := decodeContent(body.Content)
	if err != nil {
		return nil, err
	}
	if content == "" && len(calls) == 0 {
		return nil, nil
	}

	id := ln.ID
	if id == "" {
		// Physical line numbers are stable for append-only logs, so the
		// synthesized id survives re-parses.
		id = fmt.Sprintf("%s:%d", fileSession, num)
	}
	msg := &transcript.Message{
		ID:        id,
		Role:      ln.Type,
		Content:   content,
		ToolCalls: calls,
	}
	if ts, ok := parseTimestamp(ln.Timestamp); ok {
		msg.Metadata = map[string]any{"timestamp": ts.UTC().Format(time.RFC3339)}
	}
	return msg, nil
}

// decodeContent accepts either a bare string or a block array and flattens
// it to text plus tool calls. Tool results count as text so the engine can
// compress them like any other content.
func decodeContent(raw json.RawMessage) (string, []any, error) {
	if len(raw) == 0 {
		return "", nil, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil, nil
	}

	var blocks []block
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", nil, fmt.Errorf("unsupported content shape")
	}

	var parts []string
	var calls []any
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		case "tool_use":
			call := map[string]any{"name": b.Name}
			var input map[string]any
			if err := json.Unmarshal(b.Input, &input); err == nil && len(input) > 0 {
				call["input"] = input
			}
			calls = append(calls, call)
		case "tool_result":
			if b.Content != "" {
				parts = append(parts, b.Content)
			}
		}
	}
	return strings.Join(parts, "\n"), calls, nil
}

func (p *Parser) record(res *Result, num int, msg string) {
	res.ErrorCount++
	if len(res.Errors) < p.maxErrors {
		res.Errors = append(res.Errors, LineError{Line: num, Err: msg})
	}
}

// parseTimestamp tries the formats session-log writers actually emit. A
// record without a usable timestamp simply carries none; inventing one
// would be worse than omitting it.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func sessionFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}
