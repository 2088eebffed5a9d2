package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const longInput = "The ingest pipeline stalled because the parser held the file lock across retries, and the watcher kept re-queueing the same session until the debounce window expired without ever draining the backlog."

// capture records prompts and replays canned results.
type capture struct {
	prompts []string
	results []string
	errs    []error
}

func (c *capture) call(_ context.Context, prompt string) (string, error) {
	i := len(c.prompts)
	c.prompts = append(c.prompts, prompt)
	var res string
	var err error
	if i < len(c.results) {
		res = c.results[i]
	}
	if i < len(c.errs) {
		err = c.errs[i]
	}
	return res, err
}

func TestNewPromptShape(t *testing.T) {
	c := &capture{results: []string{"short"}}
	s := New(c.call, Options{SystemPrompt: "You compress agent transcripts."})

	got, err := s(context.Background(), longInput)
	require.NoError(t, err)
	assert.Equal(t, "short", got)

	require.Len(t, c.prompts, 1)
	prompt := c.prompts[0]
	assert.True(t, strings.HasPrefix(prompt, "You compress agent transcripts.\n\n"))
	assert.Contains(t, prompt, "code references, file paths, identifiers, URLs, secrets, error messages, and technical decisions.")
	assert.Contains(t, prompt, "Respond in at most 300 tokens.")
	assert.NotContains(t, prompt, "bullet points")
	assert.True(t, strings.HasSuffix(prompt, "\nText:\n"+longInput))
}

func TestNewAggressiveMode(t *testing.T) {
	c := &capture{results: []string{"short"}}
	s := New(c.call, Options{Mode: ModeAggressive})

	_, err := s(context.Background(), longInput)
	require.NoError(t, err)

	prompt := c.prompts[0]
	assert.Contains(t, prompt, "terse bullet points")
	assert.Contains(t, prompt, "at most 150 tokens")
}

func TestNewCustomBudget(t *testing.T) {
	c := &capture{results: []string{"", ""}}
	_, err := New(c.call, Options{MaxResponseTokens: 100})(context.Background(), longInput)
	require.NoError(t, err)
	_, err = New(c.call, Options{MaxResponseTokens: 100, Mode: ModeAggressive})(context.Background(), longInput)
	require.NoError(t, err)

	assert.Contains(t, c.prompts[0], "at most 100 tokens")
	assert.Contains(t, c.prompts[1], "at most 50 tokens")
}

func TestPreserveTermsListGrammar(t *testing.T) {
	c := &capture{results: []string{""}}
	s := New(c.call, Options{PreserveTerms: []string{"ticket numbers", "hostnames"}})

	_, err := s(context.Background(), longInput)
	require.NoError(t, err)
	assert.Contains(t, c.prompts[0], "Also preserve: ticket numbers and hostnames.")
}

func TestPreserveTermsDedup(t *testing.T) {
	c := &capture{results: []string{""}}
	s := New(c.call, Options{PreserveTerms: []string{"URLs", "ticket numbers", "Ticket Numbers", "secrets", ""}})

	_, err := s(context.Background(), longInput)
	require.NoError(t, err)
	assert.Contains(t, c.prompts[0], "Also preserve: ticket numbers.")
	assert.Equal(t, 1, strings.Count(c.prompts[0], "ticket numbers"))
}

func TestNewReturnsRawResult(t *testing.T) {
	c := &capture{results: []string{"  unpolished   result  "}}
	got, err := New(c.call, Options{})(context.Background(), longInput)
	require.NoError(t, err)
	assert.Equal(t, "  unpolished   result  ", got)
}

func TestEscalatingAcceptsNormal(t *testing.T) {
	c := &capture{results: []string{"parser held the lock"}}
	got, err := NewEscalating(c.call, Options{})(context.Background(), longInput)
	require.NoError(t, err)
	assert.Equal(t, "parser held the lock", got)
	assert.Len(t, c.prompts, 1)
}

func TestEscalatingRetriesOnEmpty(t *testing.T) {
	c := &capture{results: []string{"", "lock contention"}}
	got, err := NewEscalating(c.call, Options{})(context.Background(), longInput)
	require.NoError(t, err)
	assert.Equal(t, "lock contention", got)
	require.Len(t, c.prompts, 2)
	assert.Contains(t, c.prompts[1], "terse bullet points")
}

func TestEscalatingRetriesOnError(t *testing.T) {
	c := &capture{
		results: []string{"", "lock contention"},
		errs:    []error{errors.New("model unavailable"), nil},
	}
	got, err := NewEscalating(c.call, Options{})(context.Background(), longInput)
	require.NoError(t, err)
	assert.Equal(t, "lock contention", got)
	assert.Len(t, c.prompts, 2)
}

func TestEscalatingRetriesOnNotShorter(t *testing.T) {
	c := &capture{results: []string{longInput, "lock contention"}}
	got, err := NewEscalating(c.call, Options{})(context.Background(), longInput)
	require.NoError(t, err)
	assert.Equal(t, "lock contention", got)
	assert.Len(t, c.prompts, 2)
}

func TestEscalatingSecondFailurePropagates(t *testing.T) {
	c := &capture{results: []string{"", longInput + " and more"}}
	_, err := NewEscalating(c.call, Options{})(context.Background(), longInput)
	assert.ErrorIs(t, err, ErrNotShorter)
	assert.Len(t, c.prompts, 2)

	c = &capture{results: []string{"", ""}}
	_, err = NewEscalating(c.call, Options{})(context.Background(), longInput)
	assert.ErrorIs(t, err, ErrEmptyResult)

	c = &capture{errs: []error{errors.New("down"), errors.New("still down")}}
	_, err = NewEscalating(c.call, Options{})(context.Background(), longInput)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still down")
}

func TestAcceptable(t *testing.T) {
	assert.True(t, Acceptable("a longer original input", "shorter"))
	assert.False(t, Acceptable("same size", "same size"))
	assert.False(t, Acceptable("anything", ""))
	assert.False(t, Acceptable("tiny", "not tiny at all"))
}
