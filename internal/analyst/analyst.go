// Package analyst turns a natural-language question about a table into an
// executed snippet: it maintains the session transcript, asks the model
// provider for code, and hands the extracted snippet to the sandbox.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jordanhubbard/tablechat/internal/provider"
	"github.com/jordanhubbard/tablechat/internal/sandbox"
	"github.com/jordanhubbard/tablechat/internal/table"
	"github.com/jordanhubbard/tablechat/internal/transcript"
)

// ErrEmptyQuestion rejects blank queries before any transcript mutation.
var ErrEmptyQuestion = errors.New("question must not be empty")

// SystemPrompt is the fixed instruction text seeded as the first message of
// every transcript. It constrains the model to the bindings the sandbox
// actually provides.
const SystemPrompt = `You are a data analyst. Generate a short Starlark (Python-like) code snippet that answers the user's question about a table.

Requirements:
1. The table is available as the variable 'df'. Access columns as df["col"]; columns support .sum(), .mean(), .min(), .max(), .count(), .unique(), .to_list() and .to_dict(). The table supports df.head(n), df.tail(n), df.sort_values(col, ascending), df.group_by(key_col, value_col, agg) and df.to_dict(), plus df.columns, df.shape and df.dtypes.
2. Store the answer in the variable 'result'. Prefer an int, a float or a small dict; never a whole table unless the user asks for one.
3. If a plot is needed, draw it with plt: plt.bar(labels, values), plt.line(x, y), plt.scatter(x, y), plt.hist(values, bins), plt.title(text), plt.xlabel(text), plt.ylabel(text). Do not attempt to show or save the figure.
4. Numeric helpers are available as np: np.sum, np.mean, np.min, np.max, np.round, np.abs, np.sqrt, np.floor, np.ceil.
5. Generate ONLY executable code, no explanations. No import statements; df, plt and np are already defined.`

// userMessageTemplate is the fixed shape of every appended user turn.
const userMessageTemplate = "User query: %s DataFrame info: %s"

// Config tunes the provider round trip.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Answer pairs a normalized execution outcome with the session id it ran
// under (freshly minted when the caller sent none).
type Answer struct {
	SessionID string
	Outcome   *sandbox.Outcome
}

// Analyst orchestrates transcript store, model provider and sandbox.
type Analyst struct {
	provider    provider.Protocol
	transcripts transcript.Store
	tables      table.Store
	runner      *sandbox.Runner
	cfg         Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires an analyst. The transcript store must have been created with
// SystemPrompt (or an equivalent) as its seed.
func New(p provider.Protocol, transcripts transcript.Store, tables table.Store, runner *sandbox.Runner, cfg Config) *Analyst {
	return &Analyst{
		provider:    p,
		transcripts: transcripts,
		tables:      tables,
		runner:      runner,
		cfg:         cfg,
		locks:       make(map[string]*sync.Mutex),
	}
}

// Ask answers one question against one table within one session.
//
// The append-user → provider call → append-assistant region is serialized per
// session, so concurrent questions on the same session cannot interleave
// transcript messages.
//
// When the provider call fails the already-appended user message is kept
// deliberately: the session record stays truthful about what was asked even
// though no answer followed. The error wraps provider.ErrGeneration.
func (a *Analyst) Ask(ctx context.Context, question, tableID, sessionID string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	tbl, err := a.tables.Get(tableID)
	if err != nil {
		return nil, err
	}

	_, sid, err := a.transcripts.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	lock := a.sessionLock(sid)
	lock.Lock()
	defer lock.Unlock()

	userMsg := fmt.Sprintf(userMessageTemplate, question, tbl.Descriptor())
	if err := a.transcripts.AppendUser(ctx, sid, userMsg); err != nil {
		return nil, err
	}

	tr, err := a.transcripts.Get(ctx, sid)
	if err != nil {
		return nil, err
	}

	resp, err := a.provider.CreateChatCompletion(ctx, &provider.ChatCompletionRequest{
		Model:       a.cfg.Model,
		Messages:    toChatMessages(tr.Messages),
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	code := ExtractSnippet(resp.Content())
	if err := a.transcripts.AppendAssistant(ctx, sid, code); err != nil {
		return nil, err
	}

	return &Answer{SessionID: sid, Outcome: a.runner.Run(code, tbl)}, nil
}

// History returns the transcript for a session, minting a fresh one when the
// id is empty or unknown, together with the resolved id.
func (a *Analyst) History(ctx context.Context, sessionID string) (*transcript.Transcript, string, error) {
	return a.transcripts.GetOrCreate(ctx, sessionID)
}

// sessionLock returns the mutex for a session, allocating on first use.
// Locks are never reclaimed, matching the unbounded session lifetime of the
// transcript store.
func (a *Analyst) sessionLock(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[id] = lock
	}
	return lock
}

func toChatMessages(msgs []transcript.Message) []provider.ChatMessage {
	out := make([]provider.ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = provider.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// ExtractSnippet pulls executable code out of a raw completion. The content
// of the FIRST fenced block wins; earlier turns in the conversation may have
// produced later blocks that must not be mistaken for the new answer. With no
// fence markers the whole completion is the snippet verbatim. Extraction is
// lenient and never fails the turn.
func ExtractSnippet(completion string) string {
	start := strings.Index(completion, "```")
	if start < 0 {
		return strings.TrimSpace(completion)
	}

	rest := completion[start+3:]
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}

	// Drop a language tag (```python, ```starlark, ...) on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine != "" && !strings.ContainsAny(firstLine, " \t=(") {
			rest = rest[nl+1:]
		}
	}

	return strings.TrimSpace(rest)
}
