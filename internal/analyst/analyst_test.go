package analyst

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jordanhubbard/tablechat/internal/provider"
	"github.com/jordanhubbard/tablechat/internal/sandbox"
	"github.com/jordanhubbard/tablechat/internal/table"
	"github.com/jordanhubbard/tablechat/internal/transcript"
)

// fakeProvider returns canned completions and records the requests it saw.
type fakeProvider struct {
	mu        sync.Mutex
	requests  []*provider.ChatCompletionRequest
	responses []string
	err       error
}

func (f *fakeProvider) CreateChatCompletion(ctx context.Context, req *provider.ChatCompletionRequest) (*provider.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	content := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	resp := &provider.ChatCompletionResponse{}
	resp.Choices = append(resp.Choices, struct {
		Index   int                  `json:"index"`
		Message provider.ChatMessage `json:"message"`
		Finish  string               `json:"finish_reason"`
	}{Message: provider.ChatMessage{Role: "assistant", Content: content}, Finish: "stop"})
	return resp, nil
}

func (f *fakeProvider) GetModels(ctx context.Context) ([]provider.Model, error) {
	return nil, nil
}

type fixture struct {
	analyst     *Analyst
	provider    *fakeProvider
	transcripts transcript.Store
	tables      table.Store
	tableID     string
}

func newFixture(t *testing.T, completions ...string) *fixture {
	t.Helper()
	if len(completions) == 0 {
		completions = []string{`result = df["a"].sum()`}
	}

	transcripts, err := transcript.NewStore(transcript.StoreTypeMemory, SystemPrompt)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	tables := table.NewStore()
	tbl, err := table.Parse([]byte("a\n1\n2\n3\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	id := tables.Put(tbl)

	p := &fakeProvider{responses: completions}
	a := New(p, transcripts, tables, sandbox.NewRunner(5*time.Second, 0), Config{Model: "gpt-4o-mini"})
	return &fixture{analyst: a, provider: p, transcripts: transcripts, tables: tables, tableID: id}
}

func TestAskHappyPath(t *testing.T) {
	f := newFixture(t, "```python\nresult = df[\"a\"].sum()\n```")

	ans, err := f.analyst.Ask(context.Background(), "what is the sum of a?", f.tableID, "")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if ans.SessionID == "" {
		t.Error("Expected a resolved session id")
	}
	if ans.Outcome.Value != "6" {
		t.Errorf("Expected \"6\", got %v", ans.Outcome.Value)
	}
	if ans.Outcome.GeneratedCode != `result = df["a"].sum()` {
		t.Errorf("Fencing not stripped: %q", ans.Outcome.GeneratedCode)
	}

	// Transcript: system, templated user turn, cleaned assistant turn.
	tr, err := f.transcripts.Get(context.Background(), ans.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(tr.Messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(tr.Messages))
	}
	user := tr.Messages[1]
	if !strings.HasPrefix(user.Content, "User query: what is the sum of a? DataFrame info: ") {
		t.Errorf("User message not templated: %q", user.Content)
	}
	if !strings.Contains(user.Content, `"shape": [3, 1]`) {
		t.Errorf("Descriptor missing from user message: %q", user.Content)
	}
	if tr.Messages[2].Content != `result = df["a"].sum()` {
		t.Errorf("Assistant message should hold only the code, got %q", tr.Messages[2].Content)
	}
}

func TestAskSendsFullTranscript(t *testing.T) {
	f := newFixture(t, "result = 1", "result = 2")

	ans, err := f.analyst.Ask(context.Background(), "first", f.tableID, "")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if _, err := f.analyst.Ask(context.Background(), "second", f.tableID, ans.SessionID); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	second := f.provider.requests[1]
	if len(second.Messages) != 4 {
		t.Fatalf("Expected system+user+assistant+user, got %d messages", len(second.Messages))
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	for i, role := range wantRoles {
		if second.Messages[i].Role != role {
			t.Errorf("Message %d: expected role %s, got %s", i, role, second.Messages[i].Role)
		}
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	f := newFixture(t)
	if _, err := f.analyst.Ask(context.Background(), "   ", f.tableID, ""); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("Expected ErrEmptyQuestion, got %v", err)
	}
}

func TestAskUnknownTable(t *testing.T) {
	f := newFixture(t)
	if _, err := f.analyst.Ask(context.Background(), "q", "missing", ""); !errors.Is(err, table.ErrNotFound) {
		t.Errorf("Expected table.ErrNotFound, got %v", err)
	}
}

func TestAskGenerationFailureKeepsUserTurn(t *testing.T) {
	f := newFixture(t)

	// Resolve a session first so the failed ask has a transcript to land in.
	ans, err := f.analyst.Ask(context.Background(), "warmup", f.tableID, "")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	f.provider.err = fmt.Errorf("%w: connection refused", provider.ErrGeneration)
	_, err = f.analyst.Ask(context.Background(), "doomed question", f.tableID, ans.SessionID)
	if !errors.Is(err, provider.ErrGeneration) {
		t.Fatalf("Expected ErrGeneration, got %v", err)
	}

	// The user turn stays: the session record is truthful about what was
	// asked even though no answer followed.
	tr, _ := f.transcripts.Get(context.Background(), ans.SessionID)
	last := tr.Messages[len(tr.Messages)-1]
	if last.Role != transcript.RoleUser || !strings.Contains(last.Content, "doomed question") {
		t.Errorf("Expected dangling user turn, got %s: %q", last.Role, last.Content)
	}
}

func TestAskExecutionFaultIsNotAnError(t *testing.T) {
	f := newFixture(t, "result = 1 / 0")

	ans, err := f.analyst.Ask(context.Background(), "divide", f.tableID, "")
	if err != nil {
		t.Fatalf("Execution faults must not surface as errors, got %v", err)
	}
	if ans.Outcome.Error == "" || !strings.Contains(ans.Outcome.Error, "division") {
		t.Errorf("Expected division fault in outcome, got %q", ans.Outcome.Error)
	}
	if ans.Outcome.Value != nil {
		t.Errorf("Fault must not fabricate a value, got %v", ans.Outcome.Value)
	}
}

func TestAskUnfencedCompletionUsedVerbatim(t *testing.T) {
	f := newFixture(t, `result = df["a"].count()`)

	ans, err := f.analyst.Ask(context.Background(), "how many rows?", f.tableID, "")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if ans.Outcome.Value != "3" {
		t.Errorf("Expected \"3\", got %v", ans.Outcome.Value)
	}
}

func TestConcurrentAsksKeepAlternation(t *testing.T) {
	f := newFixture(t, "result = 1")

	ans, err := f.analyst.Ask(context.Background(), "seed", f.tableID, "")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	sid := ans.SessionID

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := f.analyst.Ask(context.Background(), fmt.Sprintf("concurrent %d", n), f.tableID, sid); err != nil {
				t.Errorf("Ask failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	tr, _ := f.transcripts.Get(context.Background(), sid)
	if len(tr.Messages) != 7 { // system + 3 user/assistant pairs
		t.Fatalf("Expected 7 messages, got %d", len(tr.Messages))
	}
	for i, m := range tr.Messages {
		var want string
		switch {
		case i == 0:
			want = transcript.RoleSystem
		case i%2 == 1:
			want = transcript.RoleUser
		default:
			want = transcript.RoleAssistant
		}
		if m.Role != want {
			t.Errorf("Message %d: expected %s, got %s", i, want, m.Role)
		}
	}
}

func TestExtractSnippet(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"python fence", "Here you go:\n```python\nresult = 1\n```", "result = 1"},
		{"bare fence", "```\nresult = 1\n```", "result = 1"},
		{"no fence", "result = 1", "result = 1"},
		{"first block wins", "```\nresult = 1\n```\ntext\n```\nresult = 2\n```", "result = 1"},
		{"unterminated fence", "```python\nresult = 1", "result = 1"},
		{"surrounding prose", "Sure! ```python\nresult = 1\n``` Hope that helps.", "result = 1"},
	}
	for _, tc := range cases {
		if got := ExtractSnippet(tc.in); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}
