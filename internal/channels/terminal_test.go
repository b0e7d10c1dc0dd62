package channels

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hearth/internal/agent"
	"hearth/internal/retrieval"
	"hearth/internal/store"
	"hearth/internal/tools"
)

type fakeRunner struct {
	results []*agent.Result
	errs    []error
	calls   []string
}

func (f *fakeRunner) Run(ctx context.Context, sessionID, msg string, execCtx tools.ExecutionContext) (*agent.Result, error) {
	f.calls = append(f.calls, msg)
	i := len(f.calls) - 1
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var res *agent.Result
	if i < len(f.results) {
		res = f.results[i]
	}
	if res == nil && err == nil {
		res = &agent.Result{Text: "ok"}
	}
	return res, err
}

type fakeConvStore struct {
	turns     []store.Turn
	summaries []string
	trimmed   int
}

func (f *fakeConvStore) GetOrCreateSession(channel, externalID string) (string, error) {
	return "sess-" + externalID, nil
}

func (f *fakeConvStore) AppendTurn(sessionID, role, content string) error {
	f.turns = append(f.turns, store.Turn{SessionID: sessionID, Role: role, Content: content})
	return nil
}

func (f *fakeConvStore) GetRecentHistory(sessionID string, limit int) ([]store.Turn, error) {
	return f.turns, nil
}

func (f *fakeConvStore) LatestSummary(sessionID string) (string, error) {
	if len(f.summaries) == 0 {
		return "", nil
	}
	return f.summaries[len(f.summaries)-1], nil
}

func (f *fakeConvStore) SaveSummary(sessionID, summary string) error {
	f.summaries = append(f.summaries, summary)
	return nil
}

func (f *fakeConvStore) TrimHistory(sessionID string, keep int) error {
	f.trimmed = keep
	return nil
}

type fakeSummarizer struct{ out string }

func (f *fakeSummarizer) Summarize(ctx context.Context, prev string, turns []store.Turn) (string, error) {
	return f.out, nil
}

func TestTerminalRoundTrip(t *testing.T) {
	runner := &fakeRunner{results: []*agent.Result{{Text: "hello there"}}}
	st := &fakeConvStore{}
	var docs []retrieval.Document

	in := strings.NewReader("hi agent\nexit\n")
	var out bytes.Buffer
	term := NewTerminal(runner, st, nil, func(d retrieval.Document) { docs = append(docs, d) }, in, &out, nil)

	require.NoError(t, term.Run(context.Background(), "user-1"))

	assert.Equal(t, []string{"hi agent"}, runner.calls)
	assert.Contains(t, out.String(), "hello there")

	// Both turns persisted, user first.
	require.Len(t, st.turns, 2)
	assert.Equal(t, "user", st.turns[0].Role)
	assert.Equal(t, "hi agent", st.turns[0].Content)
	assert.Equal(t, "assistant", st.turns[1].Role)

	// The exchange was queued for indexing.
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Text, "hi agent")
	assert.Contains(t, docs[0].Text, "hello there")
}

func TestTerminalSkipsBlankAndExits(t *testing.T) {
	runner := &fakeRunner{}
	in := strings.NewReader("\n   \nquit\n")
	var out bytes.Buffer
	term := NewTerminal(runner, &fakeConvStore{}, nil, nil, in, &out, nil)

	require.NoError(t, term.Run(context.Background(), "user-1"))
	assert.Empty(t, runner.calls)
}

func TestTerminalEOFEndsSession(t *testing.T) {
	term := NewTerminal(&fakeRunner{}, &fakeConvStore{}, nil, nil, strings.NewReader(""), &bytes.Buffer{}, nil)
	require.NoError(t, term.Run(context.Background(), "user-1"))
}

func TestTerminalPhrasesRuntimeErrors(t *testing.T) {
	runner := &fakeRunner{errs: []error{
		tools.NewError(tools.KindMaxIterations, "", tools.ErrMaxIterations),
	}}
	in := strings.NewReader("do the thing\nexit\n")
	var out bytes.Buffer
	st := &fakeConvStore{}
	term := NewTerminal(runner, st, nil, nil, in, &out, nil)

	require.NoError(t, term.Run(context.Background(), "user-1"))
	assert.Contains(t, out.String(), "step limit")
	// Failed turns are not persisted.
	assert.Empty(t, st.turns)
}

func TestTerminalSummarizesWhenNeeded(t *testing.T) {
	runner := &fakeRunner{results: []*agent.Result{{Text: "long answer", NeedsSummary: true}}}
	st := &fakeConvStore{}
	sum := &fakeSummarizer{out: "we discussed many things and decided to keep going with the plan as agreed"}

	in := strings.NewReader("tell me everything\nexit\n")
	var out bytes.Buffer
	term := NewTerminal(runner, st, sum, nil, in, &out, nil)

	require.NoError(t, term.Run(context.Background(), "user-1"))
	require.Len(t, st.summaries, 1)
	assert.Equal(t, sum.out, st.summaries[0])
	assert.Equal(t, keepTurnsAfterSummary, st.trimmed)
}

func TestConfirmReadsAnswer(t *testing.T) {
	in := strings.NewReader("y\n")
	var out bytes.Buffer
	term := NewTerminal(&fakeRunner{}, &fakeConvStore{}, nil, nil, in, &out, nil)

	ok, err := term.Confirm(context.Background(), agent.ConfirmRequest{
		ToolName: "shell_execute", Preview: "mkdir /tmp/x",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "allow shell_execute?")

	in2 := strings.NewReader("n\n")
	term2 := NewTerminal(&fakeRunner{}, &fakeConvStore{}, nil, nil, in2, &bytes.Buffer{}, nil)
	ok, err = term2.Confirm(context.Background(), agent.ConfirmRequest{ToolName: "file_write"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConfirmCancelledThenReplContinues(t *testing.T) {
	pr, pw := io.Pipe()
	runner := &fakeRunner{}
	var out bytes.Buffer
	term := NewTerminal(runner, &fakeConvStore{}, nil, nil, pr, &out, nil)

	// A cancelled confirmation abandons its wait with no answer typed yet.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := term.Confirm(ctx, agent.ConfirmRequest{ToolName: "shell_execute"})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)

	// Input typed afterwards reaches the REPL intact.
	go func() {
		_, _ = pw.Write([]byte("hello\nexit\n"))
		_ = pw.Close()
	}()
	require.NoError(t, term.Run(context.Background(), "user-1"))
	assert.Equal(t, []string{"hello"}, runner.calls)
}

func TestPhraseErrorVariants(t *testing.T) {
	assert.Contains(t, phraseError(tools.NewError(tools.KindContextOverflow, "", tools.ErrContextOverflow)), "too large")
	assert.Contains(t, phraseError(tools.NewError(tools.KindContextOverflow, "", tools.ErrTokenBudget)), "token budget")
	assert.Contains(t, phraseError(tools.NewError(tools.KindProviderTransient, "", assert.AnError)), "model service")
	assert.Contains(t, phraseError(assert.AnError), "Something went wrong")
}
