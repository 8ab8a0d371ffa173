package worker

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/internal/coder"
	"github.com/ShayCichocki/pairline/internal/events"
	"github.com/ShayCichocki/pairline/internal/llm"
	"github.com/ShayCichocki/pairline/internal/llm/llmtest"
	"github.com/ShayCichocki/pairline/internal/pipeline"
	"github.com/ShayCichocki/pairline/internal/session"
	"github.com/ShayCichocki/pairline/internal/workspace/workspacetest"
	"github.com/ShayCichocki/pairline/pkg/models"
)

const editReply = "main.go\n<<<<<<< SEARCH\npackage main\n=======\npackage app\n>>>>>>> REPLACE\n"

type fixture struct {
	runner *Runner
	pool   *Pool
	ws     *workspacetest.Fake
	sess   *session.Session
}

func newFixture(t *testing.T, gen llm.Generator, pipeGen llm.Generator) *fixture {
	t.Helper()
	ws := workspacetest.New(map[string]string{"main.go": "package main\n"})
	store := session.NewStore(func(ctx context.Context) (*coder.Coder, error) {
		return coder.New(gen, ws, "test-model"), nil
	})
	s, err := store.GetOrCreate(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}

	pool := NewPool(PoolConfig{MaxConcurrent: 4})
	t.Cleanup(func() { pool.Shutdown(context.Background()) })
	if pipeGen == nil {
		pipeGen = &llmtest.Fake{}
	}
	return &fixture{
		runner: NewRunner(pool, pipeline.New(pipeGen), nil),
		pool:   pool,
		ws:     ws,
		sess:   s,
	}
}

// drain pulls events until stop returns true for one of them.
func drain(t *testing.T, s *session.Session, stop func(events.Event) bool) []events.Event {
	t.Helper()
	consumer, err := s.Events().Attach()
	if err != nil {
		t.Fatal(err)
	}
	defer consumer.Detach()

	var got []events.Event
	for {
		e, err := consumer.Pull(context.Background(), 2*time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if e.Type == events.TypeKeepAlive {
			t.Fatalf("timed out waiting for events, have %v", types(got))
		}
		got = append(got, e)
		if stop(e) {
			return got
		}
	}
}

func types(evs []events.Event) []events.Type {
	out := make([]events.Type, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

func is(types ...events.Type) func(events.Event) bool {
	return func(e events.Event) bool { return slices.Contains(types, e.Type) }
}

func TestChat_WithoutEdits(t *testing.T) {
	f := newFixture(t, &llmtest.Fake{Chunks: []string{"Hel", "lo"}}, nil)

	if _, err := f.runner.Chat(f.sess, "hi"); err != nil {
		t.Fatal(err)
	}
	got := drain(t, f.sess, is(events.TypeComplete, events.TypeError))

	want := []events.Type{events.TypeChunk, events.TypeChunk, events.TypeComplete}
	if !slices.Equal(types(got), want) {
		t.Fatalf("events = %v, want %v", types(got), want)
	}
	if got[0].Data.(events.ChunkData).Chunk != "Hel" {
		t.Errorf("first chunk = %+v", got[0].Data)
	}

	msgs := f.sess.Messages()
	last := msgs[len(msgs)-2:]
	if last[0].Role != models.RoleUser || last[0].Content != "hi" {
		t.Errorf("user message = %+v", last[0])
	}
	if last[1].Role != models.RoleAssistant || last[1].Content != "Hello" {
		t.Errorf("assistant message = %+v", last[1])
	}
}

func TestChat_EditsAndCommit(t *testing.T) {
	f := newFixture(t, &llmtest.Fake{Chunks: []string{editReply}}, nil)
	f.sess.AddFiles([]string{"main.go"})

	f.runner.Chat(f.sess, "rename package")
	got := drain(t, f.sess, is(events.TypeCommit, events.TypeError))

	want := []events.Type{events.TypeChunk, events.TypeComplete, events.TypeFilesEdited, events.TypeCommit}
	if !slices.Equal(types(got), want) {
		t.Fatalf("events = %v, want %v", types(got), want)
	}
	if files := got[2].Data.(events.FilesEditedData).Files; !slices.Equal(files, []string{"main.go"}) {
		t.Errorf("files_edited = %v", files)
	}

	commit := got[3].Data.(events.CommitData)
	head := f.ws.Commits()[1]
	if commit.Hash != head.Hash || commit.Message != "pairline: rename package" {
		t.Errorf("commit event = %+v", commit)
	}
	if commit.Diff != "diff "+head.Hash+"~1.."+head.Hash {
		t.Errorf("diff = %q", commit.Diff)
	}
	if f.sess.CommitHash() != head.Hash {
		t.Errorf("stored hash = %q, want %q", f.sess.CommitHash(), head.Hash)
	}

	// The same edit no longer applies, so the second turn makes no commit.
	f.runner.Chat(f.sess, "again")
	got = drain(t, f.sess, is(events.TypeComplete, events.TypeError))
	time.Sleep(20 * time.Millisecond)
	if f.sess.Events().Len() != 0 {
		t.Errorf("unexpected trailing events after second turn")
	}
	if f.sess.CommitHash() != head.Hash {
		t.Errorf("stored hash changed without a new commit")
	}
}

func TestChat_GenerationErrorBecomesEvent(t *testing.T) {
	gen := &llmtest.Fake{
		Chunks:    []string{"partial"},
		StreamErr: &apperr.Error{Kind: apperr.KindGeneration, Op: "test", Msg: "rate limited", Retryable: true},
	}
	f := newFixture(t, gen, nil)

	f.runner.Chat(f.sess, "hi")
	got := drain(t, f.sess, is(events.TypeComplete, events.TypeError))

	if !slices.Equal(types(got), []events.Type{events.TypeChunk, events.TypeError}) {
		t.Fatalf("events = %v", types(got))
	}
	data := got[1].Data.(events.ErrorData)
	if data.Kind != "generation" || !strings.Contains(data.Message, "rate limited") {
		t.Errorf("error event = %+v", data)
	}
	if !data.Retryable {
		t.Error("transient failure not flagged retryable")
	}
	payload, err := got[1].Payload()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(payload), `"retryable":true`) {
		t.Errorf("payload = %s", payload)
	}
}

func TestChat_DiffErrorBecomesEvent(t *testing.T) {
	f := newFixture(t, &llmtest.Fake{Chunks: []string{editReply}}, nil)
	f.ws.DiffErr = errors.New("bad revision")
	f.sess.AddFiles([]string{"main.go"})

	f.runner.Chat(f.sess, "rename")
	got := drain(t, f.sess, is(events.TypeCommit, events.TypeError))

	want := []events.Type{events.TypeChunk, events.TypeComplete, events.TypeFilesEdited, events.TypeError}
	if !slices.Equal(types(got), want) {
		t.Fatalf("events = %v, want %v", types(got), want)
	}
	if f.sess.CommitHash() != "" {
		t.Errorf("hash stored despite diff failure: %q", f.sess.CommitHash())
	}
}

func TestChat_RejectsEmptyPrompt(t *testing.T) {
	f := newFixture(t, &llmtest.Fake{}, nil)
	if _, err := f.runner.Chat(f.sess, "  "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// slowGen yields its chunks with a pause between them.
type slowGen struct{ chunks []string }

func (g slowGen) Generate(ctx context.Context, req llm.Request) (string, error) {
	return strings.Join(g.chunks, ""), nil
}

func (g slowGen) GenerateStream(ctx context.Context, req llm.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, c := range g.chunks {
			time.Sleep(5 * time.Millisecond)
			if !yield(c, nil) {
				return
			}
		}
	}
}

func TestChat_RunsForOneSessionAreSerialized(t *testing.T) {
	f := newFixture(t, slowGen{chunks: []string{"a", "b", "c"}}, nil)

	f.runner.Chat(f.sess, "one")
	f.runner.Chat(f.sess, "two")

	completes := 0
	got := drain(t, f.sess, func(e events.Event) bool {
		if e.Type == events.TypeComplete {
			completes++
		}
		return completes == 2
	})

	want := []events.Type{
		events.TypeChunk, events.TypeChunk, events.TypeChunk, events.TypeComplete,
		events.TypeChunk, events.TypeChunk, events.TypeChunk, events.TypeComplete,
	}
	if !slices.Equal(types(got), want) {
		t.Errorf("events interleaved: %v", types(got))
	}
}

func TestExecuteTasks(t *testing.T) {
	f := newFixture(t, &llmtest.Fake{Chunks: []string{"done"}}, nil)

	tasks := []models.ExecTask{
		{Name: "A", Description: "first"},
		{Name: "B", Description: "second", Subtasks: []models.ExecSubtask{
			{Name: "b1", Description: "part one"},
			{Name: "b2", Description: "part two"},
		}},
	}
	if _, err := f.runner.ExecuteTasks(f.sess, tasks); err != nil {
		t.Fatal(err)
	}
	if results, ok := f.sess.Results(); !ok || results == nil {
		t.Error("results should be visible as soon as execution is requested")
	}

	got := drain(t, f.sess, is(events.TypeTasksExecutionCompleted))

	if got[0].Type != events.TypeTasksExecutionStarted || got[0].Data.(events.ExecutionStartedData).NumTasks != 2 {
		t.Errorf("first event = %+v", got[0])
	}

	var started []string
	for _, e := range got {
		if e.Type == events.TypeTaskStarted {
			started = append(started, e.Data.(events.TaskStartedData).TaskName)
		}
	}
	if !slices.Equal(started, []string{"A", "B - b1", "B - b2"}) {
		t.Errorf("started = %v", started)
	}

	final := got[len(got)-1].Data.(events.ExecutionCompletedData).Results
	if len(final) != 3 || final[1].Description != "second - part one" || final[2].Result != "done" {
		t.Errorf("results = %+v", final)
	}

	reqs := f.sess.Coder().History()
	if len(reqs) != 6 || !strings.Contains(reqs[0].Content, "I need you to implement this task:\nfirst") {
		t.Errorf("unexpected conversation %+v", reqs)
	}

	stored, _ := f.sess.Results()
	if len(stored) != 3 {
		t.Errorf("session has %d results, want 3", len(stored))
	}
}

func TestExecuteTasks_RejectedRunLeavesStatusInProgress(t *testing.T) {
	f := newFixture(t, &llmtest.Fake{Chunks: []string{"done"}}, nil)
	if err := f.pool.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := f.runner.ExecuteTasks(f.sess, []models.ExecTask{{Name: "A", Description: "first"}})
	if !errors.Is(err, apperr.ErrOverloaded) {
		t.Fatalf("expected overloaded error, got %v", err)
	}
	if results, ok := f.sess.Results(); ok {
		t.Errorf("rejected run marked results as started: %v", results)
	}
	if f.sess.Busy() {
		t.Error("rejected run still holds the session")
	}
}

func TestGeneratePRD(t *testing.T) {
	f := newFixture(t, &llmtest.Fake{Chunks: []string{"# PRD", "\nbody"}}, nil)

	f.runner.GeneratePRD(f.sess, "a todo app")
	got := drain(t, f.sess, is(events.TypePRDComplete, events.TypeError))

	want := []events.Type{events.TypePRDChunk, events.TypePRDChunk, events.TypePRDComplete}
	if !slices.Equal(types(got), want) {
		t.Fatalf("events = %v", types(got))
	}
	if prd := got[2].Data.(events.PRDCompleteData).PRD; prd != "# PRD\nbody" {
		t.Errorf("prd = %q", prd)
	}
	msgs := f.sess.Messages()
	if !strings.HasPrefix(msgs[len(msgs)-2].Content, "Create a detailed Product Requirements Document for:\na todo app") {
		t.Errorf("prompt not logged: %+v", msgs[len(msgs)-2])
	}
}

func TestGenerateTasks(t *testing.T) {
	response := `{"tasks": [
		{"id": 1, "title": "Setup", "description": "init", "dependencies": [], "priority": "high"},
		{"id": 2, "title": "Build", "description": "build it", "dependencies": [1], "priority": "low"}
	]}`

	t.Run("parsed", func(t *testing.T) {
		f := newFixture(t, &llmtest.Fake{}, &llmtest.Fake{Chunks: []string{response[:20], response[20:]}})

		f.runner.GenerateTasks(f.sess, "prd", 2, "demo")
		got := drain(t, f.sess, is(events.TypeTasksComplete, events.TypeError))

		want := []events.Type{events.TypeTasksChunk, events.TypeTasksChunk, events.TypeTasksComplete}
		if !slices.Equal(types(got), want) {
			t.Fatalf("events = %v", types(got))
		}
		data := got[2].Data.(events.TasksCompleteData)
		if data.Tasks == nil || len(data.Tasks.Tasks) != 2 || data.Tasks.Metadata.ProjectName != "demo" {
			t.Errorf("tasks = %+v", data.Tasks)
		}
		if data.TasksText != "" {
			t.Errorf("unexpected raw text %q", data.TasksText)
		}
	})

	t.Run("raw fallback", func(t *testing.T) {
		f := newFixture(t, &llmtest.Fake{}, &llmtest.Fake{Chunks: []string{"1. Setup\n2. Build"}})

		f.runner.GenerateTasks(f.sess, "prd", 2, "")
		got := drain(t, f.sess, is(events.TypeTasksComplete, events.TypeError))

		data := got[len(got)-1].Data.(events.TasksCompleteData)
		if data.Tasks != nil || data.TasksText != "1. Setup\n2. Build" {
			t.Errorf("tasks_complete = %+v", data)
		}
	})
}
