package state

import (
	"reflect"
	"testing"
	"time"

	"github.com/ShayCichocki/pairline/pkg/models"
)

func sampleRecord() *SessionRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &SessionRecord{
		ID:            "s1",
		CommitHash:    "abc123",
		CommitMessage: "pairline: add greeting",
		CreatedAt:     now,
		UpdatedAt:     now,
		Messages: []models.Message{
			{Role: models.RoleInfo, Content: "Git repo: /tmp/x with 2 files"},
			{Role: models.RoleAssistant, Content: "How can I help you?"},
			{Role: models.RoleUser, Content: "add a greeting"},
		},
		InputHistory: []string{"add a greeting"},
		Conversation: []models.Message{
			{Role: models.RoleUser, Content: "add a greeting"},
			{Role: models.RoleAssistant, Content: "done"},
		},
		Results: []models.TaskResult{
			{TaskName: "Setup", Description: "init", Result: "ok", EditedFiles: []string{"main.go"}, CommitHash: "def", CommitMessage: "pairline: setup"},
			{TaskName: "Docs", Description: "write docs", Result: "nothing", EditedFiles: []string{}},
		},
	}
}

func TestSaveLoadSession(t *testing.T) {
	db := setupTestDB(t)
	rec := sampleRecord()

	if err := db.SaveSession(rec); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	got, err := db.LoadSession("s1")
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a record")
	}

	if got.CommitHash != rec.CommitHash || got.CommitMessage != rec.CommitMessage {
		t.Errorf("commit = %q %q", got.CommitHash, got.CommitMessage)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
	if !reflect.DeepEqual(got.Messages, rec.Messages) {
		t.Errorf("Messages = %+v", got.Messages)
	}
	if !reflect.DeepEqual(got.Conversation, rec.Conversation) {
		t.Errorf("Conversation = %+v", got.Conversation)
	}
	if !reflect.DeepEqual(got.InputHistory, rec.InputHistory) {
		t.Errorf("InputHistory = %v", got.InputHistory)
	}
	if !reflect.DeepEqual(got.Results, rec.Results) {
		t.Errorf("Results = %+v", got.Results)
	}
}

func TestSaveSession_Replaces(t *testing.T) {
	db := setupTestDB(t)
	rec := sampleRecord()
	if err := db.SaveSession(rec); err != nil {
		t.Fatal(err)
	}

	rec.CommitHash = ""
	rec.CommitMessage = ""
	rec.Messages = rec.Messages[:2]
	rec.Results = nil
	rec.UpdatedAt = time.Now()
	if err := db.SaveSession(rec); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.CommitHash != "" {
		t.Errorf("expected cleared commit hash, got %q", got.CommitHash)
	}
	if len(got.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(got.Messages))
	}
	if len(got.Results) != 0 {
		t.Errorf("expected no results, got %d", len(got.Results))
	}
}

func TestLoadSession_Unknown(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.LoadSession("missing")
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil record, got %+v", got)
	}
}

func TestDeleteSession_Cascades(t *testing.T) {
	db := setupTestDB(t)
	if err := db.SaveSession(sampleRecord()); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteSession("s1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	for _, table := range []string{"messages", "task_results"} {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE session_id = ?", "s1").Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("%s still has %d rows", table, n)
		}
	}
}

func TestListSessionIDs_Order(t *testing.T) {
	db := setupTestDB(t)
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		rec := &SessionRecord{ID: id, CreatedAt: base, UpdatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := db.SaveSession(rec); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := db.ListSessionIDs()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c", "b", "a"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ListSessionIDs() = %v, want %v", ids, want)
	}
}
