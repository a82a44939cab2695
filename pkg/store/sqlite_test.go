package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addTestPerson(t *testing.T, s *SQLiteStore, p *Person) *Person {
	t.Helper()
	if p.SecretSalt == nil {
		p.SecretSalt = []byte("salt")
	}
	if p.SecretHash == nil {
		p.SecretHash = []byte("hash")
	}
	if err := s.AddPerson(context.Background(), p); err != nil {
		t.Fatalf("AddPerson failed: %v", err)
	}
	return p
}

func TestAddPersonAndGetPerson(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p := addTestPerson(t, s, &Person{
		Name:    "Fatima Alzaabi",
		Email:   "fatima.alzaabi@mbzuai.ac.ae",
		Handle:  "Fatima",
		Tags:    "Finance",
		Persona: "Prefers bullet points",
		Enabled: true,
	})
	if p.ID == "" {
		t.Fatal("Expected generated ID")
	}

	got, err := s.GetPerson(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPerson failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected person, got nil")
	}
	if got.Name != p.Name || got.Email != p.Email || got.Handle != p.Handle {
		t.Errorf("Identity mismatch: got %+v", got)
	}
	if got.Tags != "Finance" || got.Persona != "Prefers bullet points" {
		t.Errorf("Tags/persona mismatch: got %q/%q", got.Tags, got.Persona)
	}
	if string(got.SecretSalt) != "salt" || string(got.SecretHash) != "hash" {
		t.Error("Secret material not persisted")
	}
	if !got.Enabled {
		t.Error("Expected enabled person")
	}
}

func TestGetPerson_NotFound(t *testing.T) {
	s := setupTestStore(t)

	got, err := s.GetPerson(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetPerson failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil, got %+v", got)
	}
}

func TestFindEnabledPersonBy(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	first := addTestPerson(t, s, &Person{Name: "Sam", Email: "sam@example.com", Enabled: true, CreatedAt: base})
	addTestPerson(t, s, &Person{Name: "Sam", Email: "sam2@example.com", Enabled: true, CreatedAt: base.Add(time.Hour)})

	got, err := s.FindEnabledPersonBy(ctx, "name", "Sam")
	if err != nil {
		t.Fatalf("FindEnabledPersonBy failed: %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Fatalf("Expected earliest-created Sam, got %+v", got)
	}

	got, err = s.FindEnabledPersonBy(ctx, "email", "sam2@example.com")
	if err != nil {
		t.Fatalf("FindEnabledPersonBy failed: %v", err)
	}
	if got == nil || got.Email != "sam2@example.com" {
		t.Fatalf("Expected match by email, got %+v", got)
	}

	// Matching is exact.
	got, err = s.FindEnabledPersonBy(ctx, "name", "sam")
	if err != nil {
		t.Fatalf("FindEnabledPersonBy failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected no case-insensitive match, got %+v", got)
	}
}

func TestFindEnabledPersonBy_InvalidField(t *testing.T) {
	s := setupTestStore(t)

	if _, err := s.FindEnabledPersonBy(context.Background(), "tags", "x"); err == nil {
		t.Fatal("Expected error for non-claimable field")
	}
}

func TestDisablePerson(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p := addTestPerson(t, s, &Person{Name: "Omar", Handle: "omar", Enabled: true})

	if err := s.DisablePerson(ctx, p.ID); err != nil {
		t.Fatalf("DisablePerson failed: %v", err)
	}

	got, err := s.FindEnabledPersonBy(ctx, "handle", "omar")
	if err != nil {
		t.Fatalf("FindEnabledPersonBy failed: %v", err)
	}
	if got != nil {
		t.Error("Disabled person should not be findable")
	}

	// The record itself survives.
	kept, err := s.GetPerson(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPerson failed: %v", err)
	}
	if kept == nil || kept.Enabled {
		t.Errorf("Expected kept, disabled record, got %+v", kept)
	}

	count, err := s.CountPeople(ctx)
	if err != nil {
		t.Fatalf("CountPeople failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 enabled people, got %d", count)
	}

	if err := s.DisablePerson(ctx, "missing"); err != ErrPersonNotFound {
		t.Errorf("Expected ErrPersonNotFound, got %v", err)
	}
}

func TestSessions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p := addTestPerson(t, s, &Person{Name: "Lena", Enabled: true})
	until := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := s.AddSession(ctx, &Session{Token: "tok-1", PersonID: p.ID, TrustedUntil: until}); err != nil {
		t.Fatalf("AddSession failed: %v", err)
	}

	got, err := s.GetSession(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected session, got nil")
	}
	if got.PersonID != p.ID {
		t.Errorf("PersonID mismatch: got %s, want %s", got.PersonID, p.ID)
	}
	if !got.TrustedUntil.Equal(until) {
		t.Errorf("TrustedUntil mismatch: got %v, want %v", got.TrustedUntil, until)
	}

	missing, err := s.GetSession(ctx, "nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown token, got %+v", missing)
	}

	if err := s.AddSession(ctx, &Session{PersonID: p.ID, TrustedUntil: until}); err == nil {
		t.Error("Expected error for empty token")
	}
	if err := s.AddSession(ctx, &Session{Token: "tok-1", PersonID: p.ID, TrustedUntil: until}); err == nil {
		t.Error("Expected error for reused token")
	}
}

func TestRecentKnowledge_Window(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		k := &KnowledgeChunk{Title: fmt.Sprintf("doc-%d", i), Chunk: "text", Tag: "policy"}
		if err := s.AddKnowledge(ctx, k); err != nil {
			t.Fatalf("AddKnowledge failed: %v", err)
		}
	}

	chunks, err := s.RecentKnowledge(ctx, 3)
	if err != nil {
		t.Fatalf("RecentKnowledge failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	for i, want := range []string{"doc-4", "doc-3", "doc-2"} {
		if chunks[i].Title != want {
			t.Errorf("chunks[%d] = %s, want %s", i, chunks[i].Title, want)
		}
	}

	count, err := s.CountKnowledge(ctx)
	if err != nil {
		t.Fatalf("CountKnowledge failed: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected 5 stored chunks, got %d", count)
	}

	none, err := s.RecentKnowledge(ctx, 0)
	if err != nil {
		t.Fatalf("RecentKnowledge failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected empty result for zero window, got %d", len(none))
	}
}

func TestPickHumor_Rotation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, line := range []string{"one", "two"} {
		if err := s.AddHumor(ctx, &HumorLine{Line: line, Level: "playful", Tag: "task"}); err != nil {
			t.Fatalf("AddHumor failed: %v", err)
		}
	}
	if err := s.AddHumor(ctx, &HumorLine{Line: "sharp one", Level: "sharp"}); err != nil {
		t.Fatalf("AddHumor failed: %v", err)
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	first, err := s.PickHumor(ctx, "playful", "task", base)
	if err != nil {
		t.Fatalf("PickHumor failed: %v", err)
	}
	second, err := s.PickHumor(ctx, "playful", "task", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("PickHumor failed: %v", err)
	}
	if first == nil || second == nil {
		t.Fatal("Expected two picks")
	}
	if first.ID == second.ID {
		t.Error("Least-used rotation should pick the unused line second")
	}
	if first.UseCount != 1 || second.UseCount != 1 {
		t.Errorf("Expected use counts 1/1, got %d/%d", first.UseCount, second.UseCount)
	}
	if first.LastUsedAt == nil || !first.LastUsedAt.Equal(base) {
		t.Errorf("Expected LastUsedAt %v, got %v", base, first.LastUsedAt)
	}

	third, err := s.PickHumor(ctx, "playful", "task", base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("PickHumor failed: %v", err)
	}
	if third.ID != first.ID {
		t.Errorf("Expected least recently used line %q, got %q", first.Line, third.Line)
	}
	if third.UseCount != 2 {
		t.Errorf("Expected use count 2, got %d", third.UseCount)
	}
}

func TestPickHumor_Filters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.AddHumor(ctx, &HumorLine{Line: "generic line", Level: "playful"}); err != nil {
		t.Fatalf("AddHumor failed: %v", err)
	}

	got, err := s.PickHumor(ctx, "playful", "policy", time.Time{})
	if err != nil {
		t.Fatalf("PickHumor failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected no line for unmatched tag, got %+v", got)
	}

	got, err = s.PickHumor(ctx, "sharp", "", time.Time{})
	if err != nil {
		t.Fatalf("PickHumor failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected no line for unmatched level, got %+v", got)
	}

	got, err = s.PickHumor(ctx, "playful", "", time.Time{})
	if err != nil {
		t.Fatalf("PickHumor failed: %v", err)
	}
	if got == nil || got.Tag != "generic" {
		t.Errorf("Expected generic-tagged line, got %+v", got)
	}
}

func TestListTasks_Ordering(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tasks := []*Task{
		{Title: "undated", Owner: "Fatima", Priority: PriorityUrgent},
		{Title: "later", Owner: "Fatima", DueDate: "2025-03-01", Priority: PriorityLow},
		{Title: "soon-normal", Owner: "Fatima", DueDate: "2025-01-15"},
		{Title: "soon-high", Owner: "Fatima", DueDate: "2025-01-15", Priority: PriorityHigh},
		{Title: "someone else", Owner: "Omar", DueDate: "2024-12-01"},
	}
	for _, task := range tasks {
		if err := s.AddTask(ctx, task); err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}
	}

	got, err := s.ListTasks(ctx, TaskFilter{Owner: "Fatima"})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}

	want := []string{"soon-high", "soon-normal", "later", "undated"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d tasks, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Title != want[i] {
			t.Errorf("tasks[%d] = %s, want %s", i, got[i].Title, want[i])
		}
	}

	all, err := s.ListTasks(ctx, TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(all) != 5 || all[0].Title != "someone else" {
		t.Errorf("Expected 5 tasks led by the earliest due date, got %d", len(all))
	}
}

func TestAddTask_Defaults(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	task := &Task{Title: "File expenses", Owner: "Fatima"}
	if err := s.AddTask(ctx, task); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Priority != PriorityNormal || got.Category != "Admin" || got.Status != StatusTodo {
		t.Errorf("Unexpected defaults: %+v", got)
	}
	if got.DueDate != "" {
		t.Errorf("Expected no due date, got %q", got.DueDate)
	}
}

func TestUpdateTask_Partial(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	task := &Task{Title: "Quarterly close", Owner: "Fatima", DueDate: "2025-02-01", Notes: "keep"}
	if err := s.AddTask(ctx, task); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	status := StatusDone
	noDue := ""
	if err := s.UpdateTask(ctx, task.ID, TaskUpdate{Status: &status, DueDate: &noDue}); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != StatusDone {
		t.Errorf("Status = %s, want %s", got.Status, StatusDone)
	}
	if got.DueDate != "" {
		t.Errorf("Expected cleared due date, got %q", got.DueDate)
	}
	if got.Notes != "keep" || got.Title != "Quarterly close" {
		t.Errorf("Untouched fields changed: %+v", got)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Error("UpdatedAt should not precede CreatedAt")
	}

	stamp := time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC)
	notes := "moved"
	if err := s.UpdateTask(ctx, task.ID, TaskUpdate{Notes: &notes, UpdatedAt: stamp}); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	got, err = s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if !got.UpdatedAt.Equal(stamp) {
		t.Errorf("UpdatedAt = %v, want caller-supplied %v", got.UpdatedAt, stamp)
	}

	if err := s.UpdateTask(ctx, "missing", TaskUpdate{Status: &status}); err != ErrTaskNotFound {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"", PriorityNormal, false},
		{"high", PriorityHigh, false},
		{"Urgent", PriorityUrgent, false},
		{" low ", PriorityLow, false},
		{"critical", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePriority(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePriority(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFacts_Accumulate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"Tuesday", "Thursday"} {
		if err := s.AddFact(ctx, &MemoryFact{Key: "standup", Value: v}); err != nil {
			t.Fatalf("AddFact failed: %v", err)
		}
	}

	facts, err := s.FactsByKey(ctx, "standup")
	if err != nil {
		t.Fatalf("FactsByKey failed: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("Expected both facts kept, got %d", len(facts))
	}
	if facts[0].Value != "Tuesday" || facts[1].Value != "Thursday" {
		t.Errorf("Unexpected fact order: %s, %s", facts[0].Value, facts[1].Value)
	}
	if facts[0].Source != "user" {
		t.Errorf("Expected default source 'user', got %q", facts[0].Source)
	}
}

func TestAudit_AppendAndList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := &AuditEntry{
			Caller:  "Guest",
			Kind:    "chat",
			Tone:    "professional",
			Payload: map[string]interface{}{"n": i},
		}
		if err := s.AppendAudit(ctx, e); err != nil {
			t.Fatalf("AppendAudit failed: %v", err)
		}
	}
	if err := s.AppendAudit(ctx, &AuditEntry{Caller: "Fatima", Kind: "auth"}); err != nil {
		t.Fatalf("AppendAudit failed: %v", err)
	}

	entries, err := s.ListAudit(ctx, 10)
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Expected 4 entries, got %d", len(entries))
	}
	if entries[0].Kind != "auth" || entries[0].Caller != "Fatima" {
		t.Errorf("Expected newest entry first, got %+v", entries[0])
	}
	if len(entries[0].Payload) != 0 {
		t.Errorf("Expected empty payload, got %v", entries[0].Payload)
	}
	// JSON numbers decode as float64.
	if entries[1].Payload["n"] != float64(2) {
		t.Errorf("Expected payload n=2, got %v", entries[1].Payload["n"])
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].ID <= entries[i].ID {
			t.Errorf("Audit IDs not strictly descending at %d", i)
		}
	}
}

func TestChats_RecentByRole(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	msgs := []*ChatMessage{
		{PersonID: "p1", Role: RoleUser, Text: "first"},
		{PersonID: "p1", Role: RoleAssistant, Text: "reply"},
		{PersonID: "p1", Role: RoleUser, Text: "second"},
		{PersonID: "", Role: RoleUser, Text: "guest"},
	}
	for _, m := range msgs {
		if err := s.AppendChat(ctx, m); err != nil {
			t.Fatalf("AppendChat failed: %v", err)
		}
	}

	got, err := s.RecentChats(ctx, "p1", RoleUser, 1)
	if err != nil {
		t.Fatalf("RecentChats failed: %v", err)
	}
	if len(got) != 1 || got[0].Text != "second" {
		t.Fatalf("Expected latest user message 'second', got %+v", got)
	}

	all, err := s.RecentChats(ctx, "p1", "", 0)
	if err != nil {
		t.Fatalf("RecentChats failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 messages for p1, got %d", len(all))
	}

	guest, err := s.RecentChats(ctx, "", RoleUser, 5)
	if err != nil {
		t.Fatalf("RecentChats failed: %v", err)
	}
	if len(guest) != 1 || guest[0].Text != "guest" {
		t.Errorf("Expected guest history only, got %+v", guest)
	}
}

func TestUploadTracker(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	done, chunks, err := s.IsUploadProcessed(ctx, "abc")
	if err != nil {
		t.Fatalf("IsUploadProcessed failed: %v", err)
	}
	if done || chunks != 0 {
		t.Errorf("Expected unprocessed upload, got done=%v chunks=%d", done, chunks)
	}

	if err := s.MarkUploadProcessed(ctx, "abc", "Travel Policy", 3); err != nil {
		t.Fatalf("MarkUploadProcessed failed: %v", err)
	}

	done, chunks, err = s.IsUploadProcessed(ctx, "abc")
	if err != nil {
		t.Fatalf("IsUploadProcessed failed: %v", err)
	}
	if !done || chunks != 3 {
		t.Errorf("Expected processed upload with 3 chunks, got done=%v chunks=%d", done, chunks)
	}
}

func TestPersistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "moex.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s.AddKnowledge(ctx, &KnowledgeChunk{Title: "Canon", Chunk: "persisted", Tag: "canon"}); err != nil {
		t.Fatalf("AddKnowledge failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s2.Close()

	chunks, err := s2.RecentKnowledge(ctx, 10)
	if err != nil {
		t.Fatalf("RecentKnowledge failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Chunk != "persisted" {
		t.Errorf("Knowledge not persisted: %+v", chunks)
	}
}

func TestSchemaMigration_NewColumns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")

	// Build a database with the first-release schema.
	old, err := sql.Open(DefaultDriver, dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	_, err = old.Exec(`
		CREATE TABLE humor (
			id TEXT PRIMARY KEY,
			line TEXT NOT NULL,
			level TEXT NOT NULL,
			tag TEXT NOT NULL DEFAULT 'generic',
			created_at TEXT NOT NULL
		);
		INSERT INTO humor (id, line, level, tag, created_at)
		VALUES ('h1', 'old line', 'sharp', 'generic', '2024-01-01T00:00:00.000000000Z');
	`)
	if err != nil {
		t.Fatalf("Failed to seed old schema: %v", err)
	}
	old.Close()

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to open migrated store: %v", err)
	}
	defer s.Close()

	var useCount int
	var lastUsed sql.NullString
	err = s.db.QueryRow("SELECT use_count, last_used_at FROM humor WHERE id = 'h1'").Scan(&useCount, &lastUsed)
	if err != nil {
		t.Fatalf("Failed to query new columns: %v", err)
	}
	if useCount != 0 || lastUsed.Valid {
		t.Errorf("Expected zero counter and NULL last_used_at, got %d / %v", useCount, lastUsed)
	}

	h, err := s.PickHumor(context.Background(), "sharp", "", time.Time{})
	if err != nil {
		t.Fatalf("PickHumor failed: %v", err)
	}
	if h == nil || h.Line != "old line" {
		t.Errorf("Expected migrated line to be pickable, got %+v", h)
	}
}
