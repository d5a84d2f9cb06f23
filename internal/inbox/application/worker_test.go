package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	application "settlementcore/internal/inbox/application"
	inbox "settlementcore/internal/inbox/domain"
	"settlementcore/internal/router"
)

type memInboxRepo struct {
	messages  []inbox.InboxMessage
	processed []string
	failed    map[string]string
}

func newMemInboxRepo() *memInboxRepo {
	return &memInboxRepo{failed: make(map[string]string)}
}

func (r *memInboxRepo) Enqueue(_ context.Context, msg *inbox.InboxMessage) error {
	for _, m := range r.messages {
		if m.MessageID == msg.MessageID {
			return nil // silently deduplicated
		}
	}
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *memInboxRepo) FindBatch(_ context.Context, limit int) ([]inbox.InboxMessage, error) {
	var out []inbox.InboxMessage
	for _, m := range r.messages {
		if m.Retryable() && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memInboxRepo) MarkProcessed(_ context.Context, id string, _ time.Time) error {
	r.processed = append(r.processed, id)
	for i := range r.messages {
		if r.messages[i].ID == id {
			r.messages[i].IsProcessed = true
		}
	}
	return nil
}

func (r *memInboxRepo) MarkFailed(_ context.Context, id string, errMsg string) error {
	r.failed[id] = errMsg
	for i := range r.messages {
		if r.messages[i].ID == id {
			r.messages[i].Attempts++
			r.messages[i].LastError = errMsg
		}
	}
	return nil
}

type stubRouter struct {
	err    error
	routed []string
}

func (s *stubRouter) Route(_ context.Context, documentName, _ string, _ router.Payload) error {
	s.routed = append(s.routed, documentName)
	return s.err
}

func TestInboxWorker_MarksProcessedOnSuccess(t *testing.T) {
	repo := newMemInboxRepo()
	repo.messages = []inbox.InboxMessage{{
		ID:           "in-1",
		MessageID:    "msg-1",
		DocumentName: "NotifyValidatedMeasureData_MarketDocument",
		ProcessType:  "E23",
		Body:         json.RawMessage(`{"gsrn":"571313100000000001"}`),
	}}
	rt := &stubRouter{}
	w, err := application.NewWorker(repo, rt, time.Second, 10, nil)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	w.RunCycle(context.Background())

	if len(rt.routed) != 1 {
		t.Fatalf("routed %d messages, want 1", len(rt.routed))
	}
	if len(repo.processed) != 1 || repo.processed[0] != "in-1" {
		t.Fatalf("processed = %v", repo.processed)
	}
}

func TestInboxWorker_RecordsFailureAndRetriesNextCycle(t *testing.T) {
	repo := newMemInboxRepo()
	repo.messages = []inbox.InboxMessage{{
		ID:           "in-1",
		MessageID:    "msg-1",
		DocumentName: "NotifyValidatedMeasureData_MarketDocument",
		Body:         json.RawMessage(`{}`),
	}}
	rt := &stubRouter{err: errors.New("handler blew up")}
	w, err := application.NewWorker(repo, rt, time.Second, 10, nil)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	w.RunCycle(context.Background())

	if len(repo.processed) != 0 {
		t.Fatalf("failed message marked processed: %v", repo.processed)
	}
	if repo.failed["in-1"] == "" {
		t.Fatal("failure not recorded")
	}
	if repo.messages[0].Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", repo.messages[0].Attempts)
	}

	// Still retryable: the next cycle picks it up again.
	batch, _ := repo.FindBatch(context.Background(), 10)
	if len(batch) != 1 {
		t.Fatalf("retryable batch len = %d, want 1", len(batch))
	}
}

func TestInboxWorker_MalformedBodyFailsWithoutRouting(t *testing.T) {
	repo := newMemInboxRepo()
	repo.messages = []inbox.InboxMessage{{
		ID:        "in-1",
		MessageID: "msg-1",
		Body:      json.RawMessage(`{not json`),
	}}
	rt := &stubRouter{}
	w, err := application.NewWorker(repo, rt, time.Second, 10, nil)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	w.RunCycle(context.Background())

	if len(rt.routed) != 0 {
		t.Fatal("malformed body reached the router")
	}
	if repo.failed["in-1"] == "" {
		t.Fatal("failure not recorded")
	}
}

func TestInboxMessage_DeadLetteredAfterMaxAttempts(t *testing.T) {
	msg := inbox.InboxMessage{ID: "in-1", MessageID: "msg-1", Attempts: 5}
	if msg.Retryable() {
		t.Fatal("message with 5 attempts still retryable")
	}
}

func TestInboxRepo_DeduplicatesOnMessageID(t *testing.T) {
	repo := newMemInboxRepo()
	first := &inbox.InboxMessage{ID: "in-1", MessageID: "msg-1"}
	dup := &inbox.InboxMessage{ID: "in-2", MessageID: "msg-1"}
	if err := repo.Enqueue(context.Background(), first); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := repo.Enqueue(context.Background(), dup); err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}
	if len(repo.messages) != 1 {
		t.Fatalf("stored %d messages, want 1 (message id is unique)", len(repo.messages))
	}
}
