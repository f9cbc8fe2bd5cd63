package offline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ops := []Operation{
		{
			ID:         uuid.New(),
			Kind:       KindCreate,
			Resource:   "invoice",
			Payload:    json.RawMessage(`{"amount":100,"currency":"GBP"}`),
			EnqueuedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
			Attempts:   2,
		},
		{
			ID:         uuid.New(),
			Kind:       KindDelete,
			Resource:   "budget",
			Payload:    json.RawMessage(`{"id":"b-1"}`),
			EnqueuedAt: time.Date(2026, 3, 14, 9, 27, 0, 0, time.UTC),
		},
	}

	if err := store.Save(ops); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(loaded))
	}

	for i := range ops {
		if loaded[i].ID != ops[i].ID {
			t.Errorf("op %d: id mismatch", i)
		}
		if loaded[i].Kind != ops[i].Kind {
			t.Errorf("op %d: kind mismatch", i)
		}
		if loaded[i].Resource != ops[i].Resource {
			t.Errorf("op %d: resource mismatch", i)
		}
		if string(loaded[i].Payload) != string(ops[i].Payload) {
			t.Errorf("op %d: payload mismatch: %s vs %s", i, loaded[i].Payload, ops[i].Payload)
		}
		if !loaded[i].EnqueuedAt.Equal(ops[i].EnqueuedAt) {
			t.Errorf("op %d: timestamp mismatch", i)
		}
		if loaded[i].Attempts != ops[i].Attempts {
			t.Errorf("op %d: attempts mismatch", i)
		}
	}
}

func TestFileStoreMissingFileLoadsEmpty(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ops, err := store.Load()
	if err != nil {
		t.Errorf("expected missing file to load clean, got %v", err)
	}
	if len(ops) != 0 {
		t.Errorf("expected empty queue, got %d", len(ops))
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, queueFileName), []byte("{not json"), 0o640); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); err == nil {
		t.Error("expected error for corrupt queue file")
	}
}

func TestFileStoreSurvivesQueueRestart(t *testing.T) {
	dir := t.TempDir()

	store1, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	op := Operation{ID: uuid.New(), Kind: KindUpdate, Resource: "account", Payload: json.RawMessage(`{}`), EnqueuedAt: time.Now().UTC()}
	if err := store1.Save([]Operation{op}); err != nil {
		t.Fatal(err)
	}

	// New store instance over the same directory sees the same state.
	store2, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := store2.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].ID != op.ID {
		t.Errorf("expected persisted operation after restart, got %v", loaded)
	}
}

func TestManualSignal(t *testing.T) {
	s := NewManualSignal(true)
	if !s.Online() {
		t.Error("expected initial online state")
	}

	ch := s.Subscribe()

	s.Set(false)
	select {
	case v := <-ch:
		if v {
			t.Error("expected offline notification")
		}
	default:
		t.Error("expected a notification on state change")
	}

	// Setting the same state again does not notify.
	s.Set(false)
	select {
	case <-ch:
		t.Error("unexpected notification without a state change")
	default:
	}
}
