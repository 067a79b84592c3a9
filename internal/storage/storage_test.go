package storage

import (
	"errors"
	"testing"
)

// newTestDB creates an in-memory SQLite database for testing
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := InitDB(Config{
		DatabasePath: ":memory:",
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return db
}

// createTestOperation creates an Operation with default test values
func createTestOperation(opID, action, pkg, version string) *Operation {
	return &Operation{
		OperationID:  opID,
		Action:       action,
		Package:      pkg,
		Version:      version,
		ArtifactKind: "hosted-wheel",
		DownloadRef:  "../packages/demo/demo-1.0.0-py3-none-any.whl#sha256=abc",
		Succeeded:    true,
		DurationMs:   120,
	}
}

func TestRecordOperation(t *testing.T) {
	db := newTestDB(t)

	op := createTestOperation("op-1", "register", "demo", "1.0.0")
	if err := db.RecordOperation(op); err != nil {
		t.Fatalf("RecordOperation returned error: %v", err)
	}
	if op.ID == 0 {
		t.Error("operation ID not assigned")
	}
}

func TestRecordOperationNil(t *testing.T) {
	db := newTestDB(t)

	if err := db.RecordOperation(nil); !errors.Is(err, ErrNilOperation) {
		t.Errorf("error = %v, want ErrNilOperation", err)
	}
}

func TestRecordOperationDuplicateID(t *testing.T) {
	db := newTestDB(t)

	if err := db.RecordOperation(createTestOperation("op-1", "register", "demo", "1.0.0")); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if err := db.RecordOperation(createTestOperation("op-1", "update", "demo", "1.1.0")); err == nil {
		t.Error("duplicate operation ID accepted")
	}
}

func TestListByPackage(t *testing.T) {
	db := newTestDB(t)

	entries := []*Operation{
		createTestOperation("op-1", "register", "demo", "1.0.0"),
		createTestOperation("op-2", "update", "demo", "1.1.0"),
		createTestOperation("op-3", "register", "other", "0.1.0"),
	}
	for _, op := range entries {
		if err := db.RecordOperation(op); err != nil {
			t.Fatalf("record %s: %v", op.OperationID, err)
		}
	}

	ops, err := db.ListByPackage("demo")
	if err != nil {
		t.Fatalf("ListByPackage returned error: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("listed %d operations, want 2", len(ops))
	}
	for _, op := range ops {
		if op.Package != "demo" {
			t.Errorf("listed foreign package %s", op.Package)
		}
	}
}

func TestListAll(t *testing.T) {
	db := newTestDB(t)

	failed := createTestOperation("op-1", "delete", "demo", "1.0.0")
	failed.Succeeded = false
	failed.ErrorMessage = "package not registered"
	if err := db.RecordOperation(failed); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := db.RecordOperation(createTestOperation("op-2", "register", "demo", "1.0.0")); err != nil {
		t.Fatalf("record: %v", err)
	}

	ops, err := db.ListAll()
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("listed %d operations, want 2", len(ops))
	}
}
