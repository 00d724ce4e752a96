package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}

	if deps.clients == nil {
		t.Fatal("clients repository should not be nil")
	}
	if deps.shipments == nil {
		t.Fatal("shipments repository should not be nil")
	}
	if deps.trackings == nil {
		t.Fatal("trackings repository should not be nil")
	}
	if deps.revisions == nil {
		t.Fatal("revisions repository should not be nil")
	}
	if deps.steps == nil {
		t.Fatal("steps repository should not be nil")
	}
	if deps.assignments == nil {
		t.Fatal("assignments repository should not be nil")
	}
	if deps.documents == nil {
		t.Fatal("documents repository should not be nil")
	}
	if deps.categories == nil {
		t.Fatal("categories repository should not be nil")
	}
	if deps.verifications == nil {
		t.Fatal("verifications repository should not be nil")
	}
	if deps.notifications == nil {
		t.Fatal("notifications repository should not be nil")
	}
	if deps.outboxRepo == nil {
		t.Fatal("outbox repository should not be nil")
	}

	if deps.storageChecker != nil {
		t.Error("memory storage should not have a storage checker")
	}
	if err := deps.close(); err != nil {
		t.Errorf("close on memory dependencies should be a no-op, got %v", err)
	}
}

func TestInitRuntimeDependencies_EmptyDriverDefaultsToMemory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{}, log.WithField("test", "empty-driver"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(empty driver) failed: %v", err)
	}
	if deps.clients == nil {
		t.Fatal("clients repository should not be nil")
	}
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}

func TestInitRuntimeDependencies_IndependentInstances(t *testing.T) {
	t.Parallel()

	logger := log.WithField("test", "independent")
	deps1, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: StorageDriverMemory}, logger)
	if err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	deps2, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: StorageDriverMemory}, logger)
	if err != nil {
		t.Fatalf("second init failed: %v", err)
	}

	if deps1 == deps2 {
		t.Error("initRuntimeDependencies should create independent instances")
	}
	if deps1.clients == deps2.clients {
		t.Error("client repositories should be independent")
	}
}
