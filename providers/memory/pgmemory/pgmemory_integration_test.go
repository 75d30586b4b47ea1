//go:build integration

package pgmemory

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/leofalp/mmchat/providers/ai"
	"github.com/leofalp/mmchat/providers/memory"
	"github.com/leofalp/mmchat/providers/memory/memorytest"
)

// testPool is a shared connection pool created once in TestMain
// and reused across all integration test functions.
var testPool *pgxpool.Pool

// TestMain spins up a PostgreSQL container via testcontainers-go, creates the
// schema, and tears everything down after all tests complete.
func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("mmchat_test"),
		postgres.WithUsername("mmchat"),
		postgres.WithPassword("mmchat"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("pgmemory: failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("pgmemory: failed to get connection string: %v", err)
	}

	testPool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("pgmemory: failed to create pool: %v", err)
	}

	if err := New(testPool).EnsureSchema(ctx); err != nil {
		log.Fatalf("pgmemory: failed to create schema: %v", err)
	}

	code := m.Run()

	testPool.Close()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Printf("pgmemory: failed to terminate container: %v", err)
	}

	os.Exit(code)
}

// TestPgMemory_StoreSuite runs the shared store suite. Each subtest gets its
// own table so conversation IDs can repeat across subtests.
func TestPgMemory_StoreSuite(t *testing.T) {
	counter := 0
	memorytest.RunStoreTests(t, func(t *testing.T) memory.Store {
		counter++
		mem := New(testPool, WithTableName(fmt.Sprintf("suite_%d", counter)))
		if err := mem.EnsureSchema(context.Background()); err != nil {
			t.Fatalf("EnsureSchema failed: %v", err)
		}
		t.Cleanup(func() {
			_, _ = testPool.Exec(context.Background(), "DROP TABLE IF EXISTS "+mem.tableName)
		})
		return mem
	})
}

// TestPgMemory_PreservesSubSecondOrder verifies that id ordering holds for
// messages sharing the same timestamp.
func TestPgMemory_PreservesSubSecondOrder(t *testing.T) {
	ctx := context.Background()
	mem := New(testPool)
	conversationID := "order-" + t.Name()
	t.Cleanup(func() { _ = mem.Clear(ctx, conversationID) })

	stamp := time.Now().UTC().Round(0)
	var batch []ai.Message
	for i := 0; i < 20; i++ {
		batch = append(batch, ai.Message{Role: ai.RoleUser, Text: string(rune('a' + i)), CreatedAt: stamp})
	}
	if err := mem.Append(ctx, conversationID, batch); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := mem.Get(ctx, conversationID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	memorytest.AssertHistory(t, got, batch)

	count, err := mem.Count(ctx, conversationID)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != len(batch) {
		t.Fatalf("expected %d rows, got %d", len(batch), count)
	}
}
