//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/felixgeelhaar/intervue/internal/quota"
	"github.com/felixgeelhaar/intervue/internal/session"
	"github.com/felixgeelhaar/intervue/internal/storage/postgres"
	"github.com/felixgeelhaar/intervue/internal/transcript"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a Postgres container and returns a migrated pool
func setupPostgres(t *testing.T) *pgxpool.Pool {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "intervue",
				"POSTGRES_PASSWORD": "intervue",
				"POSTGRES_DB":       "intervue",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start Postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://intervue:intervue@%s:%s/intervue?sslmode=disable", host, port.Port())
	pool, err := postgres.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(pool.Close)

	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Applying the schema twice is harmless
	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	return pool
}

func TestIntegration_InterviewStore(t *testing.T) {
	pool := setupPostgres(t)
	store := postgres.NewInterviewStore(pool)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	iv := session.NewInterview("u1", session.StartRequest{
		JobTitle:       "SRE",
		ResumeFeedback: json.RawMessage(`{"skills": ["k8s"]}`),
		QuestionLimit:  20,
		Difficulty:     "easy",
	}, now)
	if err := store.CreateInterview(ctx, iv); err != nil {
		t.Fatalf("CreateInterview() error = %v", err)
	}

	for i, text := range []string{"Hello?", "Hi."} {
		role := transcript.RoleInterviewer
		if i == 1 {
			role = transcript.RoleCandidate
		}
		if err := store.AppendMessage(ctx, session.NewMessage(iv.ID, i+1, role, text, now)); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}

	loaded, err := store.GetInterview(ctx, iv.ID)
	if err != nil {
		t.Fatalf("GetInterview() error = %v", err)
	}
	if loaded.JobTitle != "SRE" || loaded.QuestionLimit != 20 || loaded.EndedAt != nil {
		t.Errorf("loaded = %+v", loaded)
	}
	var resume map[string]any
	if err := json.Unmarshal(loaded.ResumeFeedback, &resume); err != nil {
		t.Errorf("ResumeFeedback is not JSON: %v", err)
	}

	msgs, err := store.ListMessages(ctx, iv.ID)
	if err != nil || len(msgs) != 2 || msgs[1].Role != transcript.RoleCandidate {
		t.Errorf("ListMessages() = %+v, %v", msgs, err)
	}

	n, err := store.AbandonOpen(ctx, now.Add(time.Hour))
	if err != nil || n != 1 {
		t.Errorf("AbandonOpen() = %d, %v; want 1", n, err)
	}
	loaded, _ = store.GetInterview(ctx, iv.ID)
	if loaded.Status != session.StatusAbandoned || loaded.EndedAt == nil {
		t.Errorf("loaded = %+v; want abandoned", loaded)
	}

	if _, err := store.GetInterview(ctx, "missing"); err != session.ErrNotFound {
		t.Errorf("GetInterview(missing) error = %v; want ErrNotFound", err)
	}
}

func TestIntegration_QuotaStore(t *testing.T) {
	pool := setupPostgres(t)
	tracker, err := quota.New(postgres.NewQuotaStore(pool), quota.Config{DailyLimit: 2, Timezone: "Asia/Kuala_Lumpur"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := tracker.Consume(ctx, "u1"); err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
	}
	if _, err := tracker.Consume(ctx, "u1"); err != quota.ErrExhausted {
		t.Errorf("Consume() error = %v; want ErrExhausted", err)
	}
	st, err := tracker.Reset(ctx, "u1")
	if err != nil || st.Remaining != 2 {
		t.Errorf("Reset() = %+v, %v", st, err)
	}
}
