//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rivion/rivion/internal/config"
	"github.com/rivion/rivion/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testEncoding(imagePath string, faceIndex int, seed float32) *database.StoredEncoding {
	encoding := make([]float32, 512)
	for i := range encoding {
		encoding[i] = seed
	}
	encoding[0] = 1 // keep vectors non-degenerate for cosine distance

	return &database.StoredEncoding{
		ImagePath: imagePath,
		FaceIndex: faceIndex,
		Encoding:  encoding,
		BBox:      []float64{10, 10, 110, 110},
		DetScore:  0.98,
		Model:     "arcface",
		Dim:       512,
	}
}

func TestEncodingRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewEncodingRepository(pool)

	if err := repo.Save(ctx, testEncoding("gallery/happy/a.jpg", 0, 0.1)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := repo.Save(ctx, testEncoding("gallery/sad/b.jpg", 0, 0.9)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 encodings, got %d", count)
	}

	// Upsert replaces the existing row instead of adding one.
	if err := repo.Save(ctx, testEncoding("gallery/happy/a.jpg", 0, 0.2)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	count, _ = repo.Count(ctx)
	if count != 2 {
		t.Errorf("upsert should not add a row, got %d", count)
	}

	byPath, err := repo.ByImagePath(ctx, "gallery/happy/a.jpg")
	if err != nil {
		t.Fatalf("ByImagePath failed: %v", err)
	}
	if len(byPath) != 1 || byPath[0].Model != "arcface" {
		t.Errorf("unexpected encodings for path: %+v", byPath)
	}

	similar, distances, err := repo.FindSimilar(ctx, testEncoding("", 0, 0.2).Encoding, 1)
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if len(similar) != 1 || similar[0].ImagePath != "gallery/happy/a.jpg" {
		t.Errorf("nearest encoding should be a.jpg, got %+v", similar)
	}
	if len(distances) != 1 || distances[0] > 0.01 {
		t.Errorf("identical vector should have ~0 distance, got %v", distances)
	}

	if err := repo.DeleteByImagePath(ctx, "gallery/happy/a.jpg"); err != nil {
		t.Fatalf("DeleteByImagePath failed: %v", err)
	}
	count, _ = repo.Count(ctx)
	if count != 1 {
		t.Errorf("expected 1 encoding after delete, got %d", count)
	}
}

func TestSessionRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewSessionRepository(pool)

	session := &database.AnalysisSession{
		ID:              uuid.New().String(),
		UserName:        "alice",
		DominantEmotion: "happy",
		Confidence:      0.92,
		Statement:       "You look happy and cheerful! (Confidence: 92%)",
		ImagePath:       "uploads/faces/alice/happy/x.jpg",
		MatchCount:      3,
		CreatedAt:       time.Now(),
		ExpiresAt:       time.Now().Add(24 * time.Hour),
	}

	if err := repo.Save(ctx, session); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := repo.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("session should be found")
	}
	if got.DominantEmotion != "happy" || got.MatchCount != 3 {
		t.Errorf("unexpected session: %+v", got)
	}

	missing, err := repo.Get(ctx, uuid.New().String())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if missing != nil {
		t.Error("unknown session should return nil")
	}

	expired := &database.AnalysisSession{
		ID:              uuid.New().String(),
		UserName:        "bob",
		DominantEmotion: "sad",
		CreatedAt:       time.Now().Add(-48 * time.Hour),
		ExpiresAt:       time.Now().Add(-24 * time.Hour),
	}
	if err := repo.Save(ctx, expired); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if got, _ := repo.Get(ctx, expired.ID); got != nil {
		t.Error("expired session should not be returned")
	}

	deleted, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 expired session deleted, got %d", deleted)
	}
}
