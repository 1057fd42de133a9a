package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivion/rivion/internal/config"
	"github.com/rivion/rivion/internal/database"
	"github.com/rivion/rivion/internal/database/postgres"
	"github.com/rivion/rivion/internal/emotion"
	"github.com/rivion/rivion/internal/encoder"
	"github.com/rivion/rivion/internal/gallery"
	"github.com/rivion/rivion/internal/match"
	"github.com/rivion/rivion/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis API server",
	Long: `Starts the HTTP API that the capture client talks to. The server needs
the face encoding sidecar (ENCODER_URL) to be running. PostgreSQL session
persistence is enabled when DATABASE_URL is set and skipped otherwise.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "Override the SERVER_PORT environment variable")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx := context.Background()

	provider, err := newEmotionProvider(ctx, &cfg.Emotion)
	if err != nil {
		return fmt.Errorf("initializing emotion provider: %w", err)
	}
	fmt.Printf("Emotion provider: %s\n", provider.Name())

	index := match.NewHNSWIndex()
	loadFaceIndex(cfg.Database.HNSWIndexPath, index)

	var sessions database.SessionStore
	if cfg.Database.URL != "" {
		pool, err := postgres.NewPool(&cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		defer pool.Close()

		if err := pool.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		if index.Count() == 0 {
			buildIndexFromDatabase(ctx, postgres.NewEncodingRepository(pool), index)
		}

		sessionRepo := postgres.NewSessionRepository(pool)
		sessions = sessionRepo
		go sweepExpiredSessions(ctx, sessionRepo)
	}

	server := web.NewServer(cfg, web.Deps{
		Encoder:  encoder.NewClient(cfg.Encoder.URL, cfg.Encoder.Model),
		Emotion:  provider,
		Gallery:  gallery.NewStore(cfg.Gallery.Dir, cfg.Gallery.UploadsDir),
		Index:    index,
		Sessions: sessions,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		saveFaceIndex(cfg.Database.HNSWIndexPath, index)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting analysis API on http://localhost:%d\n", cfg.Server.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// newEmotionProvider builds the configured provider. Every remote provider is
// chained with the keyword heuristic so analysis keeps working when the
// provider is down or misconfigured.
func newEmotionProvider(ctx context.Context, cfg *config.EmotionConfig) (emotion.Provider, error) {
	heuristic := emotion.NewFallbackProvider()

	switch cfg.Provider {
	case "deepface":
		return emotion.WithFallback(emotion.NewDeepFaceProvider(cfg.DeepFaceURL), heuristic), nil
	case "openai":
		if cfg.OpenAIToken == "" {
			return nil, fmt.Errorf("EMOTION_PROVIDER=openai requires OPENAI_TOKEN")
		}
		return emotion.WithFallback(emotion.NewOpenAIProvider(cfg.OpenAIToken), heuristic), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("EMOTION_PROVIDER=gemini requires GEMINI_API_KEY")
		}
		gemini, err := emotion.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return emotion.WithFallback(gemini, heuristic), nil
	case "fallback":
		return heuristic, nil
	default:
		return nil, fmt.Errorf("unknown emotion provider %q", cfg.Provider)
	}
}

func loadFaceIndex(path string, index *match.HNSWIndex) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := index.Load(path); err != nil {
		fmt.Printf("Warning: could not load face index from %s: %v\n", path, err)
		return
	}
	fmt.Printf("Loaded face index with %d faces from %s\n", index.Count(), path)
}

func saveFaceIndex(path string, index *match.HNSWIndex) {
	if path == "" || index.Count() == 0 {
		return
	}
	if err := index.Save(path); err != nil {
		fmt.Printf("Warning: could not save face index to %s: %v\n", path, err)
		return
	}
	fmt.Printf("Saved face index with %d faces to %s\n", index.Count(), path)
}

func buildIndexFromDatabase(ctx context.Context, repo *postgres.EncodingRepository, index *match.HNSWIndex) {
	stored, err := repo.All(ctx)
	if err != nil {
		fmt.Printf("Warning: could not load face encodings from database: %v\n", err)
		return
	}
	if len(stored) == 0 {
		return
	}

	faces := make([]match.IndexedFace, 0, len(stored))
	for _, enc := range stored {
		faces = append(faces, match.IndexedFace{
			ImagePath: enc.ImagePath,
			FaceIndex: enc.FaceIndex,
			Encoding:  enc.Encoding,
		})
	}
	if err := index.Build(faces); err != nil {
		fmt.Printf("Warning: could not build face index: %v\n", err)
		return
	}
	fmt.Printf("Built face index with %d faces from database\n", index.Count())
}

// sweepExpiredSessions removes expired analysis sessions once an hour.
func sweepExpiredSessions(ctx context.Context, sessions database.SessionStore) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.DeleteExpired(ctx)
			if err != nil {
				log.Printf("Session cleanup failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("Removed %d expired analysis sessions", removed)
			}
		}
	}
}
