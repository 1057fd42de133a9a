package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/rivion/rivion/internal/config"
	"github.com/rivion/rivion/internal/database"
	"github.com/rivion/rivion/internal/database/postgres"
	"github.com/rivion/rivion/internal/encoder"
	"github.com/rivion/rivion/internal/gallery"
	"github.com/rivion/rivion/internal/match"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Encode gallery images and build the face match index",
	Long: `Runs every gallery image through the face encoding sidecar and builds
the approximate nearest neighbor index the serve command matches against.
Encodings are also written to PostgreSQL when DATABASE_URL is set.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().String("out", "", "Index output path (defaults to HNSW_INDEX_PATH)")
	indexCmd.Flags().Int("concurrency", 4, "Number of images encoded in parallel")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	outPath := mustGetString(cmd, "out")
	if outPath == "" {
		outPath = cfg.Database.HNSWIndexPath
	}
	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency < 1 {
		concurrency = 1
	}

	store := gallery.NewStore(cfg.Gallery.Dir, cfg.Gallery.UploadsDir)
	images, err := store.ListLocal("", "")
	if err != nil {
		return fmt.Errorf("listing gallery images: %w", err)
	}
	if len(images) == 0 {
		return fmt.Errorf("no images found in %s", cfg.Gallery.Dir)
	}
	fmt.Printf("Found %d gallery images to encode\n\n", len(images))

	ctx := cmd.Context()

	var repo database.EncodingStore
	if cfg.Database.URL != "" {
		pool, err := postgres.NewPool(&cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		defer pool.Close()
		if err := pool.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		repo = postgres.NewEncodingRepository(pool)
	}

	enc := encoder.NewClient(cfg.Encoder.URL, cfg.Encoder.Model)

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription("Encoding faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var mu sync.Mutex
	var faces []match.IndexedFace
	var errorCount int64
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, img := range images {
		wg.Add(1)
		go func(info gallery.ImageInfo) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			found, err := encodeImage(ctx, enc, repo, info.Path)
			if err != nil {
				atomic.AddInt64(&errorCount, 1)
				return
			}
			mu.Lock()
			faces = append(faces, found...)
			mu.Unlock()
		}(img)
	}
	wg.Wait()
	fmt.Println()

	if errorCount > 0 {
		fmt.Printf("Warning: %d images failed to encode\n", errorCount)
	}
	fmt.Printf("Encoded %d faces from %d images\n", len(faces), len(images))
	if len(faces) == 0 {
		return fmt.Errorf("no faces found, index not written")
	}

	index := match.NewHNSWIndex()
	if err := index.Build(faces); err != nil {
		return fmt.Errorf("building index: %w", err)
	}

	if outPath == "" {
		fmt.Println("No index path configured, skipping index file (set HNSW_INDEX_PATH or --out)")
		return nil
	}
	if err := index.Save(outPath); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	fmt.Printf("Saved face index to %s\n", outPath)
	return nil
}

// encodeImage extracts the face encodings of one gallery image and persists
// them when a database repository is configured. Images without faces are
// skipped silently.
func encodeImage(ctx context.Context, enc *encoder.Client, repo database.EncodingStore, path string) ([]match.IndexedFace, error) {
	imageData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	encodings, err := enc.ExtractEncodings(ctx, imageData)
	if err != nil {
		return nil, err
	}

	faces := make([]match.IndexedFace, 0, len(encodings))
	for _, e := range encodings {
		faces = append(faces, match.IndexedFace{
			ImagePath: path,
			FaceIndex: e.FaceIndex,
			Encoding:  e.Encoding,
		})
		if repo != nil {
			stored := &database.StoredEncoding{
				ImagePath: path,
				FaceIndex: e.FaceIndex,
				Encoding:  e.Encoding,
				BBox:      e.BBox,
				DetScore:  e.DetScore,
				Model:     enc.Model(),
				Dim:       e.Dim,
				CreatedAt: time.Now(),
			}
			if err := repo.Save(ctx, stored); err != nil {
				return nil, err
			}
		}
	}
	return faces, nil
}
