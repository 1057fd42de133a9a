package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rivion/rivion/internal/gallery"
)

func newImagesHandler(t *testing.T) *ImagesHandler {
	t.Helper()

	galleryDir := t.TempDir()
	img := testJPEG(t)
	for _, rel := range []string{
		filepath.Join("happy", "a.jpg"),
		filepath.Join("happy", "b.jpg"),
		filepath.Join("sad", "c.jpg"),
	} {
		path := filepath.Join(galleryDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating gallery: %v", err)
		}
		if err := os.WriteFile(path, img, 0o644); err != nil {
			t.Fatalf("writing gallery image: %v", err)
		}
	}

	return NewImagesHandler(gallery.NewStore(galleryDir, t.TempDir()))
}

func TestLocalImages(t *testing.T) {
	handler := newImagesHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/local-images", nil)
	rec := httptest.NewRecorder()
	handler.LocalImages(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"].(float64) != 3 {
		t.Errorf("expected 3 images, got %v", body["count"])
	}

	images := body["images"].([]any)
	first := images[0].(map[string]any)
	if data, _ := first["image_data"].(string); !strings.HasPrefix(data, "data:image/jpeg;base64,") {
		t.Errorf("image_data should be a data URL, got %.40s", data)
	}
}

func TestLocalImagesEmotionFilter(t *testing.T) {
	handler := newImagesHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/local-images?emotion=sad", nil)
	rec := httptest.NewRecorder()
	handler.LocalImages(rec, req)

	body := decodeBody(t, rec)
	if body["count"].(float64) != 1 {
		t.Errorf("expected 1 sad image, got %v", body["count"])
	}
}

func TestLocalImagesEmptyGallery(t *testing.T) {
	handler := NewImagesHandler(gallery.NewStore(filepath.Join(t.TempDir(), "nope"), t.TempDir()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/local-images", nil)
	rec := httptest.NewRecorder()
	handler.LocalImages(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("empty gallery should still be 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"].(float64) != 0 {
		t.Errorf("expected 0 images, got %v", body["count"])
	}
}

func TestStorageStats(t *testing.T) {
	handler := newImagesHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/storage-stats", nil)
	rec := httptest.NewRecorder()
	handler.StorageStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	stats := body["stats"].(map[string]any)
	if stats["total_images"].(float64) != 3 {
		t.Errorf("expected 3 total images, got %v", stats["total_images"])
	}
	emotions := stats["emotions"].(map[string]any)
	if emotions["happy"].(float64) != 2 {
		t.Errorf("expected 2 happy images, got %v", emotions["happy"])
	}
}
