package handlers

import (
	"log"
	"net/http"

	"github.com/rivion/rivion/internal/gallery"
)

// maxListedImages caps how many images a listing endpoint returns.
const maxListedImages = 10

// ImagesHandler serves gallery image listings and storage statistics.
type ImagesHandler struct {
	store *gallery.Store
}

func NewImagesHandler(store *gallery.Store) *ImagesHandler {
	return &ImagesHandler{store: store}
}

// LocalImages handles GET /api/v1/local-images. The optional emotion query
// parameter filters by the emotion folder name.
func (h *ImagesHandler) LocalImages(w http.ResponseWriter, r *http.Request) {
	emotionFilter := r.URL.Query().Get("emotion")

	images, err := h.store.ListLocal(emotionFilter, "")
	if err != nil {
		log.Printf("listing local images failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list images")
		return
	}

	if len(images) > maxListedImages {
		images = images[:maxListedImages]
	}

	payload := make([]map[string]any, 0, len(images))
	for _, info := range images {
		base64Data, err := h.store.ReadBase64(info.Path)
		if err != nil {
			log.Printf("skipping unreadable image %s: %v", sanitizeForLog(info.Path), err)
			continue
		}
		payload = append(payload, map[string]any{
			"filename":   info.Filename,
			"emotion":    info.Emotion,
			"confidence": 0.8,
			"source":     info.Source,
			"image_data": gallery.DataURL(base64Data),
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(payload),
		"images":  payload,
	})
}

// StorageStats handles GET /api/v1/storage-stats.
func (h *ImagesHandler) StorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats()
	if err != nil {
		log.Printf("computing storage stats failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to compute storage stats")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
	})
}
