package handlers

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rivion/rivion/internal/config"
	"github.com/rivion/rivion/internal/database"
	"github.com/rivion/rivion/internal/emotion"
	"github.com/rivion/rivion/internal/encoder"
	"github.com/rivion/rivion/internal/gallery"
	"github.com/rivion/rivion/internal/match"
)

const maxUploadBytes = 10 << 20

// AnalyzeHandler runs the full capture analysis pipeline: encode the face,
// match it against the gallery, classify emotions and store the result.
type AnalyzeHandler struct {
	encoder    FaceEncoder
	emotion    emotion.Provider
	store      *gallery.Store
	index      *match.HNSWIndex
	sessions   database.SessionStore // nil when persistence is disabled
	matching   config.MatchConfig
	sessionTTL time.Duration
}

func NewAnalyzeHandler(
	enc FaceEncoder,
	provider emotion.Provider,
	store *gallery.Store,
	index *match.HNSWIndex,
	sessions database.SessionStore,
	matching config.MatchConfig,
	sessionTTL time.Duration,
) *AnalyzeHandler {
	return &AnalyzeHandler{
		encoder:    enc,
		emotion:    provider,
		store:      store,
		index:      index,
		sessions:   sessions,
		matching:   matching,
		sessionTTL: sessionTTL,
	}
}

// matchedImage is one gallery image returned to the client.
type matchedImage struct {
	Filename   string  `json:"filename"`
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
	Similarity float64 `json:"similarity,omitempty"`
	Source     string  `json:"source"`
	ImageData  string  `json:"image_data,omitempty"`
}

func readUploadedImage(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, errors.Wrap(err, "parsing multipart form")
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, errors.Wrap(err, "missing image field")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, errors.Wrap(err, "reading image")
	}
	return data, nil
}

// largestFace picks the face with the biggest bounding box. Detection order
// is not meaningful when several faces are present.
func largestFace(faces []encoder.FaceEncoding) encoder.FaceEncoding {
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Area() > best.Area() {
			best = f
		}
	}
	return best
}

// classifyMatches runs emotion analysis on each matched gallery image.
func (h *AnalyzeHandler) classifyMatches(ctx context.Context, matches []match.Match) ([]emotion.MatchEmotion, map[string]*emotion.Result) {
	var observed []emotion.MatchEmotion
	perImage := make(map[string]*emotion.Result, len(matches))

	for _, m := range matches {
		imageData, err := os.ReadFile(m.ImagePath)
		if err != nil {
			log.Printf("skipping unreadable match %s: %v", sanitizeForLog(m.ImagePath), err)
			continue
		}
		result, err := h.emotion.Analyze(ctx, imageData, m.ImagePath)
		if err != nil {
			log.Printf("emotion analysis failed for %s: %v", sanitizeForLog(m.ImagePath), err)
			continue
		}
		observed = append(observed, emotion.MatchEmotion{
			Emotion:    result.Dominant,
			Confidence: result.Confidence,
		})
		perImage[m.ImagePath] = result
	}

	return observed, perImage
}

func (h *AnalyzeHandler) matchImagesPayload(matches []match.Match, perImage map[string]*emotion.Result) []matchedImage {
	images := make([]matchedImage, 0, len(matches))
	for _, m := range matches {
		result := perImage[m.ImagePath]
		if result == nil {
			continue
		}
		img := matchedImage{
			Filename:   m.ImagePath,
			Emotion:    result.Dominant,
			Confidence: result.Confidence,
			Similarity: m.Similarity,
			Source:     "gallery",
		}
		if base64Data, err := h.store.ReadBase64(m.ImagePath); err == nil {
			img.ImageData = gallery.DataURL(base64Data)
		}
		images = append(images, img)
	}
	return images
}

// similarByEmotion falls back to emotion-folder matching when the gallery
// index has no face encodings to compare against.
func (h *AnalyzeHandler) similarByEmotion(dominant string, limit int) []matchedImage {
	similar, err := h.store.SimilarImages(dominant, "", limit)
	if err != nil {
		log.Printf("listing similar images failed: %v", err)
		return nil
	}

	images := make([]matchedImage, 0, len(similar))
	for _, info := range similar {
		img := matchedImage{
			Filename:   info.Filename,
			Emotion:    info.Emotion,
			Confidence: 0.8,
			Source:     info.Source,
		}
		if base64Data, err := h.store.ReadBase64(info.Path); err == nil {
			img.ImageData = gallery.DataURL(base64Data)
		}
		images = append(images, img)
	}
	return images
}

// AnalyzeFace handles POST /api/v1/analyze-face.
func (h *AnalyzeHandler) AnalyzeFace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	imageData, err := readUploadedImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	userName := r.FormValue("user_name")
	if userName == "" {
		respondError(w, http.StatusBadRequest, "user_name is required")
		return
	}
	if r.FormValue("privacy_agreed") != "true" {
		respondError(w, http.StatusBadRequest, "privacy agreement is required")
		return
	}

	faces, err := h.encoder.ExtractEncodings(ctx, imageData)
	if err != nil {
		log.Printf("face encoding failed: %v", err)
		respondError(w, http.StatusBadGateway, "face encoding service unavailable")
		return
	}
	if len(faces) == 0 {
		respondError(w, http.StatusBadRequest, "No face detected in image. Please ensure your face is clearly visible.")
		return
	}

	primary := largestFace(faces)

	var matches []match.Match
	if h.index != nil && h.index.Count() > 0 {
		matches = h.index.FindMatches(primary.Encoding, match.Options{
			Tolerance:  h.matching.Tolerance,
			MaxResults: h.matching.MaxResults,
		})
	}

	var agg *emotion.Result
	var similarImages []matchedImage
	if len(matches) > 0 {
		observed, perImage := h.classifyMatches(ctx, matches)
		agg = emotion.Aggregate(observed)
		similarImages = h.matchImagesPayload(matches, perImage)
	} else {
		// No recognized matches; classify the captured face directly.
		result, err := h.emotion.Analyze(ctx, imageData, "")
		if err != nil {
			log.Printf("emotion analysis failed: %v", err)
			respondError(w, http.StatusInternalServerError, "emotion analysis failed")
			return
		}
		agg = result
		similarImages = h.similarByEmotion(agg.Dominant, h.matching.MaxResults)
	}

	statement := emotion.Statement(agg.Dominant, agg.Confidence)
	sessionID := uuid.New().String()
	now := time.Now()

	if _, err := h.store.SaveSessionImage(sessionID, imageData); err != nil {
		log.Printf("saving session image failed: %v", err)
	}

	facePath, err := h.store.SaveFaceImage(userName, agg.Dominant, imageData)
	if err != nil && !errors.Is(err, gallery.ErrDuplicateImage) {
		log.Printf("saving face image failed: %v", err)
	}

	if h.sessions != nil {
		session := &database.AnalysisSession{
			ID:              sessionID,
			UserName:        userName,
			DominantEmotion: agg.Dominant,
			Confidence:      agg.Confidence,
			Statement:       statement,
			ImagePath:       facePath,
			MatchCount:      len(matches),
			CreatedAt:       now,
			ExpiresAt:       now.Add(h.sessionTTL),
		}
		if err := h.sessions.Save(ctx, session); err != nil {
			log.Printf("persisting session failed: %v", err)
		}
	}

	log.Printf("analysis complete for session %s: %s (%.0f%%), %d similar images",
		sessionID, agg.Dominant, agg.Confidence*100, len(similarImages))

	respondJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"session_id":           sessionID,
		"user_name":            userName,
		"dominant_emotion":     agg.Dominant,
		"emotion_confidence":   agg.Confidence,
		"all_emotions":         agg.Distribution,
		"statement":            statement,
		"captured_at":          now.UTC().Format(time.RFC3339),
		"similar_images_found": len(similarImages),
		"similar_images":       similarImages,
	})
}

// SearchFace handles POST /api/v1/search. Same pipeline as AnalyzeFace but
// nothing is stored.
func (h *AnalyzeHandler) SearchFace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	imageData, err := readUploadedImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	faces, err := h.encoder.ExtractEncodings(ctx, imageData)
	if err != nil {
		log.Printf("face encoding failed: %v", err)
		respondError(w, http.StatusBadGateway, "face encoding service unavailable")
		return
	}
	if len(faces) == 0 {
		respondError(w, http.StatusBadRequest, "No face detected in image. Please ensure your face is clearly visible.")
		return
	}

	primary := largestFace(faces)

	var matches []match.Match
	if h.index != nil && h.index.Count() > 0 {
		matches = h.index.FindMatches(primary.Encoding, match.Options{
			Tolerance:  h.matching.Tolerance,
			MaxResults: h.matching.MaxResults,
		})
	}

	var agg *emotion.Result
	var similarImages []matchedImage
	if len(matches) > 0 {
		observed, perImage := h.classifyMatches(ctx, matches)
		agg = emotion.Aggregate(observed)
		similarImages = h.matchImagesPayload(matches, perImage)
	} else {
		result, err := h.emotion.Analyze(ctx, imageData, "")
		if err != nil {
			log.Printf("emotion analysis failed: %v", err)
			respondError(w, http.StatusInternalServerError, "emotion analysis failed")
			return
		}
		agg = result
		similarImages = h.similarByEmotion(agg.Dominant, h.matching.MaxResults)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"dominant_emotion":     agg.Dominant,
		"emotion_confidence":   agg.Confidence,
		"all_emotions":         agg.Distribution,
		"statement":            emotion.Statement(agg.Dominant, agg.Confidence),
		"similar_images_found": len(similarImages),
		"similar_images":       similarImages,
		"searched_at":          time.Now().UTC().Format(time.RFC3339),
	})
}
