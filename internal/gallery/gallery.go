// Package gallery manages the local image folder and uploaded face images.
//
// The gallery folder is organized by emotion, optionally with a user level:
//
//	gallery/<emotion>/image.jpg
//	gallery/<emotion>/<user>/image.jpg
//
// Uploaded captures land under the uploads directory, split into per-session
// and per-user face subtrees.
package gallery

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// MaxImageDimension caps the size of images returned as base64 payloads.
const MaxImageDimension = 1024

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".gif":  true,
}

// ImageInfo describes one image found in the gallery or uploads tree.
type ImageInfo struct {
	Filename string    `json:"filename"`
	Path     string    `json:"path"`
	Emotion  string    `json:"emotion"`
	UserName string    `json:"user_name"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created"`
	Source   string    `json:"source"`
}

// Store reads the local gallery folder and writes uploaded captures.
type Store struct {
	galleryDir string
	uploadsDir string
}

func NewStore(galleryDir, uploadsDir string) *Store {
	return &Store{
		galleryDir: galleryDir,
		uploadsDir: uploadsDir,
	}
}

func isImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// ListLocal walks the gallery folder and returns images matching the
// optional emotion and user filters. Filters are case-insensitive; empty
// strings match everything.
func (s *Store) ListLocal(emotion, userName string) ([]ImageInfo, error) {
	var images []ImageInfo

	if _, err := os.Stat(s.galleryDir); err != nil {
		if os.IsNotExist(err) {
			return images, nil
		}
		return nil, errors.Wrap(err, "checking gallery folder")
	}

	err := filepath.WalkDir(s.galleryDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isImageFile(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(s.galleryDir, path)
		if err != nil {
			return err
		}
		parts := strings.Split(rel, string(os.PathSeparator))

		detectedEmotion := "unknown"
		if len(parts) > 1 {
			detectedEmotion = parts[0]
		}
		detectedUser := "default"
		if len(parts) > 2 {
			detectedUser = parts[1]
		}

		if emotion != "" && !strings.EqualFold(detectedEmotion, emotion) {
			return nil
		}
		if userName != "" && !strings.EqualFold(detectedUser, userName) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		images = append(images, ImageInfo{
			Filename: d.Name(),
			Path:     path,
			Emotion:  detectedEmotion,
			UserName: detectedUser,
			Size:     info.Size(),
			Created:  info.ModTime(),
			Source:   "local_folder",
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "walking gallery folder")
	}

	return images, nil
}

// relatedEmotions maps an emotion to its closest neighbors, used to pad
// similar-image results when the exact emotion has too few images.
var relatedEmotions = map[string][]string{
	"happy":    {"surprise"},
	"sad":      {"neutral", "fear"},
	"angry":    {"fear", "disgust"},
	"fear":     {"sad", "angry"},
	"surprise": {"happy"},
	"disgust":  {"angry", "sad"},
	"neutral":  {"sad"},
}

// SimilarImages returns up to limit images matching the emotion, padding
// with related emotions when there are not enough exact matches.
func (s *Store) SimilarImages(emotion, userName string, limit int) ([]ImageInfo, error) {
	results, err := s.allByEmotion(emotion, userName)
	if err != nil {
		return nil, err
	}
	if len(results) >= limit {
		return results[:limit], nil
	}

	for _, related := range relatedEmotions[emotion] {
		if len(results) >= limit {
			break
		}
		more, err := s.allByEmotion(related, userName)
		if err != nil {
			return nil, err
		}
		results = append(results, more...)
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) allByEmotion(emotion, userName string) ([]ImageInfo, error) {
	local, err := s.ListLocal(emotion, userName)
	if err != nil {
		return nil, err
	}
	stored, err := s.listFaces(emotion, userName)
	if err != nil {
		return nil, err
	}
	return append(local, stored...), nil
}

// ReadBase64 loads an image file and returns it base64-encoded. Images
// larger than MaxImageDimension on either side are scaled down first to
// keep API payloads reasonable.
func (s *Store) ReadBase64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "reading image")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Not decodable; serve the raw bytes as-is.
		return base64.StdEncoding.EncodeToString(data), nil
	}

	bounds := img.Bounds()
	if bounds.Dx() > MaxImageDimension || bounds.Dy() > MaxImageDimension {
		thumb := resize.Thumbnail(MaxImageDimension, MaxImageDimension, img, resize.Lanczos3)
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
			return "", errors.Wrap(err, "encoding thumbnail")
		}
		data = buf.Bytes()
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// DataURL wraps a base64 payload in a JPEG data URL.
func DataURL(base64Data string) string {
	return fmt.Sprintf("data:image/jpeg;base64,%s", base64Data)
}
