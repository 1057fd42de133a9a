package gallery

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	sessionsSubdir = "sessions"
	facesSubdir    = "faces"

	// Hamming distance at or below this marks a near-duplicate.
	duplicateThreshold = 10
)

// ErrDuplicateImage is returned when a face image is a near-duplicate of
// one already stored for the same user and emotion.
var ErrDuplicateImage = errors.New("near-duplicate of an already stored image")

// SaveSessionImage writes a captured frame under the session's directory
// and returns the stored path.
func (s *Store) SaveSessionImage(sessionID string, imageData []byte) (string, error) {
	sessionDir := filepath.Join(s.uploadsDir, sessionsSubdir, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating session directory")
	}

	filename := "captured_" + time.Now().Format("20060102_150405") + ".jpg"
	path := filepath.Join(sessionDir, filename)
	if err := os.WriteFile(path, imageData, 0o644); err != nil {
		return "", errors.Wrap(err, "writing session image")
	}

	return path, nil
}

// SaveFaceImage stores a detected face under faces/<user>/<emotion>/.
// Near-duplicates of images already stored there are rejected with
// ErrDuplicateImage.
func (s *Store) SaveFaceImage(userName, emotion string, imageData []byte) (string, error) {
	userDir := filepath.Join(s.uploadsDir, facesSubdir, NormalizeUserName(userName), emotion)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating face directory")
	}

	if err := s.checkDuplicate(userDir, imageData); err != nil {
		return "", err
	}

	filename := emotion + "_" + time.Now().Format("20060102_150405") + "_" + uuid.New().String()[:8] + ".jpg"
	path := filepath.Join(userDir, filename)
	if err := os.WriteFile(path, imageData, 0o644); err != nil {
		return "", errors.Wrap(err, "writing face image")
	}

	return path, nil
}

func (s *Store) checkDuplicate(dir string, imageData []byte) error {
	hash, err := DHash(imageData)
	if err != nil {
		// Undecodable input is caught later by callers that care.
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	for _, entry := range entries {
		if entry.IsDir() || !isImageFile(entry.Name()) {
			continue
		}
		existing, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		existingHash, err := DHash(existing)
		if err != nil {
			continue
		}
		if HammingDistance(hash, existingHash) <= duplicateThreshold {
			return errors.Wrapf(ErrDuplicateImage, "matches %s", entry.Name())
		}
	}

	return nil
}

// listFaces walks the uploaded faces tree (faces/<user>/<emotion>/*).
func (s *Store) listFaces(emotion, userName string) ([]ImageInfo, error) {
	var images []ImageInfo

	facesDir := filepath.Join(s.uploadsDir, facesSubdir)
	if _, err := os.Stat(facesDir); err != nil {
		return images, nil
	}

	userDirs, err := os.ReadDir(facesDir)
	if err != nil {
		return nil, errors.Wrap(err, "reading faces directory")
	}

	for _, userDir := range userDirs {
		if !userDir.IsDir() {
			continue
		}
		if userName != "" && !strings.EqualFold(userDir.Name(), NormalizeUserName(userName)) {
			continue
		}

		emotionDirs, err := os.ReadDir(filepath.Join(facesDir, userDir.Name()))
		if err != nil {
			continue
		}
		for _, emotionDir := range emotionDirs {
			if !emotionDir.IsDir() {
				continue
			}
			if emotion != "" && !strings.EqualFold(emotionDir.Name(), emotion) {
				continue
			}

			files, err := os.ReadDir(filepath.Join(facesDir, userDir.Name(), emotionDir.Name()))
			if err != nil {
				continue
			}
			for _, file := range files {
				if file.IsDir() || !isImageFile(file.Name()) {
					continue
				}
				info, err := file.Info()
				if err != nil {
					continue
				}
				images = append(images, ImageInfo{
					Filename: file.Name(),
					Path:     filepath.Join(facesDir, userDir.Name(), emotionDir.Name(), file.Name()),
					Emotion:  emotionDir.Name(),
					UserName: userDir.Name(),
					Size:     info.Size(),
					Created:  info.ModTime(),
					Source:   "backend_storage",
				})
			}
		}
	}

	return images, nil
}

// StorageStats summarizes disk usage across the gallery and uploads trees.
type StorageStats struct {
	TotalImages int            `json:"total_images"`
	TotalSizeMB float64        `json:"total_size_mb"`
	Users       map[string]int `json:"users"`
	Emotions    map[string]int `json:"emotions"`
}

// Stats counts images and bytes across stored faces and the local gallery.
func (s *Store) Stats() (*StorageStats, error) {
	stats := &StorageStats{
		Users:    make(map[string]int),
		Emotions: make(map[string]int),
	}
	var totalBytes int64

	stored, err := s.listFaces("", "")
	if err != nil {
		return nil, err
	}
	local, err := s.ListLocal("", "")
	if err != nil {
		return nil, err
	}

	for _, img := range append(stored, local...) {
		stats.TotalImages++
		totalBytes += img.Size
		stats.Users[img.UserName]++
		stats.Emotions[img.Emotion]++
	}

	stats.TotalSizeMB = float64(totalBytes) / (1024 * 1024)
	return stats, nil
}
