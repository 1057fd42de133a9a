// Package database defines persistent storage types for face encodings and
// analysis sessions.
package database

import (
	"context"
	"time"
)

// StoredEncoding is one gallery face persisted with its vector encoding.
type StoredEncoding struct {
	ID        int64
	ImagePath string
	FaceIndex int
	Encoding  []float32
	BBox      []float64 // [x1, y1, x2, y2]
	DetScore  float64
	Model     string
	Dim       int
	CreatedAt time.Time
}

// AnalysisSession records one completed face analysis.
type AnalysisSession struct {
	ID              string
	UserName        string
	DominantEmotion string
	Confidence      float64
	Statement       string
	ImagePath       string
	MatchCount      int
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// EncodingStore persists gallery face encodings.
type EncodingStore interface {
	Save(ctx context.Context, enc *StoredEncoding) error
	All(ctx context.Context) ([]StoredEncoding, error)
	ByImagePath(ctx context.Context, imagePath string) ([]StoredEncoding, error)
	FindSimilar(ctx context.Context, encoding []float32, limit int) ([]StoredEncoding, []float64, error)
	DeleteByImagePath(ctx context.Context, imagePath string) error
	Count(ctx context.Context) (int, error)
}

// SessionStore persists analysis sessions.
type SessionStore interface {
	Save(ctx context.Context, session *AnalysisSession) error
	Get(ctx context.Context, id string) (*AnalysisSession, error)
	DeleteExpired(ctx context.Context) (int64, error)
}
