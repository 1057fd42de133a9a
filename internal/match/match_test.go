package match

import (
	"math"
	"path/filepath"
	"testing"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{
			name:     "identical vectors",
			a:        []float32{1, 2, 3},
			b:        []float32{1, 2, 3},
			expected: 0,
		},
		{
			name:     "unit apart",
			a:        []float32{0, 0},
			b:        []float32{0, 1},
			expected: 1,
		},
		{
			name:     "pythagorean",
			a:        []float32{0, 0},
			b:        []float32{3, 4},
			expected: 5,
		},
		{
			name:     "mismatched length",
			a:        []float32{1, 2},
			b:        []float32{1, 2, 3},
			expected: math.MaxFloat64,
		},
		{
			name:     "empty vectors",
			a:        []float32{},
			b:        []float32{},
			expected: math.MaxFloat64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EuclideanDistance(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 0.0001 {
				t.Errorf("EuclideanDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{
			name:     "identical vectors",
			a:        []float32{1, 2, 3},
			b:        []float32{1, 2, 3},
			expected: 0,
		},
		{
			name:     "orthogonal vectors",
			a:        []float32{1, 0},
			b:        []float32{0, 1},
			expected: 1,
		},
		{
			name:     "opposite vectors",
			a:        []float32{1, 0},
			b:        []float32{-1, 0},
			expected: 2,
		},
		{
			name:     "zero vector",
			a:        []float32{0, 0},
			b:        []float32{1, 1},
			expected: 2,
		},
		{
			name:     "mismatched length",
			a:        []float32{1},
			b:        []float32{1, 2},
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 0.0001 {
				t.Errorf("CosineDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func galleryFaces() []IndexedFace {
	return []IndexedFace{
		{ImagePath: "a.jpg", FaceIndex: 0, Encoding: []float32{0.50, 0.50}},
		{ImagePath: "b.jpg", FaceIndex: 0, Encoding: []float32{0.55, 0.50}},
		{ImagePath: "b.jpg", FaceIndex: 1, Encoding: []float32{0.52, 0.50}},
		{ImagePath: "far.jpg", FaceIndex: 0, Encoding: []float32{-5.0, 5.0}},
	}
}

func TestFindMatchesToleranceAndOrder(t *testing.T) {
	query := []float32{0.50, 0.50}
	matches := FindMatches(query, galleryFaces(), Options{Tolerance: 0.6, MaxResults: 10})

	if len(matches) != 2 {
		t.Fatalf("expected 2 matched images, got %d", len(matches))
	}
	if matches[0].ImagePath != "a.jpg" {
		t.Errorf("best match should be a.jpg, got %s", matches[0].ImagePath)
	}
	if matches[1].ImagePath != "b.jpg" {
		t.Errorf("second match should be b.jpg, got %s", matches[1].ImagePath)
	}
	// b.jpg has two faces; the dedupe keeps the closer one (face index 1).
	wantDist := EuclideanDistance(query, []float32{0.52, 0.50})
	if math.Abs(matches[1].Distance-wantDist) > 0.0001 {
		t.Errorf("dedupe kept the wrong face: distance %v, want %v", matches[1].Distance, wantDist)
	}
	for _, m := range matches {
		if m.ImagePath == "far.jpg" {
			t.Error("face beyond tolerance must not match")
		}
		if math.Abs(m.Similarity-(1.0-m.Distance)) > 0.0001 {
			t.Errorf("similarity should be 1-distance, got %v vs %v", m.Similarity, m.Distance)
		}
	}
}

func TestFindMatchesMaxResults(t *testing.T) {
	query := []float32{0.50, 0.50}
	matches := FindMatches(query, galleryFaces(), Options{Tolerance: 0.6, MaxResults: 1})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].ImagePath != "a.jpg" {
		t.Errorf("cap should keep the best match, got %s", matches[0].ImagePath)
	}
}

func TestFindMatchesEmptyGallery(t *testing.T) {
	matches := FindMatches([]float32{1, 2}, nil, Options{})
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %d", len(matches))
	}
}

func TestHNSWIndexSearch(t *testing.T) {
	idx := NewHNSWIndex()
	if err := idx.Build(galleryFaces()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if idx.Count() != 4 {
		t.Fatalf("expected 4 indexed faces, got %d", idx.Count())
	}

	faces, distances, err := idx.Search([]float32{0.50, 0.50}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(faces) != 2 || len(distances) != 2 {
		t.Fatalf("expected 2 results, got %d", len(faces))
	}
	if faces[0].ImagePath != "a.jpg" {
		t.Errorf("nearest neighbor should be a.jpg, got %s", faces[0].ImagePath)
	}
	if distances[0] > 0.0001 {
		t.Errorf("identical encoding should have ~0 distance, got %v", distances[0])
	}
}

func TestHNSWIndexSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faces.idx")

	idx := NewHNSWIndex()
	if err := idx.Build(galleryFaces()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored := NewHNSWIndex()
	if err := restored.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if restored.Count() != idx.Count() {
		t.Errorf("restored count %d, want %d", restored.Count(), idx.Count())
	}

	faces, _, err := restored.Search([]float32{-5.0, 5.0}, 1)
	if err != nil {
		t.Fatalf("Search after load failed: %v", err)
	}
	if faces[0].ImagePath != "far.jpg" {
		t.Errorf("expected far.jpg, got %s", faces[0].ImagePath)
	}
}

func TestHNSWIndexFindMatches(t *testing.T) {
	idx := NewHNSWIndex()
	if err := idx.Build(galleryFaces()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	matches := idx.FindMatches([]float32{0.50, 0.50}, Options{Tolerance: 0.6, MaxResults: 10})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matched images, got %d", len(matches))
	}
	if matches[0].ImagePath != "a.jpg" {
		t.Errorf("best match should be a.jpg, got %s", matches[0].ImagePath)
	}
	for _, m := range matches {
		if m.ImagePath == "far.jpg" {
			t.Error("face beyond tolerance must not match")
		}
	}
}

func TestHNSWIndexEmpty(t *testing.T) {
	idx := NewHNSWIndex()
	if err := idx.Build(nil); err != nil {
		t.Fatalf("Build(nil) failed: %v", err)
	}
	if idx.Count() != 0 {
		t.Errorf("empty index should have count 0")
	}
	if _, _, err := idx.Search([]float32{1}, 1); err == nil {
		t.Error("search on empty index should fail")
	}
}
