package match

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWMaxNeighbors is the M parameter of the graph.
const HNSWMaxNeighbors = 16

// IndexMetadata validates a cached index against the current gallery.
type IndexMetadata struct {
	FaceCount int       `json:"face_count"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"` // For future compatibility
}

const indexMetadataVersion = 1

// HNSWIndex wraps an HNSW graph for approximate nearest-neighbor search
// over gallery face encodings. Brute-force FindMatches stays correct for
// small galleries; the index keeps lookups fast once the gallery grows.
type HNSWIndex struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[int64]
	idToFace map[int64]*IndexedFace
	faces    []IndexedFace
}

// NewHNSWIndex creates a new empty index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToFace: make(map[int64]*IndexedFace),
	}
}

// Build replaces the index contents with the given faces.
func (h *HNSWIndex) Build(faces []IndexedFace) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buildLocked(faces)
}

func (h *HNSWIndex) buildLocked(faces []IndexedFace) error {
	if len(faces) == 0 {
		h.graph = nil
		h.faces = nil
		h.idToFace = make(map[int64]*IndexedFace)
		return nil
	}

	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance

	h.faces = faces
	h.idToFace = make(map[int64]*IndexedFace, len(faces))

	for i := range faces {
		face := &faces[i]
		if len(face.Encoding) == 0 {
			continue
		}
		id := int64(i)
		g.Add(hnsw.MakeNode(id, face.Encoding))
		h.idToFace[id] = face
	}

	h.graph = g
	return nil
}

// Search returns up to k nearest gallery faces with their cosine distances.
func (h *HNSWIndex) Search(query []float32, k int) ([]*IndexedFace, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, errors.New("index is empty")
	}

	neighbors := h.graph.Search(query, k)
	faces := make([]*IndexedFace, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		face, ok := h.idToFace[n.Key]
		if !ok {
			continue
		}
		faces = append(faces, face)
		distances = append(distances, CosineDistance(query, face.Encoding))
	}
	return faces, distances, nil
}

// FindMatches runs an approximate nearest-neighbor search and applies the
// same tolerance, dedupe and cap rules as the brute-force FindMatches.
// Returns nil when the index is empty.
func (h *HNSWIndex) FindMatches(query []float32, opts Options) []Match {
	opts = opts.withDefaults()

	// Oversample so dedupe by image path still fills MaxResults.
	faces, distances, err := h.Search(query, opts.MaxResults*4)
	if err != nil {
		return nil
	}

	var matches []Match
	for i, face := range faces {
		if distances[i] <= opts.Tolerance {
			matches = append(matches, Match{
				ImagePath:  face.ImagePath,
				Similarity: 1.0 - distances[i],
				Distance:   distances[i],
			})
		}
	}

	return selectMatches(matches, opts)
}

// Count returns the number of indexed faces.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToFace)
}

// Save persists the indexed faces (gob) plus metadata (JSON) so the graph
// can be rebuilt without re-encoding the gallery.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(h.faces); err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}

	meta := IndexMetadata{
		FaceCount: len(h.idToFace),
		BuildTime: time.Now(),
		Version:   indexMetadataVersion,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding index metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta.json", metaBytes, 0o644); err != nil {
		return fmt.Errorf("writing index metadata: %w", err)
	}
	return nil
}

// Load restores a persisted index and rebuilds the graph.
func (h *HNSWIndex) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()

	var faces []IndexedFace
	if err := gob.NewDecoder(f).Decode(&faces); err != nil {
		return fmt.Errorf("decoding index: %w", err)
	}

	metaBytes, err := os.ReadFile(path + ".meta.json")
	if err == nil {
		var meta IndexMetadata
		if err := json.Unmarshal(metaBytes, &meta); err == nil && meta.Version != indexMetadataVersion {
			return fmt.Errorf("index version %d not supported", meta.Version)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buildLocked(faces)
}
