package match

import "sort"

const (
	// DefaultTolerance is the distance threshold for accepting a match.
	DefaultTolerance = 0.6
	// DefaultMaxResults caps the number of matched images returned.
	DefaultMaxResults = 10
)

// IndexedFace is one face from a gallery image, keyed by the image path.
type IndexedFace struct {
	ImagePath string
	FaceIndex int
	Encoding  []float32
}

// Match is a gallery image accepted as the same person as the query.
type Match struct {
	ImagePath  string
	Similarity float64
	Distance   float64
}

// Options tune a FindMatches call. Zero values fall back to defaults.
type Options struct {
	Tolerance  float64
	MaxResults int
	Distance   DistanceFunc
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.Distance == nil {
		o.Distance = EuclideanDistance
	}
	return o
}

// FindMatches compares the query encoding with every indexed face and
// returns accepted matches sorted by similarity, deduplicated by image path
// (best face per image wins), capped at MaxResults.
func FindMatches(query []float32, faces []IndexedFace, opts Options) []Match {
	opts = opts.withDefaults()

	var matches []Match
	for _, face := range faces {
		distance := opts.Distance(query, face.Encoding)
		if distance <= opts.Tolerance {
			matches = append(matches, Match{
				ImagePath:  face.ImagePath,
				Similarity: 1.0 - distance,
				Distance:   distance,
			})
		}
	}

	return selectMatches(matches, opts)
}

// selectMatches sorts candidates by similarity, keeps the best face per
// image path and caps the result at MaxResults.
func selectMatches(matches []Match, opts Options) []Match {
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	seen := make(map[string]struct{})
	unique := matches[:0]
	for _, m := range matches {
		if _, ok := seen[m.ImagePath]; ok {
			continue
		}
		seen[m.ImagePath] = struct{}{}
		unique = append(unique, m)
		if len(unique) >= opts.MaxResults {
			break
		}
	}

	return unique
}
