package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/rivion/rivion/internal/database"
)

// EncodingRepository provides PostgreSQL-backed face encoding storage.
type EncodingRepository struct {
	pool *Pool
}

func NewEncodingRepository(pool *Pool) *EncodingRepository {
	return &EncodingRepository{pool: pool}
}

// Save upserts one face encoding, keyed by image path and face index.
func (r *EncodingRepository) Save(ctx context.Context, enc *database.StoredEncoding) error {
	query := `
		INSERT INTO face_encodings (image_path, face_index, encoding, bbox, det_score, model, dim)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (image_path, face_index) DO UPDATE SET
			encoding = EXCLUDED.encoding,
			bbox = EXCLUDED.bbox,
			det_score = EXCLUDED.det_score,
			model = EXCLUDED.model,
			dim = EXCLUDED.dim
	`

	_, err := r.pool.Exec(ctx, query,
		enc.ImagePath,
		enc.FaceIndex,
		pgvector.NewVector(enc.Encoding),
		pq.Array(enc.BBox),
		enc.DetScore,
		enc.Model,
		enc.Dim,
	)
	if err != nil {
		return fmt.Errorf("save encoding: %w", err)
	}
	return nil
}

const encodingColumns = `id, image_path, face_index, encoding, bbox, det_score, model, dim, created_at`

func scanEncodings(rows *sql.Rows) ([]database.StoredEncoding, error) {
	var encodings []database.StoredEncoding
	for rows.Next() {
		var enc database.StoredEncoding
		var vec pgvector.Vector
		var bbox pq.Float64Array
		if err := rows.Scan(
			&enc.ID,
			&enc.ImagePath,
			&enc.FaceIndex,
			&vec,
			&bbox,
			&enc.DetScore,
			&enc.Model,
			&enc.Dim,
			&enc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan encoding: %w", err)
		}
		enc.Encoding = vec.Slice()
		enc.BBox = []float64(bbox)
		encodings = append(encodings, enc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate encodings: %w", err)
	}
	return encodings, nil
}

// All returns every stored encoding, ordered by image path.
func (r *EncodingRepository) All(ctx context.Context) ([]database.StoredEncoding, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+encodingColumns+" FROM face_encodings ORDER BY image_path, face_index")
	if err != nil {
		return nil, fmt.Errorf("query encodings: %w", err)
	}
	defer rows.Close()

	return scanEncodings(rows)
}

// ByImagePath returns the encodings stored for one gallery image.
func (r *EncodingRepository) ByImagePath(ctx context.Context, imagePath string) ([]database.StoredEncoding, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+encodingColumns+" FROM face_encodings WHERE image_path = $1 ORDER BY face_index",
		imagePath)
	if err != nil {
		return nil, fmt.Errorf("query encodings by path: %w", err)
	}
	defer rows.Close()

	return scanEncodings(rows)
}

// FindSimilar returns the nearest stored encodings by cosine distance.
func (r *EncodingRepository) FindSimilar(ctx context.Context, encoding []float32, limit int) ([]database.StoredEncoding, []float64, error) {
	query := `
		SELECT ` + encodingColumns + `, encoding <=> $1::vector AS distance
		FROM face_encodings
		ORDER BY encoding <=> $1::vector
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(encoding), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar encodings: %w", err)
	}
	defer rows.Close()

	var encodings []database.StoredEncoding
	var distances []float64
	for rows.Next() {
		var enc database.StoredEncoding
		var vec pgvector.Vector
		var bbox pq.Float64Array
		var distance float64
		if err := rows.Scan(
			&enc.ID,
			&enc.ImagePath,
			&enc.FaceIndex,
			&vec,
			&bbox,
			&enc.DetScore,
			&enc.Model,
			&enc.Dim,
			&enc.CreatedAt,
			&distance,
		); err != nil {
			return nil, nil, fmt.Errorf("scan similar encoding: %w", err)
		}
		enc.Encoding = vec.Slice()
		enc.BBox = []float64(bbox)
		encodings = append(encodings, enc)
		distances = append(distances, distance)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate similar encodings: %w", err)
	}

	return encodings, distances, nil
}

// DeleteByImagePath removes all encodings for a gallery image.
func (r *EncodingRepository) DeleteByImagePath(ctx context.Context, imagePath string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM face_encodings WHERE image_path = $1", imagePath); err != nil {
		return fmt.Errorf("delete encodings: %w", err)
	}
	return nil
}

// Count returns the total number of stored encodings.
func (r *EncodingRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_encodings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count encodings: %w", err)
	}
	return count, nil
}
