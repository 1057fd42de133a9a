package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server   ServerConfig
	Encoder  EncoderConfig
	Emotion  EmotionConfig
	Gallery  GalleryConfig
	Match    MatchConfig
	Database DatabaseConfig
	Capture  CaptureConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins []string // CORS whitelist, empty allows any origin
}

type EncoderConfig struct {
	URL   string // face encoding sidecar, defaults to http://localhost:8000
	Model string // defaults to arcface
}

type EmotionConfig struct {
	Provider     string // deepface, openai, gemini or fallback
	DeepFaceURL  string // defaults to http://localhost:8001
	OpenAIToken  string
	GeminiAPIKey string
}

type GalleryConfig struct {
	Dir        string // local images folder, organized by emotion
	UploadsDir string // captured sessions and face images
}

type MatchConfig struct {
	Tolerance  float64 // max face distance accepted as the same person
	MaxResults int
}

type DatabaseConfig struct {
	URL             string // PostgreSQL connection URL, empty disables persistence
	MaxOpenConns    int    // Maximum open connections (default 25)
	MaxIdleConns    int    // Maximum idle connections (default 5)
	HNSWIndexPath   string // Path to persist the face index (optional)
	SessionTTLHours int    // Analysis session retention (default 24)
}

type CaptureConfig struct {
	DeviceID     string // webcam device, defaults to 0
	ModelDir     string // directory holding detection model files
	PollMillis   int    // detection cadence in milliseconds
	BackendURL   string // analysis API the capture client talks to
	OutputWidth  int
	OutputHeight int
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envString returns the env var value or the default when unset.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated env var into trimmed values.
func envList(key string) []string {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           envInt("SERVER_PORT", 8080),
			AllowedOrigins: envList("CORS_ALLOWED_ORIGINS"),
		},
		Encoder: EncoderConfig{
			URL:   envString("ENCODER_URL", "http://localhost:8000"),
			Model: envString("ENCODER_MODEL", "arcface"),
		},
		Emotion: EmotionConfig{
			Provider:     envString("EMOTION_PROVIDER", "fallback"),
			DeepFaceURL:  envString("DEEPFACE_URL", "http://localhost:8001"),
			OpenAIToken:  os.Getenv("OPENAI_TOKEN"),
			GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Gallery: GalleryConfig{
			Dir:        envString("GALLERY_DIR", "images"),
			UploadsDir: envString("UPLOADS_DIR", "uploads"),
		},
		Match: MatchConfig{
			Tolerance:  envFloat("MATCH_TOLERANCE", 0.6),
			MaxResults: envInt("MATCH_MAX_RESULTS", 10),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath:   os.Getenv("HNSW_INDEX_PATH"),
			SessionTTLHours: envInt("SESSION_TTL_HOURS", 24),
		},
		Capture: CaptureConfig{
			DeviceID:     envString("CAPTURE_DEVICE", "0"),
			ModelDir:     envString("CAPTURE_MODEL_DIR", "models"),
			PollMillis:   envInt("CAPTURE_POLL_MS", 100),
			BackendURL:   envString("BACKEND_URL", "http://localhost:8080"),
			OutputWidth:  envInt("CAPTURE_WIDTH", 1280),
			OutputHeight: envInt("CAPTURE_HEIGHT", 720),
		},
	}
}
