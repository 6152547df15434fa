package render

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/fileutil"
	"reelsmith/internal/logging"
	"reelsmith/internal/media"
)

// Manifest is the document a FileSink publishes for each timeline.
type Manifest struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	OutputPath string         `json:"output_path"`
	Timeline   media.Timeline `json:"timeline"`
	FFmpegArgs []string       `json:"ffmpeg_args"`
}

// Option configures a FileSink.
type Option func(*FileSink)

// WithLogger sets the sink logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *FileSink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator replaces the uuid generator used for manifest names.
func WithIDGenerator(fn func() string) Option {
	return func(s *FileSink) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// FileSink publishes stitched timelines as JSON manifests in Dir. The
// manifest path is the artifact reference.
type FileSink struct {
	Dir    string
	logger *slog.Logger
	newID  func() string
	now    func() time.Time
}

// NewFileSink returns a sink writing into dir.
func NewFileSink(dir string, opts ...Option) *FileSink {
	s := &FileSink{
		Dir:    dir,
		logger: logging.NewNop(),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "render")
	return s
}

// Publish writes the manifest for timeline atomically and returns its path.
func (s *FileSink) Publish(ctx context.Context, timeline media.Timeline) (string, error) {
	dir := strings.TrimSpace(s.Dir)
	if dir == "" {
		return "", fmt.Errorf("render sink has no output directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	id := s.newID()
	outputPath := filepath.Join(dir, id+"."+string(timeline.Settings.Format))
	args, err := Plan(timeline, outputPath)
	if err != nil {
		return "", fmt.Errorf("compile render plan: %w", err)
	}
	manifest := Manifest{
		ID:         id,
		CreatedAt:  s.now().UTC(),
		OutputPath: outputPath,
		Timeline:   timeline,
		FFmpegArgs: args,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, id+".json")
	if err := fileutil.WriteFileAtomic(ctx, path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	s.logger.Info("render manifest published",
		logging.String("manifest", path),
		logging.String("timeline_id", timeline.ID),
		logging.Int("segments", len(timeline.Segments)),
		logging.Float64("duration_seconds", timeline.Duration),
	)
	return path, nil
}
