package projectstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/coord"
	"reelsmith/internal/fileutil"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

const (
	stateFileName = "state.json"
	layoutVersion = "v1"
	projectsDir   = "projects"

	filePerm = 0o644
	dirPerm  = 0o755
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for store diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCoordinator replaces the default cross-process coordinator.
func WithCoordinator(c coord.Coordinator) Option {
	return func(s *Store) {
		if c != nil {
			s.coord = c
		}
	}
}

// WithDefaultGeneration sets the generation version given to appended prompts.
func WithDefaultGeneration(v GenerationVersion) Option {
	return func(s *Store) {
		if v != "" {
			s.generation = v
		}
	}
}

// WithIDGenerator replaces the uuid generator used for new prompt ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// Store reads and writes project state files below a root directory.
type Store struct {
	root       string
	coord      coord.Coordinator
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
	generation GenerationVersion
}

// New constructs a store rooted at root. The root is created lazily on the
// first write.
func New(root string, opts ...Option) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "projectstate", "open", "state root is empty", nil)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve state root: %w", err)
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}
	s := &Store{
		root:       abs,
		coord:      coord.New(),
		logger:     logging.NewNop(),
		now:        time.Now,
		newID:      uuid.NewString,
		generation: DefaultGeneration,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "projectstate")
	return s, nil
}

// Root returns the absolute state root.
func (s *Store) Root() string {
	return s.root
}

// DefaultGeneration is the version given to prompts created without one.
func (s *Store) DefaultGeneration() GenerationVersion {
	return s.generation
}

// ProjectDir returns the directory holding projectID's state.
func (s *Store) ProjectDir(projectID string) (string, error) {
	id, err := cleanProjectID(projectID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, layoutVersion, projectsDir, id), nil
}

// StatePath returns the state file path for projectID.
func (s *Store) StatePath(projectID string) (string, error) {
	_, path, err := s.resolve(projectID)
	return path, err
}

func (s *Store) resolve(projectID string) (string, string, error) {
	dir, err := s.ProjectDir(projectID)
	if err != nil {
		return "", "", err
	}
	return filepath.Base(dir), filepath.Join(dir, stateFileName), nil
}

// Save replaces the stored list for projectID with prompts.
func (s *Store) Save(ctx context.Context, projectID string, prompts []Prompt) error {
	projectID, path, err := s.resolve(projectID)
	if err != nil {
		return err
	}
	if err := validatePrompts(prompts); err != nil {
		return err
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	release, err := s.coord.Exclusive(ctx, path)
	if err != nil {
		return fmt.Errorf("save project %s: %w", projectID, err)
	}
	defer s.release(release, path)
	return s.write(ctx, path, projectID, prompts)
}

// Load returns the stored list for projectID. A project without state
// yields an empty list.
func (s *Store) Load(ctx context.Context, projectID string) ([]Prompt, error) {
	projectID, path, err := s.resolve(projectID)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return []Prompt{}, nil
	case err != nil:
		return nil, fmt.Errorf("stat project directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}
	release, err := s.coord.Shared(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	defer s.release(release, path)
	return s.read(path, projectID)
}

// Update runs fn on the stored list inside one exclusive region and saves
// the list it returns. When fn returns ErrNoChange nothing is written and
// Update returns nil.
func (s *Store) Update(ctx context.Context, projectID string, fn func([]Prompt) ([]Prompt, error)) error {
	projectID, path, err := s.resolve(projectID)
	if err != nil {
		return err
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	release, err := s.coord.Exclusive(ctx, path)
	if err != nil {
		return fmt.Errorf("update project %s: %w", projectID, err)
	}
	defer s.release(release, path)

	current, err := s.read(path, projectID)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := validatePrompts(next); err != nil {
		return err
	}
	return s.write(ctx, path, projectID, next)
}

// UpdateStatus moves promptID to status and refreshes its UpdatedAt. An
// unknown prompt id is a silent no-op.
func (s *Store) UpdateStatus(ctx context.Context, projectID, promptID string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidPrompt, status)
	}
	return s.Update(ctx, projectID, func(prompts []Prompt) ([]Prompt, error) {
		idx := indexOf(prompts, promptID)
		if idx < 0 {
			s.logger.Debug("status update for unknown prompt ignored",
				logging.String(logging.FieldProjectID, projectID),
				logging.String("prompt_id", promptID),
			)
			return nil, ErrNoChange
		}
		p := &prompts[idx]
		if !p.Status.CanTransition(status) {
			return nil, fmt.Errorf("%w: %s -> %s for prompt %s", ErrInvalidTransition, p.Status, status, promptID)
		}
		p.Status = status
		p.UpdatedAt = s.touch(p.UpdatedAt)
		return prompts, nil
	})
}

// Append adds a pending prompt at the end of the project's list.
func (s *Store) Append(ctx context.Context, projectID, text string, version GenerationVersion) (Prompt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Prompt{}, fmt.Errorf("%w: prompt text is empty", ErrInvalidPrompt)
	}
	if version == "" {
		version = s.generation
	}
	var added Prompt
	err := s.Update(ctx, projectID, func(prompts []Prompt) ([]Prompt, error) {
		now := s.now().UTC()
		added = Prompt{
			ID:                s.newID(),
			Index:             len(prompts),
			Text:              text,
			Status:            StatusPending,
			GenerationVersion: version,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return append(prompts, added), nil
	})
	if err != nil {
		return Prompt{}, err
	}
	return added, nil
}

// UpdateText replaces the text of promptID. It reports false when the
// prompt does not exist.
func (s *Store) UpdateText(ctx context.Context, projectID, promptID, text string) (Prompt, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Prompt{}, false, fmt.Errorf("%w: prompt text is empty", ErrInvalidPrompt)
	}
	var (
		updated Prompt
		found   bool
	)
	err := s.Update(ctx, projectID, func(prompts []Prompt) ([]Prompt, error) {
		idx := indexOf(prompts, promptID)
		if idx < 0 {
			return nil, ErrNoChange
		}
		found = true
		prompts[idx].Text = text
		prompts[idx].UpdatedAt = s.touch(prompts[idx].UpdatedAt)
		updated = prompts[idx]
		return prompts, nil
	})
	return updated, found, err
}

// Move places promptID at position to (clamped to the list bounds) and
// reindexes the list. It returns the prompts whose index changed, as
// written, and reports false when the prompt does not exist.
func (s *Store) Move(ctx context.Context, projectID, promptID string, to int) ([]Prompt, bool, error) {
	var (
		changed []Prompt
		found   bool
	)
	err := s.Update(ctx, projectID, func(prompts []Prompt) ([]Prompt, error) {
		from := indexOf(prompts, promptID)
		if from < 0 {
			return nil, ErrNoChange
		}
		found = true
		to = max(0, min(to, len(prompts)-1))
		if from == to {
			return nil, ErrNoChange
		}
		moved := prompts[from]
		rest := append(prompts[:from:from], prompts[from+1:]...)
		next := make([]Prompt, 0, len(prompts))
		next = append(next, rest[:to]...)
		next = append(next, moved)
		next = append(next, rest[to:]...)
		changed = s.reindex(next)
		return next, nil
	})
	if err != nil {
		return nil, found, err
	}
	return changed, found, nil
}

// Delete removes promptID and reindexes the remaining prompts. It returns
// the surviving prompts whose index changed and reports false when the
// prompt does not exist.
func (s *Store) Delete(ctx context.Context, projectID, promptID string) ([]Prompt, bool, error) {
	var (
		changed []Prompt
		found   bool
	)
	err := s.Update(ctx, projectID, func(prompts []Prompt) ([]Prompt, error) {
		idx := indexOf(prompts, promptID)
		if idx < 0 {
			return nil, ErrNoChange
		}
		found = true
		next := append(prompts[:idx:idx], prompts[idx+1:]...)
		changed = s.reindex(next)
		return next, nil
	})
	if err != nil {
		return nil, found, err
	}
	return changed, found, nil
}

// reindex assigns sequential indices and refreshes prompts whose position
// changed. It returns copies of the refreshed prompts.
func (s *Store) reindex(prompts []Prompt) []Prompt {
	var changed []Prompt
	for i := range prompts {
		if prompts[i].Index != i {
			prompts[i].Index = i
			prompts[i].UpdatedAt = s.touch(prompts[i].UpdatedAt)
			changed = append(changed, prompts[i])
		}
	}
	return changed
}

// touch returns the current time, never earlier than prev.
func (s *Store) touch(prev time.Time) time.Time {
	now := s.now().UTC()
	if now.Before(prev) {
		return prev.UTC()
	}
	return now
}

func (s *Store) read(path, projectID string) ([]Prompt, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Prompt{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read project state: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptState, path, err)
	}
	if doc.FormatVersion != formatVersion {
		return nil, fmt.Errorf("%w: %s: unsupported format version %d", ErrCorruptState, path, doc.FormatVersion)
	}
	if doc.ProjectID != projectID {
		return nil, fmt.Errorf("%w: %s belongs to project %q", ErrCorruptState, path, doc.ProjectID)
	}
	if err := validatePrompts(doc.Prompts); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptState, path, err)
	}
	if doc.Prompts == nil {
		doc.Prompts = []Prompt{}
	}
	return doc.Prompts, nil
}

func (s *Store) write(ctx context.Context, path, projectID string, prompts []Prompt) error {
	doc := document{
		FormatVersion: formatVersion,
		ProjectID:     projectID,
		Prompts:       normalizeTimes(prompts),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode project state: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(ctx, path, data, filePerm); err != nil {
		return fmt.Errorf("write project state: %w", err)
	}
	s.logger.Debug("project state saved",
		logging.String(logging.FieldProjectID, projectID),
		logging.Int("prompts", len(prompts)),
		logging.String("path", path),
	)
	return nil
}

func (s *Store) release(release coord.Release, path string) {
	if err := release(); err != nil {
		logging.WarnWithContext(s.logger, "failed to release project lock", "lock_release_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the stale lock file if no other process is running"),
			logging.String(logging.FieldImpact, "later writers may wait for the lock timeout"),
		)
	}
}

func indexOf(prompts []Prompt, id string) int {
	for i := range prompts {
		if prompts[i].ID == id {
			return i
		}
	}
	return -1
}

func cleanProjectID(projectID string) (string, error) {
	id := strings.TrimSpace(projectID)
	switch {
	case id == "", id == ".", id == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidProject, projectID)
	case strings.ContainsAny(id, `/\`+"\x00"), filepath.Base(id) != id:
		return "", fmt.Errorf("%w: %q must be a single path element", ErrInvalidProject, projectID)
	}
	return id, nil
}

// ensureDir creates dir and its parents, failing when any existing
// component is not a directory.
func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: %s", ErrNotDirectory, dir)
		}
		return nil
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		if errors.Is(err, syscall.ENOTDIR) || errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s: %w", ErrNotDirectory, dir, err)
		}
		return fmt.Errorf("create project directory: %w", err)
	}
	return nil
}
