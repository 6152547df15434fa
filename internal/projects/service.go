package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"reelsmith/internal/config"
	"reelsmith/internal/coord"
	"reelsmith/internal/logging"
	"reelsmith/internal/outbox"
	"reelsmith/internal/projectstate"
	"reelsmith/internal/services"
)

// Outbox accepts sync entries for remote mirroring.
type Outbox interface {
	Enqueue(ctx context.Context, entry outbox.Entry) (*outbox.Entry, error)
}

// Option configures a Service.
type Option func(*Service)

// WithOutbox enables sync entries for every mutation.
func WithOutbox(ob Outbox) Option {
	return func(s *Service) { s.outbox = ob }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service is the caller-facing API for editing a project's prompts. Every
// mutation is persisted first; the sync entry is enqueued afterwards and an
// enqueue failure never fails the mutation.
type Service struct {
	store  *projectstate.Store
	outbox Outbox
	logger *slog.Logger
}

// New wraps store.
func New(store *projectstate.Store, opts ...Option) *Service {
	s := &Service{store: store, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "projects")
	return s
}

// Open builds the state store and outbox described by cfg. The returned
// close function releases the outbox database.
func Open(cfg *config.Config, logger *slog.Logger) (*Service, func() error, error) {
	if cfg == nil {
		return nil, nil, services.Wrap(services.ErrConfiguration, "projects", "open", "config is nil", nil)
	}
	store, err := projectstate.New(cfg.Paths.StateDir,
		projectstate.WithLogger(logger),
		projectstate.WithCoordinator(coord.New(
			coord.WithRetryInterval(cfg.LockRetryInterval()),
			coord.WithTimeout(cfg.LockTimeout()),
		)),
		projectstate.WithDefaultGeneration(projectstate.GenerationVersion(cfg.Generation.DefaultVersion)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("open project state: %w", err)
	}
	opts := []Option{WithLogger(logger)}
	closeFn := func() error { return nil }
	if cfg.Paths.OutboxPath != "" {
		ob, err := outbox.Open(cfg.Paths.OutboxPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open outbox: %w", err)
		}
		opts = append(opts, WithOutbox(ob))
		closeFn = ob.Close
	}
	return New(store, opts...), closeFn, nil
}

// Store exposes the underlying state store.
func (s *Service) Store() *projectstate.Store {
	return s.store
}

// List returns the project's prompts in order.
func (s *Service) List(ctx context.Context, projectID string) ([]projectstate.Prompt, error) {
	return s.store.Load(ctx, projectID)
}

// Add appends a prompt.
func (s *Service) Add(ctx context.Context, projectID, text string) (projectstate.Prompt, error) {
	prompt, err := s.store.Append(ctx, projectID, text, "")
	if err != nil {
		return projectstate.Prompt{}, err
	}
	s.enqueueUpsert(ctx, projectID, prompt)
	return prompt, nil
}

// Edit replaces a prompt's text. It reports false for an unknown prompt.
func (s *Service) Edit(ctx context.Context, projectID, promptID, text string) (projectstate.Prompt, bool, error) {
	prompt, found, err := s.store.UpdateText(ctx, projectID, promptID, text)
	if err != nil || !found {
		return prompt, found, err
	}
	s.enqueueUpsert(ctx, projectID, prompt)
	return prompt, true, nil
}

// Move reorders a prompt. Every prompt whose index changed is re-synced.
func (s *Service) Move(ctx context.Context, projectID, promptID string, to int) (bool, error) {
	changed, found, err := s.store.Move(ctx, projectID, promptID, to)
	if err != nil || !found {
		return found, err
	}
	for _, p := range changed {
		s.enqueueUpsert(ctx, projectID, p)
	}
	return true, nil
}

// Delete removes a prompt and re-syncs the prompts that shifted.
func (s *Service) Delete(ctx context.Context, projectID, promptID string) (bool, error) {
	changed, found, err := s.store.Delete(ctx, projectID, promptID)
	if err != nil || !found {
		return found, err
	}
	s.enqueue(ctx, outbox.Entry{ProjectID: projectID, PromptID: promptID, Operation: outbox.OpDelete})
	for _, p := range changed {
		s.enqueueUpsert(ctx, projectID, p)
	}
	return true, nil
}

// SetStatus moves a prompt through its lifecycle. Unknown prompts are
// ignored.
func (s *Service) SetStatus(ctx context.Context, projectID, promptID string, status projectstate.Status) error {
	if err := s.store.UpdateStatus(ctx, projectID, promptID, status); err != nil {
		return err
	}
	prompts, err := s.store.Load(ctx, projectID)
	if err != nil {
		s.warnSync(projectID, promptID, err)
		return nil
	}
	for _, p := range prompts {
		if p.ID == promptID {
			s.enqueueUpsert(ctx, projectID, p)
			break
		}
	}
	return nil
}

// Import appends legacy prompt texts to the project as pending prompts.
func (s *Service) Import(ctx context.Context, projectID string, texts []string) ([]projectstate.Prompt, error) {
	var added []projectstate.Prompt
	err := s.store.Update(ctx, projectID, func(prompts []projectstate.Prompt) ([]projectstate.Prompt, error) {
		if len(texts) == 0 {
			return nil, projectstate.ErrNoChange
		}
		added = projectstate.MigrateLegacy(texts, s.store.DefaultGeneration())
		for i := range added {
			added[i].Index = len(prompts) + i
		}
		return append(prompts, added...), nil
	})
	if err != nil {
		return nil, err
	}
	for _, p := range added {
		s.enqueueUpsert(ctx, projectID, p)
	}
	return added, nil
}

func (s *Service) enqueueUpsert(ctx context.Context, projectID string, prompt projectstate.Prompt) {
	payload, err := json.Marshal(prompt)
	if err != nil {
		s.warnSync(projectID, prompt.ID, err)
		return
	}
	s.enqueue(ctx, outbox.Entry{
		ProjectID: projectID,
		PromptID:  prompt.ID,
		Operation: outbox.OpUpsert,
		Payload:   string(payload),
	})
}

func (s *Service) enqueue(ctx context.Context, entry outbox.Entry) {
	if s.outbox == nil {
		return
	}
	if _, err := s.outbox.Enqueue(ctx, entry); err != nil {
		s.warnSync(entry.ProjectID, entry.PromptID, err)
	}
}

func (s *Service) warnSync(projectID, promptID string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	logging.WarnWithContext(s.logger, "sync enqueue failed", "outbox_enqueue_failed",
		logging.String(logging.FieldProjectID, projectID),
		logging.String("prompt_id", promptID),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "run 'reelsmith outbox stats' and check the outbox database"),
		logging.String(logging.FieldImpact, "local change saved but not yet queued for remote sync"),
	)
}
