package coord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	// LockSuffix is appended to a data path to name its lock file.
	LockSuffix = ".lock"

	defaultRetryInterval = 10 * time.Millisecond
)

// ErrLockTimeout reports that a lock could not be acquired before the
// coordinator's timeout elapsed.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Release gives up a held region. Calling it more than once is harmless.
type Release func() error

// Coordinator grants exclusive or shared access to the region guarding a path.
type Coordinator interface {
	Exclusive(ctx context.Context, path string) (Release, error)
	Shared(ctx context.Context, path string) (Release, error)
}

// Option configures a Locker.
type Option func(*Locker)

// WithRetryInterval sets how often a contended lock file is retried.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// WithTimeout bounds every acquisition; zero waits until ctx is done.
func WithTimeout(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// Locker coordinates access per path. Within a process it queues
// acquisitions per path and grants them in arrival order, so a waiting
// writer holds back readers that arrive after it. When cross-process
// locking is enabled it additionally takes an advisory flock on
// "<path>.lock". The in-process lock is always acquired first and released
// last.
type Locker struct {
	retry        time.Duration
	timeout      time.Duration
	crossProcess bool

	mu    sync.Mutex
	paths map[string]*pathLock
}

// pathLock is the in-process state of one path. Every field is guarded by
// Locker.mu.
type pathLock struct {
	refs    int
	readers int
	writer  bool
	waiting []*waiter
}

type waiter struct {
	exclusive bool
	granted   bool
	ready     chan struct{}
}

func (p *pathLock) free(exclusive bool) bool {
	if exclusive {
		return !p.writer && p.readers == 0
	}
	return !p.writer
}

func (p *pathLock) take(exclusive bool) {
	if exclusive {
		p.writer = true
	} else {
		p.readers++
	}
}

func (p *pathLock) put(exclusive bool) {
	if exclusive {
		p.writer = false
	} else {
		p.readers--
	}
	p.wake()
}

// wake grants queued waiters from the head until one is incompatible with
// the current holders.
func (p *pathLock) wake() {
	for len(p.waiting) > 0 {
		w := p.waiting[0]
		if !p.free(w.exclusive) {
			return
		}
		p.take(w.exclusive)
		w.granted = true
		close(w.ready)
		p.waiting[0] = nil
		p.waiting = p.waiting[1:]
	}
}

func (p *pathLock) remove(target *waiter) {
	for i, w := range p.waiting {
		if w == target {
			p.waiting = append(p.waiting[:i], p.waiting[i+1:]...)
			return
		}
	}
}

// New returns a Locker that coordinates both goroutines and processes.
func New(opts ...Option) *Locker {
	return newLocker(true, opts...)
}

// NewLocal returns a Locker that only coordinates goroutines of this process.
func NewLocal(opts ...Option) *Locker {
	return newLocker(false, opts...)
}

func newLocker(crossProcess bool, opts ...Option) *Locker {
	l := &Locker{
		retry:        defaultRetryInterval,
		crossProcess: crossProcess,
		paths:        make(map[string]*pathLock),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Exclusive blocks until no other holder of path remains.
func (l *Locker) Exclusive(ctx context.Context, path string) (Release, error) {
	return l.acquire(ctx, path, true)
}

// Shared blocks until no exclusive holder of path remains.
func (l *Locker) Shared(ctx context.Context, path string) (Release, error) {
	return l.acquire(ctx, path, false)
}

func (l *Locker) acquire(ctx context.Context, path string, exclusive bool) (Release, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	unlock, err := l.lockLocal(ctx, path, exclusive)
	if err != nil {
		return nil, l.wrap(path, err)
	}

	var fileLock *flock.Flock
	if l.crossProcess {
		fileLock = flock.New(path + LockSuffix)
		var (
			ok  bool
			err error
		)
		if exclusive {
			ok, err = fileLock.TryLockContext(ctx, l.retry)
		} else {
			ok, err = fileLock.TryRLockContext(ctx, l.retry)
		}
		if err == nil && !ok {
			err = ctx.Err()
		}
		if err != nil {
			_ = fileLock.Close()
			unlock()
			return nil, l.wrap(path, err)
		}
	}

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			if fileLock != nil {
				if unlockErr := fileLock.Unlock(); unlockErr != nil {
					err = fmt.Errorf("unlock %s: %w", path+LockSuffix, unlockErr)
				}
				_ = fileLock.Close()
			}
			unlock()
		})
		return err
	}, nil
}

// lockLocal takes the in-process side of path, queueing behind earlier
// waiters. A waiter whose ctx ends is dropped from the queue, or released
// if it was granted at the same moment.
func (l *Locker) lockLocal(ctx context.Context, path string, exclusive bool) (func(), error) {
	l.mu.Lock()
	entry, ok := l.paths[path]
	if !ok {
		entry = &pathLock{}
		l.paths[path] = entry
	}
	entry.refs++
	unlock := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		entry.put(exclusive)
		l.unrefLocked(path, entry)
	}
	if len(entry.waiting) == 0 && entry.free(exclusive) {
		entry.take(exclusive)
		l.mu.Unlock()
		return unlock, nil
	}
	w := &waiter{exclusive: exclusive, ready: make(chan struct{})}
	entry.waiting = append(entry.waiting, w)
	l.mu.Unlock()

	select {
	case <-w.ready:
		return unlock, nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w.granted {
		entry.put(exclusive)
	} else {
		entry.remove(w)
		entry.wake()
	}
	l.unrefLocked(path, entry)
	return nil, ctx.Err()
}

func (l *Locker) unrefLocked(path string, entry *pathLock) {
	entry.refs--
	if entry.refs <= 0 && l.paths[path] == entry {
		delete(l.paths, path)
	}
}

func (l *Locker) wrap(path string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && l.timeout > 0 {
		return fmt.Errorf("%w: %s after %s: %w", ErrLockTimeout, path, l.timeout, err)
	}
	return fmt.Errorf("acquire lock %s: %w", path, err)
}

// queued reports how many acquisitions are waiting on path.
func (l *Locker) queued(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.paths[path]; ok {
		return len(entry.waiting)
	}
	return 0
}

// held reports how many acquisitions or waiters reference path.
func (l *Locker) held(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.paths[path]; ok {
		return entry.refs
	}
	return 0
}
