package coord

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExclusiveSerializesGoroutines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	locker := New(WithRetryInterval(time.Millisecond))

	var (
		active  int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Exclusive(context.Background(), path)
			if err != nil {
				t.Errorf("Exclusive: %v", err)
				return
			}
			if atomic.AddInt32(&active, 1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			if err := release(); err != nil {
				t.Errorf("release: %v", err)
			}
		}()
	}
	wg.Wait()
	if overlap.Load() {
		t.Fatal("two exclusive holders overlapped")
	}
	if n := locker.held(path); n != 0 {
		t.Fatalf("expected path entry to be dropped, refs=%d", n)
	}
}

func TestSharedHoldersCoexist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	locker := New()
	first, err := locker.Shared(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer first()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	second, err := locker.Shared(ctx, path)
	if err != nil {
		t.Fatalf("second shared holder blocked: %v", err)
	}
	_ = second()
}

func TestExclusiveAcrossCoordinators(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	a := New(WithRetryInterval(time.Millisecond))
	b := New(WithRetryInterval(time.Millisecond))

	release, err := a.Exclusive(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := b.Exclusive(ctx, path); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second coordinator to be excluded, got %v", err)
	}
	if _, err := b.Shared(ctx, path); err == nil {
		t.Fatal("expected shared access to be excluded while exclusive is held")
	}

	if err := release(); err != nil {
		t.Fatal(err)
	}
	release, err = b.Exclusive(context.Background(), path)
	if err != nil {
		t.Fatalf("expected lock after release: %v", err)
	}
	_ = release()
}

func TestTimeoutReportsErrLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	locker := NewLocal(WithRetryInterval(time.Millisecond), WithTimeout(20*time.Millisecond))
	release, err := locker.Exclusive(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	_, err = locker.Exclusive(context.Background(), path)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if n := locker.held(path); n != 1 {
		t.Fatalf("failed waiter should drop its reference, refs=%d", n)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	locker := NewLocal()
	path := filepath.Join(t.TempDir(), "state.json")
	release, err := locker.Exclusive(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if err := release(); err != nil {
		t.Fatal(err)
	}
	if err := release(); err != nil {
		t.Fatal(err)
	}
	release, err = locker.Exclusive(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	_ = release()
}

// waitQueued blocks until n acquisitions are queued on path.
func waitQueued(t *testing.T, locker *Locker, path string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for locker.queued(path) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d queued acquisitions, have %d", n, locker.queued(path))
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWaitingWriterHoldsBackNewReaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	locker := NewLocal()

	reader, err := locker.Shared(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan Release, 1)
	go func() {
		release, err := locker.Exclusive(context.Background(), path)
		if err != nil {
			t.Errorf("Exclusive: %v", err)
			close(acquired)
			return
		}
		acquired <- release
	}()
	waitQueued(t, locker, path, 1)

	// A steady stream of readers must not overtake the queued writer.
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := locker.Shared(ctx, path)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("reader %d overtook the waiting writer: %v", i, err)
		}
	}

	if err := reader(); err != nil {
		t.Fatal(err)
	}
	select {
	case release := <-acquired:
		if release == nil {
			t.Fatal("writer failed to acquire")
		}
		_ = release()
	case <-time.After(2 * time.Second):
		t.Fatal("writer starved after readers drained")
	}
	if n := locker.held(path); n != 0 {
		t.Fatalf("expected path entry to be dropped, refs=%d", n)
	}
}

func TestAcquisitionsAreGrantedInArrivalOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	locker := NewLocal()
	holder, err := locker.Exclusive(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	waiters := []struct {
		name      string
		exclusive bool
	}{
		{"writer-1", true},
		{"reader-1", false},
		{"writer-2", true},
	}
	for i, w := range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquire := locker.Shared
			if w.exclusive {
				acquire = locker.Exclusive
			}
			release, err := acquire(context.Background(), path)
			if err != nil {
				t.Errorf("%s: %v", w.name, err)
				return
			}
			mu.Lock()
			order = append(order, w.name)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			_ = release()
		}()
		waitQueued(t, locker, path, i+1)
	}

	if err := holder(); err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	want := []string{"writer-1", "reader-1", "writer-2"}
	if len(order) != len(want) {
		t.Fatalf("unexpected order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestCancelledWriterUnblocksReadersBehindIt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	locker := NewLocal()
	reader, err := locker.Shared(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader()

	writerCtx, cancelWriter := context.WithCancel(context.Background())
	writerErr := make(chan error, 1)
	go func() {
		_, err := locker.Exclusive(writerCtx, path)
		writerErr <- err
	}()
	waitQueued(t, locker, path, 1)

	readerAcquired := make(chan Release, 1)
	go func() {
		release, err := locker.Shared(context.Background(), path)
		if err != nil {
			t.Errorf("Shared: %v", err)
			close(readerAcquired)
			return
		}
		readerAcquired <- release
	}()
	waitQueued(t, locker, path, 2)

	cancelWriter()
	if err := <-writerErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	select {
	case release := <-readerAcquired:
		if release == nil {
			t.Fatal("reader failed to acquire")
		}
		_ = release()
	case <-time.After(2 * time.Second):
		t.Fatal("reader stayed queued behind a cancelled writer")
	}
	if n := locker.queued(path); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
}
