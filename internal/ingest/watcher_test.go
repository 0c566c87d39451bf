package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/clinforge-labs/protex-core/internal/core/domain"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driving"
)

// recordingService captures submissions for inspection.
type recordingService struct {
	mu      sync.Mutex
	submits []submission
}

type submission struct {
	content []byte
	fields  []string
}

func (s *recordingService) Submit(_ context.Context, content []byte, fields []string, _ driving.SubmitOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits = append(s.submits, submission{content: content, fields: fields})
	return "job-1", nil
}

func (s *recordingService) Status(context.Context, string) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func (s *recordingService) Watch(string) (<-chan *domain.Job, func(), error) {
	return nil, nil, domain.ErrNotFound
}

func (s *recordingService) Cancel(context.Context, string) error { return nil }

func (s *recordingService) snapshot() []submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]submission(nil), s.submits...)
}

func startWatcher(t *testing.T, dir string, svc *recordingService) {
	t.Helper()
	w, err := NewWatcher(WatcherConfig{
		Dir:      dir,
		Service:  svc,
		Debounce: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the watch set a moment to register before files drop.
	time.Sleep(50 * time.Millisecond)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

func TestNewWatcher_Validation(t *testing.T) {
	svc := &recordingService{}
	if _, err := NewWatcher(WatcherConfig{Service: svc}); err == nil {
		t.Error("NewWatcher() without dir should fail")
	}
	if _, err := NewWatcher(WatcherConfig{Dir: t.TempDir()}); err == nil {
		t.Error("NewWatcher() without service should fail")
	}
	if _, err := NewWatcher(WatcherConfig{Dir: filepath.Join(t.TempDir(), "missing"), Service: svc}); err == nil {
		t.Error("NewWatcher() with missing dir should fail")
	}
}

func TestRunSubmitsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	svc := &recordingService{}
	startWatcher(t, dir, svc)

	content := []byte("Protocol ABC-123\nSponsor: Acme Pharma")
	if err := os.WriteFile(filepath.Join(dir, "protocol.txt"), content, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	waitFor(t, func() bool { return len(svc.snapshot()) == 1 })
	got := svc.snapshot()[0]
	if string(got.content) != string(content) {
		t.Errorf("submitted content = %q", got.content)
	}
	if len(got.fields) != len(domain.FieldNames()) {
		t.Errorf("fields = %v, want all built-ins", got.fields)
	}
}

func TestRunDebouncesWriteBurst(t *testing.T) {
	dir := t.TempDir()
	svc := &recordingService{}
	startWatcher(t, dir, svc)

	path := filepath.Join(dir, "protocol.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.WriteString("chunk of protocol text\n"); err != nil {
			t.Fatalf("write chunk: %v", err)
		}
		_ = f.Sync()
		time.Sleep(5 * time.Millisecond)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	waitFor(t, func() bool { return len(svc.snapshot()) >= 1 })
	// Let any stray timers fire, then confirm the burst collapsed.
	time.Sleep(100 * time.Millisecond)
	if n := len(svc.snapshot()); n != 1 {
		t.Errorf("submissions = %d, want 1", n)
	}
}

func TestRunIgnoresOtherExtensionsAndHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	svc := &recordingService{}
	startWatcher(t, dir, svc)

	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignore"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("ignore"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "real.txt"), []byte("Sponsor: Acme"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	waitFor(t, func() bool { return len(svc.snapshot()) == 1 })
	time.Sleep(100 * time.Millisecond)
	if n := len(svc.snapshot()); n != 1 {
		t.Errorf("submissions = %d, want only real.txt", n)
	}
}

func TestRunWatchesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	svc := &recordingService{}
	startWatcher(t, dir, svc)

	sub := filepath.Join(dir, "incoming")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// The new directory needs to join the watch set before the drop.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "nested.txt"), []byte("Sponsor: Acme"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	waitFor(t, func() bool { return len(svc.snapshot()) == 1 })
}
