package output

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jshea2/NMS-DMX-App/internal/config"
	"github.com/jshea2/NMS-DMX-App/internal/live"
)

// newTestScheduler uses sACN with multicast off and no unicast destinations,
// so ticks render but never open a socket.
func newTestScheduler(t *testing.T) (*Scheduler, *live.Store) {
	t.Helper()

	cfg, err := config.Open(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("config.Open failed: %v", err)
	}
	err = cfg.Mutate(func(doc *config.Document) {
		doc.Network.Protocol = config.ProtocolSACN
		doc.Network.SACN.Multicast = false
		doc.Network.SACN.UnicastDestinations = nil
		doc.Network.OutputFPS = 60
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	liveStore := live.NewStore(cfg.Get())
	return NewScheduler(cfg, liveStore), liveStore
}

func TestSchedulerStartStop(t *testing.T) {
	s, _ := newTestScheduler(t)

	if s.Running() {
		t.Fatal("scheduler must not run before Start")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.Running() {
		t.Fatal("Running() = false after Start")
	}

	// Let a few ticks elapse.
	time.Sleep(60 * time.Millisecond)

	s.Stop()
	if s.Running() {
		t.Error("Running() = true after Stop")
	}

	// Stop on a stopped scheduler is a no-op.
	s.Stop()
}

func TestSchedulerStartWhileRunningRestarts(t *testing.T) {
	s, _ := newTestScheduler(t)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if err := s.Start(); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if !s.Running() {
		t.Error("scheduler must keep running across a restart")
	}
}

func TestStartStopsPreviousRunLoop(t *testing.T) {
	s, _ := newTestScheduler(t)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.mu.Lock()
	firstStop, firstDone := s.stop, s.done
	s.mu.Unlock()

	if err := s.Start(); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	defer s.Stop()

	// The first generation must have been shut down, not orphaned.
	select {
	case <-firstStop:
	default:
		t.Fatal("previous run loop's stop channel was never closed")
	}
	select {
	case <-firstDone:
	case <-time.After(2 * time.Second):
		t.Fatal("previous run loop is still alive")
	}
}

func TestConcurrentStartsNeverOrphanRunLoops(t *testing.T) {
	s, _ := newTestScheduler(t)

	var mu sync.Mutex
	var dones []chan struct{}
	record := func() {
		s.mu.Lock()
		done := s.done
		s.mu.Unlock()
		mu.Lock()
		dones = append(dones, done)
		mu.Unlock()
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	record()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Start(); err != nil {
				t.Errorf("concurrent Start failed: %v", err)
				return
			}
			record()
		}()
	}
	wg.Wait()
	s.Stop()

	if s.Running() {
		t.Error("Running() = true after Stop")
	}
	// Every run loop whose generation we observed must have exited; a loop
	// whose channels got overwritten by a racing Start would stay alive and
	// keep transmitting.
	for i, done := range dones {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("run loop %d still alive after Stop", i)
		}
	}
}

func TestSchedulerRestart(t *testing.T) {
	s, _ := newTestScheduler(t)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Restart()
	if !s.Running() {
		t.Error("Running() = false after Restart")
	}
	s.Stop()
}

func TestSchedulerStartRejectsUnknownProtocol(t *testing.T) {
	s, _ := newTestScheduler(t)
	// Bypass normalize by mutating to an unsupported value.
	cfg := s.cfg
	if err := cfg.Mutate(func(doc *config.Document) {
		doc.Network.Protocol = "osc"
	}); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("expected an error for an unsupported protocol")
	}
	if s.Running() {
		t.Error("a failed Start must leave the scheduler stopped")
	}
}

func TestSnapshotReflectsLiveState(t *testing.T) {
	s, liveStore := newTestScheduler(t)

	red := 100.0
	liveStore.Apply(live.Update{
		Fixtures: map[string]map[string]float64{
			"panel1": {"red": red},
		},
	})

	universes := s.Snapshot()
	u, ok := universes[1]
	if !ok {
		t.Fatal("universe 1 missing from snapshot")
	}
	if u[0] != 255 {
		t.Errorf("channel 1 = %d, want 255", u[0])
	}
}

func TestClampFPS(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 30},
		{5, 10},
		{10, 10},
		{30, 30},
		{60, 60},
		{90, 60},
	}
	for _, tt := range tests {
		if got := clampFPS(tt.in); got != tt.want {
			t.Errorf("clampFPS(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
