// Package output drives the blend engine at a fixed frame rate and hands the
// resulting universes to the configured protocol sender.
package output

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jshea2/NMS-DMX-App/internal/config"
	"github.com/jshea2/NMS-DMX-App/internal/dmx"
	"github.com/jshea2/NMS-DMX-App/internal/live"
	"github.com/jshea2/NMS-DMX-App/internal/protocol"
)

const (
	minFPS = 10
	maxFPS = 60

	// settleDelay separates stop and start on a restart so a config change
	// cannot race a tick against socket teardown.
	settleDelay = 100 * time.Millisecond
)

// Scheduler periodically renders the live state and transmits one packet per
// non-empty universe per tick. Sends are fire-and-forget: a failed send is
// logged and the next tick proceeds.
type Scheduler struct {
	cfg  *config.Store
	live *live.Store

	// lifecycle serializes Start/Stop/Restart end to end, so two concurrent
	// restarts can never overwrite each other's run loop and orphan one.
	lifecycle sync.Mutex

	mu      sync.Mutex
	sender  protocol.Sender
	stop    chan struct{}
	done    chan struct{}
	running bool

	// busy guards against a slow tick overlapping the next one.
	busy sync.Mutex
}

// NewScheduler builds a scheduler reading from the given stores. It only ever
// reads them; all mutation happens elsewhere.
func NewScheduler(cfg *config.Store, liveStore *live.Store) *Scheduler {
	return &Scheduler{cfg: cfg, live: liveStore}
}

// Start begins ticking at the configured frame rate. If already running, the
// scheduler is restarted with the current configuration.
func (s *Scheduler) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.halt()
	return s.launch()
}

// Stop cancels ticking and releases all open sockets.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.halt()
}

// Restart stops, waits out the settle delay, and starts again. Used after any
// configuration change that affects output.
func (s *Scheduler) Restart() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.halt()
	time.Sleep(settleDelay)
	if err := s.launch(); err != nil {
		log.Error().Err(err).Msg("Output engine restart failed")
	}
}

// launch must be called with s.lifecycle held and the scheduler stopped.
func (s *Scheduler) launch() error {
	doc := s.cfg.Get()
	sender, err := protocol.New(doc.Network)
	if err != nil {
		return err
	}

	fps := clampFPS(doc.Network.OutputFPS)
	interval := time.Second / time.Duration(fps)

	s.mu.Lock()
	s.sender = sender
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go s.run(interval, sender, stop, done)

	log.Info().Int("fps", fps).Str("protocol", doc.Network.Protocol).Msg("Output engine started")
	return nil
}

// halt must be called with s.lifecycle held. Waits for the run loop to exit
// before closing the sender, so no tick can race socket teardown.
func (s *Scheduler) halt() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	sender, done := s.sender, s.done
	s.sender = nil
	s.mu.Unlock()

	<-done
	if err := sender.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing output sender")
	}
	log.Info().Msg("Output engine stopped")
}

// Running reports whether the scheduler is currently ticking.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Snapshot renders the current output without transmitting, for diagnostics.
func (s *Scheduler) Snapshot() map[int]*dmx.Universe {
	return dmx.Render(s.live.Get(), s.cfg.Get())
}

func (s *Scheduler) run(interval time.Duration, sender protocol.Sender, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Skip the tick if the previous frame is still in flight.
			if !s.busy.TryLock() {
				continue
			}
			s.sendFrame(sender)
			s.busy.Unlock()
		}
	}
}

func (s *Scheduler) sendFrame(sender protocol.Sender) {
	universes := dmx.Render(s.live.Get(), s.cfg.Get())
	for universe, data := range universes {
		if err := sender.Send(universe, data); err != nil {
			log.Error().Err(err).Int("universe", universe).Msg("Frame send failed")
		}
	}
}

func clampFPS(fps int) int {
	if fps < minFPS {
		if fps == 0 {
			return 30
		}
		return minFPS
	}
	if fps > maxFPS {
		return maxFPS
	}
	return fps
}
