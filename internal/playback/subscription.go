package playback

const eventBufferSize = 16

// Subscription provides typed event channels for a subscriber. Sends are
// non-blocking: a subscriber that stops draining loses events instead of
// stalling the orchestrator.
type Subscription struct {
	PhaseChanged <-chan PhaseChange
	SongChanged  <-chan SongChange
	ModeChanged  <-chan ModeChange
	Errors       <-chan ErrorEvent
	Done         <-chan struct{}

	phaseCh chan PhaseChange
	songCh  chan SongChange
	modeCh  chan ModeChange
	errorCh chan ErrorEvent
	doneCh  chan struct{}
}

func newSubscription() *Subscription {
	s := &Subscription{
		phaseCh: make(chan PhaseChange, eventBufferSize),
		songCh:  make(chan SongChange, eventBufferSize),
		modeCh:  make(chan ModeChange, eventBufferSize),
		errorCh: make(chan ErrorEvent, eventBufferSize),
		doneCh:  make(chan struct{}),
	}
	s.PhaseChanged = s.phaseCh
	s.SongChanged = s.songCh
	s.ModeChanged = s.modeCh
	s.Errors = s.errorCh
	s.Done = s.doneCh
	return s
}

func (s *Subscription) close() {
	close(s.doneCh)
}

func (s *Subscription) sendPhase(e PhaseChange) {
	select {
	case s.phaseCh <- e:
	default:
	}
}

func (s *Subscription) sendSong(e SongChange) {
	select {
	case s.songCh <- e:
	default:
	}
}

func (s *Subscription) sendMode(e ModeChange) {
	select {
	case s.modeCh <- e:
	default:
	}
}

func (s *Subscription) sendError(e ErrorEvent) {
	select {
	case s.errorCh <- e:
	default:
	}
}
