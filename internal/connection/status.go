package connection

import "sync"

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateAuthenticated
	StateFetchingReferenceData
	StateSubscribingPublic
	StateSubscribingPrivate
	StateReady
)

var stateNames = [...]string{
	StateDisconnected:          "disconnected",
	StateConnecting:            "connecting",
	StateConnected:             "connected",
	StateAuthenticating:        "authenticating",
	StateAuthenticated:         "authenticated",
	StateFetchingReferenceData: "fetching_reference_data",
	StateSubscribingPublic:     "subscribing_public",
	StateSubscribingPrivate:    "subscribing_private",
	StateReady:                 "ready",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Status is the connection's transient bootstrap state. Everything except
// the state itself is cleared on reconnect.
type Status struct {
	State            State
	Authenticated    bool
	InstrumentsKnown bool
	PublicBatches    int
	PrivateBatches   int
	PublicConfirmed  int
	PrivateConfirmed int
}

// SubscriptionsComplete reports whether every subscribe batch sent since the
// last reset has been confirmed.
func (s Status) SubscriptionsComplete() bool {
	if s.PublicBatches == 0 || s.PrivateBatches == 0 {
		return false
	}
	return s.PublicConfirmed >= s.PublicBatches && s.PrivateConfirmed >= s.PrivateBatches
}

// statusBox broadcasts every change by closing and replacing a channel.
type statusBox struct {
	mu      sync.Mutex
	status  Status
	changed chan struct{}
}

func newStatusBox() *statusBox {
	return &statusBox{changed: make(chan struct{})}
}

func (b *statusBox) load() (Status, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status, b.changed
}

func (b *statusBox) update(fn func(*Status)) (before, after Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	before = b.status
	fn(&b.status)
	close(b.changed)
	b.changed = make(chan struct{})
	return before, b.status
}
