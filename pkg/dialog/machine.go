package dialog

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// EffectSink receives the effects of each applied transition. The CLI and
// tests implement it; nothing in this package renders anything.
type EffectSink interface {
	OnEffects(state State, eff Effects)
}

// Machine holds the current dialog state and applies events to it.
// It has a single writer; the mutex only guards reads from other goroutines
// (the poller callback and the UI run on different contexts).
type Machine struct {
	mu    sync.Mutex
	state State
	sink  EffectSink
}

// NewMachine returns a Machine in StateIdle.
func NewMachine(sink EffectSink) *Machine {
	return &Machine{state: StateIdle, sink: sink}
}

// State returns the current dialog state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Apply runs one transition. Re-entering the current state is a no-op and
// emits nothing.
func (m *Machine) Apply(ev Event) {
	m.mu.Lock()
	next, eff := Transition(m.state, ev)
	changed := eff.Changed
	if changed {
		log.Debug().Str("from", string(m.state)).Str("to", string(next)).
			Str("event", string(ev.Type)).Msg("dialog transition")
		m.state = next
	}
	sink := m.sink
	m.mu.Unlock()

	if changed && sink != nil {
		sink.OnEffects(next, eff)
	}
}
