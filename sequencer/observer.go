package sequencer

type observer[P any] struct {
	id uint64
	fn func(State[P])
}

// Subscription is returned by OnStateChange
type Subscription interface {
	Unsubscribe()
}

type subscription[P any, E StepExecutor[P]] struct {
	seq *Sequencer[P, E]
	id  uint64
}

func (s subscription[P, E]) Unsubscribe() {
	s.seq.mu.Lock()
	defer s.seq.mu.Unlock()
	for i, o := range s.seq.observers {
		if o.id == s.id {
			s.seq.observers = append(s.seq.observers[:i:i], s.seq.observers[i+1:]...)
			return
		}
	}
}

// OnStateChange registers fn to receive a snapshot after every change,
// including ticks. Observers run synchronously in registration order.
func (s *Sequencer[P, E]) OnStateChange(fn func(State[P])) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	s.observers = append(s.observers, &observer[P]{id: s.nextSubID, fn: fn})
	return subscription[P, E]{seq: s, id: s.nextSubID}
}

// publish must be called with mu held. Every observer gets its own copy so
// one observer cannot affect what the next one sees.
func (s *Sequencer[P, E]) publish() {
	for _, o := range s.observers {
		o.fn(s.state.Clone())
	}
}
