package replay

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/planarnexus/nexus-server/internal/game/state"
)

// DefaultMaxAhead is how far past the next expected sequence an action may
// arrive and still be held.
const DefaultMaxAhead = 256

// ErrTooFarAhead rejects an action whose sequence is beyond the window.
var ErrTooFarAhead = errors.New("action sequence too far ahead")

// Sequencer restores total order for actions arriving from several peers.
// Actions are released strictly by sequence number; early arrivals wait
// until the gap before them fills and duplicates are dropped.
type Sequencer struct {
	mu      sync.Mutex
	next     int64
	maxAhead int64
	pending  map[int64]state.GameAction
	logger  *zap.Logger
}

// NewSequencer creates a sequencer expecting firstSequence next.
func NewSequencer(firstSequence int64, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{
		next:     firstSequence,
		maxAhead: DefaultMaxAhead,
		pending:  make(map[int64]state.GameAction),
		logger:   logger,
	}
}

// SetMaxAhead bounds how far ahead of the next expected sequence actions
// are held. Values below one keep the current window.
func (s *Sequencer) SetMaxAhead(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxAhead = int64(n)
}

// Push accepts an action and returns every action now ready, in order.
// Duplicates are dropped silently; an action beyond the window is refused
// with ErrTooFarAhead and not held.
func (s *Sequencer) Push(action state.GameAction) ([]state.GameAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if action.Sequence > s.next+s.maxAhead {
		return nil, fmt.Errorf("%w: got %d, window ends at %d", ErrTooFarAhead, action.Sequence, s.next+s.maxAhead)
	}

	if action.Sequence < s.next {
		s.logger.Debug("dropping duplicate action",
			zap.String("action_id", action.ID),
			zap.Int64("sequence", action.Sequence),
			zap.Int64("expected", s.next),
		)
		return nil, nil
	}
	if _, held := s.pending[action.Sequence]; held {
		s.logger.Debug("dropping duplicate action", zap.Int64("sequence", action.Sequence))
		return nil, nil
	}
	s.pending[action.Sequence] = action

	var ready []state.GameAction
	for {
		next, ok := s.pending[s.next]
		if !ok {
			break
		}
		delete(s.pending, s.next)
		ready = append(ready, next)
		s.next++
	}
	return ready, nil
}

// Next returns the sequence number expected next.
func (s *Sequencer) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Pending returns how many actions are waiting on a gap.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Reset drops held actions and expects firstSequence next.
func (s *Sequencer) Reset(firstSequence int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = firstSequence
	s.pending = make(map[int64]state.GameAction)
}
