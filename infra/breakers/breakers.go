package breakers

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	cb "github.com/sony/gobreaker"
)

// ErrOpen is returned without calling through while the breaker is open
var ErrOpen = cb.ErrOpenState

// Settings tunes when a breaker trips and how long it stays open
type Settings struct {
	FailureThreshold int           // consecutive failures that trip the breaker
	OpenTimeout      time.Duration // time spent open before a half-open probe
	OnStateChange    func(name string, from, to cb.State)
}

// Breaker guards a best-effort sink (report cache, decision journal)
type Breaker struct{ cb *cb.CircuitBreaker }

func New(name string, s Settings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 3
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 60 * time.Second
	}

	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = s.OpenTimeout
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= uint32(s.FailureThreshold) {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	st.OnStateChange = func(name string, from, to cb.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit state changed")
		if s.OnStateChange != nil {
			s.OnStateChange(name, from, to)
		}
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

// Do runs fn through the breaker
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) { return nil, fn() })
	return err
}

func (b *Breaker) Execute(fn func() (any, error)) (any, error) { return b.cb.Execute(fn) }

func (b *Breaker) Name() string { return b.cb.Name() }

func (b *Breaker) State() cb.State { return b.cb.State() }

// IsOpen reports whether err was a short-circuit rather than a sink failure
func IsOpen(err error) bool {
	return errors.Is(err, cb.ErrOpenState) || errors.Is(err, cb.ErrTooManyRequests)
}
