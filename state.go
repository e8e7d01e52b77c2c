package weffo

import (
	"time"

	"github.com/jacoelho/weffo/errors"
)

// State is a point in the life of one pipeline request.
type State uint8

const (
	StateInit State = iota
	StateMetaApplied
	StateIntermediateParsed
	StateTemplateCompiled
	StateTemplateCached
	StateModelApplied
	StateOutputWritten
	StateFailed
)

var stateNames = [...]string{
	StateInit:               "INIT",
	StateMetaApplied:        "META_APPLIED",
	StateIntermediateParsed: "INTERMEDIATE_PARSED",
	StateTemplateCompiled:   "TEMPLATE_COMPILED",
	StateTemplateCached:     "TEMPLATE_CACHED",
	StateModelApplied:       "MODEL_APPLIED",
	StateOutputWritten:      "OUTPUT_WRITTEN",
	StateFailed:             "FAILED",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateOutputWritten || s == StateFailed
}

// Transition records one step of a request.
type Transition struct {
	// Request numbers requests per pipeline, starting at 1.
	Request uint64
	From    State
	To      State
	// Stage is set on failures.
	Stage errors.Stage
	// Elapsed is the time spent since the previous transition.
	Elapsed time.Duration
	Err     error
}

// Observer is told about every transition. Observers run synchronously on
// the calling goroutine and must be safe for concurrent use.
type Observer interface {
	Observe(Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Transition)

// Observe calls f.
func (f ObserverFunc) Observe(t Transition) { f(t) }

// Observers fans transitions out to each non-nil observer in order.
func Observers(obs ...Observer) Observer {
	return ObserverFunc(func(t Transition) {
		for _, o := range obs {
			if o != nil {
				o.Observe(t)
			}
		}
	})
}

type tracker struct {
	id    uint64
	state State
	last  time.Time
	obs   Observer
}

func (p *Pipeline) track() *tracker {
	return &tracker{id: p.requests.Add(1), state: StateInit, last: time.Now(), obs: p.observer}
}

func (t *tracker) advance(to State) {
	t.emit(Transition{To: to})
}

// fail moves to FAILED and returns err.
func (t *tracker) fail(err error) error {
	t.emit(Transition{To: StateFailed, Stage: errors.StageOf(err), Err: err})
	return err
}

func (t *tracker) emit(tr Transition) {
	if t.state.Terminal() {
		return
	}
	now := time.Now()
	tr.Request, tr.From, tr.Elapsed = t.id, t.state, now.Sub(t.last)
	t.state, t.last = tr.To, now
	if t.obs != nil {
		t.obs.Observe(tr)
	}
}
