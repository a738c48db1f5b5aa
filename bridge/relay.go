package bridge

import (
	"sync"

	"github.com/x402wallet/walletbridge/logger"
	"github.com/x402wallet/walletbridge/metrics"
)

// Responder receives the single reply for one delivered request.
type Responder func(Envelope)

// Injector installs the page executor onto the page bus. Called at most
// once per relay; a relay lives for one page load and is re-created on
// navigation, which is what re-injects the executor.
type Injector func(bus *Bus)

// Relay is the tab-scoped middle hop. It forwards requests from the sender
// into the page bus and resolves pending responders when page replies come
// back, keyed by correlation id. Resolution is idempotent: a second reply
// for the same id is logged and ignored.
type Relay struct {
	bus      *Bus
	inject   Injector
	log      logger.Logger
	recorder metrics.Recorder

	mu       sync.Mutex
	injected bool
	pending  map[string]Responder
}

// NewRelay creates a relay over a page bus. The relay starts listening for
// replies immediately; injection of the executor is deferred until the
// first delivery.
func NewRelay(bus *Bus, inject Injector, log logger.Logger, recorder metrics.Recorder) *Relay {
	if log == nil {
		log = logger.Noop{}
	}
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	r := &Relay{
		bus:      bus,
		inject:   inject,
		log:      log,
		recorder: recorder,
		pending:  make(map[string]Responder),
	}
	bus.Subscribe(r.onBusMessage)
	return r
}

// Deliver posts one request into the page and registers its responder.
// The responder fires at most once.
func (r *Relay) Deliver(env Envelope, respond Responder) {
	r.ensureInjected()

	r.mu.Lock()
	r.pending[env.CorrelationID] = respond
	r.mu.Unlock()

	env.Target = TargetPage
	r.bus.Post(env)
}

// PendingCount reports requests still waiting on a page reply.
func (r *Relay) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Relay) ensureInjected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.injected || r.inject == nil {
		r.injected = true
		return
	}
	r.injected = true
	r.inject(r.bus)
}

func (r *Relay) onBusMessage(env Envelope) {
	if env.Target != TargetRelay {
		return
	}

	r.mu.Lock()
	respond, ok := r.pending[env.CorrelationID]
	if ok {
		delete(r.pending, env.CorrelationID)
	}
	r.mu.Unlock()

	if !ok {
		r.log.Warn("no pending responder for reply", map[string]any{
			"correlationId": env.CorrelationID,
		})
		r.recorder.IncCounter(metrics.EventBridgeDropped, nil)
		return
	}

	respond(env)
}
