package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ryanbastic/go-pixelwall/internal/circuitbreaker"
)

// Delivery outcomes reported to a DeliveryObserver.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeRPCError    = "rpc_error"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeDropped     = "dropped"
)

// DeliveryObserver is told the outcome of every plugin delivery.
type DeliveryObserver interface {
	ObserveDelivery(plugin, outcome string)
}

// DefaultQueueSize bounds the notifications waiting for one plugin.
const DefaultQueueSize = 256

// Notifier forwards bus events to subscribed plugins via JSON-RPC. Each
// plugin has its own queue and worker, so deliveries to one plugin arrive
// in publish order and a slow or dead plugin never holds up the ledger or
// the other plugins. Seq counts per plugin: a gap means that plugin really
// lost a notification.
type Notifier struct {
	registry  *PluginRegistry
	rpcClient *RPCClient
	breakers  *circuitbreaker.Set
	observer  DeliveryObserver
	logger    *slog.Logger
	queueSize int

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	queues map[uuid.UUID]*pluginQueue
	wg     sync.WaitGroup
}

type pluginQueue struct {
	name     string
	endpoint string
	seq      uint64
	ch       chan GridChangedParams
}

// NewNotifier creates a Notifier. breakers and observer may be nil.
func NewNotifier(registry *PluginRegistry, rpcClient *RPCClient, breakers *circuitbreaker.Set, observer DeliveryObserver, logger *slog.Logger) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		registry:  registry,
		rpcClient: rpcClient,
		breakers:  breakers,
		observer:  observer,
		logger:    logger,
		queueSize: DefaultQueueSize,
		ctx:       ctx,
		cancel:    cancel,
		queues:    make(map[uuid.UUID]*pluginQueue),
	}
}

// Attach subscribes the notifier to bus and returns the unsubscribe handle.
func (n *Notifier) Attach(bus *Bus) (unsubscribe func()) {
	return bus.Subscribe(n.Notify)
}

// Notify queues e for every active plugin subscribed to its kind. A full
// queue drops the notification; the plugin sees the gap in seq.
func (n *Notifier) Notify(e Event) {
	plugins := n.registry.ForKind(e.Kind())
	if len(plugins) == 0 {
		return
	}
	now := time.Now().UTC()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	for _, p := range plugins {
		q := n.queueLocked(p)
		q.seq++
		params := GridChangedParams{Seq: q.seq, Kind: e.Kind(), Event: e, EmittedAt: now}
		select {
		case q.ch <- params:
		default:
			n.logger.Warn("plugin queue full, dropping notification", "plugin", q.name, "seq", q.seq)
			if n.observer != nil {
				n.observer.ObserveDelivery(q.name, OutcomeDropped)
			}
		}
	}
}

// queueLocked returns the queue for p, starting its worker on first use.
func (n *Notifier) queueLocked(p *Plugin) *pluginQueue {
	q, ok := n.queues[p.ID]
	if ok {
		return q
	}
	q = &pluginQueue{name: p.Name, endpoint: p.Endpoint, ch: make(chan GridChangedParams, n.queueSize)}
	n.queues[p.ID] = q
	n.wg.Add(1)
	go n.drain(q)
	return q
}

func (n *Notifier) drain(q *pluginQueue) {
	defer n.wg.Done()
	for params := range q.ch {
		n.deliver(q.endpoint, q.name, params)
	}
}

func (n *Notifier) deliver(endpoint, name string, params GridChangedParams) {
	call := func() error {
		return n.rpcClient.Notify(n.ctx, endpoint, MethodGridChanged, params)
	}

	var err error
	if n.breakers != nil {
		err = n.breakers.Execute(endpoint, call)
	} else {
		err = call()
	}

	var rpcErr *JSONRPCError
	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		outcome = OutcomeCircuitOpen
		n.logger.Warn("plugin circuit open, dropping notification", "plugin", name, "endpoint", endpoint, "seq", params.Seq)
	case errors.As(err, &rpcErr):
		outcome = OutcomeRPCError
		n.logger.Error("plugin rpc returned error", "plugin", name, "endpoint", endpoint, "error", err)
	default:
		if n.ctx.Err() != nil {
			return
		}
		outcome = OutcomeError
		n.logger.Error("plugin rpc failed", "plugin", name, "endpoint", endpoint, "error", err)
	}

	if n.observer != nil {
		n.observer.ObserveDelivery(name, outcome)
	}
}

// Close stops accepting events and lets the workers drain their queues.
// When ctx ends first, in-flight deliveries are cancelled and the rest of
// the queued notifications are dropped; ctx's error is returned.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		for _, q := range n.queues {
			close(q.ch)
		}
	}
	n.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
		n.cancel()
		<-drained
	}
	n.cancel()
	return err
}
