package node

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crclabs/backingd/internal/core/backing"
)

// subscriberBuffer bounds each subscriber channel; slow consumers drop
// notifications rather than stalling the engine.
const subscriberBuffer = 64

// Notification is one event as delivered to live subscribers.
type Notification struct {
	Seq      int64           `json:"seq"`
	Name     string          `json:"name"`
	Instance common.Address  `json:"instance"`
	Payload  json.RawMessage `json:"payload"`
	At       time.Time       `json:"at"`
}

// Emit implements backing.EventSink: index the event, then fan it out.
// Indexing is best-effort and never fails the emitting operation.
func (n *Node) Emit(e backing.Event) {
	at := n.clock.Now()
	instance := eventInstance(e)

	payload, err := json.Marshal(e)
	if err != nil {
		n.logger.Printf("encode event %s: %v", e.Name(), err)
		return
	}

	var seq int64
	if n.events != nil {
		ctx, cancel := context.WithTimeout(context.Background(), n.persistTimeout)
		seq, err = n.events.Save(ctx, e.Name(), instance, e, at)
		cancel()
		if err != nil {
			n.logger.Printf("index event %s: %v", e.Name(), err)
		}
	}

	n.publish(Notification{
		Seq:      seq,
		Name:     e.Name(),
		Instance: instance,
		Payload:  payload,
		At:       at,
	})
}

// eventInstance extracts the instance address an event is scoped to.
func eventInstance(e backing.Event) common.Address {
	switch ev := e.(type) {
	case backing.InstanceDeployed:
		return ev.Instance
	case backing.OrderInitiated:
		return ev.Instance
	case backing.OrderReset:
		return ev.Instance
	case backing.PoolCreated:
		return ev.Instance
	case backing.PoolTokensReleased:
		return ev.Instance
	default:
		return common.Address{}
	}
}

// Subscribe registers a live event channel. The returned cancel function is
// idempotent; the channel closes on cancel or node shutdown.
func (n *Node) Subscribe() (<-chan Notification, func()) {
	n.subMu.Lock()
	defer n.subMu.Unlock()

	ch := make(chan Notification, subscriberBuffer)
	if n.closed {
		close(ch)
		return ch, func() {}
	}

	id := n.nextSub
	n.nextSub++
	n.subs[id] = ch

	cancel := func() {
		n.subMu.Lock()
		defer n.subMu.Unlock()
		if sub, ok := n.subs[id]; ok {
			close(sub)
			delete(n.subs, id)
		}
	}
	return ch, cancel
}

func (n *Node) publish(note Notification) {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for id, ch := range n.subs {
		select {
		case ch <- note:
		default:
			n.logger.Printf("subscriber %d lagging, dropping %s", id, note.Name)
		}
	}
}
