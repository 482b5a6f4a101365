package session

import "github.com/park285/cheese-liveboard/pkg/livedto"

// Fanout forwards every envelope to each notifier in order.
type Fanout []Notifier

func (f Fanout) Unicast(connID string, env livedto.Envelope) {
	for _, n := range f {
		if n != nil {
			n.Unicast(connID, env)
		}
	}
}

func (f Fanout) Multicast(env livedto.Envelope) {
	for _, n := range f {
		if n != nil {
			n.Multicast(env)
		}
	}
}

type NopNotifier struct{}

func (NopNotifier) Unicast(string, livedto.Envelope) {}
func (NopNotifier) Multicast(livedto.Envelope)       {}
