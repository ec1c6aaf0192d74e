package state

import (
	"errors"
	"net"

	"github.com/restreamctl/restreamer/internal/model"
	"github.com/restreamctl/restreamer/internal/observable"
)

// ErrNotFound is returned when no restream's input matches the requested
// broker app (and, for on_publish, stream name).
var ErrNotFound = errors.New("state: no matching restream")

// ErrForbidden is returned when a pull input receives a publish from a
// non-loopback address.
var ErrForbidden = errors.New("state: publish rejected by loopback rule")

// OnConnect succeeds iff an enabled restream's input matches app.
func (s *Store) OnConnect(app string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	for _, r := range s.restreams.Get() {
		if r.Enabled && r.Input.UsesApp(app) {
			return nil
		}
	}
	return ErrNotFound
}

// OnPublish finds the enabled restream matching app, enforces the loopback
// rule for pull inputs, then records the publisher and marks the input
// online. The publisher id is only reassigned when clientID differs; a
// keep-alive republish with the same id leaves the restream equal to
// before, so the cell's equality dedup publishes no change.
func (s *Store) OnPublish(app, stream, clientID, callerIP string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if stream != "in" {
		return ErrNotFound
	}

	return observable.MutateReturning(s.restreams, func(rs *[]model.Restream) error {
		for i := range *rs {
			r := &(*rs)[i]
			if !r.Enabled || !r.Input.UsesApp(app) {
				continue
			}
			if r.Input.IsPull() && !isLoopback(callerIP) {
				return ErrForbidden
			}
			if r.BrokerPublisherID != clientID {
				r.BrokerPublisherID = clientID
			}
			r.Input.SetStatus(model.Online)
			return nil
		}
		return ErrNotFound
	})
}

// OnUnpublish finds any restream (enabled or not) matching app, clears its
// publisher id, and marks its input offline.
func (s *Store) OnUnpublish(app string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return observable.MutateReturning(s.restreams, func(rs *[]model.Restream) error {
		for i := range *rs {
			r := &(*rs)[i]
			if !r.Input.UsesApp(app) {
				continue
			}
			r.BrokerPublisherID = ""
			r.Input.SetStatus(model.Offline)
			return nil
		}
		return ErrNotFound
	})
}

func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
