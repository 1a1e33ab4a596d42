package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/civicwatch/incident-proximity-service/internal/domain"
)

// DeviceSource is the server-side rendition of the platform geolocation
// API: client devices push fixes (or a permission denial) over HTTP, and
// the provider reads them through the Source interface. A recent report —
// no older than the staleness tolerance — is reused directly; otherwise
// CurrentPosition waits for the next push until the caller's deadline.
//
// Prompting happens on the client, so the prompt flag is accepted but has
// no server-side effect.
type DeviceSource struct {
	clock     clockwork.Clock
	staleness time.Duration

	mu       sync.Mutex
	last     map[string]Position
	denied   map[string]bool
	waiters  map[string][]chan Position
	watchers map[string]map[int]func(Position)
	nextID   int
}

// NewDeviceSource creates a DeviceSource. staleness bounds how old a
// pushed fix may be and still satisfy CurrentPosition immediately (5m in
// the default configuration).
func NewDeviceSource(clock clockwork.Clock, staleness time.Duration) *DeviceSource {
	return &DeviceSource{
		clock:     clock,
		staleness: staleness,
		last:      make(map[string]Position),
		denied:    make(map[string]bool),
		waiters:   make(map[string][]chan Position),
		watchers:  make(map[string]map[int]func(Position)),
	}
}

// Report records a fix pushed by userKey's device, wakes any waiting
// CurrentPosition calls, and notifies watchers. A fix clears a previously
// reported denial.
func (d *DeviceSource) Report(userKey string, pos Position) {
	if pos.Timestamp.IsZero() {
		pos.Timestamp = d.clock.Now()
	}

	d.mu.Lock()
	d.last[userKey] = pos
	delete(d.denied, userKey)

	waiting := d.waiters[userKey]
	delete(d.waiters, userKey)

	fns := make([]func(Position), 0, len(d.watchers[userKey]))
	for _, fn := range d.watchers[userKey] {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, ch := range waiting {
		ch <- pos
	}
	for _, fn := range fns {
		fn(pos)
	}
}

// ReportDenied records that userKey's device refused the permission
// prompt. Waiting CurrentPosition calls fail immediately with
// domain.ErrPermissionDenied, as do subsequent calls until a fix arrives.
func (d *DeviceSource) ReportDenied(userKey string) {
	d.mu.Lock()
	d.denied[userKey] = true
	delete(d.last, userKey)
	waiting := d.waiters[userKey]
	delete(d.waiters, userKey)
	d.mu.Unlock()

	for _, ch := range waiting {
		close(ch)
	}
}

// CurrentPosition implements Source.
func (d *DeviceSource) CurrentPosition(ctx context.Context, userKey string, _ bool) (Position, error) {
	d.mu.Lock()
	if d.denied[userKey] {
		d.mu.Unlock()
		return Position{}, domain.ErrPermissionDenied
	}
	if pos, ok := d.last[userKey]; ok && d.clock.Now().Sub(pos.Timestamp) <= d.staleness {
		d.mu.Unlock()
		return pos, nil
	}

	ch := make(chan Position, 1)
	d.waiters[userKey] = append(d.waiters[userKey], ch)
	d.mu.Unlock()

	select {
	case pos, ok := <-ch:
		if !ok {
			return Position{}, domain.ErrPermissionDenied
		}
		return pos, nil
	case <-ctx.Done():
		d.removeWaiter(userKey, ch)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Position{}, domain.ErrTimeout
		}
		return Position{}, domain.ErrPositionUnavailable
	}
}

// WatchPosition implements Source. fn runs on the reporting goroutine.
func (d *DeviceSource) WatchPosition(ctx context.Context, userKey string, fn func(Position)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.ErrPositionUnavailable
	}

	d.mu.Lock()
	id := d.nextID
	d.nextID++
	if d.watchers[userKey] == nil {
		d.watchers[userKey] = make(map[int]func(Position))
	}
	d.watchers[userKey][id] = fn
	d.mu.Unlock()

	stop := func() {
		d.mu.Lock()
		delete(d.watchers[userKey], id)
		d.mu.Unlock()
	}

	// Detach when the subscription context ends so abandoned watches do
	// not leak callbacks.
	go func() {
		<-ctx.Done()
		stop()
	}()

	return stop, nil
}

func (d *DeviceSource) removeWaiter(userKey string, ch chan Position) {
	d.mu.Lock()
	defer d.mu.Unlock()

	waiting := d.waiters[userKey]
	for i, w := range waiting {
		if w == ch {
			d.waiters[userKey] = append(waiting[:i], waiting[i+1:]...)
			return
		}
	}
}
