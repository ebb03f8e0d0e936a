// Package notifysvc carries the user-facing notifications emitted by the resource managers and the session.
package notifysvc

import (
	"strconv"
	"sync"
	"time"

	"github.com/trezcool/masomo-portal/core"
)

// Severities
const (
	Success = "success"
	Error   = "error"
	Info    = "info"
)

type Notification struct {
	ID        string    `json:"id"`
	Severity  string    `json:"severity"`
	Resource  string    `json:"resource,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Text is the message decorated with the server detail, if any.
func (n Notification) Text() string {
	if n.Detail == "" || n.Detail == n.Message {
		return n.Message
	}
	return n.Message + ": " + n.Detail
}

// Notifier is any service that can surface a notification to the user.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Bus fans notifications out to its subscribers and keeps the ones not yet dismissed.
type Bus struct {
	mu      sync.Mutex
	seq     int
	subs    map[int]func(Notification)
	nextSub int
	active  []Notification
	now     func() time.Time
}

var _ Notifier = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Notification)), now: time.Now}
}

func (b *Bus) Notify(n Notification) {
	b.mu.Lock()
	b.seq++
	n.ID = strconv.Itoa(b.seq)
	if n.At.IsZero() {
		n.At = b.now()
	}
	b.active = append(b.active, n)
	subs := make([]func(Notification), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
}

// Subscribe registers fn for every future notification; the returned func cancels it.
func (b *Bus) Subscribe(fn func(Notification)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Active returns the notifications not yet dismissed, oldest first.
func (b *Bus) Active() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Notification(nil), b.active...)
}

// Dismiss closes a notification. Unknown (or already dismissed) ids are ignored.
func (b *Bus) Dismiss(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.active {
		if n.ID == id {
			b.active = append(b.active[:i], b.active[i+1:]...)
			return
		}
	}
}

// LogNotifier writes notifications to a logger: errors at Error, everything else at Info.
type LogNotifier struct {
	Logger core.Logger
}

func (l LogNotifier) Notify(n Notification) {
	if n.Severity == Error {
		l.Logger.Error(n.Text(), map[string]interface{}{"resource": n.Resource, "operation": n.Operation})
		return
	}
	l.Logger.Info(n.Text())
}

// Recorder keeps every notification it receives.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.all = append(r.all, n)
	r.mu.Unlock()
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Notification{}, false
	}
	return r.all[len(r.all)-1], true
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.all = nil
	r.mu.Unlock()
}

// Multi notifies every notifier in order.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(n)
		}
	}
}
