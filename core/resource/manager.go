// Package resource implements the generic state container shared by every backend collection:
// list / create / update / delete plus resource-specific extensions, each updating one State snapshot.
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/endpoint"
	"github.com/trezcool/masomo-portal/services/httpclient"
	"github.com/trezcool/masomo-portal/services/notify"
)

// Identifiable is implemented by every record kept by a Manager.
type Identifiable interface {
	RecordID() core.ID
}

// Record is an opaque backend object; only its "id" member is interpreted.
type Record map[string]interface{}

func (r Record) RecordID() core.ID { return core.IDOf(r["id"]) }

// ExtraState is the state of one extension operation.
type ExtraState struct {
	Loading bool
	Err     *core.APIError
	Data    interface{}
}

type State[T Identifiable] struct {
	Items   []T
	Loading bool
	Err     *core.APIError
	Extras  map[string]ExtraState
	Version uint64 // increases with every change; subscribers may drop older snapshots
}

type Options struct {
	Name      string // resource name, eg. "exam-results"
	Label     string // singular display name, eg. "Exam result"
	Plural    string // defaults to Label + "s"
	Client    httpclient.Requester
	Endpoints endpoint.Set
	Notifier  notifysvc.Notifier
	Logger    core.Logger
	Messages  *Messages             // defaults to DefaultMessages(Label, Plural)
	Extras    map[string]interface{} // initial data of the extensions
}

// Manager holds the collection state of one resource.
type Manager[T Identifiable] struct {
	opts Options
	msgs Messages

	mu      sync.Mutex
	state   State[T]
	listSeq uint64
	extSeq  map[string]uint64

	subMu   sync.Mutex
	subs    map[int]func(State[T])
	nextSub int
}

// New returns a manager with an empty collection.
func New[T Identifiable](opts Options) *Manager[T] {
	if opts.Endpoints.Resource == "" {
		opts.Endpoints = endpoint.Collection(opts.Name)
	}
	if opts.Label == "" {
		opts.Label = opts.Name
	}
	if opts.Plural == "" {
		opts.Plural = opts.Label + "s"
	}
	msgs := DefaultMessages(opts.Label, opts.Plural)
	if opts.Messages != nil {
		msgs = msgs.merge(*opts.Messages)
	}
	m := &Manager[T]{
		opts:   opts,
		msgs:   msgs,
		state:  State[T]{Items: []T{}, Extras: make(map[string]ExtraState)},
		extSeq: make(map[string]uint64),
		subs:   make(map[int]func(State[T])),
	}
	for name, data := range opts.Extras {
		m.state.Extras[name] = ExtraState{Data: data}
	}
	return m
}

func (m *Manager[T]) Name() string                 { return m.opts.Name }
func (m *Manager[T]) Label() string                { return m.opts.Label }
func (m *Manager[T]) Endpoints() endpoint.Set      { return m.opts.Endpoints }
func (m *Manager[T]) Client() httpclient.Requester { return m.opts.Client }

// Snapshot returns a copy of the current state; the caller may keep it.
func (m *Manager[T]) Snapshot() State[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Find returns the item with the provided id.
func (m *Manager[T]) Find(id core.ID) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := indexOf(m.state.Items, id); i >= 0 {
		return m.state.Items[i], true
	}
	var zero T
	return zero, false
}

// Subscribe calls fn with every new state. Calls are made outside of the manager's lock,
// so fn may read the manager; concurrent operations may deliver out of order (see State.Version).
func (m *Manager[T]) Subscribe(fn func(State[T])) (cancel func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// List fetches the whole collection and replaces the items with it.
// Only the most recently issued call settles the state: the responses of superseded calls are discarded.
func (m *Manager[T]) List(ctx context.Context) ([]T, error) {
	m.mu.Lock()
	m.listSeq++
	seq := m.listSeq
	m.state.Loading = true
	m.state.Err = nil
	snap := m.changedLocked()
	m.mu.Unlock()
	m.publish(snap)

	items, err := m.fetchAll(ctx)

	m.mu.Lock()
	if seq != m.listSeq {
		m.mu.Unlock()
		m.debug("discarding superseded list response")
		return items, err
	}
	m.state.Loading = false
	if err != nil {
		m.state.Err = core.Normalize(err)
	} else {
		m.state.Items = items
	}
	snap = m.changedLocked()
	m.mu.Unlock()
	m.publish(snap)

	if err != nil {
		m.failed(endpoint.OpList, m.msgs.ListError, err)
		return nil, err
	}
	m.succeeded(endpoint.OpList, m.msgs.ListSuccess)
	return items, nil
}

// Create posts payload and appends the returned record (a response without a record appends nothing).
// A record already held under the same id, eg. loaded by a concurrent List, is replaced instead.
func (m *Manager[T]) Create(ctx context.Context, payload interface{}) (T, error) {
	var rec T
	err := httpclient.Post(ctx, m.opts.Client, m.opts.Endpoints.Create, payload, &rec)
	if err != nil {
		m.rejected(endpoint.OpCreate, m.msgs.CreateError, err)
		return rec, err
	}

	if id := rec.RecordID(); !id.IsZero() {
		m.mu.Lock()
		items := append([]T(nil), m.state.Items...)
		if i := indexOf(items, id); i >= 0 {
			items[i] = rec
		} else {
			items = append(items, rec)
		}
		m.state.Items = items
		snap := m.changedLocked()
		m.mu.Unlock()
		m.publish(snap)
	}

	m.succeeded(endpoint.OpCreate, m.msgs.CreateSuccess)
	return rec, nil
}

// Update sends payload to the record's path and replaces the matching item in place.
// When no item matches id the items are left unchanged.
func (m *Manager[T]) Update(ctx context.Context, id core.ID, payload interface{}) (T, error) {
	var rec T
	req := &httpclient.Request{
		Method: m.opts.Endpoints.Method(endpoint.OpUpdate),
		Path:   m.opts.Endpoints.Update(id.String()),
		Body:   payload,
	}
	if err := httpclient.Send(ctx, m.opts.Client, req, &rec); err != nil {
		m.rejected(endpoint.OpUpdate, m.msgs.UpdateError, err)
		return rec, err
	}

	m.mu.Lock()
	if i := indexOf(m.state.Items, id); i >= 0 && !rec.RecordID().IsZero() {
		items := append([]T(nil), m.state.Items...)
		items[i] = rec
		m.state.Items = items
		snap := m.changedLocked()
		m.mu.Unlock()
		m.publish(snap)
	} else {
		m.mu.Unlock()
	}

	m.succeeded(endpoint.OpUpdate, m.msgs.UpdateSuccess)
	return rec, nil
}

// Delete deletes the record and removes it from the items.
func (m *Manager[T]) Delete(ctx context.Context, id core.ID) error {
	if err := httpclient.Delete(ctx, m.opts.Client, m.opts.Endpoints.Delete(id.String())); err != nil {
		m.rejected(endpoint.OpDelete, m.msgs.DeleteError, err)
		return err
	}

	m.mu.Lock()
	items := make([]T, 0, len(m.state.Items))
	for _, item := range m.state.Items {
		if item.RecordID() != id {
			items = append(items, item)
		}
	}
	if len(items) == len(m.state.Items) {
		m.mu.Unlock()
	} else {
		m.state.Items = items
		snap := m.changedLocked()
		m.mu.Unlock()
		m.publish(snap)
	}

	m.succeeded(endpoint.OpDelete, m.msgs.DeleteSuccess)
	return nil
}

// fetchAll decodes a plain JSON array or a paginated `{"results": [...]}` page.
func (m *Manager[T]) fetchAll(ctx context.Context) ([]T, error) {
	var raw json.RawMessage
	if err := httpclient.Get(ctx, m.opts.Client, m.opts.Endpoints.List, nil, &raw); err != nil {
		return nil, err
	}
	items := []T{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return items, nil
	}
	if raw[0] == '{' {
		var page struct {
			Results json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(raw, &page); err != nil || len(page.Results) == 0 {
			return nil, &core.APIError{Detail: "unexpected response from the server", Err: errors.New("list: not a collection")}
		}
		raw = page.Results
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &core.APIError{Detail: "unexpected response from the server", Err: errors.Wrap(err, "decoding list")}
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// rejected records the failure of a single-record operation.
func (m *Manager[T]) rejected(op, msg string, err error) {
	m.mu.Lock()
	m.state.Err = core.Normalize(err)
	snap := m.changedLocked()
	m.mu.Unlock()
	m.publish(snap)
	m.failed(op, msg, err)
}

func (m *Manager[T]) failed(op, msg string, err error) {
	apiErr := core.Normalize(err)
	if m.opts.Logger != nil {
		m.opts.Logger.Error(m.opts.Name+": "+op+" failed", err)
	}
	m.notify(notifysvc.Notification{
		Severity:  notifysvc.Error,
		Resource:  m.opts.Name,
		Operation: op,
		Message:   msg,
		Detail:    apiErr.Message(),
	})
}

func (m *Manager[T]) succeeded(op, msg string) {
	m.notify(notifysvc.Notification{
		Severity:  notifysvc.Success,
		Resource:  m.opts.Name,
		Operation: op,
		Message:   msg,
	})
}

func (m *Manager[T]) notify(n notifysvc.Notification) {
	if m.opts.Notifier != nil {
		m.opts.Notifier.Notify(n)
	}
}

func (m *Manager[T]) debug(msg string) {
	if m.opts.Logger != nil {
		m.opts.Logger.Debug(m.opts.Name + ": " + msg)
	}
}

// changedLocked bumps the version and returns the snapshot to publish once m.mu is released.
func (m *Manager[T]) changedLocked() State[T] {
	m.state.Version++
	return m.snapshotLocked()
}

func (m *Manager[T]) publish(snap State[T]) {
	m.subMu.Lock()
	subs := make([]func(State[T]), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (m *Manager[T]) snapshotLocked() State[T] {
	snap := State[T]{
		Items:   append(make([]T, 0, len(m.state.Items)), m.state.Items...),
		Loading: m.state.Loading,
		Err:     m.state.Err,
		Extras:  make(map[string]ExtraState, len(m.state.Extras)),
		Version: m.state.Version,
	}
	for k, v := range m.state.Extras {
		snap.Extras[k] = v
	}
	return snap
}

func indexOf[T Identifiable](items []T, id core.ID) int {
	for i, item := range items {
		if item.RecordID() == id {
			return i
		}
	}
	return -1
}
