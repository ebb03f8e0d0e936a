package resource

import (
	"context"
	"net/http"
	"net/url"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/services/httpclient"
)

// Call performs the request of an extension.
type Call[A, R any] func(ctx context.Context, rq httpclient.Requester, arg A) (R, error)

// Reducer folds the result of an extension into the shared items.
type Reducer[T Identifiable, R any] func(items []T, result R) []T

// Extension is a resource-specific operation sharing its manager's state.
// Its state lives in State.Extras[name] and follows its own pending / fulfilled / rejected phases.
type Extension[T Identifiable, A, R any] struct {
	m       *Manager[T]
	name    string
	call    Call[A, R]
	reduce  Reducer[T, R]
	success string // no notification when empty
	failure string
}

// Extend registers the extension name on m; reduce may be nil.
func Extend[T Identifiable, A, R any](m *Manager[T], name string, call Call[A, R], reduce Reducer[T, R]) *Extension[T, A, R] {
	m.mu.Lock()
	if _, ok := m.state.Extras[name]; !ok {
		m.state.Extras[name] = ExtraState{}
	}
	m.mu.Unlock()
	return &Extension[T, A, R]{
		m: m, name: name, call: call, reduce: reduce,
		failure: "Failed to load " + words(name),
	}
}

// WithMessages sets the notification texts of the outcomes; an empty success stays silent.
func (e *Extension[T, A, R]) WithMessages(success, failure string) *Extension[T, A, R] {
	e.success = success
	if failure != "" {
		e.failure = failure
	}
	return e
}

func (e *Extension[T, A, R]) Name() string { return e.name }

// State returns the current state of the extension.
func (e *Extension[T, A, R]) State() ExtraState {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	return e.m.state.Extras[e.name]
}

// Result returns the data of the last fulfilled run.
func (e *Extension[T, A, R]) Result() (R, bool) {
	r, ok := e.State().Data.(R)
	return r, ok
}

// Run performs the extension. Like List, only the most recently issued run settles its state.
func (e *Extension[T, A, R]) Run(ctx context.Context, arg A) (R, error) {
	m := e.m

	m.mu.Lock()
	m.extSeq[e.name]++
	seq := m.extSeq[e.name]
	st := m.state.Extras[e.name]
	st.Loading, st.Err = true, nil
	m.state.Extras[e.name] = st
	snap := m.changedLocked()
	m.mu.Unlock()
	m.publish(snap)

	res, err := e.call(ctx, m.opts.Client, arg)

	m.mu.Lock()
	if seq != m.extSeq[e.name] {
		m.mu.Unlock()
		m.debug(e.name + ": discarding superseded response")
		return res, err
	}
	st = m.state.Extras[e.name]
	st.Loading = false
	if err != nil {
		st.Err = core.Normalize(err)
	} else {
		st.Data = res
		if e.reduce != nil {
			m.state.Items = e.reduce(append([]T(nil), m.state.Items...), res)
		}
	}
	m.state.Extras[e.name] = st
	snap = m.changedLocked()
	m.mu.Unlock()
	m.publish(snap)

	if err != nil {
		m.failed(e.name, e.failure, err)
	} else if e.success != "" {
		m.succeeded(e.name, e.success)
	}
	return res, err
}

// Fetch returns a Call issuing a GET on path(arg) with the optional query(arg).
func Fetch[A, R any](path func(A) string, query func(A) url.Values) Call[A, R] {
	return func(ctx context.Context, rq httpclient.Requester, arg A) (R, error) {
		var (
			res R
			q   url.Values
		)
		if query != nil {
			q = query(arg)
		}
		err := httpclient.Get(ctx, rq, path(arg), q, &res)
		return res, err
	}
}

// Action returns a Call issuing a bodyless POST on path(id), eg. a toggle.
func Action[R any](path func(id string) string) Call[core.ID, R] {
	return func(ctx context.Context, rq httpclient.Requester, id core.ID) (R, error) {
		var res R
		err := httpclient.Post(ctx, rq, path(id.String()), nil, &res)
		return res, err
	}
}

// Upload is the argument of an upload extension.
type Upload struct {
	ID   core.ID
	File httpclient.File
}

// PostFile returns a Call uploading the file of an Upload to path(id) as multipart.
func PostFile[R any](path func(id string) string) Call[Upload, R] {
	return func(ctx context.Context, rq httpclient.Requester, up Upload) (R, error) {
		var res R
		req := &httpclient.Request{Method: http.MethodPost, Path: path(up.ID.String()), Files: []httpclient.File{up.File}}
		err := httpclient.Send(ctx, rq, req, &res)
		return res, err
	}
}

// Replace is a Reducer replacing the item having the identity of the result.
func Replace[T Identifiable](items []T, rec T) []T {
	if i := indexOf(items, rec.RecordID()); i >= 0 {
		items[i] = rec
	}
	return items
}
