package rpc

import "sync"

// Registry tracks outstanding request ids per call kind so asynchronous
// responses can be routed back to the kind that issued them. It is scoped to
// a single connection and cleared on reconnect.
type Registry struct {
	mu     sync.Mutex
	byKind map[string]map[int64]struct{}
	byID   map[int64]string
}

func NewRegistry() *Registry {
	return &Registry{
		byKind: make(map[string]map[int64]struct{}),
		byID:   make(map[int64]string),
	}
}

func (r *Registry) Add(kind string, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, ok := r.byKind[kind]
	if !ok {
		ids = make(map[int64]struct{})
		r.byKind[kind] = ids
	}
	ids[id] = struct{}{}
	r.byID[id] = kind
}

// Resolve returns the call kind for id and forgets it.
func (r *Registry) Resolve(id int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kind, ok := r.byID[id]
	if !ok {
		return "", false
	}
	delete(r.byID, id)
	if ids := r.byKind[kind]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.byKind, kind)
		}
	}
	return kind, true
}

func (r *Registry) Remove(id int64) {
	_, _ = r.Resolve(id)
}

func (r *Registry) Pending(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKind[kind])
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind = make(map[string]map[int64]struct{})
	r.byID = make(map[int64]string)
}
