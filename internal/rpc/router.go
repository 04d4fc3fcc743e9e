package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/brandloom/storefront/internal/app/metrics"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
)

type entry struct {
	proc    Procedure
	handler Handler
}

// Router dispatches calls to registered procedures.
type Router struct {
	mu      sync.RWMutex
	entries map[string]entry
	members MemberResolver
	extra   []Middleware
	log     *logging.Logger
}

// NewRouter creates a router. members resolves brand membership for Brand
// procedures.
func NewRouter(members MemberResolver, log *logging.Logger) *Router {
	if log == nil {
		log = logging.NewDefault("rpc")
	}
	return &Router{entries: make(map[string]entry), members: members, log: log}
}

// Use appends middleware run after the access checks of every procedure
// registered afterwards.
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extra = append(r.extra, mw...)
}

// Register adds procedures. It panics on duplicates or invalid definitions.
func (r *Router) Register(procs ...Procedure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range procs {
		if err := p.validate(); err != nil {
			panic(err)
		}
		if _, dup := r.entries[p.Name]; dup {
			panic(fmt.Sprintf("rpc: procedure %s already registered", p.Name))
		}
		r.entries[p.Name] = entry{proc: p, handler: r.chain(p)}
	}
}

// chain builds the per-procedure middleware stack, outermost first.
func (r *Router) chain(p Procedure) Handler {
	var mws []Middleware
	switch p.Access.level {
	case levelAuthed:
		mws = append(mws, authenticate)
	case levelAdmin:
		mws = append(mws, authenticate, requireAdmin)
	case levelBrand:
		mws = append(mws, authenticate, requireBrand(r.members))
	}
	mws = append(mws, r.extra...)

	h := p.Handler
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](p, h)
	}
	return h
}

// Lookup returns a registered procedure.
func (r *Router) Lookup(name string) (Procedure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.proc, ok
}

// Procedures lists registered procedures sorted by name.
func (r *Router) Procedures() []Procedure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Procedure, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.proc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call runs a procedure by name. Errors are always ServiceErrors.
func (r *Router) Call(ctx context.Context, name string, input json.RawMessage) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		metrics.RecordRPC("unknown", string(errors.CodeNotFound))
		return nil, errors.NotFound("procedure", name)
	}

	start := time.Now()
	result, err := e.handler(ctx, input)
	if err != nil {
		se := errors.GetServiceError(err)
		if se == nil {
			se = errors.Internal("Internal server error", err)
		}
		entry := r.log.WithContext(ctx).WithError(err).WithField("procedure", name).WithField("code", se.Code)
		if se.HTTPStatus >= 500 {
			entry.Error("procedure failed")
		} else {
			entry.Debug("procedure rejected")
		}
		metrics.RecordRPC(name, string(se.Code))
		return nil, se
	}

	metrics.RecordRPC(name, "")
	r.log.WithContext(ctx).WithField("procedure", name).WithField("duration_ms", time.Since(start).Milliseconds()).Debug("procedure completed")
	return result, nil
}
