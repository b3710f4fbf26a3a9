package mock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/yungtweek/mockllm/internal/config"
)

// Resolver produces the raw answer for one chat request. headers carries
// lower-cased header names; body is the decoded JSON request.
type Resolver interface {
	Resolve(ctx context.Context, headers map[string]string, body map[string]any) (Resolution, error)
}

// TableResolver answers from the config file's response table, reloading
// the file when it changes.
type TableResolver struct {
	store *config.Store
}

func NewTableResolver(store *config.Store) *TableResolver {
	return &TableResolver{store: store}
}

func (r *TableResolver) Resolve(ctx context.Context, headers map[string]string, body map[string]any) (Resolution, error) {
	res, _, err := r.ResolveSettings(ctx, headers, body)
	return res, err
}

// ResolveSettings answers like Resolve and also returns the latency settings
// of the snapshot the answer came from.
func (r *TableResolver) ResolveSettings(_ context.Context, _ map[string]string, body map[string]any) (Resolution, config.Settings, error) {
	prompt := ExtractPrompt(body)
	snap, err := r.store.Current()
	if err != nil {
		return nil, config.Settings{}, err
	}
	return ContentOnly(snap.Table.Lookup(prompt)), snap.Settings, nil
}

// Size is the number of prompts in the installed table.
func (r *TableResolver) Size() int {
	return len(r.store.Snapshot().Table.Responses)
}

// CallbackFunc is user logic plugged in place of the response table.
type CallbackFunc func(ctx context.Context, headers map[string]string, body map[string]any) (Resolution, error)

// DynamicFunc is a callback whose result is untyped, e.g. decoded JSON.
type DynamicFunc func(ctx context.Context, headers map[string]string, body map[string]any) (any, error)

// Dynamic adapts fn so its results are checked with DecodeResolution.
func Dynamic(fn DynamicFunc) CallbackFunc {
	return func(ctx context.Context, headers map[string]string, body map[string]any) (Resolution, error) {
		v, err := fn(ctx, headers, body)
		if err != nil {
			return nil, err
		}
		return DecodeResolution(v)
	}
}

// CallbackResolver delegates every request to a CallbackFunc.
type CallbackResolver struct {
	name string
	fn   CallbackFunc
}

func NewCallbackResolver(name string, fn CallbackFunc) *CallbackResolver {
	return &CallbackResolver{name: name, fn: fn}
}

func (r *CallbackResolver) Name() string { return r.name }

func (r *CallbackResolver) Resolve(ctx context.Context, headers map[string]string, body map[string]any) (res Resolution, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, &ResolverError{Resolver: r.name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	res, err = r.fn(ctx, headers, body)
	if err != nil {
		var re *ResolverError
		if errors.As(err, &re) {
			if re.Resolver == "" {
				re.Resolver = r.name
			}
			return nil, re
		}
		return nil, &ResolverError{Resolver: r.name, Err: err}
	}
	if _, err := Normalize(res); err != nil {
		return nil, &ResolverError{Resolver: r.name, Err: ErrInvalidShape}
	}
	return res, nil
}

var (
	callbacksMu sync.RWMutex
	callbacks   = map[string]CallbackFunc{}
)

// RegisterCallback makes fn selectable by name at startup. It panics on a
// nil fn or a duplicate name, so it belongs in init functions.
func RegisterCallback(name string, fn CallbackFunc) {
	callbacksMu.Lock()
	defer callbacksMu.Unlock()
	if fn == nil {
		panic("mock: RegisterCallback fn is nil")
	}
	if _, dup := callbacks[name]; dup {
		panic("mock: RegisterCallback called twice for " + name)
	}
	callbacks[name] = fn
}

func LookupCallback(name string) (CallbackFunc, bool) {
	callbacksMu.RLock()
	defer callbacksMu.RUnlock()
	fn, ok := callbacks[name]
	return fn, ok
}

// Callbacks lists registered callback names in sorted order.
func Callbacks() []string {
	callbacksMu.RLock()
	defer callbacksMu.RUnlock()
	names := make([]string, 0, len(callbacks))
	for name := range callbacks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
