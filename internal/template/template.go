// Package template maps template keys to payload-construction strategies.
// The registry is populated and validated at startup so an unknown key
// fails a dispatch request up front instead of deep in the send path.
package template

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kardosh/multisend/internal/model"
	"github.com/kardosh/multisend/internal/transport"
)

// Params carries the caller-supplied inputs to a strategy.
type Params struct {
	Message string            `json:"message,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// BuildFunc constructs an opaque outbound payload for a target.
type BuildFunc func(target string, p Params) (transport.Payload, error)

// Registry maps template keys to strategies. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]BuildFunc
}

func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]BuildFunc)}
}

// Register adds or replaces a strategy under the given key.
func (r *Registry) Register(key string, fn BuildFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[key] = fn
}

// Get returns the strategy for key, or ErrUnknownTemplate.
func (r *Registry) Get(key string) (BuildFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.builders[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownTemplate, key)
	}
	return fn, nil
}

// Names returns all registered template keys.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for k := range r.builders {
		names = append(names, k)
	}
	return names
}

// Builtin returns a registry preloaded with the stock strategies.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register("text", buildText)
	r.Register("contact", buildContact)
	r.Register("location", buildLocation)
	return r
}

func buildText(_ string, p Params) (transport.Payload, error) {
	if p.Message == "" {
		return transport.Payload{}, fmt.Errorf("text template: message is required")
	}
	body, err := json.Marshal(map[string]string{"text": p.Message})
	if err != nil {
		return transport.Payload{}, err
	}
	return transport.Payload{Kind: "text", Body: body}, nil
}

func buildContact(_ string, p Params) (transport.Payload, error) {
	name := p.Extra["name"]
	phone := p.Extra["phone"]
	if name == "" || phone == "" {
		return transport.Payload{}, fmt.Errorf("contact template: name and phone are required")
	}
	body, err := json.Marshal(map[string]string{"displayName": name, "phone": phone})
	if err != nil {
		return transport.Payload{}, err
	}
	return transport.Payload{Kind: "contact", Body: body}, nil
}

func buildLocation(_ string, p Params) (transport.Payload, error) {
	lat := p.Extra["lat"]
	lng := p.Extra["lng"]
	if lat == "" || lng == "" {
		return transport.Payload{}, fmt.Errorf("location template: lat and lng are required")
	}
	body, err := json.Marshal(map[string]string{
		"latitude":  lat,
		"longitude": lng,
		"name":      p.Extra["name"],
	})
	if err != nil {
		return transport.Payload{}, err
	}
	return transport.Payload{Kind: "location", Body: body}, nil
}
