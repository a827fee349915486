package host

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Module is a named namespace of attributes. Modules nest: an attribute
// may itself be a Module, so "os.environ.items" resolves through the
// "environ" namespace of module "os".
type Module struct {
	Name  string
	attrs map[string]Object
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name, attrs: make(map[string]Object)}
}

// Set binds an attribute and returns the module for chaining.
func (m *Module) Set(name string, v Object) *Module {
	m.attrs[name] = v
	return m
}

// Func binds a host function under name.
func (m *Module) Func(name string, fn func(args []Object, kwargs *Dict) (Object, error)) *Module {
	return m.Set(name, &Func{Module: m.Name, Name: name, Fn: fn})
}

// Class binds a class under its own name.
func (m *Module) Class(c *Class) *Module {
	if c.Module == "" {
		c.Module = m.Name
	}
	return m.Set(c.Name, c)
}

// Attr returns an attribute.
func (m *Module) Attr(name string) (Object, bool) {
	v, ok := m.attrs[name]
	return v, ok
}

// Names returns the attribute names in sorted order.
func (m *Module) Names() []string {
	names := make([]string, 0, len(m.attrs))
	for n := range m.attrs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *Module) String() string {
	return fmt.Sprintf("<module %s>", m.Name)
}

// Registry maps module names to modules. It is safe for concurrent use;
// registration normally happens once at startup.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]*Module)}
}

// Register adds modules, replacing any with the same name.
func (r *Registry) Register(mods ...*Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range mods {
		r.modules[m.Name] = m
	}
}

// Alias registers an existing module under another name.
func (r *Registry) Alias(alias, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[target]
	if !ok {
		return fmt.Errorf("alias %s: %w: %s", alias, ErrModuleNotFound, target)
	}
	r.modules[alias] = m
	return nil
}

// Module returns a registered module.
func (r *Registry) Module(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Resolve looks up module, then walks every dotted segment of name.
// It is the only lookup path; callers that gate access must check the
// full qualified name before calling it.
func (r *Registry) Resolve(module, name string) (Object, error) {
	m, ok := r.Module(module)
	if !ok {
		return nil, &ResolveError{Module: module, Name: name, Err: ErrModuleNotFound}
	}
	if name == "" {
		return nil, &ResolveError{Module: module, Name: name, Err: ErrAttributeNotFound}
	}

	var cur Object = m
	for _, part := range strings.Split(name, ".") {
		g, ok := cur.(AttrGetter)
		if !ok {
			return nil, &ResolveError{Module: module, Name: name, Err: ErrAttributeNotFound}
		}
		next, ok := g.Attr(part)
		if !ok {
			return nil, &ResolveError{Module: module, Name: name, Err: ErrAttributeNotFound}
		}
		cur = next
	}
	return cur, nil
}
