// Package inject implements the dependency-injection container used by the
// application to resolve module and controller dependencies.
//
// Bindings are keyed by type plus an optional name and come in three kinds:
// fixed values, lazily constructed singletons, and transient class mappings
// that build a fresh instance per resolution. Rebinding the same key
// overwrites the previous binding (last write wins).
package inject

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrNotBound is returned when no binding exists for a requested type.
var ErrNotBound = errors.New("inject: type not bound")

type bindingKind int

const (
	valueBinding bindingKind = iota
	singletonBinding
	transientBinding
)

type bindingKey struct {
	typ  reflect.Type
	name string
}

type binding struct {
	kind bindingKind
	// value holds the bound value for valueBinding and the cached instance
	// for a constructed singleton.
	value interface{}
	// impl is the concrete struct type instantiated for singleton and
	// transient bindings.
	impl reflect.Type

	once sync.Once
	err  error
}

// Injector resolves dependencies from registered bindings. A child injector
// consults its own bindings first and falls back to its parent, so request
// scopes can override application-wide bindings without mutating them.
type Injector struct {
	parent   *Injector
	mu       sync.RWMutex
	bindings map[bindingKey]*binding
}

// New creates an empty root injector.
func New() *Injector {
	return &Injector{bindings: make(map[bindingKey]*binding)}
}

// Child creates a scoped injector that falls back to this one.
func (inj *Injector) Child() *Injector {
	c := New()
	c.parent = inj
	return c
}

// keyType normalizes a binding key. A pointer-to-interface (the usual way to
// name an interface type in Go, e.g. (*Store)(nil)) keys the interface type;
// anything else keys its own type.
func keyType(key interface{}) (reflect.Type, error) {
	if t, ok := key.(reflect.Type); ok {
		return t, nil
	}
	t := reflect.TypeOf(key)
	if t == nil {
		return nil, fmt.Errorf("inject: nil binding key")
	}
	if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Interface {
		return t.Elem(), nil
	}
	return t, nil
}

func optionalName(name []string) string {
	if len(name) > 0 {
		return name[0]
	}
	return ""
}

func (inj *Injector) store(t reflect.Type, name string, b *binding) {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	// Last write wins: an existing binding for the same key is replaced.
	inj.bindings[bindingKey{typ: t, name: name}] = b
}

// MapValue binds key to a fixed value.
func (inj *Injector) MapValue(key, value interface{}, name ...string) error {
	t, err := keyType(key)
	if err != nil {
		return err
	}
	if value == nil {
		return fmt.Errorf("inject: nil value for %s", t)
	}
	vt := reflect.TypeOf(value)
	if !vt.AssignableTo(t) {
		return fmt.Errorf("inject: %s is not assignable to %s", vt, t)
	}
	inj.store(t, optionalName(name), &binding{kind: valueBinding, value: value})
	return nil
}

// MapSingleton binds key to a lazily constructed singleton of the prototype's
// concrete type. The instance is built on first resolution, has its own
// dependencies injected, and is cached for the injector's lifetime.
func (inj *Injector) MapSingleton(key, prototype interface{}, name ...string) error {
	return inj.mapConstructed(singletonBinding, key, prototype, optionalName(name))
}

// MapClass binds key to a transient class mapping: each resolution constructs
// a fresh instance of the prototype's concrete type.
func (inj *Injector) MapClass(key, prototype interface{}, name ...string) error {
	return inj.mapConstructed(transientBinding, key, prototype, optionalName(name))
}

func (inj *Injector) mapConstructed(kind bindingKind, key, prototype interface{}, name string) error {
	t, err := keyType(key)
	if err != nil {
		return err
	}
	pt := reflect.TypeOf(prototype)
	if pt == nil {
		return fmt.Errorf("inject: nil prototype for %s", t)
	}
	if pt.Kind() != reflect.Ptr || pt.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("inject: prototype for %s must be a pointer to struct, got %s", t, pt)
	}
	if !pt.AssignableTo(t) {
		return fmt.Errorf("inject: %s is not assignable to %s", pt, t)
	}
	inj.store(t, name, &binding{kind: kind, impl: pt.Elem()})
	return nil
}

func (inj *Injector) lookup(t reflect.Type, name string) (*binding, *Injector) {
	for i := inj; i != nil; i = i.parent {
		i.mu.RLock()
		b, ok := i.bindings[bindingKey{typ: t, name: name}]
		i.mu.RUnlock()
		if ok {
			return b, i
		}
	}
	return nil, nil
}

// Resolve returns the value bound to key (and optional name), constructing
// it if the binding is a singleton or class mapping.
func (inj *Injector) Resolve(key interface{}, name ...string) (interface{}, error) {
	t, err := keyType(key)
	if err != nil {
		return nil, err
	}
	return inj.resolveType(t, optionalName(name))
}

func (inj *Injector) resolveType(t reflect.Type, name string) (interface{}, error) {
	b, owner := inj.lookup(t, name)
	if b == nil {
		if name != "" {
			return nil, fmt.Errorf("%w: %s (name %q)", ErrNotBound, t, name)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotBound, t)
	}

	switch b.kind {
	case valueBinding:
		return b.value, nil

	case singletonBinding:
		b.once.Do(func() {
			instance := reflect.New(b.impl).Interface()
			// Singleton dependencies resolve against the owning injector,
			// not the (possibly shorter-lived) requesting scope.
			if err := owner.InjectInto(instance); err != nil {
				b.err = err
				return
			}
			b.value = instance
		})
		if b.err != nil {
			return nil, b.err
		}
		return b.value, nil

	case transientBinding:
		instance := reflect.New(b.impl).Interface()
		if err := inj.InjectInto(instance); err != nil {
			return nil, err
		}
		return instance, nil
	}
	return nil, fmt.Errorf("inject: unknown binding kind for %s", t)
}

// InjectInto populates the dependency-tagged fields of an existing instance
// without constructing a new one. Fields are marked with an `inject` struct
// tag; the tag value, if any, selects a named binding.
func (inj *Injector) InjectInto(instance interface{}) error {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("inject: InjectInto requires a non-nil pointer to struct, got %T", instance)
	}

	elem := v.Elem()
	st := elem.Type()
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		tag, tagged := field.Tag.Lookup("inject")
		if !tagged {
			continue
		}
		if !elem.Field(i).CanSet() {
			return fmt.Errorf("inject: field %s.%s is tagged but not settable", st, field.Name)
		}
		dep, err := inj.resolveType(field.Type, tag)
		if err != nil {
			return fmt.Errorf("inject: field %s.%s: %w", st, field.Name, err)
		}
		elem.Field(i).Set(reflect.ValueOf(dep))
	}
	return nil
}
