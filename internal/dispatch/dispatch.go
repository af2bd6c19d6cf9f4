// Package dispatch invokes methods on API and controller values by name
// with a positional argument list, converting arguments to the declared
// parameter types. It backs both MVC action dispatch and the remoting
// bridge's local mode.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

// ErrUnknownMethod is returned when the target has no matching method.
var ErrUnknownMethod = errors.New("dispatch: unknown method")

// MethodInvoker lets a target supply its own by-name dispatch instead of
// reflection.
type MethodInvoker interface {
	InvokeMethod(ctx context.Context, method string, args []interface{}) (interface{}, error)
}

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// Call invokes the named exported method on target with the given arguments.
//
// If the method's first parameter is a context.Context it receives ctx. The
// remaining parameters are filled positionally from args, converting string
// and JSON-decoded numeric values to the declared types. Supported return
// shapes: none, (T), (error), and (T, error).
func Call(ctx context.Context, target interface{}, method string, args []interface{}) (interface{}, error) {
	if inv, ok := target.(MethodInvoker); ok {
		return inv.InvokeMethod(ctx, method, args)
	}

	v := reflect.ValueOf(target)
	m := v.MethodByName(method)
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %s on %T", ErrUnknownMethod, method, target)
	}

	mt := m.Type()
	in := make([]reflect.Value, 0, mt.NumIn())
	next := 0

	if mt.NumIn() > 0 && mt.In(0) == ctxType {
		in = append(in, reflect.ValueOf(ctx))
	}

	for i := len(in); i < mt.NumIn(); i++ {
		if next >= len(args) {
			return nil, fmt.Errorf("dispatch: %s wants %d args, got %d", method, mt.NumIn()-len(in)+next, len(args))
		}
		arg, err := convert(args[next], mt.In(i))
		if err != nil {
			return nil, fmt.Errorf("dispatch: %s arg %d: %w", method, next, err)
		}
		in = append(in, arg)
		next++
	}
	if next != len(args) {
		return nil, fmt.Errorf("dispatch: %s wants %d args, got %d", method, next, len(args))
	}

	return splitReturns(m.Call(in))
}

// splitReturns maps a reflect call result onto (value, error).
func splitReturns(out []reflect.Value) (interface{}, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if out[0].Type().Implements(errType) {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	case 2:
		if !out[1].Type().Implements(errType) {
			return nil, fmt.Errorf("dispatch: second return value must be error, got %s", out[1].Type())
		}
		return out[0].Interface(), asError(out[1])
	default:
		return nil, fmt.Errorf("dispatch: too many return values (%d)", len(out))
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// convert coerces an argument to the target parameter type. It accepts exact
// matches, assignable values, strings (parsed for numeric and bool params,
// as produced by URL segments) and float64 (as produced by JSON decoding).
func convert(arg interface{}, t reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(t), nil
	}

	av := reflect.ValueOf(arg)
	if av.Type().AssignableTo(t) {
		return av, nil
	}
	if av.Type().ConvertibleTo(t) {
		switch av.Kind() {
		case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int8, reflect.Int16,
			reflect.Int32, reflect.Int64, reflect.Uint, reflect.Uint8, reflect.Uint16,
			reflect.Uint32, reflect.Uint64:
			// Numeric cross-conversion, covers JSON's float64 decoding.
			return av.Convert(t), nil
		}
	}

	if s, ok := arg.(string); ok {
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("cannot parse %q as %s", s, t)
			}
			return reflect.ValueOf(n).Convert(t), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("cannot parse %q as %s", s, t)
			}
			return reflect.ValueOf(n).Convert(t), nil
		case reflect.Float32, reflect.Float64:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("cannot parse %q as %s", s, t)
			}
			return reflect.ValueOf(f).Convert(t), nil
		case reflect.Bool:
			b, err := strconv.ParseBool(s)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("cannot parse %q as bool", s)
			}
			return reflect.ValueOf(b), nil
		}
	}

	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", arg, t)
}
