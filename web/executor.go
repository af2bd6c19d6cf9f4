package web

import (
	"context"
	"fmt"
	"reflect"
)

// namedStage pairs a module label with its stage function.
type namedStage struct {
	name string
	run  func(ctx context.Context, c *Context) error
}

// moduleName returns the diagnostic label for a module value.
func moduleName(m interface{}) string {
	if n, ok := m.(Named); ok {
		return n.ModuleName()
	}
	t := reflect.TypeOf(m)
	if t == nil {
		return "unknown"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

// executeStages drives an ordered stage list against the context.
//
// The flag is checked before every stage, so a pre-set flag skips the whole
// list and a stage that sets it mid-run short-circuits the remainder.
// Otherwise stages run one at a time in order; the flag is set after the
// last stage, including for an empty list. A stage fault (returned error or
// panic) stops the list and is reported as a *StageError carrying the module
// in progress; the flag is not set.
func executeStages(ctx context.Context, c *Context, stages []namedStage, flag CompletionFlag) error {
	for _, s := range stages {
		if flag != 0 && c.Completion.Has(flag) {
			break
		}
		c.currentModule = s.name
		if err := runStage(ctx, c, s); err != nil {
			return &StageError{Module: s.name, Stage: flag, Err: err}
		}
	}
	if flag != 0 {
		c.Completion.Set(flag)
	}
	return nil
}

// runStage invokes one stage function, converting a panic into an error so
// every stage-level fault funnels through the same recovery path.
func runStage(ctx context.Context, c *Context, s namedStage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if perr, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", perr)
			} else {
				err = fmt.Errorf("panic: %v", r)
			}
		}
	}()
	return s.run(ctx, c)
}
