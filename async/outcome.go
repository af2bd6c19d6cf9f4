package async

// Outcome is a success/failure tagged result. It is distinct from Future:
// an Outcome is already settled, it just carries which branch was taken.
type Outcome[A, B any] struct {
	ok      bool
	success A
	failure B
}

// Success creates a successful outcome.
func Success[A, B any](value A) Outcome[A, B] {
	return Outcome[A, B]{ok: true, success: value}
}

// Failure creates a failed outcome.
func Failure[A, B any](reason B) Outcome[A, B] {
	return Outcome[A, B]{failure: reason}
}

// IsSuccess reports whether the outcome took the success branch.
func (o Outcome[A, B]) IsSuccess() bool { return o.ok }

// Result returns the success value; meaningful only when IsSuccess is true.
func (o Outcome[A, B]) Result() A { return o.success }

// Reason returns the failure value; meaningful only when IsSuccess is false.
func (o Outcome[A, B]) Reason() B { return o.failure }

// anyOutcome is the reflection-friendly view used by the remoting proxy.
type anyOutcome interface {
	IsSuccess() bool
	result() interface{}
	reason() interface{}
}

func (o Outcome[A, B]) result() interface{} { return o.success }
func (o Outcome[A, B]) reason() interface{} { return o.failure }

// Match splits an arbitrary Outcome value into its branch and payload.
// Returns ok=false if v is not an Outcome.
func Match(v interface{}) (success bool, payload interface{}, ok bool) {
	o, isOutcome := v.(anyOutcome)
	if !isOutcome {
		return false, nil, false
	}
	if o.IsSuccess() {
		return true, o.result(), true
	}
	return false, o.reason(), true
}

// IsOutcome reports whether v is an Outcome of any parameterization.
func IsOutcome(v interface{}) bool {
	_, ok := v.(anyOutcome)
	return ok
}
