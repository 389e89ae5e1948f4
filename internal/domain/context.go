package domain

import (
	"fmt"
	"maps"
	"reflect"
	"time"
)

// Key represents a type-safe generic key for accessing values in a
// DebateContext. The type parameter T ensures compile-time type safety
// when getting and setting values, eliminating runtime type assertions
// at call sites.
type Key[T any] struct{ name string }

// NewKey creates a new Key with the specified name and type.
// This function is provided for creating keys outside of the domain
// package, for example by reviewer adapters that thread extra context.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Predefined context keys handed to every reviewer invocation.
// Each key is strongly typed to ensure type safety at compile time.
var (
	// KeyDebateID stores the unique identifier of the debate session,
	// used for correlation and observability.
	KeyDebateID = Key[string]{"debate.id"}

	// KeyRoundNumber stores the 1-based number of the round the
	// invocation belongs to.
	KeyRoundNumber = Key[int]{"debate.round_number"}

	// KeyProposal stores the proposal version the reviewer is asked to
	// evaluate.
	KeyProposal = Key[Proposal]{"debate.proposal"}

	// KeyPriorFeedback stores the verdicts of the previous round,
	// giving reviewers and the reviser the negotiation context. The
	// full verdict set is carried; capability adapters decide which
	// voices matter when shaping prompts.
	KeyPriorFeedback = Key[[]Verdict]{"debate.prior_feedback"}

	// KeyRoundLimit stores the configured round budget so capability
	// adapters can mention remaining headroom when shaping prompts.
	KeyRoundLimit = Key[int]{"debate.round_limit"}
)

// deepCopyValue creates a deep copy of a value to ensure true
// immutability. It handles slices, maps, and other reference types that
// would otherwise allow external modification of context data.
func deepCopyValue(value any) any {
	if value == nil {
		return nil
	}

	// time.Time is immutable and can be returned directly.
	if val, ok := value.(time.Time); ok {
		return val
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice:
		newSlice := reflect.MakeSlice(v.Type(), v.Len(), v.Cap())
		for i := 0; i < v.Len(); i++ {
			newSlice.Index(i).Set(reflect.ValueOf(deepCopyValue(v.Index(i).Interface())))
		}
		return newSlice.Interface()

	case reflect.Map:
		newMap := reflect.MakeMap(v.Type())
		for _, key := range v.MapKeys() {
			copiedKey := deepCopyValue(key.Interface())
			copiedValue := deepCopyValue(v.MapIndex(key).Interface())
			newMap.SetMapIndex(reflect.ValueOf(copiedKey), reflect.ValueOf(copiedValue))
		}
		return newMap.Interface()

	case reflect.Ptr:
		if v.IsNil() {
			return v.Interface()
		}
		newPtr := reflect.New(v.Elem().Type())
		newPtr.Elem().Set(reflect.ValueOf(deepCopyValue(v.Elem().Interface())))
		return newPtr.Interface()

	case reflect.Struct:
		// Shallow copy for unexported fields, deep copy for exported
		// ones.
		newStruct := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if newStruct.Field(i).CanSet() {
				newStruct.Field(i).Set(reflect.ValueOf(deepCopyValue(v.Field(i).Interface())))
			}
		}
		return newStruct.Interface()

	default:
		// Primitive types are returned as-is since they are copied by
		// value.
		return value
	}
}

// DebateContext is the immutable bundle of negotiation state handed to
// every reviewer in a round. All reviewers of one round receive the
// identical snapshot. It uses copy-on-write semantics, so a context can
// be shared across concurrent invocations without coordination, and the
// engine never constructs prompts itself; it only supplies this
// structured context to the capability adapters.
type DebateContext struct {
	// data holds the key-value pairs that make up the context.
	// It is unexported to maintain immutability guarantees.
	data map[string]any
}

// NewDebateContext creates a new empty DebateContext.
// The returned context is ready to use and can be safely shared across
// goroutines.
func NewDebateContext() DebateContext {
	return DebateContext{
		data: make(map[string]any),
	}
}

// Get retrieves a value from the context with compile-time type safety.
// It returns the value and a boolean indicating whether the key exists
// and contains a value of the correct type. The returned value is a
// deep copy to maintain immutability.
//
// Example:
//
//	proposal, ok := Get(dctx, KeyProposal)
//	if !ok {
//	    // handle missing value
//	}
func Get[T any](dctx DebateContext, key Key[T]) (T, bool) {
	var zero T
	value, exists := dctx.data[key.name]
	if !exists {
		return zero, false
	}

	copied := deepCopyValue(value)
	val, ok := copied.(T)
	return val, ok
}

// With creates a new DebateContext with the specified key-value pair
// added or updated. It implements copy-on-write semantics, returning a
// new context while leaving the original unchanged.
//
// Example:
//
//	next := With(dctx, KeyRoundNumber, 3)
func With[T any](dctx DebateContext, key Key[T], value T) DebateContext {
	newData := maps.Clone(dctx.data)
	if newData == nil {
		newData = make(map[string]any, 1)
	}
	newData[key.name] = deepCopyValue(value)
	return DebateContext{data: newData}
}

// Keys returns all keys present in the context. The returned slice is
// safe to modify without affecting the original context.
func (dctx DebateContext) Keys() []string {
	keys := make([]string, 0, len(dctx.data))
	for k := range dctx.data {
		keys = append(keys, k)
	}
	return keys
}

// String returns a string representation of the context for debugging.
func (dctx DebateContext) String() string {
	return fmt.Sprintf("DebateContext%v", dctx.data)
}
