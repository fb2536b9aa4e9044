package runner

import (
	"fmt"
	"strings"

	"github.com/bsaid97/go-lwgeom-fixer/native"
)

// Operation is one of the native transforms a Runner can apply. The set is
// closed: adding an algorithm means adding a constant and a row to
// operations.
type Operation int

const (
	MakeValid Operation = iota + 1
	BuildArea
)

const (
	// Group is the toolbox group every operation is listed under.
	Group = "[LWGEOM] Miscellaneous"

	InputLayer  = "INPUT_LAYER"
	OutputLayer = "OUTPUT_LAYER"
)

type operation struct {
	id      string
	name    string
	symbol  string
	failure string
	apply   func(native.Library, native.Handle) native.Handle
}

var operations = map[Operation]operation{
	MakeValid: {
		id:      "makevalid",
		name:    "Make valid",
		symbol:  native.SymbolMakeValid,
		failure: "wasn't able to make the geometry valid!",
		apply:   native.Library.MakeValid,
	},
	BuildArea: {
		id:      "buildarea",
		name:    "Build area",
		symbol:  native.SymbolBuildArea,
		failure: "wasn't able to build area!",
		apply:   native.Library.BuildArea,
	},
}

// Operations lists every operation in a stable order.
func Operations() []Operation {
	return []Operation{MakeValid, BuildArea}
}

// ParseOperation resolves an operation from its id ("makevalid") or display
// name ("Make valid").
func ParseOperation(s string) (Operation, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	key = strings.ReplaceAll(key, "-", "")
	for _, op := range Operations() {
		if operations[op].id == key {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	_, ok := operations[op]
	return ok
}

// String returns the operation id.
func (op Operation) String() string {
	if d, ok := operations[op]; ok {
		return d.id
	}
	return fmt.Sprintf("Operation(%d)", int(op))
}

// Name returns the display name.
func (op Operation) Name() string {
	return operations[op].name
}

// Symbol returns the native function the operation calls.
func (op Operation) Symbol() string {
	return operations[op].symbol
}

// Failure returns the message logged when the transform yields nothing.
func (op Operation) Failure() string {
	return operations[op].failure
}

func (op Operation) apply(lib native.Library, h native.Handle) native.Handle {
	return operations[op].apply(lib, h)
}

// Descriptor is the static metadata a host shows for an operation.
type Descriptor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Group  string `json:"group"`
	Symbol string `json:"symbol"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Describe returns op's descriptor.
func (op Operation) Describe() Descriptor {
	d := operations[op]
	return Descriptor{
		ID:     d.id,
		Name:   d.name,
		Group:  Group,
		Symbol: d.symbol,
		Input:  InputLayer,
		Output: OutputLayer,
	}
}
