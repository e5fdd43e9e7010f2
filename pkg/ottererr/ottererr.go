// Package ottererr defines the closed set of error kinds the engine
// propagates as sentinel values: compile-time, weight-load, and
// forward-time failures are all plain errors checked with errors.Is,
// never panics.
package ottererr

import "errors"

var (
	// ErrUnknownLayer: registry lookup failed at compile time.
	ErrUnknownLayer = errors.New("otterengine: unknown layer type")
	// ErrBadOption: a required option was missing or unparseable.
	ErrBadOption = errors.New("otterengine: bad layer option")
	// ErrShapeMismatch: compute_output_shape found incompatible inputs.
	ErrShapeMismatch = errors.New("otterengine: shape mismatch")
	// ErrUnsupportedDType: dispatch found no instantiation for a dtype.
	ErrUnsupportedDType = errors.New("otterengine: unsupported dtype")
	// ErrShortRead: a DataReader could not fill the requested buffer.
	ErrShortRead = errors.New("otterengine: short read")
	// ErrIO: a DataReader-level I/O failure unrelated to EOF framing.
	ErrIO = errors.New("otterengine: io error")
	// ErrWeightMismatch: load_model's expected shape disagreed with the stream.
	ErrWeightMismatch = errors.New("otterengine: weight shape mismatch")
	// ErrGraphError: a blob was not found by name, or a cycle was detected.
	ErrGraphError = errors.New("otterengine: graph error")
	// ErrRuntimeKernel: a numeric or precondition failure inside a kernel.
	ErrRuntimeKernel = errors.New("otterengine: runtime kernel error")
)
