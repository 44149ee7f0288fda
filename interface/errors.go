package iface

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned for any inference attempt while the model is not
// in the ready state: never loaded, still loading, or failed to load.
var ErrNotReady = errors.New("model is not loaded")

// LoadError wraps whatever stopped the model from reaching the ready state.
type LoadError struct {
	Cause error
}

func (e *LoadError) Error() string { return fmt.Sprintf("model load failed: %v", e.Cause) }
func (e *LoadError) Unwrap() error { return e.Cause }

// ParamError flags a caller-supplied threshold outside [0, 1].
type ParamError struct {
	Name  string
	Value float32
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s value %v out of range, should be 0.0 ~ 1.0", e.Name, e.Value)
}

// DecodeError wraps a failure to decode uploaded bytes as an image.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("invalid image: %v", e.Cause) }
func (e *DecodeError) Unwrap() error { return e.Cause }

// UnknownClassError reports a class index with no entry in the label table.
type UnknownClassError struct {
	Index     int
	TableSize int
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("class index %d outside label table of size %d", e.Index, e.TableSize)
}

// ContractError reports backend output that breaks the detector contract,
// such as a score outside [0, 1] or mismatched result arrays.
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string { return "detector contract violation: " + e.Reason }
