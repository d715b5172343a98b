package bridge

import "fmt"

// Kind is a workflow-level failure classification.
type Kind string

const (
	KindAuthFailed          Kind = "AuthFailed"
	KindOpenFailed          Kind = "OpenFailed"
	KindInvalidAddress      Kind = "InvalidAddress"
	KindUnsupportedCid      Kind = "UnsupportedCid"
	KindUploadNoProgress    Kind = "UploadNoProgress"
	KindReconstructionEmpty Kind = "ReconstructionEmpty"
	KindTimeout             Kind = "Timeout"
	KindCancelled           Kind = "Cancelled"
)

// Error is a typed workflow-level failure, in the style of go-ipld-cbor's
// SerializationError: Error()/Unwrap()/Is() so errors.Is/errors.As work
// against a Kind instead of string-matching messages.
type Error struct {
	Kind    Kind
	Reason  string
	Context map[string]interface{}
	err     error
}

func newError(kind Kind, reason string, err error, context map[string]interface{}) *Error {
	return &Error{Kind: kind, Reason: reason, Context: context, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Reason, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Is(o error) bool {
	oe, ok := o.(*Error)
	if !ok {
		return false
	}
	return oe.Kind == e.Kind
}
