package taskstatus

import "context"

// Target receives the content of a ready status response.
//
// SetInnerHTML replaces the content of the element identified by elementID
// with markup. Markup is not escaped. *page.Document and every target in the
// sink package implement Target.
type Target interface {
	SetInnerHTML(ctx context.Context, elementID string, markup []byte) error
}

// TargetFunc adapts an ordinary function to a [Target].
type TargetFunc func(ctx context.Context, elementID string, markup []byte) error

// SetInnerHTML calls f.
func (f TargetFunc) SetInnerHTML(ctx context.Context, elementID string, markup []byte) error {
	return f(ctx, elementID, markup)
}
