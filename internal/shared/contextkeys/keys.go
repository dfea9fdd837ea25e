package contextkeys

import "context"

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "carelog context key " + string(c)
}

const (
	// UserIDKey carries the signed-in user's identifier.
	UserIDKey = contextKey("userID")
	// RequestIDKey carries the per-request correlation ID set by the HTTP adapter.
	RequestIDKey = contextKey("requestID")
	// ComponentKey names the component that is handling the call.
	ComponentKey = contextKey("component")
	// OperationKey names the document-store operation in flight.
	OperationKey = contextKey("operation")
)

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserID returns the user ID stored in ctx, if any.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(UserIDKey).(string)
	return v, ok && v != ""
}

// WithOperation returns a copy of ctx tagged with the operation name.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, OperationKey, op)
}
