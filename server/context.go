package server

import "context"

// contextKey is unexported so request values set here cannot collide
// with keys from other packages.
type contextKey string

const ctxKeySubject contextKey = "auth.subject"

func contextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ctxKeySubject, subject)
}

// subjectFromContext returns the authenticated subject, or "" when the
// request did not pass the auth middleware.
func subjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(ctxKeySubject).(string)
	return subject
}
