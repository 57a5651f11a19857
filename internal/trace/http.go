package trace

import (
	"net/http"
)

// Middleware attaches a trace context to each request and echoes the trace ID
// back in the response. An incoming traceparent wins over X-Trace-ID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := extractFromHeaders(r)
		w.Header().Set(TraceIDKey, tc.TraceID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

func extractFromHeaders(r *http.Request) Context {
	if tc, ok := ParseTraceParent(r.Header.Get(TraceParentKey)); ok {
		return tc
	}
	tc := Context{
		TraceID: r.Header.Get(TraceIDKey),
		SpanID:  generateSpanID(),
	}
	if !isHex(tc.TraceID, 32) {
		// an unusable caller trace starts a fresh one; its span is meaningless then
		tc.TraceID = generateTraceID()
		return tc
	}
	if span := r.Header.Get(SpanIDKey); isHex(span, 16) {
		tc.ParentSpanID = span
	}
	return tc
}
