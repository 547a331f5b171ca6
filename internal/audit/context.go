package audit

import "context"

// RequestMeta is the provenance attached to every entry recorded while
// serving a request.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

type requestMetaKey struct{}

// WithRequestMeta stores meta on ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom reads the provenance stored by WithRequestMeta.
func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}
