// Package logctx enriches slog records with request- and caller-scoped
// attributes carried on the context. The HTTP layer attaches RequestData
// from the inbound headers (x-ms-client-request-id, activity-id); the auth
// core attaches CallerData once a request is authenticated.
package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("request_id", rd.RequestID),
			slog.String("activity_id", rd.ActivityID),
			slog.String("method", rd.Method),
			slog.String("path", rd.Path),
		))
	}

	if cd, ok := ctx.Value(callerDataKey{}).(*CallerData); ok {
		r.AddAttrs(slog.Group("caller",
			slog.String("tenant_id", cd.TenantID),
			slog.String("object_id", cd.ObjectID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

// RequestData identifies one inbound control-plane or data-plane request.
type RequestData struct {
	RequestID  string
	ActivityID string
	Method     string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type callerDataKey struct{}

// CallerData identifies the authenticated caller.
type CallerData struct {
	TenantID string
	ObjectID string
}

func WithCallerData(ctx context.Context, data *CallerData) context.Context {
	return context.WithValue(ctx, callerDataKey{}, data)
}
