// Package logctx enriches slog records with harness context: which target
// a record concerns, which script step was executing, and which JSON-RPC
// message was in flight.
package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if td, ok := ctx.Value(targetDataKey{}).(*TargetData); ok {
		r.AddAttrs(slog.Group("target",
			slog.String("name", td.Name),
			slog.String("run_id", td.RunID),
		))
	}

	if sd, ok := ctx.Value(stepDataKey{}).(*StepData); ok {
		r.AddAttrs(slog.Group("step",
			slog.Int("index", sd.Index),
			slog.String("method", sd.Method),
		))
	}

	if msg, ok := ctx.Value(rpcMsg{}).(*RPCMessage); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID),
			slog.String("type", msg.Type),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type rpcMsg struct{}

type RPCMessage struct {
	Method string
	ID     string
	Type   string
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcMsg{}, msg)
}

type targetDataKey struct{}

type TargetData struct {
	Name  string
	RunID string
}

func WithTargetData(ctx context.Context, data *TargetData) context.Context {
	return context.WithValue(ctx, targetDataKey{}, data)
}

// TargetDataFromContext reports the target data already attached, if any.
func TargetDataFromContext(ctx context.Context) (*TargetData, bool) {
	td, ok := ctx.Value(targetDataKey{}).(*TargetData)
	return td, ok
}

type stepDataKey struct{}

type StepData struct {
	Index  int
	Method string
}

func WithStepData(ctx context.Context, data *StepData) context.Context {
	return context.WithValue(ctx, stepDataKey{}, data)
}
