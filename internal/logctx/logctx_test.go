package logctx

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func capturingLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(Handler{Handler: inner}), &buf
}

func TestHandlerEnrichesFromContext(t *testing.T) {
	log, buf := capturingLogger()

	ctx := WithTargetData(context.Background(), &TargetData{Name: "ref", RunID: "run-1"})
	ctx = WithStepData(ctx, &StepData{Index: 2, Method: "tools/list"})
	ctx = WithRPCMessage(ctx, &RPCMessage{Method: "tools/list", ID: "2", Type: "request"})

	log.InfoContext(ctx, "step complete")

	out := buf.String()
	for _, want := range []string{
		"target.name=ref",
		"target.run_id=run-1",
		"step.index=2",
		"step.method=tools/list",
		"rpc.id=2",
		"rpc.type=request",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("record missing %q: %s", want, out)
		}
	}
}

func TestHandlerPassesBareContextThrough(t *testing.T) {
	log, buf := capturingLogger()
	log.Info("plain")

	out := buf.String()
	if strings.Contains(out, "target.") || strings.Contains(out, "step.") {
		t.Errorf("bare record should carry no harness groups: %s", out)
	}
	if !strings.Contains(out, "plain") {
		t.Errorf("record lost its message: %s", out)
	}
}

func TestTargetDataFromContext(t *testing.T) {
	if _, ok := TargetDataFromContext(context.Background()); ok {
		t.Error("empty context should report no target data")
	}
	ctx := WithTargetData(context.Background(), &TargetData{Name: "x"})
	td, ok := TargetDataFromContext(ctx)
	if !ok || td.Name != "x" {
		t.Errorf("got %+v (ok=%v)", td, ok)
	}
}
