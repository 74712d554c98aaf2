package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func logLine(t *testing.T, ctx context.Context) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)})
	log.InfoContext(ctx, "hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	return record
}

func TestHandlerAddsContextAttrs(t *testing.T) {
	ctx := WithRequestData(context.Background(), &RequestData{
		RequestID:  "req-1",
		ActivityID: "act-1",
		Method:     "GET",
		Path:       "/v1/items",
	})
	ctx = WithCallerData(ctx, &CallerData{TenantID: "tenant-x", ObjectID: "user-1"})

	record := logLine(t, ctx)
	req, ok := record["req"].(map[string]any)
	if !ok {
		t.Fatalf("missing req group: %v", record)
	}
	if req["request_id"] != "req-1" || req["method"] != "GET" {
		t.Fatalf("req group: %v", req)
	}
	caller, ok := record["caller"].(map[string]any)
	if !ok {
		t.Fatalf("missing caller group: %v", record)
	}
	if caller["tenant_id"] != "tenant-x" || caller["object_id"] != "user-1" {
		t.Fatalf("caller group: %v", caller)
	}
}

func TestHandlerBareContext(t *testing.T) {
	record := logLine(t, context.Background())
	if _, ok := record["req"]; ok {
		t.Fatal("unexpected req group")
	}
	if _, ok := record["caller"]; ok {
		t.Fatal("unexpected caller group")
	}
	if record["msg"] != "hello" {
		t.Fatalf("msg: %v", record["msg"])
	}
}
