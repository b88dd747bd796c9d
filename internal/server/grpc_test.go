package server

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/kconf/internal/rpc"
)

// startGRPC serves cs on an in-memory listener and returns a client
// connection to it.
func startGRPC(t *testing.T, cs *ConfigServer, token string) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(cs, token)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, fields map[string]any) (*structpb.Value, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Value)
	err = conn.Invoke(ctx, rpc.FullMethod(method), req, resp)
	return resp, err
}

func valueJSON(t *testing.T, v *structpb.Value) string {
	t.Helper()
	raw, err := rpc.DecodeDocument(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func TestGRPCSetGetUpdate(t *testing.T) {
	ctx := context.Background()
	cs, pub, _ := newTestServer(t)
	conn := startGRPC(t, cs, "")

	if _, err := invoke(ctx, conn, "Set", map[string]any{
		"key":   "features",
		"value": `{"a":true}`,
	}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	delta, err := invoke(ctx, conn, "Update", map[string]any{
		"key":   "features",
		"value": `{"b":2}`,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := valueJSON(t, delta); got != `{"b":2}` {
		t.Errorf("Update returned %s, want the delta", got)
	}

	got, err := invoke(ctx, conn, "Get", map[string]any{"key": "features"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s := valueJSON(t, got); s != `{"a":true,"b":2}` {
		t.Errorf("Get = %s", s)
	}

	if topics, _ := pub.snapshot(); len(topics) != 2 {
		t.Errorf("published %d events, want 2", len(topics))
	}
}

func TestGRPCUserNamespaceAndDefault(t *testing.T) {
	ctx := context.Background()
	cs, _, st := newTestServer(t)
	conn := startGRPC(t, cs, "")

	got, err := invoke(ctx, conn, "Get", map[string]any{
		"namespace": "user",
		"user_id":   "alice",
		"key":       "prefs",
		"default":   `{"lang":"en"}`,
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s := valueJSON(t, got); s != `{"lang":"en"}` {
		t.Errorf("Get = %s", s)
	}

	entries, _ := st.ListEntries(ctx, "internal/user/alice/")
	if len(entries) != 1 || entries[0].Path != "internal/user/alice/prefs" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestGRPCMissingWithoutDefaultIsNull(t *testing.T) {
	cs, _, _ := newTestServer(t)
	conn := startGRPC(t, cs, "")

	got, err := invoke(context.Background(), conn, "Get", map[string]any{"key": "nothing"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.GetKind().(*structpb.Value_NullValue); !ok {
		t.Errorf("Get = %v, want null", got)
	}
}

func TestGRPCInvalidArguments(t *testing.T) {
	cs, _, _ := newTestServer(t)
	conn := startGRPC(t, cs, "")

	for _, tc := range []struct {
		name   string
		method string
		fields map[string]any
	}{
		{"EmptyKey", "Set", map[string]any{"value": "1"}},
		{"UserWithoutID", "Get", map[string]any{"namespace": "user", "key": "k"}},
		{"UnknownNamespace", "Update", map[string]any{"namespace": "team", "key": "k", "value": "1"}},
		{"MissingValue", "Set", map[string]any{"key": "k"}},
		{"StructuredValue", "Set", map[string]any{"key": "k", "value": map[string]any{"a": 1}}},
		{"InvalidJSONText", "Update", map[string]any{"key": "k", "value": "{bad"}},
		{"StructuredDefault", "Get", map[string]any{"key": "k", "default": 1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := invoke(context.Background(), conn, tc.method, tc.fields)
			if status.Code(err) != codes.InvalidArgument {
				t.Fatalf("code = %v, want InvalidArgument (err %v)", status.Code(err), err)
			}
		})
	}
}

func TestGRPCList(t *testing.T) {
	ctx := context.Background()
	cs, _, _ := newTestServer(t)
	conn := startGRPC(t, cs, "")

	invoke(ctx, conn, "Set", map[string]any{"key": "b", "value": "2"})
	invoke(ctx, conn, "Set", map[string]any{"key": "a", "value": `"x"`})

	got, err := invoke(ctx, conn, "List", map[string]any{"prefix": "internal/global/"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	items := got.GetListValue().GetValues()
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	first := items[0].GetStructValue().GetFields()
	if first["path"].GetStringValue() != "internal/global/a" || first["value"].GetStringValue() != `"x"` {
		t.Errorf("first item = %v", first)
	}
	if first["id"].GetStringValue() == "" {
		t.Error("item id is empty")
	}
}

func TestGRPCPreservesLargeIntegers(t *testing.T) {
	ctx := context.Background()
	cs, _, st := newTestServer(t)
	conn := startGRPC(t, cs, "")

	const doc = `{"id":9007199254740993}`
	if _, err := invoke(ctx, conn, "Set", map[string]any{"key": "big", "value": doc}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	stored, err := st.Get(ctx, "internal/global/big", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(stored) != doc {
		t.Errorf("stored %s, want %s", stored, doc)
	}

	// A value written by another transport reads back unchanged.
	st.Set(ctx, "internal/global/other", json.RawMessage(`[18446744073709551615]`))
	got, err := invoke(ctx, conn, "Get", map[string]any{"key": "other"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s := valueJSON(t, got); s != `[18446744073709551615]` {
		t.Errorf("Get = %s", s)
	}
}

func TestGRPCStoreUnavailable(t *testing.T) {
	conn := startGRPC(t, newFailingServer(errUnavailable()), "")
	_, err := invoke(context.Background(), conn, "Get", map[string]any{"key": "k"})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("code = %v, want Unavailable", status.Code(err))
	}
}

func TestGRPCAuth(t *testing.T) {
	cs, _, _ := newTestServer(t)
	conn := startGRPC(t, cs, "secret")

	_, err := invoke(context.Background(), conn, "Get", map[string]any{"key": "k"})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("no token: code = %v, want Unauthenticated", status.Code(err))
	}

	if _, err := invoke(context.Background(), conn, "Health", nil); err != nil {
		t.Fatalf("Health should be exempt: %v", err)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer secret")
	if _, err := invoke(ctx, conn, "Get", map[string]any{"key": "k"}); err != nil {
		t.Fatalf("with token: %v", err)
	}
}

func TestGRPCStandardHealth(t *testing.T) {
	cs, _, _ := newTestServer(t)
	conn := startGRPC(t, cs, "secret")

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: rpc.ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}
