package client

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/kconf/internal/model"
	"github.com/alfredjeanlab/kconf/internal/rpc"
)

// GRPCClient implements ConfigClient using the gRPC transport.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
}

// NewGRPCClient connects to the given gRPC address and returns a client.
// Extra dial options are appended after the insecure transport credentials.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) invoke(ctx context.Context, method string, fields map[string]*structpb.Value) (*structpb.Value, error) {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	resp := new(structpb.Value)
	if err := c.conn.Invoke(ctx, rpc.FullMethod(method), &structpb.Struct{Fields: fields}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// keyFields addresses key in the global namespace, or in userID's when set.
func keyFields(userID, key string) map[string]*structpb.Value {
	f := map[string]*structpb.Value{
		rpc.FieldKey: structpb.NewStringValue(key),
	}
	if userID != "" {
		f[rpc.FieldNamespace] = structpb.NewStringValue("user")
		f[rpc.FieldUserID] = structpb.NewStringValue(userID)
	}
	return f
}

func (c *GRPCClient) Get(ctx context.Context, userID, key string, def json.RawMessage) (json.RawMessage, error) {
	f := keyFields(userID, key)
	if def != nil {
		f[rpc.FieldDefault] = rpc.EncodeDocument(def)
	}
	resp, err := c.invoke(ctx, rpc.MethodGet, f)
	if err != nil {
		return nil, err
	}
	return valueToRaw(resp)
}

func (c *GRPCClient) Set(ctx context.Context, userID, key string, value json.RawMessage) (json.RawMessage, error) {
	return c.write(ctx, rpc.MethodSet, userID, key, value)
}

func (c *GRPCClient) Update(ctx context.Context, userID, key string, value json.RawMessage) (json.RawMessage, error) {
	return c.write(ctx, rpc.MethodUpdate, userID, key, value)
}

func (c *GRPCClient) write(ctx context.Context, method, userID, key string, value json.RawMessage) (json.RawMessage, error) {
	f := keyFields(userID, key)
	f[rpc.FieldValue] = rpc.EncodeDocument(value)
	resp, err := c.invoke(ctx, method, f)
	if err != nil {
		return nil, err
	}
	return valueToRaw(resp)
}

func (c *GRPCClient) List(ctx context.Context, prefix string) ([]*model.Entry, error) {
	resp, err := c.invoke(ctx, rpc.MethodList, map[string]*structpb.Value{
		rpc.FieldPrefix: structpb.NewStringValue(prefix),
	})
	if err != nil {
		return nil, err
	}
	items := resp.GetListValue().GetValues()
	entries := make([]*model.Entry, 0, len(items))
	for _, item := range items {
		f := item.GetStructValue().GetFields()
		value, err := valueToRaw(f["value"])
		if err != nil {
			return nil, err
		}
		entries = append(entries, &model.Entry{
			ID:    f["id"].GetStringValue(),
			Path:  f["path"].GetStringValue(),
			Value: value,
		})
	}
	return entries, nil
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	resp, err := c.invoke(ctx, rpc.MethodHealth, nil)
	if err != nil {
		return "", err
	}
	return resp.GetStructValue().GetFields()["status"].GetStringValue(), nil
}

func valueToRaw(v *structpb.Value) (json.RawMessage, error) {
	raw, err := rpc.DecodeDocument(v)
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return nullToNil(raw), nil
}
