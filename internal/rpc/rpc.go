// Package rpc holds the wire conventions of kconf.v1.ConfigService shared by
// the gRPC server and client. Messages are google.protobuf.Struct requests
// and google.protobuf.Value responses, so no generated code is involved.
// Configuration documents travel as JSON text inside string Values, never
// as structured Values, which would turn every number into a float64.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "kconf.v1.ConfigService"

// Method names.
const (
	MethodGet    = "Get"
	MethodSet    = "Set"
	MethodUpdate = "Update"
	MethodList   = "List"
	MethodHealth = "Health"
)

// Request fields.
const (
	FieldNamespace = "namespace"
	FieldUserID    = "user_id"
	FieldKey       = "key"
	FieldValue     = "value"
	FieldDefault   = "default"
	FieldPrefix    = "prefix"
)

// FullMethod returns the "/service/method" path used on the wire.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ErrNotDocument is returned by DecodeDocument for a Value that does not
// carry JSON text.
var ErrNotDocument = errors.New("document must be a string holding JSON text")

// EncodeDocument carries raw as its JSON text in a string Value, so the
// bytes reach the other side unchanged (integers above 2^53 included).
// Nil is the absence marker and maps to a null Value.
func EncodeDocument(raw json.RawMessage) *structpb.Value {
	if raw == nil {
		return structpb.NewNullValue()
	}
	return structpb.NewStringValue(string(raw))
}

// DecodeDocument is the inverse of EncodeDocument. A missing or null Value
// yields nil.
func DecodeDocument(v *structpb.Value) (json.RawMessage, error) {
	switch k := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_StringValue:
		if !json.Valid([]byte(k.StringValue)) {
			return nil, fmt.Errorf("invalid JSON document %q", k.StringValue)
		}
		return json.RawMessage(k.StringValue), nil
	default:
		return nil, ErrNotDocument
	}
}
