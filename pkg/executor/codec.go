package executor

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered once at package init so grpcManager can
// invoke RPCs without generated protobuf stubs: the executor-manager wire
// protocol is explicitly out of scope (spec §1), but the core still talks
// real gRPC — framing, multiplexing, deadlines, connection pooling — over
// a JSON payload instead of a protobuf one.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
