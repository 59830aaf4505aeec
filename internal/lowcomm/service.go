package lowcomm

import (
	"bytes"
	"encoding/gob"
	"io"

	"google.golang.org/grpc"
)

// gobCodec lets the Exchange RPC carry plain Go structs (Envelope)
// instead of requiring protobuf-generated message types: grpc's codec
// is a pluggable extension point and does not itself mandate
// protobuf, only that Marshal/Unmarshal round-trip whatever the
// service registers.
type gobCodec struct{}

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return gobCodecName }

const exchangeMethod = "/griddist.lowcomm.Exchange/Push"

var exchangeStreamDesc = grpc.StreamDesc{
	StreamName:    "Push",
	ClientStreams: true,
}

// exchangeServiceDesc registers one client-streaming method, Push: a
// peer dials in and streams Envelopes that get handed to
// deliverEnvelope as they arrive.
var exchangeServiceDesc = grpc.ServiceDesc{
	ServiceName: "griddist.lowcomm.Exchange",
	HandlerType: (*GRPCTransport)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Push",
			Handler:       pushHandler,
			ClientStreams: true,
		},
	},
}

func pushHandler(srv any, stream grpc.ServerStream) error {
	t := srv.(*GRPCTransport)
	for {
		var env Envelope
		if err := stream.RecvMsg(&env); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		t.deliverEnvelope(&env)
	}
}
