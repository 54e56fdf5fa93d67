package assistant

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// generateMethod is the fully-qualified gRPC method the sidecar assistant
// service exposes. No compiled .proto stub package ships with this
// deployment, so requests/responses are carried as google.protobuf.Struct
// (a stock, already-compiled proto.Message) over a manually-described
// streaming RPC instead of generated client code.
const generateMethod = "/ariana.assistant.v1.AssistantService/Generate"

// GRPCClient implements Client against an external assistant sidecar: a
// single long-lived *grpc.ClientConn, one stream per call, and a
// goroutine translating stream.RecvMsg into a buffered Chunk channel.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// NewGRPCClient dials addr. Plaintext transport: the assistant sidecar runs
// colocated with the worker process.
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial assistant service at %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Generate starts one turn and streams back Chunks until the assistant
// finishes or the stream errors.
func (c *GRPCClient) Generate(ctx context.Context, sessionID string, messages []Message, model string) (<-chan Chunk, error) {
	desc := &grpc.StreamDesc{StreamName: "Generate", ServerStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, generateMethod)
	if err != nil {
		return nil, fmt.Errorf("open assistant stream: %w", err)
	}

	req, err := structpb.NewStruct(map[string]any{
		"sessionId": sessionID,
		"model":     model,
		"messages":  messagesToValue(messages),
	})
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, fmt.Errorf("send generate request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("close generate request: %w", err)
	}

	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)
		for {
			resp := &structpb.Struct{}
			err := stream.RecvMsg(resp)
			if err == io.EOF {
				return
			}
			if err != nil {
				select {
				case ch <- &ErrorUpdate{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			chunk := structToChunk(resp)
			if chunk == nil {
				continue
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

func messagesToValue(messages []Message) []any {
	out := make([]any, len(messages))
	for i, m := range messages {
		out[i] = map[string]any{
			"role": m.Role,
			"text": m.Text,
		}
	}
	return out
}

// structToChunk decodes one server response into the corresponding Chunk
// variant, discriminated by its "type" field.
func structToChunk(s *structpb.Struct) Chunk {
	fields := s.AsMap()
	switch fields["type"] {
	case "message":
		return &MessageUpdate{
			APIMessageID: stringField(fields, "apiMessageId"),
			Text:         stringField(fields, "text"),
			Done:         boolField(fields, "done"),
		}
	case "usage":
		return &UsageUpdate{
			InputTokens:   intField(fields, "inputTokens"),
			CacheTokens:   intField(fields, "cacheTokens"),
			OutputTokens:  intField(fields, "outputTokens"),
			ContextWindow: intField(fields, "contextWindow"),
		}
	case "compaction":
		return &CompactionUpdate{
			Trigger:             stringField(fields, "trigger"),
			PreCompactionTokens: intField(fields, "preCompactionTokens"),
		}
	case "error":
		return &ErrorUpdate{Err: fmt.Errorf("%s", stringField(fields, "message"))}
	default:
		return nil
	}
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func boolField(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func intField(m map[string]any, key string) int {
	v, _ := m[key].(float64) // structpb decodes JSON numbers as float64
	return int(v)
}
