package control

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/dialog/internal/errs"
)

// Client calls the control service of a running client.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial connects to the control socket at socketPath. The connection is
// established lazily on the first call.
func Dial(socketPath string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial control socket: %w", err)
	}
	return NewClient(conn), conn, nil
}

// Status returns the GetStatus document.
func (c *Client) Status(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/GetStatus", &emptypb.Empty{}, out); err != nil {
		return nil, errs.FromStatus("get_status", err)
	}
	return out, nil
}

// Poll triggers an immediate relay poll.
func (c *Client) Poll(ctx context.Context) error {
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/Poll", &emptypb.Empty{}, new(emptypb.Empty)); err != nil {
		return errs.FromStatus("poll", err)
	}
	return nil
}

// Watch calls fn for every streamed event whose kind starts with prefix,
// until ctx ends, the server closes the stream or fn returns an error.
func (c *Client) Watch(ctx context.Context, prefix string, fn func(*structpb.Struct) error) error {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], "/"+ServiceName+"/Watch")
	if err != nil {
		return errs.FromStatus("watch", err)
	}
	req, err := structpb.NewStruct(map[string]any{"prefix": prefix})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return errs.FromStatus("watch", err)
	}
	if err := stream.CloseSend(); err != nil {
		return errs.FromStatus("watch", err)
	}
	for {
		evt := new(structpb.Struct)
		if err := stream.RecvMsg(evt); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return errs.FromStatus("watch", err)
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}
