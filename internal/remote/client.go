package remote

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/forest-guardian/index-composite/internal/export"
)

const maxMessageSize = 10 * 1024 * 1024

// Client submits exports to a remote platform.
type Client struct {
	conn *grpc.ClientConn
}

func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageSize),
			grpc.MaxCallSendMsgSize(maxMessageSize),
		),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to platform: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) ExportImage(ctx context.Context, task export.ImageTask) (export.Job, error) {
	return c.call(ctx, "ExportImage", task)
}

func (c *Client) ExportTable(ctx context.Context, task export.TableTask) (export.Job, error) {
	return c.call(ctx, "ExportTable", task)
}

func (c *Client) Status(ctx context.Context, id string) (export.Job, error) {
	return c.call(ctx, "Status", statusRequest{ID: id})
}

func (c *Client) Wait(ctx context.Context, id string, interval time.Duration) (export.Job, error) {
	return export.Wait(ctx, c, id, interval)
}

func (c *Client) call(ctx context.Context, method string, req any) (export.Job, error) {
	in, err := toStruct(req)
	if err != nil {
		return export.Job{}, err
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, out); err != nil {
		return export.Job{}, fromStatus(err)
	}
	var job export.Job
	if err := fromStruct(out, &job); err != nil {
		return export.Job{}, err
	}
	return job, nil
}
