package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/session"
)

// Client is a session.Session backed by a remote DeviceSession service.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to addr without transport security.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection. Close is then a no-op.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// ListRecords implements session.Session.
func (c *Client) ListRecords(ctx context.Context, path string) ([]entry.Record, error) {
	req, err := structpb.NewStruct(map[string]any{"path": path})
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listRecordsMethod, req, resp); err != nil {
		return nil, fromStatus(err)
	}
	values := resp.GetFields()["records"].GetListValue().GetValues()
	records := make([]entry.Record, 0, len(values))
	for _, v := range values {
		records = append(records, decodeRecord(v.GetStructValue()))
	}
	return records, nil
}

// UpdateRecord implements session.Session.
func (c *Client) UpdateRecord(ctx context.Context, path, id string, changes map[string]any) error {
	req, err := structpb.NewStruct(map[string]any{
		"path":    path,
		"id":      id,
		"changes": changes,
	})
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	if err := c.cc.Invoke(ctx, updateRecordMethod, req, new(emptypb.Empty)); err != nil {
		return fromStatus(err)
	}
	return nil
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", st.Message(), session.ErrNoSuchRecord)
	case codes.Canceled:
		return fmt.Errorf("%s: %w", st.Message(), context.Canceled)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", st.Message(), context.DeadlineExceeded)
	default:
		return err
	}
}

var _ session.Session = (*Client)(nil)
