package master

import (
	"context"
	"net"

	"yqhp/kambo-hive/internal/protocol"
)

type netDialer struct{}

type testClient struct {
	conn  net.Conn
	codec *protocol.Codec
}

func (d *netDialer) dial(ctx context.Context, addr string) (*testClient, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &testClient{conn: conn, codec: protocol.NewCodec(conn, 0)}, nil
}

func (c *testClient) call(req protocol.Request) (protocol.Response, error) {
	if err := c.codec.WriteRequest(req); err != nil {
		return nil, err
	}
	return c.codec.ReadResponse()
}
