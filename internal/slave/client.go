package slave

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"yqhp/kambo-hive/internal/protocol"
	"yqhp/kambo-hive/pkg/types"
)

// Client 封装与 host 的一条 TCP 连接。
// 每次调用都是一次完整的请求/响应往返，并发调用由互斥锁串行化。
type Client struct {
	conn           net.Conn
	codec          *protocol.Codec
	requestTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// Dial 连接 host。
func Dial(ctx context.Context, addr string, dialTimeout, requestTimeout time.Duration, maxFrameSize int) (*Client, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("连接 host %s 失败: %w", addr, err)
	}
	return &Client{
		conn:           conn,
		codec:          protocol.NewCodec(conn, maxFrameSize),
		requestTimeout: requestTimeout,
	}, nil
}

// Call 发送一个请求并等待响应。
func (c *Client) Call(req protocol.Request) (protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, net.ErrClosed
	}
	if c.requestTimeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.requestTimeout)); err != nil {
			return nil, c.fail(err)
		}
	}
	if err := c.codec.WriteRequest(req); err != nil {
		return nil, c.fail(err)
	}
	resp, err := c.codec.ReadResponse()
	if err != nil {
		return nil, c.fail(err)
	}
	return resp, nil
}

// fail 关闭连接：超时后迟到的响应会与下一个请求错位。调用方持有 c.mu。
func (c *Client) fail(err error) error {
	c.closed = true
	c.conn.Close()
	return err
}

// RequestTask 请求下一个任务，没有可用任务时返回 nil。
func (c *Client) RequestTask(workerID string) (*types.Task, error) {
	resp, err := c.Call(&protocol.RequestTask{WorkerID: workerID})
	if err != nil {
		return nil, err
	}
	switch m := resp.(type) {
	case *protocol.AssignTask:
		return m.Task, nil
	case *protocol.NoTaskAvailable:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: 请求任务收到意外响应 %T", protocol.ErrProtocol, resp)
	}
}

// ReportResult 上报任务结果。
func (c *Client) ReportResult(workerID string, result *types.TaskResult) error {
	return c.expectAck(&protocol.ReportResult{WorkerID: workerID, Result: result})
}

// ReportFailure 上报任务执行失败。
func (c *Client) ReportFailure(workerID, taskID, reason string) error {
	return c.expectAck(&protocol.ReportFailure{WorkerID: workerID, TaskID: taskID, Reason: reason})
}

// Heartbeat 发送心跳。
func (c *Client) Heartbeat(workerID string) error {
	return c.expectAck(&protocol.Heartbeat{WorkerID: workerID})
}

func (c *Client) expectAck(req protocol.Request) error {
	resp, err := c.Call(req)
	if err != nil {
		return err
	}
	if _, ok := resp.(*protocol.Ack); !ok {
		return fmt.Errorf("%w: 期望 ack，收到 %T", protocol.ErrProtocol, resp)
	}
	return nil
}

// Close 关闭连接。
func (c *Client) Close() error {
	// 先关闭连接以打断阻塞中的 Call
	err := c.conn.Close()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return err
}
