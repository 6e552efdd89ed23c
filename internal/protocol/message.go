package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"

	"yqhp/kambo-hive/pkg/types"
)

// MessageType identifies the variant carried by an envelope.
type MessageType string

const (
	// Requests, worker to host.
	TypeRequestTask   MessageType = "request_task"
	TypeReportResult  MessageType = "report_result"
	TypeReportFailure MessageType = "report_failure"
	TypeHeartbeat     MessageType = "heartbeat"

	// Responses, host to worker.
	TypeAssignTask      MessageType = "assign_task"
	TypeNoTaskAvailable MessageType = "no_task_available"
	TypeAck             MessageType = "ack"
	TypeCommand         MessageType = "command"
)

// Request is a message sent by a worker. The set of implementations is closed.
type Request interface {
	// Worker returns the identity asserted by the sender.
	Worker() string
	requestType() MessageType
}

// Response is a message sent by the host. The set of implementations is closed.
type Response interface {
	responseType() MessageType
}

// RequestTask asks the host for the next pending task.
type RequestTask struct {
	WorkerID string `json:"worker_id"`
}

// ReportResult carries the result of a completed task.
type ReportResult struct {
	WorkerID string            `json:"worker_id"`
	Result   *types.TaskResult `json:"result"`
}

// ReportFailure tells the host a task could not be computed.
type ReportFailure struct {
	WorkerID string `json:"worker_id"`
	TaskID   string `json:"task_id"`
	Reason   string `json:"reason"`
}

// Heartbeat signals the worker is alive.
type Heartbeat struct {
	WorkerID string `json:"worker_id"`
}

func (m *RequestTask) Worker() string   { return m.WorkerID }
func (m *ReportResult) Worker() string  { return m.WorkerID }
func (m *ReportFailure) Worker() string { return m.WorkerID }
func (m *Heartbeat) Worker() string     { return m.WorkerID }

func (*RequestTask) requestType() MessageType   { return TypeRequestTask }
func (*ReportResult) requestType() MessageType  { return TypeReportResult }
func (*ReportFailure) requestType() MessageType { return TypeReportFailure }
func (*Heartbeat) requestType() MessageType     { return TypeHeartbeat }

// AssignTask hands a task to the requesting worker.
type AssignTask struct {
	Task *types.Task `json:"task"`
}

// NoTaskAvailable means the pending set is empty right now.
type NoTaskAvailable struct{}

// Ack acknowledges a report or heartbeat.
type Ack struct{}

// Command is reserved for host to worker control signals.
type Command struct {
	CommandType string `json:"command_type"`
	Payload     []byte `json:"payload,omitempty"`
}

func (*AssignTask) responseType() MessageType      { return TypeAssignTask }
func (*NoTaskAvailable) responseType() MessageType { return TypeNoTaskAvailable }
func (*Ack) responseType() MessageType             { return TypeAck }
func (*Command) responseType() MessageType         { return TypeCommand }

type envelope struct {
	Type MessageType `json:"type"`
	Body any         `json:"body,omitempty"`
}

type header struct {
	Type MessageType `json:"type"`
}

// EncodeRequest serializes a request into an envelope.
func EncodeRequest(req Request) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrProtocol)
	}
	return sonic.Marshal(&envelope{Type: req.requestType(), Body: req})
}

// EncodeResponse serializes a response into an envelope.
func EncodeResponse(resp Response) ([]byte, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", ErrProtocol)
	}
	return sonic.Marshal(&envelope{Type: resp.responseType(), Body: resp})
}

// DecodeRequest parses an envelope produced by EncodeRequest.
func DecodeRequest(data []byte) (Request, error) {
	t, err := peekType(data)
	if err != nil {
		return nil, err
	}

	switch t {
	case TypeRequestTask:
		return decodeBody[RequestTask](data)
	case TypeReportResult:
		m, err := decodeBody[ReportResult](data)
		if err != nil {
			return nil, err
		}
		if m.Result == nil {
			return nil, fmt.Errorf("%w: report_result without result", ErrProtocol)
		}
		return m, nil
	case TypeReportFailure:
		return decodeBody[ReportFailure](data)
	case TypeHeartbeat:
		return decodeBody[Heartbeat](data)
	default:
		return nil, fmt.Errorf("%w: unexpected request type %q", ErrProtocol, t)
	}
}

// DecodeResponse parses an envelope produced by EncodeResponse.
func DecodeResponse(data []byte) (Response, error) {
	t, err := peekType(data)
	if err != nil {
		return nil, err
	}

	switch t {
	case TypeAssignTask:
		m, err := decodeBody[AssignTask](data)
		if err != nil {
			return nil, err
		}
		if m.Task == nil {
			return nil, fmt.Errorf("%w: assign_task without task", ErrProtocol)
		}
		return m, nil
	case TypeNoTaskAvailable:
		return &NoTaskAvailable{}, nil
	case TypeAck:
		return &Ack{}, nil
	case TypeCommand:
		return decodeBody[Command](data)
	default:
		return nil, fmt.Errorf("%w: unexpected response type %q", ErrProtocol, t)
	}
}

func peekType(data []byte) (MessageType, error) {
	var h header
	if err := sonic.Unmarshal(data, &h); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if h.Type == "" {
		return "", fmt.Errorf("%w: missing message type", ErrProtocol)
	}
	return h.Type, nil
}

func decodeBody[T any](data []byte) (*T, error) {
	var env struct {
		Body *T `json:"body"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if env.Body == nil {
		return nil, fmt.Errorf("%w: missing message body", ErrProtocol)
	}
	return env.Body, nil
}
