package websocket

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/lodtree/lod"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeMsgDecode = "msg_decode"
	ErrTypeMsgEncode = "msg_encode"
)

// MsgType is the type of a message exchanged on a frontier stream.
type MsgType string

const (
	MsgTypePingRequest     MsgType = "ping_request"
	MsgTypePingResponse    MsgType = "ping_response"
	MsgTypeSnapshotRequest MsgType = "snapshot_request"
	MsgTypeFrontier        MsgType = "frontier"
	MsgTypeSyncClock       MsgType = "sync_clock"
)

// Msg is a JSON message exchanged with a client.
type Msg struct {
	Type      MsgType   `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id,omitempty"`

	// Set on frontier messages sent after a decision batch is applied.
	Report *lod.BatchReport `json:"report,omitempty"`

	Frontier []lod.FrontierEntry `json:"frontier,omitempty"`
}

func (m Msg) TypeString() string {
	if m.Type == "" {
		return "unknown"
	}
	return string(m.Type)
}

// Receiver receives a message and returns the number of bytes read.
type Receiver func() (Msg, int, error)

// Sender sends a message and returns the number of bytes written.
type Sender func(Msg) (int, error)

// ResponseSender queues messages to be sent to a client.
type ResponseSender interface {
	Send(Msg)
}

// Receive reads a JSON message from the given connection.
func Receive(conn *websocket.Conn) (Msg, int, error) {
	var data []byte
	if err := websocket.Message.Receive(conn, &data); err != nil {
		return Msg{}, 0, err
	}

	var msg Msg
	if err := json.Unmarshal(data, &msg); err != nil {
		return Msg{}, len(data), errors.New("decoding message failed").
			WithType(ErrTypeMsgDecode).
			Wrap(err)
	}
	return msg, len(data), nil
}

// Send writes the given message as a JSON text frame.
func Send(conn *websocket.Conn, msg Msg) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, errors.New("encoding message failed").
			WithType(ErrTypeMsgEncode).
			WithTag("msg_type", msg.TypeString()).
			Wrap(err)
	}

	if err := websocket.Message.Send(conn, string(data)); err != nil {
		return 0, err
	}
	return len(data), nil
}
