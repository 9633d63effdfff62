package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/lodtree/featureflag"
	"github.com/aukilabs/lodtree/lod"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

const (
	// The header where clients can set their identifier.
	HeaderClientID = "X-Client-Id"

	batchChanSize = 8
)

// FrontierSource is the tree whose frontier is streamed.
type FrontierSource interface {
	UUID() string
	Frontier() []lod.FrontierEntry
	OnBatchApplied(h func(lod.BatchReport)) (cancel func())
}

// FrontierHandler streams the visible frontier of a tree to a client each time
// a decision batch is applied.
type FrontierHandler struct {
	Tree FrontierSource

	// The interval between each sync clock message sent to the connected
	// client.
	ClientSyncClockInterval time.Duration

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	FeatureFlags featureflag.FeatureFlag

	conn        *websocket.Conn
	clientID    string
	batches     chan lod.BatchReport
	unsubscribe func()
}

func (h *FrontierHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn

	h.clientID = conn.Request().Header.Get(HeaderClientID)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}

	h.batches = make(chan lod.BatchReport, batchChanSize)

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableFrontierStream, func() {
		h.unsubscribe = h.Tree.OnBatchApplied(h.enqueueBatch)
	})
}

// enqueueBatch is called from the goroutine that ticks the tree and must not
// block.
func (h *FrontierHandler) enqueueBatch(r lod.BatchReport) {
	select {
	case h.batches <- r:
	default:
		wsDroppedBatches.Inc()
		logs.WithTag(clientIDTag, h.clientID).
			WithTag("sequence", r.Sequence).
			Debug("frontier batch dropped")
	}
}

func (h *FrontierHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(Msg{
		Type:      MsgTypePingResponse,
		Timestamp: time.Now(),
		RequestID: msg.RequestID,
	})
	return nil
}

func (h *FrontierHandler) HandleSnapshot(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(Msg{
		Type:      MsgTypeFrontier,
		Timestamp: time.Now(),
		RequestID: msg.RequestID,
		Frontier:  h.Tree.Frontier(),
	})
	return nil
}

func (h *FrontierHandler) HandleBatch(ctx context.Context, respond ResponseSender, r lod.BatchReport) error {
	respond.Send(Msg{
		Type:      MsgTypeFrontier,
		Timestamp: time.Now(),
		Report:    &r,
		Frontier:  h.Tree.Frontier(),
	})
	return nil
}

func (h *FrontierHandler) HandleDisconnect(_ error) {
	h.stopStream()
}

func (h *FrontierHandler) SendSyncClock(ctx context.Context, respond ResponseSender) error {
	respond.Send(Msg{
		Type:      MsgTypeSyncClock,
		Timestamp: time.Now(),
	})
	return nil
}

func (h *FrontierHandler) Batches() <-chan lod.BatchReport {
	return h.batches
}

func (h *FrontierHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		return Receive(h.conn)
	}
}

func (h *FrontierHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		return Send(h.conn, msg)
	}
}

func (h *FrontierHandler) Close() {
	h.stopStream()
}

func (h *FrontierHandler) stopStream() {
	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}
}

func (h *FrontierHandler) SyncClockInterval() time.Duration {
	return h.ClientSyncClockInterval
}

func (h *FrontierHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *FrontierHandler) GetClientID() string {
	return h.clientID
}
