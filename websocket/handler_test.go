package websocket

import (
	"testing"
	"time"

	"github.com/aukilabs/lodtree/lod"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func receiveMsg(t *testing.T, conn *websocket.Conn, msgType MsgType) Msg {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(time.Second * 5))
	for {
		msg, _, err := Receive(conn)
		require.NoError(t, err)

		if msg.Type == msgType {
			return msg
		}
	}
}

func TestHandlerSendSyncClock(t *testing.T) {
	client, close := NewTestingEnv(t, func() Handler {
		return &FrontierHandler{
			Tree:                    newTestTree(),
			ClientSyncClockInterval: time.Millisecond * 10,
			ClientIdleTimeout:       time.Minute,
		}
	})
	defer close()

	msg := receiveMsg(t, client, MsgTypeSyncClock)
	require.False(t, msg.Timestamp.IsZero())
}

func TestHandlerHandlePing(t *testing.T) {
	client, close := NewTestingEnv(t, newTestHandler(newTestTree()))
	defer close()

	_, err := Send(client, Msg{
		Type:      MsgTypePingRequest,
		Timestamp: time.Now(),
		RequestID: 1,
	})
	require.NoError(t, err)

	msg := receiveMsg(t, client, MsgTypePingResponse)
	require.Equal(t, uint32(1), msg.RequestID)
}

func TestHandlerHandleSnapshot(t *testing.T) {
	tree := newTestTree(
		lod.FrontierEntry{Quadkey: "0", SortOffset: 10},
		lod.FrontierEntry{Quadkey: "1", SortOffset: 10},
	)

	client, close := NewTestingEnv(t, newTestHandler(tree))
	defer close()

	_, err := Send(client, Msg{
		Type:      MsgTypeSnapshotRequest,
		RequestID: 2,
	})
	require.NoError(t, err)

	msg := receiveMsg(t, client, MsgTypeFrontier)
	require.Equal(t, uint32(2), msg.RequestID)
	require.Nil(t, msg.Report)
	require.Len(t, msg.Frontier, 2)
	require.Equal(t, "0", msg.Frontier[0].Quadkey)
}

func TestHandlerStreamsBatches(t *testing.T) {
	tree := newTestTree(lod.FrontierEntry{Quadkey: "21"})

	client, close := NewTestingEnv(t, newTestHandler(tree))
	defer close()

	require.Eventually(t, func() bool {
		return tree.subscribers() == 1
	}, time.Second*5, time.Millisecond*10)

	tree.apply(lod.BatchReport{
		TreeUUID: tree.UUID(),
		Sequence: 3,
		Splits:   1,
		Visible:  1,
	})

	msg := receiveMsg(t, client, MsgTypeFrontier)
	require.NotNil(t, msg.Report)
	require.Equal(t, uint64(3), msg.Report.Sequence)
	require.Equal(t, 1, msg.Report.Splits)
	require.Len(t, msg.Frontier, 1)

	t.Run("disconnection unsubscribes", func(t *testing.T) {
		client.Close()

		require.Eventually(t, func() bool {
			return tree.subscribers() == 0
		}, time.Second*5, time.Millisecond*10)
	})
}

func TestHandlerStreamDisabled(t *testing.T) {
	tree := newTestTree()

	client, close := NewTestingEnv(t, newTestHandler(tree, "DISABLE_FRONTIER_STREAM"))
	defer close()

	_, err := Send(client, Msg{Type: MsgTypePingRequest, RequestID: 4})
	require.NoError(t, err)
	receiveMsg(t, client, MsgTypePingResponse)

	require.Zero(t, tree.subscribers())
}

func TestHandlerIdleTimeout(t *testing.T) {
	client, close := NewTestingEnv(t, func() Handler {
		return &FrontierHandler{
			Tree:                    newTestTree(),
			ClientSyncClockInterval: time.Minute,
			ClientIdleTimeout:       time.Millisecond * 50,
		}
	})
	defer close()

	client.SetReadDeadline(time.Now().Add(time.Second * 5))
	_, _, err := Receive(client)
	require.Error(t, err)
}

func TestHandlerInvalidMessage(t *testing.T) {
	client, close := NewTestingEnv(t, newTestHandler(newTestTree()))
	defer close()

	require.NoError(t, websocket.Message.Send(client, "not json"))

	client.SetReadDeadline(time.Now().Add(time.Second * 5))
	_, _, err := Receive(client)
	require.Error(t, err)
}

func TestFrontierHandlerDropsBatches(t *testing.T) {
	h := &FrontierHandler{
		batches: make(chan lod.BatchReport, 1),
	}

	h.enqueueBatch(lod.BatchReport{Sequence: 1})
	h.enqueueBatch(lod.BatchReport{Sequence: 2})

	require.Len(t, h.Batches(), 1)
	require.Equal(t, uint64(1), (<-h.Batches()).Sequence)
}

func TestMsgTypeString(t *testing.T) {
	require.Equal(t, "unknown", Msg{}.TypeString())
	require.Equal(t, "frontier", Msg{Type: MsgTypeFrontier}.TypeString())
}
