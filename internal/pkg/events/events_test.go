package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = &NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), TopicPaymentProcessed, PaymentProcessed{PaymentID: "p1"}))
	assert.NoError(t, p.Close())
}

func TestNewWithoutURLIsNoop(t *testing.T) {
	p, err := New("")
	require.NoError(t, err)
	assert.IsType(t, &NoopPublisher{}, p)
}

func TestNATSPublisherDeliversJSON(t *testing.T) {
	url := startTestNATS(t)

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe("channelpass.>", msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := New(url)
	require.NoError(t, err)
	defer pub.Close()

	ev := MembershipTransitioned{UserID: 42, From: "active", To: "expired", At: time.Unix(0, 0).UTC()}
	require.NoError(t, pub.Publish(context.Background(), TopicMembershipTransitioned, ev))

	select {
	case msg := <-msgs:
		assert.Equal(t, TopicMembershipTransitioned, msg.Subject)
		var got MembershipTransitioned
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, int64(42), got.UserID)
		assert.Equal(t, "expired", got.To)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
