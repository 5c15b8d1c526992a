package relay

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hypebeast/go-osc/osc"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wifisteer/internal/broadcast"
	"github.com/pscheid92/wifisteer/internal/domain"
	"github.com/pscheid92/wifisteer/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFanout struct {
	mu       sync.Mutex
	messages [][]byte
}

func (f *recordingFanout) Broadcast(_ context.Context, data []byte) broadcast.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, data)
	return broadcast.Result{Delivered: 1}
}

func (f *recordingFanout) decoded(t *testing.T) []domain.DashboardMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.DashboardMessage, 0, len(f.messages))
	for _, m := range f.messages {
		var msg domain.DashboardMessage
		require.NoError(t, json.Unmarshal(m, &msg))
		out = append(out, msg)
	}
	return out
}

func encode(t *testing.T, topic string, args ...any) []byte {
	t.Helper()
	data, err := wire.Encode(domain.NewEnvelope(topic, args...))
	require.NoError(t, err)
	return data
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindTelemetry, Classify("/wifi-data/ap-hall"))
	assert.Equal(t, KindNudgeResponse, Classify("/nudge-response"))
	assert.Equal(t, KindOther, Classify("/something/else"))
	assert.Equal(t, KindOther, Classify("/wifi-data/"))
}

func TestHandleDatagram_Telemetry(t *testing.T) {
	fanout := &recordingFanout{}
	r := New(fanout)

	report := `[{"interface":"wlan0","connected_clients":[]}]`
	r.HandleDatagram(context.Background(), encode(t, "/wifi-data/ap-hall", report), nil)

	msgs := fanout.decoded(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "/wifi-data/ap-hall", msgs[0].Address)
	assert.Equal(t, []any{report}, msgs[0].Args)
}

func TestHandleDatagram_NudgeResponse(t *testing.T) {
	fanout := &recordingFanout{}
	r := New(fanout)

	r.HandleDatagram(context.Background(), encode(t, domain.NudgeResponseTopic, "aa:bb:cc:dd:ee:ff is already here"), nil)

	msgs := fanout.decoded(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.NudgeResponseTopic, msgs[0].Address)
	assert.Equal(t, []any{"aa:bb:cc:dd:ee:ff is already here"}, msgs[0].Args)
}

func TestHandleDatagram_OtherTopicsForwardedVerbatim(t *testing.T) {
	fanout := &recordingFanout{}
	r := New(fanout)

	r.HandleDatagram(context.Background(), encode(t, "/status", "up", 3, true), nil)

	msgs := fanout.decoded(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "/status", msgs[0].Address)
	assert.Equal(t, []any{"up", float64(3), true}, msgs[0].Args)
}

func TestHandleDatagram_MalformedIsDropped(t *testing.T) {
	fanout := &recordingFanout{}
	r := New(fanout)

	r.HandleDatagram(context.Background(), []byte("garbage"), nil)
	r.HandleDatagram(context.Background(), nil, nil)

	assert.Empty(t, fanout.decoded(t))
}

func TestHandleDatagram_BundleKeepsOrder(t *testing.T) {
	fanout := &recordingFanout{}
	r := New(fanout)

	bundle := osc.NewBundle(time.Now())
	require.NoError(t, bundle.Append(osc.NewMessage("/wifi-data/ap1", "a")))
	require.NoError(t, bundle.Append(osc.NewMessage("/wifi-data/ap2", "b")))
	data, err := bundle.MarshalBinary()
	require.NoError(t, err)

	r.HandleDatagram(context.Background(), data, nil)

	msgs := fanout.decoded(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "/wifi-data/ap1", msgs[0].Address)
	assert.Equal(t, "/wifi-data/ap2", msgs[1].Address)
}

// countingHandle counts deliveries; it satisfies broadcast.Handle.
type countingHandle struct {
	id       uuid.UUID
	mu       sync.Mutex
	received []string
}

func (h *countingHandle) ID() uuid.UUID { return h.id }
func (h *countingHandle) Close(string)  {}
func (h *countingHandle) Send(_ context.Context, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, string(data))
	return nil
}

func (h *countingHandle) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.received)
}

func TestServe_EachDashboardReceivesExactlyOneMessagePerDatagram(t *testing.T) {
	registry := broadcast.NewRegistry()
	handles := make([]*countingHandle, 3)
	for i := range handles {
		handles[i] = &countingHandle{id: uuid.New()}
		registry.Add(handles[i])
	}
	r := New(broadcast.NewBroadcaster(registry, clockwork.NewRealClock(), time.Second))

	conn, err := wire.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = r.Serve(ctx, conn) }()

	sender, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sender.Close() })

	_, err = sender.Write(encode(t, "/wifi-data/ap1", "[]"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, h := range handles {
			if h.count() != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	for _, h := range handles {
		assert.JSONEq(t, `{"address":"/wifi-data/ap1","args":["[]"]}`, h.received[0])
	}
}
