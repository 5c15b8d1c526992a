package steering

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wifisteer/internal/domain"
	"github.com/pscheid92/wifisteer/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	clientMAC = "AA:BB:CC:DD:EE:FF"
	localMAC  = "70:f0:96:21:9b:c3"
	otherAP   = "11:22:33:44:55:66,0x0000,81,6,6"
)

type fakeSource struct {
	clients    []string
	clientsErr error
	ifaces     map[string]string // lower-case mac -> iface
	ifaceErr   error
	addrs      map[string]string // iface -> mac
	addrErr    error
}

func (f *fakeSource) ConnectedClients(context.Context) ([]string, error) {
	return f.clients, f.clientsErr
}

func (f *fakeSource) ClientInterface(_ context.Context, mac string) (string, error) {
	if f.ifaceErr != nil {
		return "", f.ifaceErr
	}
	for m, iface := range f.ifaces {
		if domain.SameMAC(m, mac) {
			return iface, nil
		}
	}
	return "", nil
}

func (f *fakeSource) InterfaceAddress(_ context.Context, iface string) (string, error) {
	if f.addrErr != nil {
		return "", f.addrErr
	}
	return f.addrs[iface], nil
}

type fakeExecutor struct {
	mu       sync.Mutex
	requests []domain.TransitionRequest
	output   string
	err      error
	block    chan struct{}
	started  chan string
}

func (f *fakeExecutor) Transition(_ context.Context, req domain.TransitionRequest) (string, error) {
	if f.started != nil {
		f.started <- req.Client
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.output, f.err
}

func (f *fakeExecutor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeResponder struct {
	mu   sync.Mutex
	sent []domain.Envelope
	ch   chan domain.Envelope
}

func (f *fakeResponder) Send(_ context.Context, env domain.Envelope) error {
	f.mu.Lock()
	f.sent = append(f.sent, env)
	f.mu.Unlock()
	if f.ch != nil {
		f.ch <- env
	}
	return nil
}

func associatedSource() *fakeSource {
	return &fakeSource{
		clients: []string{"aa:bb:cc:dd:ee:ff", "00:11:22:33:44:55"},
		ifaces:  map[string]string{"aa:bb:cc:dd:ee:ff": "wlan0"},
		addrs:   map[string]string{"wlan0": localMAC},
	}
}

func newEngine(source *fakeSource, executor *fakeExecutor, responder *fakeResponder) *Engine {
	return NewEngine(source, executor, responder, clockwork.NewFakeClock())
}

func nudge(neighbor string) domain.SteeringCommand {
	return domain.SteeringCommand{Type: domain.NudgeCommandType, Client: clientMAC, Neighbor: neighbor}
}

func TestDecide_NotConnected(t *testing.T) {
	executor := &fakeExecutor{}
	source := associatedSource()
	source.clients = []string{"00:11:22:33:44:55"}
	e := newEngine(source, executor, &fakeResponder{})

	d := e.Decide(context.Background(), nudge(otherAP))

	assert.Equal(t, OutcomeNotConnected, d.Outcome)
	assert.Equal(t, "Nudge ignored: AA:BB:CC:DD:EE:FF is not connected", d.Message)
	assert.Zero(t, executor.calls())
}

func TestDecide_ClientLookupErrorTreatedAsNotConnected(t *testing.T) {
	executor := &fakeExecutor{}
	source := associatedSource()
	source.clientsErr = errors.New("iw: command not found")
	e := newEngine(source, executor, &fakeResponder{})

	d := e.Decide(context.Background(), nudge(otherAP))

	assert.Equal(t, OutcomeNotConnected, d.Outcome)
	assert.Zero(t, executor.calls())
}

func TestDecide_NoInterface(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fakeSource)
	}{
		{"interface not found", func(s *fakeSource) { s.ifaces = nil }},
		{"interface lookup error", func(s *fakeSource) { s.ifaceErr = errors.New("station dump failed") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := &fakeExecutor{}
			source := associatedSource()
			tt.mutate(source)
			e := newEngine(source, executor, &fakeResponder{})

			d := e.Decide(context.Background(), nudge(otherAP))

			assert.Equal(t, OutcomeNoInterface, d.Outcome)
			assert.Equal(t, "Could not find interface for client AA:BB:CC:DD:EE:FF", d.Message)
			assert.Zero(t, executor.calls())
		})
	}
}

func TestDecide_AlreadyHereNeverInvokesExecutor(t *testing.T) {
	neighbors := []string{
		"70:f0:96:21:9b:c3,0x0000,81,11,6",
		"70:F0:96:21:9B:C3,0x0000,115,36,7",
		" 70:f0:96:21:9b:c3 ,0x0000,81,11,6",
	}

	for _, neighbor := range neighbors {
		t.Run(neighbor, func(t *testing.T) {
			executor := &fakeExecutor{}
			e := newEngine(associatedSource(), executor, &fakeResponder{})

			d := e.Decide(context.Background(), nudge(neighbor))

			assert.Equal(t, OutcomeAlreadyHere, d.Outcome)
			assert.Equal(t, "AA:BB:CC:DD:EE:FF is already here", d.Message)
			assert.Zero(t, executor.calls())
		})
	}
}

func TestDecide_RequestsTransition(t *testing.T) {
	executor := &fakeExecutor{output: "OK\n"}
	e := newEngine(associatedSource(), executor, &fakeResponder{})

	d := e.Decide(context.Background(), nudge(otherAP))

	assert.Equal(t, OutcomeRequested, d.Outcome)
	assert.Equal(t, "wlan0", d.Interface)
	assert.Equal(t, "Sent BSS transition request to AA:BB:CC:DD:EE:FF: OK", d.Message)

	require.Equal(t, 1, executor.calls())
	assert.Equal(t, domain.TransitionRequest{
		Client:           clientMAC,
		Interface:        "wlan0",
		Neighbor:         domain.Neighbor(otherAP),
		DisassocImminent: true,
		DisassocTimer:    5,
		Prefer:           true,
		Mode:             2,
	}, executor.requests[0])
}

func TestDecide_UnknownLocalBSSIDAttemptsTransition(t *testing.T) {
	executor := &fakeExecutor{output: "OK"}
	source := associatedSource()
	source.addrErr = errors.New("no such file")
	e := newEngine(source, executor, &fakeResponder{})

	d := e.Decide(context.Background(), nudge("70:f0:96:21:9b:c3,0x0000,81,11,6"))

	assert.Equal(t, OutcomeRequested, d.Outcome)
	assert.Equal(t, 1, executor.calls())
}

func TestDecide_ExecutorFailureSurfacedAsText(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		err     error
		wantMsg string
	}{
		{"output with error", "FAIL", errors.New("exit status 255"), "Sent BSS transition request to AA:BB:CC:DD:EE:FF: FAIL"},
		{"error only", "", errors.New("exec: hostapd_cli: not found"), "Sent BSS transition request to AA:BB:CC:DD:EE:FF: exec: hostapd_cli: not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := &fakeExecutor{output: tt.output, err: tt.err}
			e := newEngine(associatedSource(), executor, &fakeResponder{})

			d := e.Decide(context.Background(), nudge(otherAP))

			assert.Equal(t, OutcomeRequested, d.Outcome)
			assert.Equal(t, tt.wantMsg, d.Message)
			assert.Equal(t, 1, executor.calls())
		})
	}
}

func TestHandleEnvelope_EmitsResponseOnResponseTopic(t *testing.T) {
	responder := &fakeResponder{}
	e := newEngine(associatedSource(), &fakeExecutor{}, responder)

	e.HandleEnvelope(context.Background(), domain.NewEnvelope(domain.NudgeTopic, clientMAC, "70:f0:96:21:9b:c3,0x0000,81,11,6"))

	require.Len(t, responder.sent, 1)
	assert.Equal(t, domain.NudgeResponseTopic, responder.sent[0].Topic)
	assert.Equal(t, []any{"AA:BB:CC:DD:EE:FF is already here"}, responder.sent[0].Args)
}

func TestHandleEnvelope_InvalidCommandsProduceNothing(t *testing.T) {
	tests := []struct {
		name string
		env  domain.Envelope
	}{
		{"other topic", domain.NewEnvelope("/wifi-data/ap1", clientMAC, otherAP)},
		{"one argument", domain.NewEnvelope(domain.NudgeTopic, clientMAC)},
		{"three arguments", domain.NewEnvelope(domain.NudgeTopic, clientMAC, otherAP, "x")},
		{"non-string client", domain.NewEnvelope(domain.NudgeTopic, int32(1), otherAP)},
		{"empty neighbor bssid", domain.NewEnvelope(domain.NudgeTopic, clientMAC, ",0x0000,81,6,6")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := &fakeExecutor{}
			responder := &fakeResponder{}
			e := newEngine(associatedSource(), executor, responder)

			e.HandleEnvelope(context.Background(), tt.env)

			assert.Empty(t, responder.sent)
			assert.Zero(t, executor.calls())
		})
	}
}

func TestServe_CommandsAreSerialized(t *testing.T) {
	source := associatedSource()
	source.clients = append(source.clients, "de:ad:be:ef:00:01")
	source.ifaces["de:ad:be:ef:00:01"] = "wlan1"
	source.addrs["wlan1"] = "70:f0:96:21:9b:c4"

	executor := &fakeExecutor{output: "OK", block: make(chan struct{}), started: make(chan string, 2)}
	responder := &fakeResponder{ch: make(chan domain.Envelope, 2)}
	e := newEngine(source, executor, responder)

	conn, err := wire.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = e.Serve(ctx, conn) }()

	sender, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sender.Close() })

	for _, mac := range []string{clientMAC, "de:ad:be:ef:00:01"} {
		data, err := wire.Encode(domain.NewEnvelope(domain.NudgeTopic, mac, otherAP))
		require.NoError(t, err)
		_, err = sender.Write(data)
		require.NoError(t, err)
	}

	// First command is inside the executor; the second must not have started.
	select {
	case got := <-executor.started:
		assert.Equal(t, clientMAC, got)
	case <-time.After(2 * time.Second):
		t.Fatal("first command never reached the executor")
	}
	select {
	case got := <-executor.started:
		t.Fatalf("second command %s started before the first finished", got)
	case <-time.After(100 * time.Millisecond):
	}

	close(executor.block)

	var order []string
	for n := 0; n < 2; n++ {
		select {
		case env := <-responder.ch:
			order = append(order, env.Args[0].(string))
		case <-time.After(2 * time.Second):
			t.Fatal("missing nudge response")
		}
	}
	assert.Equal(t, []string{
		"Sent BSS transition request to AA:BB:CC:DD:EE:FF: OK",
		"Sent BSS transition request to de:ad:be:ef:00:01: OK",
	}, order)
}
