package correlator

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gridctl/internal/protocol"
	"gridctl/internal/protocol/wire"
	"gridctl/internal/transport"
)

func newTestCorrelator(t *testing.T) (*Correlator, *transport.Link, net.Conn) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	link := transport.OpenWithPort(clientConn, wire.New(), zerolog.Nop())
	c := New(link, zerolog.Nop())
	t.Cleanup(func() {
		c.Close()
		link.Close()
	})
	return c, link, serverConn
}

func TestHeartbeatResolvesSinkAndWaiter(t *testing.T) {
	c, _, server := newTestCorrelator(t)

	var sinkMu sync.Mutex
	var sinkCalls int
	c.AddSink(func(msg protocol.DecodedMessage) {
		if msg.Class == "HEARTBEAT" {
			sinkMu.Lock()
			sinkCalls++
			sinkMu.Unlock()
		}
	})

	go func() {
		codec := wire.New()
		payload, _ := codec.EncodePacket(protocol.Descriptor{
			Class: "HEARTBEAT", Instruction: protocol.Report,
			Params: map[string]any{"SX": "0", "SY": "0", "HWCFG": "1"},
		})
		server.Write(append(payload, 0x0A))
	}()

	msg, err := c.Await(protocol.Filter{Class: "HEARTBEAT", Instruction: protocol.Report}, time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if msg.Params["SX"] != "0" {
		t.Fatalf("unexpected heartbeat params: %v", msg.Params)
	}

	time.Sleep(20 * time.Millisecond)
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if sinkCalls != 1 {
		t.Fatalf("expected the inventory sink to observe the heartbeat even though a waiter also matched it, got %d calls", sinkCalls)
	}
}

func TestAwaitTimesOutWithoutMatch(t *testing.T) {
	c, _, _ := newTestCorrelator(t)
	_, err := c.Await(protocol.Filter{Class: "NOPE"}, 30*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout")
	}
}

func TestCloseCancelsAllWaiters(t *testing.T) {
	c, link, _ := newTestCorrelator(t)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := c.Await(protocol.Filter{Class: "NEVER"}, 5*time.Second)
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	link.Close()

	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			if err == nil {
				t.Fatal("expected Cancelled error after link close")
			}
		case <-time.After(time.Second):
			t.Fatal("waiter did not resolve after link close")
		}
	}
}

func TestOnlyMatchingWaitersResolve(t *testing.T) {
	c, _, server := newTestCorrelator(t)

	wrongCh := make(chan error, 1)
	go func() {
		_, err := c.Await(protocol.Filter{Class: "OTHER"}, time.Second)
		wrongCh <- err
	}()

	go func() {
		codec := wire.New()
		payload, _ := codec.EncodePacket(protocol.Descriptor{Class: "RIGHT", Instruction: protocol.Report})
		server.Write(append(payload, 0x0A))
	}()

	msg, err := c.Await(protocol.Filter{Class: "RIGHT"}, time.Second)
	if err != nil {
		t.Fatalf("await RIGHT: %v", err)
	}
	if msg.Class != "RIGHT" {
		t.Fatalf("unexpected class: %s", msg.Class)
	}

	select {
	case err := <-wrongCh:
		t.Fatalf("OTHER waiter should not have resolved yet, got err=%v", err)
	case <-time.After(50 * time.Millisecond):
	}
}
