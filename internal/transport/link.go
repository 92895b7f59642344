// Package transport owns the open serial port: it writes framed payloads,
// decodes inbound bytes through a Framer + PacketCodec, and publishes the
// result as "message"/"error"/"close" signals on an internal bus. It also
// offers the core primitive callers need: await the next payload matching
// a predicate within a deadline.
package transport

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"

	"gridctl/internal/coreerr"
	"gridctl/internal/framer"
	"gridctl/internal/protocol"
	"gridctl/internal/pubsub"
)

// Baud and frame parameters for the serial link.
const (
	Baud        = 2000000
	readChunk   = 4096
	busQueueLen = 256
)

const (
	TopicMessage pubsub.Topic = "message"
	TopicError   pubsub.Topic = "error"
	TopicClose   pubsub.Topic = "close"
)

// Port is the subset of a serial port the Link needs, so it can be driven
// by a real github.com/tarm/serial.Port or by an in-memory fake in tests.
type Port interface {
	io.ReadWriteCloser
}

// Link owns one open serial port. All signal delivery and waiter
// resolution happen on the single readLoop goroutine; the Link itself is
// logically single-threaded.
type Link struct {
	port  Port
	fr    *framer.Framer
	codec protocol.PacketCodec
	bus   *pubsub.Bus
	log   zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Open dials the OS serial device at path with the fixed Grid link
// parameters (2 Mbaud, 8-N-1, no flow control) and starts the reader.
func Open(path string, codec protocol.PacketCodec, log zerolog.Logger) (*Link, error) {
	cfg := &serial.Config{
		Name:        path,
		Baud:        Baud,
		ReadTimeout: 100 * time.Millisecond,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Connection, "transport.Open", "open serial port "+path, err)
	}
	return newLink(port, codec, log), nil
}

// OpenWithPort wires an already-open Port (a real one, or a test fake)
// instead of dialing the OS. Kept exported so integration tests in other
// packages (device, correlator) can run the whole pipeline without
// hardware.
func OpenWithPort(port Port, codec protocol.PacketCodec, log zerolog.Logger) *Link {
	return newLink(port, codec, log)
}

func newLink(port Port, codec protocol.PacketCodec, log zerolog.Logger) *Link {
	l := &Link{
		port:   port,
		fr:     framer.New(),
		codec:  codec,
		bus:    pubsub.NewBus(busQueueLen),
		log:    log,
		closed: make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// Subscribe exposes the raw message stream for the Correlator to
// multiplex. Topic is one of TopicMessage, TopicError, TopicClose.
func (l *Link) Subscribe(topic pubsub.Topic) *pubsub.Subscription {
	return l.bus.Subscribe(topic)
}

func (l *Link) readLoop() {
	buf := make([]byte, readChunk)
	for {
		select {
		case <-l.closed:
			return
		default:
		}

		n, err := l.port.Read(buf)
		if err != nil {
			select {
			case <-l.closed:
				return
			default:
			}
			if err == io.EOF {
				l.Close()
				return
			}
			// A read timeout on an otherwise healthy port isn't an error
			// worth surfacing — tarm/serial returns one whenever the
			// configured ReadTimeout elapses with nothing to read.
			if n == 0 {
				continue
			}
		}
		if n == 0 {
			continue
		}

		frames, ferr := l.fr.Push(buf[:n])
		for _, payload := range frames {
			msgs, derr := l.codec.DecodePacketFrame(payload)
			if derr != nil {
				l.log.Debug().Err(derr).Msg("transport: dropping undecodable frame")
				l.bus.Publish(&pubsub.Message{Topic: TopicError, Payload: derr})
				continue
			}
			for _, m := range msgs {
				l.bus.Publish(&pubsub.Message{Topic: TopicMessage, Payload: m})
			}
		}
		if ferr != nil {
			l.log.Warn().Err(ferr).Msg("transport: framing error")
			l.bus.Publish(&pubsub.Message{Topic: TopicError, Payload: ferr})
		}
	}
}

// Write frames payload and sends it, awaiting the OS write to drain.
func (l *Link) Write(payload []byte) error {
	select {
	case <-l.closed:
		return coreerr.New(coreerr.Cancelled, "transport.Write", "link closed")
	default:
	}
	if _, err := l.port.Write(framer.Frame(payload)); err != nil {
		return coreerr.Wrap(coreerr.Write, "transport.Write", "serial write failed", err)
	}
	return nil
}

// AwaitMessage registers a one-shot predicate and resolves with the first
// matching DecodedMessage delivered within timeout. Cancellation (context
// done) before a match is silent — it returns a Cancelled error, not a
// panic or log line.
func (l *Link) AwaitMessage(ctx context.Context, predicate func(protocol.DecodedMessage) bool, timeout time.Duration) (protocol.DecodedMessage, error) {
	sub := l.bus.Subscribe(TopicMessage)
	defer sub.Unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case m, ok := <-sub.Channel():
			if !ok {
				return protocol.DecodedMessage{}, coreerr.New(coreerr.Cancelled, "transport.AwaitMessage", "link closed")
			}
			msg := m.Payload.(protocol.DecodedMessage)
			if predicate(msg) {
				return msg, nil
			}
		case <-timer.C:
			return protocol.DecodedMessage{}, coreerr.New(coreerr.Timeout, "transport.AwaitMessage", "no matching message within deadline")
		case <-l.closed:
			return protocol.DecodedMessage{}, coreerr.New(coreerr.Cancelled, "transport.AwaitMessage", "link closed")
		case <-ctx.Done():
			return protocol.DecodedMessage{}, coreerr.New(coreerr.Cancelled, "transport.AwaitMessage", "context cancelled")
		}
	}
}

// Close publishes a terminal close signal, which unblocks any in-flight
// AwaitMessage/Correlator waiters, and closes the port. Bus subscriptions
// stay registered until their owners unsubscribe.
// Close never fails — errors on shutdown are logged and swallowed.
func (l *Link) Close() {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.bus.Publish(&pubsub.Message{Topic: TopicClose, Payload: nil})
		if err := l.port.Close(); err != nil {
			l.log.Warn().Err(err).Msg("transport: error closing port")
		}
	})
}
