package broker

import (
	"context"
	"encoding/json"
	"net"

	"github.com/cyw0ng95/sentinel/internal/wire"
)

// ServeConnection runs one validator session end to end: handshake, then
// interleaved reading of Sample/ActionResult frames and writing of
// dispatched Action frames, until the peer disconnects or ctx is done.
func (b *Broker) ServeConnection(ctx context.Context, nc net.Conn) {
	defer nc.Close()
	peerAddr := nc.RemoteAddr().String()

	frame, err := wire.ReadFrame(nc)
	if err != nil {
		return
	}
	if frame.Kind != wire.FrameHello {
		b.logger.Warn("session %s: expected Hello, got %s", peerAddr, frame.Kind)
		return
	}
	var hello wire.Hello
	if err := json.Unmarshal(frame.Payload, &hello); err != nil {
		return
	}

	ack, conn := b.HandleHello(peerAddr, hello)
	if werr := wire.WriteFrame(nc, wire.FrameHelloAck, hello.ValidatorID, "", ack); werr != nil {
		return
	}
	if conn == nil {
		return
	}
	defer b.Disconnect(conn, "disconnected")

	// Unblock the read loop when this connection is evicted (superseded by
	// a new handshake, or broker shutdown): closing the socket is the only
	// way out of a blocked ReadFrame.
	go func() {
		<-conn.closed
		nc.Close()
	}()

	writerDone := make(chan struct{})
	go b.writeActions(ctx, nc, conn, writerDone)

loop:
	for {
		frame, err := wire.ReadFrame(nc)
		if err != nil {
			break
		}
		switch frame.Kind {
		case wire.FrameSample:
			var s wire.Sample
			if err := json.Unmarshal(frame.Payload, &s); err != nil {
				b.logger.Warn("session %s: malformed sample frame, closing: %v", peerAddr, err)
				break loop
			}
			b.IngestSample(wire.SampleToModel(s))
		case wire.FrameResult:
			var r wire.Result
			if err := json.Unmarshal(frame.Payload, &r); err != nil {
				b.logger.Warn("session %s: malformed result frame, closing: %v", peerAddr, err)
				break loop
			}
			b.IngestResult(wire.ResultToModel(r))
		default:
			b.logger.Warn("session %s: unexpected frame kind, closing: %s", peerAddr, frame.Kind)
			break loop
		}
	}

	conn.close()
	<-writerDone
}

func (b *Broker) writeActions(ctx context.Context, nc net.Conn, conn *connection, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.closed:
			return
		case action, ok := <-conn.outbound:
			if !ok {
				return
			}
			msg := wire.ActionFromModel(action)
			if err := wire.WriteFrame(nc, wire.FrameAction, string(conn.id), action.ActionID, msg); err != nil {
				return
			}
		}
	}
}
