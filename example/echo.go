package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zereker/datagram"
)

type message struct {
	body []byte
}

func (m message) Length() int {
	return len(m.body)
}

func (m message) Body() []byte {
	return m.body
}

// codec treats a message body as opaque bytes. The chunking layer already
// frames each message, so Decode simply reads the whole payload; a real
// application would parse JSON, Protocol Buffers, or its own format here.
type codec struct{}

func (c *codec) Decode(r io.Reader) (datagram.Message, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return message{body: body}, nil
}

func (c *codec) Encode(msg datagram.Message) ([]byte, error) {
	return msg.Body(), nil
}

// echoHandler packs every received message straight back to its sender.
type echoHandler struct {
	server *datagram.Server
}

func (h *echoHandler) Handle(addr *net.UDPAddr, msg datagram.Message) {
	if err := h.server.WriteTo(addr, msg); err != nil {
		slog.Error("echo failed", "peer", addr, "error", err)
	}
}

func main() {
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:12345")
	if err != nil {
		panic(err)
	}

	server, err := datagram.New(addr,
		datagram.ServerCodecOption(new(codec)),
		datagram.ServerMaxDatagramSizeOption(1200),
	)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down server...")
		cancel()
	}()

	go runClient(ctx, addr)

	slog.Info("server start", "addr", addr.String())
	if err := server.Serve(ctx, &echoHandler{server: server}); err != nil {
		slog.Error("server error", "error", err)
	}
}

// runClient sends a greeting every second and logs the echoed replies.
func runClient(ctx context.Context, server *net.UDPAddr) {
	raw, err := net.DialUDP("udp", nil, server)
	if err != nil {
		slog.Error("failed to dial", "error", err)
		return
	}

	conn, err := datagram.NewConn(raw,
		datagram.CustomCodecOption(new(codec)),
		datagram.MaxDatagramSizeOption(1200),
		datagram.SendRateOption(10, 5),
		datagram.OnMessageOption(func(msg datagram.Message) error {
			slog.Info("echo received", "body", string(msg.Body()))
			return nil
		}),
	)
	if err != nil {
		slog.Error("failed to create conn", "error", err)
		return
	}

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.Write(message{body: []byte("hello")}); err != nil {
					slog.Warn("write failed", "error", err)
				}
			}
		}
	}()

	if err := conn.Run(ctx); err != nil {
		slog.Error("client error", "error", err)
	}
}
