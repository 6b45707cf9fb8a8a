package netio

import (
	"net"
	"testing"
	"time"

	"github.com/sgolodetz/smg-comms-go/internal/message"
)

func TestReadWriteMessageRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	var ok bool
	var err error
	got := message.NewSimpleInt(0)

	go func() {
		ok, err = ReadMessage(server, got, stop)
		close(done)
	}()

	sent := message.NewSimpleInt(99)
	if wok, werr := WriteMessage(client, sent); werr != nil || !wok {
		t.Fatalf("WriteMessage: ok=%v err=%v", wok, werr)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadMessage did not return")
	}

	if err != nil {
		t.Fatalf("ReadMessage error: %v", err)
	}
	if !ok {
		t.Fatal("ReadMessage returned false, want true")
	}
	if got.Value() != 99 {
		t.Fatalf("Value() = %d, want 99", got.Value())
	}
}

func TestReadMessageStopsOnSignal(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	var ok bool

	msg := message.NewSimpleInt(0)
	go func() {
		ok, _ = ReadMessage(server, msg, stop)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	close(stop)
	server.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadMessage did not return after stop")
	}
	if ok {
		t.Fatal("ReadMessage returned true, want false")
	}
}

func TestReadMessageReturnsFalseOnClose(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	stop := make(chan struct{})
	done := make(chan struct{})
	var ok bool

	msg := message.NewSimpleInt(0)
	go func() {
		ok, _ = ReadMessage(server, msg, stop)
		close(done)
	}()

	client.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadMessage did not return after peer close")
	}
	if ok {
		t.Fatal("ReadMessage returned true, want false")
	}
}
