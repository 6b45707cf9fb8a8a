package mapping

import (
	"context"
	"testing"
	"time"

	"github.com/sgolodetz/smg-comms-go/internal/message"
)

func testCalibration() *message.Calibration {
	calib := message.NewCalibration(2)
	calib.SetImageShapes([]message.ImageShape{
		{Height: 4, Width: 4, Channels: 3},
		{Height: 4, Width: 4, Channels: 1},
	})
	calib.SetIntrinsics([]message.Intrinsics{
		{Fx: 500, Fy: 500, Cx: 320, Cy: 240},
		{Fx: 500, Fy: 500, Cx: 320, Cy: 240},
	})
	calib.SetElementByteSizes([]int32{1, 2})
	return calib
}

// TestMappingClientServerRoundTrip exercises the full handshake plus one
// frame send/receive cycle end to end over a real TCP loopback connection.
func TestMappingClientServerRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := NewServer(WithListenAddr("127.0.0.1:0"))
	go func() {
		if err := srv.Serve(ctx); err != nil {
			t.Logf("Serve returned: %v", err)
		}
	}()
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("server did not become ready")
	}

	client, err := NewClient(srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Terminate()

	if err := client.SendCalibrationMessage(testCalibration()); err != nil {
		t.Fatalf("SendCalibrationMessage: %v", err)
	}

	pose := [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	if err := client.SendFrameMessage(func(f *message.Frame) {
		f.SetFrameIndex(7)
		f.SetTimestamp(1.5)
		f.SetPose(0, pose)
		f.SetPose(1, pose)
	}); err != nil {
		t.Fatalf("SendFrameMessage: %v", err)
	}

	const clientID = 0
	var got *message.Frame
	done := make(chan struct{})
	go func() {
		srv.GetFrame(clientID, func(f *message.Frame) { got = f })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("GetFrame did not return")
	}

	if got == nil {
		t.Fatal("GetFrame delivered no frame")
	}
	if got.FrameIndex() != 7 {
		t.Fatalf("FrameIndex() = %d, want 7", got.FrameIndex())
	}
	if got.Timestamp() != 1.5 {
		t.Fatalf("Timestamp() = %v, want 1.5", got.Timestamp())
	}

	shapes := srv.GetImageShapes(clientID)
	if len(shapes) != 2 || shapes[0].Height != 4 {
		t.Fatalf("GetImageShapes() = %+v", shapes)
	}
}

// TestMappingServerPeekNewestFrame verifies that, once a sent frame has
// been queued on the server, PeekNewestFrame delivers it from the
// newest-frame cache.
func TestMappingServerPeekNewestFrame(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := NewServer(WithListenAddr("127.0.0.1:0"))
	go srv.Serve(ctx)
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("server did not become ready")
	}

	client, err := NewClient(srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Terminate()

	if err := client.SendCalibrationMessage(testCalibration()); err != nil {
		t.Fatalf("SendCalibrationMessage: %v", err)
	}
	if err := client.SendFrameMessage(func(f *message.Frame) { f.SetFrameIndex(3) }); err != nil {
		t.Fatalf("SendFrameMessage: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if srv.HasFramesNow(0) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	var newest *message.Frame
	if !srv.PeekNewestFrame(0, func(f *message.Frame) { newest = f }) {
		t.Fatal("PeekNewestFrame returned false")
	}
	if newest == nil || newest.FrameIndex() != 3 {
		t.Fatalf("PeekNewestFrame() frame index = %+v, want 3", newest)
	}
}

// TestMappingClientTerminateIsIdempotent ensures a second Terminate call
// does not block or panic.
func TestMappingClientTerminateIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := NewServer(WithListenAddr("127.0.0.1:0"))
	go srv.Serve(ctx)
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("server did not become ready")
	}

	client, err := NewClient(srv.listener.Addr().String())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := client.SendCalibrationMessage(testCalibration()); err != nil {
		t.Fatalf("SendCalibrationMessage: %v", err)
	}

	if err := client.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if err := client.Terminate(); err != nil {
		t.Fatalf("second Terminate: %v", err)
	}
}
