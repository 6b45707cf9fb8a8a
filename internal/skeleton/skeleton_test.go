package skeleton

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sgolodetz/smg-comms-go/internal/message"
	"github.com/sgolodetz/smg-comms-go/internal/netio"
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

// TestServiceClientRoundTrip exercises SET_CALIBRATION, BEGIN_DETECTION
// and END_DETECTION end to end over a real TCP loopback connection.
func TestServiceClientRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wantSkeletons := []Skeleton{
		{ID: 0, Keypoints: []Keypoint{{Name: "Neck", X: 1, Y: 2, Z: 3}}},
	}

	svc := NewService(
		WithServiceListenAddr("127.0.0.1:0"),
		WithFrameProcessor(func(f *message.Frame, intr message.Intrinsics) ([]Skeleton, *message.BinaryMask) {
			if intr.Fx != 500 {
				t.Errorf("frame processor saw intrinsics %+v, want Fx=500", intr)
			}
			mask := message.NewBinaryMask(4, 4)
			_ = mask.SetMask(make([]byte, 16))
			return wantSkeletons, mask
		}),
	)
	go func() {
		if err := svc.Serve(ctx); err != nil {
			t.Logf("Serve returned: %v", err)
		}
	}()
	select {
	case <-svc.Ready():
	case <-time.After(time.Second):
		t.Fatal("service did not become ready")
	}

	client, err := NewClient(svc.listener.Addr().String())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Terminate()

	if err := client.SetCalibration(testCalibration()); err != nil {
		t.Fatalf("SetCalibration: %v", err)
	}

	shapes := []message.ImageShape{
		{Height: 4, Width: 4, Channels: 3},
		{Height: 4, Width: 4, Channels: 1},
	}
	frame := message.NewFrame([]int{4 * 4 * 3, 4 * 4 * 2})
	if err := client.BeginDetection(frame, shapes); err != nil {
		t.Fatalf("BeginDetection: %v", err)
	}

	skeletons, mask, err := client.EndDetection()
	if err != nil {
		t.Fatalf("EndDetection: %v", err)
	}
	if len(skeletons) != 1 || skeletons[0].ID != 0 || skeletons[0].Keypoints[0].Name != "Neck" {
		t.Fatalf("EndDetection skeletons = %+v", skeletons)
	}
	if mask == nil {
		t.Fatal("EndDetection returned nil mask")
	}
	if h, w := mask.Shape(); h != 4 || w != 4 {
		t.Fatalf("mask shape = (%d, %d), want (4, 4)", h, w)
	}
}

// TestEndDetectionWithoutBeginIsNoop ensures a client-side EndDetection
// with no prior BeginDetection doesn't send anything and returns empty.
func TestEndDetectionWithoutBeginIsNoop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc := NewService(
		WithServiceListenAddr("127.0.0.1:0"),
		WithFrameProcessor(func(*message.Frame, message.Intrinsics) ([]Skeleton, *message.BinaryMask) {
			return nil, nil
		}),
	)
	go svc.Serve(ctx)
	select {
	case <-svc.Ready():
	case <-time.After(time.Second):
		t.Fatal("service did not become ready")
	}

	client, err := NewClient(svc.listener.Addr().String())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Terminate()

	skeletons, mask, err := client.EndDetection()
	if err != nil {
		t.Fatalf("EndDetection: %v", err)
	}
	if skeletons != nil || mask != nil {
		t.Fatalf("EndDetection() = (%+v, %+v), want (nil, nil)", skeletons, mask)
	}
}

// TestServerNoopOnEndDetectionWithoutBegin drives the wire directly (no
// Client involved) to confirm the service itself stays silent when
// END_DETECTION arrives with no prior BEGIN_DETECTION on that connection,
// rather than relying on the client-side guard to prevent the send.
func TestServerNoopOnEndDetectionWithoutBegin(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc := NewService(
		WithServiceListenAddr("127.0.0.1:0"),
		WithFrameProcessor(func(*message.Frame, message.Intrinsics) ([]Skeleton, *message.BinaryMask) {
			return nil, nil
		}),
	)
	go svc.Serve(ctx)
	select {
	case <-svc.Ready():
	case <-time.After(time.Second):
		t.Fatal("service did not become ready")
	}

	conn, err := net.DialTimeout("tcp", svc.listener.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if ok, err := netio.WriteMessage(conn, message.NewEndDetection()); err != nil || !ok {
		t.Fatalf("write end_detection control: ok=%v err=%v", ok, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	buf := make([]byte, 1)
	if n, err := conn.Read(buf); err == nil {
		t.Fatalf("server responded to END_DETECTION without a prior BEGIN_DETECTION: n=%d", n)
	} else if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		t.Fatalf("expected a read timeout (no response), got: %v", err)
	}

	// The connection must still be alive and the accept loop still reading
	// control messages: a SET_CALIBRATION now should get a normal Ack.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	if ok, err := netio.WriteMessage(conn, message.NewSetCalibration()); err != nil || !ok {
		t.Fatalf("write set_calibration control: ok=%v err=%v", ok, err)
	}
	if ok, err := netio.WriteMessage(conn, testCalibration()); err != nil || !ok {
		t.Fatalf("write calibration: ok=%v err=%v", ok, err)
	}
	var ack message.Ack
	ok, err := netio.ReadMessage(conn, &ack, nil)
	if err != nil || !ok {
		t.Fatalf("receive calibration ack after no-op end_detection: ok=%v err=%v", ok, err)
	}
}
