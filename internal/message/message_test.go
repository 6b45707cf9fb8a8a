package message

import (
	"bytes"
	"testing"
)

func TestSimpleIntRoundTrip(t *testing.T) {
	s := NewSimpleInt(-42)
	if s.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", s.Size())
	}
	if got := s.Value(); got != -42 {
		t.Fatalf("Value() = %d, want -42", got)
	}
	s.SetValue(7)
	if got := s.Value(); got != 7 {
		t.Fatalf("Value() after SetValue = %d, want 7", got)
	}
}

func TestControlCodes(t *testing.T) {
	cases := []struct {
		name string
		msg  *Control
		want int32
	}{
		{"begin", NewBeginDetection(), ControlBeginDetection},
		{"end", NewEndDetection(), ControlEndDetection},
		{"calibration", NewSetCalibration(), ControlSetCalibration},
	}
	for _, c := range cases {
		if got := c.msg.Value(); got != c.want {
			t.Errorf("%s: Value() = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestAckIsEmpty(t *testing.T) {
	var a Ack
	if a.Size() != 0 || a.Buf() != nil {
		t.Fatalf("Ack not empty: size=%d buf=%v", a.Size(), a.Buf())
	}
}

func TestDataRoundTrip(t *testing.T) {
	d := NewData(5)
	copy(d.Buf(), []byte{1, 2, 3, 4, 5})
	if !bytes.Equal(d.Buf(), []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("Buf() = % X, want 01 02 03 04 05", d.Buf())
	}
}

func TestBinaryMaskRoundTrip(t *testing.T) {
	m := NewBinaryMask(4, 4)
	mask := make([]byte, 16)
	for i := range mask {
		if i%2 == 0 {
			mask[i] = 255
		}
	}
	if err := m.SetMask(mask); err != nil {
		t.Fatalf("SetMask: %v", err)
	}
	out := m.GetMask()
	if !bytes.Equal(out, mask) {
		t.Fatalf("GetMask() = %v, want %v", out, mask)
	}
}

// TestBinaryMaskWirePacking pins the exact on-wire bit layout: a (1,16)
// mask alternating background/foreground packs to 0x55 0x55, MSB first.
func TestBinaryMaskWirePacking(t *testing.T) {
	m := NewBinaryMask(1, 16)
	mask := make([]byte, 16)
	for i := 0; i < 16; i += 2 {
		mask[i+1] = 255
	}
	if err := m.SetMask(mask); err != nil {
		t.Fatalf("SetMask: %v", err)
	}
	want := []byte{0x55, 0x55}
	if !bytes.Equal(m.Buf(), want) {
		t.Fatalf("Buf() = % X, want % X", m.Buf(), want)
	}
}

func TestBinaryMaskShapeMismatch(t *testing.T) {
	m := NewBinaryMask(2, 2)
	if err := m.SetMask(make([]byte, 3)); err == nil {
		t.Fatal("expected ErrShapeMismatch")
	}
}

func TestCalibrationRoundTrip(t *testing.T) {
	c := NewCalibration(2)
	shapes := []ImageShape{{Height: 480, Width: 640, Channels: 3}, {Height: 480, Width: 640, Channels: 1}}
	intr := []Intrinsics{{Fx: 500, Fy: 500, Cx: 320, Cy: 240}, {Fx: 500, Fy: 500, Cx: 320, Cy: 240}}
	sizes := []int32{1, 2}

	c.SetImageShapes(shapes)
	c.SetIntrinsics(intr)
	c.SetElementByteSizes(sizes)

	if got := c.MaxImages(); got != 2 {
		t.Fatalf("MaxImages() = %d, want 2", got)
	}
	for i, s := range c.ImageShapes() {
		if s != shapes[i] {
			t.Errorf("ImageShapes()[%d] = %+v, want %+v", i, s, shapes[i])
		}
	}
	for i, in := range c.Intrinsics() {
		if in != intr[i] {
			t.Errorf("Intrinsics()[%d] = %+v, want %+v", i, in, intr[i])
		}
	}
	for i, sz := range c.ElementByteSizes() {
		if sz != sizes[i] {
			t.Errorf("ElementByteSizes()[%d] = %d, want %d", i, sz, sizes[i])
		}
	}

	wantBytes := []int{480 * 640 * 3 * 1, 480 * 640 * 1 * 2}
	for i, sz := range c.UncompressedImageByteSizes() {
		if sz != wantBytes[i] {
			t.Errorf("UncompressedImageByteSizes()[%d] = %d, want %d", i, sz, wantBytes[i])
		}
	}
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	h := NewFrameHeader(2)
	shapes := []ImageShape{{Height: 10, Width: 20, Channels: 3}, {Height: 10, Width: 20, Channels: 1}}
	sizes := []int32{123, 456}

	h.SetImageShapes(shapes)
	h.SetImageByteSizes(sizes)

	if got := h.NumImages(); got != 2 {
		t.Fatalf("NumImages() = %d, want 2", got)
	}
	for i, s := range h.ImageShapes() {
		if s != shapes[i] {
			t.Errorf("ImageShapes()[%d] = %+v, want %+v", i, s, shapes[i])
		}
	}
	for i, sz := range h.ImageByteSizes() {
		if sz != sizes[i] {
			t.Errorf("ImageByteSizes()[%d] = %d, want %d", i, sz, sizes[i])
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	sizes := []int{4, 6}
	f := NewFrame(sizes)

	if got := f.Timestamp(); got != UnknownTimestamp {
		t.Fatalf("default Timestamp() = %v, want %v", got, UnknownTimestamp)
	}

	f.SetFrameIndex(17)
	f.SetTimestamp(123.5)

	pose0 := [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 1, 2, 3, 1}
	pose1 := [16]float32{0, 1, 0, 0, 1, 0, 0, 0, 0, 0, 1, 0, 4, 5, 6, 1}
	f.SetPose(0, pose0)
	f.SetPose(1, pose1)

	f.SetImageBytes(0, []byte{1, 2, 3, 4})
	f.SetImageBytes(1, []byte{10, 20, 30, 40, 50, 60})

	if got := f.FrameIndex(); got != 17 {
		t.Fatalf("FrameIndex() = %d, want 17", got)
	}
	if got := f.Timestamp(); got != 123.5 {
		t.Fatalf("Timestamp() = %v, want 123.5", got)
	}
	if got := f.Pose(0); got != pose0 {
		t.Fatalf("Pose(0) = %v, want %v", got, pose0)
	}
	if got := f.Pose(1); got != pose1 {
		t.Fatalf("Pose(1) = %v, want %v", got, pose1)
	}
	if !bytes.Equal(f.ImageBytes(0), []byte{1, 2, 3, 4}) {
		t.Fatalf("ImageBytes(0) = % X", f.ImageBytes(0))
	}
	if !bytes.Equal(f.ImageBytes(1), []byte{10, 20, 30, 40, 50, 60}) {
		t.Fatalf("ImageBytes(1) = % X", f.ImageBytes(1))
	}

	wantSize := frameFixedSize + 2*poseSize + 4 + 6
	if f.Size() != wantSize {
		t.Fatalf("Size() = %d, want %d", f.Size(), wantSize)
	}
}
