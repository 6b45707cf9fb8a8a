package codec

import (
	"testing"

	"github.com/sgolodetz/smg-comms-go/internal/message"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	const width, height = 8, 6
	shapes := []message.ImageShape{
		{Height: height, Width: width, Channels: 3},
		{Height: height, Width: width, Channels: 1},
	}
	elementByteSizes := []int32{1, 2}

	// A smooth ramp (0..143, no wrap-around) so the JPEG tolerance below
	// measures ordinary compression loss rather than ringing at hard edges.
	colour := make([]byte, width*height*3)
	for i := range colour {
		colour[i] = byte(i)
	}
	depth := make([]byte, width*height*2)
	for i := 0; i < width*height; i++ {
		v := uint16(i * 37)
		depth[2*i] = byte(v)
		depth[2*i+1] = byte(v >> 8)
	}

	src := message.NewFrame([]int{len(colour), len(depth)})
	src.SetFrameIndex(42)
	src.SetTimestamp(3.25)
	src.SetImageBytes(0, colour)
	src.SetImageBytes(1, depth)

	compress := NewCompressor(shapes, elementByteSizes, DefaultJPEGQuality)
	decompress := NewDecompressor(shapes, elementByteSizes)

	compressed := compress(src)
	if compressed.NumImages() != 2 {
		t.Fatalf("compressed.NumImages() = %d, want 2", compressed.NumImages())
	}
	if len(compressed.ImageBytes(1)) == 0 {
		t.Fatal("compressed depth slot is empty")
	}

	decompressed := decompress(compressed)
	if decompressed.FrameIndex() != 42 {
		t.Fatalf("FrameIndex() = %d, want 42", decompressed.FrameIndex())
	}
	if decompressed.Timestamp() != 3.25 {
		t.Fatalf("Timestamp() = %v, want 3.25", decompressed.Timestamp())
	}

	gotDepth := decompressed.ImageBytes(1)
	if len(gotDepth) != len(depth) {
		t.Fatalf("depth round trip length = %d, want %d", len(gotDepth), len(depth))
	}
	for i := range depth {
		if gotDepth[i] != depth[i] {
			t.Fatalf("depth byte %d = %d, want %d (PNG must be lossless)", i, gotDepth[i], depth[i])
		}
	}

	gotColour := decompressed.ImageBytes(0)
	if len(gotColour) != len(colour) {
		t.Fatalf("colour round trip length = %d, want %d", len(gotColour), len(colour))
	}
	// JPEG is lossy; just check the decoded buffer is in the right ballpark
	// rather than byte-identical.
	var maxDiff int
	for i := range colour {
		d := int(gotColour[i]) - int(colour[i])
		if d < 0 {
			d = -d
		}
		if d > maxDiff {
			maxDiff = d
		}
	}
	if maxDiff > 40 {
		t.Fatalf("colour round trip max diff = %d, too lossy", maxDiff)
	}
}
