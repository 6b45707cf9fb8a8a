package skeleton

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	skels := []Skeleton{
		{
			ID: 0,
			Keypoints: []Keypoint{
				{Name: "Neck", X: 1, Y: 2, Z: 3},
				{Name: "L Shoulder", X: 4, Y: 5, Z: 6},
				{Name: "left_shoulder", X: 7, Y: 8, Z: 9},
			},
			Bones: []Bone{{From: "Neck", To: "L Shoulder"}, {From: "Neck", To: "left_shoulder"}},
		},
		{ID: 1, Keypoints: []Keypoint{{Name: "Neck", X: 0, Y: 0, Z: 0}}},
	}

	blob := Encode(skels)
	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, skels) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, skels)
	}
}

func TestEncodeDecodeEmpty(t *testing.T) {
	got, err := Decode(Encode(nil))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Decode(Encode(nil)) = %+v, want empty", got)
	}
}

func TestEscapeTokenRoundTrip(t *testing.T) {
	names := []string{"left_shoulder", "L Shoulder", "back\\slash", "plain", "_leading_trailing_"}
	for _, name := range names {
		if got := unescapeToken(escapeToken(name)); got != name {
			t.Errorf("escapeToken/unescapeToken(%q) round trip = %q", name, got)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []string{
		"skeleton 0 1\n",                     // wrong field count
		"keypoint Neck 1 2 3\n",              // stray keypoint, no skeleton block
		"skeleton 0 1 0\nkeypoint Neck 1 2\n", // keypoint missing a coordinate
		"skeleton 0 2 0\nkeypoint Neck 1 2 3\n", // count mismatch
		"bogus 1 2 3\n",
	}
	for _, in := range cases {
		if _, err := Decode(in); err == nil {
			t.Errorf("Decode(%q) succeeded, want error", in)
		}
	}
}
