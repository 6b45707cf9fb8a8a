package message

import "math"

func float32bits(f float32) uint32 { return math.Float32bits(f) }

func bitsFloat32(u uint32) float32 { return math.Float32frombits(u) }
