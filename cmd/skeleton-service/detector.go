package main

import (
	"github.com/sgolodetz/smg-comms-go/internal/message"
	"github.com/sgolodetz/smg-comms-go/internal/skeleton"
)

// noopFrameProcessor stands in for the real skeleton-detection algorithm,
// which is an external collaborator (a model, a detector library) outside
// this repo's scope. It always reports no skeletons found.
func noopFrameProcessor(_ *message.Frame, _ message.Intrinsics) ([]skeleton.Skeleton, *message.BinaryMask) {
	return nil, nil
}

// emptyMaskRenderer stands in for the external people-mask rasteriser.
// It synthesises an all-background mask of the requested size.
func emptyMaskRenderer(_ []skeleton.Skeleton, _ message.Intrinsics, height, width int) *message.BinaryMask {
	return message.NewBinaryMask(height, width)
}
