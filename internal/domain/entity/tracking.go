package entity

import (
	"fmt"

	"github.com/reelmask/reelmask-render-service/internal/rle"
)

// FramePacket is the model's output bundle for one sampled frame: the masks
// it found plus the object id behind each mask. The model emits camelCase
// field names.
type FramePacket struct {
	FrameIndex int        `json:"frameIndex"`
	Masks      []rle.Mask `json:"masks"`
	ObjectIDs  []int      `json:"objectIds"`
}

// TrackingResult is the full per-frame output of one tracking call, ordered
// ascending by frame index. Frames the model skipped are simply absent.
type TrackingResult []FramePacket

// Validate checks the cross-field invariants of a received result: ascending
// distinct frame indices, per-packet mask/id pairing, and well-formed masks.
func (tr TrackingResult) Validate() error {
	if len(tr) == 0 {
		return fmt.Errorf("tracking result contains no frames")
	}
	prev := -1
	for _, pkt := range tr {
		if pkt.FrameIndex < 0 {
			return fmt.Errorf("negative frame index %d", pkt.FrameIndex)
		}
		if pkt.FrameIndex <= prev {
			return fmt.Errorf("frame indices not strictly ascending at %d", pkt.FrameIndex)
		}
		prev = pkt.FrameIndex
		if len(pkt.Masks) != len(pkt.ObjectIDs) {
			return fmt.Errorf("frame %d: %d masks but %d object ids",
				pkt.FrameIndex, len(pkt.Masks), len(pkt.ObjectIDs))
		}
		for i, m := range pkt.Masks {
			if err := m.Validate(); err != nil {
				return fmt.Errorf("frame %d mask %d: %w", pkt.FrameIndex, i, err)
			}
		}
	}
	return nil
}

// MaxFrameIndex returns the highest frame index the model returned, or -1
// for an empty result.
func (tr TrackingResult) MaxFrameIndex() int {
	if len(tr) == 0 {
		return -1
	}
	return tr[len(tr)-1].FrameIndex
}

// FrameIndices returns the ascending list of sampled frame indices.
func (tr TrackingResult) FrameIndices() []int {
	indices := make([]int, len(tr))
	for i, pkt := range tr {
		indices[i] = pkt.FrameIndex
	}
	return indices
}

// ObjectCount returns the number of distinct object ids across all frames.
func (tr TrackingResult) ObjectCount() int {
	seen := make(map[int]struct{})
	for _, pkt := range tr {
		for _, id := range pkt.ObjectIDs {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// PacketFor returns the packet for a frame index, or nil when the model
// skipped that frame.
func (tr TrackingResult) PacketFor(index int) *FramePacket {
	for i := range tr {
		if tr[i].FrameIndex == index {
			return &tr[i]
		}
	}
	return nil
}
