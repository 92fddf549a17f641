package clmm

import (
	"fmt"
	"sort"

	cosmath "cosmossdk.io/math"
)

// InitializedTick is a tick boundary carrying a signed net liquidity change.
type InitializedTick struct {
	Index        int32
	LiquidityNet cosmath.Int
}

// TickSegment is a contiguous window of ticks [StartTickIndex, EndTickIndex) and the
// initialized ticks inside it. One on-chain tick array maps to one segment.
type TickSegment struct {
	StartTickIndex int32
	EndTickIndex   int32
	Ticks          []InitializedTick
}

// NewTickSegment builds the segment of a tick array starting at startTickIndex.
func NewTickSegment(startTickIndex int32, tickSpacing uint16, ticks []InitializedTick) TickSegment {
	return TickSegment{
		StartTickIndex: startTickIndex,
		EndTickIndex:   startTickIndex + int32(tickSpacing)*TickArraySize,
		Ticks:          ticks,
	}
}

// Contains reports whether tick falls inside the segment window.
func (s TickSegment) Contains(tick int32) bool {
	return tick >= s.StartTickIndex && tick < s.EndTickIndex
}

// startsAtNextGridTick reports whether the segment begins at the first initializable tick
// above tick. A walk up from tick never visits anything below that start.
func (s TickSegment) startsAtNextGridTick(tick int32) bool {
	spacing := (s.EndTickIndex - s.StartTickIndex) / TickArraySize
	return s.StartTickIndex > tick && s.StartTickIndex-spacing <= tick
}

type nextTick struct {
	index       int32
	net         cosmath.Int
	initialized bool
}

// tickSequence is the contiguous run of segments around the starting tick
type tickSequence struct {
	lowBound  int32
	highBound int32
	ticks     []InitializedTick
}

// newTickSequence joins the segments contiguous with the one the walk starts in. Moving up,
// the segment holding startTick may be absent when the next grid tick opens the following one.
func newTickSequence(segments []TickSegment, startTick int32, aToB bool) (*tickSequence, error) {
	ordered := make([]TickSegment, 0, len(segments))
	for _, seg := range segments {
		if seg.EndTickIndex <= seg.StartTickIndex {
			return nil, fmt.Errorf("segment [%d, %d): %w", seg.StartTickIndex, seg.EndTickIndex, ErrInvalidRange)
		}
		ordered = append(ordered, seg)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].StartTickIndex < ordered[j].StartTickIndex })

	home := -1
	for i, seg := range ordered {
		if seg.Contains(startTick) || (!aToB && seg.startsAtNextGridTick(startTick)) {
			home = i
			break
		}
	}
	if home < 0 {
		return nil, fmt.Errorf("no segment covers current tick %d: %w", startTick, ErrTickArraySequenceExhausted)
	}

	first, last := home, home
	for first > 0 && ordered[first-1].EndTickIndex == ordered[first].StartTickIndex {
		first--
	}
	for last < len(ordered)-1 && ordered[last].EndTickIndex == ordered[last+1].StartTickIndex {
		last++
	}

	seq := &tickSequence{
		lowBound:  max(ordered[first].StartTickIndex, MinTick),
		highBound: min(ordered[last].EndTickIndex, MaxTick),
	}
	for _, seg := range ordered[first : last+1] {
		for _, t := range seg.Ticks {
			if seg.Contains(t.Index) && t.Index >= seq.lowBound && t.Index <= seq.highBound {
				seq.ticks = append(seq.ticks, t)
			}
		}
	}
	sort.Slice(seq.ticks, func(i, j int) bool { return seq.ticks[i].Index < seq.ticks[j].Index })
	return seq, nil
}

// next finds the tick the swap walks to from tick. Moving down it is the greatest initialized
// tick <= tick; moving up the smallest one > tick. Without one, the edge of the sequence is returned.
func (s *tickSequence) next(tick int32, aToB bool) (nextTick, error) {
	if aToB {
		if tick < s.lowBound {
			return nextTick{}, fmt.Errorf("walked below tick %d: %w", s.lowBound, ErrTickArraySequenceExhausted)
		}
		i := sort.Search(len(s.ticks), func(i int) bool { return s.ticks[i].Index > tick })
		if i > 0 {
			t := s.ticks[i-1]
			return nextTick{index: t.Index, net: t.LiquidityNet, initialized: true}, nil
		}
		return nextTick{index: s.lowBound}, nil
	}

	if tick >= s.highBound {
		return nextTick{}, fmt.Errorf("walked above tick %d: %w", s.highBound, ErrTickArraySequenceExhausted)
	}
	i := sort.Search(len(s.ticks), func(i int) bool { return s.ticks[i].Index > tick })
	if i < len(s.ticks) && s.ticks[i].Index < s.highBound {
		t := s.ticks[i]
		return nextTick{index: t.Index, net: t.LiquidityNet, initialized: true}, nil
	}
	return nextTick{index: s.highBound}, nil
}
