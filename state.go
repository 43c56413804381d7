package coro

import "sync/atomic"

// frameState identifies where a [Frame] is in its lifecycle.
//
// State Machine:
//
//	framePreInitial → frameRunning       [first Resume]
//	frameRunning → frameSuspended        [body suspends at a suspension point]
//	frameSuspended → frameRunning        [Resume]
//	frameRunning → frameFinal            [body returns]
//	frameFinal → frameDestroyed          [Destroy]
//	frameSuspended → frameDestroyed      [Destroy, e.g. abandoned task]
//	framePreInitial → frameDestroyed     [Destroy, or RejectLeakedTasks]
//
// A frame exists in exactly one of {pre-initial, running, suspended-at-
// index-k, final, destroyed} at a time. The suspension *index* k itself
// lives separately, on the frame's awaiter stack, since frameState only
// needs to distinguish the five coarse phases for Resume/Destroy/Done to
// be race-safe.
type frameState uint32

const (
	framePreInitial frameState = iota
	frameRunning
	frameSuspended
	frameFinal
	frameDestroyed
)

func (s frameState) String() string {
	switch s {
	case framePreInitial:
		return "pre-initial"
	case frameRunning:
		return "running"
	case frameSuspended:
		return "suspended"
	case frameFinal:
		return "final"
	case frameDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// fastState is a lock-free state holder around frameState, CAS-driven so
// that a frame's Resume/Destroy/Done/Promise accessors never need a mutex
// just to agree on which lifecycle phase the frame is in.
type fastState struct {
	v atomic.Uint32
}

func newFastState(initial frameState) *fastState {
	s := &fastState{}
	s.v.Store(uint32(initial))
	return s
}

func (s *fastState) Load() frameState { return frameState(s.v.Load()) }

func (s *fastState) Store(state frameState) { s.v.Store(uint32(state)) }

// TryTransition attempts from -> to via CAS, returning whether it succeeded.
func (s *fastState) TryTransition(from, to frameState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
