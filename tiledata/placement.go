package tiledata

import (
	"github.com/eak1mov/go-tileflow/collision"
	"github.com/eak1mov/go-tileflow/tile"
)

// RedoPlacement recomputes label placement for a new map angle or debug flag without
// reparsing. Only parsed tiles are placed; the latest values are kept either way and used
// by the next parse.
//
// At most one placement job is in flight. Values requested while it runs replace each
// other, and the job starts a single follow-up with the latest ones when it completes.
// Under continuous input the tile keeps placing with the newest values; there is no
// backlog to drain.
func (v *Vector) RedoPlacement(angle float64, debug bool) {
	v.lastAngle, v.lastDebug = angle, debug
	if v.placing {
		return
	}
	v.maybeRedoPlacement()
}

// Placing reports whether a placement job is in flight.
func (v *Vector) Placing() bool {
	return v.placing
}

func (v *Vector) maybeRedoPlacement() {
	if v.State() != tile.StateParsed {
		return
	}
	if v.lastAngle == v.currentAngle && v.lastDebug == v.currentDebug {
		return
	}
	v.startPlacement()
}

func (v *Vector) startPlacement() {
	set := v.buckets.Load()
	if set == nil {
		return
	}
	angle, debug := v.lastAngle, v.lastDebug
	v.currentAngle, v.currentDebug = angle, debug
	v.placing = true
	v.logger.Debug("tileflow: placement started", "angle", angle, "debug", debug)

	var index *collision.Index
	v.placeJob = v.env.Pool.Send(func() {
		if v.State() != tile.StateParsed {
			return
		}
		index = collision.New(v.collisionConfig(angle, debug))
		for _, s := range set.symbols {
			s.Place(index)
		}
	}, func() {
		v.placeJob = nil
		if index != nil && v.buckets.Load() == set {
			for _, b := range set.order {
				b.SwapRenderData()
			}
			v.collision.Store(index)
		}
		v.placing = false
		v.maybeRedoPlacement()
	})
}
