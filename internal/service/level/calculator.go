// Package level derives a user's level from cumulative points.
//
// The derivation is a pure function of the total, not of the increment
// history, so it is idempotent under ledger replay: recomputing from the
// summed events always lands on the same level.
package level

// PointsPerLevel is the width of one level band.
const PointsPerLevel = 100

// FromPoints maps cumulative points to a level. Zero points is level 1.
func FromPoints(points uint64) uint32 {
	return uint32(points/PointsPerLevel) + 1
}

// PointsToNext returns how many points are missing until the next level.
func PointsToNext(points uint64) uint64 {
	return PointsPerLevel - points%PointsPerLevel
}
