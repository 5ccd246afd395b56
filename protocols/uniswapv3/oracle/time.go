package oracle

// Lte reports whether timestamp a is chronologically at or before timestamp b.
//
// Timestamps wrap every 2^32 seconds, so they cannot be compared directly. Both
// a and b are assumed to lie within the 2^32 seconds leading up to now, which is
// the most recent point in time. Each value is measured by how far it sits behind
// now (modulo 2^32): the further back, the earlier it happened.
func Lte(now, a, b uint32) bool {
	return now-a >= now-b
}
