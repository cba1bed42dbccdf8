package capture

import sys "golang.org/x/sys/unix"

// monotonicMicros reads CLOCK_MONOTONIC and returns it in microseconds,
// matching the driver's timestamp clock source so epochTimeShift can
// reconcile the two without a unit mismatch.
func monotonicMicros() int64 {
	var ts sys.Timespec
	// CLOCK_MONOTONIC is always available on Linux; an error here would
	// indicate a kernel too old to run this pipeline at all.
	if err := sys.ClockGettime(sys.CLOCK_MONOTONIC, &ts); err != nil {
		panic("capture: clock_gettime(CLOCK_MONOTONIC): " + err.Error())
	}
	return ts.Sec*1_000_000 + ts.Nsec/1_000
}
