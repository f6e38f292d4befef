package wind

import "time"

// SelectTimeIndices returns the order-preserving subsequence of timestamps in
// [start, stop], both ends inclusive. The result may be empty.
func SelectTimeIndices(timestamps []time.Time, start, stop time.Time) TimeIndexRange {
	var r TimeIndexRange
	for i, ts := range timestamps {
		if ts.Before(start) {
			continue
		}
		if ts.After(stop) {
			// The axis is increasing; nothing later can match.
			break
		}
		r.Indices = append(r.Indices, i)
		r.Timestamps = append(r.Timestamps, ts)
	}
	return r
}
