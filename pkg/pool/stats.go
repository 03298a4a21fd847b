package pool

// Stats is a point-in-time snapshot of a pool's counters. Fields are read
// independently, so under concurrent use they need not be mutually
// consistent.
type Stats struct {
	Name       string `json:"name"`
	Capacity   int    `json:"capacity"`
	InUse      int64  `json:"in_use"`
	Free       int64  `json:"free"`
	Checkouts  int64  `json:"checkouts"`
	Releases   int64  `json:"releases"`
	Exhausted  int64  `json:"exhausted"`
	Leaks      int64  `json:"leaks"`
	CASRetries uint64 `json:"cas_retries"`
}

// Utilization returns the fraction of slots in use.
func (s Stats) Utilization() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.InUse) / float64(s.Capacity)
}
