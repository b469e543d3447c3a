// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package dbuschan

import "sync/atomic"

// A serialGen allocates message serial numbers. The zero value is ready for
// use, and its first allocation is 1. Allocation is lock-free and safe for
// concurrent use; the counter wraps around at 2^32, skipping 0, which is
// reserved to mean "unassigned".
type serialGen struct {
	last atomic.Uint32 // the most recently issued value
}

func (s *serialGen) allocate() uint32 {
	for {
		if v := s.last.Add(1); v != 0 {
			return v
		}
	}
}
