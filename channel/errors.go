// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package channel

import "fmt"

// MaxRecordSize is the largest record a framing will accept on receipt. The
// limit matches the maximum message length of the D-Bus protocol.
const MaxRecordSize = 1 << 27

// RecordSizeError is reported by Recv for an inbound record whose declared
// length exceeds MaxRecordSize.
type RecordSizeError struct {
	Size uint64
}

func (e *RecordSizeError) Error() string {
	return fmt.Sprintf("record size %d exceeds limit %d", e.Size, MaxRecordSize)
}
