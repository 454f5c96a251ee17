package goid

import "runtime"

// GetGID parses the current goroutine id from the stack header
// "goroutine 123 [running]:". It is meant for log correlation only.
func GetGID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	var id uint64
	for i := len("goroutine "); i < len(b); i++ {
		c := b[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
