// Package submission publishes uploaded videos as works and retries rate-limited sub-part submissions.
package submission

import "fmt"

// Class is the outcome category of a submission response code.
type Class int

const (
	// Success stops retrying.
	Success Class = iota
	// RateLimited waits and retries the same request.
	RateLimited
	// HardFailure aborts the current item.
	HardFailure
)

var rateLimitedCodes = map[int]bool{
	21070: true,
	21186: true,
}

// Classify maps a response code to its Class.
func Classify(code int) Class {
	switch {
	case code == 0:
		return Success
	case rateLimitedCodes[code]:
		return RateLimited
	default:
		return HardFailure
	}
}

func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case RateLimited:
		return "rate-limited"
	case HardFailure:
		return "hard-failure"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}
