package infra

import "time"

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given retry count:
// 1s doubling up to 60s.
func CalculateBackoff(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	if retry >= 6 {
		return backoffMax
	}
	delay := backoffBase << uint(retry)
	if delay > backoffMax {
		return backoffMax
	}
	return delay
}
