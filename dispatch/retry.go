package dispatch

import (
	"time"

	"github.com/mohitkumar/mediaflow/config"
)

// RetryDelay is how long a job waits on the retry queue before its next
// attempt. FIXED waits seconds every time, BACKOFF grows linearly with the
// number of retries already spent.
func RetryDelay(policy config.RetryPolicy, seconds int, retryCount int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	switch policy {
	case config.RETRY_POLICY_BACKOFF:
		if retryCount < 1 {
			retryCount = 1
		}
		return time.Duration(seconds*retryCount) * time.Second
	default:
		return time.Duration(seconds) * time.Second
	}
}
