// Package throttle bounds concurrent checks per backend IP address.
//
// Each resolved address gets a counting semaphore of fixed capacity, created
// on first use and kept for the life of the process. Hosts that fail to
// resolve are keyed by their domain name so they still get a bucket.
//
// Usage:
//
//	t := throttle.New(1, resolver)
//	permit, err := t.Acquire(ctx, "https://example.com/")
//	if err != nil {
//	    return err // ctx was cancelled while waiting
//	}
//	defer permit.Release()
package throttle
