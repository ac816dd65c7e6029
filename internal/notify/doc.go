// Package notify delivers operator messages through a single worker that
// honours the transport's rate limits.
//
// Messages are delivered in FIFO order. A message whose delivery fails is put
// back at the head of the queue so it is retried before anything enqueued
// after it. When the transport reports a rate limit the pause between
// deliveries grows to the requested retry-after plus a fixed margin, and it
// resets to the baseline after the next successful delivery.
package notify
