package topiccache

import "errors"

// ErrPartitionDiscoveryFailed is returned by New when the log consumer
// still reports no partitions after bounded retry.
var ErrPartitionDiscoveryFailed = errors.New("topiccache: partition discovery failed")

// ErrFailed is returned by Get once the ingest loop has poisoned the
// TopicCache after an uncaught error. The cache still fails open: Get
// also returns an Invalid result alongside this error, so a caller that
// ignores the error gets the same safe answer a caller that checks it
// does.
var ErrFailed = errors.New("topiccache: ingest failed, cache is poisoned")
