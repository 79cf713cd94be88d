package common

import log "github.com/sirupsen/logrus"

// PanicHandler recovers a panic in the calling goroutine and logs it rather
// than letting it crash the process. It's deferred at the top of the shard
// scheduler's worker goroutine and the Kafka poll loop, so a panic in
// either ends that goroutine without taking down the producer's process.
func PanicHandler() {
	if r := recover(); r != nil {
		log.Errorf("panic in ingest goroutine: %v", r)
	}
}
