// Package ingestsource adapts a kafka.MessageProvider into a continuous
// feed of BulkLoader.Insert calls, grounded on push/source's
// MessageConsumer poll loop: a single running flag, a single polling
// goroutine, and batched GetMessage calls up to a poll timeout or a
// maximum batch size, followed by an offset commit once the batch has
// been handed to the loader.
package ingestsource

import (
	"fmt"
	"time"

	"github.com/rohithreddy/voltdb/common"
	"github.com/rohithreddy/voltdb/ingest"
	"github.com/rohithreddy/voltdb/kafka"
	log "github.com/sirupsen/logrus"
)

// RowDecoder turns one raw Kafka message into the (handle, values) pair
// BulkLoader.Insert expects. A decode failure is logged and the message is
// skipped without stopping the consumer; the loader's failure callback is
// not invoked for it.
type RowDecoder func(msg *kafka.Message) (handle interface{}, values []interface{}, err error)

// ErrorHandler is invoked once if the poll loop hits an error it cannot
// recover from (provider GetMessage/CommitOffsets failures, or an error
// returned by BulkLoader.Insert); after it runs the consumer has already
// stopped.
type ErrorHandler func(err error)

// KafkaRowSource drives one kafka.MessageProvider, decoding each message
// with a RowDecoder and inserting the result into a BulkLoader.
type KafkaRowSource struct {
	provider    kafka.MessageProvider
	loader      *ingest.BulkLoader
	decoder     RowDecoder
	pollTimeout time.Duration
	maxMessages int
	onError     ErrorHandler

	running common.AtomicBool
	loopCh  chan struct{}
}

// NewKafkaRowSource starts polling immediately on its own goroutine.
func NewKafkaRowSource(provider kafka.MessageProvider, loader *ingest.BulkLoader, decoder RowDecoder,
	pollTimeout time.Duration, maxMessages int, onError ErrorHandler) (*KafkaRowSource, error) {
	if err := provider.Start(); err != nil {
		return nil, fmt.Errorf("cannot start message provider: %w", err)
	}
	s := &KafkaRowSource{
		provider:    provider,
		loader:      loader,
		decoder:     decoder,
		pollTimeout: pollTimeout,
		maxMessages: maxMessages,
		onError:     onError,
		loopCh:      make(chan struct{}, 1),
	}
	s.running.Set(true)
	go s.pollLoop()
	return s, nil
}

// Stop halts the poll loop and stops (but does not close/unsubscribe)
// the underlying provider - mirroring the consumer.go split between Stop
// and Close.
func (s *KafkaRowSource) Stop() error {
	if !s.running.CompareAndSet(true, false) {
		return nil
	}
	<-s.loopCh
	return s.provider.Stop()
}

// Close unsubscribes the underlying provider. Call after Stop.
func (s *KafkaRowSource) Close() error {
	return s.provider.Close()
}

func (s *KafkaRowSource) pollLoop() {
	defer func() { s.loopCh <- struct{}{} }()
	defer common.PanicHandler()
	for s.running.Get() {
		msgs, offsetsToCommit, err := s.getBatch()
		if err != nil {
			log.Errorf("ingestsource: poll failed, stopping: %v", err)
			s.running.Set(false)
			if s.onError != nil {
				s.onError(err)
			}
			return
		}
		for _, msg := range msgs {
			handle, values, err := s.decoder(msg)
			if err != nil {
				log.Warnf("ingestsource: dropping undecodable message at partition %d offset %d: %v",
					msg.PartInfo.PartitionID, msg.PartInfo.Offset, err)
				continue
			}
			if err := s.loader.Insert(handle, values); err != nil {
				log.Errorf("ingestsource: insert failed, stopping: %v", err)
				s.running.Set(false)
				if s.onError != nil {
					s.onError(err)
				}
				return
			}
		}
		if len(offsetsToCommit) != 0 {
			if err := s.provider.CommitOffsets(offsetsToCommit); err != nil {
				log.Errorf("ingestsource: commit failed, stopping: %v", err)
				s.running.Set(false)
				if s.onError != nil {
					s.onError(err)
				}
				return
			}
		}
	}
}

func (s *KafkaRowSource) getBatch() ([]*kafka.Message, map[int32]int64, error) {
	start := time.Now()
	remaining := s.pollTimeout
	var msgs []*kafka.Message
	offsetsToCommit := make(map[int32]int64)
	for len(msgs) < s.maxMessages {
		msg, err := s.provider.GetMessage(remaining)
		if err != nil {
			return nil, nil, err
		}
		if msg == nil {
			break
		}
		msgs = append(msgs, msg)
		offsetsToCommit[msg.PartInfo.PartitionID] = msg.PartInfo.Offset + 1
		remaining = s.pollTimeout - time.Since(start)
		if remaining <= 0 {
			break
		}
	}
	return msgs, offsetsToCommit, nil
}
