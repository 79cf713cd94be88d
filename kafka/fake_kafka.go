package kafka

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FakeKafka is a process-local, in-memory stand-in for a Kafka cluster,
// grounded on this package's own test fixtures (fake_kafka_test.go) -
// built to host those tests rather than the other way round. Useful for
// exercising ingestsource wiring without a real broker.
type FakeKafka struct {
	ID int64

	mu     sync.Mutex
	topics map[string]*Topic
}

var fakeKafkaSeq int64
var fakeKafkas sync.Map // int64 -> *FakeKafka

func NewFakeKafka() *FakeKafka {
	id := atomic.AddInt64(&fakeKafkaSeq, 1)
	fk := &FakeKafka{ID: id, topics: make(map[string]*Topic)}
	fakeKafkas.Store(id, fk)
	return fk
}

func GetFakeKafka(id int64) (*FakeKafka, bool) {
	v, ok := fakeKafkas.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*FakeKafka), true
}

func (fk *FakeKafka) CreateTopic(name string, numPartitions int) (*Topic, error) {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	if _, exists := fk.topics[name]; exists {
		return nil, fmt.Errorf("topic %s already exists", name)
	}
	t := &Topic{
		Name:       name,
		partitions: make([]*fakePartition, numPartitions),
		groups:     make(map[string]*group),
	}
	for i := range t.partitions {
		t.partitions[i] = &fakePartition{}
	}
	fk.topics[name] = t
	return t, nil
}

func (fk *FakeKafka) DeleteTopic(name string) error {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	if _, ok := fk.topics[name]; !ok {
		return fmt.Errorf("topic %s does not exist", name)
	}
	delete(fk.topics, name)
	return nil
}

func (fk *FakeKafka) GetTopicNames() []string {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	names := make([]string, 0, len(fk.topics))
	for name := range fk.topics {
		names = append(names, name)
	}
	return names
}

func (fk *FakeKafka) IngestMessage(topicName string, msg *Message) error {
	fk.mu.Lock()
	t, ok := fk.topics[topicName]
	fk.mu.Unlock()
	if !ok {
		return fmt.Errorf("topic %s does not exist", topicName)
	}
	return t.ingest(msg)
}

type fakePartition struct {
	mu       sync.Mutex
	messages []*Message
}

// Topic is one topic of a FakeKafka, split into a fixed number of
// partitions at creation time and capable of hosting any number of
// consumer groups, each independently positioned over the partitions.
type Topic struct {
	Name string

	mu         sync.Mutex
	partitions []*fakePartition
	nextPart   int64
	groups     map[string]*group
}

func (t *Topic) ingest(msg *Message) error {
	idx := int(atomic.AddInt64(&t.nextPart, 1)-1) % len(t.partitions)
	p := t.partitions[idx]
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
	return nil
}

// group is a named set of subscribers sharing a topic's partitions -
// each partition is read by exactly one subscriber in the group.
type group struct {
	mu          sync.Mutex
	topic       *Topic
	subscribers []*Subscriber
}

func (g *group) addSubscriber(sub *Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribers = append(g.subscribers, sub)
	g.rebalanceLocked()
}

func (g *group) rebalanceLocked() {
	n := len(g.subscribers)
	for i, sub := range g.subscribers {
		var assigned []int
		for p := 0; p < len(g.topic.partitions); p++ {
			if p%n == i {
				assigned = append(assigned, p)
			}
		}
		sub.setAssigned(assigned)
	}
}

func (t *Topic) getGroup(groupID string) (*group, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.groups[groupID]
	return g, ok
}

// CreateSubscriber joins groupID on this topic, triggering a rebalance of
// the topic's partitions across every subscriber currently in the group.
func (t *Topic) CreateSubscriber(groupID string) (*Subscriber, error) {
	t.mu.Lock()
	g, ok := t.groups[groupID]
	if !ok {
		g = &group{topic: t}
		t.groups[groupID] = g
	}
	t.mu.Unlock()

	sub := &Subscriber{topic: t, group: g}
	g.addSubscriber(sub)
	return sub, nil
}

// Subscriber reads the partitions assigned to it by its group.
type Subscriber struct {
	topic *Topic
	group *group

	mu       sync.Mutex
	assigned []int
}

func (s *Subscriber) setAssigned(assigned []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assigned = assigned
}

// Start, CommitOffsets, Stop and Close make Subscriber satisfy
// MessageProvider directly, so tests can point a KafkaRowSource straight
// at a FakeKafka subscriber with no adapter in between. Offset commits
// are not tracked - the fake never replays from a committed position.
func (s *Subscriber) Start() error                              { return nil }
func (s *Subscriber) CommitOffsets(map[int32]int64) error        { return nil }
func (s *Subscriber) Stop() error                                { return nil }
func (s *Subscriber) Close() error                               { return nil }

// GetMessage returns the next message from any of this subscriber's
// assigned partitions, or nil if none arrives within timeout.
func (s *Subscriber) GetMessage(timeout time.Duration) (*Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		assigned := append([]int{}, s.assigned...)
		s.mu.Unlock()

		for _, idx := range assigned {
			p := s.topic.partitions[idx]
			p.mu.Lock()
			if len(p.messages) > 0 {
				msg := p.messages[0]
				p.messages = p.messages[1:]
				p.mu.Unlock()
				return msg, nil
			}
			p.mu.Unlock()
		}

		if time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(time.Millisecond)
	}
}
