package store

import (
	"sync"

	"github.com/RoanBrand/mqttc/internal/model"
)

type memoryStore struct {
	sync.Mutex
	subs    map[string]model.QoS
	inbound map[uint16]model.Message
}

// NewMemory returns a store that lives as long as the process.
func NewMemory() Store {
	return &memoryStore{
		subs:    make(map[string]model.QoS, 4),
		inbound: make(map[uint16]model.Message, 4),
	}
}

func (s *memoryStore) AddSubscription(topic string, qos model.QoS) error {
	s.Lock()
	s.subs[topic] = qos
	s.Unlock()
	return nil
}

func (s *memoryStore) RemoveSubscription(topic string) error {
	s.Lock()
	delete(s.subs, topic)
	s.Unlock()
	return nil
}

func (s *memoryStore) Subscriptions(iter func(topic string, qos model.QoS)) error {
	s.Lock()
	subs := make(map[string]model.QoS, len(s.subs))
	for t, q := range s.subs {
		subs[t] = q
	}
	s.Unlock()

	for t, q := range subs {
		iter(t, q)
	}
	return nil
}

func (s *memoryStore) PutInbound(id uint16, msg model.Message) error {
	s.Lock()
	s.inbound[id] = msg
	s.Unlock()
	return nil
}

func (s *memoryStore) TakeInbound(id uint16) (model.Message, bool, error) {
	s.Lock()
	defer s.Unlock()
	msg, ok := s.inbound[id]
	delete(s.inbound, id)
	return msg, ok, nil
}

func (s *memoryStore) HasInbound(id uint16) (bool, error) {
	s.Lock()
	defer s.Unlock()
	_, ok := s.inbound[id]
	return ok, nil
}

func (s *memoryStore) ClearInbound() error {
	s.Lock()
	for id := range s.inbound {
		delete(s.inbound, id)
	}
	s.Unlock()
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
