package usecase

import (
	"context"
	"errors"
	"sync"

	"DualSignal/internal/domain/models"
	"DualSignal/pkg/objstore"
)

// flakyStore fails the first n Puts.
type flakyStore struct {
	objstore.Store
	mu    sync.Mutex
	fails int
}

func (s *flakyStore) Put(ctx context.Context, key string, body []byte) error {
	s.mu.Lock()
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return errors.New("storage unavailable")
	}
	s.mu.Unlock()
	return s.Store.Put(ctx, key, body)
}

// brokenStore fails every call.
type brokenStore struct {
	objstore.Store
}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("storage unavailable")
}

func (brokenStore) Put(context.Context, string, []byte) error {
	return errors.New("storage unavailable")
}

func (brokenStore) List(context.Context, string) ([]string, error) {
	return nil, errors.New("storage unavailable")
}

type recordingPublisher struct {
	mu   sync.Mutex
	bars []*models.RawBar
}

func (p *recordingPublisher) PublishWindowClosed(_ context.Context, bar *models.RawBar) error {
	p.mu.Lock()
	p.bars = append(p.bars, bar)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// fakeStream is a scripted MarketStream. Each successful (re)connect opens the next session.
type fakeStream struct {
	mu             sync.Mutex
	reconnectFails int
	reconnects     int
	closes         int
	session        int
	sessions       []chan *models.Bar
	errs           []chan error
	connected      bool
}

func newFakeStream(sessions int) *fakeStream {
	s := &fakeStream{}
	for i := 0; i < sessions; i++ {
		s.sessions = append(s.sessions, make(chan *models.Bar, 16))
		s.errs = append(s.errs, make(chan error, 1))
	}
	return s
}

func (s *fakeStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session++
	s.connected = true
	return nil
}

func (s *fakeStream) Subscribe(context.Context) error { return nil }

func (s *fakeStream) Read(context.Context) (<-chan *models.Bar, <-chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.session - 1
	if i >= len(s.sessions) {
		i = len(s.sessions) - 1
	}
	return s.sessions[i], s.errs[i]
}

func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	if s.reconnectFails > 0 {
		s.reconnectFails--
		return errors.New("dial refused")
	}
	s.session++
	s.connected = true
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closes++
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
