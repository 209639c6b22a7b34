package testsupport

import (
	"context"
	"fmt"
	"sync"

	"tally/internal/source"
)

// FakeSource is an in-memory source.Source.
type FakeSource struct {
	mu       sync.Mutex
	labels   map[string][]string
	messages map[string]*source.Message
	fetchErr map[string]error
	ListErr  error
	Fetched  []string
}

// NewFakeSource returns an empty fake mailbox.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		labels:   make(map[string][]string),
		messages: make(map[string]*source.Message),
		fetchErr: make(map[string]error),
	}
}

// Add files msg under label.
func (f *FakeSource) Add(label string, msg *source.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[label] = append(f.labels[label], msg.ID)
	f.messages[msg.ID] = msg
}

// FailFetch makes FetchMessage(id) return err.
func (f *FakeSource) FailFetch(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr[id] = err
}

func (f *FakeSource) ListMessages(_ context.Context, label string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]string(nil), f.labels[label]...), nil
}

func (f *FakeSource) FetchMessage(_ context.Context, id string) (*source.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetched = append(f.Fetched, id)
	if err := f.fetchErr[id]; err != nil {
		return nil, err
	}
	msg, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s not found", id)
	}
	clone := *msg
	clone.Attachments = append([]source.Attachment(nil), msg.Attachments...)
	return &clone, nil
}

// FetchCount returns how many times FetchMessage was called.
func (f *FakeSource) FetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Fetched)
}
