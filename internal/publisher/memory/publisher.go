// Package memory implements an in-process publisher used in development
// and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// Publisher records published payloads in memory.
type Publisher struct {
	mu       sync.Mutex
	messages [][]byte
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish marshals the payload and appends it to the message log.
func (p *Publisher) Publish(_ context.Context, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, data)
	return strconv.Itoa(len(p.messages)), nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.messages))
	for i, m := range p.messages {
		out[i] = append([]byte(nil), m...)
	}
	return out
}
