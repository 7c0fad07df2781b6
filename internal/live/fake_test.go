package live

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/snippethub/internal/model"
)

// fakeTransport is an in-memory Transport. Tests flip its connection state
// and push server events by hand.
type fakeTransport struct {
	hs *handlers

	mu        sync.Mutex
	connected bool
	sent      []frame
	emitErr   error
	starts    int
	closes    int
}

func newFakeTransport(connected bool) *fakeTransport {
	return &fakeTransport{hs: newHandlers(), connected: connected}
}

func (f *fakeTransport) Start() {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Emit(_ context.Context, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	if f.emitErr != nil {
		return f.emitErr
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.sent = append(f.sent, frame{Event: event, Data: data})
	return nil
}

func (f *fakeTransport) On(event string, h Handler) func() {
	return f.hs.on(event, h)
}

func (f *fakeTransport) OnState(fn func(bool)) func() {
	off := f.hs.onState(fn)
	f.mu.Lock()
	connected := f.connected
	f.mu.Unlock()
	fn(connected)
	return off
}

func (f *fakeTransport) setConnected(connected bool) {
	f.mu.Lock()
	f.connected = connected
	f.mu.Unlock()
	f.hs.notify(connected)
}

func (f *fakeTransport) push(t *testing.T, event string, c model.Comment) {
	t.Helper()
	data, err := json.Marshal(c)
	require.NoError(t, err)
	f.hs.dispatch(event, data)
}

func (f *fakeTransport) pushRaw(event, data string) {
	f.hs.dispatch(event, json.RawMessage(data))
}

// emitted returns the payloads sent for event.
func (f *fakeTransport) emitted(event string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, fr := range f.sent {
		if fr.Event != event {
			continue
		}
		var m map[string]any
		_ = json.Unmarshal(fr.Data, &m)
		out = append(out, m)
	}
	return out
}

func (f *fakeTransport) counts() (starts, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.closes
}

func hubOver(tr Transport) *Hub {
	return NewHub(func() Transport { return tr }, nil)
}
