// Package teabind forwards store changes to Bubble Tea programs. A change is
// delivered only when an update touches the watched selector's dependencies.
package teabind

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	stand "github.com/goliatone/go-stand"
)

// ChangedMsg carries a refreshed projection into a model's Update.
type ChangedMsg struct {
	Key     string
	Value   any
	Patches []stand.Patch
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Watch sends a ChangedMsg tagged with key to sender whenever a relevant
// update is delivered by store. Messages are forwarded in commit order from a
// separate goroutine, so a blocking Send never holds up the store and a
// model's Update may call SetState freely. Unsubscribing drops anything not
// yet sent.
func Watch(store *stand.Store, key string, sel stand.Selector, sender Sender) (unsubscribe func(), err error) {
	box := newMailbox()
	unsub, err := store.Watch(sel, func(value any, patches []stand.Patch) {
		box.put(ChangedMsg{Key: key, Value: value, Patches: patches})
	})
	if err != nil {
		return nil, err
	}
	go box.forward(sender)

	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			box.close()
		})
	}, nil
}

type mailbox struct {
	mu     sync.Mutex
	ready  *sync.Cond
	queue  []ChangedMsg
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.ready = sync.NewCond(&m.mu)
	return m
}

func (m *mailbox) put(msg ChangedMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.queue = append(m.queue, msg)
	m.ready.Signal()
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.queue = nil
	m.ready.Broadcast()
}

func (m *mailbox) forward(sender Sender) {
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.ready.Wait()
		}
		if m.closed {
			m.mu.Unlock()
			return
		}
		msg := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		sender.Send(msg)
	}
}

// Feed buffers changes for models that pull them through a tea.Cmd instead of
// holding a program reference.
type Feed struct {
	key   string
	ch    chan ChangedMsg
	unsub func()

	mu     sync.Mutex
	closed bool
}

// DefaultFeedBuffer is used when Listen is given a non-positive buffer.
const DefaultFeedBuffer = 16

// Listen subscribes a Feed to store. When the buffer is full the oldest
// pending change is dropped, so a slow model always sees the latest value.
func Listen(store *stand.Store, key string, sel stand.Selector, buffer int) (*Feed, error) {
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	feed := &Feed{key: key, ch: make(chan ChangedMsg, buffer)}
	unsub, err := store.Watch(sel, func(value any, patches []stand.Patch) {
		feed.push(ChangedMsg{Key: key, Value: value, Patches: patches})
	})
	if err != nil {
		return nil, err
	}
	feed.unsub = unsub
	return feed, nil
}

// Wait returns a command that blocks for the next change. It yields nil once
// the feed is closed and drained.
func (f *Feed) Wait() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-f.ch
		if !ok {
			return nil
		}
		return msg
	}
}

// Pending returns the number of buffered changes.
func (f *Feed) Pending() int {
	return len(f.ch)
}

// Close unsubscribes from the store and closes the channel.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	if f.unsub != nil {
		f.unsub()
	}
	close(f.ch)
}

func (f *Feed) push(msg ChangedMsg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for {
		select {
		case f.ch <- msg:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}
