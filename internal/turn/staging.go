package turn

import (
	"sync"
	"time"

	"github.com/redeven-labs/turnengine/internal/session"
)

// stageDelay and flushDelay mirror the source's timed-callback staging
// scheme: a short delay after each item lets an interleaved cancel drop
// it before it ever reaches on_item, and a slightly longer delay at flush
// time gives a near-simultaneous cancel one more chance to land.
const (
	stageDelay = 10 * time.Millisecond
	flushDelay = 30 * time.Millisecond
)

// stagedSlot is one item parsed from the stream but not yet delivered.
type stagedSlot struct {
	mu        sync.Mutex
	item      session.Item
	delivered bool
	dropped   bool
}

// stagingBuffer owns every item staged during one run and the timers that
// gate their delivery to on_item.
type stagingBuffer struct {
	state      *session.State
	generation uint64
	deliver    func(session.Item)

	mu    sync.Mutex
	slots []*stagedSlot
}

func newStagingBuffer(state *session.State, generation uint64, deliver func(session.Item)) *stagingBuffer {
	return &stagingBuffer{state: state, generation: generation, deliver: deliver}
}

// stage schedules item for delivery after stageDelay.
func (b *stagingBuffer) stage(item session.Item) {
	slot := &stagedSlot{item: item}
	b.mu.Lock()
	b.slots = append(b.slots, slot)
	b.mu.Unlock()

	time.AfterFunc(stageDelay, func() {
		b.deliverSlot(slot)
	})
}

func (b *stagingBuffer) deliverSlot(slot *stagedSlot) {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.delivered || slot.dropped {
		return
	}
	if !b.state.IsLive(b.generation) {
		slot.dropped = true
		return
	}
	slot.delivered = true
	b.deliver(slot.item)
}

// flush waits flushDelay and then delivers every slot not yet delivered or
// dropped.
func (b *stagingBuffer) flush() {
	time.Sleep(flushDelay)
	b.mu.Lock()
	slots := append([]*stagedSlot(nil), b.slots...)
	b.mu.Unlock()
	for _, slot := range slots {
		b.deliverSlot(slot)
	}
}
