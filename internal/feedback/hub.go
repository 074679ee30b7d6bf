package feedback

import (
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// Slot identifies one message area of the UI
type Slot string

const (
	SlotList       Slot = "list"
	SlotForm       Slot = "form"
	SlotValidation Slot = "validation"
)

// Topic returns the bus topic carrying changes of a slot
func Topic(slot Slot) string {
	return "feedback:" + string(slot)
}

// Message is the current content of a slot. Gen increases on every Set.
type Message struct {
	Slot Slot      `json:"slot"`
	Text string    `json:"text"`
	Gen  uint64    `json:"gen"`
	At   time.Time `json:"at"`
}

type slotState struct {
	msg   Message
	timer *time.Timer
}

// Hub holds the user facing messages. Messages set with a positive ttl are
// cleared after it elapses unless a newer message replaced them.
type Hub struct {
	mu    sync.Mutex
	bus   EventBus.Bus
	slots map[Slot]*slotState
	ttl   map[Slot]time.Duration
}

// NewHub creates a hub. bus may be nil.
func NewHub(bus EventBus.Bus) *Hub {
	return &Hub{
		bus:   bus,
		slots: make(map[Slot]*slotState),
		ttl:   make(map[Slot]time.Duration),
	}
}

// SetClearAfter configures the default auto clear delay of a slot
func (h *Hub) SetClearAfter(slot Slot, d time.Duration) {
	h.mu.Lock()
	h.ttl[slot] = d
	h.mu.Unlock()
}

// Set replaces the slot content and returns its generation
func (h *Hub) Set(slot Slot, text string) uint64 {
	h.mu.Lock()
	ttl := h.ttl[slot]
	h.mu.Unlock()
	return h.SetFor(slot, text, ttl)
}

// SetFor is Set with an explicit auto clear delay, zero keeps the message
func (h *Hub) SetFor(slot Slot, text string, ttl time.Duration) uint64 {
	h.mu.Lock()
	st := h.state(slot)
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.msg = Message{Slot: slot, Text: text, Gen: st.msg.Gen + 1, At: time.Now()}
	msg := st.msg
	if ttl > 0 && text != "" {
		gen := msg.Gen
		st.timer = time.AfterFunc(ttl, func() { h.clearIf(slot, gen) })
	}
	h.mu.Unlock()

	h.publish(msg)
	return msg.Gen
}

// Generation returns the latest generation of the slot
func (h *Hub) Generation(slot Slot) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state(slot).msg.Gen
}

// Clear empties the slot
func (h *Hub) Clear(slot Slot) {
	h.SetFor(slot, "", 0)
}

// Get returns the current content of the slot
func (h *Hub) Get(slot Slot) Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := h.state(slot).msg
	msg.Slot = slot
	return msg
}

// Snapshot returns every non empty slot
func (h *Hub) Snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, 0, len(h.slots))
	for _, slot := range []Slot{SlotList, SlotForm, SlotValidation} {
		if st, ok := h.slots[slot]; ok && st.msg.Text != "" {
			out = append(out, st.msg)
		}
	}
	return out
}

// Subscribe registers fn for changes of the slot
func (h *Hub) Subscribe(slot Slot, fn func(Message)) error {
	if h.bus == nil {
		return nil
	}
	return h.bus.Subscribe(Topic(slot), fn)
}

// Close stops pending timers
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, st := range h.slots {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
	}
}

func (h *Hub) clearIf(slot Slot, gen uint64) {
	h.mu.Lock()
	st := h.state(slot)
	if st.msg.Gen != gen {
		h.mu.Unlock()
		return
	}
	st.timer = nil
	st.msg = Message{Slot: slot, Gen: gen + 1, At: time.Now()}
	msg := st.msg
	h.mu.Unlock()

	zap.L().Debug("feedback cleared",
		zap.String("namespace", "feedback"),
		zap.String("slot", string(slot)))
	h.publish(msg)
}

func (h *Hub) state(slot Slot) *slotState {
	st, ok := h.slots[slot]
	if !ok {
		st = &slotState{msg: Message{Slot: slot}}
		h.slots[slot] = st
	}
	return st
}

func (h *Hub) publish(msg Message) {
	if h.bus != nil {
		h.bus.Publish(Topic(msg.Slot), msg)
	}
}
