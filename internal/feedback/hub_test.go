package feedback

import (
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	h := NewHub(nil)
	assert.Equal(t, "", h.Get(SlotList).Text)

	g1 := h.Set(SlotList, "empty product list")
	g2 := h.Set(SlotForm, "Successfully added Widget")
	assert.Equal(t, "empty product list", h.Get(SlotList).Text)
	assert.Equal(t, "Successfully added Widget", h.Get(SlotForm).Text)
	assert.Equal(t, uint64(1), g1)
	assert.Equal(t, uint64(1), g2)

	assert.Len(t, h.Snapshot(), 2)
	h.Clear(SlotList)
	assert.Len(t, h.Snapshot(), 1)
}

func TestAutoClear(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	h.SetFor(SlotList, "old", 20*time.Millisecond)
	require.Eventually(t, func() bool { return h.Get(SlotList).Text == "" }, time.Second, 5*time.Millisecond)

	// a newer message is not removed by the older timer
	h.SetFor(SlotForm, "first", 20*time.Millisecond)
	h.SetFor(SlotForm, "second", 0)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, "second", h.Get(SlotForm).Text)
}

func TestDefaultClearAfter(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()
	h.SetClearAfter(SlotValidation, 10*time.Millisecond)
	h.Set(SlotValidation, "name cannot be empty")
	require.Eventually(t, func() bool { return h.Get(SlotValidation).Text == "" }, time.Second, 5*time.Millisecond)
}

func TestGeneration(t *testing.T) {
	h := NewHub(nil)
	gen := h.Set(SlotForm, "You are offline.")
	h.Set(SlotForm, "Successfully added Widget")
	assert.Equal(t, gen+1, h.Generation(SlotForm))
	assert.Equal(t, uint64(0), h.Generation(SlotList))
}

func TestSubscribe(t *testing.T) {
	h := NewHub(EventBus.New())
	var got []Message
	require.NoError(t, h.Subscribe(SlotList, func(m Message) { got = append(got, m) }))

	h.Set(SlotList, "a")
	h.Set(SlotForm, "ignored")
	h.Clear(SlotList)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Text)
	assert.Equal(t, "", got[1].Text)
	assert.Equal(t, SlotList, got[1].Slot)
}
