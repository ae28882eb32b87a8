// ABOUTME: Tests for the viewer registry fan-out
// ABOUTME: Covers ordering, patient isolation, stalled viewers, cancellation, concurrency

package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuideme/care-gateway/internal/store"
)

func makeMessage(id, patientID string) *store.Message {
	return &store.Message{
		ID:        id,
		PatientID: patientID,
		Text:      "hello from " + id,
		Sender:    store.SenderPatient,
		Timestamp: time.Now(),
	}
}

func TestRegistry_SingleViewerReceivesMessage(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	ch, _ := r.Subscribe(context.Background(), "patient-1")

	r.Broadcast("patient-1", makeMessage("msg-1", "patient-1"))

	select {
	case received := <-ch:
		assert.Equal(t, "msg-1", received.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestRegistry_AllViewersReceiveEveryMessageInOrder(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	const viewers = 3
	const messages = 10

	channels := make([]<-chan *store.Message, viewers)
	for i := range channels {
		channels[i], _ = r.Subscribe(context.Background(), "patient-1")
	}

	for i := 0; i < messages; i++ {
		r.Broadcast("patient-1", makeMessage(fmt.Sprintf("msg-%d", i), "patient-1"))
	}

	for v, ch := range channels {
		for i := 0; i < messages; i++ {
			select {
			case received := <-ch:
				assert.Equal(t, fmt.Sprintf("msg-%d", i), received.ID,
					"viewer %d got message out of order", v)
			case <-time.After(time.Second):
				t.Fatalf("viewer %d timed out waiting for message %d", v, i)
			}
		}
	}
}

func TestRegistry_PatientsAreIsolated(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	chA, _ := r.Subscribe(context.Background(), "patient-a")
	chB, _ := r.Subscribe(context.Background(), "patient-b")

	r.Broadcast("patient-b", makeMessage("msg-b", "patient-b"))

	select {
	case received := <-chB:
		assert.Equal(t, "msg-b", received.ID)
	case <-time.After(time.Second):
		t.Fatal("viewer for patient-b timed out")
	}

	select {
	case <-chA:
		t.Fatal("viewer for patient-a must not receive patient-b's messages")
	case <-time.After(100 * time.Millisecond):
		// Expected: no delivery
	}
}

func TestRegistry_StalledViewerIsTornDownWithoutBlockingPeers(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	// stalled never reads; healthy drains between broadcast batches
	stalled, stalledID := r.Subscribe(context.Background(), "patient-1")
	healthy, _ := r.Subscribe(context.Background(), "patient-1")

	// Fill both buffers exactly, then drain only the healthy viewer
	for i := 0; i < viewerBufferSize; i++ {
		r.Broadcast("patient-1", makeMessage(fmt.Sprintf("msg-%d", i), "patient-1"))
	}
	for n := 0; n < viewerBufferSize; n++ {
		<-healthy
	}

	// The next batch overflows the stalled viewer on its first message
	const extra = 10
	for i := 0; i < extra; i++ {
		r.Broadcast("patient-1", makeMessage(fmt.Sprintf("extra-%d", i), "patient-1"))
	}

	assert.Equal(t, 1, r.ViewerCount("patient-1"), "stalled viewer torn down")

	drained := 0
	for range stalled {
		drained++
	}
	assert.Equal(t, viewerBufferSize, drained, "stalled viewer keeps only its buffered messages")

	// The healthy peer received every post-teardown broadcast undisturbed
	for i := 0; i < extra; i++ {
		select {
		case received := <-healthy:
			assert.Equal(t, fmt.Sprintf("extra-%d", i), received.ID)
		case <-time.After(time.Second):
			t.Fatalf("healthy viewer missed message %d", i)
		}
	}

	// Double-unsubscribe after teardown is a no-op
	r.Unsubscribe("patient-1", stalledID)
}

func TestRegistry_UnsubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	ch, subID := r.Subscribe(context.Background(), "patient-1")

	r.Unsubscribe("patient-1", subID)
	r.Unsubscribe("patient-1", subID)

	_, ok := <-ch
	assert.False(t, ok, "channel closed after unsubscribe")

	// Empty patient entries are reclaimed
	assert.Equal(t, 0, r.ViewerCount("patient-1"))

	// Broadcasting afterward must not panic
	r.Broadcast("patient-1", makeMessage("msg-x", "patient-1"))
}

func TestRegistry_ContextCancellationCleansUp(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := r.Subscribe(ctx, "patient-1")

	require.Equal(t, 1, r.ViewerCount("patient-1"))

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after context cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
	assert.Eventually(t, func() bool {
		return r.ViewerCount("patient-1") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestRegistry_CloseClosesAllSubscriptions(t *testing.T) {
	r := NewRegistry(nil)

	ch1, _ := r.Subscribe(context.Background(), "patient-1")
	ch2, _ := r.Subscribe(context.Background(), "patient-2")

	r.Close()

	for i, ch := range []<-chan *store.Message{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "channel %d should be closed after Close()", i)
		case <-time.After(time.Second):
			t.Fatalf("channel %d not closed after Close()", i)
		}
	}

	// Close is idempotent
	r.Close()
}

func TestRegistry_ConcurrentSubscribeBroadcastUnsubscribe(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	var wg sync.WaitGroup
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		patientID := fmt.Sprintf("patient-%d", i%3)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, subID := r.Subscribe(ctx, patientID)
			for n := 0; n < 5; n++ {
				select {
				case <-ch:
				case <-time.After(200 * time.Millisecond):
					r.Unsubscribe(patientID, subID)
					return
				}
			}
			r.Unsubscribe(patientID, subID)
		}()
	}

	for i := 0; i < 10; i++ {
		patientID := fmt.Sprintf("patient-%d", i%3)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				r.Broadcast(patientID, makeMessage(fmt.Sprintf("c-%d", j), patientID))
			}
		}()
	}

	wg.Wait()
	// No deadlock or panic means the sharded locking held up
}

func TestRegistry_SubscribeReturnsUniqueIDs(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	_, id1 := r.Subscribe(context.Background(), "patient-1")
	_, id2 := r.Subscribe(context.Background(), "patient-1")
	_, id3 := r.Subscribe(context.Background(), "patient-2")

	require.NotEqual(t, id1, id2)
	require.NotEqual(t, id1, id3)
	require.NotEqual(t, id2, id3)
}

func TestRegistry_BroadcastToPatientWithoutViewers(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Close()

	// Should not panic
	r.Broadcast("nobody-watching", makeMessage("msg-nowhere", "nobody-watching"))
}
