// ABOUTME: In-memory fan-out registry for live conversation viewers
// ABOUTME: Delivers persisted messages to every professional watching a patient

package conversation

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/cuideme/care-gateway/internal/metrics"
	"github.com/cuideme/care-gateway/internal/store"
)

const (
	// viewerBufferSize is the channel buffer for each viewer subscription.
	viewerBufferSize = 64

	// registryShards spreads patient ids over independent locks so
	// broadcasts for unrelated patients never contend.
	registryShards = 32
)

// viewer is one live subscription to a patient's conversation.
type viewer struct {
	ch chan *store.Message
}

// registryShard holds the viewer sets for a slice of the patient id space.
// The shard lock is held for the whole of a broadcast: sends are
// non-blocking, so the hold is bounded, and it guarantees a subscriber
// never observes a gap between its registration and the next broadcast.
type registryShard struct {
	mu      sync.Mutex
	viewers map[string]map[string]*viewer // patientID -> subID -> viewer
}

// Registry provides per-patient pub/sub for persisted messages. Callers
// must only broadcast messages that are already stored: a viewer that
// misses a live delivery recovers full history through the read path.
type Registry struct {
	shards [registryShards]*registryShard
	logger *slog.Logger

	closeMu sync.RWMutex
	closed  bool
}

// NewRegistry creates a viewer registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger: logger.With("component", "registry"),
	}
	for i := range r.shards {
		r.shards[i] = &registryShard{viewers: make(map[string]map[string]*viewer)}
	}
	return r
}

func (r *Registry) shardFor(patientID string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(patientID))
	return r.shards[h.Sum32()%registryShards]
}

// Subscribe registers a new viewer for the given patient. It never blocks
// and always succeeds. The returned channel receives every message
// broadcast for the patient from this point on, in broadcast order. The
// subscription is cleaned up automatically when ctx is cancelled.
func (r *Registry) Subscribe(ctx context.Context, patientID string) (<-chan *store.Message, string) {
	subID := uuid.New().String()
	v := &viewer{ch: make(chan *store.Message, viewerBufferSize)}

	// The read lock is held across the shard insert so a concurrent Close
	// cannot sweep the shards while a half-registered viewer slips in.
	r.closeMu.RLock()
	if r.closed {
		r.closeMu.RUnlock()
		close(v.ch)
		return v.ch, subID
	}

	shard := r.shardFor(patientID)
	shard.mu.Lock()
	if _, ok := shard.viewers[patientID]; !ok {
		shard.viewers[patientID] = make(map[string]*viewer)
	}
	shard.viewers[patientID][subID] = v
	shard.mu.Unlock()
	r.closeMu.RUnlock()

	r.logger.Debug("viewer subscribed", "patient_id", patientID, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		r.Unsubscribe(patientID, subID)
	}()

	return v.ch, subID
}

// Unsubscribe removes a subscription and closes its channel. It is
// idempotent: unsubscribing twice, or after a broadcast tore the viewer
// down, is a no-op. Empty patient entries are reclaimed.
func (r *Registry) Unsubscribe(patientID, subID string) {
	shard := r.shardFor(patientID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	subs, ok := shard.viewers[patientID]
	if !ok {
		return
	}
	v, ok := subs[subID]
	if !ok {
		return
	}

	delete(subs, subID)
	close(v.ch)
	if len(subs) == 0 {
		delete(shard.viewers, patientID)
	}

	r.logger.Debug("viewer unsubscribed", "patient_id", patientID, "sub_id", subID)
}

// Broadcast delivers msg to every live viewer of the patient. Delivery is
// non-blocking per viewer: a viewer whose buffer is full is considered
// broken, logged, and torn down without delaying its peers or the caller.
// Broadcasts for the same patient are mutually ordered; broadcasts for
// different patients proceed independently.
func (r *Registry) Broadcast(patientID string, msg *store.Message) {
	shard := r.shardFor(patientID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	subs, ok := shard.viewers[patientID]
	if !ok {
		return
	}

	for subID, v := range subs {
		select {
		case v.ch <- msg:
		default:
			// Viewer stopped draining its channel. Tear it down so it
			// cannot absorb or delay future broadcasts.
			delete(subs, subID)
			close(v.ch)
			metrics.ViewersDropped.Inc()
			r.logger.Warn("dropping stalled viewer",
				"patient_id", patientID,
				"sub_id", subID,
				"message_id", msg.ID)
		}
	}
	if len(subs) == 0 {
		delete(shard.viewers, patientID)
	}
}

// ViewerCount returns the number of live subscriptions for a patient.
func (r *Registry) ViewerCount(patientID string) int {
	shard := r.shardFor(patientID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return len(shard.viewers[patientID])
}

// Close tears down every subscription. Used at process shutdown so no
// viewer connection is left half-open.
func (r *Registry) Close() {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return
	}
	r.closed = true
	r.closeMu.Unlock()

	for _, shard := range r.shards {
		shard.mu.Lock()
		for patientID, subs := range shard.viewers {
			for subID, v := range subs {
				close(v.ch)
				delete(subs, subID)
			}
			delete(shard.viewers, patientID)
		}
		shard.mu.Unlock()
	}

	r.logger.Debug("registry closed")
}
