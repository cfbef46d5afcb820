// Package eventbus implements the SnapshotStore/EventBus pair: every
// status update from a RalphLoop execution writes to a synchronous
// in-memory snapshot map, which is the authoritative read path for
// consumers that cannot await (UI polling, get-snapshot), and to a
// non-blocking fan-out channel of status events for consumers that can
// (stream-events).
//
// The fan-out transport is an embedded, loopback-only NATS core server:
// it lets an out-of-process `ralph stream-events` invocation attach to a
// running loop without the publisher ever blocking on a slow or absent
// subscriber, which a bare Go channel can't do across process
// boundaries. The snapshot map stays in-process and synchronous; it is
// always authoritative over whatever a subscriber last saw on the bus.
package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	nc "github.com/nats-io/nats.go"
)

// IterationMetrics is the cumulative cost/iteration counters carried on
// a status event.
type IterationMetrics struct {
	Iteration      int     `json:"iteration"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	TotalDurationMs int64  `json:"total_duration_ms"`
	StoriesPassed  int     `json:"stories_passed"`
	StoriesTotal   int     `json:"stories_total"`
}

// PrdStatus is the subset of PRD state worth surfacing on a snapshot
// without shipping the whole document.
type PrdStatus struct {
	AllPass      bool     `json:"all_pass"`
	CurrentStory string   `json:"current_story,omitempty"`
	CompletedIDs []string `json:"completed_ids,omitempty"`
}

// ExecutionSnapshot is the full point-in-time state of one execution,
// as held in the SnapshotStore.
type ExecutionSnapshot struct {
	ExecutionID      string            `json:"execution_id"`
	State            string            `json:"state"`
	Iteration        int               `json:"iteration"`
	Reason           string            `json:"reason,omitempty"`
	DelayMs          int64             `json:"delay_ms,omitempty"`
	PrdStatus        *PrdStatus        `json:"prd_status,omitempty"`
	IterationMetrics *IterationMetrics `json:"iteration_metrics,omitempty"`
	CurrentAgentID   string            `json:"current_agent_id,omitempty"`
	WorktreePath     string            `json:"worktree_path,omitempty"`
	Branch           string            `json:"branch,omitempty"`
	ProgressMessage  string            `json:"progress_message,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// RalphLoopStatusEvent is published on every snapshot update. Its shape
// mirrors ExecutionSnapshot minus the parts that don't make sense on a
// discrete event (Reason/DelayMs fold into ProgressMessage upstream).
type RalphLoopStatusEvent struct {
	ExecutionID      string            `json:"execution_id"`
	State            string            `json:"state"`
	PrdStatus        *PrdStatus        `json:"prd_status,omitempty"`
	IterationMetrics *IterationMetrics `json:"iteration_metrics,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
	CurrentAgentID   string            `json:"current_agent_id,omitempty"`
	WorktreePath     string            `json:"worktree_path,omitempty"`
	Branch           string            `json:"branch,omitempty"`
	ProgressMessage  string            `json:"progress_message,omitempty"`
}

// SnapshotStore is a mutex-guarded map of execution id to its latest
// snapshot.
type SnapshotStore struct {
	mu   sync.RWMutex
	byID map[string]ExecutionSnapshot
}

// NewSnapshotStore returns an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{byID: make(map[string]ExecutionSnapshot)}
}

// Put replaces the stored snapshot for snap.ExecutionID.
func (s *SnapshotStore) Put(snap ExecutionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[snap.ExecutionID] = snap
}

// Get returns the snapshot for executionID, if any.
func (s *SnapshotStore) Get(executionID string) (ExecutionSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byID[executionID]
	return snap, ok
}

// All returns every currently stored snapshot.
func (s *SnapshotStore) All() []ExecutionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExecutionSnapshot, 0, len(s.byID))
	for _, snap := range s.byID {
		out = append(out, snap)
	}
	return out
}

// Delete removes executionID's snapshot, e.g. once an execution is
// garbage-collected after completion.
func (s *SnapshotStore) Delete(executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, executionID)
}

// subjectPrefix namespaces every execution's events under one NATS
// subject tree so a single stream-events invocation can wildcard-
// subscribe to all executions or scope to one.
const subjectPrefix = "ralph.events."

func subjectFor(executionID string) string {
	return subjectPrefix + executionID
}

// Config configures the embedded NATS core server backing the bus. A
// zero value is valid: Port 0 lets the OS pick an ephemeral loopback
// port, which is what an in-process single-binary CLI wants (no fixed
// port to collide with another instance).
type Config struct {
	Port int
}

// Bus combines a SnapshotStore with a non-blocking NATS-backed fan-out.
// The embedded server is loopback-only; Bus is meant to live for exactly
// one `ralph` process's lifetime, not as a standalone broker.
type Bus struct {
	Snapshots *SnapshotStore

	mu      sync.Mutex
	srv     *server.Server
	conn    *nc.Conn
	running bool
}

// New returns a Bus with an empty SnapshotStore and no server started
// yet; call Start before Publish/Subscribe.
func New() *Bus {
	return &Bus{Snapshots: NewSnapshotStore()}
}

// Start boots the embedded NATS server and opens the publisher
// connection used by Publish. Safe to call once per Bus.
func (b *Bus) Start(cfg Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("eventbus: already running")
	}

	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       cfg.Port,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("eventbus: create embedded server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("eventbus: embedded server not ready")
	}

	conn, err := nc.Connect(fmt.Sprintf("nats://%s", ns.Addr().String()))
	if err != nil {
		ns.Shutdown()
		return fmt.Errorf("eventbus: connect publisher: %w", err)
	}

	b.srv = ns
	b.conn = conn
	b.running = true
	return nil
}

// Stop shuts the embedded server and its publisher connection down.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.conn.Close()
	b.srv.Shutdown()
	b.srv.WaitForShutdown()
	b.running = false
	b.srv = nil
	b.conn = nil
}

// URL returns the embedded server's client connection URL, for a
// separate CLI invocation of `stream-events` to connect to.
func (b *Bus) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.srv == nil {
		return ""
	}
	return fmt.Sprintf("nats://%s", b.srv.Addr().String())
}

// Publish records evt into the snapshot store and best-effort publishes
// it on the NATS subject for its execution. Send failures (server not
// started, connection briefly down) are ignored; the snapshot write
// always happens first and is authoritative regardless of whether the
// publish reaches any subscriber.
func (b *Bus) Publish(evt RalphLoopStatusEvent, snap ExecutionSnapshot) {
	b.Snapshots.Put(snap)

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	_ = conn.Publish(subjectFor(evt.ExecutionID), data)
}

// Subscribe opens a new connection and subscribes to executionID's
// subject, invoking handler for each event received until the returned
// unsubscribe function is called. A fresh connection is used (rather
// than the shared publisher connection) so a slow handler can never
// back-pressure publishing.
func (b *Bus) Subscribe(executionID string, handler func(RalphLoopStatusEvent)) (func(), error) {
	url := b.URL()
	if url == "" {
		return nil, fmt.Errorf("eventbus: not running")
	}
	return SubscribeURL(url, executionID, handler)
}

// SubscribeURL attaches to a Bus already running in another process at
// url, the way an out-of-process `ralph stream-events` invocation does:
// it only knows the URL persisted in the loop registry, not the *Bus
// value the publishing process holds.
func SubscribeURL(url, executionID string, handler func(RalphLoopStatusEvent)) (func(), error) {
	conn, err := nc.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("eventbus: subscriber connect: %w", err)
	}

	sub, err := conn.Subscribe(subjectFor(executionID), func(msg *nc.Msg) {
		var evt RalphLoopStatusEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return
		}
		handler(evt)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventbus: subscribe: %w", err)
	}

	return func() {
		_ = sub.Unsubscribe()
		conn.Close()
	}, nil
}
