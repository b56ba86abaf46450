// Package session keeps one session's message and task lists consistent
// across the two asynchronous inputs: the request/response API (the
// user's own actions) and the push channel (the backend's progress).
package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/caiframework/cai-console/internal/api"
	"github.com/caiframework/cai-console/internal/events"
	"github.com/caiframework/cai-console/internal/models"
	"github.com/google/uuid"
)

// API is the request/response surface the reconciler consumes.
// *api.Client satisfies it; tests substitute a fake.
type API interface {
	SendMessage(ctx context.Context, sessionID, content string) (*api.SendMessageResponse, error)
	GetSessionMessages(ctx context.Context, sessionID string) ([]models.Message, error)
	GetSessionTasks(ctx context.Context, sessionID string) ([]models.Task, error)
}

// Stats counts reconciliation events that are not errors but should be
// observable: updates and logs referencing tasks this client has never
// seen.
type Stats struct {
	DroppedTaskUpdates uint64
	DroppedTaskLogs    uint64
}

// Reconciler maintains the authoritative in-memory message and task
// lists for the active session and reconciles optimistic sends against
// confirmed responses and pushed events.
type Reconciler struct {
	client  API
	verbose bool

	mu        sync.Mutex
	sessionID string
	// generation increments on every activation change; in-flight sends
	// carry the generation they started under and resolve only if it
	// still matches, so a reply never lands in another session's list.
	generation uint64
	messages   []models.Message
	tasks     []models.Task
	stats     Stats
	unsubs    []func()

	// onChange runs after every list mutation, outside the lock.
	onChange func()
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithOnChange registers a callback invoked after every mutation of the
// message or task list. It runs on the mutating goroutine; hand heavy
// work off.
func WithOnChange(fn func()) Option {
	return func(r *Reconciler) { r.onChange = fn }
}

// WithVerbose enables per-event logging.
func WithVerbose(verbose bool) Option {
	return func(r *Reconciler) { r.verbose = verbose }
}

// NewReconciler creates a Reconciler over the given API surface.
func NewReconciler(client API, opts ...Option) *Reconciler {
	r := &Reconciler{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Activate binds the reconciler to sessionID: it subscribes to the
// session's push events on the dispatcher and loads the full message
// and task history. A previous activation is revoked first.
func (r *Reconciler) Activate(ctx context.Context, sessionID string, dispatcher *events.Dispatcher) error {
	r.Deactivate()

	r.mu.Lock()
	r.sessionID = sessionID
	r.unsubs = []func(){
		dispatcher.Subscribe(models.EventMessageAdded, r.handleEvent),
		dispatcher.Subscribe(models.EventTaskUpdate, r.handleEvent),
		dispatcher.Subscribe(models.EventTaskCreated, r.handleEvent),
		dispatcher.Subscribe(models.EventTaskLog, r.handleEvent),
	}
	r.mu.Unlock()

	// Subscriptions come up before the history loads; a push handled in
	// that window is superseded by the snapshot, which the server built
	// after writing the pushed record.
	if err := r.LoadMessages(ctx, sessionID); err != nil {
		return err
	}
	return r.LoadTasks(ctx, sessionID)
}

// Deactivate revokes the push subscriptions and clears local state.
func (r *Reconciler) Deactivate() {
	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	r.generation++
	r.sessionID = ""
	r.messages = nil
	r.tasks = nil
	r.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// SessionID returns the active session id, or "".
func (r *Reconciler) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Messages returns a copy of the current message list.
func (r *Reconciler) Messages() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Tasks returns a copy of the current task list.
func (r *Reconciler) Tasks() []models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// Stats returns the reconciliation counters.
func (r *Reconciler) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// LoadMessages replaces the local message list with the server's full
// history. This is the sole source of historical data; pushed events
// only append going forward.
func (r *Reconciler) LoadMessages(ctx context.Context, sessionID string) error {
	messages, err := r.client.GetSessionMessages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	r.mu.Lock()
	r.messages = messages
	r.mu.Unlock()
	r.notify()
	return nil
}

// LoadTasks replaces the local task list with the server's current set.
func (r *Reconciler) LoadTasks(ctx context.Context, sessionID string) error {
	tasks, err := r.client.GetSessionTasks(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	r.mu.Lock()
	r.tasks = tasks
	r.mu.Unlock()
	r.notify()
	return nil
}

// SendUserMessage appends a speculative user message immediately, sends
// the content to the backend, and reconciles the outcome: on success
// the speculative entry is replaced by the canonical user message (by
// synthetic id, never by position, since pushed events may interleave) and
// the assistant reply is appended; on failure the speculative entry is
// removed and the error surfaced. If the active session changed while
// the request was in flight, the resolution is dropped entirely.
func (r *Reconciler) SendUserMessage(ctx context.Context, content string) (*models.Message, error) {
	specID := "local-" + uuid.NewString()

	r.mu.Lock()
	sessionID := r.sessionID
	gen := r.generation
	if sessionID == "" {
		r.mu.Unlock()
		return nil, fmt.Errorf("no active session")
	}
	r.messages = append(r.messages, models.Message{
		ID:        specID,
		Role:      models.RoleUser,
		Content:   content,
		Timestamp: models.Now(),
		ToolsUsed: []string{},
	})
	r.mu.Unlock()
	r.notify()

	resp, err := r.client.SendMessage(ctx, sessionID, content)
	if err != nil {
		r.mu.Lock()
		if gen == r.generation {
			r.removeMessageLocked(specID)
		}
		r.mu.Unlock()
		r.notify()
		return nil, fmt.Errorf("send failed: %w", err)
	}

	assistant := resp.Response

	r.mu.Lock()
	if gen != r.generation {
		// The session changed while the request was in flight. The
		// send itself succeeded, but its messages belong to the old
		// session's list, not whatever is active now.
		r.mu.Unlock()
		return &assistant, nil
	}
	if idx := r.indexOfMessage(specID); idx >= 0 {
		if resp.Message.ID != "" {
			r.messages[idx] = resp.Message
		} else {
			// Server omitted the canonical user echo; promote
			// the speculative entry where it stands.
			r.messages[idx].ID = "confirmed-" + specID
		}
	}
	r.messages = append(r.messages, assistant)
	r.mu.Unlock()
	r.notify()

	return &assistant, nil
}

// OnPushedMessage appends the carried message. Pushed messages are
// always new, never updates.
func (r *Reconciler) OnPushedMessage(event models.MessageAdded) {
	r.mu.Lock()
	r.messages = append(r.messages, event.Message)
	r.mu.Unlock()
	r.notify()
}

// OnPushedTaskUpdate replaces the task in place, preserving its list
// position. An update for an unknown id is dropped: only task_created
// brings a task into the list.
func (r *Reconciler) OnPushedTaskUpdate(event models.TaskUpdate) {
	r.mu.Lock()
	replaced := false
	for i := range r.tasks {
		if r.tasks[i].ID == event.Task.ID {
			r.tasks[i] = event.Task
			replaced = true
			break
		}
	}
	if !replaced {
		r.stats.DroppedTaskUpdates++
	}
	r.mu.Unlock()

	if !replaced {
		if r.verbose {
			log.Printf("[Session] Dropping update for unknown task %s", event.Task.ID)
		}
		return
	}
	r.notify()
}

// OnPushedTaskCreated appends the carried task.
func (r *Reconciler) OnPushedTaskCreated(event models.TaskCreated) {
	r.mu.Lock()
	r.tasks = append(r.tasks, event.Task)
	r.mu.Unlock()
	r.notify()
}

// OnPushedTaskLog appends one log entry to an existing task's log
// stream. Unknown ids are dropped like task updates.
func (r *Reconciler) OnPushedTaskLog(event models.TaskLogEvent) {
	r.mu.Lock()
	appended := false
	for i := range r.tasks {
		if r.tasks[i].ID == event.TaskID {
			r.tasks[i].Logs = append(r.tasks[i].Logs, event.Log)
			appended = true
			break
		}
	}
	if !appended {
		r.stats.DroppedTaskLogs++
	}
	r.mu.Unlock()

	if appended {
		r.notify()
	}
}

// handleEvent routes decoded push events to the typed handlers.
func (r *Reconciler) handleEvent(payload interface{}) {
	switch event := payload.(type) {
	case models.MessageAdded:
		r.OnPushedMessage(event)
	case models.TaskUpdate:
		r.OnPushedTaskUpdate(event)
	case models.TaskCreated:
		r.OnPushedTaskCreated(event)
	case models.TaskLogEvent:
		r.OnPushedTaskLog(event)
	}
}

func (r *Reconciler) indexOfMessage(id string) int {
	for i := range r.messages {
		if r.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Reconciler) removeMessageLocked(id string) {
	if idx := r.indexOfMessage(id); idx >= 0 {
		r.messages = append(r.messages[:idx:idx], r.messages[idx+1:]...)
	}
}

func (r *Reconciler) notify() {
	if r.onChange != nil {
		r.onChange()
	}
}
