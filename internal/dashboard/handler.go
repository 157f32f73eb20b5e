package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/tasksync/tasksync/internal/schema"
)

// TaskUpdateData contains task change information
type TaskUpdateData struct {
	TaskID      string    `json:"task_id"`
	Action      string    `json:"action"` // created, updated, deleted
	Title       string    `json:"title,omitempty"`
	IsCompleted bool      `json:"is_completed"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// StatsData contains task statistics
type StatsData struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

// SyncCompleteData describes one reconciled device batch
type SyncCompleteData struct {
	Received   int           `json:"received"`
	Tombstones int           `json:"tombstones"`
	Updated    int           `json:"updated"`
	Removed    int           `json:"removed"`
	Duration   time.Duration `json:"duration"`
}

// Handler turns store events into dashboard messages and keeps running
// statistics. It is safe for concurrent use.
type Handler struct {
	hub    *Hub
	logger *log.Logger

	mu        sync.Mutex
	completed map[string]bool
}

// NewHandler creates a new event handler connected to a hub. New clients
// receive the current statistics on connect.
func NewHandler(hub *Hub, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	h := &Handler{
		hub:       hub,
		logger:    logger,
		completed: make(map[string]bool),
	}
	hub.setWelcome(h.statsMessage)
	return h
}

// OnTaskCreated handles task creation events
func (h *Handler) OnTaskCreated(task *schema.Task) {
	h.logger.Printf("Task created: %s (%s)", task.ID, task.Title)
	h.track(task)
	h.broadcastTask("created", task)
	h.broadcastStats()
}

// OnTaskUpdated handles task update events
func (h *Handler) OnTaskUpdated(task *schema.Task) {
	h.logger.Printf("Task updated: %s (%s)", task.ID, task.Title)
	h.track(task)
	h.broadcastTask("updated", task)
	h.broadcastStats()
}

// OnTaskDeleted handles task deletion events
func (h *Handler) OnTaskDeleted(task *schema.Task) {
	h.logger.Printf("Task deleted: %s", task.ID)

	h.mu.Lock()
	delete(h.completed, task.ID)
	h.mu.Unlock()

	h.broadcastTask("deleted", task)
	h.broadcastStats()
}

// OnSyncComplete handles a reconciled batch. Each written task and each
// removal is also broadcast as a task update.
func (h *Handler) OnSyncComplete(received, tombstones int, updated []*schema.Task, removed []string, duration time.Duration) {
	h.logger.Printf("Sync complete: received %d tasks and %d deletions, updated %d, removed %d in %v",
		received, tombstones, len(updated), len(removed), duration)

	for _, task := range updated {
		h.track(task)
		h.broadcastTask("updated", task)
	}
	h.mu.Lock()
	for _, id := range removed {
		delete(h.completed, id)
	}
	h.mu.Unlock()
	for _, id := range removed {
		h.broadcastTask("deleted", &schema.Task{ID: id})
	}

	h.broadcast(MessageTypeSyncComplete, SyncCompleteData{
		Received:   received,
		Tombstones: tombstones,
		Updated:    len(updated),
		Removed:    len(removed),
		Duration:   duration,
	})
	h.broadcastStats()
}

// UpdateStats resets statistics from a full task list.
// This is useful for initialization or periodic refresh
func (h *Handler) UpdateStats(tasks []*schema.Task) {
	h.mu.Lock()
	h.completed = make(map[string]bool, len(tasks))
	for _, task := range tasks {
		h.completed[task.ID] = task.IsCompleted
	}
	h.mu.Unlock()

	h.broadcastStats()
}

// Stats returns the current statistics.
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := StatsData{Total: len(h.completed)}
	for _, done := range h.completed {
		if done {
			stats.Completed++
		}
	}
	stats.Pending = stats.Total - stats.Completed
	return stats
}

func (h *Handler) track(task *schema.Task) {
	h.mu.Lock()
	h.completed[task.ID] = task.IsCompleted
	h.mu.Unlock()
}

func (h *Handler) broadcastTask(action string, task *schema.Task) {
	h.broadcast(MessageTypeTaskUpdate, TaskUpdateData{
		TaskID:      task.ID,
		Action:      action,
		Title:       task.Title,
		IsCompleted: task.IsCompleted,
		UpdatedAt:   task.UpdatedAt,
	})
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	h.hub.Broadcast(h.statsMessage())
}

func (h *Handler) statsMessage() Message {
	dataJSON, err := json.Marshal(h.Stats())
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
	}
	return Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	}
}

func (h *Handler) broadcast(typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}

	h.hub.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
