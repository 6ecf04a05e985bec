package domain

import "time"

// EventType is the "type" discriminator of every message pushed to realtime clients.
type EventType string

const (
	EventTaskCreated EventType = "task_created"
	EventTaskUpdated EventType = "task_updated"
	EventTaskDeleted EventType = "task_deleted"

	EventConnected   EventType = "connected"
	EventUserMessage EventType = "user_message"
)

// Event is a single outbound realtime message. Task change events carry Data;
// connection-level events use the flat ClientID/Message/Timestamp fields.
type Event struct {
	Type      EventType  `json:"type"`
	Data      any        `json:"data,omitempty"`
	ClientID  string     `json:"client_id,omitempty"`
	Message   *string    `json:"message,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// TaskPayload is the data block of task_created and task_updated events.
type TaskPayload struct {
	ID          int64   `json:"id"`
	ExternalID  *int64  `json:"external_id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Completed   bool    `json:"completed"`
}

// DeletedPayload is the data block of task_deleted events.
type DeletedPayload struct {
	ID int64 `json:"id"`
}

func TaskCreated(t Task) Event {
	return Event{Type: EventTaskCreated, Data: payloadOf(t)}
}

func TaskUpdated(t Task) Event {
	return Event{Type: EventTaskUpdated, Data: payloadOf(t)}
}

func TaskDeleted(id int64) Event {
	return Event{Type: EventTaskDeleted, Data: DeletedPayload{ID: id}}
}

// Connected greets a freshly accepted connection.
func Connected(clientID, msg string) Event {
	return Event{Type: EventConnected, ClientID: clientID, Message: &msg}
}

// UserMessage relays text a client sent. An empty text still carries "message".
func UserMessage(clientID, text string, at time.Time) Event {
	return Event{Type: EventUserMessage, ClientID: clientID, Message: &text, Timestamp: &at}
}

func payloadOf(t Task) TaskPayload {
	return TaskPayload{
		ID:          t.ID,
		ExternalID:  t.ExternalID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
	}
}

// EventPublisher fans an event out to live realtime clients. excludeID, when
// non-empty, names a connection that must not receive the event.
type EventPublisher interface {
	Broadcast(evt Event, excludeID string)
}
