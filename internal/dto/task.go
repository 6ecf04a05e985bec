package dto

import (
	"bytes"
	"encoding/json"
	"time"
)

type CreateTaskRequest struct {
	Title       string  `json:"title" binding:"required,min=1,max=200"`
	Description *string `json:"description"`
	Completed   bool    `json:"completed"`
	ExternalID  *int64  `json:"external_id"`
}

// UpdateTaskRequest is a partial update: absent fields stay unchanged, an
// explicit "description": null clears the description.
type UpdateTaskRequest struct {
	Title       *string        `json:"title" binding:"omitempty,min=1,max=200"`
	Description NullableString `json:"description" swaggertype:"string"`
	Completed   *bool          `json:"completed"`
}

// NullableString tells an absent JSON field apart from an explicit null.
type NullableString struct {
	Set   bool
	Value *string
}

func (n *NullableString) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

type ListTasksQuery struct {
	Skip  int `form:"skip,default=0" binding:"min=0"`
	Limit int `form:"limit,default=100" binding:"min=1,max=1000"`
}

type TaskResponse struct {
	ID          int64      `json:"id"`
	ExternalID  *int64     `json:"external_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
