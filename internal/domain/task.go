package domain

import "time"

// TitleMaxLen is the upper bound on Task.Title, in runes.
const TitleMaxLen = 200

// Task is the persisted todo entity.
// Не зависит от Gin, Postgres, Redis.
type Task struct {
	ID          int64
	ExternalID  *int64
	Title       string
	Description *string
	Completed   bool

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// TaskPatch carries the fields of a partial update. Nil means "leave unchanged".
// Description is nullable, so DescriptionSet marks it as present: set with a
// nil Description clears the column.
type TaskPatch struct {
	Title          *string
	Description    *string
	DescriptionSet bool
	Completed      *bool
}

// SetsDescription reports whether the patch writes Description.
func (p TaskPatch) SetsDescription() bool {
	return p.DescriptionSet || p.Description != nil
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && !p.SetsDescription() && p.Completed == nil
}

// TruncateTitle cuts s to TitleMaxLen runes.
func TruncateTitle(s string) string {
	r := []rune(s)
	if len(r) <= TitleMaxLen {
		return s
	}
	return string(r[:TitleMaxLen])
}
