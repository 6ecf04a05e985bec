package domain

import "errors"

var (
	ErrTaskNotFound        = errors.New("task not found")
	ErrDuplicateExternalID = errors.New("task with this external id already exists")
)
