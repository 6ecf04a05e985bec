package dto

// GeneratorResult is the body of the start and stop endpoints.
type GeneratorResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// GeneratorRunResult is the body of a manual import run.
type GeneratorRunResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Tasks   []TaskResponse `json:"tasks"`
}

type GeneratorStatus struct {
	IsRunning       bool    `json:"is_running"`
	IntervalSeconds float64 `json:"interval_seconds"`
	APIURL          string  `json:"api_url"`
	CurrentOffset   int     `json:"current_offset"`
}
