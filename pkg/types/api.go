package types

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	// example: true
	Healthy bool `json:"healthy" example:"true"`
	// Streaming executions currently running.
	// example: 1
	ActiveStreams int `json:"active_streams" example:"1"`
	// Seconds since the server started.
	// example: 3600
	Uptime int64 `json:"uptime" example:"3600"`
}

// ResetResponse is returned by GET /api/reset.
type ResetResponse struct {
	// example: true
	Reset bool `json:"reset" example:"true"`
	// example: killed 2 inference processes
	Message string `json:"message" example:"killed 2 inference processes"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	// example: ok
	Status string `json:"status" example:"ok"`
	// Engine version as reported by the engine script.
	// example: 1.4.0
	Version string `json:"version" example:"1.4.0"`
	// File name of the active model, empty when none is active.
	// example: qwen3-0.6b.gguf
	Model string `json:"model" example:"qwen3-0.6b.gguf"`
}

// CatalogModel is one entry of the fixed model catalog.
type CatalogModel struct {
	// example: qwen3
	Name string `json:"name" yaml:"name" example:"qwen3"`
	// example: Qwen3 0.6B, fastest general chat model
	Description string `json:"description" yaml:"description"`
	// example: 400MB
	Size string `json:"size" yaml:"size" example:"400MB"`
	// example: 1GB
	RAM string `json:"ram" yaml:"ram" example:"1GB"`
}

// CatalogResponse wraps GET /api/models.
type CatalogResponse struct {
	Models []CatalogModel `json:"models"`
}

// InstalledModel is a model file found in the models directory.
type InstalledModel struct {
	// example: qwen3-0.6b.gguf
	Name string `json:"name" example:"qwen3-0.6b.gguf"`
	// example: 379 MiB
	Size string `json:"size" example:"379 MiB"`
	// example: true
	Active bool `json:"active" example:"true"`
	// Absolute path; not exposed over HTTP.
	Path string `json:"-"`
}

// InstalledResponse wraps GET /api/models/installed.
type InstalledResponse struct {
	Models []InstalledModel `json:"models"`
}

// ModelRequest is the body of install/remove/use.
type ModelRequest struct {
	// example: qwen3
	Model string `json:"model" example:"qwen3"`
}

// OperationResponse reports the outcome of a mutating model operation.
type OperationResponse struct {
	// example: true
	Success bool `json:"success" example:"true"`
	// example: Model qwen3 installed
	Message string `json:"message" example:"Model qwen3 installed"`
}

// ChatRequest is the body of POST /api/chat and /api/chat/stream.
type ChatRequest struct {
	// example: Write a haiku about the ocean.
	Message string `json:"message" example:"Write a haiku about the ocean."`
	// Optional generation limit forwarded to the engine; 0 uses its default.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
}

// ChatResponse is returned by POST /api/chat.
type ChatResponse struct {
	Response string `json:"response"`
}

// ConfigSetRequest is the body of POST /api/config.
type ConfigSetRequest struct {
	// example: threads
	Key string `json:"key" example:"threads"`
	// example: 4
	Value string `json:"value" example:"4"`
}

// SuccessResponse is a bare acknowledgement.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// example: Not found
	Error string `json:"error" example:"Not found"`
	// HTTP status code.
	// example: 404
	Status int `json:"status" example:"404"`
}
