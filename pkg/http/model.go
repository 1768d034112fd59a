package http

// APIResponse represents standard API response.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_MAX"`
	Field   string                 `json:"field,omitempty" example:"instrument"`
	Message string                 `json:"message,omitempty" example:"instrument must be at most 16 characters"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// HealthStatus is the body of the health endpoint.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
