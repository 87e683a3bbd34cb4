package dto

// ErrorResponse documents shared.APIError for the OpenAPI document.
type ErrorResponse struct {
	Code    string `json:"code" example:"missing_file"`
	Error   string `json:"error" example:"File is required"`
	Details any    `json:"details,omitempty" swaggertype:"object"`
}
