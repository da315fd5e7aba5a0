package llm

// ErrorResponse is the body an OpenAI-style endpoint returns on failure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

// NewErrorResponse builds an ErrorResponse with the given type and message.
func NewErrorResponse(errType, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Message: message, Type: errType}}
}
