package model

// APIResponse is the envelope of every JSON body the API writes: a Dog,
// View, draft or probe status under data on success, and the HTTP status
// code with a message on failure.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Code    int    `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse wraps data in a successful envelope.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse builds a failed envelope carrying the HTTP status code.
func NewErrorResponse(code int, errMsg string) APIResponse[any] {
	return APIResponse[any]{
		Code:  code,
		Error: errMsg,
	}
}
