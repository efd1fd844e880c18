package handlers

// ErrorResponse is the envelope for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AppendResponse is the envelope returned by all append endpoints.
type AppendResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OperatorProfile is the operator identity returned at login.
type OperatorProfile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	Dependency  string `json:"dependency"`
}

// LoginResponse is the payload returned by the login endpoint.
type LoginResponse struct {
	Token    string          `json:"token"`
	Operator OperatorProfile `json:"operator"`
}
