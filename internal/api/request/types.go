package request

// RegisterRequest is the request body for registering a user
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest is the request body for logging in
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RecordMatchRequest is the request body for recording a match.
// Exactly one of Result and Winner must be set.
type RecordMatchRequest struct {
	PlayerA string `json:"player_a"`
	PlayerB string `json:"player_b"`
	Result  string `json:"result,omitempty"`
	Winner  string `json:"winner,omitempty"`
}
