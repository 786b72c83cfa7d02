package model

// User is the profile served by the core API.
type User struct {
	ID               string   `json:"_id"`
	FullName         string   `json:"full_name"`
	Email            string   `json:"email"`
	Phone            string   `json:"phone,omitempty"`
	Role             string   `json:"role"`
	IsActive         bool     `json:"is_active"`
	IsVerified       bool     `json:"is_verified"`
	AccessibleBlocks []string `json:"accessible_blocks,omitempty"`
}

// LoginRequest is the payload for a user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// RegisterRequest is the payload for a new user registration. Both password
// fields are forwarded to the core API, which enforces that they match.
type RegisterRequest struct {
	FullName  string `json:"full_name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password1 string `json:"password1" binding:"required,min=6"`
	Password2 string `json:"password2" binding:"required,min=6"`
	Phone     string `json:"phone" binding:"required"`
}
