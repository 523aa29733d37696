package domain

// User is owned by the auth pages; the core only reads it.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
