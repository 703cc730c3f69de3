package domain

// User never serializes PasswordHash to JSON; it is persisted only.
type User struct {
	ID           string `json:"id" dynamodbav:"id"`
	Name         string `json:"name" dynamodbav:"name"`
	Email        string `json:"email" dynamodbav:"email"`
	PasswordHash string `json:"-" dynamodbav:"passwordHash"`
	Phone        string `json:"phone" dynamodbav:"phone"`
	IsAdmin      bool   `json:"isAdmin" dynamodbav:"isAdmin"`
	Street       string `json:"street" dynamodbav:"street"`
	Apartment    string `json:"apartment" dynamodbav:"apartment"`
	Zip          string `json:"zip" dynamodbav:"zip"`
	City         string `json:"city" dynamodbav:"city"`
	Country      string `json:"country" dynamodbav:"country"`
}

type UserSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CreateUserRequest struct {
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6,max=72"`
	Phone     string `json:"phone" binding:"required"`
	IsAdmin   bool   `json:"isAdmin"`
	Street    string `json:"street"`
	Apartment string `json:"apartment"`
	Zip       string `json:"zip"`
	City      string `json:"city"`
	Country   string `json:"country"`
}

type UserPatch struct {
	Name      *string `json:"name" binding:"omitempty,min=1"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Password  *string `json:"password" binding:"omitempty,min=6,max=72"`
	Phone     *string `json:"phone"`
	IsAdmin   *bool   `json:"isAdmin"`
	Street    *string `json:"street"`
	Apartment *string `json:"apartment"`
	Zip       *string `json:"zip"`
	City      *string `json:"city"`
	Country   *string `json:"country"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	User  string `json:"user"`
	Token string `json:"token"`
}
