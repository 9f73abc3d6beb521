package domain

import (
	"time"
)

type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleOperator UserRole = "operator"
	UserRoleUser     UserRole = "user"
)

// User is the account an id-tag resolves to. IdTag is the opaque credential
// a vehicle or RFID card presents on Authorize/StartTransaction.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	Email     string    `json:"email" gorm:"uniqueIndex"`
	IdTag     string    `json:"id_tag" gorm:"uniqueIndex"`
	Password  string    `json:"-"` // hashed, operator API only
	Role      UserRole  `json:"role"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuthStatus mirrors the OCPP idTagInfo / idTokenInfo status values that the
// authorization decision can produce.
type AuthStatus string

const (
	AuthStatusAccepted     AuthStatus = "Accepted"
	AuthStatusInvalid      AuthStatus = "Invalid"
	AuthStatusBlocked      AuthStatus = "Blocked"
	AuthStatusExpired      AuthStatus = "Expired"
	AuthStatusConcurrentTx AuthStatus = "ConcurrentTx"
)

// AuthResult is the outcome of resolving an id-tag.
type AuthResult struct {
	Status AuthStatus
	User   *User
}
