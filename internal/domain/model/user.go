//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strings"
	"time"
)

// PromotedBy values recorded on admin memberships.
const (
	PromotedBySelfSetup          = "self-setup"
	PromotedByDirectRegistration = "direct-registration"
	PromotedByCLI                = "cli"
)

// UserProfile is the profile record kept in the users collection.
type UserProfile struct {
	UserID      string    `json:"user_id"      db:"user_id"`
	Email       string    `json:"email"        db:"email"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
}

// AdminMembership is the role membership record. Its existence alone grants the admin role.
type AdminMembership struct {
	UserID     string    `json:"user_id"     db:"user_id"`
	Email      string    `json:"email"       db:"email"`
	PromotedAt time.Time `json:"promoted_at" db:"promoted_at"`
	PromotedBy string    `json:"promoted_by" db:"promoted_by"`
}

// RegisterRequest represents an email/password sign-up.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
	AdminKey    string `json:"admin_key,omitempty"`
}

// Validate trims the email and checks both credentials.
func (r *RegisterRequest) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	if err := ValidateEmail(r.Email); err != nil {
		return err
	}
	return ValidatePassword(r.Password)
}
