package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleOwner UserRole = "OWNER"
	RoleAdmin UserRole = "ADMIN"
	RoleStaff UserRole = "STAFF"
)

// JWTClaims describes the payload embedded in access tokens. Every token is
// scoped to exactly one academy.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	AcademyID string   `json:"academy_id"`
	Role      UserRole `json:"role"`
	jwt.RegisteredClaims
}
