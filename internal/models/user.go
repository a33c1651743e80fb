package models

import "github.com/uptrace/bun"

type User struct {
	bun.BaseModel `bun:"table:users"`

	UserID   string `bun:"user_id,pk" json:"user_id"`
	Email    string `bun:"email" json:"email"`
	FullName string `bun:"full_name" json:"full_name"`
}
