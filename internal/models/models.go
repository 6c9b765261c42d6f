package models

import (
	"time"
)

// StatusConfirmed is the only account status allowed to log in.
const StatusConfirmed = "confirmed"

type User struct {
	ID                string
	FirstName         string
	LastName          string
	Email             string
	Password          string // digest, never plaintext
	RegistrationToken string
	Status            string
	Active            bool
	Image             string
	Settings          map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Code string

const (
	CodeSuccess           Code = "success"
	CodeCredentialsError  Code = "credentialsError"
	CodeEmailNotConfirmed Code = "emailNotConfirmed"
	CodeUserInactive      Code = "userinactive"
	CodePasswordError     Code = "passwordError"
	CodeTokenNotValid     Code = "tokenNotValid"
	CodeNotDataModified   Code = "notDataModified"
	CodeError             Code = "error"
)

// Result is the {code, detail} envelope every auth operation answers with.
type Result struct {
	Code   Code `json:"code"`
	Detail any  `json:"detail"`
}

type LoginDetail struct {
	ID                string         `json:"_id"`
	FirstName         string         `json:"firstName"`
	LastName          string         `json:"lastName"`
	Email             string         `json:"email"`
	UnreadMessagesQtt int            `json:"unreadMessagesQtt"`
	Settings          map[string]any `json:"settings"`
}

type TokenOwner struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}
