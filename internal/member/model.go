package member

import (
	"errors"
	"time"
)

const (
	TierZero = "tier0"
	TierOne  = "tier1"
)

var (
	ErrMemberNotFound     = errors.New("member not found")
	ErrMemberExists       = errors.New("phone already registered")
	ErrInvalidCredentials = errors.New("invalid phone or PIN")
	ErrDeviceRequired     = errors.New("device binding required")
	ErrDeviceMismatch     = errors.New("device mismatch")
)

// Member is a microfinance client who owns a wallet.
type Member struct {
	ID           string
	Phone        string
	FullName     string
	Tier         string
	PINHash      []byte
	DeviceID     string
	TokenVersion int
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

// Credentials carries the data a member presents at registration or login.
type Credentials struct {
	Phone    string
	PIN      string
	DeviceID string
	FullName string
}
