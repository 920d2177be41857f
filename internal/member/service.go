package member

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Service manages the member lifecycle.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new member service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Register creates a new tier0 member and stores a hashed PIN.
func (s *Service) Register(ctx context.Context, creds Credentials) (Member, error) {
	phone := strings.TrimSpace(creds.Phone)
	if phone == "" {
		return Member{}, errors.New("phone is required")
	}
	if len(creds.PIN) < 4 {
		return Member{}, errors.New("PIN must be at least 4 digits")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return Member{}, fmt.Errorf("hash pin: %w", err)
	}

	m := Member{
		ID:        uuid.NewString(),
		Phone:     phone,
		FullName:  strings.TrimSpace(creds.FullName),
		Tier:      TierZero,
		PINHash:   hash,
		DeviceID:  creds.DeviceID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return Member{}, err
	}
	return m, nil
}

// Authenticate verifies credentials and device binding. A tier0 member is
// promoted to tier1 on the first successful login.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Member, error) {
	m, err := s.repo.FindByPhone(ctx, strings.TrimSpace(creds.Phone))
	if errors.Is(err, ErrMemberNotFound) {
		return Member{}, ErrInvalidCredentials
	}
	if err != nil {
		return Member{}, err
	}

	if err := bcrypt.CompareHashAndPassword(m.PINHash, []byte(creds.PIN)); err != nil {
		return Member{}, ErrInvalidCredentials
	}

	if m.DeviceID == "" {
		if creds.DeviceID == "" {
			return Member{}, ErrDeviceRequired
		}
		if err := s.repo.UpdateDevice(ctx, m.ID, creds.DeviceID); err != nil {
			return Member{}, err
		}
		m.DeviceID = creds.DeviceID
	} else if creds.DeviceID != "" && m.DeviceID != creds.DeviceID {
		return Member{}, ErrDeviceMismatch
	}

	if m.Tier == TierZero {
		m.Tier = TierOne
	}
	m.LastLoginAt = s.now().UTC()
	if err := s.repo.RecordLogin(ctx, m.ID, m.Tier, m.LastLoginAt); err != nil {
		return Member{}, err
	}
	return m, nil
}

// Get returns a member by id.
func (s *Service) Get(ctx context.Context, id string) (Member, error) {
	return s.repo.FindByID(ctx, id)
}
