package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"time"

	"studyreg/pkg/config"
	apperrors "studyreg/pkg/errors"
	"studyreg/pkg/model"
	"studyreg/pkg/sealer"
)

type Session struct {
	Token     string           `json:"token"`
	Role      string           `json:"role"`
	Collector *model.Collector `json:"collector,omitempty"`
	ExpiresAt time.Time        `json:"expires_at"`
}

type AuthService interface {
	LoginCollector(ctx context.Context, code string) (*Session, error)
	LoginAdmin(ctx context.Context, code string) (*Session, error)
	Verify(token string) (*model.Principal, error)
}

type authService struct {
	sealer *sealer.Sealer
	cfg    *config.Config
	now    func() time.Time
}

func NewAuthService(cfg *config.Config) (AuthService, error) {
	s, err := sealer.New(cfg.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("token sealer: %w", err)
	}
	return &authService{sealer: s, cfg: cfg, now: time.Now}, nil
}

// LoginCollector compares code against every collector's code so the time
// taken does not depend on which collector, if any, matched.
func (s *authService) LoginCollector(_ context.Context, code string) (*Session, error) {
	var match *model.Collector
	for i := range s.cfg.Roster {
		if codeMatches(s.cfg.Roster[i].Code, code) && match == nil {
			match = &s.cfg.Roster[i]
		}
	}
	if match == nil {
		s.cfg.Log.Warn("Collector login rejected")
		return nil, apperrors.Unauthorized("Invalid access code")
	}

	session, err := s.issue(model.RoleCollector, match.ID)
	if err != nil {
		return nil, err
	}
	c := *match
	session.Collector = &c

	s.cfg.Log.Info("Collector logged in", "collector_id", match.ID)
	return session, nil
}

func (s *authService) LoginAdmin(_ context.Context, code string) (*Session, error) {
	if !codeMatches(s.cfg.AdminCode, code) {
		s.cfg.Log.Warn("Admin login rejected")
		return nil, apperrors.Unauthorized("Invalid access code")
	}

	session, err := s.issue(model.RoleAdmin, model.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.cfg.Log.Info("Admin logged in")
	return session, nil
}

func (s *authService) Verify(token string) (*model.Principal, error) {
	pt, err := s.sealer.Open(token)
	if err != nil {
		return nil, apperrors.Unauthorized("Invalid session token")
	}

	var p model.Principal
	if err := json.Unmarshal(pt, &p); err != nil {
		return nil, apperrors.Unauthorized("Invalid session token")
	}
	if p.Expired(s.now()) {
		return nil, apperrors.Unauthorized("Session expired")
	}
	if p.Role == model.RoleCollector {
		if _, ok := s.cfg.Roster.Find(p.Subject); !ok {
			return nil, apperrors.Unauthorized("Invalid session token")
		}
	}
	return &p, nil
}

func (s *authService) issue(role, subject string) (*Session, error) {
	p := model.Principal{
		Role:      role,
		Subject:   subject,
		ExpiresAt: s.now().Add(s.cfg.TokenTTL).UTC().Truncate(time.Second),
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, apperrors.Internal("Failed to issue session", err)
	}
	token, err := s.sealer.Seal(data)
	if err != nil {
		return nil, apperrors.Internal("Failed to issue session", err)
	}
	return &Session{Token: token, Role: role, ExpiresAt: p.ExpiresAt}, nil
}

func codeMatches(want, got string) bool {
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
