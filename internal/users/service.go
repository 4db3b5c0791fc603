package users

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const providerSubjectQuery = "provider = ? AND subject = ?"

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrNotMember indicates a valid session whose email is not on the household allowlist.
	ErrNotMember = errors.New("users: not a household member")
)

// ServiceConfig describes the dependencies required for member resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
	// AllowedEmails restricts membership. Empty admits every valid session.
	AllowedEmails []string
}

// Service maps session claims onto household members.
type Service struct {
	db      *gorm.DB
	now     func() time.Time
	logger  *zap.Logger
	allowed map[string]struct{}
	cache   sync.Map
}

// NewService constructs the member service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedEmails))
	for _, email := range cfg.AllowedEmails {
		if normalized := normalizeEmail(email); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	return &Service{
		db:      cfg.Database,
		now:     clock,
		logger:  logger,
		allowed: allowed,
	}, nil
}

// ResolveMember admits the session holder and records their identity on first
// sight. Returns ErrNotMember when an allowlist is configured and the session
// email is not on it.
func (s *Service) ResolveMember(claims auth.SessionClaims) (Member, error) {
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return Member{}, ErrInvalidIdentity
	}

	email := normalizeEmail(claims.UserEmail)
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[email]; !ok {
			return Member{}, ErrNotMember
		}
	}

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if member, ok := cached.(Member); ok && member.Email == email {
			return member, nil
		}
	}

	var identity Identity
	err := s.db.
		Where(providerSubjectQuery, provider, subject).
		Take(&identity).
		Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		identity = Identity{
			Provider:    provider,
			Subject:     subject,
			UserID:      subject,
			Email:       email,
			DisplayName: normalize(claims.UserDisplayName),
			LastSeenAt:  s.now(),
		}
		if err := s.db.Create(&identity).Error; err != nil {
			return Member{}, err
		}
	case err != nil:
		return Member{}, err
	default:
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if email != "" && email != identity.Email {
			updates["user_email"] = email
			identity.Email = email
		}
		if display := normalize(claims.UserDisplayName); display != "" && display != identity.DisplayName {
			updates["user_display_name"] = display
			identity.DisplayName = display
		}
		if err := s.db.Model(&Identity{}).
			Where(providerSubjectQuery, provider, subject).
			Updates(updates).
			Error; err != nil {
			s.logger.Warn("member identity refresh failed", zap.String("subject", subject), zap.Error(err))
		}
	}

	member := Member{UserID: identity.UserID, Email: identity.Email, DisplayName: identity.DisplayName}
	s.cache.Store(cacheKey, member)
	return member, nil
}

func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := "default"
	subject := normalize(claims.Subject)

	raw := normalize(claims.UserID)
	if raw != "" {
		if strings.Contains(raw, ":") {
			segments := strings.SplitN(raw, ":", 2)
			if normalize(segments[0]) != "" && normalize(segments[1]) != "" {
				provider = normalize(segments[0])
				subject = normalize(segments[1])
			}
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalizeEmail(claims.UserEmail)
	}

	return provider, subject
}
