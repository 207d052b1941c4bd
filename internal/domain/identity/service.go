package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/psyopd/survey/internal/platform/auth"
)

// TokenIssuer signs access tokens; *auth.Authenticator implements it.
type TokenIssuer interface {
	Issue(userID, userType string) (string, time.Time, error)
}

type Service struct {
	users       UserRepository
	tokens      TokenIssuer
	adminSecret string
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(users UserRepository, tokens TokenIssuer, adminSecret string, logger zerolog.Logger) *Service {
	return &Service{users: users, tokens: tokens, adminSecret: adminSecret, logger: logger, now: time.Now}
}

// -- Authentication --

func (s *Service) Login(ctx context.Context, userID, password, userType string) (*LoginResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || password == "" {
		return nil, invalidf("user_id and password are required")
	}
	if userType != auth.UserTypePatient && userType != auth.UserTypeClinician {
		return nil, invalidf("user_type must be patient or clinician")
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if u.Deleted || u.UserType != userType || !auth.CheckPassword(u.PasswordHash, password) {
		s.logger.Warn().Str("user_id", MaskIdentifier(userID)).Str("user_type", userType).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}

	token, expires, err := s.tokens.Issue(u.UserID, u.UserType)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      u.UserID,
		UserType:    u.UserType,
		ExpiresIn:   int(expires.Sub(s.now()).Seconds()),
	}, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if userID == "" || current == "" || next == "" {
		return invalidf("user_id, current_password and new_password are required")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if u.Deleted || !auth.CheckPassword(u.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

// RegisterClinician creates a clinician account after checking the admin token.
func (s *Service) RegisterClinician(ctx context.Context, adminToken, email, password string) (*User, error) {
	if err := auth.VerifyAdminToken(s.adminSecret, adminToken); err != nil {
		return nil, err
	}
	return s.CreateUser(ctx, email, auth.UserTypeClinician, password)
}

// RegisterPatient creates a patient account after checking the admin token.
func (s *Service) RegisterPatient(ctx context.Context, adminToken, userID, password string) (*User, error) {
	if err := auth.VerifyAdminToken(s.adminSecret, adminToken); err != nil {
		return nil, err
	}
	return s.CreateUser(ctx, userID, auth.UserTypePatient, password)
}

// CreateUser provisions an account without the admin token check.
func (s *Service) CreateUser(ctx context.Context, userID, userType, password string) (*User, error) {
	userID = strings.TrimSpace(userID)
	u := &User{UserID: userID, UserType: userType}
	switch userType {
	case auth.UserTypeClinician:
		if !ValidEmail(userID) {
			return nil, invalidf("clinician_email is not a valid email address")
		}
		u.Email = &userID
	case auth.UserTypePatient:
		if !ValidMedicalRecordNumber(userID) {
			return nil, invalidf("user_id must be 4-20 letters, digits or hyphens")
		}
	default:
		return nil, invalidf("user_type must be patient or clinician")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", MaskIdentifier(userID)).Str("user_type", userType).Msg("user registered")
	return u, nil
}

// -- Profiles --

func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	u, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.withDerivedAge(s.now()), nil
}

// load returns the stored record of an active user. Mutations start from it
// rather than GetUser so a derived age is never written back.
func (s *Service) load(ctx context.Context, userID string) (*User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Deleted {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*User, error) {
	if upd.IsEmpty() {
		return nil, ErrEmptyUpdate
	}
	if upd.Email != nil && *upd.Email != "" && !ValidEmail(*upd.Email) {
		return nil, invalidf("email is not a valid email address")
	}

	u, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if upd.Email != nil {
		u.Email = upd.Email
	}
	if upd.DemographicInfo != nil {
		u.DemographicInfo.Merge(*upd.DemographicInfo)
	}
	if upd.PsychiatricHistory != nil {
		u.PsychiatricHistory.Merge(*upd.PsychiatricHistory)
	}
	if upd.Specialization != nil {
		u.Specialization = upd.Specialization
	}
	if upd.LicenseNumber != nil {
		u.LicenseNumber = upd.LicenseNumber
	}
	if upd.Department != nil {
		u.Department = upd.Department
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u.withDerivedAge(s.now()), nil
}

// SetDemographics replaces the demographic section.
func (s *Service) SetDemographics(ctx context.Context, userID string, info DemographicInfo) (*User, error) {
	u, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if info.DateOfBirth != nil {
		if _, ok := AgeOn(*info.DateOfBirth, s.now()); !ok {
			return nil, invalidf("date_of_birth must be a past date in YYYY-MM-DD format")
		}
	}
	u.DemographicInfo = info
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u.withDerivedAge(s.now()), nil
}

// SetPsychiatricHistory replaces the psychiatric history section.
func (s *Service) SetPsychiatricHistory(ctx context.Context, userID string, hist PsychiatricHistory) (*User, error) {
	u, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.PsychiatricHistory = hist
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u.withDerivedAge(s.now()), nil
}

func (s *Service) DeleteUser(ctx context.Context, userID, deletedBy string) error {
	if err := s.users.SoftDelete(ctx, userID, deletedBy); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", MaskIdentifier(userID)).Str("deleted_by", MaskIdentifier(deletedBy)).Msg("user deleted")
	return nil
}

const maxPatientPage = 500

// ListPatients pages through active patients ordered by id. limit is clamped
// to 1..500.
func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*User, int, error) {
	if limit <= 0 || limit > maxPatientPage {
		limit = maxPatientPage
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.ListPatients(ctx, limit, offset)
}
