package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ehr/records/internal/platform/telemetry"
)

type Service struct {
	repo    Repository
	metrics *telemetry.Metrics
	newUID  func() string
}

func NewService(repo Repository, metrics *telemetry.Metrics) *Service {
	return &Service{repo: repo, metrics: metrics, newUID: NewUID}
}

// Registration carries the raw registration form fields. Conditions and
// Prescriptions are comma-separated and may be empty.
type Registration struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Credential    string `json:"password"`
	Conditions    string `json:"conditions"`
	Prescriptions string `json:"prescriptions"`
}

func (in Registration) validate() error {
	var missing []string
	if in.Name == "" {
		missing = append(missing, "name")
	}
	if in.Email == "" {
		missing = append(missing, "email")
	}
	if in.Credential == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Register creates a patient record with a fresh UID.
func (s *Service) Register(ctx context.Context, in Registration) (*Record, error) {
	return s.create(ctx, in, RolePatient, "register")
}

// CreateAdmin seeds an admin record. Registration never produces admins;
// this is the operator path used by the bootstrap command.
func (s *Service) CreateAdmin(ctx context.Context, in Registration) (*Record, error) {
	return s.create(ctx, in, RoleAdmin, "create_admin")
}

func (s *Service) create(ctx context.Context, in Registration, role Role, op string) (*Record, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByEmail(ctx, in.Email); err == nil {
		return nil, fmt.Errorf("%s %s: %w", op, in.Email, ErrDuplicateEmail)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rec := &Record{
		Name:          in.Name,
		Email:         in.Email,
		Credential:    in.Credential,
		Role:          role,
		UID:           s.newUID(),
		Conditions:    SplitList(in.Conditions),
		Prescriptions: SplitList(in.Prescriptions),
	}
	if err := s.repo.Add(ctx, rec); err != nil {
		return nil, err
	}
	s.metrics.Mutation(op)
	return rec, nil
}

// Authenticate returns the record whose email and credential both match
// exactly. Unknown emails and wrong credentials are indistinguishable.
func (s *Service) Authenticate(ctx context.Context, email, credential string) (*Record, error) {
	rec, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.metrics.LoginAttempt(false)
		return nil, ErrAuthFailure
	}
	if err != nil {
		return nil, err
	}
	if !rec.CheckCredential(credential) {
		s.metrics.LoginAttempt(false)
		return nil, ErrAuthFailure
	}
	s.metrics.LoginAttempt(true)
	return rec, nil
}

func (s *Service) Get(ctx context.Context, email string) (*Record, error) {
	return s.repo.FindByEmail(ctx, email)
}

func (s *Service) List(ctx context.Context) ([]*Record, error) {
	return s.repo.List(ctx)
}

func (s *Service) SetConditions(ctx context.Context, email string, conditions []string) (*Record, error) {
	return s.mutate(ctx, email, "set_conditions", func(r *Record) error {
		r.Conditions = conditions
		return nil
	})
}

func (s *Service) SetPrescriptions(ctx context.Context, email string, prescriptions []string) (*Record, error) {
	return s.mutate(ctx, email, "set_prescriptions", func(r *Record) error {
		r.Prescriptions = prescriptions
		return nil
	})
}

// SetPassword overwrites the stored credential. Only presence is checked.
func (s *Service) SetPassword(ctx context.Context, email, credential string) (*Record, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: password required", ErrValidation)
	}
	return s.mutate(ctx, email, "set_password", func(r *Record) error {
		r.Credential = credential
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, email string) error {
	if err := s.repo.Delete(ctx, email); err != nil {
		return err
	}
	s.metrics.Mutation("delete")
	return nil
}

func (s *Service) mutate(ctx context.Context, email, op string, apply func(*Record) error) (*Record, error) {
	rec, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := apply(rec); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.metrics.Mutation(op)
	return rec, nil
}
