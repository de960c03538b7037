package patient

import (
	"context"
	"errors"
	"fmt"
)

// Session holds at most one authenticated record and applies the role rules
// to every operation: a patient may act only on its own record, an admin on
// any record.
type Session struct {
	svc  *Service
	user *Record
}

// NewSession returns a session with nobody logged in.
func (s *Service) NewSession() *Session {
	return &Session{svc: s}
}

// Resume starts a session for an already authenticated email, such as the
// subject of a verified token. The record is reloaded so deleted accounts
// and role changes take effect immediately.
func (s *Service) Resume(ctx context.Context, email string) (*Session, error) {
	rec, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	return &Session{svc: s, user: rec}, nil
}

// Login replaces the current user on success. On failure the session keeps
// whatever user it had.
func (ss *Session) Login(ctx context.Context, email, credential string) (*Record, error) {
	rec, err := ss.svc.Authenticate(ctx, email, credential)
	if err != nil {
		return nil, err
	}
	ss.user = rec
	return rec.Clone(), nil
}

func (ss *Session) Logout() {
	ss.user = nil
}

// Current returns a copy of the logged-in record, or nil.
func (ss *Session) Current() *Record {
	return ss.user.Clone()
}

func (ss *Session) authorize(email string) error {
	if ss.user == nil {
		return ErrNoSession
	}
	if ss.user.IsAdmin() || ss.user.Email == email {
		return nil
	}
	return fmt.Errorf("%s on %s: %w", ss.user.Email, email, ErrForbidden)
}

func (ss *Session) requireAdmin(op string) error {
	if ss.user == nil {
		return ErrNoSession
	}
	if !ss.user.IsAdmin() {
		return fmt.Errorf("%s %s: %w", ss.user.Email, op, ErrForbidden)
	}
	return nil
}

// Record reads a single record.
func (ss *Session) Record(ctx context.Context, email string) (*Record, error) {
	if err := ss.authorize(email); err != nil {
		return nil, err
	}
	return ss.svc.Get(ctx, email)
}

// Records lists every record. Admin only.
func (ss *Session) Records(ctx context.Context) ([]*Record, error) {
	if err := ss.requireAdmin("list records"); err != nil {
		return nil, err
	}
	return ss.svc.List(ctx)
}

// UpdateConditions re-splits raw comma-separated input and stores it.
func (ss *Session) UpdateConditions(ctx context.Context, email, raw string) (*Record, error) {
	if err := ss.authorize(email); err != nil {
		return nil, err
	}
	return ss.track(ss.svc.SetConditions(ctx, email, SplitList(raw)))
}

// UpdatePrescriptions re-splits raw comma-separated input and stores it.
func (ss *Session) UpdatePrescriptions(ctx context.Context, email, raw string) (*Record, error) {
	if err := ss.authorize(email); err != nil {
		return nil, err
	}
	return ss.track(ss.svc.SetPrescriptions(ctx, email, SplitList(raw)))
}

// ResetPassword overwrites the credential of email. No re-authentication is
// required.
func (ss *Session) ResetPassword(ctx context.Context, email, credential string) (*Record, error) {
	if err := ss.authorize(email); err != nil {
		return nil, err
	}
	return ss.track(ss.svc.SetPassword(ctx, email, credential))
}

// Delete removes the record of email. Admin only; an admin deleting its own
// record ends the session.
func (ss *Session) Delete(ctx context.Context, email string) error {
	if err := ss.requireAdmin("delete " + email); err != nil {
		return err
	}
	if err := ss.svc.Delete(ctx, email); err != nil {
		return err
	}
	if ss.user.Email == email {
		ss.Logout()
	}
	return nil
}

// track keeps the session's own record current after a self-update.
func (ss *Session) track(rec *Record, err error) (*Record, error) {
	if err != nil {
		return nil, err
	}
	if ss.user != nil && ss.user.Email == rec.Email {
		ss.user = rec.Clone()
	}
	return rec, nil
}
