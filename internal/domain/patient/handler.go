package patient

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/pkg/pagination"
)

type Handler struct {
	svc    *Service
	tokens *auth.TokenManager
}

func NewHandler(svc *Service, tokens *auth.TokenManager) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

// RegisterRoutes mounts the public endpoints on public and the token
// protected ones on api.
func (h *Handler) RegisterRoutes(public *echo.Group, api *echo.Group) {
	public.POST("/auth/login", h.Login)
	public.POST("/register", h.Register)

	api.POST("/auth/logout", h.Logout)

	// Self-service – any logged-in record
	api.GET("/me", h.GetMe)
	api.PUT("/me/conditions", h.UpdateMyConditions)
	api.PUT("/me/prescriptions", h.UpdateMyPrescriptions)
	api.PUT("/me/password", h.ChangeMyPassword)

	// Management – admin
	adminGroup := api.Group("", auth.RequireRole(string(RoleAdmin)))
	adminGroup.GET("/patients", h.ListRecords)
	adminGroup.GET("/patients/:email", h.GetRecord)
	adminGroup.PUT("/patients/:email/conditions", h.UpdateConditions)
	adminGroup.PUT("/patients/:email/prescriptions", h.UpdatePrescriptions)
	adminGroup.PUT("/patients/:email/password", h.ResetPassword)
	adminGroup.DELETE("/patients/:email", h.DeleteRecord)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Record    *Record   `json:"record"`
}

type conditionsRequest struct {
	Conditions string `json:"conditions"`
}

type prescriptionsRequest struct {
	Prescriptions string `json:"prescriptions"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	sess := h.svc.NewSession()
	rec, err := sess.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	token, exp, err := h.tokens.Issue(rec.Email, string(rec.Role))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token")
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: exp, Record: rec})
}

// Logout revokes the presented token. The client's copy is useless
// afterwards.
func (h *Handler) Logout(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	sess.Logout()
	h.tokens.Revoke(auth.ClaimsFromContext(c.Request().Context()))
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Register(c echo.Context) error {
	var in Registration
	if err := c.Bind(&in); err != nil {
		return bindError(err)
	}
	rec, err := h.svc.Register(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// -- Self-service --

func (h *Handler) GetMe(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.Current())
}

func (h *Handler) UpdateMyConditions(c echo.Context) error {
	return h.updateConditions(c, "")
}

func (h *Handler) UpdateMyPrescriptions(c echo.Context) error {
	return h.updatePrescriptions(c, "")
}

func (h *Handler) ChangeMyPassword(c echo.Context) error {
	return h.setPassword(c, "")
}

// -- Management --

func (h *Handler) ListRecords(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	records, err := sess.Records(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(records, pagination.FromContext(c)))
}

func (h *Handler) GetRecord(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	email, err := emailParam(c)
	if err != nil {
		return err
	}
	rec, err := sess.Record(c.Request().Context(), email)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UpdateConditions(c echo.Context) error {
	email, err := emailParam(c)
	if err != nil {
		return err
	}
	return h.updateConditions(c, email)
}

func (h *Handler) UpdatePrescriptions(c echo.Context) error {
	email, err := emailParam(c)
	if err != nil {
		return err
	}
	return h.updatePrescriptions(c, email)
}

func (h *Handler) ResetPassword(c echo.Context) error {
	email, err := emailParam(c)
	if err != nil {
		return err
	}
	return h.setPassword(c, email)
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	email, err := emailParam(c)
	if err != nil {
		return err
	}
	if err := sess.Delete(c.Request().Context(), email); err != nil {
		return httpError(err)
	}
	if sess.Current() == nil {
		h.tokens.Revoke(auth.ClaimsFromContext(c.Request().Context()))
	}
	return c.NoContent(http.StatusNoContent)
}

// -- helpers --

func (h *Handler) updateConditions(c echo.Context, email string) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	var req conditionsRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	rec, err := sess.UpdateConditions(c.Request().Context(), targetEmail(sess, email), req.Conditions)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) updatePrescriptions(c echo.Context, email string) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	var req prescriptionsRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	rec, err := sess.UpdatePrescriptions(c.Request().Context(), targetEmail(sess, email), req.Prescriptions)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) setPassword(c echo.Context, email string) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	if _, err := sess.ResetPassword(c.Request().Context(), targetEmail(sess, email), req.Password); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// session rebuilds the caller's session from the verified token subject.
func (h *Handler) session(c echo.Context) (*Session, error) {
	email := auth.UserIDFromContext(c.Request().Context())
	if email == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, ErrNoSession.Error())
	}
	sess, err := h.svc.Resume(c.Request().Context(), email)
	if err != nil {
		return nil, httpError(err)
	}
	return sess, nil
}

func targetEmail(sess *Session, email string) string {
	if email == "" {
		return sess.Current().Email
	}
	return email
}

func emailParam(c echo.Context) (string, error) {
	email, err := url.PathUnescape(c.Param("email"))
	if err != nil || email == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid email")
	}
	return email, nil
}

// bindError keeps statuses raised while reading the body (413 from the body
// limit) and reports anything else as a bad request.
func bindError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

// httpError maps domain errors onto HTTP status codes.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicateEmail):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrAuthFailure), errors.Is(err, ErrNoSession):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "storage error").SetInternal(err)
	}
}
