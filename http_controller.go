package members

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RegisterMemberRoutes mounts the JSON API on the given router.
func RegisterMemberRoutes[T any](app router.Router[T], opts ...MemberControllerOption) {
	controller := NewMemberController(opts...)

	app.Post(controller.Routes.Guest, controller.GuestCreate).
		SetName("members-guest.post")

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("members-login.post")

	app.Post(controller.Routes.Password, controller.PasswordChange).
		SetName("members-password.post")

	app.Post(controller.Routes.Cleanup, controller.CleanupPost).
		SetName("members-cleanup.post")
}

type MemberControllerRoutes struct {
	Guest    string
	Login    string
	Password string
	Cleanup  string
}

type MemberController struct {
	Logger  Logger
	Service *Service
	Sweeper *Sweeper
	Routes  *MemberControllerRoutes
}

type MemberControllerOption func(*MemberController) *MemberController

// WithControllerService sets the member service.
func WithControllerService(svc *Service) MemberControllerOption {
	return func(c *MemberController) *MemberController {
		c.Service = svc
		return c
	}
}

// WithControllerSweeper sets the sweeper behind the cleanup route.
func WithControllerSweeper(sweeper *Sweeper) MemberControllerOption {
	return func(c *MemberController) *MemberController {
		c.Sweeper = sweeper
		return c
	}
}

// WithControllerLogger overrides the logger.
func WithControllerLogger(l Logger) MemberControllerOption {
	return func(c *MemberController) *MemberController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

func NewMemberController(opts ...MemberControllerOption) *MemberController {
	c := &MemberController{
		Logger: defLogger{},
		Routes: &MemberControllerRoutes{
			Guest:    "/members/guest",
			Login:    "/members/login",
			Password: "/members/password",
			Cleanup:  "/members/cleanup",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Service == nil {
		panic("Missing Service in member controller...")
	}

	if c.Sweeper == nil {
		panic("Missing Sweeper in member controller...")
	}

	return c
}

// GuestCreatePayload is the guest issuance body. Both fields are optional.
type GuestCreatePayload struct {
	DisplayName string `form:"display_name" json:"display_name"`
	Plan        string `form:"plan" json:"plan"`
}

// Validate will run validation rules
func (r GuestCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DisplayName, validation.Length(0, 200)),
		validation.Field(&r.Plan, validation.Length(0, 50)),
	)
}

func (a *MemberController) GuestCreate(ctx router.Context) error {
	payload := new(GuestCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("guest create parse payload: ", "error", err)
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body").WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("guest create validate payload: ", "error", err)
		return a.respondValidation(ctx, err)
	}

	grant, err := a.Service.CreateGuest(ctx.Context(), CreateGuestRequest{
		DisplayName: payload.DisplayName,
		Plan:        payload.Plan,
	})
	if err != nil {
		a.Logger.Error("guest create error: ", "error", err)
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, grant)
}

// LoginPayload is the login body.
type LoginPayload struct {
	MemberNumber string `form:"member_number" json:"member_number"`
	Password     string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.MemberNumber,
			validation.Required,
			validation.Length(8, 8),
			is.Digit,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *MemberController) LoginPost(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: ", "error", err)
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body").WithCode(goerrors.CodeBadRequest))
	}

	if err := loginPayloadError(payload); err != nil {
		return a.respondError(ctx, err)
	}

	session, err := a.Service.Login(ctx.Context(), LoginRequest{
		MemberNumber: payload.MemberNumber,
		Password:     payload.Password,
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, session)
}

// loginPayloadError classifies a bad login body: an absent password is a
// plain client error, anything wrong with the member number reads as a
// failed login.
func loginPayloadError(payload *LoginPayload) error {
	if payload.Password == "" {
		return goerrors.New("password is required", goerrors.CategoryBadInput).WithCode(goerrors.CodeBadRequest)
	}
	if err := payload.Validate(); err != nil {
		return ErrMemberNotFound
	}
	return nil
}

// PasswordChangePayload is the rotation body.
type PasswordChangePayload struct {
	MemberNumber    string `form:"member_number" json:"member_number"`
	CurrentPassword string `form:"current_password" json:"current_password"`
	NewPassword     string `form:"new_password" json:"new_password"`
}

// Validate will run validation rules
func (r PasswordChangePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.MemberNumber,
			validation.Required,
			validation.Length(8, 8),
			is.Digit,
		),
		validation.Field(
			&r.CurrentPassword,
			validation.Required,
		),
		validation.Field(
			&r.NewPassword,
			validation.Required,
			validation.Match(PasswordPattern),
		),
	)
}

// PasswordChangeResponse acknowledges a successful rotation.
type PasswordChangeResponse struct {
	OK bool `json:"ok"`
}

func (a *MemberController) PasswordChange(ctx router.Context) error {
	payload := new(PasswordChangePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password change parse payload: ", "error", err)
		return a.respondError(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body").WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password change validate payload: ", "error", err)
		return a.respondError(ctx, ErrInvalidPasswordFormat)
	}

	err := a.Service.ChangePassword(ctx.Context(), ChangePasswordRequest{
		MemberNumber:    payload.MemberNumber,
		CurrentPassword: payload.CurrentPassword,
		NewPassword:     payload.NewPassword,
	})
	if err != nil {
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, PasswordChangeResponse{OK: true})
}

func (a *MemberController) CleanupPost(ctx router.Context) error {
	report, err := a.Sweeper.RunOnce(ctx.Context())
	if err != nil {
		a.Logger.Error("cleanup error: ", "error", err)
		return a.respondError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, report)
}

func (a *MemberController) respondValidation(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message":    "validation failed",
			"text_code":  "VALIDATION_FAILED",
			"validation": err.Error(),
		},
	})
}

func (a *MemberController) respondError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return ctx.JSON(router.StatusInternalServerError, map[string]any{
			"error": map[string]any{
				"message": "internal error",
			},
		})
	}

	status := richErr.Code
	if status == 0 {
		status = router.StatusInternalServerError
	}

	return ctx.JSON(status, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
		},
	})
}
