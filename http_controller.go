package songbook

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController exposes the account lifecycle and the song catalog as a
// JSON API.
type HTTPController struct {
	Debug     bool
	Logger    Logger
	Repo      RepositoryManager
	Auther    *Auther
	Lifecycle *AccountLifecycle
	Tokens    *IdentityTokens
	Notifier  Notifier
}

type HTTPControllerOption func(*HTTPController) *HTTPController

func NewHTTPController(opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger:   defLogger{},
		Notifier: noopNotifier{},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in songbook controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in songbook controller...")
	}

	if c.Lifecycle == nil {
		panic("Missing AccountLifecycle in songbook controller...")
	}

	return c
}

func WithControllerRepo(repo RepositoryManager) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther *Auther) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Auther = auther
		return c
	}
}

func WithControllerLifecycle(lifecycle *AccountLifecycle) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Lifecycle = lifecycle
		return c
	}
}

func WithControllerTokens(tokens *IdentityTokens) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Tokens = tokens
		return c
	}
}

func WithControllerNotifier(n Notifier) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Notifier = normalizeNotifier(n)
		return c
	}
}

func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.Debug = debug
		return c
	}
}

// RegisterRoutes registers the API routes.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Post("/auth/login", c.Login)
	group.Post("/auth/register", c.Register)
	group.Post("/auth/password-reset", c.PasswordResetRequest)
	group.Post("/auth/password-reset/confirm", c.PasswordResetConfirm)

	group.Post("/account/verify-email", c.VerifyEmail)
	group.Post("/account/email", c.EmailChangeRequest)
	group.Post("/account/email/confirm", c.EmailChangeConfirm)
	group.Post("/account/password", c.ChangePassword)

	group.Post("/account/deletion", c.DeletionRequest)
	group.Post("/account/deletion/confirm", c.DeletionConfirm)
	group.Delete("/account/deletion", c.DeletionCancel)
	group.Get("/account/deletion", c.DeletionStatus)

	group.Get("/songs", c.SearchSongs)
	group.Get("/songs/:id", c.GetSong)
	group.Get("/artists/:id/songs", c.ListArtistSongs)
	group.Get("/me/favorites", c.ListFavorites)
	group.Post("/songs/:id/favorite", c.FavoriteSong)
	group.Delete("/songs/:id/favorite", c.UnfavoriteSong)
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (c *HTTPController) Login(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	if c.Debug {
		fmt.Println(print.MaybePrettyJSON(payload))
	}

	token, err := c.Auther.Login(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		// one failure shape regardless of cause, so the endpoint does
		// not leak which accounts exist
		c.Logger.Warn("login failed: %v", err)
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": ErrMismatchedHashAndPassword.Error(),
		})
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"token": token,
	})
}

// RegisterRequest is the registration payload
type RegisterRequest struct {
	FullName        string `json:"full_name"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	IsMusician      bool   `json:"is_musician"`
}

// Validate will validate the payload
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Length(0, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.In(r.Password).Error("passwords do not match"),
		),
	)
}

func (c *HTTPController) Register(ctx router.Context) error {
	payload := new(RegisterRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	handler := NewRegisterUserHandler(c.Repo).
		WithIdentityTokens(c.Tokens).
		WithNotifier(c.Notifier).
		WithLogger(c.Logger)

	err := handler.Execute(ctx.Context(), RegisterUserMessage{
		FullName:   payload.FullName,
		Username:   payload.Username,
		Email:      payload.Email,
		Password:   payload.Password,
		IsMusician: payload.IsMusician,
		UseHashid:  true,
	})
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]bool{
		"success": true,
	})
}

// PasswordResetPayload asks for a reset link
type PasswordResetPayload struct {
	Email string `json:"email"`
}

func (r PasswordResetPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (c *HTTPController) PasswordResetRequest(ctx router.Context) error {
	payload := new(PasswordResetPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	// the response is the same whether or not the account exists
	if _, err := c.Repo.Users().GetAccountByEmail(ctx.Context(), payload.Email); err == nil {
		if token, err := c.Tokens.IssuePasswordReset(payload.Email); err == nil {
			if err := c.Notifier.SendPasswordReset(ctx.Context(), payload.Email, token); err != nil {
				c.Logger.Warn("password reset notify error: %v", err)
			}
		}
	}

	return ctx.JSON(router.StatusOK, map[string]bool{
		"success": true,
	})
}

// PasswordResetConfirmPayload redeems a reset token
type PasswordResetConfirmPayload struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r PasswordResetConfirmPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
	)
}

func (c *HTTPController) PasswordResetConfirm(ctx router.Context) error {
	payload := new(PasswordResetConfirmPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	if err := c.Lifecycle.ResetPassword(ctx.Context(), payload.Token, payload.Password); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{
		"success": true,
	})
}

// TokenPayload carries a single signed token
type TokenPayload struct {
	Token string `json:"token"`
}

func (r TokenPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (c *HTTPController) VerifyEmail(ctx router.Context) error {
	payload := new(TokenPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	if err := c.Lifecycle.VerifyEmail(ctx.Context(), payload.Token); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{
		"success": true,
	})
}

// EmailChangePayload asks for an address change
type EmailChangePayload struct {
	NewEmail string `json:"new_email"`
}

func (r EmailChangePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewEmail, validation.Required, is.Email),
	)
}

func (c *HTTPController) EmailChangeRequest(ctx router.Context) error {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return c.unauthorized(ctx)
	}

	payload := new(EmailChangePayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	if _, err := c.Lifecycle.RequestEmailChange(ctx.Context(), userID, payload.NewEmail); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{
		"success": true,
	})
}

func (c *HTTPController) EmailChangeConfirm(ctx router.Context) error {
	payload := new(TokenPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	if err := c.Lifecycle.ConfirmEmailChange(ctx.Context(), payload.Token); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{
		"success": true,
	})
}

// ChangePasswordPayload rotates the password of the logged in user
type ChangePasswordPayload struct {
	Password string `json:"password"`
}

func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
	)
}

func (c *HTTPController) ChangePassword(ctx router.Context) error {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return c.unauthorized(ctx)
	}

	payload := new(ChangePasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	if err := c.Lifecycle.ChangePassword(ctx.Context(), userID, payload.Password); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{
		"success": true,
	})
}

func (c *HTTPController) DeletionRequest(ctx router.Context) error {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return c.unauthorized(ctx)
	}

	if _, err := c.Lifecycle.RequestDeletion(ctx.Context(), userID); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusAccepted, map[string]any{
		"success": true,
		"state":   DeletionStateRequested,
	})
}

func (c *HTTPController) DeletionConfirm(ctx router.Context) error {
	payload := new(TokenPayload)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	scheduledAt, err := c.Lifecycle.ConfirmDeletion(ctx.Context(), payload.Token)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success":      true,
		"state":        DeletionStateScheduled,
		"scheduled_at": scheduledAt,
	})
}

func (c *HTTPController) DeletionCancel(ctx router.Context) error {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return c.unauthorized(ctx)
	}

	cancelled, err := c.Lifecycle.CancelDeletion(ctx.Context(), userID)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"success":   true,
		"cancelled": cancelled,
		"state":     DeletionStateActive,
	})
}

func (c *HTTPController) DeletionStatus(ctx router.Context) error {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return c.unauthorized(ctx)
	}

	account, err := c.Repo.Users().GetByID(ctx.Context(), userID.String())
	if err != nil {
		return c.handleError(ctx, err)
	}

	resp := map[string]any{
		"state": account.DeletionState(),
	}
	if account.DeletionRequestedAt != nil {
		resp["requested_at"] = account.DeletionRequestedAt
	}
	if account.DeletionScheduledAt != nil {
		resp["scheduled_at"] = account.DeletionScheduledAt
	}

	return ctx.JSON(router.StatusOK, resp)
}

func (c *HTTPController) SearchSongs(ctx router.Context) error {
	query := ctx.Query("q")

	records, err := c.Repo.Songs().SearchByTitle(ctx.Context(), query, 25)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"songs": records,
	})
}

func (c *HTTPController) GetSong(ctx router.Context) error {
	id := ctx.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.badRequest(ctx, err)
	}

	record, err := c.Repo.Songs().GetByID(ctx.Context(), id)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, record)
}

func (c *HTTPController) ListArtistSongs(ctx router.Context) error {
	artistID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.badRequest(ctx, err)
	}

	records, err := c.Repo.Songs().ListByArtist(ctx.Context(), artistID)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"songs": records,
	})
}

func (c *HTTPController) ListFavorites(ctx router.Context) error {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return c.unauthorized(ctx)
	}

	records, err := c.Repo.FavoriteSongs().ListByUser(ctx.Context(), userID)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"favorites": records,
	})
}

func (c *HTTPController) FavoriteSong(ctx router.Context) error {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return c.unauthorized(ctx)
	}

	songID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.badRequest(ctx, err)
	}

	record := &FavoriteSong{
		UserID: &userID,
		SongID: &songID,
	}

	if _, err := c.Repo.FavoriteSongs().Create(ctx.Context(), record); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]bool{
		"success": true,
	})
}

func (c *HTTPController) UnfavoriteSong(ctx router.Context) error {
	userID, err := c.requireUser(ctx)
	if err != nil {
		return c.unauthorized(ctx)
	}

	songID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return c.badRequest(ctx, err)
	}

	removed, err := c.Repo.FavoriteSongs().Unfavorite(ctx.Context(), userID, songID)
	if err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]bool{
		"success": removed,
	})
}

// requireUser resolves the bearer token to a user id.
func (c *HTTPController) requireUser(ctx router.Context) (uuid.UUID, error) {
	header := ctx.GetString("Authorization", "")
	scheme := "Bearer"

	if len(header) <= len(scheme)+1 || !strings.EqualFold(header[:len(scheme)], scheme) {
		return uuid.Nil, ErrUnableToFindSession
	}

	raw := strings.TrimSpace(header[len(scheme):])

	session, err := c.Auther.SessionFromToken(raw)
	if err != nil {
		return uuid.Nil, err
	}

	if _, err := c.Auther.IdentityFromSession(ctx.Context(), session); err != nil {
		return uuid.Nil, err
	}

	return uuid.Parse(session.GetUserID())
}

func (c *HTTPController) unauthorized(ctx router.Context) error {
	return ctx.JSON(router.StatusUnauthorized, map[string]string{
		"error": "authentication required",
	})
}

func (c *HTTPController) badRequest(ctx router.Context, err error) error {
	c.Logger.Error("bad request: %v", err)
	return ctx.JSON(router.StatusBadRequest, map[string]string{
		"error": "failed to parse request",
	})
}

func (c *HTTPController) validationError(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"error":      "validation failed",
		"validation": FormatValidationErrorToMap(err),
	})
}

// handleError maps rich errors to HTTP status codes.
func (c *HTTPController) handleError(ctx router.Context, err error) error {
	if c.Debug {
		fmt.Println(print.MaybePrettyJSON(err))
	}

	status := router.StatusInternalServerError
	message := "internal error"

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryAuth:
			status = router.StatusUnauthorized
			message = richErr.Message
		case goerrors.CategoryBadInput, goerrors.CategoryValidation:
			status = router.StatusBadRequest
			message = richErr.Message
		case goerrors.CategoryConflict:
			status = router.StatusConflict
			message = richErr.Message
		case goerrors.CategoryNotFound:
			status = router.StatusNotFound
			message = richErr.Message
		case goerrors.CategoryRateLimit:
			status = router.StatusTooManyRequests
			message = richErr.Message
		default:
			c.Logger.Error("request failed: %v", err)
		}

		resp := map[string]any{"error": message}
		if richErr.TextCode != "" {
			resp["code"] = richErr.TextCode
		}
		return ctx.JSON(status, resp)
	}

	c.Logger.Error("request failed: %v", err)

	return ctx.JSON(status, map[string]string{
		"error": message,
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var verrs validation.Errors
	if goerrors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	if err != nil {
		out["error"] = err.Error()
	}

	return out
}
