package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"events_auth/internal/auth"
	"events_auth/internal/models"
	"events_auth/internal/service"

	"github.com/gin-gonic/gin"
)

type Options struct {
	AuthSecret     []byte
	AuthCode       string
	SessionCookie  string
	AllowedOrigins []string
	RateLimitRPM   int
}

type Handler struct {
	serviceLayer service.Service
	sessions     *auth.SessionIssuer
	opts         Options
	log          *slog.Logger
}

type verifyCredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CurrentPassword must be present but may be empty for accounts that never
// had a password.
type modifyPasswordRequest struct {
	ID                   string  `json:"_id" binding:"required"`
	CurrentPassword      *string `json:"currentPassword" binding:"required"`
	NewPassword          string  `json:"newPassword" binding:"required"`
	PasswordVerification string  `json:"passwordVerification" binding:"required"`
}

type recoveryTokenRequest struct {
	Email string `json:"email" binding:"required"`
}

type registrationTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func newErrorResponse(c *gin.Context, statusCode int, code models.Code, detail any) {
	c.AbortWithStatusJSON(statusCode, models.Result{Code: code, Detail: detail})
}

func NewHandler(srvc service.Service, sessions *auth.SessionIssuer, opts Options, lgr *slog.Logger) *Handler {
	return &Handler{
		serviceLayer: srvc,
		sessions:     sessions,
		opts:         opts,
		log:          lgr,
	}
}

func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()

	router.Use(
		gin.Recovery(),
		RequestLogger(h.log),
		CORS(h.opts.AllowedOrigins),
		NewRateLimiter(h.opts.RateLimitRPM).Handler(),
	)

	router.GET("/health", h.Health)

	authGroup := router.Group("/auth")
	authGroup.Use(AuthorizationCodeMiddleware(h.opts.AuthSecret, h.opts.AuthCode))
	{
		authGroup.POST("/verifycredentials", h.VerifyCredentials)
		authGroup.PUT("/changepassword", h.ModifyPassword)
		authGroup.POST("/createrecoverypasswordtoken", h.CreateRecoveryPasswordToken)
		authGroup.POST("/verifyregistrationtoken", h.VerifyRegistrationToken)
	}

	return router
}

// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// POST /auth/verifycredentials
func (h *Handler) VerifyCredentials(c *gin.Context) {
	const op = "handler.VerifyCredentials"

	log := h.log.With(slog.String("op", op))

	var req verifyCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, models.CodeError, err.Error())

		return
	}

	res, err := h.serviceLayer.VerifyCredentials(c.Request.Context(), req.Email, req.Password)
	if err == nil && res.Code == models.CodeSuccess {
		if detail, ok := res.Detail.(models.LoginDetail); ok {
			if err := h.startSession(c, detail); err != nil {
				log.Error("failed to issue session", slog.Any("error", err))
			}
		}
	}

	h.respond(c, log, res, err)
}

// PUT /auth/changepassword
func (h *Handler) ModifyPassword(c *gin.Context) {
	const op = "handler.ModifyPassword"

	log := h.log.With(slog.String("op", op))

	var req modifyPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, models.CodeError, err.Error())

		return
	}

	res, err := h.serviceLayer.ModifyPassword(
		c.Request.Context(),
		req.ID,
		*req.CurrentPassword,
		req.NewPassword,
		req.PasswordVerification,
	)
	if err == nil && res.Code == models.CodeSuccess {
		log.Info("password modified", slog.String("user_id", req.ID))
	}

	h.respond(c, log, res, err)
}

// POST /auth/createrecoverypasswordtoken
func (h *Handler) CreateRecoveryPasswordToken(c *gin.Context) {
	const op = "handler.CreateRecoveryPasswordToken"

	log := h.log.With(slog.String("op", op))

	var req recoveryTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, models.CodeError, err.Error())

		return
	}

	res, err := h.serviceLayer.CreateRecoveryPasswordToken(c.Request.Context(), req.Email)

	h.respond(c, log, res, err)
}

// POST /auth/verifyregistrationtoken
func (h *Handler) VerifyRegistrationToken(c *gin.Context) {
	const op = "handler.VerifyRegistrationToken"

	log := h.log.With(slog.String("op", op))

	var req registrationTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("failed to read request body", slog.Any("error", err))

		newErrorResponse(c, http.StatusBadRequest, models.CodeError, err.Error())

		return
	}

	res, err := h.serviceLayer.VerifyRegistrationToken(c.Request.Context(), req.Token)

	h.respond(c, log, res, err)
}

// respond writes res, or the envelope for err. Only the "error" code and
// failed calls map to 500.
func (h *Handler) respond(c *gin.Context, log *slog.Logger, res models.Result, err error) {
	if err != nil {
		var rejected *service.RejectedError
		if errors.As(err, &rejected) {
			log.Warn("change not applied", slog.String("code", string(rejected.Result.Code)))

			c.AbortWithStatusJSON(http.StatusInternalServerError, rejected.Result)

			return
		}

		log.Error("request failed", slog.Any("error", err))

		newErrorResponse(c, http.StatusInternalServerError, models.CodeError, err.Error())

		return
	}

	status := http.StatusOK
	if res.Code == models.CodeError {
		status = http.StatusInternalServerError
	}

	c.JSON(status, res)
}

func (h *Handler) startSession(c *gin.Context, detail models.LoginDetail) error {
	if h.sessions == nil || h.opts.SessionCookie == "" {
		return nil
	}

	token, err := h.sessions.Issue(detail.ID, detail.Email)
	if err != nil {
		return err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		h.opts.SessionCookie,
		token,
		int(h.sessions.TTL().Seconds()),
		"/",
		"",
		c.Request.TLS != nil,
		true,
	)

	return nil
}
