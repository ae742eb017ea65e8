package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Gopher0727/StaffPortal/internal/models"
	"github.com/Gopher0727/StaffPortal/internal/repositories"
	"github.com/Gopher0727/StaffPortal/internal/utils"
	"github.com/Gopher0727/StaffPortal/middleware/jwt"
	logger "github.com/Gopher0727/StaffPortal/middleware/log"
)

// 注册与资料表单的提示
const (
	MsgPasswordMismatch   = "Passwords do not match."
	MsgInvalidEmail       = "Invalid email."
	MsgPasswordTooShort   = "Password must be at least 8 characters."
	MsgInvalidBirthDate   = "Invalid date of birth."
	MsgSupervisorNotFound = "Supervisor not found."
	MsgEmailTaken         = "A user with that email already exists."
	MsgUserCreateFailed   = "An error occurred while creating the user. Please try again."
)

// LoginLimiter 按邮箱限制登录尝试次数
type LoginLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// AuthService 认证服务
type AuthService struct {
	userRepo *repositories.UserRepository
	tokens   *jwt.TokenManager
	presence *PresenceTracker
	limiter  LoginLimiter
	logger   *logger.Logger
}

// NewAuthService limiter 为 nil 时不限流
func NewAuthService(userRepo *repositories.UserRepository, tokens *jwt.TokenManager, presence *PresenceTracker,
	limiter LoginLimiter, log *logger.Logger,
) *AuthService {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		presence: presence,
		limiter:  limiter,
		logger:   log,
	}
}

// ProfileForm 注册和资料修改共用的字段
type ProfileForm struct {
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PhoneNumber  string `json:"phone_number"`
	Year         int    `json:"year"`
	Month        int    `json:"month"`
	Day          int    `json:"day"`
	SupervisorID *uint  `json:"supervisor_id"`
}

// SignupRequest 注册请求
type SignupRequest struct {
	ProfileForm
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse 认证响应
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// normalizeProfile 清洗表单并校验，返回可写入的资料字段
// password 非 nil 时（注册）在邮箱之后校验密码长度
func normalizeProfile(ctx context.Context, userRepo *repositories.UserRepository, form *ProfileForm, password *string) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(form.Email))
	first := strings.TrimSpace(form.FirstName)
	last := strings.TrimSpace(form.LastName)
	phone := utils.SanitizePhone(form.PhoneNumber)

	if email == "" || first == "" || last == "" || phone == "" || form.Year == 0 || form.Month == 0 || form.Day == 0 {
		return nil, validation(MsgAllFieldsRequired)
	}
	if !utils.ValidateEmail(email) {
		return nil, validation(MsgInvalidEmail)
	}
	if password != nil && !utils.ValidatePassword(*password) {
		return nil, validation(MsgPasswordTooShort)
	}
	dob, ok := utils.BuildDate(form.Year, form.Month, form.Day)
	if !ok {
		return nil, validation(MsgInvalidBirthDate)
	}
	if form.SupervisorID != nil {
		if _, err := userRepo.GetSupervisor(ctx, *form.SupervisorID); err != nil {
			if isNotFound(err) {
				return nil, validation(MsgSupervisorNotFound)
			}
			return nil, err
		}
	}

	return &models.User{
		UserName:     email,
		Email:        email,
		FirstName:    first,
		LastName:     last,
		PhoneNumber:  phone,
		DateOfBirth:  dob,
		SupervisorID: form.SupervisorID,
	}, nil
}

// Signup 注册新员工，用户名取小写邮箱
func (s *AuthService) Signup(ctx context.Context, req *SignupRequest) (*models.User, error) {
	if req.Password != req.ConfirmPassword {
		return nil, validation(MsgPasswordMismatch)
	}

	user, err := normalizeProfile(ctx, s.userRepo, &req.ProfileForm, &req.Password)
	if err != nil {
		return nil, s.createFailure(ctx, err)
	}

	exists, err := s.userRepo.ExistsByEmail(ctx, user.Email)
	if err != nil {
		return nil, s.createFailure(ctx, err)
	}
	if exists {
		return nil, validation(MsgEmailTaken)
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, s.createFailure(ctx, err)
	}
	user.PasswordHash = hash

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, s.createFailure(ctx, err)
	}

	s.logger.InfoContext(ctx, "user signed up", zap.Uint("user_id", user.ID))
	return user, nil
}

func (s *AuthService) createFailure(ctx context.Context, err error) error {
	if _, ok := IsValidation(err); ok {
		return err
	}
	s.logger.ErrorContext(ctx, "create user failed", zap.Error(err))
	return validation(MsgUserCreateFailed)
}

// Login 校验邮箱密码，成功后签发 token 并标记在线
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, email)
		if err != nil {
			s.logger.WarnContext(ctx, "login limiter unavailable", zap.Error(err))
		} else if !allowed {
			return nil, ErrTooManyAttempts
		}
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email, user.IsAdmin)
	if err != nil {
		return nil, err
	}
	if err := s.presence.OnLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, email); err != nil {
			s.logger.WarnContext(ctx, "reset login limiter failed", zap.Error(err))
		}
	}

	user, err = s.userRepo.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user logged in", zap.Uint("user_id", user.ID))
	return &AuthResponse{Token: token, User: user}, nil
}

// Logout 标记离线并记录登出时间，token 本身无状态，由客户端丢弃
func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	if err := s.presence.OnLogout(ctx, userID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "user logged out", zap.Uint("user_id", userID))
	return nil
}
