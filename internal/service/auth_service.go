package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/rizz_server/config"
	"github.com/qs3c/rizz_server/internal/model"
	"github.com/qs3c/rizz_server/internal/model/dto"
	"github.com/qs3c/rizz_server/internal/pkg/jwt"
	"github.com/qs3c/rizz_server/internal/repository"
)

var (
	ErrEmailExists        = errors.New("邮箱已被注册")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
)

const (
	ProviderLocal    = "local"
	ProviderSupabase = "supabase"
)

// supabaseAuth gotrue 客户端中用到的部分
type supabaseAuth interface {
	Signup(req types.SignupRequest) (*types.SignupResponse, error)
	SignInWithEmailPassword(email, password string) (*types.TokenResponse, error)
}

type AuthService struct {
	profileRepo *repository.ProfileRepository
	credits     *CreditStore
	cfg         *config.Config
	supabase    supabaseAuth
	logger      *slog.Logger
}

func NewAuthService(
	profileRepo *repository.ProfileRepository,
	credits *CreditStore,
	cfg *config.Config,
	logger *slog.Logger,
) *AuthService {
	s := &AuthService{
		profileRepo: profileRepo,
		credits:     credits,
		cfg:         cfg,
		logger:      logger,
	}
	if cfg.Auth.Provider == ProviderSupabase {
		s.supabase = newSupabaseClient(cfg.Auth.Supabase)
	}
	return s
}

func newSupabaseClient(cfg config.SupabaseConfig) gotrue.Client {
	client := gotrue.New(extractProjectRef(cfg.URL), cfg.APIKey)
	if cfg.URL != "" && !strings.HasSuffix(strings.TrimSuffix(cfg.URL, "/"), ".supabase.co") {
		// 自建 GoTrue
		return client.WithCustomGoTrueURL(strings.TrimSuffix(cfg.URL, "/"))
	}
	return client
}

// extractProjectRef https://<ref>.supabase.co -> <ref>
func extractProjectRef(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	if i := strings.Index(url, "."); i > 0 {
		return url[:i]
	}
	return url
}

// Register 注册并创建账户（初始额度为每日额度）
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var (
		profile *model.Profile
		err     error
	)
	if s.supabase != nil {
		profile, err = s.registerSupabase(email, req.Password)
	} else {
		profile, err = s.registerLocal(email, req.Password)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("profile registered", "user_id", profile.ID, "provider", s.providerName())
	return s.issue(ctx, profile.ID)
}

// Login 登录。额度按当日状态返回（必要时先补满）
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var (
		userID string
		err    error
	)
	if s.supabase != nil {
		userID, err = s.loginSupabase(email, req.Password)
	} else {
		userID, err = s.loginLocal(email, req.Password)
	}
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, userID)
}

func (s *AuthService) registerLocal(email, password string) (*model.Profile, error) {
	exists, err := s.profileRepo.ExistsByEmail(email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	hash := string(hashed)

	profile := s.credits.newProfile(uuid.NewString())
	profile.Email = &email
	profile.PasswordHash = &hash

	if err := s.profileRepo.Create(profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *AuthService) loginLocal(email, password string) (string, error) {
	profile, err := s.profileRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if profile.PasswordHash == nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*profile.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return profile.ID, nil
}

func (s *AuthService) registerSupabase(email, password string) (*model.Profile, error) {
	resp, err := s.supabase.Signup(types.SignupRequest{Email: email, Password: password})
	if err != nil {
		if isClientError(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("supabase signup: %w", err)
	}
	if resp.User.ID == uuid.Nil {
		return nil, errors.New("supabase signup returned no user")
	}

	profile := s.credits.newProfile(resp.User.ID.String())
	profile.Email = &email
	return s.profileRepo.CreateIfAbsent(profile)
}

func (s *AuthService) loginSupabase(email, password string) (string, error) {
	resp, err := s.supabase.SignInWithEmailPassword(email, password)
	if err != nil {
		if isClientError(err) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("supabase sign in: %w", err)
	}
	if resp.User.ID == uuid.Nil {
		return "", ErrInvalidCredentials
	}

	// 首次在本服务登录的 Supabase 用户
	profile := s.credits.newProfile(resp.User.ID.String())
	if resp.User.Email != "" {
		e := strings.ToLower(resp.User.Email)
		profile.Email = &e
	}
	if _, err := s.profileRepo.CreateIfAbsent(profile); err != nil {
		return "", err
	}
	return profile.ID, nil
}

// isClientError gotrue 对非 2xx 返回 "response status code 4xx: ..."
func isClientError(err error) bool {
	return strings.Contains(err.Error(), "status code 4")
}

func (s *AuthService) issue(ctx context.Context, userID string) (*dto.AuthResponse, error) {
	token, err := jwt.GenerateToken(userID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}

	profile, err := s.credits.Load(ctx, model.UserIdentity(userID))
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		Token:   token,
		Profile: s.credits.Info(profile, false),
	}, nil
}

func (s *AuthService) providerName() string {
	if s.supabase != nil {
		return ProviderSupabase
	}
	return ProviderLocal
}
