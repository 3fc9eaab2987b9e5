package service

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/college-attendance-api/internal/models"
)

type mockAuthRepo struct {
	users    map[string]*models.User
	profiles map[string]*models.UserProfile
	err      error
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	user, ok := m.users[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockAuthRepo) FindProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	profile, ok := m.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return profile, nil
}

func newTeacherAuthRepo(t *testing.T) *mockAuthRepo {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{ID: "u1", Email: "teacher@college.edu", PasswordHash: string(hash), FirstName: "Ada", LastName: "Lovelace", Role: models.RoleTeacher}
	return &mockAuthRepo{
		users: map[string]*models.User{user.Email: user},
		profiles: map[string]*models.UserProfile{
			user.ID: {User: *user, Teacher: &models.Teacher{ID: "teacher-1", UserID: user.ID, EmployeeID: "EMP1"}},
		},
	}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := newTeacherAuthRepo(t)
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "college"})

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: " teacher@college.edu ", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, "teacher-1", res.User.TeacherID)
	assert.Empty(t, res.User.StudentID)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	assert.Equal(t, "teacher-1", claims.TeacherID)
	assert.Equal(t, "college", claims.Issuer)
}

func TestAuthServiceLoginRejectsBadCredentials(t *testing.T) {
	repo := newTeacherAuthRepo(t)
	svc := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "secret"})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "teacher@college.edu", Password: "wrong"})
	requireAppError(t, err, http.StatusUnauthorized)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@college.edu", Password: "password"})
	requireAppError(t, err, http.StatusUnauthorized)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "password"})
	requireAppError(t, err, http.StatusBadRequest)
}

func TestAuthServiceMe(t *testing.T) {
	repo := newTeacherAuthRepo(t)
	svc := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "secret"})

	profile, err := svc.Me(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, profile.Teacher)
	assert.Equal(t, "EMP1", profile.Teacher.EmployeeID)

	_, err = svc.Me(context.Background(), "ghost")
	requireAppError(t, err, http.StatusNotFound)
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, validator.New(), zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour})
	token, err := svc.generateAccessToken(models.UserInfo{ID: "u1", Email: "s@college.edu", Role: models.RoleStudent, StudentID: "stu-1"}, time.Now().UTC())
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.StudentID)

	other := NewAuthService(&mockAuthRepo{}, nil, nil, AuthConfig{AccessTokenSecret: "different"})
	_, err = other.ValidateToken(token)
	requireAppError(t, err, http.StatusUnauthorized)

	expired, err := svc.generateAccessToken(models.UserInfo{ID: "u1", Role: models.RoleStudent}, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	requireAppError(t, err, http.StatusUnauthorized)
}

func TestValidateTokenRejectsUnknownRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: "SUPERUSER", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	svc := NewAuthService(&mockAuthRepo{}, nil, nil, AuthConfig{AccessTokenSecret: "secret"})
	_, err = svc.ValidateToken(token)
	requireAppError(t, err, http.StatusUnauthorized)
}
