package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"events_auth/internal/auth"
	"events_auth/internal/models"
	"events_auth/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	mu     sync.Mutex
	users  map[string]models.User
	calls  int
	saves  int
	err    error
	noSave bool
}

func newFakeStorage(users ...models.User) *fakeStorage {
	st := &fakeStorage{users: make(map[string]models.User)}
	for _, u := range users {
		st.users[u.ID] = u
	}
	return st
}

func (f *fakeStorage) find(match func(models.User) bool) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return models.User{}, f.err
	}
	for _, u := range f.users {
		if match(u) {
			return u, nil
		}
	}
	return models.User{}, storage.ErrNotFound
}

func (f *fakeStorage) GetCredentialsByEmail(_ context.Context, email string) (models.User, error) {
	u, err := f.find(func(u models.User) bool { return u.Email == email })
	u.RegistrationToken = ""
	return u, err
}

func (f *fakeStorage) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	return f.find(func(u models.User) bool { return u.Email == email })
}

func (f *fakeStorage) GetUserByID(_ context.Context, id string) (models.User, error) {
	return f.find(func(u models.User) bool { return u.ID == id })
}

func (f *fakeStorage) GetUserByRegistrationToken(_ context.Context, token string) (models.User, error) {
	u, err := f.find(func(u models.User) bool { return u.RegistrationToken == token })
	return models.User{ID: u.ID, Email: u.Email}, err
}

func (f *fakeStorage) SaveUser(_ context.Context, user models.User) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.saves++
	if f.err != nil {
		return models.User{}, f.err
	}
	if f.noSave {
		return models.User{}, nil
	}
	if _, ok := f.users[user.ID]; !ok {
		return models.User{}, nil
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStorage) Ping(context.Context) error { return nil }

func (f *fakeStorage) Close() {}

type counterMock struct {
	mock.Mock
}

func (m *counterMock) CountUnread(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *counterMock) Close() {}

var hasher = auth.MD5Hasher{}

func testUser(t *testing.T, password string) models.User {
	t.Helper()

	digest, err := hasher.Hash(password)
	require.NoError(t, err)

	return models.User{
		ID:        "u1",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "a@b.com",
		Password:  digest,
		Status:    models.StatusConfirmed,
		Active:    true,
		Settings:  map[string]any{"lang": "en"},
	}
}

func newTestService(st storage.Storage, counter *counterMock) *AuthService {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthService(st, counter, hasher, auth.UUIDTokenGenerator{}, log)
}

func TestVerifyCredentials(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(u *models.User)
		email    string
		password string
		want     models.Code
	}{
		{name: "unknown identity", email: "nobody@b.com", password: "secret", want: models.CodeCredentialsError},
		{name: "wrong password", email: "a@b.com", password: "wrong", want: models.CodeCredentialsError},
		{
			name:     "no stored digest",
			mutate:   func(u *models.User) { u.Password = "" },
			email:    "a@b.com",
			password: "",
			want:     models.CodeCredentialsError,
		},
		{
			name:     "unconfirmed",
			mutate:   func(u *models.User) { u.Status = "pending" },
			email:    "a@b.com",
			password: "secret",
			want:     models.CodeEmailNotConfirmed,
		},
		{
			name:     "inactive",
			mutate:   func(u *models.User) { u.Active = false },
			email:    "a@b.com",
			password: "secret",
			want:     models.CodeUserInactive,
		},
		{
			name:     "wrong password beats unconfirmed",
			mutate:   func(u *models.User) { u.Status = "pending"; u.Active = false },
			email:    "a@b.com",
			password: "wrong",
			want:     models.CodeCredentialsError,
		},
		{
			name:     "unconfirmed beats inactive",
			mutate:   func(u *models.User) { u.Status = "pending"; u.Active = false },
			email:    "a@b.com",
			password: "secret",
			want:     models.CodeEmailNotConfirmed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := testUser(t, "secret")
			if tt.mutate != nil {
				tt.mutate(&user)
			}
			counter := &counterMock{}
			svc := newTestService(newFakeStorage(user), counter)

			res, err := svc.VerifyCredentials(context.Background(), tt.email, tt.password)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Code)
			counter.AssertNotCalled(t, "CountUnread", mock.Anything, mock.Anything)
		})
	}
}

func TestVerifyCredentials_Success(t *testing.T) {
	counter := &counterMock{}
	counter.On("CountUnread", mock.Anything, "u1").Return(3, nil).Once()
	svc := newTestService(newFakeStorage(testUser(t, "secret")), counter)

	res, err := svc.VerifyCredentials(context.Background(), "  a@b.com ", "secret")
	require.NoError(t, err)

	require.Equal(t, models.CodeSuccess, res.Code)
	assert.Equal(t, models.LoginDetail{
		ID:                "u1",
		FirstName:         "Ada",
		LastName:          "Lovelace",
		Email:             "a@b.com",
		UnreadMessagesQtt: 3,
		Settings:          map[string]any{"lang": "en"},
	}, res.Detail)
	counter.AssertExpectations(t)
}

func TestVerifyCredentials_CounterFailureIsAbsorbed(t *testing.T) {
	counter := &counterMock{}
	counter.On("CountUnread", mock.Anything, "u1").Return(0, errors.New("chat service down"))
	svc := newTestService(newFakeStorage(testUser(t, "secret")), counter)

	res, err := svc.VerifyCredentials(context.Background(), "a@b.com", "secret")
	require.NoError(t, err)

	require.Equal(t, models.CodeSuccess, res.Code)
	detail, ok := res.Detail.(models.LoginDetail)
	require.True(t, ok)
	assert.Zero(t, detail.UnreadMessagesQtt)
}

func TestVerifyCredentials_StoreError(t *testing.T) {
	st := newFakeStorage()
	st.err = errors.New("connection refused")
	svc := newTestService(st, &counterMock{})

	_, err := svc.VerifyCredentials(context.Background(), "a@b.com", "secret")
	require.Error(t, err)
	assert.ErrorContains(t, err, "service.VerifyCredentials")
	assert.ErrorIs(t, err, st.err)
}

func TestVerifyCredentials_Bcrypt(t *testing.T) {
	bcrypt := auth.NewBcryptHasher(4)
	digest, err := bcrypt.Hash("secret")
	require.NoError(t, err)

	user := testUser(t, "secret")
	user.Password = digest

	counter := &counterMock{}
	counter.On("CountUnread", mock.Anything, "u1").Return(0, nil)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewAuthService(newFakeStorage(user), counter, bcrypt, auth.UUIDTokenGenerator{}, log)

	res, err := svc.VerifyCredentials(context.Background(), "a@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, models.CodeSuccess, res.Code)

	res, err = svc.VerifyCredentials(context.Background(), "a@b.com", "wrong")
	require.NoError(t, err)
	assert.Equal(t, models.CodeCredentialsError, res.Code)
}

func TestModifyPassword_RoundTrip(t *testing.T) {
	counter := &counterMock{}
	counter.On("CountUnread", mock.Anything, "u1").Return(0, nil)
	st := newFakeStorage(testUser(t, "secret"))
	svc := newTestService(st, counter)
	ctx := context.Background()

	res, err := svc.ModifyPassword(ctx, "u1", "secret", "n3w", "n3w")
	require.NoError(t, err)
	assert.Equal(t, models.Result{Code: models.CodeSuccess, Detail: "password modified"}, res)

	res, err = svc.VerifyCredentials(ctx, "a@b.com", "n3w")
	require.NoError(t, err)
	assert.Equal(t, models.CodeSuccess, res.Code)

	res, err = svc.VerifyCredentials(ctx, "a@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, models.CodeCredentialsError, res.Code)

	assert.Equal(t, "Lovelace", st.users["u1"].LastName)
}

func TestModifyPassword_MismatchTouchesNothing(t *testing.T) {
	st := newFakeStorage(testUser(t, "secret"))
	svc := newTestService(st, &counterMock{})

	res, err := svc.ModifyPassword(context.Background(), "u1", "secret", "a", "b")
	require.NoError(t, err)

	assert.Equal(t, models.CodePasswordError, res.Code)
	assert.Zero(t, st.calls)
}

func TestModifyPassword(t *testing.T) {
	tests := []struct {
		name    string
		user    func(t *testing.T) models.User
		id      string
		current string
		want    models.Code
		saves   int
	}{
		{
			name:    "unknown id",
			user:    func(t *testing.T) models.User { return testUser(t, "secret") },
			id:      "missing",
			current: "secret",
			want:    models.CodeCredentialsError,
		},
		{
			name:    "wrong current password",
			user:    func(t *testing.T) models.User { return testUser(t, "secret") },
			id:      "u1",
			current: "wrong",
			want:    models.CodeCredentialsError,
		},
		{
			name:  "current password omitted",
			user:  func(t *testing.T) models.User { return testUser(t, "secret") },
			id:    "u1",
			want:  models.CodeSuccess,
			saves: 1,
		},
		{
			name: "account without digest",
			user: func(t *testing.T) models.User {
				u := testUser(t, "secret")
				u.Password = ""
				return u
			},
			id:      "u1",
			current: "anything",
			want:    models.CodeSuccess,
			saves:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStorage(tt.user(t))
			svc := newTestService(st, &counterMock{})

			res, err := svc.ModifyPassword(context.Background(), tt.id, tt.current, "n3w", "n3w")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Code)
			assert.Equal(t, tt.saves, st.saves)
		})
	}
}

func TestModifyPassword_NotSaved(t *testing.T) {
	st := newFakeStorage(testUser(t, "secret"))
	st.noSave = true
	svc := newTestService(st, &counterMock{})

	_, err := svc.ModifyPassword(context.Background(), "u1", "secret", "n3w", "n3w")

	var rejectedErr *RejectedError
	require.ErrorAs(t, err, &rejectedErr)
	assert.Equal(t, models.Result{Code: models.CodeNotDataModified, Detail: "Data not updated"}, rejectedErr.Result)
}

func TestCreateRecoveryPasswordToken(t *testing.T) {
	st := newFakeStorage(testUser(t, "secret"))
	svc := newTestService(st, &counterMock{})
	ctx := context.Background()

	first, err := svc.CreateRecoveryPasswordToken(ctx, "a@b.com")
	require.NoError(t, err)
	require.Equal(t, models.CodeSuccess, first.Code)

	second, err := svc.CreateRecoveryPasswordToken(ctx, " a@b.com")
	require.NoError(t, err)
	require.Equal(t, models.CodeSuccess, second.Code)

	firstToken, ok := first.Detail.(string)
	require.True(t, ok)
	secondToken, ok := second.Detail.(string)
	require.True(t, ok)
	assert.Len(t, firstToken, 32)
	assert.NotEqual(t, firstToken, secondToken)

	res, err := svc.VerifyRegistrationToken(ctx, firstToken)
	require.NoError(t, err)
	assert.Equal(t, models.CodeTokenNotValid, res.Code)

	res, err = svc.VerifyRegistrationToken(ctx, secondToken)
	require.NoError(t, err)
	assert.Equal(t, models.Result{
		Code:   models.CodeSuccess,
		Detail: models.TokenOwner{ID: "u1", Email: "a@b.com"},
	}, res)

	res, err = svc.VerifyRegistrationToken(ctx, secondToken)
	require.NoError(t, err)
	assert.Equal(t, models.CodeSuccess, res.Code)
}

func TestCreateRecoveryPasswordToken_UnknownEmail(t *testing.T) {
	st := newFakeStorage(testUser(t, "secret"))
	svc := newTestService(st, &counterMock{})

	res, err := svc.CreateRecoveryPasswordToken(context.Background(), "nobody@b.com")
	require.NoError(t, err)
	assert.Equal(t, models.CodeCredentialsError, res.Code)
	assert.Zero(t, st.saves)
}

func TestCreateRecoveryPasswordToken_NotSaved(t *testing.T) {
	st := newFakeStorage(testUser(t, "secret"))
	st.noSave = true
	svc := newTestService(st, &counterMock{})

	_, err := svc.CreateRecoveryPasswordToken(context.Background(), "a@b.com")

	var rejectedErr *RejectedError
	require.ErrorAs(t, err, &rejectedErr)
	assert.Equal(t, models.CodeNotDataModified, rejectedErr.Result.Code)
	assert.Equal(t, "recovery password token not generated", rejectedErr.Result.Detail)
}

func TestVerifyRegistrationToken_Unknown(t *testing.T) {
	svc := newTestService(newFakeStorage(testUser(t, "secret")), &counterMock{})

	for _, token := range []string{"nonexistent-token", ""} {
		res, err := svc.VerifyRegistrationToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, models.Result{Code: models.CodeTokenNotValid, Detail: "the token is not valid"}, res)
	}
}
