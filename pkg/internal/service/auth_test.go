package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/cloudvault/pkg/internal/service"
)

func TestSignupLoginAuthenticate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sess, err := e.svc.Auth.Signup(ctx, service.SignupInput{Email: " Ada@Example.com ", Password: "correct horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Equal(t, "ada", sess.User.Name)
	assert.Equal(t, e.cfg.Upload.DefaultStorageLimit, sess.User.StorageLimit)

	uid, err := e.svc.Auth.Authenticate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, uid)

	_, err = e.svc.Auth.Signup(ctx, service.SignupInput{Email: "ada@example.com", Password: "another pass"})
	assert.ErrorIs(t, err, service.ErrConflict)

	_, err = e.svc.Auth.Login(ctx, service.LoginInput{Email: "ada@example.com", Password: "wrong password"})
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	_, err = e.svc.Auth.Login(ctx, service.LoginInput{Email: "nobody@example.com", Password: "whatever"})
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	again, err := e.svc.Auth.Login(ctx, service.LoginInput{Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, again.User.ID)

	prof, err := e.svc.Auth.Profile(ctx, uid)
	require.NoError(t, err)
	assert.NotEmpty(t, prof.PasswordHash)

	_, err = e.svc.Auth.Authenticate("not-a-token")
	assert.ErrorIs(t, err, service.ErrUnauthorized)
}

func TestSignupValidation(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Auth.Signup(context.Background(), service.SignupInput{Email: "not-an-email", Password: "short"})

	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 2)
}
