package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFlowTest(t *testing.T) (*TestDB, *TestServer) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Teardown(context.Background()) })

	ts := NewTestServer(db.DB)
	t.Cleanup(ts.Close)

	return db, ts
}

func TestFullLoginFlow(t *testing.T) {
	_, ts := setupFlowTest(t)

	email, password := TestAccount("flow")

	// Register
	resp, err := ts.Request("POST", "/auth/register", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	verification := ts.Notifier.Last("verification")
	require.NotNil(t, verification, "registration sends a verification email")
	assert.Equal(t, email, verification.To)

	// Login before verification is refused
	resp, err = ts.Request("POST", "/auth/login/initiate", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Verify email via the link token
	resp, err = ts.Request("GET", "/auth/verify-email?token="+verification.Token, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The link is single-use
	resp, err = ts.Request("GET", "/auth/verify-email?token="+verification.Token, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Password step emails a code
	resp, err = ts.Request("POST", "/auth/login/initiate", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	code := ts.Notifier.Last("two_factor")
	require.NotNil(t, code)
	assert.Len(t, code.Token, 6)

	// Code step mints a session
	resp, err = ts.Request("POST", "/auth/login/verify", map[string]string{
		"email": email,
		"code":  code.Token,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	require.NoError(t, ParseJSONResponse(resp, &login))
	require.NotEmpty(t, login.Token)
	assert.WithinDuration(t, time.Now().Add(ts.Security.SessionTimeout), login.ExpiresAt, time.Minute)

	// Session validates
	resp, err = ts.Request("POST", "/sessions/validate", nil, map[string]string{
		"Session-Token": login.Token,
	})
	require.NoError(t, err)
	var validation struct {
		Valid bool `json:"valid"`
	}
	require.NoError(t, ParseJSONResponse(resp, &validation))
	assert.True(t, validation.Valid)

	// Logout kills it
	resp, err = ts.Request("POST", "/sessions/logout", nil, map[string]string{
		"Session-Token": login.Token,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = ts.Request("POST", "/sessions/validate", nil, map[string]string{
		"Session-Token": login.Token,
	})
	require.NoError(t, err)
	require.NoError(t, ParseJSONResponse(resp, &validation))
	assert.False(t, validation.Valid)
}

func TestBruteForceLockoutFlow(t *testing.T) {
	db, ts := setupFlowTest(t)
	ctx := context.Background()

	email, password := TestAccount("lockout")
	registerAndVerify(t, ts, email, password)

	// Four wrong passwords are plain failures
	for i := 0; i < 4; i++ {
		resp, err := ts.Request("POST", "/auth/login/initiate", map[string]string{
			"email":    email,
			"password": "wrong-password-1",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}

	// The fifth trips the lock
	resp, err := ts.Request("POST", "/auth/login/initiate", map[string]string{
		"email":    email,
		"password": "wrong-password-1",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()

	// The correct password is refused while locked
	resp, err = ts.Request("POST", "/auth/login/initiate", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()

	// Age the lock past its deadline; the next attempt unlocks lazily
	_, err = db.Pool.Exec(ctx,
		`UPDATE accounts SET account_locked_until = NOW() - INTERVAL '1 minute' WHERE email = $1`,
		email)
	require.NoError(t, err)

	resp, err = ts.Request("POST", "/auth/login/initiate", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestTwoFactorLockoutAndUnlockFlow(t *testing.T) {
	_, ts := setupFlowTest(t)

	email, password := TestAccount("2fa-lockout")
	registerAndVerify(t, ts, email, password)

	resp, err := ts.Request("POST", "/auth/login/initiate", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Two wrong codes fail plainly
	for i := 0; i < 2; i++ {
		resp, err = ts.Request("POST", "/auth/login/verify", map[string]string{
			"email": email,
			"code":  "000000",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}

	// The third locks the account and emails an unlock link
	resp, err = ts.Request("POST", "/auth/login/verify", map[string]string{
		"email": email,
		"code":  "000000",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	unlock := ts.Notifier.Last("unlock")
	require.NotNil(t, unlock, "lockout sends an unlock email")

	// Locked out of the password step too
	resp, err = ts.Request("POST", "/auth/login/initiate", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()

	// The unlock link clears everything
	resp, err = ts.Request("GET", "/auth/unlock-account?token="+unlock.Token, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = ts.Request("POST", "/auth/login/initiate", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// registerAndVerify runs the registration leg and consumes the verification
// link
func registerAndVerify(t *testing.T, ts *TestServer, email, password string) {
	t.Helper()

	resp, err := ts.Request("POST", "/auth/register", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	verification := ts.Notifier.Last("verification")
	require.NotNil(t, verification)

	resp, err = ts.Request("GET", "/auth/verify-email?token="+verification.Token, nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
