package gcp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/llm-relay/internal/cache"
	"github.com/compresr/llm-relay/internal/cascade"
	"github.com/compresr/llm-relay/internal/pool"
	"github.com/compresr/llm-relay/internal/store"
)

func newTestCascade(t *testing.T) (*cascade.Cascade, *cache.Memory) {
	t.Helper()
	ca := cache.NewMemory(time.Hour)
	t.Cleanup(func() { _ = ca.Close() })
	return cascade.New(store.NewMemory(), ca, cascade.Options{
		LookupEnv: func(string) (string, bool) { return "", false },
	}), ca
}

func account(email, project string) pool.ServiceAccount {
	return pool.ServiceAccount{
		Type:         "service_account",
		ProjectID:    project,
		PrivateKeyID: "kid",
		PrivateKey:   "pem",
		ClientEmail:  email,
	}
}

func TestToken_NoAccounts(t *testing.T) {
	c, _ := newTestCascade(t)
	tc := NewTokenCache(c)
	_, err := tc.Token(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoServiceAccounts)
}

func TestToken_MintsOnceThenCaches(t *testing.T) {
	ctx := context.Background()
	c, ca := newTestCascade(t)
	var mints atomic.Int64
	tc := NewTokenCache(c,
		WithPicker(func(int) int { return 1 }),
		WithMinter(func(_ context.Context, sa pool.ServiceAccount) (string, time.Time, error) {
			mints.Add(1)
			return "tok-" + sa.ClientEmail, time.Now().Add(time.Hour), nil
		}),
	)
	accounts := []pool.ServiceAccount{account("a@x", "pa"), account("b@x", "pb")}

	tok, err := tc.Token(ctx, accounts)
	require.NoError(t, err)
	assert.Equal(t, Token{AccessToken: "tok-b@x", ProjectID: "pb", ClientEmail: "b@x"}, tok)

	_, err = tc.Token(ctx, accounts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), mints.Load())

	raw, ok, _ := ca.Get(ctx, "gcp_token:b@x")
	require.True(t, ok)
	assert.Equal(t, "tok-b@x", string(raw))
}

func TestToken_ShortLivedTokenNotOverCached(t *testing.T) {
	ctx := context.Background()
	c, ca := newTestCascade(t)
	tc := NewTokenCache(c, WithMinter(func(context.Context, pool.ServiceAccount) (string, time.Time, error) {
		return "nearly-expired", time.Now().Add(30 * time.Second), nil
	}))

	tok, err := tc.TokenFor(ctx, account("a@x", "p"))
	require.NoError(t, err)
	assert.Equal(t, "nearly-expired", tok)
	assert.Equal(t, 0, ca.Len(), "tokens expiring within the margin are not cached")
}

func TestToken_ConcurrentMintsCollapse(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCascade(t)
	var mints atomic.Int64
	release := make(chan struct{})
	tc := NewTokenCache(c, WithMinter(func(context.Context, pool.ServiceAccount) (string, time.Time, error) {
		mints.Add(1)
		<-release
		return "shared", time.Time{}, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := tc.TokenFor(ctx, account("a@x", "p"))
			assert.NoError(t, err)
			assert.Equal(t, "shared", tok)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int64(1), mints.Load())
}

func TestToken_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	c, ca := newTestCascade(t)
	started := make(chan struct{})
	release := make(chan struct{})
	tc := NewTokenCache(c, WithMinter(func(ctx context.Context, _ pool.ServiceAccount) (string, time.Time, error) {
		close(started)
		select {
		case <-release:
			return "shared", time.Time{}, nil
		case <-ctx.Done():
			return "", time.Time{}, ctx.Err()
		}
	}))
	sa := account("a@x", "p")

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := tc.TokenFor(firstCtx, sa)
		firstErr <- err
	}()
	<-started

	type result struct {
		tok string
		err error
	}
	second := make(chan result, 1)
	go func() {
		tok, err := tc.TokenFor(context.Background(), sa)
		second <- result{tok, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "shared", got.tok)

	cached, ok, err := ca.Get(context.Background(), cacheKeyPrefix+"a@x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "shared", string(cached))
}

func TestToken_MintError(t *testing.T) {
	c, _ := newTestCascade(t)
	tc := NewTokenCache(c, WithMinter(func(context.Context, pool.ServiceAccount) (string, time.Time, error) {
		return "", time.Time{}, errors.New("invalid_grant")
	}))
	_, err := tc.Token(context.Background(), []pool.ServiceAccount{account("a@x", "p")})
	assert.ErrorContains(t, err, "invalid_grant")
}

func TestMintJWT_Exchange(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	var grant string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		grant = r.PostForm.Get("grant_type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ya29.test","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	raw, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "proj",
		"private_key_id": "kid",
		"private_key":    pemKey,
		"client_email":   "svc@proj.iam.gserviceaccount.com",
		"token_uri":      tokenServer.URL,
	})
	require.NoError(t, err)
	sas, err := pool.ParseServiceAccounts("[" + string(raw) + "]")
	require.NoError(t, err)

	tok, expiry, err := MintJWT(context.Background(), sas[0])
	require.NoError(t, err)
	assert.Equal(t, "ya29.test", tok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiry, time.Minute)
	assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", grant)
}
