package api

import (
	"context"
	"encoding/json"
	"ht2peer/internal/auth"
	"ht2peer/internal/domain"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newTestIdentity(t *testing.T, handler fasthttp.RequestHandler) *IdentityClient {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() { ln.Close() })

	return newIdentityClient("http://identity.local/verify", &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	})
}

func TestIdentityClientVerify(t *testing.T) {
	var got verifyRequest
	client := newTestIdentity(t, func(ctx *fasthttp.RequestCtx) {
		if !ctx.IsPost() {
			ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
			return
		}
		json.Unmarshal(ctx.PostBody(), &got)
		if got.Token != "good" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"userId":"player-1","exp":1900000000}`)
	})

	claims, err := client.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "good", got.Token)
	assert.Equal(t, "player-1", claims.Subject)
	assert.Equal(t, int64(1900000000), claims.ExpiresAt.Unix())

	_, err = client.Verify(context.Background(), "bad")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = client.Verify(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestIdentityClientServiceFailure(t *testing.T) {
	client := newTestIdentity(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
	})

	_, err := client.Verify(context.Background(), "any")
	require.Error(t, err)
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
}

func TestIdentityClientMissingSubject(t *testing.T) {
	client := newTestIdentity(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{}`)
	})

	_, err := client.Verify(context.Background(), "any")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
