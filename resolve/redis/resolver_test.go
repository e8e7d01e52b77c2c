package redis_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoelho/weffo"
	"github.com/jacoelho/weffo/errors"
	"github.com/jacoelho/weffo/resolve/redis"
)

func setup(t *testing.T, opts ...redis.Option) (*miniredis.Miniredis, *redis.Resolver) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, redis.New(client, opts...)
}

const prefsView = `<r><?weffo-param prefs?><t><?weffo-value document($prefs)/prefs/theme?></t></r>`

func TestResolverServesStoredDocuments(t *testing.T) {
	mr, r := setup(t, redis.WithSchemes("urn"))
	require.NoError(t, r.Put(context.Background(), "urn:prefs:ada", []byte(`<prefs><theme>dark</theme></prefs>`), 0))
	assert.True(t, mr.Exists("weffo:doc:urn:prefs:ada"))

	tmpl, err := weffo.TemplateFromPrototype(weffo.StringSource(prefsView, "view.xml"))
	require.NoError(t, err)

	var buf bytes.Buffer
	err = weffo.OutputFromTemplate(tmpl, weffo.StringSource(`<m/>`, "m.xml"), weffo.ToWriter(&buf),
		weffo.WithParams(weffo.Params{"prefs": weffo.String("urn:prefs:ada")}),
		weffo.WithResolver(r),
	)
	require.NoError(t, err)
	assert.Equal(t, `<r><t>dark</t></r>`, buf.String())
}

func TestResolverDeclines(t *testing.T) {
	_, r := setup(t, redis.WithSchemes("urn"))

	src, err := r.Resolve("urn:missing", "")
	require.NoError(t, err)
	assert.Nil(t, src)

	src, err = r.Resolve("local.xml", "")
	require.NoError(t, err)
	assert.Nil(t, src)
}

func TestResolverExpiry(t *testing.T) {
	mr, r := setup(t, redis.WithPrefix("test:"))
	require.NoError(t, r.Put(context.Background(), "urn:x", []byte(`<x/>`), time.Second))
	src, err := r.Resolve("urn:x", "")
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, "urn:x", src.SystemID())

	mr.FastForward(2 * time.Second)
	src, err = r.Resolve("urn:x", "")
	require.NoError(t, err)
	assert.Nil(t, src)
}

func TestResolverBackendFailure(t *testing.T) {
	mr, r := setup(t, redis.WithTimeout(200*time.Millisecond))
	mr.SetError("READONLY unavailable")

	tmpl, err := weffo.TemplateFromPrototype(weffo.StringSource(prefsView, "view.xml"))
	require.NoError(t, err)
	err = weffo.OutputFromTemplate(tmpl, weffo.StringSource(`<m/>`, "m.xml"), &weffo.TreeResult{},
		weffo.WithParams(weffo.Params{"prefs": weffo.String("urn:prefs")}),
		weffo.WithResolver(r),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrResolver)
	assert.Contains(t, err.Error(), "redis get urn:prefs")
}
