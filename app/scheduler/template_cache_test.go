package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lmoretti/whatsflow/app/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateCacheServesCachedCopyWithinTTL(t *testing.T) {
	gateway := newFakeGateway()
	gateway.templates = []services.TemplateMeta{
		{Name: "promo_template", Status: "APPROVED", Language: "es_AR"},
	}
	cache := NewTemplateCache(gateway, time.Minute)

	first, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, gateway.templateCalls)
}

func TestTemplateCacheRefreshesAfterTTL(t *testing.T) {
	gateway := newFakeGateway()
	cache := NewTemplateCache(gateway, 10*time.Millisecond)

	_, err := cache.Get(context.Background())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, gateway.templateCalls)
}

func TestTemplateCacheInvalidateForcesRefetch(t *testing.T) {
	gateway := newFakeGateway()
	cache := NewTemplateCache(gateway, time.Hour)

	_, err := cache.Get(context.Background())
	require.NoError(t, err)

	cache.Invalidate()

	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, gateway.templateCalls)
}

func TestTemplateCacheFallsBackToStaleCopyOnError(t *testing.T) {
	gateway := newFakeGateway()
	gateway.templates = []services.TemplateMeta{{Name: "promo_template"}}
	cache := NewTemplateCache(gateway, 10*time.Millisecond)

	warm, err := cache.Get(context.Background())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	gateway.templateErr = errors.New("gateway down")

	stale, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, warm, stale)
}

func TestTemplateCacheColdErrorSurfaces(t *testing.T) {
	gateway := newFakeGateway()
	gateway.templateErr = errors.New("gateway down")
	cache := NewTemplateCache(gateway, time.Minute)

	_, err := cache.Get(context.Background())
	assert.Error(t, err)
}
