package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, path string) *Service {
	t.Helper()
	s, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestURLFor(t *testing.T) {
	p := IconProvider{Name: "x", URLTemplate: "https://icons.example/{domain}?s={size}", Size: 32}
	assert.Equal(t, "https://icons.example/netflix.com?s=32", p.URLFor(" Netflix.com "))
	assert.Empty(t, p.URLFor(""))
	assert.Empty(t, IconProvider{}.URLFor("netflix.com"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       IconProvider
		wantErr bool
	}{
		{"default", DefaultIconProvider(), false},
		{"no name", IconProvider{URLTemplate: "{domain}"}, true},
		{"no placeholder", IconProvider{Name: "x", URLTemplate: "https://icons.example/"}, true},
		{"negative size", IconProvider{Name: "x", URLTemplate: "{domain}", Size: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMissingFileUsesDefault(t *testing.T) {
	s := newService(t, filepath.Join(t.TempDir(), "settings.yaml"))
	p, err := s.IconProvider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultIconProvider(), p)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "settings.yaml")
	s := newService(t, path)
	ctx := context.Background()

	_, err := s.IconProvider(ctx)
	require.NoError(t, err)

	custom := IconProvider{Name: "clearbit", URLTemplate: "https://logo.example/{domain}"}
	require.NoError(t, s.UpdateIconProvider(ctx, custom))

	got, err := s.IconProvider(ctx)
	require.NoError(t, err)
	assert.Equal(t, custom, got)

	url, err := s.IconURL(ctx, "github.com")
	require.NoError(t, err)
	assert.Equal(t, "https://logo.example/github.com", url)

	// a fresh service reads what was saved
	got, err = newService(t, path).IconProvider(ctx)
	require.NoError(t, err)
	assert.Equal(t, custom, got)
}

func TestCachedValueServedUntilUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s := newService(t, path)
	ctx := context.Background()

	first, err := s.IconProvider(ctx)
	require.NoError(t, err)

	// an out-of-band edit is not seen while the cached value is live
	require.NoError(t, os.WriteFile(path, []byte("icon_provider:\n  name: other\n  url_template: \"{domain}\"\n"), 0o644))
	got, err := s.IconProvider(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestUpdateRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s := newService(t, path)
	err := s.UpdateIconProvider(context.Background(), IconProvider{Name: "bad"})
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("icon_provider: ["), 0o644))
	_, err := newService(t, path).IconProvider(context.Background())
	assert.ErrorContains(t, err, "parsing settings")
}
