// Package settings owns user-editable settings that are read far more often
// than they change. Values are cached in memory and invalidated on update.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgraph-io/ristretto"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const iconProviderKey = "icon_provider"

// IconProvider builds payee icon URLs from a merchant domain.
type IconProvider struct {
	Name string `yaml:"name"`
	// URLTemplate must contain {domain}; {size} is optional.
	URLTemplate string `yaml:"url_template"`
	Size        int    `yaml:"size,omitempty"`
}

// DefaultIconProvider is used until the user saves their own.
func DefaultIconProvider() IconProvider {
	return IconProvider{
		Name:        "google",
		URLTemplate: "https://www.google.com/s2/favicons?domain={domain}&sz={size}",
		Size:        64,
	}
}

// Validate checks that the template can produce a URL.
func (p IconProvider) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("icon provider name is required")
	}
	if !strings.Contains(p.URLTemplate, "{domain}") {
		return fmt.Errorf("icon provider %q: url_template must contain {domain}", p.Name)
	}
	if p.Size < 0 {
		return fmt.Errorf("icon provider %q: size must not be negative", p.Name)
	}
	return nil
}

// URLFor returns the icon URL for domain, or "" when there is no domain.
func (p IconProvider) URLFor(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" || p.URLTemplate == "" {
		return ""
	}
	url := strings.ReplaceAll(p.URLTemplate, "{domain}", domain)
	return strings.ReplaceAll(url, "{size}", strconv.Itoa(p.Size))
}

type file struct {
	IconProvider *IconProvider `yaml:"icon_provider,omitempty"`
}

// Service reads and writes the settings file through a cache.
type Service struct {
	path  string
	cache *ristretto.Cache
	log   zerolog.Logger
}

// New creates a Service backed by the YAML file at path. The file need not
// exist yet.
func New(path string, log zerolog.Logger) (*Service, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating settings cache: %w", err)
	}
	return &Service{path: path, cache: cache, log: log}, nil
}

// Close releases the cache.
func (s *Service) Close() {
	s.cache.Close()
}

// IconProvider returns the configured icon provider.
func (s *Service) IconProvider(ctx context.Context) (IconProvider, error) {
	if err := ctx.Err(); err != nil {
		return IconProvider{}, err
	}
	if v, ok := s.cache.Get(iconProviderKey); ok {
		return v.(IconProvider), nil
	}

	f, err := s.read()
	if err != nil {
		return IconProvider{}, err
	}
	p := DefaultIconProvider()
	if f.IconProvider != nil {
		p = *f.IconProvider
	}
	s.cache.Set(iconProviderKey, p, 1)
	s.cache.Wait()
	return p, nil
}

// UpdateIconProvider saves p and drops the cached value.
func (s *Service) UpdateIconProvider(ctx context.Context, p IconProvider) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	f, err := s.read()
	if err != nil {
		return err
	}
	f.IconProvider = &p
	if err := s.write(f); err != nil {
		return err
	}
	s.cache.Del(iconProviderKey)
	s.log.Info().Str("provider", p.Name).Msg("icon provider updated")
	return nil
}

// IconURL resolves the icon URL for domain with the current provider.
func (s *Service) IconURL(ctx context.Context, domain string) (string, error) {
	p, err := s.IconProvider(ctx)
	if err != nil {
		return "", err
	}
	return p.URLFor(domain), nil
}

func (s *Service) read() (file, error) {
	var f file
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("reading settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parsing settings: %w", err)
	}
	return f, nil
}

func (s *Service) write(f file) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating settings dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}
