package config

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/conneroisu/docsite/internal/logging"
)

// ValidationError describes one invalid configuration value.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	msgs := make([]string, 0, len(ve))
	for _, e := range ve {
		msgs = append(msgs, e.Error())
	}

	return strings.Join(msgs, "; ")
}

// Characters that have no business in a listen host.
var hostDenylist = []string{";", "&", "|", "`", "$", "(", ")", "<", ">", "\"", "'", " ", "\n", "\r"}

func validateConfig(config *Config) error {
	var errs ValidationErrors
	add := func(field string, value interface{}, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if config.Server.Port < 0 || config.Server.Port > 65535 {
		add("server.port", config.Server.Port, "must be between 0 and 65535")
	}
	for _, c := range hostDenylist {
		if strings.Contains(config.Server.Host, c) {
			add("server.host", config.Server.Host, fmt.Sprintf("contains forbidden character %q", c))
			break
		}
	}
	switch config.Server.Environment {
	case EnvironmentProduction, EnvironmentDevelopment:
	default:
		add("server.environment", config.Server.Environment, "must be production or development")
	}

	if config.Cache.MicroCacheTTL <= 0 {
		add("cache.micro_cache_ttl", config.Cache.MicroCacheTTL, "must be positive")
	}
	if config.Cache.MicroCacheSize <= 0 {
		add("cache.micro_cache_size", config.Cache.MicroCacheSize, "must be positive")
	}
	if config.Cache.RenderCacheMax <= 0 {
		add("cache.render_cache_max", config.Cache.RenderCacheMax, "must be positive")
	}
	if config.Cache.RenderCacheMaxAge <= 0 {
		add("cache.render_cache_max_age", config.Cache.RenderCacheMaxAge, "must be positive")
	}
	if config.Cache.StaticMaxAge < 0 {
		add("cache.static_max_age", config.Cache.StaticMaxAge, "must not be negative")
	}

	paths := map[string]string{
		"site.public_dir":   config.Site.PublicDir,
		"site.dist_dir":     config.Site.DistDir,
		"site.releases_dir": config.Site.ReleasesDir,
		"site.themes_dir":   config.Site.ThemesDir,
		"site.content_dir":  config.Site.ContentDir,
		"site.template":     config.Site.Template,
		"site.manifest":     config.Site.Manifest,
		"site.redirects":    config.Site.Redirects,
		"site.languages":    config.Site.Languages,
		"site.favicon":      config.Site.Favicon,
		"site.sitemap":      config.Site.Sitemap,
		"translation.dir":   config.Translation.Dir,
	}
	for _, field := range slices.Sorted(maps.Keys(paths)) {
		if err := validatePath(paths[field]); err != nil {
			add(field, paths[field], err.Error())
		}
	}

	if config.Site.DefaultLanguage == "" {
		add("site.default_language", config.Site.DefaultLanguage, "must not be empty")
	}

	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		add("log.level", config.Log.Level, err.Error())
	}
	switch config.Log.Format {
	case "text", "json":
	default:
		add("log.format", config.Log.Format, "must be text or json")
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// validatePath rejects empty paths and paths that climb out of the working
// directory.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path must not be empty")
	}

	cleaned := filepath.Clean(path)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes the working directory", path)
	}

	return nil
}
