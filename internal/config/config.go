// Package config provides configuration management for docsite using Viper
// for loading from files, environment variables and command-line flags.
//
// Keys are grouped into server, cache, site, translation and log sections.
// Environment variables use the DOCSITE_ prefix (DOCSITE_SERVER_PORT,
// DOCSITE_CACHE_MICRO_CACHE, ...). The plain variables the site has always
// honored are bound as well: PORT, HOST, NODE_ENV, MICRO_CACHE and TRANSLATE.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for docsite environment variables.
const EnvPrefix = "DOCSITE"

const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Site        SiteConfig        `mapstructure:"site"`
	Translation TranslationConfig `mapstructure:"translation"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Host        string `mapstructure:"host"`
	Environment string `mapstructure:"environment"`
}

type CacheConfig struct {
	MicroCache        bool          `mapstructure:"micro_cache"`
	MicroCacheTTL     time.Duration `mapstructure:"micro_cache_ttl"`
	MicroCacheSize    int           `mapstructure:"micro_cache_size"`
	RenderCacheMax    int           `mapstructure:"render_cache_max"`
	RenderCacheMaxAge time.Duration `mapstructure:"render_cache_max_age"`
	StaticMaxAge      time.Duration `mapstructure:"static_max_age"`
}

type SiteConfig struct {
	PublicDir       string `mapstructure:"public_dir"`
	DistDir         string `mapstructure:"dist_dir"`
	ReleasesDir     string `mapstructure:"releases_dir"`
	ThemesDir       string `mapstructure:"themes_dir"`
	ContentDir      string `mapstructure:"content_dir"`
	Template        string `mapstructure:"template"`
	Manifest        string `mapstructure:"manifest"`
	Redirects       string `mapstructure:"redirects"`
	Languages       string `mapstructure:"languages"`
	Favicon         string `mapstructure:"favicon"`
	Sitemap         string `mapstructure:"sitemap"`
	DefaultLanguage string `mapstructure:"default_language"`
	Title           string `mapstructure:"title"`
	ShouldPrefetch  bool   `mapstructure:"should_prefetch"`
}

type TranslationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// IsProduction reports whether the server runs with production assets.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvironmentProduction
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SetDefaults registers every key with its default. Registering the keys is
// also what lets AutomaticEnv overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8095)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.environment", EnvironmentDevelopment)

	v.SetDefault("cache.micro_cache", true)
	v.SetDefault("cache.micro_cache_ttl", 10*time.Minute)
	v.SetDefault("cache.micro_cache_size", 500)
	v.SetDefault("cache.render_cache_max", 1000)
	v.SetDefault("cache.render_cache_max_age", 15*time.Minute)
	v.SetDefault("cache.static_max_age", 30*24*time.Hour)

	v.SetDefault("site.public_dir", "./public")
	v.SetDefault("site.dist_dir", "./dist")
	v.SetDefault("site.releases_dir", "./releases")
	v.SetDefault("site.themes_dir", "./themes")
	v.SetDefault("site.content_dir", "./content")
	v.SetDefault("site.template", "./index.template.html")
	v.SetDefault("site.manifest", "./dist/ssr-client-manifest.json")
	v.SetDefault("site.redirects", "./router/301.json")
	v.SetDefault("site.languages", "./data/languages.json")
	v.SetDefault("site.favicon", "./public/favicon.ico")
	v.SetDefault("site.sitemap", "./public/sitemap.xml")
	v.SetDefault("site.default_language", "en")
	v.SetDefault("site.title", "Docsite")
	v.SetDefault("site.should_prefetch", false)

	v.SetDefault("translation.enabled", false)
	v.SetDefault("translation.dir", "./translations")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// BindEnv wires the DOCSITE_ prefix and the plain PORT/HOST variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("server.host", EnvPrefix+"_SERVER_HOST", "HOST")
}

// Load reads the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper(), os.LookupEnv)
}

// LoadFrom unmarshals v into a Config and validates the result. The plain
// environment toggles found through lookupEnv act as defaults, so flags,
// DOCSITE_ variables and the config file still override them.
func LoadFrom(v *viper.Viper, lookupEnv func(string) (string, bool)) (*Config, error) {
	SetDefaults(v)
	if lookupEnv == nil {
		lookupEnv = func(string) (string, bool) { return "", false }
	}
	applyLegacyEnv(v, lookupEnv)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyLegacyEnv honors NODE_ENV, MICRO_CACHE and TRANSLATE with their
// historical semantics.
func applyLegacyEnv(v *viper.Viper, lookupEnv func(string) (string, bool)) {
	if env, ok := lookupEnv("NODE_ENV"); ok && env == EnvironmentProduction {
		v.SetDefault("server.environment", EnvironmentProduction)
	}

	// Only the literal "false" turns the micro-cache off. Without the
	// variable, development renders every request so rebuilds show at once.
	if val, ok := lookupEnv("MICRO_CACHE"); ok {
		v.SetDefault("cache.micro_cache", val != "false")
	} else if v.GetString("server.environment") != EnvironmentProduction {
		v.SetDefault("cache.micro_cache", false)
	}

	// Any non-empty value turns the translation API on.
	if val, ok := lookupEnv("TRANSLATE"); ok && val != "" {
		v.SetDefault("translation.enabled", true)
	}
}
