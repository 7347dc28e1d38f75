// Package internal contains the implementation packages of docsite.
//
// # Package Organization
//
//   - config: Viper-backed configuration with validation
//   - errors: structured start-up errors and the render error variants
//   - i18n: language catalog, prefix grammar and negotiation
//   - livereload: websocket hub telling browsers to reload in development
//   - logging: slog-based structured logging
//   - microcache: short-lived cache of rendered responses
//   - redirects: permanent redirect table
//   - renderer: page template, client manifest and component rendering
//   - server: HTTP routing, negotiation, error pages and the dev reloader
//   - site: Markdown documents and store pages as templ components
//   - translation: translation file store and its HTTP API
//   - version: build information and the Server header
//   - watcher: debounced file system notifications
package internal
