// Package webui exposes the embedded dashboard.
// It lives at the module root so it can embed the sibling "web/" directory;
// internal/server/embed.go renders the template from here.
package webui

import "embed"

// FS is the embedded web directory tree. web/index.html is a html/template
// rendered with the dashboard guard state.
//
//go:embed web
var FS embed.FS
