package web

import "embed"

// FS contains the live view served at / by the serve command.
//
//go:embed *.html *.css *.js
var FS embed.FS
