// Package web embeds the send form and its static assets.
package web

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed static templates/*.html
var files embed.FS

var (
	// StaticFS serves the files under static/ at their bare names.
	StaticFS = mustSub(files, "static")

	// Templates holds every page, looked up by file name.
	Templates = template.Must(template.ParseFS(files, "templates/*.html"))
)

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic("web: " + err.Error())
	}
	return sub
}
