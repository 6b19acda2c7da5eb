// Package templates holds the HTML fragments returned to HTMX callers.
//
// Components are written in .templ files; the *_templ.go files are generated
// with `templ generate`.
package templates
