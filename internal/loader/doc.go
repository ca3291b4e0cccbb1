// Package loader saves a single web page for offline viewing. It fetches the
// document, rewrites same-host img, stylesheet and script references to local
// copies, downloads those resources concurrently and writes the rewritten
// markup next to an asset directory.
package loader
