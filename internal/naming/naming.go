// Package naming derives filesystem-safe names for saved pages and their assets.
//
// Every function is pure: the same input always yields the same output and
// nothing touches the filesystem or the network.
package naming

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// DefaultExtension is appended when a link carries no extension of its own.
const DefaultExtension = ".html"

// AssetDirSuffix terminates every asset directory name.
const AssetDirSuffix = "_files"

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// DeriveBaseSlug splits s into directory and name the way a path parser
// would, drops the extension, and folds everything outside [a-z0-9] to '-'.
func DeriveBaseSlug(s string) string {
	dir, file := path.Split(s)
	name := strings.TrimSuffix(file, path.Ext(file))
	return slugify(path.Join(dir, name))
}

// DeriveFilename returns the slug of link followed by its own extension, or
// defaultExt when it has none. Absolute http(s) URLs are reduced to host and
// path first, so scheme, query string and fragment never reach the name.
func DeriveFilename(link, defaultExt string) string {
	if defaultExt == "" {
		defaultExt = DefaultExtension
	}
	p := pathLike(link)
	ext := sanitizeExt(ExtensionOf(p))
	if ext == "" {
		ext = defaultExt
	}
	return DeriveBaseSlug(p) + ext
}

// DeriveAssetDirName returns the directory name holding the assets of link.
func DeriveAssetDirName(link string) string {
	return DeriveBaseSlug(pathLike(link)) + AssetDirSuffix
}

// ExtensionOf returns the extension of filename including the dot, or "".
func ExtensionOf(filename string) string {
	return path.Ext(filename)
}

// PageFilename names the HTML file a page is saved under. The result always
// ends in ".html"; pages served as e.g. index.php become index.php.html.
func PageFilename(u *url.URL) string {
	name := DeriveFilename(hostPath(u), DefaultExtension)
	if ExtensionOf(name) != DefaultExtension {
		name += DefaultExtension
	}
	return name
}

// PageAssetDirName names the asset directory sitting next to a saved page.
func PageAssetDirName(u *url.URL) string {
	return DeriveAssetDirName(hostPath(u))
}

// WithSuffix inserts "-suffix" between the stem and the extension of filename.
func WithSuffix(filename, suffix string) string {
	if suffix == "" {
		return filename
	}
	ext := ExtensionOf(filename)
	return strings.TrimSuffix(filename, ext) + "-" + suffix + ext
}

func slugify(s string) string {
	return strings.ToLower(nonAlphanumeric.ReplaceAllString(s, "-"))
}

// pathLike turns an absolute http(s) URL into "host/path". Anything else is
// returned untouched and treated as a plain path.
func pathLike(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return link
	}
	return hostPath(u)
}

// hostPath joins hostname and path; the port is left out. A bare host gets a
// trailing slash so its TLD is never mistaken for a file extension.
func hostPath(u *url.URL) string {
	p := u.Path
	if p == "" {
		p = "/"
	}
	return u.Hostname() + p
}

func sanitizeExt(ext string) string {
	if len(ext) <= 1 {
		return ""
	}
	return "." + nonAlphanumeric.ReplaceAllString(ext[1:], "-")
}
