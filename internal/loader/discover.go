package loader

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-loader/internal/naming"
)

// disambiguatorLen is the number of digest characters appended to a
// filename that collides with one already taken.
const disambiguatorLen = 8

type resourceSelector struct {
	selector string
	attr     string
}

// resourceSelectors are visited in order; elements within one selector are
// visited in document order.
var resourceSelectors = []resourceSelector{
	{selector: "img[src]", attr: "src"},
	{selector: `link[rel~="stylesheet"][href]`, attr: "href"},
	{selector: "script[src]", attr: "src"},
}

// Discoverer finds same-host resources in a document and rewrites their
// references to point into the asset directory.
type Discoverer struct {
	hasher Hasher
	logger *zap.Logger
}

// NewDiscoverer builds a Discoverer.
func NewDiscoverer(hasher Hasher, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{hasher: hasher, logger: logger}
}

// DiscoverResources walks doc, rewrites every qualifying attribute in place
// and returns one Resource per distinct absolute URL. References to other
// hosts, non-http(s) schemes and unparsable values are left untouched.
func (d *Discoverer) DiscoverResources(
	doc *goquery.Document,
	pageURL *url.URL,
	assetDirName string,
	assetsDirAbs string,
) []Resource {
	var (
		resources []Resource
		byURL     = make(map[string]int)
		taken     = make(map[string]struct{})
	)
	for _, rs := range resourceSelectors {
		doc.Find(rs.selector).Each(func(_ int, s *goquery.Selection) {
			raw, _ := s.Attr(rs.attr)
			abs, ok := d.resolve(strings.TrimSpace(raw), pageURL)
			if !ok {
				return
			}
			key := abs.String()
			if idx, seen := byURL[key]; seen {
				s.SetAttr(rs.attr, resources[idx].RelativePath)
				return
			}
			name := d.filenameFor(key, taken)
			taken[name] = struct{}{}
			res := Resource{
				URL:          key,
				DiskPath:     filepath.Join(assetsDirAbs, name),
				RelativePath: path.Join(assetDirName, name),
				Filename:     name,
			}
			byURL[key] = len(resources)
			resources = append(resources, res)
			s.SetAttr(rs.attr, res.RelativePath)
		})
	}
	return resources
}

func (d *Discoverer) resolve(raw string, pageURL *url.URL) (*url.URL, bool) {
	if raw == "" {
		return nil, false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		d.logger.Warn("skipping malformed resource reference",
			zap.String("ref", raw),
			zap.Error(err),
		)
		return nil, false
	}
	abs := pageURL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil, false
	}
	if !sameHost(abs, pageURL) {
		return nil, false
	}
	abs.Host = strings.ToLower(abs.Host)
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs, true
}

// filenameFor derives the asset filename for link. When another URL already
// claimed that name, a digest of link is inserted before the extension.
func (d *Discoverer) filenameFor(link string, taken map[string]struct{}) string {
	name := naming.DeriveFilename(link, "")
	if _, clash := taken[name]; !clash {
		return name
	}
	suffix := d.digest(link)
	candidate := naming.WithSuffix(name, suffix)
	for i := 2; ; i++ {
		if _, clash := taken[candidate]; !clash && candidate != name {
			return candidate
		}
		candidate = naming.WithSuffix(name, strings.TrimPrefix(fmt.Sprintf("%s-%d", suffix, i), "-"))
	}
}

func (d *Discoverer) digest(link string) string {
	if d.hasher == nil {
		return ""
	}
	sum, err := d.hasher.Hash([]byte(link))
	if err != nil {
		d.logger.Warn("hash resource url", zap.String("url", link), zap.Error(err))
		return ""
	}
	if len(sum) > disambiguatorLen {
		sum = sum[:disambiguatorLen]
	}
	return sum
}

func sameHost(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Hostname(), b.Hostname())
}
