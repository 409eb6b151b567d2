package archive

import (
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// imageExtensions are the file types the archive serves as wallpapers
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
	".bmp":  {},
}

// listingEntry is one usable link from a directory index page
type listingEntry struct {
	// URL is the absolute, resolved link target.
	URL *url.URL
	// Name is the decoded last path segment.
	Name string
	// Dir reports whether the link points at a subdirectory.
	Dir bool
}

// parseListing extracts directory and image links from an autoindex-style
// HTML page. Navigation links (parent, root, sort toggles), cross-host links
// and files with unrecognized extensions are dropped. Relative hrefs are
// resolved against base.
func parseListing(base *url.URL, r io.Reader) ([]listingEntry, error) {
	var entries []listingEntry

	tokenizer := html.NewTokenizer(r)
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != io.EOF {
				return nil, err
			}
			return entries, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			if string(tn) != "a" || !hasAttr {
				continue
			}

			var href string
			for {
				key, val, more := tokenizer.TagAttr()
				if string(key) == "href" {
					href = string(val)
				}
				if !more {
					break
				}
			}

			entry, ok := classifyHref(base, href)
			if ok {
				entries = append(entries, entry)
			}
		}
	}
}

// classifyHref resolves one anchor href and decides whether it is a theme
// directory, an image file, or noise.
func classifyHref(base *url.URL, href string) (listingEntry, bool) {
	if href == "" || strings.HasPrefix(href, "?") || strings.HasPrefix(href, "#") {
		return listingEntry{}, false
	}
	if href == ".." || href == "../" || href == "/" || href == "./" {
		return listingEntry{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return listingEntry{}, false
	}
	resolved := base.ResolveReference(ref)
	resolved.RawQuery = ""
	resolved.Fragment = ""

	// Index pages sometimes carry absolute links; only follow the archive's
	// own host.
	if resolved.Host != base.Host {
		return listingEntry{}, false
	}

	// Parent and self links resolve to the base path or above it.
	if !strings.HasPrefix(resolved.Path, base.Path) || resolved.Path == base.Path {
		return listingEntry{}, false
	}

	name := lastSegment(resolved.Path)
	if name == "" {
		return listingEntry{}, false
	}

	if isDirPath(resolved.Path) {
		return listingEntry{URL: resolved, Name: name, Dir: true}, true
	}
	if isImageName(name) {
		return listingEntry{URL: resolved, Name: name, Dir: false}, true
	}
	return listingEntry{}, false
}

// lastSegment returns the final path segment, ignoring a trailing slash.
// url.URL.Path is already percent-decoded.
func lastSegment(p string) string {
	segment := path.Base(strings.TrimSuffix(p, "/"))
	if segment == "." || segment == "/" {
		return ""
	}
	return segment
}

// isDirPath treats a trailing slash or an extension-less last segment as a
// directory, matching how index pages link subfolders.
func isDirPath(p string) bool {
	if strings.HasSuffix(p, "/") {
		return true
	}
	return !strings.Contains(path.Base(p), ".")
}

// isImageName reports whether the file name carries a supported image
// extension.
func isImageName(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	_, ok := imageExtensions[ext]
	return ok
}
