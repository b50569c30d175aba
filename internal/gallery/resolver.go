// Package gallery maps a gallery identifier and the references found on its
// pages to absolute URLs. Nothing here performs I/O or validates its input.
package gallery

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/italolelis/comic_downloader/internal/manifest"
)

// ID identifies a remote gallery. It is both the URL segment of the gallery
// on the host and the name of its root directory in local storage.
type ID string

// Image is one page of a chapter. Ordinal is its 1-based position in the
// chapter's image manifest and never changes between runs.
type Image struct {
	Ordinal int
	URL     string
}

// Resolver composes URLs for one site: pages live under hostURL, images under resourceURL.
type Resolver struct {
	host     *url.URL
	resource *url.URL
	segment  string
}

func NewResolver(hostURL, resourceURL, pathSegment string) (*Resolver, error) {
	host, err := url.Parse(withTrailingSlash(hostURL))
	if err != nil {
		return nil, fmt.Errorf("invalid host url %q: %w", hostURL, err)
	}

	resource, err := url.Parse(withTrailingSlash(resourceURL))
	if err != nil {
		return nil, fmt.Errorf("invalid resource url %q: %w", resourceURL, err)
	}

	return &Resolver{
		host:     host,
		resource: resource,
		segment:  strings.Trim(pathSegment, "/"),
	}, nil
}

// ChapterIndexURL returns the page listing every chapter of the gallery.
func (r *Resolver) ChapterIndexURL(id ID) string {
	if r.segment == "" {
		return fmt.Sprintf("%s%s/#chapters", r.host, id)
	}

	return fmt.Sprintf("%s%s/%s/#chapters", r.host, r.segment, id)
}

// ChapterURL resolves a chapter reference taken from the index page against the host.
func (r *Resolver) ChapterURL(sourceRef string) string {
	return resolve(r.host, sourceRef)
}

// ImageURL resolves basePath against the resource host and appends filename as is.
func (r *Resolver) ImageURL(basePath, filename string) string {
	return resolve(r.resource, basePath) + filename
}

// Images assigns ordinals to a chapter's manifest in manifest order. An empty
// filename has no image but still uses up its ordinal.
func (r *Resolver) Images(m manifest.ImageManifest) []Image {
	images := make([]Image, 0, len(m.Filenames))
	for i, name := range m.Filenames {
		if name == "" {
			continue
		}

		images = append(images, Image{Ordinal: i + 1, URL: r.ImageURL(m.BasePath, name)})
	}

	return images
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		// Unparseable references are passed through rather than rejected.
		return base.String() + strings.TrimPrefix(ref, "/")
	}

	return base.ResolveReference(u).String()
}

func withTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}

	return s + "/"
}
