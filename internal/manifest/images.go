package manifest

import (
	"regexp"
	"strings"
)

var (
	chapterImagesPattern = regexp.MustCompile(`var chapterImages = \[(.*?)\];`)
	chapterPathPattern   = regexp.MustCompile(`var chapterPath = "(.*?)";`)
)

// ImageManifest is the list of image filenames of one chapter and the path
// they live under on the resource host.
type ImageManifest struct {
	Filenames []string
	BasePath  string
}

// ExtractImageManifest reads the chapterImages array and chapterPath string
// assigned in the chapter page's inline script.
func ExtractImageManifest(c Content) (ImageManifest, error) {
	images := chapterImagesPattern.FindStringSubmatch(c.text)
	if images == nil {
		return ImageManifest{}, &ExtractionError{Reason: ReasonImageListNotFound}
	}

	path := chapterPathPattern.FindStringSubmatch(c.text)
	if path == nil {
		return ImageManifest{}, &ExtractionError{Reason: ReasonImagePathNotFound}
	}

	return ImageManifest{
		Filenames: splitFilenames(images[1]),
		BasePath:  path[1],
	}, nil
}

// splitFilenames keeps empty tokens as "" so every name stays at its position
// in the array; ordinals are derived from those positions.
func splitFilenames(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	tokens := strings.Split(raw, ",")

	names := make([]string, 0, len(tokens))
	for _, token := range tokens {
		names = append(names, unquote(strings.TrimSpace(token)))
	}

	return names
}

// unquote strips one pair of surrounding double quotes, leaving bare tokens alone.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}

	return s
}
