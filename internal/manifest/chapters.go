package manifest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const chapterListSelector = "ul#chapter-list-1"

// Chapter is one entry of a gallery's chapter index.
type Chapter struct {
	Title     string // Visible label, used as the chapter's directory name
	SourceRef string // Link target, possibly relative to the gallery host
}

// ChapterList keeps chapters in page order. A title seen twice keeps its
// first position and takes the later link.
type ChapterList []Chapter

// ExtractChapterList pairs every link inside the chapter-list container with
// the text of its <span> label.
func ExtractChapterList(c Content) (ChapterList, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(c.text))
	if err != nil {
		return nil, &ExtractionError{Reason: ReasonChapterListNotFound, Err: err}
	}

	container := doc.Find(chapterListSelector).First()
	if container.Length() == 0 {
		return nil, &ExtractionError{Reason: ReasonChapterListNotFound}
	}

	var list ChapterList

	positions := make(map[string]int)

	container.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")

		title := strings.TrimSpace(a.Find("span").First().Text())
		if title == "" {
			title = strings.TrimSpace(a.Text())
		}

		if title == "" {
			return
		}

		if i, ok := positions[title]; ok {
			list[i].SourceRef = href

			return
		}

		positions[title] = len(list)
		list = append(list, Chapter{Title: title, SourceRef: href})
	})

	return list, nil
}
