package forum

import (
	"net/url"
	"strings"
)

// ForumPathPrefix is the absolute path under which forum pages are served.
const ForumPathPrefix = "/forum"

// Breadcrumb is one clickable entry of a resolved path bar.
type Breadcrumb struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// Breadcrumbs projects a resolved category chain into displayable links. The
// first entry is always the root pointing at the forum home; each following
// entry links to the path of percent-encoded names up to and including it.
// This is a pure projection over an already-resolved chain: it never consults
// the store, so breadcrumbs cannot disagree with the resolution they came from.
func Breadcrumbs(chain []Category) []Breadcrumb {
	if len(chain) == 0 {
		return nil
	}

	crumbs := make([]Breadcrumb, 0, len(chain))
	crumbs = append(crumbs, Breadcrumb{Label: chain[0].Name, Href: ForumPathPrefix})

	segments := make([]string, 0, len(chain)-1)
	for _, category := range chain[1:] {
		segments = append(segments, url.PathEscape(category.Name))
		crumbs = append(crumbs, Breadcrumb{
			Label: category.Name,
			Href:  ForumPathPrefix + "/" + strings.Join(segments, "/"),
		})
	}
	return crumbs
}
