package docs

import (
	"net/url"
	"strconv"
	"strings"
)

// ViewerURL links to the page-anchored viewer for a document. The page
// parameter is only added for positive pages.
func (r *Resolver) ViewerURL(baseURL, localName string, page int) string {
	name := localName
	if actual, ok := r.Resolve(localName); ok {
		name = actual
	}
	u := strings.TrimRight(baseURL, "/") + "/viewer/" + url.PathEscape(name)
	if page > 0 {
		u += "?page=" + strconv.Itoa(page)
	}
	return u
}
