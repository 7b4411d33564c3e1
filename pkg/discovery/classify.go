/*
Copyright the Varco contributors 2023

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package discovery

import (
	"net/url"
	"path"
	"strings"

	"github.com/varcolabs/varco/pkg/scan"
)

// deniedExtensions are binary and media types the crawler never enqueues;
// scanners only make sense on HTML documents.
var deniedExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".zip": true, ".tar": true, ".gz": true,
	".rar": true, ".7z": true, ".exe": true, ".dmg": true, ".apk": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".svg": true, ".ico": true, ".bmp": true, ".tif": true, ".tiff": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".wmv": true,
	".flv": true, ".ogg": true, ".wav": true, ".webm": true,
	".css": true, ".js": true, ".json": true, ".xml": true, ".rss": true,
}

// Keyword sets for page-type classification; Italian variants included
// because EAA audits are mostly run against Italian sites.
var (
	contactKeywords = []string{"contact", "contatti", "contattaci", "kontakt"}
	contentKeywords = []string{"blog", "news", "article", "articolo", "about", "chi-siamo", "storia", "servizi", "service"}
)

// deniedExtension reports whether a normalized URL points at a non-HTML
// resource by extension.
func deniedExtension(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	ext := strings.ToLower(path.Ext(u.Path))
	return deniedExtensions[ext]
}

// classify tags a page with its coarse type from URL path and title
// heuristics. Depth 0 at the root path is the homepage; contact keywords
// win over form counting because contact pages usually carry a form.
func classify(rawURL, title string, depth int, counts scan.ElementCounts) scan.PageType {
	u, err := url.Parse(rawURL)
	if err != nil {
		return scan.PageOther
	}

	haystack := strings.ToLower(u.Path + " " + title)

	if depth == 0 && (u.Path == "/" || u.Path == "") {
		return scan.PageHomepage
	}
	for _, kw := range contactKeywords {
		if strings.Contains(haystack, kw) {
			return scan.PageContact
		}
	}
	if counts.Forms > 0 && counts.Inputs >= 2 {
		return scan.PageForm
	}
	for _, kw := range contentKeywords {
		if strings.Contains(haystack, kw) {
			return scan.PageContent
		}
	}
	return scan.PageOther
}
