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

package engine

import (
	"strings"

	"github.com/varcolabs/varco/pkg/scan"
)

// simulatedSite is the fixed page set fabricated in simulate mode, rooted
// at the request's seed. Paths mirror a typical small company site.
var simulatedSite = []struct {
	path  string
	typ   scan.PageType
	depth int
}{
	{"", scan.PageHomepage, 0},
	{"/chi-siamo", scan.PageContent, 1},
	{"/servizi", scan.PageContent, 1},
	{"/contatti", scan.PageContact, 1},
	{"/preventivo", scan.PageForm, 2},
}

// simulatePages fabricates up to MaxPages deterministic PageRefs without
// touching the network. The seed is always first, and entries deeper than
// MaxDepth are excluded just as the real crawler would never reach them.
func simulatePages(req scan.Request) []scan.PageRef {
	base := strings.TrimRight(req.URL, "/")

	pages := make([]scan.PageRef, 0, len(simulatedSite))
	for _, entry := range simulatedSite {
		if entry.depth > req.MaxDepth {
			continue
		}
		if len(pages) == req.MaxPages {
			break
		}
		url := base + entry.path
		if entry.path == "" {
			url = req.URL
		}
		pages = append(pages, scan.PageRef{
			URL:      url,
			Depth:    entry.depth,
			Type:     entry.typ,
			Priority: scan.PriorityForDepth(entry.depth),
			Elements: scan.ElementCounts{Links: 12, Images: 4, Forms: 1, Inputs: 3},
		})
	}
	return pages
}
