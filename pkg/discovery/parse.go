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
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/varcolabs/varco/pkg/scan"
)

// parsedPage is what a single HTML parse yields: the raw outgoing hrefs,
// the page title and rough element counts for page-type heuristics.
type parsedPage struct {
	links  []string
	title  string
	counts scan.ElementCounts
}

// parsePage walks the HTML node tree once, collecting links, the first
// title text and element counts.
func parsePage(r io.Reader) (*parsedPage, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "parsing html document")
	}

	page := &parsedPage{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				page.counts.Links++
				if href := attr(n, "href"); href != "" {
					page.links = append(page.links, href)
				}
			case "img":
				page.counts.Images++
			case "form":
				page.counts.Forms++
			case "input", "select", "textarea":
				page.counts.Inputs++
			case "title":
				if page.title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					page.title = strings.TrimSpace(n.FirstChild.Data)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return page, nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
