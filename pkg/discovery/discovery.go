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

// Package discovery crawls the target site to produce the prioritized page
// list a scan will run against. The crawl is a bounded same-host BFS with
// a small concurrent fetch pool; it degrades to partial results on
// timeouts rather than failing the scan, except when the seed itself is
// unreachable.
package discovery

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/varcolabs/varco/pkg/config"
	"github.com/varcolabs/varco/pkg/scan"
)

// maxBodyBytes caps how much HTML one fetch will read; pages beyond this
// are parsed from their truncated prefix.
const maxBodyBytes = 2 << 20

// Bounds limits the crawl.
type Bounds struct {
	MaxPages int
	MaxDepth int
}

// Discoverer crawls one site at a time. The zero value is not usable;
// build one with New.
type Discoverer struct {
	client       *http.Client
	concurrency  int
	fetchTimeout time.Duration
	phaseTimeout time.Duration
}

// New builds a Discoverer from the engine configuration.
func New(cfg *config.Config) *Discoverer {
	transport := &http.Transport{
		MaxConnsPerHost:     cfg.DiscoveryConcurrency,
		MaxIdleConnsPerHost: cfg.DiscoveryConcurrency,
	}
	return &Discoverer{
		client:       &http.Client{Transport: transport},
		concurrency:  cfg.DiscoveryConcurrency,
		fetchTimeout: cfg.DiscoveryFetchTimeout(),
		phaseTimeout: cfg.DiscoveryPhaseTimeout(),
	}
}

// fetched is what one successful page fetch yields.
type fetched struct {
	page  scan.PageRef
	links []string
}

// Discover runs the bounded BFS from seed. The returned list is
// deduplicated after normalization, never exceeds bounds.MaxPages or
// bounds.MaxDepth, and always has the seed first. An unreachable seed is
// an error; any later failure only trims the result.
func (d *Discoverer) Discover(ctx context.Context, seed string, bounds Bounds) ([]scan.PageRef, error) {
	seedURL, err := scan.NormalizeURL(seed)
	if err != nil {
		return nil, errors.Wrap(err, "invalid seed url")
	}
	if bounds.MaxPages < 1 {
		bounds.MaxPages = 1
	}
	if bounds.MaxDepth < 1 {
		bounds.MaxDepth = 1
	}

	phaseCtx, cancel := context.WithTimeout(ctx, d.phaseTimeout)
	defer cancel()

	log := logrus.WithField("url", seedURL)

	seedPage, err := d.fetch(phaseCtx, seedURL, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching seed %v", seedURL)
	}

	pages := []scan.PageRef{seedPage.page}
	visited := map[string]bool{seedURL: true}
	frontier := d.nextFrontier(seedURL, seedPage.links, visited)

	for depth := 1; depth <= bounds.MaxDepth && len(pages) < bounds.MaxPages && len(frontier) > 0; depth++ {
		if phaseCtx.Err() != nil {
			log.Warning("discovery phase timeout, returning partial page list")
			break
		}

		// Fetch the whole level concurrently, then append results in
		// frontier order so the page list is deterministic.
		results := make([]*fetched, len(frontier))
		g, fetchCtx := errgroup.WithContext(phaseCtx)
		g.SetLimit(d.concurrency)
		for i, pageURL := range frontier {
			i, pageURL := i, pageURL
			g.Go(func() error {
				f, err := d.fetch(fetchCtx, pageURL, depth)
				if err != nil {
					logrus.WithField("url", pageURL).WithError(err).Info("skipping unreachable page")
					return nil
				}
				results[i] = f
				return nil
			})
		}
		// Fetch errors are swallowed above; Wait only reports ctx errors.
		if err := g.Wait(); err != nil && phaseCtx.Err() == nil {
			log.WithError(err).Warning("discovery level aborted")
		}

		var links []string
		for _, f := range results {
			if f == nil {
				continue
			}
			if len(pages) < bounds.MaxPages {
				pages = append(pages, f.page)
			}
			links = append(links, f.links...)
		}
		if depth == bounds.MaxDepth {
			break
		}
		frontier = d.nextFrontier(seedURL, links, visited)
	}

	return pages, nil
}

// fetch GETs one page and builds its PageRef plus the outgoing link set.
func (d *Discoverer) fetch(ctx context.Context, pageURL string, depth int) (*fetched, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("User-Agent", "varco-discovery/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching page")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("unexpected status %v", resp.StatusCode)
	}

	doc, err := parsePage(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "parsing html")
	}

	page := scan.PageRef{
		URL:      pageURL,
		Depth:    depth,
		Type:     classify(pageURL, doc.title, depth, doc.counts),
		Priority: scan.PriorityForDepth(depth),
		Elements: doc.counts,
	}
	return &fetched{page: page, links: doc.links}, nil
}

// nextFrontier resolves and filters the raw hrefs of one BFS level into
// the next level's unique fetchable URLs.
func (d *Discoverer) nextFrontier(seedURL string, hrefs []string, visited map[string]bool) []string {
	base, err := url.Parse(seedURL)
	if err != nil {
		return nil
	}

	var out []string
	for _, href := range hrefs {
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		normalized, err := scan.NormalizeURL(resolved.String())
		if err != nil {
			continue
		}
		if !scan.SameHost(seedURL, normalized) {
			continue
		}
		if deniedExtension(normalized) {
			continue
		}
		if visited[normalized] {
			continue
		}
		visited[normalized] = true
		out = append(out, normalized)
	}
	return out
}
