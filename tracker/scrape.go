// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package tracker

import (
	"github.com/majestrate/i2ptracker/stats"
	"github.com/majestrate/i2ptracker/tracker/models"
)

// HandleScrape encapsulates all the logic of handling a BitTorrent client's
// scrape without being coupled to any transport protocol. Unknown
// info-hashes are reported back as zeroed entries rather than an error,
// matching BEP3.
func (tkr *Tracker) HandleScrape(scrape *models.Scrape) (*models.ScrapeResponse, error) {
	torrents := make([]*models.Torrent, 0, len(scrape.Infohashes))
	for _, infohash := range scrape.Infohashes {
		if t, ok := tkr.LookupTorrent(infohash); ok {
			torrents = append(torrents, t)
			continue
		}
		torrents = append(torrents, &models.Torrent{Infohash: infohash})
	}

	stats.RecordEvent(stats.Scrape)
	return &models.ScrapeResponse{Files: torrents}, nil
}
