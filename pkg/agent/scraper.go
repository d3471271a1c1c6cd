package agent

import (
	"time"

	"github.com/cyw0ng95/sentinel/pkg/model"
	"github.com/cyw0ng95/sentinel/pkg/scrape"
)

// Scraper pulls the local metrics endpoint on a fixed tick and builds a
// MetricSample, degrading to a staleness-only sample on any failure so the
// broker and decision engine can still see the validator missed a beat.
type Scraper struct {
	client      *scrape.Client
	validatorID model.ValidatorId
	interval    time.Duration
}

// NewScraper builds a Scraper hitting url every interval.
func NewScraper(validatorID model.ValidatorId, url string, interval, timeout time.Duration) (*Scraper, error) {
	client, err := scrape.NewClient(url, timeout)
	if err != nil {
		return nil, err
	}
	return &Scraper{client: client, validatorID: validatorID, interval: interval}, nil
}

// Tick fetches one sample, falling back to a staleness-only sample if the
// scrape or parse fails.
func (s *Scraper) Tick() model.MetricSample {
	sample, err := s.client.Fetch(s.validatorID)
	if err != nil {
		return scrape.StaleSample(s.validatorID, time.Now())
	}
	return sample
}

// Interval returns the configured scrape cadence.
func (s *Scraper) Interval() time.Duration { return s.interval }
