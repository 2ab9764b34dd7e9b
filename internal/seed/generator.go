package seed

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/okian/eventhub/internal/domain/model"
	"github.com/okian/eventhub/pkg/logger"
)

// Constants for draft generation.
const (
	hostPoolDivisor = 10
	horizonDays     = 90
	minuteSlots     = 4
	firstHour       = 9
	hourRange       = 14
	maxPriceCents   = 15000
	centsPerUnit    = 100
)

// Constants for price kind cases.
const (
	casePriceFree    = 0
	casePriceUnknown = 1
	priceCases       = 4
)

var titleStems = map[model.Category][]string{
	model.CategoryMusic:      {"Jazz Night", "Indie Showcase", "Open Mic", "Orchestra Evening"},
	model.CategoryTech:       {"Go Meetup", "Cloud Summit", "Hack Night", "AI Workshop"},
	model.CategoryFood:       {"Street Food Market", "Wine Tasting", "Supper Club", "Baking Class"},
	model.CategoryArt:        {"Gallery Opening", "Life Drawing", "Print Fair", "Sculpture Walk"},
	model.CategorySports:     {"5-a-side League", "Park Run", "Climbing Social", "Yoga in the Park"},
	model.CategoryEducation:  {"History Talk", "Language Exchange", "Science Lecture", "Study Circle"},
	model.CategoryNetworking: {"Founders Breakfast", "Product Mixer", "Careers Fair", "Freelancer Drinks"},
	model.CategoryFree:       {"Community Cleanup", "Library Social", "Board Game Night", "Book Swap"},
	model.CategoryOther:      {"Pop-up Event", "Neighbourhood Fete", "Charity Quiz", "Flea Market"},
}

var venues = []model.Location{
	{Address: "1 Canal Street", City: "London", Coordinates: &model.Coordinates{Latitude: 51.5072, Longitude: -0.1276}},
	{Address: "22 Quay Road", City: "Manchester", Coordinates: &model.Coordinates{Latitude: 53.4808, Longitude: -2.2426}},
	{Address: "5 Royal Mile", City: "Edinburgh"},
	{Address: "12 Harbour Side", City: "Bristol", Coordinates: &model.Coordinates{Latitude: 51.4545, Longitude: -2.5879}},
	{Address: "", City: "Leeds"},
}

// randomInt returns a uniform integer in [0, n) using crypto/rand.
func randomInt(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// generateDrafts creates cfg.NumEvents valid drafts spread over a small pool of hosts.
func generateDrafts(ctx context.Context, cfg *Config, stats *Stats, now time.Time) ([]model.Draft, error) {
	logger.Get().Info(ctx, "generating drafts", logger.Int("numEvents", cfg.NumEvents))

	hosts := make([]string, cfg.NumEvents/hostPoolDivisor+1)
	for i := range hosts {
		hosts[i] = uuid.New().String()
	}

	type draftResult struct {
		index int
		draft model.Draft
		err   error
	}

	drafts := make([]model.Draft, cfg.NumEvents)
	resultChan := make(chan draftResult, cfg.NumEvents)

	workerCount := min(cfg.Workers, cfg.NumEvents)
	perWorker := cfg.NumEvents / workerCount

	for w := 0; w < workerCount; w++ {
		start := w * perWorker
		end := start + perWorker
		if w == workerCount-1 {
			end = cfg.NumEvents
		}

		go func(start, end int) {
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					resultChan <- draftResult{index: i, err: ctx.Err()}
					return
				default:
					resultChan <- draftResult{index: i, draft: generateSingleDraft(i, hosts[i%len(hosts)], now)}
				}
			}
		}(start, end)
	}

	for i := 0; i < cfg.NumEvents; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during draft generation: %w", ctx.Err())
		case result := <-resultChan:
			if result.err != nil {
				return nil, fmt.Errorf("failed to generate draft %d: %w", result.index, result.err)
			}
			drafts[result.index] = result.draft
		}
	}

	stats.DraftsGenerated = len(drafts)
	logger.Get().Info(ctx, "generated drafts successfully", logger.Int("count", len(drafts)))

	return drafts, nil
}

// generateSingleDraft creates one draft dated within the next horizonDays of now.
func generateSingleDraft(index int, hostID string, now time.Time) model.Draft {
	all := model.Categories()
	category := all[randomInt(len(all))]
	stems := titleStems[category]
	venue := venues[randomInt(len(venues))]

	when := now.AddDate(0, 0, 1+randomInt(horizonDays))
	when = time.Date(when.Year(), when.Month(), when.Day(),
		firstHour+randomInt(hourRange), randomInt(minuteSlots)*15, 0, 0, time.UTC)

	return model.Draft{
		Title:       fmt.Sprintf("%s #%d", stems[randomInt(len(stems))], index+1),
		Description: fmt.Sprintf("Seeded %s event in %s.", category, venue.City),
		Date:        when.Format(model.DateLayout),
		Time:        when.Format(model.TimeLayout),
		Location:    venue,
		Price:       generatePrice(category),
		Category:    category,
		HostID:      hostID,
		HostName:    "Seed Host " + hostID[:8],
	}
}

// generatePrice mixes free, unknown and priced values. Free events are always free.
func generatePrice(c model.Category) float64 {
	if c == model.CategoryFree {
		return model.PriceFree
	}
	switch randomInt(priceCases) {
	case casePriceFree:
		return model.PriceFree
	case casePriceUnknown:
		return model.PriceUnknown
	default:
		return float64(centsPerUnit+randomInt(maxPriceCents)) / centsPerUnit
	}
}
