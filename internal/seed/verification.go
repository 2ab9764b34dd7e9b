package seed

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/okian/eventhub/internal/domain/model"
	"github.com/okian/eventhub/pkg/logger"
)

// verifyResults checks that every created event is present in the collection
// with the fields it was submitted with.
func verifyResults(ctx context.Context, client *resty.Client, records []Record, stats *Stats) error {
	log := logger.Get().Named("seed")
	log.Info(ctx, "verifying results")

	list, err := fetchAll(ctx, client)
	if err != nil {
		return err
	}

	byID := make(map[string]model.Event, len(list.Events))
	for _, e := range list.Events {
		byID[e.ID] = e
	}

	var mismatched int
	for _, r := range records {
		if r.Status != StatusCreated {
			continue
		}
		e, ok := byID[r.ID]
		if !ok {
			stats.EventsMissing++
			log.Debug(ctx, "created event missing", logger.String("id", r.ID))
			continue
		}
		if err := matchDraft(e, r.Draft); err != nil {
			mismatched++
			log.Warn(ctx, "event differs from draft", logger.String("id", r.ID), logger.Error(err))
			continue
		}
		stats.EventsVerified++
	}

	log.Info(ctx, "result verification completed",
		logger.Int("collection", list.Count),
		logger.Int("verified", stats.EventsVerified),
		logger.Int("missing", stats.EventsMissing),
		logger.Int("mismatched", mismatched))

	if stats.EventsMissing > 0 || mismatched > 0 {
		return fmt.Errorf("%w: %d missing, %d mismatched", ErrVerification, stats.EventsMissing, mismatched)
	}
	return nil
}

// matchDraft compares the fields the store must keep verbatim.
func matchDraft(e model.Event, d model.Draft) error {
	switch {
	case e.Title != d.Title:
		return fmt.Errorf("title %q != %q", e.Title, d.Title)
	case e.Category != d.Category:
		return fmt.Errorf("category %q != %q", e.Category, d.Category)
	case e.Date != d.Date || e.Time != d.Time:
		return fmt.Errorf("schedule %s %s != %s %s", e.Date, e.Time, d.Date, d.Time)
	case e.HostID != d.HostID:
		return fmt.Errorf("host %q != %q", e.HostID, d.HostID)
	case e.Price != d.Price:
		return fmt.Errorf("price %v != %v", e.Price, d.Price)
	case e.IsExternal():
		return fmt.Errorf("id %q carries the external prefix", e.ID)
	}
	return nil
}
