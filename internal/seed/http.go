package seed

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/okian/eventhub/internal/domain/model"
	"github.com/okian/eventhub/internal/domain/types"
	"github.com/okian/eventhub/pkg/logger"
)

type createResponse struct {
	ID string `json:"id"`
}

// newHTTPClient creates a resty client bound to the service base URL.
func newHTTPClient(cfg *Config) *resty.Client {
	return resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
}

// submitDrafts posts drafts concurrently and returns one record per draft, in input order.
func submitDrafts(ctx context.Context, cfg *Config, client *resty.Client, drafts []model.Draft, stats *Stats) []Record {
	log := logger.Get().Named("seed")
	log.Info(ctx, "submitting drafts", logger.Int("count", len(drafts)), logger.Int("workers", cfg.Workers))

	records := make([]Record, len(drafts))
	var (
		created   int64
		rejected  int64
		failed    int64
		submitted int64
	)

	var reportMu sync.Mutex
	lastReport := time.Now()

	indexChan := make(chan int, cfg.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for index := range indexChan {
				if ctx.Err() != nil {
					records[index] = Record{Status: StatusFailed, Draft: drafts[index]}
					atomic.AddInt64(&failed, 1)
					continue
				}
				id, status := submitSingleDraft(ctx, client, drafts[index])
				records[index] = Record{ID: id, Status: status, Draft: drafts[index]}

				atomic.AddInt64(&submitted, 1)
				switch status {
				case StatusCreated:
					atomic.AddInt64(&created, 1)
				case StatusRejected:
					atomic.AddInt64(&rejected, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}

				if !cfg.Verbose {
					continue
				}
				reportMu.Lock()
				if time.Since(lastReport) >= progressInterval {
					lastReport = time.Now()
					log.Info(ctx, "progress",
						logger.Int("submitted", int(atomic.LoadInt64(&submitted))),
						logger.Int("total", len(drafts)),
						logger.Int("created", int(atomic.LoadInt64(&created))),
						logger.Int("rejected", int(atomic.LoadInt64(&rejected))),
						logger.Int("failed", int(atomic.LoadInt64(&failed))))
				}
				reportMu.Unlock()
			}
		}()
	}

	for i := range drafts {
		indexChan <- i
	}
	close(indexChan)
	wg.Wait()

	stats.DraftsSubmitted = int(submitted)
	stats.EventsCreated = int(created)
	stats.DraftsRejected = int(rejected)
	stats.DraftsFailed = int(failed)

	log.Info(ctx, "draft submission completed",
		logger.Int("created", stats.EventsCreated),
		logger.Int("rejected", stats.DraftsRejected),
		logger.Int("failed", stats.DraftsFailed))

	return records
}

// submitSingleDraft posts one draft and classifies the outcome.
func submitSingleDraft(ctx context.Context, client *resty.Client, d model.Draft) (string, string) {
	var out createResponse
	resp, err := client.R().
		SetContext(ctx).
		SetBody(d).
		SetResult(&out).
		Post("/events")
	if err != nil {
		return "", StatusFailed
	}

	switch resp.StatusCode() {
	case http.StatusCreated:
		if out.ID == "" {
			return "", StatusFailed
		}
		return out.ID, StatusCreated
	case http.StatusBadRequest:
		return "", StatusRejected
	default:
		return "", StatusFailed
	}
}

// fetchAll reads the full aggregated collection.
func fetchAll(ctx context.Context, client *resty.Client) (types.EventList, error) {
	var list types.EventList
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&list).
		Get("/events/all")
	if err != nil {
		return types.EventList{}, fmt.Errorf("failed to fetch events: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.EventList{}, fmt.Errorf("failed to fetch events: status %d", resp.StatusCode())
	}
	return list, nil
}
