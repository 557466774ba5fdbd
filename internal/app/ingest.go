package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/Fuchsoria/revenue-admin/internal/storage"
)

const (
	ReasonUnknownNetwork = "unknown_network"

	RoutingIngestionCompleted = "ingestion.completed"

	outcomeOK             = "ok"
	outcomeUnknownNetwork = ReasonUnknownNetwork
	outcomeParseError     = "parse_error"
	outcomeStorageError   = "storage_error"
)

type IngestRequest struct {
	UserID    int64
	ChannelID int64
	SiteID    int64
	Filename  string
	Body      io.Reader
}

// IngestResult describes one report ingestion. OK is false with a Reason when the report
// was stored but could not be processed, which is not an error for the caller.
type IngestResult struct {
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
	Network    string `json:"network"`
	StoredPath string `json:"stored_path"`
	Parsed     int    `json:"parsed"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
}

type ingestionEvent struct {
	UserID     int64  `json:"user_id"`
	SiteID     int64  `json:"site_id"`
	ChannelID  int64  `json:"channel_id"`
	Network    string `json:"network"`
	File       string `json:"file"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
}

// Ingest stores an uploaded report in its network directory, decodes the revenue of the
// requested site and persists the days not recorded yet. Existing records are never updated.
func (a *App) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	started := time.Now()

	user, err := a.storage.GetUser(ctx, req.UserID)
	if err != nil {
		return IngestResult{}, notFound("user", req.UserID, err)
	}

	channel, err := a.storage.GetChannel(ctx, req.ChannelID)
	if err != nil {
		return IngestResult{}, notFound("channel", req.ChannelID, err)
	}

	site, err := a.storage.GetSite(ctx, req.SiteID)
	if err != nil {
		return IngestResult{}, notFound("site", req.SiteID, err)
	}

	if site.UserID != user.ID {
		return IngestResult{}, fmt.Errorf("site %d of user %d %w", site.ID, user.ID, ErrNotFound)
	}

	upload, err := a.uploads.Stage(channel.Name, req.Filename, req.Body)
	if err != nil {
		return IngestResult{}, fmt.Errorf("cannot store upload, %w", err)
	}

	defer func() {
		if err := upload.Discard(); err != nil {
			a.logger.Warn("cannot remove staged upload", "file", upload.Path, "error", err)
		}
	}()

	result := IngestResult{Network: channel.Name}

	decoder, ok := a.parsers.Resolve(channel.Name)
	if !ok {
		if result.StoredPath, err = upload.Commit(); err != nil {
			return IngestResult{}, fmt.Errorf("cannot store upload, %w", err)
		}

		a.logger.Warn("no parser for network, report stored without ingestion",
			"network", channel.Name, "site", site.Link, "file", result.StoredPath)
		result.Reason = ReasonUnknownNetwork
		a.metrics.ObserveIngestion(channel.Name, outcomeUnknownNetwork, 0, 0, time.Since(started))

		return result, nil
	}

	// the staged copy is decoded, the shared final name may be replaced by a concurrent upload
	data, decodeErr := decoder.Decode(upload.Path, site.Link)

	if result.StoredPath, err = upload.Commit(); err != nil {
		return IngestResult{}, fmt.Errorf("cannot store upload, %w", err)
	}

	path := result.StoredPath

	if decodeErr != nil {
		a.metrics.ObserveIngestion(channel.Name, outcomeParseError, 0, 0, time.Since(started))

		return result, fmt.Errorf("cannot decode %s report %s, %w", channel.Name, filepath.Base(path), decodeErr)
	}

	result.Parsed = len(data)

	release, err := a.locker.Acquire(ctx, "site:"+strconv.FormatInt(site.ID, 10))
	if err != nil {
		return result, fmt.Errorf("cannot lock site %d, %w", site.ID, err)
	}

	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("cannot release site lock", "site_id", site.ID, "error", err)
		}
	}()

	days := make([]time.Time, 0, len(data))
	for day := range data {
		days = append(days, day)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	existing, err := a.storage.GetRevenueDays(ctx, site.ID, days)
	if err != nil {
		a.metrics.ObserveIngestion(channel.Name, outcomeStorageError, 0, 0, time.Since(started))

		return result, fmt.Errorf("cannot look up recorded days, %w", err)
	}

	recorded := make(map[time.Time]bool, len(existing))
	for _, day := range existing {
		recorded[storage.Day(day)] = true
	}

	records := make([]storage.RevenueRecord, 0, len(days))

	for _, day := range days {
		if recorded[day] {
			a.logger.Debug("revenue already recorded, skipping", "site_id", site.ID, "day", day.Format("2006-01-02"))

			continue
		}

		records = append(records, storage.RevenueRecord{
			UserID:    user.ID,
			SiteID:    site.ID,
			ChannelID: channel.ID,
			Day:       day,
			Revenue:   data[day].Revenue,
		})
	}

	inserted, err := a.storage.InsertRevenueRecords(ctx, records)
	if err != nil {
		a.metrics.ObserveIngestion(channel.Name, outcomeStorageError, 0, 0, time.Since(started))

		return result, fmt.Errorf("cannot store revenue records, %w", err)
	}

	result.OK = true
	result.Inserted = int(inserted)
	result.Duplicates = len(days) - int(inserted)

	a.metrics.ObserveIngestion(channel.Name, outcomeOK, result.Inserted, result.Duplicates, time.Since(started))
	a.logger.Info("revenue report ingested",
		"user_id", user.ID, "site", site.Link, "network", channel.Name,
		"parsed", result.Parsed, "inserted", result.Inserted, "duplicates", result.Duplicates)

	a.publish(ctx, RoutingIngestionCompleted, ingestionEvent{
		UserID:     user.ID,
		SiteID:     site.ID,
		ChannelID:  channel.ID,
		Network:    channel.Name,
		File:       filepath.Base(path),
		Inserted:   result.Inserted,
		Duplicates: result.Duplicates,
	})

	return result, nil
}

// publish is best effort, the ingested data is already committed.
func (a *App) publish(ctx context.Context, routingKey string, event interface{}) {
	body, err := json.Marshal(event)
	if err != nil {
		a.logger.Error("cannot encode event", "routing_key", routingKey, "error", err)

		return
	}

	if err := a.producer.Publish(ctx, routingKey, body); err != nil {
		a.logger.Warn("cannot publish event", "routing_key", routingKey, "error", err)
	}
}
