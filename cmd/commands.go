// Package cmd wires the configuration into the monitoring components
// and implements the subcommands of the osmwatch binary.
package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/osmwatch/osmwatch/audit"
	"github.com/osmwatch/osmwatch/cache"
	"github.com/osmwatch/osmwatch/changeset"
	"github.com/osmwatch/osmwatch/compare"
	"github.com/osmwatch/osmwatch/config"
	"github.com/osmwatch/osmwatch/notify"
	"github.com/osmwatch/osmwatch/oauth"
	"github.com/osmwatch/osmwatch/osmapi"
	"github.com/osmwatch/osmwatch/region"
	"github.com/osmwatch/osmwatch/server"
)

const monitorInterval = 5 * time.Minute

func newFetcher(conf *config.Config) (*osmapi.Client, *region.Set, *changeset.Fetcher) {
	regions, err := region.Load(conf.RegionsFile)
	if err != nil {
		logger.Fatal(err)
	}
	if conf.DefaultRegion != "" {
		if err := regions.SetDefault(conf.DefaultRegion); err != nil {
			logger.Fatal(err)
		}
	}
	rules, err := config.LoadSentinelRules(conf.RulesFile)
	if err != nil {
		logger.Fatal(err)
	}
	client := osmapi.New(conf.APIBaseURL, conf.RequestsPerSecond)
	fetcher := changeset.NewFetcher(client, regions, changeset.Options{
		TimeRange:             time.Duration(conf.TimeRangeHours) * time.Hour,
		MassDeletionThreshold: conf.MassDeletionThreshold,
		DetailWorkers:         conf.DetailWorkers,
		Rules:                 rules,
	})
	return client, regions, fetcher
}

func newComparer(client *osmapi.Client, conf *config.Config) *compare.Engine {
	var store *cache.BadgerDB
	if conf.CacheDir != "" {
		var err error
		store, err = cache.OpenBadger(filepath.Join(conf.CacheDir, "elements"))
		if err != nil {
			logger.Warnf("opening element cache: %s, running without", err)
			store = nil
		}
	}
	return compare.NewEngine(client, store, compare.Options{
		OldVersionWorkers: conf.OldVersionWorkers,
		GeometryWorkers:   conf.GeometryWorkers,
	})
}

func auditStores(ctx context.Context, conf *config.Config) changeset.AuditLog {
	stores := audit.Multi{}
	if conf.SheetsCredentials != "" && conf.SheetsSpreadsheetID != "" {
		sheets, err := audit.NewSheets(ctx, []byte(conf.SheetsCredentials), conf.SheetsSpreadsheetID)
		if err != nil {
			logger.Errorf("sheets audit log: %s", err)
		} else {
			stores = append(stores, sheets)
			logger.Printf("audit log: google sheet %s", conf.SheetsSpreadsheetID)
		}
	}
	if conf.AuditDatabaseURL != "" {
		pg, err := audit.OpenPostgres(conf.AuditDatabaseURL)
		if err != nil {
			logger.Errorf("postgres audit log: %s", err)
		} else {
			stores = append(stores, pg)
			logger.Printf("audit log: postgres")
		}
	}
	if len(stores) == 0 {
		return nil
	}
	return stores
}

// Serve runs the monitoring loop and the dashboard API.
func Serve(ctx context.Context, conf *config.Config) {
	client, regions, fetcher := newFetcher(conf)

	dedup, err := notify.LoadDedup(filepath.Join(conf.StateDir, ".alerted_changesets.json"))
	if err != nil {
		logger.Fatal(err)
	}
	fetcher.Notifier = notify.NewNotifier(conf.SlackWebhookURL, conf.SlackAlertsEnabled, dedup)
	fetcher.Audit = auditStores(ctx, conf)

	states, err := oauth.LoadStates(filepath.Join(conf.StateDir, ".oauth_states.json"))
	if err != nil {
		logger.Fatal(err)
	}
	redirectURI := conf.OAuthRedirectURI
	if redirectURI == "" {
		redirectURI = "http://" + conf.Listen + "/oauth/callback"
	}
	flow := oauth.NewFlow(conf.OAuthClientID, conf.OAuthClientSecret, redirectURI, states)

	srv := server.New(client, regions, fetcher, newComparer(client, conf), flow, server.Options{
		TimeRangeHours: conf.TimeRangeHours,
	})

	go func() {
		if err := regions.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("watching regions file: %s", err)
		}
	}()
	go srv.Monitor(ctx, monitorInterval)

	if err := srv.Run(conf.Listen); err != nil {
		logger.Fatal(err)
	}
}

// Fetch runs a single pipeline pass and prints the result. The
// optional argument selects a region, default region otherwise.
func Fetch(ctx context.Context, conf *config.Config, args []string) {
	_, _, fetcher := newFetcher(conf)

	regionID := ""
	if len(args) > 0 {
		regionID = args[0]
	}
	changesets, err := fetcher.Fetch(ctx, regionID, 100)
	if err != nil {
		logger.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(changesets); err != nil {
		logger.Fatal(err)
	}
}

// Compare prints the before/after diff of a single changeset.
func Compare(ctx context.Context, conf *config.Config, args []string) {
	if len(args) != 1 {
		logger.Fatal("compare requires a changeset id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		logger.Fatalf("invalid changeset id %q", args[0])
	}

	client := osmapi.New(conf.APIBaseURL, conf.RequestsPerSecond)
	result, err := newComparer(client, conf).Compare(ctx, id)
	if err != nil {
		logger.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Fatal(err)
	}
}
