package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config is the on-disk configuration (JSON). Values from the environment
// (see envOptions) take precedence over the file, flags over both.
type Config struct {
	RegionsFile           string  `json:"regions"`
	DefaultRegion         string  `json:"default_region"`
	RulesFile             string  `json:"rules"`
	StateDir              string  `json:"statedir"`
	CacheDir              string  `json:"cachedir"`
	APIBaseURL            string  `json:"api_url"`
	TimeRangeHours        int     `json:"time_range_hours"`
	MassDeletionThreshold int     `json:"mass_deletion_threshold"`
	RequestsPerSecond     float64 `json:"requests_per_second"`
	DetailWorkers         int     `json:"detail_workers"`
	OldVersionWorkers     int     `json:"old_version_workers"`
	GeometryWorkers       int     `json:"geometry_workers"`
	SlackWebhookURL       string  `json:"slack_webhook_url"`
	SlackAlertsEnabled    bool    `json:"slack_alerts_enabled"`
	SheetsSpreadsheetID   string  `json:"sheets_spreadsheet_id"`
	SheetsCredentials     string  `json:"-"`
	AuditDatabaseURL      string  `json:"audit_database_url"`
	OAuthClientID         string  `json:"oauth_client_id"`
	OAuthClientSecret     string  `json:"-"`
	OAuthRedirectURI      string  `json:"oauth_redirect_uri"`
	Listen                string  `json:"listen"`
	Httpprofile           string  `json:"httpprofile"`
}

type envOptions struct {
	TimeRangeHours     int     `env:"CHANGESET_TIME_RANGE_HOURS"`
	RequestsPerSecond  float64 `env:"OSM_REQUESTS_PER_SECOND"`
	SlackWebhookURL    string  `env:"SLACK_WEBHOOK_URL"`
	SlackAlertsEnabled bool    `env:"SLACK_ALERTS_ENABLED"`
	SheetsCredentials  string  `env:"GOOGLE_CREDENTIALS_JSON"`
	SheetsSpreadsheet  string  `env:"SHEETS_SPREADSHEET_ID"`
	AuditDatabaseURL   string  `env:"AUDIT_DATABASE_URL"`
	OAuthClientID      string  `env:"OSM_CLIENT_ID"`
	OAuthClientSecret  string  `env:"OSM_CLIENT_SECRET"`
	OAuthRedirectURI   string  `env:"OSM_REDIRECT_URI"`
}

const defaultStateDir = "."
const defaultCacheDir = "/tmp/osmwatch"
const defaultRegionsFile = "regions.json"
const defaultAPIBaseURL = "https://api.openstreetmap.org/api/0.6"
const defaultTimeRangeHours = 24
const defaultMassDeletionThreshold = 50
const defaultListen = "localhost:5000"

var ServeFlags = flag.NewFlagSet("serve", flag.ExitOnError)
var FetchFlags = flag.NewFlagSet("fetch", flag.ExitOnError)
var CompareFlags = flag.NewFlagSet("compare", flag.ExitOnError)

type _BaseOptions struct {
	Config
	ConfigFile string
	Quiet      bool
}

func (o *_BaseOptions) updateFromConfig() error {
	conf := &Config{
		StateDir:              defaultStateDir,
		CacheDir:              defaultCacheDir,
		RegionsFile:           defaultRegionsFile,
		APIBaseURL:            defaultAPIBaseURL,
		TimeRangeHours:        defaultTimeRangeHours,
		MassDeletionThreshold: defaultMassDeletionThreshold,
		RequestsPerSecond:     10,
		DetailWorkers:         5,
		OldVersionWorkers:     15,
		GeometryWorkers:       10,
		Listen:                defaultListen,
	}

	if o.ConfigFile != "" {
		f, err := os.Open(o.ConfigFile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(conf); err != nil {
			return errors.Wrap(err, "decoding config file")
		}
	}

	// .env is optional, matching plain environment deployments
	godotenv.Load()
	e := envOptions{}
	if err := env.Parse(&e); err != nil {
		return errors.Wrap(err, "parsing environment")
	}
	if e.TimeRangeHours != 0 {
		conf.TimeRangeHours = e.TimeRangeHours
	}
	if e.RequestsPerSecond != 0 {
		conf.RequestsPerSecond = e.RequestsPerSecond
	}
	if e.SlackWebhookURL != "" {
		conf.SlackWebhookURL = e.SlackWebhookURL
	}
	if e.SlackAlertsEnabled {
		conf.SlackAlertsEnabled = true
	}
	if e.SheetsCredentials != "" {
		conf.SheetsCredentials = e.SheetsCredentials
	}
	if e.SheetsSpreadsheet != "" {
		conf.SheetsSpreadsheetID = e.SheetsSpreadsheet
	}
	if e.AuditDatabaseURL != "" {
		conf.AuditDatabaseURL = e.AuditDatabaseURL
	}
	if e.OAuthClientID != "" {
		conf.OAuthClientID = e.OAuthClientID
	}
	if e.OAuthClientSecret != "" {
		conf.OAuthClientSecret = e.OAuthClientSecret
	}
	if e.OAuthRedirectURI != "" {
		conf.OAuthRedirectURI = e.OAuthRedirectURI
	}

	// flags already parsed into o.Config win over file and env
	if o.RegionsFile == defaultRegionsFile {
		o.RegionsFile = conf.RegionsFile
	}
	if o.StateDir == defaultStateDir {
		o.StateDir = conf.StateDir
	}
	if o.CacheDir == defaultCacheDir {
		o.CacheDir = conf.CacheDir
	}
	if o.APIBaseURL == defaultAPIBaseURL {
		o.APIBaseURL = conf.APIBaseURL
	}
	if o.TimeRangeHours == defaultTimeRangeHours {
		o.TimeRangeHours = conf.TimeRangeHours
	}
	if o.MassDeletionThreshold == defaultMassDeletionThreshold {
		o.MassDeletionThreshold = conf.MassDeletionThreshold
	}
	if o.Listen == defaultListen {
		o.Listen = conf.Listen
	}
	if o.Httpprofile == "" {
		o.Httpprofile = conf.Httpprofile
	}
	o.DefaultRegion = conf.DefaultRegion
	o.RulesFile = conf.RulesFile
	o.RequestsPerSecond = conf.RequestsPerSecond
	o.DetailWorkers = conf.DetailWorkers
	o.OldVersionWorkers = conf.OldVersionWorkers
	o.GeometryWorkers = conf.GeometryWorkers
	o.SlackWebhookURL = conf.SlackWebhookURL
	o.SlackAlertsEnabled = conf.SlackAlertsEnabled
	o.SheetsSpreadsheetID = conf.SheetsSpreadsheetID
	o.SheetsCredentials = conf.SheetsCredentials
	o.AuditDatabaseURL = conf.AuditDatabaseURL
	o.OAuthClientID = conf.OAuthClientID
	o.OAuthClientSecret = conf.OAuthClientSecret
	o.OAuthRedirectURI = conf.OAuthRedirectURI
	return nil
}

func (o *_BaseOptions) check() []error {
	errs := []error{}
	if o.RegionsFile == "" {
		errs = append(errs, errors.New("missing regions file"))
	}
	if o.TimeRangeHours <= 0 {
		errs = append(errs, errors.New("time range must be positive"))
	}
	if o.MassDeletionThreshold <= 0 {
		errs = append(errs, errors.New("mass deletion threshold must be positive"))
	}
	return errs
}

var BaseOptions = _BaseOptions{}

func addBaseFlags(flags *flag.FlagSet) {
	flags.StringVar(&BaseOptions.ConfigFile, "config", "", "config (json)")
	flags.StringVar(&BaseOptions.RegionsFile, "regions", defaultRegionsFile, "regions file (json)")
	flags.StringVar(&BaseOptions.StateDir, "statedir", defaultStateDir, "directory for persisted state")
	flags.StringVar(&BaseOptions.CacheDir, "cachedir", defaultCacheDir, "cache directory")
	flags.StringVar(&BaseOptions.APIBaseURL, "api", defaultAPIBaseURL, "OSM API base URL")
	flags.IntVar(&BaseOptions.TimeRangeHours, "hours", defaultTimeRangeHours, "changeset time range in hours")
	flags.IntVar(&BaseOptions.MassDeletionThreshold, "massdeletion", defaultMassDeletionThreshold, "deletions that trigger review")
	flags.StringVar(&BaseOptions.Listen, "listen", defaultListen, "bind address for the HTTP API")
	flags.StringVar(&BaseOptions.Httpprofile, "httpprofile", "", "bind address for profile server")
	flags.BoolVar(&BaseOptions.Quiet, "quiet", false, "quiet log output")
}

func Usage(flags *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: %s %s [args]\n\n", os.Args[0], flags.Name())
		flags.PrintDefaults()
		os.Exit(2)
	}
}

func init() {
	for _, flags := range []*flag.FlagSet{ServeFlags, FetchFlags, CompareFlags} {
		flags.Usage = Usage(flags)
		addBaseFlags(flags)
	}
}

func Parse(flags *flag.FlagSet, args []string) {
	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := BaseOptions.updateFromConfig(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if errs := BaseOptions.check(); len(errs) != 0 {
		reportErrors(errs)
		flags.Usage()
	}
}

func reportErrors(errs []error) {
	fmt.Println("errors in config/options:")
	for _, err := range errs {
		fmt.Printf("\t%s\n", err)
	}
	os.Exit(1)
}

// A SentinelRule flags changesets that touch elements carrying a specific
// tag, regardless of changeset size.
type SentinelRule struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
	Flag  string `yaml:"flag"`
	Label string `yaml:"label"`
}

type rulesFile struct {
	Sentinels []SentinelRule `yaml:"sentinels"`
}

// DefaultSentinelRules covers the deployment this project was written
// for; a rules file replaces them entirely.
var DefaultSentinelRules = []SentinelRule{
	{Key: "name", Value: "ERP", Flag: "erp", Label: "ERP"},
}

// LoadSentinelRules reads sentinel tag rules from a YAML file. An empty
// filename returns the default rules.
func LoadSentinelRules(filename string) ([]SentinelRule, error) {
	if filename == "" {
		return DefaultSentinelRules, nil
	}
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "reading rules file")
	}
	rules := rulesFile{}
	if err := yaml.Unmarshal(b, &rules); err != nil {
		return nil, errors.Wrap(err, "parsing rules file")
	}
	for i, r := range rules.Sentinels {
		if r.Key == "" || r.Value == "" {
			return nil, errors.Errorf("sentinel rule %d: key and value are required", i)
		}
		if r.Flag == "" {
			rules.Sentinels[i].Flag = r.Value
		}
		if r.Label == "" {
			rules.Sentinels[i].Label = r.Value
		}
	}
	return rules.Sentinels, nil
}

// Timeouts per call site. Changeset downloads can be large and get the
// longest budget.
const (
	ListTimeout     = 15 * time.Second
	DownloadTimeout = 60 * time.Second
	ElementTimeout  = 10 * time.Second
	NodeTimeout     = 5 * time.Second
	BatchTimeout    = 60 * time.Second
)
