package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pin-ingest/internal/config"
	"github.com/sells-group/pin-ingest/internal/ingest"
	"github.com/sells-group/pin-ingest/internal/normalize"
	"github.com/sells-group/pin-ingest/internal/resilience"
	"github.com/sells-group/pin-ingest/internal/source"
	"github.com/sells-group/pin-ingest/internal/store"
	"github.com/sells-group/pin-ingest/internal/submit"
	"github.com/sells-group/pin-ingest/pkg/geocode"
	"github.com/sells-group/pin-ingest/pkg/pinapi"
	"github.com/sells-group/pin-ingest/pkg/salesforce"
)

// sinkEnv is the configured bulk-create sink plus its dead-letter store.
type sinkEnv struct {
	Name        string
	Creator     submit.BulkCreator
	DeadLetters store.Store // nil when dead-lettering is off
	closers     []func() error
}

// Close releases every connection opened for the sink.
func (e *sinkEnv) Close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			zap.L().Warn("close sink", zap.Error(err))
		}
	}
}

// openSink builds the submit.sink selected in config.
func openSink(ctx context.Context, c *config.Config) (*sinkEnv, error) {
	env := &sinkEnv{Name: c.Submit.Sink}

	switch c.Submit.Sink {
	case config.SinkPostgres, config.SinkSQLite:
		st, err := openMigrated(ctx, c.Submit.Sink, c.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		env.Creator = st
		env.DeadLetters = st
		env.closers = append(env.closers, st.Close)
		return env, nil

	case config.SinkAPI:
		client, err := pinapi.NewClient(c.PinAPI.BaseURL, c.PinAPI.Token,
			pinapi.WithTimeout(time.Duration(c.PinAPI.TimeoutSecs)*time.Second),
			pinapi.WithRateLimit(c.PinAPI.RateLimit),
		)
		if err != nil {
			return nil, eris.Wrap(err, "pinapi sink (PIN_PINAPI_BASE_URL)")
		}
		env.Creator = client

	case config.SinkSalesforce:
		sink, err := openSalesforce(c.Salesforce)
		if err != nil {
			return nil, err
		}
		if err := sink.Check(ctx); err != nil {
			return nil, eris.Wrap(err, "check salesforce object")
		}
		env.Creator = sink

	default:
		return nil, eris.Errorf("unknown sink %q", c.Submit.Sink)
	}

	if c.Submit.DeadLetters {
		st, err := openMigrated(ctx, c.Store.Driver, c.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "dead letter store")
		}
		env.DeadLetters = st
		env.closers = append(env.closers, st.Close)
	}
	return env, nil
}

// openMigrated opens a store and brings its schema up to date.
func openMigrated(ctx context.Context, driver, dsn string) (store.Store, error) {
	st, err := store.Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	applied, err := st.Migrate(ctx)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	if len(applied) > 0 {
		zap.L().Info("store: applied migrations", zap.Strings("migrations", applied))
	}
	return st, nil
}

func openSalesforce(c config.SalesforceConfig) (*salesforce.PinSink, error) {
	if c.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (PIN_SALESFORCE_CLIENT_ID)")
	}
	pemData, err := os.ReadFile(c.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}
	client, err := salesforce.Dial(salesforce.Creds{
		LoginURL: c.LoginURL,
		Username: c.Username,
		ClientID: c.ClientID,
		KeyPEM:   string(pemData),
	}, salesforce.WithRateLimit(c.RateLimit))
	if err != nil {
		return nil, err
	}
	return salesforce.NewPinSink(client, c.Object), nil
}

// newGeocoder returns a resolver built on first use. Construction errors,
// such as a missing API key, surface only when a run needs geocoding.
func newGeocoder(c config.GeocodeConfig) *geocode.Lazy {
	return geocode.NewLazy(func() (geocode.Resolver, error) {
		cb := resilience.NewCircuitBreaker(
			resilience.FromCircuitConfig(c.CircuitFailureThreshold, c.CircuitResetSecs),
		)
		opts := []geocode.Option{
			geocode.WithBaseURL(c.BaseURL),
			geocode.WithAPIKey(c.APIKey),
			geocode.WithRegion(c.Region),
			geocode.WithRateLimit(c.RateLimit),
			geocode.WithCircuitBreaker(cb),
		}
		if c.TimeoutSecs > 0 {
			opts = append(opts, geocode.WithHTTPClient(&http.Client{Timeout: time.Duration(c.TimeoutSecs) * time.Second}))
		}
		client := geocode.NewClient(opts...)
		if err := client.Validate(); err != nil {
			return nil, err
		}
		return client, nil
	})
}

func newNormalizer(c config.IngestConfig) (*normalize.Normalizer, error) {
	opts := []normalize.Option{normalize.WithCountry(c.Country)}
	if c.AliasesPath != "" {
		aliases, err := normalize.LoadAliases(c.AliasesPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, normalize.WithAliases(aliases))
	}
	return normalize.New(opts...), nil
}

// newOrchestrator wires an orchestrator around env. A nil env yields one
// that can only Prepare.
func newOrchestrator(c *config.Config, env *sinkEnv) (*ingest.Orchestrator, error) {
	n, err := newNormalizer(c.Ingest)
	if err != nil {
		return nil, err
	}

	var sub *submit.Submitter
	if env != nil {
		opts := []submit.Option{
			submit.WithChunkSize(c.Submit.ChunkSize),
			submit.WithDelay(time.Duration(c.Submit.DelayMs) * time.Millisecond),
		}
		if env.DeadLetters != nil {
			opts = append(opts, submit.WithDeadLetters(env.DeadLetters, env.Name))
		}
		sub = submit.New(env.Creator, opts...)
	}

	return ingest.New(sub,
		ingest.WithNormalizer(n),
		ingest.WithGeocoder(newGeocoder(c.Geocode)),
		ingest.WithConcurrency(c.Geocode.Concurrency),
		ingest.WithStrictContact(c.Ingest.StrictContact),
	), nil
}

func newLoader(c config.SourceConfig) *source.Loader {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = c.MaxAttempts
	return source.NewLoader(
		source.WithTimeout(time.Duration(c.TimeoutSecs)*time.Second),
		source.WithRetry(retry),
		source.WithMaxBytes(c.MaxBytes),
	)
}
