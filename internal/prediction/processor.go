package prediction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/router-for-me/predictions/internal/config"
	"github.com/router-for-me/predictions/internal/db"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName            = "github.com/router-for-me/predictions/internal/prediction"
	defaultRequestTimeout = 30 * time.Second
	// maxLoggedBody caps how much of a failed response is written to the log.
	maxLoggedBody = 4096
)

// Stage names the steps of one cycle.
type Stage string

const (
	StageStart           Stage = "START"
	StageFetch           Stage = "FETCH"
	StageMap             Stage = "MAP"
	StageFormatTimestamp Stage = "FORMAT_TIMESTAMP"
	StagePersist         Stage = "PERSIST"
	StageEnd             Stage = "END"
)

// Outcome is the terminal state of a cycle.
type Outcome string

const (
	OutcomeStored          Outcome = "stored"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeFetchFailed     Outcome = "fetch_failed"
	OutcomeParseFailed     Outcome = "parse_failed"
	OutcomeMappingFailed   Outcome = "mapping_failed"
	OutcomeTimestampFailed Outcome = "timestamp_failed"
	OutcomeDatabaseFailed  Outcome = "database_failed"
)

// Outcomes lists every Outcome, for metrics that report all of them.
var Outcomes = []Outcome{
	OutcomeStored, OutcomeDuplicate, OutcomeFetchFailed, OutcomeParseFailed,
	OutcomeMappingFailed, OutcomeTimestampFailed, OutcomeDatabaseFailed,
}

// Result describes how a cycle ended.
type Result struct {
	// Stage is the last stage entered; StageEnd when the cycle completed.
	Stage   Stage
	Outcome Outcome
	// Statement is the insert that was attempted, if the cycle got that far.
	Statement *db.InsertStatement
}

// Store persists one insert statement.
type Store interface {
	Insert(ctx context.Context, stmt db.InsertStatement) error
}

// Processor runs one fetch, map, format, persist cycle for a Config.
type Processor struct {
	cfg      config.Config
	store    Store
	client   *http.Client
	location *time.Location
	logger   *log.Entry
	tracer   trace.Tracer
}

// Option customizes a Processor.
type Option func(*Processor)

// WithHTTPClient sets the client used to call the API.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Processor) { p.client = client }
}

// WithLocation sets the zone UTC timestamps are converted to. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(p *Processor) { p.location = loc }
}

// WithLogger sets the log entry used for the cycle.
func WithLogger(entry *log.Entry) Option {
	return func(p *Processor) { p.logger = entry }
}

// WithTracer sets the tracer used for stage spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Processor) { p.tracer = tracer }
}

// NewProcessor constructs a Processor. cfg is copied and never modified.
func NewProcessor(cfg config.Config, store Store, opts ...Option) *Processor {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	p := &Processor{
		cfg:      cfg,
		store:    store,
		client:   &http.Client{Timeout: timeout},
		location: time.Local,
		logger:   log.NewEntry(log.StandardLogger()),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one cycle. It returns nil when the row was stored or rejected as a
// duplicate. Errors satisfying IsCycleAbort mean nothing was written; a DatabaseError
// means the write failed.
func (p *Processor) Run(ctx context.Context) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := p.tracer.Start(ctx, "prediction.run")
	defer span.End()

	result := Result{Stage: StageStart}
	fail := func(outcome Outcome, err error) (Result, error) {
		result.Outcome = outcome
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("prediction.outcome", string(outcome)))
		return result, err
	}

	result.Stage = StageFetch
	rec, err := p.Fetch(ctx)
	if err != nil {
		p.logFetchFailure(err)
		if IsParseError(err) {
			return fail(OutcomeParseFailed, err)
		}
		return fail(OutcomeFetchFailed, err)
	}
	p.logger.Debugf("Response: %v", map[string]any(rec))

	result.Stage = StageMap
	selected, err := MapFields(rec, p.cfg.FieldMappings)
	if err != nil {
		p.logger.WithError(err).Error("could not map prediction to table columns")
		if IsParseError(err) {
			return fail(OutcomeParseFailed, err)
		}
		return fail(OutcomeMappingFailed, err)
	}
	p.logger.Debugf("Selected Data: %s", selected)

	result.Stage = StageFormatTimestamp
	if errFormat := FormatTimestamp(selected, p.cfg.TimestampField, p.cfg.AdjustTime, p.location); errFormat != nil {
		p.logger.WithError(errFormat).Error("could not format prediction timestamp")
		return fail(OutcomeTimestampFailed, errFormat)
	}

	result.Stage = StagePersist
	stmt, err := db.NewInsert(p.cfg.SQL.Table, selected.Keys(), selected.Values())
	if err != nil {
		dbErr := NewDatabaseError(err, "build insert: %v", err)
		p.logger.WithError(err).Error("could not build insert statement")
		return fail(OutcomeDatabaseFailed, dbErr)
	}
	result.Statement = &stmt
	p.logger.Debugf("Running the following SQL Command: %s", stmt)

	if errPersist := p.persist(ctx, stmt); errPersist != nil {
		var dupErr DuplicateKeyError
		if errors.As(errPersist, &dupErr) {
			p.logger.WithError(dupErr.Err).Error("duplicate key error, prediction already stored")
			result.Stage = StageEnd
			result.Outcome = OutcomeDuplicate
			span.SetAttributes(attribute.String("prediction.outcome", string(OutcomeDuplicate)))
			return result, nil
		}
		p.logger.WithError(errPersist).Error("database error")
		return fail(OutcomeDatabaseFailed, errPersist)
	}

	result.Stage = StageEnd
	result.Outcome = OutcomeStored
	span.SetAttributes(attribute.String("prediction.outcome", string(OutcomeStored)))
	p.logger.Infof("stored prediction in %s", p.cfg.SQL.Table)
	return result, nil
}

// Fetch requests the latest prediction and returns results[0].
func (p *Processor) Fetch(ctx context.Context) (Record, error) {
	ctx, span := p.tracer.Start(ctx, "prediction.fetch")
	defer span.End()

	url := strings.TrimSpace(p.cfg.APIEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewFetchError(0, "", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "token "+p.cfg.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NewFetchError(0, "", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			p.logger.WithError(errClose).Warn("close response body failed")
		}
	}()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewFetchError(resp.StatusCode, "", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewFetchError(resp.StatusCode, truncate(string(body), maxLoggedBody), nil)
	}

	return ParseResponse(body)
}

func (p *Processor) persist(ctx context.Context, stmt db.InsertStatement) error {
	if p.store == nil {
		return NewDatabaseError(nil, "no store configured")
	}
	ctx, span := p.tracer.Start(ctx, "prediction.persist",
		trace.WithAttributes(attribute.String("db.sql.table", stmt.Table)))
	defer span.End()

	if err := p.store.Insert(ctx, stmt); err != nil {
		if db.IsDuplicateKey(err) {
			return NewDuplicateKeyError(err)
		}
		return NewDatabaseError(err, "insert into %s: %v", stmt.Table, err)
	}
	return nil
}

func (p *Processor) logFetchFailure(err error) {
	var fetchErr FetchError
	if !errors.As(err, &fetchErr) {
		p.logger.WithError(err).Error("could not read prediction response")
		return
	}
	if fetchErr.StatusCode == 0 {
		p.logger.WithError(err).Error("Could not connect to API")
		return
	}
	p.logger.WithFields(log.Fields{
		"status": fetchErr.StatusCode,
		"body":   fetchErr.Body,
	}).Error("Could not connect to API")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
