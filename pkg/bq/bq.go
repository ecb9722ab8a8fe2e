package bq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"

	"cloud.google.com/go/bigquery"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var _ Operations = &Client{}

// Operations is the read-only surface the inspector needs from
// BigQuery: metadata enumeration and query execution. Nothing here
// mutates warehouse state.
type Operations interface {
	GetDatasets(ctx context.Context, projectID string) ([]*Dataset, error)
	GetTable(ctx context.Context, projectID, datasetID, tableID string) (*Table, error)
	GetTables(ctx context.Context, projectID, datasetID string) ([]*Table, error)
	QueryPreview(ctx context.Context, projectID, query string, maxRows int) (*QueryResult, error)
	DryRunQuery(ctx context.Context, projectID, query string) (*JobStatistics, error)
}

var (
	// ErrNotExist is returned when the referenced project, dataset or
	// table does not exist.
	ErrNotExist = errors.New("does not exist")
	// ErrUnauthenticated is returned when the API rejects the
	// credentials outright.
	ErrUnauthenticated = errors.New("invalid or missing credentials")
	// ErrPermissionDenied is returned when the credentials lack a role
	// required for the operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrQueryFailed wraps the query engine's own error text for a
	// rejected or failed statement.
	ErrQueryFailed = errors.New("query failed")
)

// CredentialsProvider resolves the credentials used to authenticate
// API clients. Implementations must not perform network I/O.
type CredentialsProvider interface {
	Resolve(ctx context.Context) (*google.Credentials, error)
}

type Client struct {
	endpoint             string
	enableAuthentication bool
	credentials          CredentialsProvider
	log                  zerolog.Logger
}

type TableType string

func (t *TableType) String() string {
	if t == nil {
		return ""
	}

	return string(*t)
}

const (
	// RegularTable is a regular table.
	RegularTable TableType = "TABLE"
	// ViewTable is a table type describing that the table is a logical view.
	// See more information at https://cloud.google.com//docs/views.
	ViewTable TableType = "VIEW"
	// ExternalTable is a table type describing that the table is an external
	// table (also known as a federated data source). See more information at
	// https://cloud.google.com/bigquery/external-data-sources.
	ExternalTable TableType = "EXTERNAL"
	// MaterializedView represents a managed storage table that's derived from
	// a base table.
	MaterializedView TableType = "MATERIALIZED_VIEW"
	// Snapshot represents an immutable point in time snapshot of some other
	// table.
	Snapshot TableType = "SNAPSHOT"
)

type ColumnMode string

func (c *ColumnMode) String() string {
	if c == nil {
		return ""
	}

	return string(*c)
}

const (
	NullableMode ColumnMode = "NULLABLE"
	RequiredMode ColumnMode = "REQUIRED"
	RepeatedMode ColumnMode = "REPEATED"
)

type FieldType string

func (f *FieldType) String() string {
	if f == nil {
		return ""
	}

	return string(*f)
}

const (
	// StringFieldType is a string field type.
	StringFieldType FieldType = "STRING"
	// BytesFieldType is a bytes field type.
	BytesFieldType FieldType = "BYTES"
	// IntegerFieldType is a integer field type.
	IntegerFieldType FieldType = "INTEGER"
	// FloatFieldType is a float field type.
	FloatFieldType FieldType = "FLOAT"
	// BooleanFieldType is a boolean field type.
	BooleanFieldType FieldType = "BOOLEAN"
	// TimestampFieldType is a timestamp field type.
	TimestampFieldType FieldType = "TIMESTAMP"
	// RecordFieldType is a record field type. It is typically used to create columns with repeated or nested data.
	RecordFieldType FieldType = "RECORD"
	// DateFieldType is a date field type.
	DateFieldType FieldType = "DATE"
	// TimeFieldType is a time field type.
	TimeFieldType FieldType = "TIME"
	// DateTimeFieldType is a datetime field type.
	DateTimeFieldType FieldType = "DATETIME"
	// NumericFieldType is a numeric field type. Numeric types include integer types, floating point types and the
	// NUMERIC data type.
	NumericFieldType FieldType = "NUMERIC"
	// GeographyFieldType is a string field type.  Geography types represent a set of points
	// on the Earth's surface, represented in Well Known Text (WKT) format.
	GeographyFieldType FieldType = "GEOGRAPHY"
	// BigNumericFieldType is a numeric field type that supports values of larger precision
	// and scale than the NumericFieldType.
	BigNumericFieldType FieldType = "BIGNUMERIC"
	// IntervalFieldType is a representation of a duration or an amount of time.
	IntervalFieldType FieldType = "INTERVAL"
	// JSONFieldType is a representation of a json object.
	JSONFieldType FieldType = "JSON"
	// RangeFieldType represents a continuous range of values.
	RangeFieldType FieldType = "RANGE"
)

type Dataset struct {
	ProjectID string
	DatasetID string

	Name        string
	Description string
}

type Table struct {
	ProjectID string
	DatasetID string
	TableID   string

	Name        string
	Description string
	Type        TableType

	// The table schema, in declaration order.
	Schema []*Column

	LastModified time.Time
	Created      time.Time
	Expires      time.Time
}

type Column struct {
	Name        string
	Type        FieldType
	Mode        ColumnMode
	Description string
}

// QueryResult holds a bounded preview of a query's result set. Rows
// is capped by the caller's maxRows while TotalRows reports the true
// cardinality, so a capped preview is distinguishable from a complete
// result.
type QueryResult struct {
	Columns   []string
	Rows      [][]bigquery.Value
	TotalRows uint64
}

type JobStatistics struct {
	CreationTime        time.Time
	StartTime           time.Time
	EndTime             time.Time
	TotalBytesProcessed int64
}

func (c *Client) GetDatasets(ctx context.Context, projectID string) ([]*Dataset, error) {
	client, err := c.clientFromProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("datasets: %w", err)
	}

	datasets := []*Dataset{}
	it := client.Datasets(ctx)
	for {
		ds, err := it.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}

			if sentinel := apiSentinel(err); sentinel != nil {
				return nil, sentinel
			}

			return nil, fmt.Errorf("iterating datasets: %w", err)
		}

		dataset := &Dataset{
			ProjectID: ds.ProjectID,
			DatasetID: ds.DatasetID,
		}

		// A dataset the caller may list but not describe still shows
		// up, just without a description.
		meta, err := ds.Metadata(ctx)
		if err != nil {
			c.log.Debug().Err(err).Str("dataset", ds.DatasetID).Msg("dataset metadata not readable")
		} else {
			dataset.Name = meta.Name
			dataset.Description = meta.Description
		}

		datasets = append(datasets, dataset)
	}

	return datasets, nil
}

func (c *Client) GetTables(ctx context.Context, projectID, datasetID string) ([]*Table, error) {
	client, err := c.clientFromProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("tables: %w", err)
	}

	tables := []*Table{}
	it := client.Dataset(datasetID).Tables(ctx)
	for {
		t, err := it.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}

			if sentinel := apiSentinel(err); sentinel != nil {
				return nil, sentinel
			}

			return nil, fmt.Errorf("iterating tables: %w", err)
		}

		table, err := c.getTableWithMetadata(ctx, client, datasetID, t.TableID)
		if err != nil {
			return nil, err
		}

		tables = append(tables, table)
	}

	return tables, nil
}

func (c *Client) GetTable(ctx context.Context, projectID, datasetID, tableID string) (*Table, error) {
	client, err := c.clientFromProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}

	table, err := c.getTableWithMetadata(ctx, client, datasetID, tableID)
	if err != nil {
		return nil, err
	}

	return table, nil
}

func fieldSchemaToSchema(fields []*bigquery.FieldSchema) []*Column {
	if len(fields) == 0 {
		return nil
	}

	schema := make([]*Column, len(fields))

	for i, f := range fields {
		mode := NullableMode

		if f.Repeated {
			mode = RepeatedMode
		}

		if f.Required && !f.Repeated {
			mode = RequiredMode
		}

		schema[i] = &Column{
			Name:        f.Name,
			Type:        FieldType(f.Type),
			Mode:        mode,
			Description: f.Description,
		}
	}

	return schema
}

func (c *Client) getTableWithMetadata(ctx context.Context, client *bigquery.Client, datasetID, tableID string) (*Table, error) {
	meta, err := client.Dataset(datasetID).Table(tableID).Metadata(ctx)
	if err != nil {
		if sentinel := apiSentinel(err); sentinel != nil {
			return nil, sentinel
		}

		return nil, fmt.Errorf("getting table metadata %s.%s.%s: %w", client.Project(), datasetID, tableID, err)
	}

	return &Table{
		ProjectID:    client.Project(),
		DatasetID:    datasetID,
		TableID:      tableID,
		Name:         meta.Name,
		Description:  meta.Description,
		Type:         TableType(meta.Type), // Don't bother with checking validity, coming from the API.
		Schema:       fieldSchemaToSchema(meta.Schema),
		LastModified: meta.LastModifiedTime,
		Created:      meta.CreationTime,
		Expires:      meta.ExpirationTime,
	}, nil
}

// QueryPreview submits a query, waits for it to finish and reads at
// most maxRows rows. The full column set is always returned, also for
// an empty result.
func (c *Client) QueryPreview(ctx context.Context, projectID, query string, maxRows int) (*QueryResult, error) {
	client, err := c.clientFromProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("query preview: %w", err)
	}

	q := client.Query(query)
	q.JobID = queryJobID()

	job, err := q.Run(ctx)
	if err != nil {
		return nil, queryError(err)
	}

	c.log.Debug().Str("job_id", q.JobID).Msg("query job submitted")

	status, err := job.Wait(ctx)
	if err != nil {
		return nil, queryError(err)
	}

	err = status.Err()
	if err != nil {
		return nil, queryError(err)
	}

	it, err := job.Read(ctx)
	if err != nil {
		return nil, queryError(err)
	}

	rows := [][]bigquery.Value{}
	for len(rows) < maxRows {
		var row []bigquery.Value

		err := it.Next(&row)
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}

			return nil, fmt.Errorf("reading query result: %w", err)
		}

		rows = append(rows, row)
	}

	// Schema and TotalRows are populated once the first Next call has
	// fetched a page, also when the result is empty.
	columns := make([]string, len(it.Schema))
	for i, f := range it.Schema {
		columns[i] = f.Name
	}

	return &QueryResult{
		Columns:   columns,
		Rows:      rows,
		TotalRows: it.TotalRows,
	}, nil
}

// DryRunQuery validates a query without executing it and reports the
// statistics the engine estimated for it.
func (c *Client) DryRunQuery(ctx context.Context, projectID, query string) (*JobStatistics, error) {
	client, err := c.clientFromProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("dry run query: %w", err)
	}

	q := client.Query(query)
	q.DryRun = true

	job, err := q.Run(ctx)
	if err != nil {
		return nil, queryError(err)
	}

	// Dry run is not asynchronous, so the latest status holds the
	// outcome and statistics.
	status := job.LastStatus()

	err = status.Err()
	if err != nil {
		return nil, queryError(err)
	}

	stats := &JobStatistics{}
	if status.Statistics != nil {
		stats.CreationTime = status.Statistics.CreationTime
		stats.StartTime = status.Statistics.StartTime
		stats.EndTime = status.Statistics.EndTime
		stats.TotalBytesProcessed = status.Statistics.TotalBytesProcessed
	}

	return stats, nil
}

// queryJobID names the job so it is recognizable in the warehouse's
// job history.
func queryJobID() string {
	return fmt.Sprintf("bqinspect_%s", shortuuid.New())
}

func (c *Client) clientFromProject(ctx context.Context, project string) (*bigquery.Client, error) {
	var options []option.ClientOption

	if c.endpoint != "" {
		options = append(options, option.WithEndpoint(c.endpoint))
	}

	if !c.enableAuthentication {
		options = append(options, option.WithoutAuthentication())
	} else if c.credentials != nil {
		creds, err := c.credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}

		options = append(options, option.WithCredentials(creds))
	}

	client, err := bigquery.NewClient(ctx, project, options...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client for project %s: %w", project, err)
	}

	return client, nil
}

// apiSentinel maps API status codes onto the package sentinels, so
// callers can classify failures with errors.Is instead of inspecting
// transport errors. Returns nil for anything unmapped.
func apiSentinel(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return nil
	}

	switch gerr.Code {
	case http.StatusNotFound:
		return ErrNotExist
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, gerr.Message)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthenticated, gerr.Message)
	}

	return nil
}

// queryError converts a failure from the query path into either an
// auth sentinel or ErrQueryFailed carrying the engine's own message,
// which is the contract for run-query diagnostics. A 404 stays a
// query failure: the engine's "Not found: Table ..." text is the
// diagnostic, not the bare sentinel.
func queryError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrPermissionDenied, gerr.Message)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthenticated, gerr.Message)
		}
	}

	return fmt.Errorf("%w: %s", ErrQueryFailed, engineMessage(err))
}

// engineMessage unwraps transport and job errors down to the text the
// query engine produced.
func engineMessage(err error) string {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		return gerr.Message
	}

	var berr *bigquery.Error
	if errors.As(err, &berr) && berr.Message != "" {
		return berr.Message
	}

	return err.Error()
}

func NewClient(endpoint string, enableAuthentication bool, credentials CredentialsProvider, log zerolog.Logger) *Client {
	return &Client{
		endpoint:             endpoint,
		enableAuthentication: enableAuthentication,
		credentials:          credentials,
		log:                  log,
	}
}
