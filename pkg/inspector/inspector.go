package inspector

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/rs/zerolog"

	"github.com/navikt/bqinspect/pkg/bq"
	"github.com/navikt/bqinspect/pkg/config"
	"github.com/navikt/bqinspect/pkg/credentials"
	"github.com/navikt/bqinspect/pkg/errs"
)

// Service implements the inspection operations. It holds no warehouse
// state: every call fetches fresh data and nothing is cached between
// invocations.
type Service struct {
	client      bq.Operations
	credentials bq.CredentialsProvider
	project     string
	previewRows int
	log         zerolog.Logger
}

func New(client bq.Operations, creds bq.CredentialsProvider, project string, previewRows int, log zerolog.Logger) *Service {
	if previewRows <= 0 {
		previewRows = config.DefaultPreviewRows
	}

	return &Service{
		client:      client,
		credentials: creds,
		project:     project,
		previewRows: previewRows,
		log:         log,
	}
}

func (s *Service) ListDatasets(ctx context.Context, projectID string) (*DatasetListing, error) {
	const op errs.Op = "inspector.ListDatasets"

	project, err := s.resolveProject(ctx, projectID)
	if err != nil {
		return nil, errs.E(op, err)
	}

	s.log.Info().Str("project", project).Msg("listing datasets")

	datasets, err := s.client.GetDatasets(ctx, project)
	if err != nil {
		if errors.Is(err, bq.ErrNotExist) {
			return nil, errs.E(errs.NotExist, op, errs.Parameter("project"), fmt.Errorf("project %s %w", project, bq.ErrNotExist))
		}

		return nil, errs.E(classify(err), op, err)
	}

	return &DatasetListing{
		ProjectID: project,
		Datasets:  datasets,
	}, nil
}

func (s *Service) ListTables(ctx context.Context, projectID, datasetID string) (*TableListing, error) {
	const op errs.Op = "inspector.ListTables"

	err := validation.Errors{
		"dataset": validation.Validate(datasetID, validation.Required),
	}.Filter()
	if err != nil {
		return nil, errs.E(errs.InvalidRequest, op, err)
	}

	project, err := s.resolveProject(ctx, projectID)
	if err != nil {
		return nil, errs.E(op, err)
	}

	s.log.Info().Str("project", project).Str("dataset", datasetID).Msg("listing tables")

	tables, err := s.client.GetTables(ctx, project, datasetID)
	if err != nil {
		if errors.Is(err, bq.ErrNotExist) {
			return nil, errs.E(errs.NotExist, op, errs.Parameter("dataset"), fmt.Errorf("dataset %s.%s %w", project, datasetID, bq.ErrNotExist))
		}

		return nil, errs.E(classify(err), op, err)
	}

	return &TableListing{
		ProjectID: project,
		DatasetID: datasetID,
		Tables:    tables,
	}, nil
}

func (s *Service) GetSchema(ctx context.Context, projectID, datasetID, tableID string) (*TableSchema, error) {
	const op errs.Op = "inspector.GetSchema"

	err := validation.Errors{
		"dataset": validation.Validate(datasetID, validation.Required),
		"table":   validation.Validate(tableID, validation.Required),
	}.Filter()
	if err != nil {
		return nil, errs.E(errs.InvalidRequest, op, err)
	}

	project, err := s.resolveProject(ctx, projectID)
	if err != nil {
		return nil, errs.E(op, err)
	}

	s.log.Info().Str("project", project).Str("dataset", datasetID).Str("table", tableID).Msg("fetching table schema")

	table, err := s.client.GetTable(ctx, project, datasetID, tableID)
	if err != nil {
		if errors.Is(err, bq.ErrNotExist) {
			return nil, errs.E(errs.NotExist, op, errs.Parameter("table"), fmt.Errorf("table %s.%s.%s %w", project, datasetID, tableID, bq.ErrNotExist))
		}

		return nil, errs.E(classify(err), op, err)
	}

	return &TableSchema{
		ProjectID: project,
		DatasetID: datasetID,
		TableID:   tableID,
		Columns:   table.Schema,
	}, nil
}

func (s *Service) RunQuery(ctx context.Context, projectID, query string) (*QueryPreview, error) {
	const op errs.Op = "inspector.RunQuery"

	err := validation.Errors{
		"query": validation.Validate(query, validation.Required),
	}.Filter()
	if err != nil {
		return nil, errs.E(errs.InvalidRequest, op, err)
	}

	project, err := s.resolveProject(ctx, projectID)
	if err != nil {
		return nil, errs.E(op, err)
	}

	s.log.Info().Str("project", project).Int("preview_rows", s.previewRows).Msg("running query")

	result, err := s.client.QueryPreview(ctx, project, query, s.previewRows)
	if err != nil {
		return nil, errs.E(classify(err), op, err)
	}

	s.log.Debug().Uint64("total_rows", result.TotalRows).Int("rows", len(result.Rows)).Msg("query finished")

	return &QueryPreview{
		ProjectID: project,
		Columns:   result.Columns,
		Rows:      result.Rows,
		TotalRows: result.TotalRows,
	}, nil
}

func (s *Service) DryRunQuery(ctx context.Context, projectID, query string) (*QueryValidation, error) {
	const op errs.Op = "inspector.DryRunQuery"

	err := validation.Errors{
		"query": validation.Validate(query, validation.Required),
	}.Filter()
	if err != nil {
		return nil, errs.E(errs.InvalidRequest, op, err)
	}

	project, err := s.resolveProject(ctx, projectID)
	if err != nil {
		return nil, errs.E(op, err)
	}

	s.log.Info().Str("project", project).Msg("validating query")

	stats, err := s.client.DryRunQuery(ctx, project, query)
	if err != nil {
		return nil, errs.E(classify(err), op, err)
	}

	return &QueryValidation{
		ProjectID:           project,
		TotalBytesProcessed: stats.TotalBytesProcessed,
	}, nil
}

// resolveProject picks the project for an operation: the explicit
// override first, then the configured default, then the project bound
// to the active credential.
func (s *Service) resolveProject(ctx context.Context, override string) (string, error) {
	const op errs.Op = "inspector.resolveProject"

	if override != "" {
		return override, nil
	}

	if s.project != "" {
		return s.project, nil
	}

	if s.credentials == nil {
		return "", errs.E(errs.InvalidRequest, op, errs.Str("no project given and no credentials to resolve one from"))
	}

	creds, err := s.credentials.Resolve(ctx)
	if err != nil {
		return "", errs.E(errs.Unauthenticated, op, err)
	}

	if creds.ProjectID == "" {
		return "", errs.E(errs.InvalidRequest, op, errs.Str("credentials carry no project id, use --project or configure one"))
	}

	return creds.ProjectID, nil
}

// classify maps client sentinels onto error kinds so the presentation
// layer can translate failures without knowing about transports.
func classify(err error) errs.Kind {
	switch {
	case errors.Is(err, bq.ErrNotExist):
		return errs.NotExist
	case errors.Is(err, bq.ErrUnauthenticated), errors.Is(err, credentials.ErrNoCredentials):
		return errs.Unauthenticated
	case errors.Is(err, bq.ErrPermissionDenied):
		return errs.Unauthorized
	case errors.Is(err, bq.ErrQueryFailed):
		return errs.Database
	default:
		return errs.IO
	}
}
