package bq_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/bigquery-emulator/server"
	"github.com/goccy/bigquery-emulator/types"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/navikt/bqinspect/pkg/bq"
	"github.com/navikt/bqinspect/pkg/bq/emulator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"cloud.google.com/go/bigquery"
)

func TestClient_GetDatasets(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		projectID   string
		schema      *emulator.Dataset
		mocks       func(log zerolog.Logger) []*emulator.EndpointMock
		expect      []*bq.Dataset
		expectErrIs error
	}{
		{
			name:      "success",
			projectID: "test-project",
			schema: &emulator.Dataset{
				DatasetID: "test-dataset",
				TableID:   "test-table",
				Columns: []*types.Column{
					emulator.ColumnNullable("test-column"),
				},
			},
			expect: []*bq.Dataset{
				{
					ProjectID: "test-project",
					DatasetID: "test-dataset",
				},
			},
		},
		{
			name:      "no datasets",
			projectID: "test-project",
			expect:    []*bq.Dataset{},
		},
		{
			name:      "descriptions from dataset metadata",
			projectID: "test-project",
			mocks: func(log zerolog.Logger) []*emulator.EndpointMock {
				return []*emulator.EndpointMock{
					emulator.DatasetsListMock("test-project", log, "analytics", "staging"),
					emulator.DatasetGetMock("test-project", log, &emulator.MockDataset{
						DatasetID:   "analytics",
						Description: "Curated analytics datasets",
					}),
					emulator.DatasetGetMock("test-project", log, &emulator.MockDataset{
						DatasetID: "staging",
					}),
				}
			},
			expect: []*bq.Dataset{
				{
					ProjectID:   "test-project",
					DatasetID:   "analytics",
					Description: "Curated analytics datasets",
				},
				{
					ProjectID: "test-project",
					DatasetID: "staging",
				},
			},
		},
		{
			name:      "project not found",
			projectID: "test-project",
			mocks: func(log zerolog.Logger) []*emulator.EndpointMock {
				return []*emulator.EndpointMock{
					emulator.ErrorMock(http.MethodGet, "/projects/test-project/datasets",
						http.StatusNotFound, "Not found: Project test-project", log),
				}
			},
			expectErrIs: bq.ErrNotExist,
		},
		{
			name:      "permission denied",
			projectID: "test-project",
			mocks: func(log zerolog.Logger) []*emulator.EndpointMock {
				return []*emulator.EndpointMock{
					emulator.ErrorMock(http.MethodGet, "/projects/test-project/datasets",
						http.StatusForbidden, "Access Denied: Project test-project", log),
				}
			},
			expectErrIs: bq.ErrPermissionDenied,
		},
		{
			name:      "invalid credentials",
			projectID: "test-project",
			mocks: func(log zerolog.Logger) []*emulator.EndpointMock {
				return []*emulator.EndpointMock{
					emulator.ErrorMock(http.MethodGet, "/projects/test-project/datasets",
						http.StatusUnauthorized, "Request had invalid authentication credentials.", log),
				}
			},
			expectErrIs: bq.ErrUnauthenticated,
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			log := zerolog.New(os.Stdout)

			s := emulator.New(log)
			defer s.Cleanup()

			s.WithProject(tc.projectID, tc.schema)

			if tc.mocks != nil {
				s.EnableMock(false, log, tc.mocks(log)...)
			}

			s.TestServer()

			c := bq.NewClient(s.Endpoint(), false, nil, zerolog.Nop())

			got, err := c.GetDatasets(context.Background(), tc.projectID)
			if tc.expectErrIs != nil {
				assert.Error(t, err)
				assert.ErrorIs(t, err, tc.expectErrIs)
				assert.Nil(t, got)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, got)
				assert.Equal(t, tc.expect, got)
			}
		})
	}
}

func TestClient_GetTables(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		projectID   string
		datasetID   string
		schema      *emulator.Dataset
		mocks       func(log zerolog.Logger) []*emulator.EndpointMock
		expect      []*bq.Table
		expectErrIs error
	}{
		{
			name:      "success",
			projectID: "test-project",
			datasetID: "test-dataset",
			schema: &emulator.Dataset{
				DatasetID: "test-dataset",
				TableID:   "test-table",
				Columns: []*types.Column{
					emulator.ColumnNullable("test-column"),
					emulator.ColumnRequired("test-column-required"),
					emulator.ColumnRepeated("test-column-repeated"),
				},
			},
			expect: []*bq.Table{
				{
					ProjectID: "test-project",
					DatasetID: "test-dataset",
					TableID:   "test-table",
					Type:      bq.RegularTable,
					Schema: []*bq.Column{
						{
							Name: "test-column",
							Type: bq.StringFieldType,
							Mode: bq.NullableMode,
						},
						{
							Name: "test-column-required",
							Type: bq.StringFieldType,
							Mode: bq.RequiredMode,
						},
						{
							Name: "test-column-repeated",
							Type: bq.StringFieldType,
							Mode: bq.RepeatedMode,
						},
					},
					LastModified: time.Now(),
					Created:      time.Now(),
					Expires:      time.Now(),
				},
			},
		},
		{
			name:      "tables and views with descriptions",
			projectID: "test-project",
			datasetID: "sales_data",
			mocks: func(log zerolog.Logger) []*emulator.EndpointMock {
				transactions := &emulator.MockTable{
					TableID:     "transactions",
					Type:        "TABLE",
					Description: "All sales transactions",
					Columns: []emulator.MockColumn{
						{Name: "transaction_id", Type: "STRING", Mode: "REQUIRED", Description: "Unique transaction identifier"},
						{Name: "amount", Type: "NUMERIC", Mode: "NULLABLE", Description: "Sale amount in USD"},
					},
				}
				monthlySummary := &emulator.MockTable{
					TableID:     "monthly_summary",
					Type:        "VIEW",
					Description: "Monthly aggregated sales by product",
					Columns: []emulator.MockColumn{
						{Name: "month", Type: "DATE", Mode: "NULLABLE"},
						{Name: "total", Type: "NUMERIC", Mode: "NULLABLE"},
					},
				}

				return []*emulator.EndpointMock{
					emulator.TablesListMock("test-project", "sales_data", log, transactions, monthlySummary),
					emulator.TableGetMock("test-project", "sales_data", log, transactions),
					emulator.TableGetMock("test-project", "sales_data", log, monthlySummary),
				}
			},
			expect: []*bq.Table{
				{
					ProjectID:   "test-project",
					DatasetID:   "sales_data",
					TableID:     "transactions",
					Type:        bq.RegularTable,
					Description: "All sales transactions",
					Schema: []*bq.Column{
						{
							Name:        "transaction_id",
							Type:        bq.StringFieldType,
							Mode:        bq.RequiredMode,
							Description: "Unique transaction identifier",
						},
						{
							Name:        "amount",
							Type:        bq.NumericFieldType,
							Mode:        bq.NullableMode,
							Description: "Sale amount in USD",
						},
					},
				},
				{
					ProjectID:   "test-project",
					DatasetID:   "sales_data",
					TableID:     "monthly_summary",
					Type:        bq.ViewTable,
					Description: "Monthly aggregated sales by product",
					Schema: []*bq.Column{
						{
							Name: "month",
							Type: bq.DateFieldType,
							Mode: bq.NullableMode,
						},
						{
							Name: "total",
							Type: bq.NumericFieldType,
							Mode: bq.NullableMode,
						},
					},
				},
			},
		},
		{
			name:      "dataset not found",
			projectID: "test-project",
			datasetID: "nope",
			mocks: func(log zerolog.Logger) []*emulator.EndpointMock {
				return []*emulator.EndpointMock{
					emulator.ErrorMock(http.MethodGet, "/projects/test-project/datasets/nope/tables",
						http.StatusNotFound, "Not found: Dataset test-project:nope", log),
				}
			},
			expectErrIs: bq.ErrNotExist,
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			log := zerolog.New(os.Stdout)

			s := emulator.New(log)
			defer s.Cleanup()

			s.WithProject(tc.projectID, tc.schema)

			if tc.mocks != nil {
				s.EnableMock(false, log, tc.mocks(log)...)
			}

			s.TestServer()

			c := bq.NewClient(s.Endpoint(), false, nil, zerolog.Nop())

			got, err := c.GetTables(context.Background(), tc.projectID, tc.datasetID)
			if tc.expectErrIs != nil {
				assert.Error(t, err)
				assert.ErrorIs(t, err, tc.expectErrIs)
				assert.Nil(t, got)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, got)
				diff := cmp.Diff(
					tc.expect,
					got,
					cmpopts.IgnoreFields(bq.Table{}, "LastModified", "Created", "Expires"),
				)
				assert.Empty(t, diff)
			}
		})
	}
}

func TestClient_GetTable(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		projectID string
		datasetID string
		tableID   string
		schema    *emulator.Dataset
		expect    any
		expectErr bool
	}{
		{
			name:      "success",
			projectID: "test-project",
			datasetID: "test-dataset",
			tableID:   "test-table",
			schema: &emulator.Dataset{
				DatasetID: "test-dataset",
				TableID:   "test-table",
				Columns: []*types.Column{
					emulator.ColumnNullable("test-column"),
					emulator.ColumnRequired("test-column-required"),
					emulator.ColumnRepeated("test-column-repeated"),
				},
			},
			expect: &bq.Table{
				ProjectID: "test-project",
				DatasetID: "test-dataset",
				TableID:   "test-table",
				Type:      bq.RegularTable,
				Schema: []*bq.Column{
					{
						Name: "test-column",
						Type: bq.StringFieldType,
						Mode: bq.NullableMode,
					},
					{
						Name: "test-column-required",
						Type: bq.StringFieldType,
						Mode: bq.RequiredMode,
					},
					{
						Name: "test-column-repeated",
						Type: bq.StringFieldType,
						Mode: bq.RepeatedMode,
					},
				},
				LastModified: time.Now(),
				Created:      time.Now(),
				Expires:      time.Now(),
			},
		},
		{
			name:      "not found",
			projectID: "test-project",
			datasetID: "test-dataset",
			tableID:   "test-table",
			expect:    bq.ErrNotExist,
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := emulator.New(zerolog.New(os.Stdout))
			defer s.Cleanup()

			s.WithProject(tc.projectID, tc.schema)
			s.TestServer()

			c := bq.NewClient(s.Endpoint(), false, nil, zerolog.Nop())

			got, err := c.GetTable(context.Background(), tc.projectID, tc.datasetID, tc.tableID)
			if tc.expectErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				assert.Equal(t, tc.expect, err)
			} else {
				assert.NoError(t, err)
				diff := cmp.Diff(
					tc.expect,
					got,
					cmpopts.IgnoreFields(bq.Table{}, "LastModified", "Created", "Expires"),
				)
				assert.Empty(t, diff)
			}
		})
	}
}

const testData = `projects:
- id: test-project
  datasets:
    - id: test-dataset
      tables:
        - id: test-table
          columns:
            - name: id
              type: INTEGER
            - name: name
              type: STRING
            - name: createdAt
              type: TIMESTAMP
          data:
            - id: 1
              name: alice
              createdAt: "2022-10-21T00:00:00"
            - id: 2
              name: bob
              createdAt: "2022-10-21T00:00:00"
            - id: 3
              name: carol
              createdAt: "2022-10-21T00:00:00"
            - id: 4
              name: dave
              createdAt: "2022-10-21T00:00:00"
            - id: 5
              name: erin
              createdAt: "2022-10-21T00:00:00"
            - id: 6
              name: frank
              createdAt: "2022-10-21T00:00:00"
            - id: 7
              name: grace
              createdAt: "2022-10-21T00:00:00"`

func fileFromYAML(t *testing.T, data string) string {
	t.Helper()

	dir := t.TempDir()

	testFilePath := filepath.Join(dir, "test.yaml")

	err := os.WriteFile(testFilePath, []byte(data), 0o644)
	assert.NoError(t, err)

	return testFilePath
}

func TestClient_QueryPreview(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name              string
		projectID         string
		query             string
		maxRows           int
		expect            *bq.QueryResult
		expectErrIs       error
		expectErr         string
		expectErrContains string
	}{
		{
			name:      "full result under the cap",
			projectID: "test-project",
			query:     "SELECT id, name FROM `test-dataset.test-table` WHERE id <= 2 ORDER BY id",
			maxRows:   5,
			expect: &bq.QueryResult{
				Columns: []string{"id", "name"},
				Rows: [][]bigquery.Value{
					{int64(1), "alice"},
					{int64(2), "bob"},
				},
				TotalRows: 2,
			},
		},
		{
			name:      "capped at max rows",
			projectID: "test-project",
			query:     "SELECT id FROM `test-dataset.test-table` ORDER BY id",
			maxRows:   5,
			expect: &bq.QueryResult{
				Columns: []string{"id"},
				Rows: [][]bigquery.Value{
					{int64(1)},
					{int64(2)},
					{int64(3)},
					{int64(4)},
					{int64(5)},
				},
				TotalRows: 7,
			},
		},
		{
			name:      "select literal",
			projectID: "test-project",
			query:     "SELECT 1 AS x",
			maxRows:   5,
			expect: &bq.QueryResult{
				Columns: []string{"x"},
				Rows: [][]bigquery.Value{
					{int64(1)},
				},
				TotalRows: 1,
			},
		},
		{
			name:      "empty result keeps columns",
			projectID: "test-project",
			query:     "SELECT id, name FROM `test-dataset.test-table` WHERE id > 100",
			maxRows:   5,
			expect: &bq.QueryResult{
				Columns:   []string{"id", "name"},
				Rows:      [][]bigquery.Value{},
				TotalRows: 0,
			},
		},
		{
			name:        "missing table surfaces the engine message",
			projectID:   "test-project",
			query:       "SELECT * FROM `test-dataset.test-table-nope`",
			maxRows:     5,
			expectErrIs: bq.ErrQueryFailed,
			expectErr:   "query failed: failed to analyze: INVALID_ARGUMENT: Table not found: `test-dataset.test-table-nope`; Did you mean test-dataset.test-table? [at 1:15]",
		},
		{
			name:              "syntax error surfaces the engine message",
			projectID:         "test-project",
			query:             "SELECT FROM WHERE",
			maxRows:           5,
			expectErrIs:       bq.ErrQueryFailed,
			expectErrContains: "Syntax error",
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := emulator.New(zerolog.New(os.Stdout))
			defer s.Cleanup()

			s.WithSource(tc.projectID, server.YAMLSource(fileFromYAML(t, testData)))
			s.TestServer()

			c := bq.NewClient(s.Endpoint(), false, nil, zerolog.Nop())

			got, err := c.QueryPreview(context.Background(), tc.projectID, tc.query, tc.maxRows)
			if tc.expectErrIs != nil {
				assert.Error(t, err)
				assert.ErrorIs(t, err, tc.expectErrIs)
				assert.Nil(t, got)

				if tc.expectErr != "" {
					assert.Equal(t, tc.expectErr, err.Error())
				}

				if tc.expectErrContains != "" {
					assert.Contains(t, err.Error(), tc.expectErrContains)
				}
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, got)
				diff := cmp.Diff(tc.expect, got)
				assert.Empty(t, diff)
			}
		})
	}
}

func TestClient_QueryNotFoundKeepsEngineMessage(t *testing.T) {
	t.Parallel()

	// The real API reports a query over a missing table as a 404 on
	// jobs.insert; the engine text must survive, not collapse into the
	// not-exist sentinel.
	const engineText = "Not found: Table test-project:sales_data.nope was not found in location EU"

	testCases := []struct {
		name string
		call func(c *bq.Client) error
	}{
		{
			name: "query preview",
			call: func(c *bq.Client) error {
				_, err := c.QueryPreview(context.Background(), "test-project", "SELECT * FROM `sales_data.nope`", 5)

				return err
			},
		},
		{
			name: "dry run",
			call: func(c *bq.Client) error {
				_, err := c.DryRunQuery(context.Background(), "test-project", "SELECT * FROM `sales_data.nope`")

				return err
			},
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			log := zerolog.New(os.Stdout)

			s := emulator.New(log)
			defer s.Cleanup()

			s.WithProject("test-project", nil)
			s.EnableMock(false, log,
				emulator.ErrorMock(http.MethodPost, "/projects/test-project/jobs",
					http.StatusNotFound, engineText, log),
			)
			s.TestServer()

			c := bq.NewClient(s.Endpoint(), false, nil, zerolog.Nop())

			err := tc.call(c)
			assert.Error(t, err)
			assert.ErrorIs(t, err, bq.ErrQueryFailed)
			assert.NotErrorIs(t, err, bq.ErrNotExist)
			assert.Contains(t, err.Error(), engineText)
		})
	}
}

func TestClient_DryRunQuery(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name              string
		projectID         string
		query             string
		expectErrIs       error
		expectErrContains string
	}{
		{
			name:      "valid query",
			projectID: "test-project",
			query:     "SELECT id, name FROM `test-dataset.test-table`",
		},
		{
			name:              "missing table fails validation",
			projectID:         "test-project",
			query:             "SELECT * FROM `test-dataset.nope`",
			expectErrIs:       bq.ErrQueryFailed,
			expectErrContains: "Table not found",
		},
	}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := emulator.New(zerolog.New(os.Stdout))
			defer s.Cleanup()

			s.WithSource(tc.projectID, server.YAMLSource(fileFromYAML(t, testData)))
			s.TestServer()

			c := bq.NewClient(s.Endpoint(), false, nil, zerolog.Nop())

			got, err := c.DryRunQuery(context.Background(), tc.projectID, tc.query)
			if tc.expectErrIs != nil {
				assert.Error(t, err)
				assert.ErrorIs(t, err, tc.expectErrIs)
				assert.Nil(t, got)
				assert.Contains(t, err.Error(), tc.expectErrContains)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, got)
			}
		})
	}
}
