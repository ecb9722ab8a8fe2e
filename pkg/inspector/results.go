package inspector

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/navikt/bqinspect/pkg/bq"
	"github.com/navikt/bqinspect/pkg/render"
)

// DatasetListing is the outcome of a list-datasets operation.
type DatasetListing struct {
	ProjectID string
	Datasets  []*bq.Dataset
}

func (l *DatasetListing) Empty() bool {
	return len(l.Datasets) == 0
}

func (l *DatasetListing) Table() render.Table {
	rows := make([][]string, len(l.Datasets))
	for i, ds := range l.Datasets {
		rows[i] = []string{ds.DatasetID, ds.Description}
	}

	return render.Table{
		Columns: []string{"Dataset ID", "Description"},
		Rows:    rows,
	}
}

// TableListing is the outcome of a list-tables operation, in the
// order the warehouse returned the tables.
type TableListing struct {
	ProjectID string
	DatasetID string
	Tables    []*bq.Table
}

func (l *TableListing) Empty() bool {
	return len(l.Tables) == 0
}

func (l *TableListing) Table() render.Table {
	rows := make([][]string, len(l.Tables))
	for i, t := range l.Tables {
		rows[i] = []string{t.TableID, string(t.Type), t.Description}
	}

	return render.Table{
		Columns: []string{"Table ID", "Type", "Description"},
		Rows:    rows,
	}
}

// TableSchema is the outcome of a get-schema operation, columns in
// declaration order.
type TableSchema struct {
	ProjectID string
	DatasetID string
	TableID   string
	Columns   []*bq.Column
}

func (s *TableSchema) Table() render.Table {
	rows := make([][]string, len(s.Columns))
	for i, c := range s.Columns {
		rows[i] = []string{c.Name, string(c.Type), nullableLabel(c.Mode), c.Description}
	}

	return render.Table{
		Columns: []string{"Column Name", "Data Type", "Nullable", "Description"},
		Rows:    rows,
	}
}

func nullableLabel(mode bq.ColumnMode) string {
	if mode == bq.NullableMode {
		return "YES"
	}

	return "NO"
}

// QueryPreview is the outcome of a run-query operation: at most the
// configured number of rows, with the full column set and the true
// result cardinality.
type QueryPreview struct {
	ProjectID string
	Columns   []string
	Rows      [][]bigquery.Value
	TotalRows uint64
}

func (p *QueryPreview) Empty() bool {
	return len(p.Rows) == 0
}

func (p *QueryPreview) Table() render.Table {
	rows := make([][]string, len(p.Rows))
	for i, row := range p.Rows {
		cells := make([]string, len(row))
		for j, value := range row {
			cells[j] = FormatValue(value)
		}

		rows[i] = cells
	}

	return render.Table{
		Columns: p.Columns,
		Rows:    rows,
	}
}

// QueryValidation is the outcome of a dry run. It never carries row
// data.
type QueryValidation struct {
	ProjectID           string
	TotalBytesProcessed int64
}

func (v *QueryValidation) Message() string {
	return fmt.Sprintf("Query validation successful. Estimated bytes processed: %d bytes.", v.TotalBytesProcessed)
}

// FormatValue renders a single result scalar as its table cell. Null
// becomes an empty cell.
func FormatValue(v bigquery.Value) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case *big.Rat:
		return ratString(value)
	case time.Time:
		return value.Format(time.RFC3339)
	case civil.Date:
		return value.String()
	case civil.Time:
		return value.String()
	case civil.DateTime:
		return value.String()
	case []byte:
		return base64.StdEncoding.EncodeToString(value)
	case []bigquery.Value:
		parts := make([]string, len(value))
		for i, elem := range value {
			parts[i] = FormatValue(elem)
		}

		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(value)
	}
}

// ratString drops the padding zeroes NUMERIC values come with, so 57.85
// does not render as 57.850000000.
func ratString(r *big.Rat) string {
	s := strings.TrimRight(r.FloatString(9), "0")

	return strings.TrimRight(s, ".")
}
