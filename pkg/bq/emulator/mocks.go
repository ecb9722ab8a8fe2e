package emulator

import (
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// EndpointMock intercepts a single API endpoint before the request
// reaches the emulator, for responses the emulator cannot produce
// itself, like descriptions, view metadata and error statuses.
type EndpointMock struct {
	Path    string
	Method  string
	Handler http.HandlerFunc
}

type MockDataset struct {
	DatasetID   string
	Description string
}

type MockTable struct {
	TableID     string
	Type        string
	Description string
	Columns     []MockColumn
}

type MockColumn struct {
	Name        string
	Type        string
	Mode        string
	Description string
}

type datasetReference struct {
	ProjectID string `json:"projectId"`
	DatasetID string `json:"datasetId"`
}

type tableReference struct {
	ProjectID string `json:"projectId"`
	DatasetID string `json:"datasetId"`
	TableID   string `json:"tableId"`
}

type datasetListResponse struct {
	Kind     string             `json:"kind"`
	Datasets []datasetListEntry `json:"datasets"`
}

type datasetListEntry struct {
	Kind             string           `json:"kind"`
	ID               string           `json:"id"`
	DatasetReference datasetReference `json:"datasetReference"`
}

type datasetGetResponse struct {
	Kind             string           `json:"kind"`
	ID               string           `json:"id"`
	DatasetReference datasetReference `json:"datasetReference"`
	Description      string           `json:"description,omitempty"`
}

type tableListResponse struct {
	Kind       string           `json:"kind"`
	TotalItems int              `json:"totalItems"`
	Tables     []tableListEntry `json:"tables"`
}

type tableListEntry struct {
	Kind           string         `json:"kind"`
	ID             string         `json:"id"`
	TableReference tableReference `json:"tableReference"`
	Type           string         `json:"type"`
}

type tableGetResponse struct {
	Kind           string         `json:"kind"`
	ID             string         `json:"id"`
	TableReference tableReference `json:"tableReference"`
	Type           string         `json:"type"`
	Description    string         `json:"description,omitempty"`
	Schema         *tableSchema   `json:"schema,omitempty"`
}

type tableSchema struct {
	Fields []schemaField `json:"fields"`
}

type schemaField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Mode        string `json:"mode,omitempty"`
	Description string `json:"description,omitempty"`
}

type errorResponse struct {
	Error errorProto `json:"error"`
}

type errorProto struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Errors  []errorItem `json:"errors"`
}

type errorItem struct {
	Message string `json:"message"`
	Domain  string `json:"domain"`
	Reason  string `json:"reason"`
}

func respondJSON(w http.ResponseWriter, log zerolog.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode mock response")
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// DatasetsListMock answers the dataset listing for a project.
func DatasetsListMock(projectID string, log zerolog.Logger, datasetIDs ...string) *EndpointMock {
	handlerFn := func(w http.ResponseWriter, r *http.Request) {
		resp := datasetListResponse{
			Kind: "bigquery#datasetList",
		}

		for _, id := range datasetIDs {
			resp.Datasets = append(resp.Datasets, datasetListEntry{
				Kind: "bigquery#dataset",
				ID:   fmt.Sprintf("%s:%s", projectID, id),
				DatasetReference: datasetReference{
					ProjectID: projectID,
					DatasetID: id,
				},
			})
		}

		respondJSON(w, log, resp)
	}

	return &EndpointMock{
		Method:  http.MethodGet,
		Path:    fmt.Sprintf("/projects/%s/datasets", projectID),
		Handler: handlerFn,
	}
}

// DatasetGetMock answers the metadata lookup for a single dataset,
// including the description the emulator's own seed format cannot
// carry.
func DatasetGetMock(projectID string, log zerolog.Logger, dataset *MockDataset) *EndpointMock {
	handlerFn := func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, log, datasetGetResponse{
			Kind: "bigquery#dataset",
			ID:   fmt.Sprintf("%s:%s", projectID, dataset.DatasetID),
			DatasetReference: datasetReference{
				ProjectID: projectID,
				DatasetID: dataset.DatasetID,
			},
			Description: dataset.Description,
		})
	}

	return &EndpointMock{
		Method:  http.MethodGet,
		Path:    fmt.Sprintf("/projects/%s/datasets/%s", projectID, dataset.DatasetID),
		Handler: handlerFn,
	}
}

// TablesListMock answers the table listing for a dataset.
func TablesListMock(projectID, datasetID string, log zerolog.Logger, tables ...*MockTable) *EndpointMock {
	handlerFn := func(w http.ResponseWriter, r *http.Request) {
		resp := tableListResponse{
			Kind:       "bigquery#tableList",
			TotalItems: len(tables),
		}

		for _, table := range tables {
			resp.Tables = append(resp.Tables, tableListEntry{
				Kind: "bigquery#table",
				ID:   fmt.Sprintf("%s:%s.%s", projectID, datasetID, table.TableID),
				TableReference: tableReference{
					ProjectID: projectID,
					DatasetID: datasetID,
					TableID:   table.TableID,
				},
				Type: table.Type,
			})
		}

		respondJSON(w, log, resp)
	}

	return &EndpointMock{
		Method:  http.MethodGet,
		Path:    fmt.Sprintf("/projects/%s/datasets/%s/tables", projectID, datasetID),
		Handler: handlerFn,
	}
}

// TableGetMock answers the metadata lookup for a single table or
// view, with type, description and column schema.
func TableGetMock(projectID, datasetID string, log zerolog.Logger, table *MockTable) *EndpointMock {
	handlerFn := func(w http.ResponseWriter, r *http.Request) {
		resp := tableGetResponse{
			Kind: "bigquery#table",
			ID:   fmt.Sprintf("%s:%s.%s", projectID, datasetID, table.TableID),
			TableReference: tableReference{
				ProjectID: projectID,
				DatasetID: datasetID,
				TableID:   table.TableID,
			},
			Type:        table.Type,
			Description: table.Description,
		}

		if len(table.Columns) > 0 {
			schema := &tableSchema{}
			for _, col := range table.Columns {
				schema.Fields = append(schema.Fields, schemaField{
					Name:        col.Name,
					Type:        col.Type,
					Mode:        col.Mode,
					Description: col.Description,
				})
			}

			resp.Schema = schema
		}

		respondJSON(w, log, resp)
	}

	return &EndpointMock{
		Method:  http.MethodGet,
		Path:    fmt.Sprintf("/projects/%s/datasets/%s/tables/%s", projectID, datasetID, table.TableID),
		Handler: handlerFn,
	}
}

// ErrorMock answers any endpoint with an API error in the wire
// format the google clients parse into a googleapi.Error.
func ErrorMock(method, path string, statusCode int, message string, log zerolog.Logger) *EndpointMock {
	var reason string
	switch statusCode {
	case http.StatusNotFound:
		reason = "notFound"
	case http.StatusForbidden:
		reason = "accessDenied"
	case http.StatusUnauthorized:
		reason = "authError"
	case http.StatusBadRequest:
		reason = "invalid"
	default:
		reason = "error"
	}

	handlerFn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		err := json.NewEncoder(w).Encode(errorResponse{
			Error: errorProto{
				Code:    statusCode,
				Message: message,
				Errors: []errorItem{
					{
						Message: message,
						Domain:  "global",
						Reason:  reason,
					},
				},
			},
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode mock error response")
		}
	}

	return &EndpointMock{
		Method:  method,
		Path:    path,
		Handler: handlerFn,
	}
}
