package client

import (
	"encoding/json"
)

// SQLResult is the decoded response of a statement execution.
type SQLResult struct {
	// Cols names the selected columns, in order.
	Cols []string `json:"cols"`

	// ColTypes carries the server's column type codes when they were
	// requested. A nested collection type is encoded as an array, so the
	// elements stay untyped here.
	ColTypes []any `json:"col_types"`

	// Rows holds one slice per result row, aligned with Cols.
	Rows [][]any `json:"rows"`

	// RowCount is the number of affected or returned rows. The server
	// reports -1 when the count is unknown.
	RowCount int64 `json:"rowcount"`

	// Duration is the server-side execution time in milliseconds.
	Duration float64 `json:"duration"`

	// Results carries the per-parameter-set outcomes of a bulk execution.
	Results []BulkResult `json:"results"`
}

// BulkResult is the outcome of a single parameter set within a bulk
// execution.
type BulkResult struct {
	RowCount     int64  `json:"rowcount"`
	ErrorMessage string `json:"error_message"`
}

// ServerInfo describes a single server, taken from its root resource.
type ServerInfo struct {
	Server      string
	Name        string
	ClusterName string
	Version     string
}

// ServerStatus is one server's entry in a cluster health report.
type ServerStatus struct {
	Server string
	// Active reflects the pool partition when the probe started.
	Active bool
	// Info is set when the probe succeeded.
	Info *ServerInfo
	// Err is set when the probe failed or was cut short.
	Err error
}

type serverInfoPayload struct {
	Name        string `json:"name"`
	ClusterName string `json:"cluster_name"`
	Version     struct {
		Number string `json:"number"`
	} `json:"version"`
}

func decodeSQLResult(body []byte) (*SQLResult, error) {
	result := &SQLResult{}
	if err := json.Unmarshal(body, result); err != nil {
		return nil, &ProgrammingError{Message: "invalid statement response: " + err.Error()}
	}
	return result, nil
}

func decodeServerInfo(server string, body []byte) (*ServerInfo, error) {
	var payload serverInfoPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ProgrammingError{Message: "invalid server info response: " + err.Error()}
	}
	return &ServerInfo{
		Server:      server,
		Name:        payload.Name,
		ClusterName: payload.ClusterName,
		Version:     payload.Version.Number,
	}, nil
}
