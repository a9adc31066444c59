// Package erp is the client for the remote ERP reporting API.
package erp

// ExportParams carries the export request filters. Validation is the
// remote side's responsibility; the client forwards what it is given.
type ExportParams struct {
	Format    string `json:"format"`
	Vendor    string `json:"vendor,omitempty"`
	Category  string `json:"category,omitempty"`
	DateFrom  string `json:"date_from,omitempty"`
	DateTo    string `json:"date_to,omitempty"`
	ReportKey string `json:"report_key,omitempty"`
}

// StartExportResult is the remote response to an export request. Exactly
// one of TaskID (asynchronous path) or FilePath (synchronous completion)
// is expected on success.
type StartExportResult struct {
	Error    bool   `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// StatusInfo carries remote progress counters.
type StatusInfo struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// StatusResult is the remote job status snapshot.
type StatusResult struct {
	Status string        `json:"status"`
	Info   *StatusInfo   `json:"info,omitempty"`
	Result *StatusOutput `json:"result,omitempty"`
}

// StatusOutput carries the terminal result payload.
type StatusOutput struct {
	FilePath string `json:"file_path"`
}
