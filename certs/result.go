package certs

// RenderResult is the outcome of producing one record's document
type RenderResult struct {
	RecordID     string   `json:"record_id"`
	DocumentPath string   `json:"document_path,omitempty"`
	Reason       Kind     `json:"reason,omitempty"`
	Message      string   `json:"message,omitempty"`
	DisplayName  string   `json:"display_name,omitempty"`
	NameParts    []string `json:"name_parts,omitempty"`
	Reused       bool     `json:"reused,omitempty"`    // an existing valid document was kept
	Recovered    bool     `json:"recovered,omitempty"` // found under an alternate path or regenerated
}

// OK reports whether a document is available for the record
func (r *RenderResult) OK() bool {
	return r.DocumentPath != ""
}

// ErrorLine is the job error entry for a non-clean outcome, "" for a clean one
func (r *RenderResult) ErrorLine() string {
	switch {
	case !r.OK():
		return "record " + r.RecordID + ": " + string(r.Reason) + ": " + r.Message
	case r.Recovered:
		return "record " + r.RecordID + ": recovered: " + r.Message
	default:
		return ""
	}
}

// Failed builds a failure result from err
func Failed(recordID string, err error) RenderResult {
	return RenderResult{RecordID: recordID, Reason: KindOf(err), Message: causeMessage(err)}
}

func causeMessage(err error) string {
	if e, ok := err.(*Error); ok && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
