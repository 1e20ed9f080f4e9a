package batch

// ItemStatus is the processing outcome of a single ingested record.
type ItemStatus string

// Ingestion item status values.
const (
	StatusOK      ItemStatus = "ok"
	StatusSkipped ItemStatus = "skipped"
)

// Result is the outcome of processing one record in an ingestion batch.
// A skipped record carries the error that excluded it; the batch continues.
type Result struct {
	id     string
	status ItemStatus
	err    error
}

// NewOK creates a successful item result.
func NewOK(id string) Result { return Result{id: id, status: StatusOK} }

// NewSkipped creates a skipped item result with the reason.
func NewSkipped(id string, err error) Result {
	return Result{id: id, status: StatusSkipped, err: err}
}

// ID returns the record identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the skip reason, if any.
func (r Result) Err() error { return r.err }
