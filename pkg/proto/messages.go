// Package proto defines the wire contracts shared between the search service
// and its callers: RPC method names and the Kafka event that asks the
// service to reload a dataset.
//
// The SET_DATA / SEARCH message bodies themselves are worker.Request and
// worker.Response; this package only holds what crosses a process boundary
// without going through the worker.
package proto

// RPC method names served by the record store RPC surface.
const (
	MethodSetData = "RecordStore.SetData"
	MethodSearch  = "RecordStore.Search"
	MethodStats   = "RecordStore.Stats"
	MethodReload  = "RecordStore.Reload"
)

// DatasetChanged is published on the dataset-changed topic whenever the
// ledger data behind a factory's dataset was modified. Source names the
// record source to fetch from ("postgres" or "redis"); empty means the
// configured default.
type DatasetChanged struct {
	Source     string `json:"source,omitempty"`
	Factory    string `json:"factory"`
	SearchTerm string `json:"searchTerm,omitempty"`
}

// ReloadRequest asks the service to fetch a dataset from a source and load
// it, answering with the search results for SearchTerm.
type ReloadRequest struct {
	Source         string `json:"source,omitempty"`
	Factory        string `json:"factory"`
	SearchTerm     string `json:"searchTerm,omitempty"`
	SequenceNumber int64  `json:"sequenceNumber"`
}

// ReloadFromEvent converts a DatasetChanged event into a ReloadRequest.
func ReloadFromEvent(ev DatasetChanged) ReloadRequest {
	return ReloadRequest{Source: ev.Source, Factory: ev.Factory, SearchTerm: ev.SearchTerm}
}
