package handler

import (
	"sync"

	"github.com/voltgrid/csms/internal/domain"
)

// DataTransfer response statuses shared by both versions.
const (
	DataTransferAccepted       = "Accepted"
	DataTransferRejected       = "Rejected"
	DataTransferUnknownVendor  = "UnknownVendorId"
	DataTransferUnknownMessage = "UnknownMessageId"
)

// DataTransferFunc handles one vendor-scoped DataTransfer message and returns
// the response status plus optional response data.
type DataTransferFunc func(stationID string, version domain.ProtocolVersion, messageID, data string) (status, responseData string)

// DataTransferRegistry maps vendor ids to their handlers. Unregistered
// vendors are answered with UnknownVendorId.
type DataTransferRegistry struct {
	mu      sync.RWMutex
	vendors map[string]DataTransferFunc
}

func NewDataTransferRegistry() *DataTransferRegistry {
	return &DataTransferRegistry{vendors: make(map[string]DataTransferFunc)}
}

func (r *DataTransferRegistry) Register(vendorID string, fn DataTransferFunc) {
	r.mu.Lock()
	r.vendors[vendorID] = fn
	r.mu.Unlock()
}

func (r *DataTransferRegistry) Dispatch(stationID string, version domain.ProtocolVersion, vendorID, messageID, data string) (string, string) {
	r.mu.RLock()
	fn, ok := r.vendors[vendorID]
	r.mu.RUnlock()
	if !ok {
		return DataTransferUnknownVendor, ""
	}
	return fn(stationID, version, messageID, data)
}
