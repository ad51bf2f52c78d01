package services

import (
	"context"
	"sync"
	"time"

	"github.com/quorumsec/auditcore/internal/models"
	"github.com/rs/zerolog/log"
)

// Defaults applied to registered endpoints that leave tuning fields
// unset.
const (
	defaultBatchSize       = 100
	defaultFlushIntervalMs = 30000
	defaultRetryAttempts   = 3
	defaultRetryDelayMs    = 1000

	// endpointQueueCap bounds each endpoint's outbound queue so a dead
	// collector cannot grow memory without limit.
	endpointQueueCap = 10000
)

// SendFunc delivers one batch to one endpoint. The production value is
// siem.Sender.Send; tests substitute their own.
type SendFunc func(ctx context.Context, endpoint models.SIEMEndpoint, events []models.AuditEvent) error

// ShipperServiceProvider defines the interface for the SIEM shipping
// pipeline and its endpoint registry.
type ShipperServiceProvider interface {
	RegisterEndpoint(endpoint models.SIEMEndpoint)
	UnregisterEndpoint(id string)
	SetEndpointEnabled(id string, enabled bool)
	GetEndpoints() []models.SIEMEndpoint
	GetStats(id string) (models.ShipperStats, bool)
	GetAllStats() map[string]models.ShipperStats
	FlushEndpoint(id string) bool
	FlushAll()
	Close()
}

// ShipperService owns the outbound side of the audit pipeline: one
// bounded queue and one flush worker per registered endpoint. Every
// accepted event is fanned out to every endpoint's queue at log time,
// so a failing endpoint re-queues only into its own backlog and cannot
// disturb delivery to the others.
type ShipperService struct {
	mu        sync.Mutex
	endpoints map[string]*models.SIEMEndpoint
	stats     map[string]*models.ShipperStats
	queues    map[string][]models.AuditEvent
	workers   map[string]chan struct{}
	send      SendFunc
	closed    bool
}

// NewShipperService creates a ShipperService delivering through send.
func NewShipperService(send SendFunc) *ShipperService {
	return &ShipperService{
		endpoints: make(map[string]*models.SIEMEndpoint),
		stats:     make(map[string]*models.ShipperStats),
		queues:    make(map[string][]models.AuditEvent),
		workers:   make(map[string]chan struct{}),
		send:      send,
	}
}

// RegisterEndpoint stores the endpoint config, resets its stats and
// queue, and starts its flush worker when enabled. Re-registering an
// ID replaces the previous config, stats, queue, and worker wholesale.
func (s *ShipperService) RegisterEndpoint(endpoint models.SIEMEndpoint) {
	applyEndpointDefaults(&endpoint)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.stopWorkerLocked(endpoint.ID)
	s.endpoints[endpoint.ID] = &endpoint
	s.stats[endpoint.ID] = &models.ShipperStats{}
	s.queues[endpoint.ID] = nil
	if endpoint.Enabled {
		s.startWorkerLocked(endpoint.ID)
	}
	log.Info().Str("endpoint", endpoint.ID).Str("type", endpoint.Type).Bool("enabled", endpoint.Enabled).Msg("Registered SIEM endpoint")
}

// UnregisterEndpoint stops the endpoint's worker and removes its
// config, stats, and queued events. Unknown IDs are a no-op.
func (s *ShipperService) UnregisterEndpoint(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[id]; !ok {
		return
	}
	s.stopWorkerLocked(id)
	delete(s.endpoints, id)
	delete(s.stats, id)
	delete(s.queues, id)
	log.Info().Str("endpoint", id).Msg("Unregistered SIEM endpoint")
}

// SetEndpointEnabled toggles an endpoint. Enabling (re)starts its flush
// worker; disabling stops it. Unknown IDs are a no-op.
func (s *ShipperService) SetEndpointEnabled(id string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	endpoint, ok := s.endpoints[id]
	if !ok {
		return
	}
	endpoint.Enabled = enabled
	if enabled && !s.closed {
		s.startWorkerLocked(id)
	} else {
		s.stopWorkerLocked(id)
	}
	log.Info().Str("endpoint", id).Bool("enabled", enabled).Msg("Toggled SIEM endpoint")
}

// GetEndpoints returns a snapshot of every registered endpoint config.
func (s *ShipperService) GetEndpoints() []models.SIEMEndpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	endpoints := make([]models.SIEMEndpoint, 0, len(s.endpoints))
	for _, endpoint := range s.endpoints {
		endpoints = append(endpoints, *endpoint)
	}
	return endpoints
}

// GetStats returns the delivery counters for one endpoint.
func (s *ShipperService) GetStats(id string) (models.ShipperStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.stats[id]
	if !ok {
		return models.ShipperStats{}, false
	}
	snapshot := *stats
	snapshot.QueueSize = len(s.queues[id])
	return snapshot, true
}

// GetAllStats returns the id -> stats mapping for every endpoint.
func (s *ShipperService) GetAllStats() map[string]models.ShipperStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make(map[string]models.ShipperStats, len(s.stats))
	for id, stats := range s.stats {
		snapshot := *stats
		snapshot.QueueSize = len(s.queues[id])
		all[id] = snapshot
	}
	return all
}

// Offer fans one accepted event out to every endpoint's queue and
// triggers an immediate flush on any enabled endpoint whose queue has
// reached its batch size. Implements EventSink.
func (s *ShipperService) Offer(event models.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || len(s.endpoints) == 0 {
		return
	}
	for id, endpoint := range s.endpoints {
		queue := append(s.queues[id], event)
		if len(queue) > endpointQueueCap {
			queue = queue[len(queue)-endpointQueueCap:]
		}
		s.queues[id] = queue
		s.stats[id].QueueSize = len(queue)

		if endpoint.Enabled && len(queue) >= endpoint.BatchSize {
			go s.FlushEndpoint(id)
		}
	}
}

// FlushEndpoint drains the endpoint's queue into one batch and attempts
// delivery under the endpoint's retry policy. On success the stats are
// advanced; on exhausted retries the batch is re-prepended (bounded) so
// a later flush retries it before newer events. Returns false on an
// unknown endpoint or a failed delivery.
func (s *ShipperService) FlushEndpoint(id string) bool {
	s.mu.Lock()
	endpointPtr, ok := s.endpoints[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	endpoint := *endpointPtr
	batch := s.queues[id]
	s.queues[id] = nil
	s.stats[id].QueueSize = 0
	s.mu.Unlock()

	if len(batch) == 0 {
		return true
	}

	err := s.deliver(endpoint, batch)

	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.stats[id]
	if !ok {
		// Unregistered while the delivery was in flight.
		return err == nil
	}
	if err == nil {
		stats.TotalShipped += int64(len(batch))
		stats.LastShipTime = time.Now().UnixMilli()
		stats.LastError = ""
		stats.QueueSize = len(s.queues[id])
		return true
	}

	stats.TotalFailed += int64(len(batch))
	stats.LastError = err.Error()
	requeued := append(batch, s.queues[id]...)
	if len(requeued) > endpointQueueCap {
		requeued = requeued[:endpointQueueCap]
	}
	s.queues[id] = requeued
	stats.QueueSize = len(requeued)
	log.Warn().Err(err).Str("endpoint", id).Int("batch", len(batch)).Msg("SIEM delivery failed, batch re-queued")
	return false
}

// FlushAll sequentially flushes every enabled endpoint.
func (s *ShipperService) FlushAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.endpoints))
	for id, endpoint := range s.endpoints {
		if endpoint.Enabled {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.FlushEndpoint(id)
	}
}

// deliver attempts delivery with linear backoff: after the k-th failed
// attempt it sleeps retryDelay*k before trying again, and returns the
// last error once every attempt is spent.
func (s *ShipperService) deliver(endpoint models.SIEMEndpoint, batch []models.AuditEvent) error {
	attempts := endpoint.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := time.Duration(endpoint.RetryDelayMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = s.send(context.Background(), endpoint, batch)
		if lastErr == nil {
			return nil
		}
		log.Warn().Err(lastErr).Str("endpoint", endpoint.ID).Int("attempt", attempt).Msg("SIEM delivery attempt failed")
		if attempt < attempts {
			time.Sleep(delay * time.Duration(attempt))
		}
	}
	return lastErr
}

// Close stops every flush worker, then performs one best-effort final
// flush to each enabled endpoint. Safe to call more than once.
func (s *ShipperService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id := range s.workers {
		s.stopWorkerLocked(id)
	}
	s.mu.Unlock()

	s.FlushAll()
	log.Info().Msg("SIEM shipper stopped")
}

// startWorkerLocked arms the endpoint's periodic flush timer, replacing
// any prior worker so timers cannot leak. Caller holds s.mu.
func (s *ShipperService) startWorkerLocked(id string) {
	s.stopWorkerLocked(id)

	interval := time.Duration(s.endpoints[id].FlushIntervalMs) * time.Millisecond
	stop := make(chan struct{})
	s.workers[id] = stop
	go s.runWorker(id, interval, stop)
}

// stopWorkerLocked cancels the endpoint's flush timer if one is armed.
// Caller holds s.mu.
func (s *ShipperService) stopWorkerLocked(id string) {
	if stop, ok := s.workers[id]; ok {
		close(stop)
		delete(s.workers, id)
	}
}

// runWorker is the per-endpoint flush loop, one periodic timer per
// enabled endpoint.
func (s *ShipperService) runWorker(id string, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.FlushEndpoint(id)
		}
	}
}

// applyEndpointDefaults fills unset tuning fields on registration.
func applyEndpointDefaults(endpoint *models.SIEMEndpoint) {
	if endpoint.BatchSize <= 0 {
		endpoint.BatchSize = defaultBatchSize
	}
	if endpoint.FlushIntervalMs <= 0 {
		endpoint.FlushIntervalMs = defaultFlushIntervalMs
	}
	if endpoint.RetryAttempts <= 0 {
		endpoint.RetryAttempts = defaultRetryAttempts
	}
	if endpoint.RetryDelayMs <= 0 {
		endpoint.RetryDelayMs = defaultRetryDelayMs
	}
}
