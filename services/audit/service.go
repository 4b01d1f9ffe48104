package audit

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/helpdesk/ticket-gateway/models"
	"github.com/helpdesk/ticket-gateway/repositories"
	"go.uber.org/zap"
)

var (
	ErrNotStarted     = errors.New("audit service not started")
	ErrAlreadyStarted = errors.New("audit service already started")
	ErrBufferFull     = errors.New("audit event buffer full")
)

// Config sizes the pipeline. Zero fields take DefaultConfig values.
type Config struct {
	BufferSize    int
	Workers       int
	InsertTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferSize:    10000,
		Workers:       5,
		InsertTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.InsertTimeout <= 0 {
		c.InsertTimeout = d.InsertTimeout
	}
	return c
}

// Service writes the audit trail asynchronously. Requests never wait on
// the database: entries are queued and a fixed pool of workers inserts
// them. When the queue is full new entries are dropped and counted.
type Service struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
	cfg    Config

	// mu guards started and the queue's open/closed state
	mu      sync.RWMutex
	started bool
	queue   chan *models.AuditLog
	wg      sync.WaitGroup

	written atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

func NewService(repo repositories.AuditRepository, logger *zap.Logger, cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		repo:   repo,
		logger: logger,
		cfg:    cfg,
	}
}

// Start launches the workers. A stopped service can be started again.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	s.queue = make(chan *models.AuditLog, s.cfg.BufferSize)
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i, s.queue)
	}
	s.started = true

	s.logger.Info("audit service started",
		zap.Int("workers", s.cfg.Workers),
		zap.Int("buffer_size", s.cfg.BufferSize))
	return nil
}

// Stop closes the queue and waits up to timeout for queued entries to be
// written
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	pending := len(s.queue)
	close(s.queue)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped",
			zap.Uint64("written", s.written.Load()),
			zap.Uint64("failed", s.failed.Load()),
			zap.Uint64("dropped", s.dropped.Load()))
		return nil
	case <-time.After(timeout):
		return errors.New("audit service stop timed out after " + timeout.String())
	}
}

// Record queues log without blocking
func (s *Service) Record(log *models.AuditLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}

	select {
	case s.queue <- log:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit queue full, dropping entry",
			zap.String("action", string(log.Action)),
			zap.String("request_id", log.RequestID))
		return ErrBufferFull
	}
}

func (s *Service) worker(id int, queue <-chan *models.AuditLog) {
	defer s.wg.Done()

	for log := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.InsertTimeout)
		err := s.repo.Insert(ctx, log)
		cancel()

		if err != nil {
			s.failed.Add(1)
			s.logger.Error("failed to write audit entry",
				zap.Int("worker_id", id),
				zap.String("action", string(log.Action)),
				zap.String("request_id", log.RequestID),
				zap.Error(err))
			continue
		}
		s.written.Add(1)
	}
}

// Stats is a point-in-time view of the pipeline
type Stats struct {
	Started    bool   `json:"started"`
	Workers    int    `json:"workers"`
	BufferSize int    `json:"buffer_size"`
	Pending    int    `json:"pending"`
	Written    uint64 `json:"written"`
	Failed     uint64 `json:"failed"`
	Dropped    uint64 `json:"dropped"`
}

func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := 0
	if s.started {
		pending = len(s.queue)
	}
	return Stats{
		Started:    s.started,
		Workers:    s.cfg.Workers,
		BufferSize: s.cfg.BufferSize,
		Pending:    pending,
		Written:    s.written.Load(),
		Failed:     s.failed.Load(),
		Dropped:    s.dropped.Load(),
	}
}

// RequestMeta carries the request attributes recorded with every entry
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

func newEntry(action models.AuditAction, resourceType string, meta RequestMeta) *models.AuditLog {
	return models.NewAuditLog(action, resourceType).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
}

func (s *Service) LogSessionLogin(userID int64, sessionID string, meta RequestMeta) error {
	return s.Record(newEntry(models.AuditActionSessionLogin, "session", meta).
		WithUser(userID).
		WithResource(sessionID))
}

func (s *Service) LogSessionLogout(userID int64, sessionID string, meta RequestMeta) error {
	return s.Record(newEntry(models.AuditActionSessionLogout, "session", meta).
		WithUser(userID).
		WithResource(sessionID))
}

// LogAccessDenied records a request rejected by a permission check. userID
// is nil for anonymous callers.
func (s *Service) LogAccessDenied(userID *int64, path string, requirement interface{}, statusCode int, meta RequestMeta) error {
	entry := newEntry(models.AuditActionAccessDenied, "permission", meta).
		WithResource(path).
		WithStatus(statusCode).
		WithDetails(map[string]interface{}{"requirement": requirement})
	if userID != nil {
		entry.WithUser(*userID)
	}
	return s.Record(entry)
}

func (s *Service) LogRolePermissionsUpdated(actorID, roleID int64, permissionIDs []string, affectedUsers int, meta RequestMeta) error {
	return s.Record(newEntry(models.AuditActionRolePermissionsUpdated, "role", meta).
		WithUser(actorID).
		WithResource(strconv.FormatInt(roleID, 10)).
		WithDetails(map[string]interface{}{
			"permissions":    permissionIDs,
			"affected_users": affectedUsers,
		}))
}

// LogPermissionsInvalidated records that cached permissions of userIDs were
// dropped, and why
func (s *Service) LogPermissionsInvalidated(userIDs []int64, reason string) error {
	return s.Record(models.NewAuditLog(models.AuditActionPermissionsInvalidated, "session").
		WithDetails(map[string]interface{}{
			"user_ids": userIDs,
			"reason":   reason,
		}))
}
