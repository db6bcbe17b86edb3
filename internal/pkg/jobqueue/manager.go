package jobqueue

import (
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GitDataEdit/internal/pkg/cache"
	"github.com/ManuelReschke/GitDataEdit/internal/pkg/env"
)

// Manager owns the process-wide job queue
type Manager struct {
	queue   *Queue
	mu      sync.Mutex
	running bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount, err := strconv.Atoi(env.GetEnv("JOB_QUEUE_WORKERS", "3"))
		if err != nil {
			log.Warnf("[JobQueue Manager] Invalid JOB_QUEUE_WORKERS, using default: %v", err)
			workerCount = 3
		}
		globalManager = &Manager{queue: NewQueue(cache.GetClient(), workerCount)}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue workers
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue")
	m.queue.Start()
}

// Stop drains the workers
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.queue.Stop()
	m.running = false
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
