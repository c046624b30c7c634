// Package scheduler runs named periodic tasks for a session: autosave,
// status derivation, and the inactivity watchdog.
package scheduler

import (
	"log"
	"sync"
	"time"
)

// Task is one periodic unit of work. It receives the tick time.
type Task func(now time.Time)

type job struct {
	name     string
	interval time.Duration
	task     Task
}

// Scheduler drives a set of tasks, each on its own interval. Tasks never
// panic the process and never overlap themselves: each runs on its own
// goroutine, one tick at a time.
type Scheduler struct {
	jobs     []job
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

func New() *Scheduler {
	return &Scheduler{stopChan: make(chan struct{})}
}

// Add registers a task. Must be called before Start.
func (s *Scheduler) Add(name string, interval time.Duration, task Task) {
	s.jobs = append(s.jobs, job{name: name, interval: interval, task: task})
}

// Start launches one loop per registered task.
func (s *Scheduler) Start() {
	if s.started {
		return
	}
	s.started = true

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(j)
	}
}

// Stop halts every loop and waits for in-flight ticks to finish. Safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *Scheduler) loop(j job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			s.run(j, now)
		}
	}
}

func (s *Scheduler) run(j job, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: task %s panicked: %v", j.name, r)
		}
	}()
	j.task(now)
}
