package util

import (
	"sync"

	"github.com/mohitkumar/mediaflow/logger"
	"go.uber.org/zap"
)

type Task any

// Worker runs handler for every task sent to it on a single goroutine.
type Worker struct {
	name     string
	stop     chan struct{}
	wg       *sync.WaitGroup
	handler  func(Task) error
	taskChan chan Task
}

func NewWorker(name string, wg *sync.WaitGroup, handler func(Task) error, capacity int) *Worker {
	return &Worker{
		taskChan: make(chan Task, capacity),
		name:     name,
		wg:       wg,
		stop:     make(chan struct{}),
		handler:  handler,
	}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case task := <-w.taskChan:
				w.handle(task)
			case <-w.stop:
				logger.Info("stopping worker", zap.String("worker", w.name))
				return
			}
		}
	}()
}

func (w *Worker) handle(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker handler panicked", zap.String("worker", w.name), zap.Any("panic", r))
		}
	}()
	if err := w.handler(task); err != nil {
		logger.Error("error in executing task in worker", zap.String("worker", w.name), zap.Error(err))
	}
}

func (w *Worker) Sender() chan<- Task {
	return w.taskChan
}

// TrySend queues a task without blocking and reports whether it was accepted.
func (w *Worker) TrySend(task Task) bool {
	select {
	case w.taskChan <- task:
		return true
	default:
		return false
	}
}

// Free is the number of tasks the worker can still buffer.
func (w *Worker) Free() int {
	return cap(w.taskChan) - len(w.taskChan)
}

func (w *Worker) Stop() {
	close(w.stop)
}
