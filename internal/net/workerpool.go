package net

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

type workerFunction = func(t *tomb.Tomb, task any) error

// workerPool runs a fixed number of goroutines, supervised by a tomb,
// each pulling connections off a shared task channel.
type workerPool struct {
	n     int
	tasks chan any
	work  workerFunction
}

func newWorkerPool(size int) workerPool {
	return workerPool{tasks: make(chan any, taskChanSize), n: size}
}

func (pool *workerPool) addTask(task any) { pool.tasks <- task }

func (pool *workerPool) setup(t *tomb.Tomb, work workerFunction) {
	log.Info().Int("workers", pool.n).Msg("net: starting worker pool")
	active := 0
	for {
		select {
		case <-t.Dying():
			return
		default:
			if active < pool.n {
				t.Go(func() error {
					err := pool.worker(t, work)
					active--
					return err
				})
				active++
			}
		}
	}
}

func (pool *workerPool) worker(t *tomb.Tomb, work workerFunction) error {
	select {
	case <-t.Dying():
		return nil
	case task := <-pool.tasks:
		if err := work(t, task); err != nil {
			log.Error().Err(err).Msg("net: worker exiting on error")
			return err
		}
	}
	return nil
}
