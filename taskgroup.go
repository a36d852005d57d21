package condcache

import (
	"context"
	"sync"
)

// TaskGroup runs the background tasks a Worker schedules through WaitUntil.
// Environments without a platform scheduler, and tests, can use it to run
// store writes and invalidations and then wait for them to finish.
type TaskGroup struct {
	ctx context.Context
	wg  sync.WaitGroup
}

// NewTaskGroup returns a TaskGroup whose tasks receive ctx.
func NewTaskGroup(ctx context.Context) *TaskGroup {
	return &TaskGroup{ctx: ctx}
}

// Go schedules task on its own goroutine. Panics are recovered and logged so
// one bad task cannot take down the process.
func (g *TaskGroup) Go(task func(context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				GetLogger().Error("background task panicked", "panic", r)
			}
		}()
		task(g.ctx)
	}()
}

// Wait blocks until every scheduled task has finished.
func (g *TaskGroup) Wait() {
	g.wg.Wait()
}
