package diag

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// restoreTask puts a screen's border back once the highlight expires.
type restoreTask struct {
	screen   Screen
	original string
	timer    *time.Timer
	done     chan struct{}
}

// highlight sets the highlight border on screen and schedules the restore.
// A pending restore is cancelled first: on the same screen its captured
// border is carried forward, on another screen it is applied immediately.
func (c *Console) highlight(ctx context.Context, screen Screen) error {
	c.hlMu.Lock()
	defer c.hlMu.Unlock()

	c.mu.Lock()
	prev := c.pending
	c.pending = nil
	c.mu.Unlock()

	var (
		original string
		carried  bool
	)
	if prev != nil {
		if prev.timer.Stop() {
			if prev.screen.same(screen) {
				original, carried = prev.original, true
				close(prev.done)
			} else {
				c.runRestore(prev)
			}
		} else {
			// Already firing; let it finish before capturing.
			<-prev.done
		}
	}

	if !carried {
		border, err := c.doc.Border(ctx, screen)
		if err != nil {
			return c.highlightErr(screen, err)
		}
		original = border
	}

	if err := c.doc.SetBorder(ctx, screen, c.opts.HighlightBorder); err != nil {
		if carried {
			// The earlier highlight is still on screen and nothing else
			// will undo it.
			c.runRestore(&restoreTask{
				screen:   screen,
				original: original,
				done:     make(chan struct{}),
			})
		}
		return c.highlightErr(screen, err)
	}

	task := &restoreTask{
		screen:   screen,
		original: original,
		done:     make(chan struct{}),
	}
	c.mu.Lock()
	c.pending = task
	task.timer = time.AfterFunc(c.opts.HighlightDuration, func() {
		c.runRestore(task)
	})
	c.mu.Unlock()

	c.log.Debug().
		Str("id", screen.ID).
		Str("border", c.opts.HighlightBorder).
		Dur("for", c.opts.HighlightDuration).
		Msg("highlighted screen")
	return nil
}

func (c *Console) highlightErr(screen Screen, err error) error {
	if errors.Is(err, ErrScreenNotFound) {
		c.log.Warn().Str("id", screen.ID).Msg("screen disappeared before it could be highlighted")
		return nil
	}
	return fmt.Errorf("highlight screen %q: %w", screen.ID, err)
}

// runRestore applies the captured border. It is called at most once per task.
func (c *Console) runRestore(task *restoreTask) {
	defer close(task.done)

	c.mu.Lock()
	if c.pending == task {
		c.pending = nil
	}
	c.mu.Unlock()

	ctx, cancel := c.callContext()
	defer cancel()

	if err := c.doc.SetBorder(ctx, task.screen, task.original); err != nil {
		c.log.Warn().Err(err).Str("id", task.screen.ID).Msg("failed to restore screen border")
		return
	}
	c.log.Debug().Str("id", task.screen.ID).Str("border", task.original).Msg("restored screen border")
}

// WaitRestored blocks until no highlight restore is pending or ctx is done.
func (c *Console) WaitRestored(ctx context.Context) error {
	for {
		c.mu.Lock()
		task := c.pending
		c.mu.Unlock()

		if task == nil {
			return nil
		}

		select {
		case <-task.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels a pending highlight and restores the border right away.
func (c *Console) Close() {
	c.hlMu.Lock()
	defer c.hlMu.Unlock()

	c.mu.Lock()
	task := c.pending
	c.mu.Unlock()

	if task == nil {
		return
	}
	if task.timer.Stop() {
		c.runRestore(task)
		return
	}
	<-task.done
}
