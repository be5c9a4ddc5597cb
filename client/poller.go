package client

import (
	"context"
	"fmt"
	"time"

	"github.com/night131rd/referensiku.ai-sub000/app/models"
)

const (
	maxPollAttempts     = 30
	defaultPollInterval = 2 * time.Second
)

// GetStatus fetches one status snapshot for a task.
func (c *Client) GetStatus(ctx context.Context, taskID string) (models.StatusEvent, error) {
	var out models.StatusEvent
	if err := c.getJSON(ctx, "/search/status/"+taskID, &out); err != nil {
		return models.StatusEvent{}, err
	}
	return out, nil
}

// PollTask repeatedly fetches status on a fixed interval until the task goes
// terminal. Transient fetch failures are tolerated; every attempt counts
// toward the hard ceiling, past which the result is ErrTimeout. The task may
// still be working upstream, the client just stops watching.
func (c *Client) PollTask(ctx context.Context, taskID string, interval time.Duration, onEvent func(models.StatusEvent)) (models.SearchTask, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	task := models.SearchTask{TaskID: taskID, Phase: models.PhaseWaiting}

	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return task, ctx.Err()
			case <-time.After(interval):
			}
		}

		ev, err := c.GetStatus(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return task, ctx.Err()
			}
			continue
		}
		if applyEvent(&task, ev) && onEvent != nil {
			onEvent(ev)
		}
		if task.Phase == models.PhaseError {
			return task, fmt.Errorf("%w: %s", ErrUpstream, task.Error)
		}
		if task.Phase == models.PhaseCompleted {
			return task, nil
		}
	}

	return task, fmt.Errorf("%w: task %s not completed after %d attempts", ErrTimeout, taskID, maxPollAttempts)
}
