package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/night131rd/referensiku.ai-sub000/app/models"

	"github.com/tidwall/gjson"
)

const (
	maxStreamRetries = 3
	streamBackoff    = time.Second
)

// applyEvent folds a status event into the task, enforcing the monotonic
// phase filter: duplicates and out-of-order phases are ignored, error is
// always accepted. Returns whether the event advanced the task.
func applyEvent(task *models.SearchTask, ev models.StatusEvent) bool {
	if !ev.Phase.Known() {
		return false
	}
	if ev.Phase == models.PhaseError {
		task.Phase = models.PhaseError
		task.Error = ev.Error
		return true
	}
	if task.Phase != "" && !task.Phase.Before(ev.Phase) {
		return false
	}
	task.Phase = ev.Phase
	if ev.Answer != "" {
		task.Answer = ev.Answer
	}
	if len(ev.Sources) > 0 {
		task.Sources = ev.Sources
	}
	if len(ev.Bibliography) > 0 {
		task.Bibliography = ev.Bibliography
	}
	return true
}

// StreamTask consumes the server-push status stream for taskID until a
// terminal phase. onEvent, when non-nil, observes every accepted (phase
// advancing) event. A connection dropping before a terminal phase is retried
// with exponential backoff (1s, 2s, 4s); past the attempt cap the task goes
// terminal with an error phase.
func (c *Client) StreamTask(ctx context.Context, taskID string, onEvent func(models.StatusEvent)) (models.SearchTask, error) {
	task := models.SearchTask{TaskID: taskID, Phase: models.PhaseWaiting}

	for attempt := 0; ; attempt++ {
		err := c.streamOnce(ctx, taskID, &task, onEvent)
		if err == nil && task.Phase.Terminal() {
			if task.Phase == models.PhaseError {
				return task, fmt.Errorf("%w: %s", ErrUpstream, task.Error)
			}
			return task, nil
		}
		if ctx.Err() != nil {
			return task, ctx.Err()
		}
		if attempt+1 >= maxStreamRetries {
			task.Phase = models.PhaseError
			if err != nil {
				task.Error = err.Error()
				return task, errors.Join(ErrUpstream, err)
			}
			task.Error = "stream closed before completion"
			return task, fmt.Errorf("%w: %s", ErrUpstream, task.Error)
		}

		// 1s, 2s, 4s.
		delay := streamBackoff << attempt
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// streamOnce opens one stream connection and folds events until the stream
// ends or the task goes terminal. A nil error with a non-terminal task means
// the connection closed early.
func (c *Client) streamOnce(ctx context.Context, taskID string, task *models.SearchTask, onEvent func(models.StatusEvent)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/stream/"+taskID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.attachIdentity(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Join(ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: stream returned %s", ErrUpstream, resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		// Sniff the phase before trusting the shape; payload fields are
		// phase-dependent and the backend has been known to send extras.
		if !gjson.Valid(payload) || !gjson.Get(payload, "phase").Exists() {
			continue
		}

		var ev models.StatusEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		if applyEvent(task, ev) && onEvent != nil {
			onEvent(ev)
		}
		if task.Phase.Terminal() {
			return nil
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return errors.Join(ErrUpstream, err)
	}
	return nil
}
