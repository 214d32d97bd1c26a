package msh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrPipelineNotStarted is returned when operations are attempted on a stopped pipeline
	ErrPipelineNotStarted = errors.New("pipeline not started")
	// ErrPipelineAlreadyStarted is returned when Start is called on a running pipeline
	ErrPipelineAlreadyStarted = errors.New("pipeline already started")
	// ErrInvalidMessage is returned for malformed messages
	ErrInvalidMessage = errors.New("invalid message")
)

// Pipeline runs the security step for outbound messages on a pool of
// workers. Outcomes are delivered on the Results channel, which must be
// drained by the caller.
type Pipeline struct {
	handler *SecurityHandler
	logger  *slog.Logger

	eventHandler EventHandler
	errorHandler ErrorHandler

	queue   chan *OutboundMessage
	results chan *Outcome

	// State management
	mu       sync.RWMutex
	running  bool
	messages map[string]*MessageMetadata // messageID -> metadata
	finished []string                    // finished IDs, oldest first
	retain   int

	// Worker control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	workerCount int
}

// PipelineConfig holds configuration for the Pipeline
type PipelineConfig struct {
	Workers   int
	QueueSize int
	// StatusRetention is how many finished messages GetMessageStatus
	// still reports; older entries are evicted. Defaults to 1000.
	StatusRetention int

	EventHandler EventHandler
	ErrorHandler ErrorHandler
	Logger       *slog.Logger
}

// NewPipeline creates a pipeline running handler
func NewPipeline(handler *SecurityHandler, config PipelineConfig) *Pipeline {
	// Set defaults
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.StatusRetention <= 0 {
		config.StatusRetention = 1000
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Pipeline{
		handler:      handler,
		logger:       config.Logger,
		eventHandler: config.EventHandler,
		errorHandler: config.ErrorHandler,
		queue:        make(chan *OutboundMessage, config.QueueSize),
		results:      make(chan *Outcome, config.QueueSize),
		messages:     make(map[string]*MessageMetadata),
		workerCount:  config.Workers,
		retain:       config.StatusRetention,
	}
}

// Start launches the workers
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrPipelineAlreadyStarted
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.Info("pipeline started", "workers", p.workerCount)
	return nil
}

// Stop cancels in-flight work and waits for the workers to exit. Messages
// still queued are dropped.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrPipelineNotStarted
	}

	p.running = false
	p.cancel()
	p.mu.Unlock()

	// Wait for workers to finish
	p.wg.Wait()

	p.logger.Info("pipeline stopped")
	return nil
}

// Submit queues msg for processing
func (p *Pipeline) Submit(ctx context.Context, msg *OutboundMessage) error {
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()

	if !running {
		return ErrPipelineNotStarted
	}

	if err := validateOutboundMessage(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	now := time.Now()
	p.mu.Lock()
	p.messages[msg.MessageID] = &MessageMetadata{
		MessageID: msg.MessageID,
		PModeID:   msg.PModeID,
		Status:    MessageStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.mu.Unlock()

	select {
	case p.queue <- msg:
		p.emitEvent(MessageEvent{Type: "message.queued", MessageID: msg.MessageID, Status: MessageStatusPending})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the channel on which outcomes are delivered
func (p *Pipeline) Results() <-chan *Outcome {
	return p.results
}

// GetMessageStatus retrieves the current status of a message
func (p *Pipeline) GetMessageStatus(messageID string) (*MessageMetadata, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	metadata, ok := p.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("message not found: %s", messageID)
	}

	c := *metadata
	return &c, nil
}

// worker processes messages from the queue
func (p *Pipeline) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case msg := <-p.queue:
			outcome := p.process(msg)
			select {
			case p.results <- outcome:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) process(msg *OutboundMessage) *Outcome {
	p.updateStatus(msg.MessageID, MessageStatusSecuring, nil)

	result, err := p.handler.Process(p.ctx, msg)
	switch {
	case err != nil:
		p.handleError(msg.MessageID, err)
	case result == nil:
		p.updateStatus(msg.MessageID, MessageStatusSkipped, nil)
		p.emitEvent(MessageEvent{Type: "message.skipped", MessageID: msg.MessageID, Status: MessageStatusSkipped})
	default:
		p.updateStatus(msg.MessageID, MessageStatusSecured, nil)
		p.emitEvent(MessageEvent{Type: "message.secured", MessageID: msg.MessageID, Status: MessageStatusSecured})
	}

	return &Outcome{Message: msg, Result: result, Err: err}
}

// validateOutboundMessage checks if an outbound message is valid
func validateOutboundMessage(msg *OutboundMessage) error {
	if msg == nil {
		return errors.New("message is nil")
	}
	if msg.MessageID == "" {
		return errors.New("message ID is required")
	}
	if len(msg.Envelope) == 0 {
		return errors.New("envelope is required")
	}
	return nil
}

// updateStatus updates the status of a message
func (p *Pipeline) updateStatus(messageID string, status MessageStatus, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	metadata, ok := p.messages[messageID]
	if !ok {
		return
	}
	metadata.Status = status
	metadata.UpdatedAt = time.Now()
	if err != nil {
		metadata.LastError = err.Error()
	}
	if status.Finished() {
		p.finished = append(p.finished, messageID)
		p.evictFinished()
	}
}

// evictFinished drops the oldest finished entries beyond the retention
// limit. Caller holds p.mu. An ID resubmitted since it finished is kept.
func (p *Pipeline) evictFinished() {
	for len(p.finished) > p.retain {
		id := p.finished[0]
		p.finished = p.finished[1:]
		if m, ok := p.messages[id]; ok && m.Status.Finished() && !p.finishedLater(id) {
			delete(p.messages, id)
		}
	}
}

// finishedLater reports whether id appears again in the finished list.
func (p *Pipeline) finishedLater(id string) bool {
	for _, other := range p.finished {
		if other == id {
			return true
		}
	}
	return false
}

// emitEvent invokes the event handler if configured
func (p *Pipeline) emitEvent(event MessageEvent) {
	if p.eventHandler == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.eventHandler(event)
}

// handleError invokes the error handler if configured
func (p *Pipeline) handleError(messageID string, err error) {
	p.updateStatus(messageID, MessageStatusFailed, err)
	p.logger.Warn("security step failed", "message_id", messageID, "error", err)

	if p.errorHandler != nil {
		p.errorHandler(messageID, err)
	}

	p.emitEvent(MessageEvent{
		Type:      "message.error",
		MessageID: messageID,
		Status:    MessageStatusFailed,
		Error:     err,
	})
}
