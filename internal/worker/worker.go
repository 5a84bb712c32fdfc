// Package worker runs the analysis pipeline for images submitted over NATS.
package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/vision-service/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const handleMessageTimeout = 60 * time.Second

const audioKeySuffix = ".mp3"

// ErrImageKeyEmpty indicates a submission without an image key.
var ErrImageKeyEmpty = errors.New("image key cannot be empty")

// Analyzer runs one analysis request.
type Analyzer interface {
	AnalyzeWithError(ctx context.Context, req core.AnalyzeRequest) (core.AnalysisResult, error)
}

// NatsWorker answers ImageSubmittedEvent requests on a NATS subject.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	images         core.ObjectStore
	audio          core.ObjectStore
	analyzer       Analyzer
	log            *logger.Logger
}

// NewNatsWorker creates a worker reading images from one store and writing
// audio clips to another. Both may be the same store.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	images core.ObjectStore,
	audio core.ObjectStore,
	analyzer Analyzer,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		images:         images,
		audio:          audio,
		analyzer:       analyzer,
		log:            log,
	}
}

// Run subscribes and serves until ctx is cancelled, then drains.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Worker listening on subject %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)
		w.reply(msg, &AnalysisCompletedEvent{Result: core.FailedResult(err)})

		return
	}

	reply := w.processAnalysisJob(ctx, event)
	w.reply(msg, reply)
}

// processAnalysisJob downloads the image, analyzes it and stores any audio.
func (w *NatsWorker) processAnalysisJob(ctx context.Context, event *ImageSubmittedEvent) *AnalysisCompletedEvent {
	reply := &AnalysisCompletedEvent{Header: event.Header}

	imageData, err := w.images.Download(ctx, event.ImageKey)
	if err != nil {
		w.log.Error("Failed to download image for workflow %s: %v", event.Header.WorkflowID, err)
		reply.Result = core.FailedResult(fmt.Errorf("failed to download image '%s': %w", event.ImageKey, err))

		return reply
	}

	result, err := w.analyzer.AnalyzeWithError(ctx, core.AnalyzeRequest{
		Image:         base64.StdEncoding.EncodeToString(imageData),
		Prompt:        event.Prompt,
		OCRLanguage:   event.OCRLanguage,
		GenerateAudio: event.GenerateAudio,
	})
	if err != nil {
		w.log.Error("Analysis failed for workflow %s: %v", event.Header.WorkflowID, err)
	}

	if result.Audio != nil {
		reply.AudioKey = w.storeAudio(ctx, event, *result.Audio)
		result.Audio = nil
	}

	reply.Result = result

	return reply
}

// storeAudio uploads the clip and returns its key, or "" when it could not
// be stored.
func (w *NatsWorker) storeAudio(ctx context.Context, event *ImageSubmittedEvent, encoded string) string {
	audioData, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		w.log.Error("Failed to decode audio for workflow %s: %v", event.Header.WorkflowID, err)

		return ""
	}

	audioKey := uuid.NewString() + audioKeySuffix

	err = w.audio.Upload(ctx, audioKey, audioData)
	if err != nil {
		w.log.Error("Failed to upload audio '%s' for workflow %s: %v", audioKey, event.Header.WorkflowID, err)

		return ""
	}

	return audioKey
}

func (w *NatsWorker) reply(msg *nats.Msg, replyEvent *AnalysisCompletedEvent) {
	err := w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", replyEvent.Header.WorkflowID, err)
	}
}

// publishReplyEvent marshals and responds with the AnalysisCompletedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *AnalysisCompletedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*ImageSubmittedEvent, error) {
	var event ImageSubmittedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.ImageKey == "" {
		return nil, ErrImageKeyEmpty
	}

	return &event, nil
}
