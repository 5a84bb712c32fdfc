// Package worker_test tests the NATS analysis worker.
package worker_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/vision-service/internal/core"
	"github.com/book-expert/vision-service/internal/objectstore"
	"github.com/book-expert/vision-service/internal/worker"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSubject = "vision.analyze.test"

var errMockDownload = errors.New("mock download error")

// mockObjectStore is a mock implementation of the ObjectStore interface.
type mockObjectStore struct {
	downloadShouldFail bool
}

func (m *mockObjectStore) Download(_ context.Context, _ string) ([]byte, error) {
	if m.downloadShouldFail {
		return nil, errMockDownload
	}

	return []byte("image"), nil
}

func (m *mockObjectStore) Upload(_ context.Context, _ string, _ []byte) error {
	return nil
}

// mockAnalyzer records the request and answers with a fixed result.
type mockAnalyzer struct {
	mu       sync.Mutex
	received core.AnalyzeRequest
	result   core.AnalysisResult
	err      error
}

func (m *mockAnalyzer) AnalyzeWithError(_ context.Context, req core.AnalyzeRequest) (core.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.received = req

	return m.result, m.err
}

func (m *mockAnalyzer) request() core.AnalyzeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.received
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}

// startWorker runs the worker until the test ends and waits for its
// subscription to be registered.
func startWorker(t *testing.T, natsConnection *nats.Conn, w *worker.NatsWorker) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	baseline := natsConnection.NumSubscriptions()

	go func() {
		errChan <- w.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return natsConnection.NumSubscriptions() > baseline
	}, 5*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errChan, "worker.Run should not error on graceful shutdown")
	})
}

func request(t *testing.T, natsConnection *nats.Conn, event any) worker.AnalysisCompletedEvent {
	t.Helper()

	eventData, err := json.Marshal(event)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request(testSubject, eventData, 5*time.Second)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var replyEvent worker.AnalysisCompletedEvent
	require.NoError(t, json.Unmarshal(replyMsg.Data, &replyEvent))

	return replyEvent
}

func newHeader() events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
	}
}

func TestWorker_AnalyzesAndStoresAudio(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	images, err := objectstore.New(jetstreamContext, "TEST_IMAGES")
	require.NoError(t, err)

	audio, err := objectstore.New(jetstreamContext, "TEST_AUDIO")
	require.NoError(t, err)

	require.NoError(t, images.Upload(context.Background(), "street.png", []byte("png-bytes")))

	encodedAudio := base64.StdEncoding.EncodeToString([]byte("mp3-bytes"))
	analyzer := &mockAnalyzer{result: core.AnalysisResult{
		Success:     true,
		Objects:     []core.DetectionRecord{},
		OCR:         &core.OCRResult{FullText: "", Words: []core.WordRecord{}},
		Description: "I detected 0 objects",
		Audio:       &encodedAudio,
	}}

	startWorker(t, natsConnection,
		worker.NewNatsWorker(natsConnection, testSubject, images, audio, analyzer, createTestLogger(t)))

	disabled := false
	submitted := worker.ImageSubmittedEvent{
		Header:        newHeader(),
		ImageKey:      "street.png",
		Prompt:        "car . person",
		OCRLanguage:   "hin",
		GenerateAudio: &disabled,
	}

	reply := request(t, natsConnection, submitted)

	received := analyzer.request()
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), received.Image)
	assert.Equal(t, "car . person", received.Prompt)
	assert.Equal(t, "hin", received.OCRLanguage)
	require.NotNil(t, received.GenerateAudio)
	assert.False(t, *received.GenerateAudio)

	assert.Equal(t, submitted.Header.WorkflowID, reply.Header.WorkflowID)
	assert.True(t, reply.Result.Success)
	assert.Nil(t, reply.Result.Audio)
	assert.Equal(t, "I detected 0 objects", reply.Result.Description)
	require.NotEmpty(t, reply.AudioKey)
	assert.Contains(t, reply.AudioKey, ".mp3")

	stored, err := audio.Download(context.Background(), reply.AudioKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), stored)
}

func TestWorker_DownloadFailureReplies(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)
	store := &mockObjectStore{downloadShouldFail: true}

	startWorker(t, natsConnection,
		worker.NewNatsWorker(natsConnection, testSubject, store, store, &mockAnalyzer{}, createTestLogger(t)))

	reply := request(t, natsConnection, worker.ImageSubmittedEvent{Header: newHeader(), ImageKey: "missing.png"})

	assert.False(t, reply.Result.Success)
	assert.Contains(t, reply.Result.Error, "mock download error")
	assert.Empty(t, reply.AudioKey)
}

func TestWorker_InvalidEventReplies(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)
	store := &mockObjectStore{}

	startWorker(t, natsConnection,
		worker.NewNatsWorker(natsConnection, testSubject, store, store, &mockAnalyzer{}, createTestLogger(t)))

	reply := request(t, natsConnection, worker.ImageSubmittedEvent{Header: newHeader()})
	assert.False(t, reply.Result.Success)
	assert.Equal(t, worker.ErrImageKeyEmpty.Error(), reply.Result.Error)

	replyMsg, err := natsConnection.Request(testSubject, []byte("{broken"), 5*time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(replyMsg.Data), `"success":false`)
}

func TestWorker_AnalysisFailureIsForwarded(t *testing.T) {
	t.Parallel()

	natsConnection := createTestNatsClient(t)
	store := &mockObjectStore{}
	failure := core.FailedResult(core.ErrDecode)
	analyzer := &mockAnalyzer{result: failure, err: core.ErrDecode}

	startWorker(t, natsConnection,
		worker.NewNatsWorker(natsConnection, testSubject, store, store, analyzer, createTestLogger(t)))

	reply := request(t, natsConnection, worker.ImageSubmittedEvent{Header: newHeader(), ImageKey: "x.png"})

	assert.False(t, reply.Result.Success)
	assert.Equal(t, core.ErrDecode.Error(), reply.Result.Error)
}
