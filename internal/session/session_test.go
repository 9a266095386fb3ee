package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"spokestack-tray/internal/bridge"
	"spokestack-tray/internal/bridge/bridgetest"
	"spokestack-tray/internal/domain"
	"spokestack-tray/internal/download"
	"spokestack-tray/internal/events"
	"spokestack-tray/internal/nativeconfig"
	"spokestack-tray/internal/platform"
	"spokestack-tray/internal/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeModels struct {
	mu       sync.Mutex
	acquired []string
	consents []*download.Consent
	removed  [][]string
	failures map[string]error
}

func (m *fakeModels) Acquire(_ context.Context, _, id string, opts download.Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquired = append(m.acquired, id)
	m.consents = append(m.consents, opts.Consent)
	if err := m.failures[id]; err != nil {
		return "", err
	}
	return "/models/" + id + "." + opts.Extension, nil
}

func (m *fakeModels) Remove(ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, ids)
	return nil
}

func (m *fakeModels) acquireCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acquired)
}

func (m *fakeModels) removeCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.removed...)
}

type silentPrefs bool

func (p silentPrefs) Silent() bool { return bool(p) }

// manualClock hands out timer channels that only fire when told to.
type manualClock struct {
	mu     sync.Mutex
	timers []chan time.Time
}

func (c *manualClock) After(time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.timers = append(c.timers, ch)
	return ch
}

func (c *manualClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *manualClock) fireLast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers[len(c.timers)-1] <- time.Now()
}

type harness struct {
	session *Session
	bridge  *bridgetest.Fake
	models  *fakeModels
	clock   *manualClock
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		bridge: bridgetest.New(),
		models: &fakeModels{failures: map[string]error{}},
		clock:  &manualClock{},
	}
	cfg := Config{
		Bridge:      h.bridge,
		Models:      h.models,
		Permissions: platform.StaticPermissions{Granted: true},
		After:       h.clock.After,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	h.session = s
	return h
}

func initConfig() domain.InitConfig {
	return domain.InitConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		NLUModelURLs: &domain.NLUModelURLs{
			NLU:      "https://models.example/nlu.tflite",
			Vocab:    "https://models.example/vocab.txt",
			Metadata: "https://models.example/metadata.json",
		},
		WakewordModelURLs: &domain.WakewordModelURLs{
			Filter: "https://models.example/filter.tflite",
			Detect: "https://models.example/detect.tflite",
			Encode: "https://models.example/encode.tflite",
		},
	}
}

func (h *harness) initialize(t *testing.T) {
	t.Helper()
	ok, err := h.session.Initialize(context.Background(), initConfig())
	require.NoError(t, err)
	require.True(t, ok)
}

// errorRecorder collects error event messages.
type errorRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *errorRecorder) listener() *events.Listener {
	return events.NewListener(func(e domain.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.msgs = append(r.msgs, e.Error)
	})
}

func (r *errorRecorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

// await waits until at least n messages arrived and returns them.
func (r *errorRecorder) await(t *testing.T, n int) []string {
	t.Helper()
	eventually(t, func() bool { return len(r.messages()) >= n }, "error listener not called")
	return r.messages()
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, msg)
}

// TestInitializeDownloadsAndMerges verifies the native configuration.
func TestInitializeDownloadsAndMerges(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)

	assert.True(t, h.session.IsInitialized())
	assert.False(t, h.session.IsStarted())
	assert.Equal(t, 6, h.models.acquireCount())
	h.models.mu.Lock()
	consents := append([]*download.Consent(nil), h.models.consents...)
	h.models.mu.Unlock()
	require.NotNil(t, consents[0])
	for _, c := range consents {
		assert.Same(t, consents[0], c, "downloads of one initialize share a cellular consent")
	}

	configs := h.bridge.Configs()
	require.Len(t, configs, 1)
	assert.Equal(t, nativeconfig.ProfileWakewordNativeASR, nativeconfig.Profile(configs[0]))
	nlu := configs[0][nativeconfig.SectionNLU].(map[string]any)
	assert.Equal(t, "/models/vocab.txt", nlu["wordpiece-vocab-path"])
	assert.Equal(t, "/models/metadata.json", nlu["nlu-metadata-path"])

	// A second call is a no-op.
	ok, err := h.session.Initialize(context.Background(), initConfig())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, h.bridge.Count(bridge.CommandInitialize))
}

// TestInitializeUsesBundledModels skips downloads for local references.
func TestInitializeUsesBundledModels(t *testing.T) {
	h := newHarness(t)
	cfg := initConfig()
	cfg.NLUModelURLs = &domain.NLUModelURLs{
		NLU:      "file:///bundle/nlu.tflite",
		Vocab:    "/bundle/vocab.txt",
		Metadata: "/bundle/metadata.json",
	}
	cfg.WakewordModelURLs = nil

	ok, err := h.session.Initialize(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, h.models.acquireCount())

	native := h.bridge.Configs()[0]
	assert.Equal(t, nativeconfig.ProfilePTTNativeASR, nativeconfig.Profile(native))
	assert.Equal(t, "/bundle/nlu.tflite", native[nativeconfig.SectionNLU].(map[string]any)["nlu-model-path"])
}

// TestInitializeRequiresNLU broadcasts and rejects missing NLU URLs.
func TestInitializeRequiresNLU(t *testing.T) {
	h := newHarness(t)
	rec := &errorRecorder{}
	require.NoError(t, h.session.AddListener(domain.EventError, rec.listener()))

	cfg := initConfig()
	cfg.NLUModelURLs.Vocab = ""
	ok, err := h.session.Initialize(context.Background(), cfg)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, []string{msgNLURequired}, rec.await(t, 1))
	assert.Empty(t, h.bridge.Calls())
}

// TestInitializeRequiresCredentials refuses to initialize without a client id.
func TestInitializeRequiresCredentials(t *testing.T) {
	h := newHarness(t)
	rec := &errorRecorder{}
	require.NoError(t, h.session.AddListener(domain.EventError, rec.listener()))

	cfg := initConfig()
	cfg.ClientSecret = " "
	_, err := h.session.Initialize(context.Background(), cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, []string{msgCredentialsRequired}, rec.await(t, 1))
	assert.Empty(t, h.bridge.Calls())
}

// TestInitializeWakewordFailureFallsBackToPushToTalk keeps going without wake-word files.
func TestInitializeWakewordFailureFallsBackToPushToTalk(t *testing.T) {
	h := newHarness(t)
	h.models.failures["detect"] = domain.ErrDownloadFailed
	rec := &errorRecorder{}
	require.NoError(t, h.session.AddListener(domain.EventError, rec.listener()))

	h.initialize(t)
	assert.Equal(t, nativeconfig.ProfilePTTNativeASR, nativeconfig.Profile(h.bridge.Configs()[0]))
	assert.Equal(t, []string{msgWakewordDownloadFailed}, rec.await(t, 1))
}

// TestInitializeNLUFailureAborts surfaces NLU download failures.
func TestInitializeNLUFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.models.failures["metadata"] = domain.ErrNetworkUnavailable
	rec := &errorRecorder{}
	require.NoError(t, h.session.AddListener(domain.EventError, rec.listener()))

	ok, err := h.session.Initialize(context.Background(), initConfig())
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrNetworkUnavailable)
	assert.Contains(t, rec.await(t, 1), msgNLUDownloadFailed)
	assert.Empty(t, h.bridge.Calls())
}

// TestErrorEventRejectsPendingInitialize covers an error while init is pending.
func TestErrorEventRejectsPendingInitialize(t *testing.T) {
	h := newHarness(t)
	h.bridge.SetDefault(bridge.CommandInitialize)

	errCh := make(chan error, 1)
	go func() {
		_, err := h.session.Initialize(context.Background(), initConfig())
		errCh <- err
	}()
	eventually(t, func() bool { return h.bridge.Count(bridge.CommandInitialize) == 1 }, "initialize not issued")

	h.bridge.Emit(domain.Event{Kind: domain.EventError, Error: "x"})

	err := <-errCh
	require.Error(t, err)
	assert.Equal(t, "x", err.Error())
	assert.ErrorIs(t, err, domain.ErrBridgeError)
	assert.False(t, h.session.IsInitialized())
	eventually(t, func() bool { return len(h.session.Status().Pending) == 0 }, "queue not empty")
}

// TestModelFormatErrorRetriesOnce deletes stale models and initializes again.
func TestModelFormatErrorRetriesOnce(t *testing.T) {
	h := newHarness(t)
	h.bridge.Script(bridge.CommandInitialize, domain.Event{Kind: domain.EventError, Error: "Failed to load model: flatbuffer verification failed"})

	h.initialize(t)

	assert.Equal(t, 2, h.bridge.Count(bridge.CommandInitialize))
	removed := h.models.removeCalls()
	require.Len(t, removed, 1)
	assert.ElementsMatch(t, []string{"nlu", "vocab", "metadata", "filter", "detect", "encode"}, removed[0])
	assert.Equal(t, 12, h.models.acquireCount())
}

// TestModelFormatErrorTwiceIsFatal does not retry a second time.
func TestModelFormatErrorTwiceIsFatal(t *testing.T) {
	h := newHarness(t)
	h.bridge.SetDefault(bridge.CommandInitialize, domain.Event{Kind: domain.EventError, Error: "invalid model file"})

	ok, err := h.session.Initialize(context.Background(), initConfig())
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrModelFormat)
	assert.Equal(t, 2, h.bridge.Count(bridge.CommandInitialize))
	assert.Len(t, h.models.removeCalls(), 1)
}

// TestCommandsReachBridgeInSubmissionOrder verifies FIFO as seen by the bridge.
func TestCommandsReachBridgeInSubmissionOrder(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)

	gate := make(chan struct{})
	h.bridge.OnCall(bridge.CommandStart, func() { <-gate })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = h.session.Start(context.Background())
	}()
	eventually(t, func() bool { return len(h.session.Status().Pending) == 1 }, "start not queued")

	inputs := []string{"one", "two", "three", "four"}
	for i, input := range inputs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.session.Synthesize(context.Background(), domain.SynthesizeRequest{Input: input})
		}()
		eventually(t, func() bool { return len(h.session.Status().Pending) == i+2 }, "synthesize not queued")
	}
	assert.Equal(t, []string{"start", "synthesize", "synthesize", "synthesize", "synthesize"}, h.session.Status().Pending)

	close(gate)
	wg.Wait()

	assert.Equal(t, []string{
		bridge.CommandInitialize,
		bridge.CommandStart,
		bridge.CommandSynthesize,
		bridge.CommandSynthesize,
		bridge.CommandSynthesize,
		bridge.CommandSynthesize,
	}, h.bridge.Calls())
	var got []string
	for _, req := range h.bridge.Synthesized() {
		got = append(got, req.Input)
		assert.Equal(t, domain.TTSFormatText, req.Format)
	}
	assert.Equal(t, inputs, got)
}

// TestSecondStartWaitsForFirst checks back-to-back starts never overlap.
func TestSecondStartWaitsForFirst(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)
	h.bridge.SetDefault(bridge.CommandStart)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := h.session.Start(context.Background())
			results <- err
		}()
		eventually(t, func() bool { return len(h.session.Status().Pending) == i+1 }, "start not queued")
	}
	eventually(t, func() bool { return h.bridge.Count(bridge.CommandStart) == 1 }, "first start not issued")
	assert.Equal(t, []string{"start", "start"}, h.session.Status().Pending)

	h.bridge.Emit(domain.Event{Kind: domain.EventStart})
	require.NoError(t, <-results)
	require.NoError(t, <-results)

	assert.True(t, h.session.IsStarted())
	assert.Equal(t, 1, h.bridge.Count(bridge.CommandStart))
	assert.Empty(t, h.session.Status().Pending)
}

// TestTimeoutClearsQueue verifies the synthetic error and queue reset.
func TestTimeoutClearsQueue(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)
	h.bridge.SetDefault(bridge.CommandStart)
	rec := &errorRecorder{}
	require.NoError(t, h.session.AddListener(domain.EventError, rec.listener()))

	timersBefore := h.clock.count()
	startErr := make(chan error, 1)
	go func() {
		_, err := h.session.Start(context.Background())
		startErr <- err
	}()
	eventually(t, func() bool { return h.clock.count() == timersBefore+1 }, "start timer not armed")

	synthErr := make(chan error, 1)
	go func() {
		_, err := h.session.Synthesize(context.Background(), domain.SynthesizeRequest{Input: "late"})
		synthErr <- err
	}()
	eventually(t, func() bool { return len(h.session.Status().Pending) == 2 }, "synthesize not queued")

	h.clock.fireLast()

	err := <-startErr
	assert.ErrorIs(t, err, domain.ErrBridgeTimeout)
	assert.ErrorIs(t, <-synthErr, queue.ErrDiscarded)
	assert.Empty(t, h.session.Status().Pending)
	assert.Equal(t, []string{"No response from Spokestack native when running command start"}, rec.await(t, 1))
	assert.Equal(t, 0, h.bridge.Count(bridge.CommandSynthesize))
	assert.False(t, h.session.IsStarted())
}

// TestErrorStopsOnceUntilRecognition checks the stop/error livelock guard.
func TestErrorStopsOnceUntilRecognition(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)
	_, err := h.session.Start(context.Background())
	require.NoError(t, err)

	h.bridge.Emit(domain.Event{Kind: domain.EventError, Error: "a"})
	eventually(t, func() bool { return h.bridge.Count(bridge.CommandStop) == 1 }, "no automatic stop")
	eventually(t, func() bool { return !h.session.IsStarted() }, "pipeline still started")

	_, err = h.session.Start(context.Background())
	require.NoError(t, err)
	h.bridge.Emit(domain.Event{Kind: domain.EventError, Error: "b"})
	h.bridge.Emit(domain.Event{Kind: domain.EventRecognize, Transcript: "hello"})
	eventually(t, func() bool { return len(h.bridge.Classified()) == 1 }, "recognition not classified")
	assert.Equal(t, 1, h.bridge.Count(bridge.CommandStop))
	assert.True(t, h.session.IsStarted())

	h.bridge.Emit(domain.Event{Kind: domain.EventError, Error: "c"})
	eventually(t, func() bool { return h.bridge.Count(bridge.CommandStop) == 2 }, "guard not re-armed")
}

// TestErrorClearsListening drops the listening flag on any error.
func TestErrorClearsListening(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)
	ok, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	h.bridge.Emit(domain.Event{Kind: domain.EventError, Error: "speech recognizer failed"})
	eventually(t, func() bool { return !h.session.IsListening() }, "still listening")
}

// TestRecognizeEditsTranscriptAndClassifies applies the hook before listeners.
func TestRecognizeEditsTranscriptAndClassifies(t *testing.T) {
	h := newHarness(t)
	cfg := initConfig()
	cfg.EditTranscript = func(s string) string {
		if strings.Contains(s, "mumble") {
			return ""
		}
		return strings.ToUpper(s)
	}
	_, err := h.session.Initialize(context.Background(), cfg)
	require.NoError(t, err)

	var mu sync.Mutex
	var transcripts []string
	require.NoError(t, h.session.AddListener(domain.EventRecognize, events.NewListener(func(e domain.Event) {
		mu.Lock()
		defer mu.Unlock()
		transcripts = append(transcripts, e.Transcript)
	})))

	h.bridge.Emit(domain.Event{Kind: domain.EventRecognize, Transcript: "mumble"})
	h.bridge.Emit(domain.Event{Kind: domain.EventRecognize, Transcript: "turn on the lights"})
	eventually(t, func() bool { return len(h.bridge.Classified()) == 1 }, "not classified")

	assert.Equal(t, []string{"TURN ON THE LIGHTS"}, h.bridge.Classified())
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transcripts) == 1
	}, "recognize listener not called")
	mu.Lock()
	assert.Equal(t, []string{"TURN ON THE LIGHTS"}, transcripts)
	mu.Unlock()
	assert.False(t, h.session.IsListening())
}

// TestClassificationAndTraceEvents republishes results and keeps traces local.
func TestClassificationAndTraceEvents(t *testing.T) {
	h := newHarness(t)
	got := make(chan domain.Event, 4)
	require.NoError(t, h.session.AddListener(domain.EventChange, events.NewListener(func(e domain.Event) { got <- e })))

	h.bridge.Emit(domain.Event{Kind: domain.EventTrace, Message: "vad active"})
	h.bridge.Emit(domain.Event{Kind: domain.EventClassification, Classification: &domain.Classification{Intent: "lights.on", Confidence: 0.9}})

	e := <-got
	assert.Equal(t, domain.EventClassification, e.Kind)
	assert.Equal(t, "lights.on", e.Classification.Intent)
	assert.Empty(t, got)
}

// TestListenerCanAnswerWithSpeech lets a classification listener synthesize
// a reply while the bridge keeps delivering events.
func TestListenerCanAnswerWithSpeech(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)

	type reply struct {
		url string
		err error
	}
	replies := make(chan reply, 1)
	require.NoError(t, h.session.AddListener(domain.EventClassification, events.NewListener(func(e domain.Event) {
		url, err := h.session.Say(context.Background(), "turning on "+e.Classification.Intent)
		replies <- reply{url: url, err: err}
	})))

	h.bridge.Emit(domain.Event{Kind: domain.EventClassification, Classification: &domain.Classification{Intent: "lights.on", Confidence: 0.9}})

	select {
	case r := <-replies:
		require.NoError(t, r.err)
		assert.Equal(t, "https://audio.example/tts.mp3", r.url)
	case <-time.After(2 * time.Second):
		t.Fatal("listener command never completed")
	}
	require.Len(t, h.bridge.Synthesized(), 1)
	assert.Equal(t, "turning on lights.on", h.bridge.Synthesized()[0].Input)
}

// TestListenStartsPipelineFirst auto-starts before activating.
func TestListenStartsPipelineFirst(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)

	ok, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, h.session.IsStarted())
	assert.Equal(t, []string{bridge.CommandInitialize, bridge.CommandStart, bridge.CommandActivate}, h.bridge.Calls())

	ok, err = h.session.StopListening(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, h.session.IsListening())

	// Already in the target state: no bridge call.
	ok, err = h.session.StopListening(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, h.bridge.Count(bridge.CommandDeactivate))
}

// TestListenRequiresPermission refuses without speech permission.
func TestListenRequiresPermission(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Permissions = platform.StaticPermissions{Granted: false}
	})
	h.initialize(t)

	ok, err := h.session.Listen(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = h.session.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, []string{bridge.CommandInitialize}, h.bridge.Calls())
}

// TestStartAndStopGuards covers uninitialized and already-stopped states.
func TestStartAndStopGuards(t *testing.T) {
	h := newHarness(t)

	ok, err := h.session.Start(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotInitialized)

	ok, err = h.session.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	h.initialize(t)
	ok, err = h.session.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{bridge.CommandInitialize}, h.bridge.Calls())
}

// TestSynthesizeAndSay returns the audio URL and honors silent mode.
func TestSynthesizeAndSay(t *testing.T) {
	h := newHarness(t)

	_, err := h.session.Synthesize(context.Background(), domain.SynthesizeRequest{Input: "hi"})
	assert.ErrorIs(t, err, ErrNotInitialized)

	h.initialize(t)
	_, err = h.session.Synthesize(context.Background(), domain.SynthesizeRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	url, err := h.session.Synthesize(context.Background(), domain.SynthesizeRequest{Input: "<speak>hi</speak>", Format: domain.TTSFormatSSML, Voice: "demo-female"})
	require.NoError(t, err)
	assert.Equal(t, "https://audio.example/tts.mp3", url)

	url, err = h.session.Say(context.Background(), "hello there")
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	reqs := h.bridge.Synthesized()
	require.Len(t, reqs, 2)
	assert.Equal(t, domain.TTSFormatSSML, reqs[0].Format)
	assert.Equal(t, "demo-male", reqs[1].Voice)

	quiet := newHarness(t, func(cfg *Config) { cfg.Preferences = silentPrefs(true) })
	quiet.initialize(t)
	url, err = quiet.session.Say(context.Background(), "shh")
	require.NoError(t, err)
	assert.Empty(t, url)
	assert.Empty(t, quiet.bridge.Synthesized())
}

// TestAppStateStopsAndRestarts follows the host's foreground state.
func TestAppStateStopsAndRestarts(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)
	_, err := h.session.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.session.SetAppState(context.Background(), domain.AppStateBackground))
	assert.False(t, h.session.IsStarted())
	assert.Equal(t, domain.AppStateBackground, h.session.Status().AppState)

	ok, err := h.session.Listen(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, h.session.SetAppState(context.Background(), domain.AppStateActive))
	assert.True(t, h.session.IsStarted())
	assert.Equal(t, 2, h.bridge.Count(bridge.CommandStart))
	assert.Equal(t, 1, h.bridge.Count(bridge.CommandStop))

	assert.ErrorIs(t, h.session.SetAppState(context.Background(), "asleep"), domain.ErrInvalidArgument)
}

// TestListenerRegistration validates kinds and one-shot delivery.
func TestListenerRegistration(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.session.AddListener("bogus", events.NewListener(func(domain.Event) {})), domain.ErrInvalidArgument)

	fired := make(chan domain.Event, 4)
	l := events.NewListener(func(e domain.Event) { fired <- e })
	_, err := h.session.AddListenerOnce(domain.EventTimeout, l)
	require.NoError(t, err)

	h.bridge.Emit(domain.Event{Kind: domain.EventTimeout})
	h.bridge.Emit(domain.Event{Kind: domain.EventTimeout})
	assert.Equal(t, domain.EventTimeout, (<-fired).Kind)

	persistent := events.NewListener(func(e domain.Event) { fired <- e })
	require.NoError(t, h.session.AddListener(domain.EventTimeout, persistent))
	h.bridge.Emit(domain.Event{Kind: domain.EventTimeout})
	<-fired
	h.session.RemoveListener(domain.EventTimeout, persistent)
	assert.Equal(t, 0, h.session.Bus().Count(domain.EventTimeout))
}

// TestCloseAbortsPendingCommand unblocks a command waiting on the bridge.
func TestCloseAbortsPendingCommand(t *testing.T) {
	h := newHarness(t)
	h.initialize(t)
	h.bridge.SetDefault(bridge.CommandStart)

	errCh := make(chan error, 1)
	go func() {
		_, err := h.session.Start(context.Background())
		errCh <- err
	}()
	eventually(t, func() bool { return h.bridge.Count(bridge.CommandStart) == 1 }, "start not issued")

	require.NoError(t, h.session.Close())
	assert.True(t, errors.Is(<-errCh, ErrClosed))

	_, err := h.session.Start(context.Background())
	assert.ErrorIs(t, err, queue.ErrClosed)
}
