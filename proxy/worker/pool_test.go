package worker

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatwire/pkg/eventstream"
	"github.com/papercomputeco/chatwire/pkg/llm"
	"github.com/papercomputeco/chatwire/pkg/logger"
	testutils "github.com/papercomputeco/chatwire/pkg/utils/test"
)

func completionJob(id string) Job {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	usage := llm.NewUsage(5, 2, 7)
	return Job{
		Path:       "/v1/chat/completions",
		HTTPStatus: 200,
		Streaming:  true,
		StartedAt:  started,
		Completion: llm.Completion{
			ID:           id,
			Model:        "gpt-4o-mini",
			Family:       "openai",
			Text:         "Hello!",
			FinishReason: "stop",
			Usage:        &usage,
			Complete:     true,
			StartedAt:    started,
			CompletedAt:  started.Add(1500 * time.Millisecond),
		},
	}
}

var _ = Describe("Worker Pool", func() {
	var (
		wp        *Pool
		publisher *testutils.RecordingPublisher
	)

	BeforeEach(func() {
		publisher = testutils.NewRecordingPublisher()

		var err error
		wp, err = NewPool(&Config{
			Publisher: publisher,
			Logger:    logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a publisher", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(MatchError(ErrNoPublisher))
		wp.Close()
	})

	It("publishes a completion event per job", func() {
		Expect(wp.Enqueue(completionJob("chatcmpl-1"))).To(BeTrue())
		Expect(wp.Enqueue(completionJob("chatcmpl-2"))).To(BeTrue())
		wp.Close()

		events := publisher.Events()
		Expect(events).To(HaveLen(2))

		ids := []string{events[0].Key(), events[1].Key()}
		Expect(ids).To(ConsistOf("chatcmpl-1", "chatcmpl-2"))
	})

	It("carries request metadata and the completion into the event", func() {
		wp.Enqueue(completionJob("chatcmpl-1"))
		wp.Close()

		Expect(publisher.Events()).To(HaveLen(1))
		event := publisher.Events()[0]

		Expect(event.EventType).To(Equal(eventstream.EventTypeCompletionFinished))
		Expect(event.Source).To(Equal(eventstream.EventSource{Family: "openai", Model: "gpt-4o-mini"}))
		Expect(event.RequestMeta.Path).To(Equal("/v1/chat/completions"))
		Expect(event.RequestMeta.Streaming).To(BeTrue())
		Expect(event.RequestMeta.HTTPStatus).To(Equal(200))
		Expect(event.RequestMeta.DurationMs).To(Equal(int64(1500)))
		Expect(event.Completion.Text).To(Equal("Hello!"))
		Expect(event.Completion.Usage.TotalTokens).To(Equal(7))
	})

	It("keeps running when a publish fails", func() {
		publisher.Err = errors.New("broker unavailable")

		Expect(wp.Enqueue(completionJob("chatcmpl-1"))).To(BeTrue())
		wp.Close()

		Expect(publisher.Events()).To(BeEmpty())
	})

	It("drops jobs once the queue is full", func() {
		wp.Close()

		blocked := &blockingPublisher{release: make(chan struct{})}
		full, err := NewPool(&Config{
			Publisher:  blocked,
			NumWorkers: 1,
			QueueSize:  1,
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		// The single worker takes the first job and blocks on it, the second
		// fills the queue, the third has nowhere to go.
		Expect(full.Enqueue(completionJob("a"))).To(BeTrue())
		Eventually(blocked.started()).Should(BeClosed())
		Expect(full.Enqueue(completionJob("b"))).To(BeTrue())
		Expect(full.Enqueue(completionJob("c"))).To(BeFalse())

		close(blocked.release)
		full.Close()
	})
})

var _ = Describe("Closed Worker Pool", func() {
	It("refuses jobs and tolerates a second Close", func() {
		publisher := testutils.NewRecordingPublisher()
		wp, err := NewPool(&Config{Publisher: publisher, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		wp.Close()
		Expect(wp.Enqueue(completionJob("late"))).To(BeFalse())
		Expect(wp.Close).NotTo(Panic())
		Expect(publisher.Events()).To(BeEmpty())
	})
})
