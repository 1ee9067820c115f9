package queue_test

import (
	"context"
	"io"
	"net"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/m7moud/tcp-queue/internal/queue"
)

type handled struct {
	outcome queue.Outcome
	err     error
}

var _ = Describe("Handler", func() {
	var (
		mq      *queue.MessageQueue
		handler *queue.Handler
		client  net.Conn
		result  chan handled
		ctx     context.Context
		cancel  context.CancelFunc
	)

	// accept one connection and run the handler on it
	connect := func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		result = make(chan handled, 1)
		go func() {
			defer GinkgoRecover()
			conn, err := ln.Accept()
			ln.Close()
			Expect(err).NotTo(HaveOccurred())
			outcome, err := handler.Handle(ctx, conn)
			result <- handled{outcome: outcome, err: err}
		}()

		client, err = net.Dial("tcp", ln.Addr().String())
		Expect(err).NotTo(HaveOccurred())
	}

	exchange := func(request string) string {
		connect()
		_, err := io.WriteString(client, request)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.(*net.TCPConn).CloseWrite()).To(Succeed())

		response, err := io.ReadAll(client)
		Expect(err).NotTo(HaveOccurred())
		return string(response)
	}

	BeforeEach(func() {
		mq = queue.NewMessageQueue()
		handler = queue.NewHandler(mq, queue.HandlerConfig{
			Timeout:         500 * time.Millisecond,
			MaxRequestBytes: 64,
		}, newTestLogger())
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
		if client != nil {
			client.Close()
		}
	})

	It("should enqueue on PUBLISH and answer OK", func() {
		Expect(exchange("PUBLISH hello\n")).To(Equal("OK\n"))

		var r handled
		Eventually(result).Should(Receive(&r))
		Expect(r.err).NotTo(HaveOccurred())
		Expect(r.outcome).To(Equal(queue.OutcomePublished))
		Expect(mq.Len()).To(Equal(1))
	})

	It("should dequeue on RETRIEVE and quote the message", func() {
		mq.Enqueue(`say "hi"`)
		Expect(exchange("RETRIEVE\n")).To(Equal(`Got: "say \"hi\""` + "\n"))

		var r handled
		Eventually(result).Should(Receive(&r))
		Expect(r.outcome).To(Equal(queue.OutcomeRetrieved))
		Expect(mq.Len()).To(BeZero())
	})

	It("should answer the empty-queue error as a normal outcome", func() {
		Expect(exchange("RETRIEVE")).To(Equal("Error: Queue empty!\n"))

		var r handled
		Eventually(result).Should(Receive(&r))
		Expect(r.err).NotTo(HaveOccurred())
		Expect(r.outcome).To(Equal(queue.OutcomeEmpty))
	})

	It("should reject unparseable input without touching the queue", func() {
		mq.Enqueue("keep")
		Expect(exchange("FOO\n")).To(Equal("Error: Unknown verb!\n"))

		var r handled
		Eventually(result).Should(Receive(&r))
		Expect(r.err).NotTo(HaveOccurred())
		Expect(r.outcome).To(Equal(queue.OutcomeRejected))
		Expect(mq.Len()).To(Equal(1))
	})

	It("should reject requests over the size limit", func() {
		Expect(exchange("PUBLISH " + strings.Repeat("x", 100))).To(Equal("Error: Request too large!\n"))

		var r handled
		Eventually(result).Should(Receive(&r))
		Expect(r.outcome).To(Equal(queue.OutcomeRejected))
		Expect(mq.Len()).To(BeZero())
	})

	When("the client stalls", func() {
		It("should drop the connection once the timeout elapses", func() {
			connect()
			start := time.Now()

			var r handled
			Eventually(result, 2*time.Second).Should(Receive(&r))
			Expect(time.Since(start)).To(BeNumerically(">=", 400*time.Millisecond))
			Expect(r.outcome).To(Equal(queue.OutcomeFailed))
			Expect(r.err).To(MatchError(context.DeadlineExceeded))
			Expect(r.err).To(MatchError(os.ErrDeadlineExceeded))

			// the server side is closed, so the client sees EOF
			response, err := io.ReadAll(client)
			Expect(err).NotTo(HaveOccurred())
			Expect(response).To(BeEmpty())
		})
	})

	When("the parent context is cancelled", func() {
		It("should abandon the exchange early", func() {
			connect()
			_, err := io.WriteString(client, "PUBLISH never")
			Expect(err).NotTo(HaveOccurred())

			cancel()

			var r handled
			Eventually(result, 400*time.Millisecond).Should(Receive(&r))
			Expect(r.outcome).To(Equal(queue.OutcomeFailed))
			Expect(r.err).To(MatchError(context.Canceled))
			Expect(mq.Len()).To(BeZero())
		})
	})
})
