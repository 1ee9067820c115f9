package worker_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/m7moud/tcp-queue/internal/queue"
	"github.com/m7moud/tcp-queue/internal/worker"
)

var _ = Describe("FileWriterWorker", func() {
	var (
		client     *queue.QueueClient
		outputFile string
		config     worker.FileWriterConfig
		ctx        context.Context
		cancel     context.CancelFunc
	)

	readOutput := func() string {
		data, err := os.ReadFile(outputFile)
		Expect(err).NotTo(HaveOccurred())
		return string(data)
	}

	BeforeEach(func() {
		client = startQueue(queue.NewMessageQueue())
		outputFile = filepath.Join(GinkgoT().TempDir(), "output.txt")
		config = worker.FileWriterConfig{
			OutputFile:    outputFile,
			BatchSize:     2,
			FlushInterval: 50 * time.Millisecond,
			PollInterval:  10 * time.Millisecond,
		}
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	It("should write retrieved messages to the file", func() {
		for i, content := range []string{"alpha", "beta", "gamma"} {
			Expect(client.Push(ctx, &queue.Message{ID: content, Content: content, LineNum: i + 1})).To(Succeed())
		}

		w, err := worker.NewFileWriterWorker(client, config, newTestLogger())
		Expect(err).NotTo(HaveOccurred())

		done := make(chan error, 1)
		go func() {
			done <- w.Start(ctx)
		}()

		Eventually(readOutput, 2*time.Second).Should(Equal("alpha\nbeta\ngamma\n"))
		Expect(w.GetStats()["written"]).To(Equal(int64(3)))
		Expect(w.IsRunning()).To(BeTrue())

		cancel()
		Eventually(done, 2*time.Second).Should(Receive(MatchError(context.Canceled)))
		Expect(w.IsRunning()).To(BeFalse())
		Expect(w.Close()).To(Succeed())
	})

	It("should append when configured to", func() {
		Expect(os.WriteFile(outputFile, []byte("existing\n"), 0o644)).To(Succeed())
		config.AppendMode = true

		Expect(client.Push(ctx, &queue.Message{Content: "new"})).To(Succeed())

		w, err := worker.NewFileWriterWorker(client, config, newTestLogger())
		Expect(err).NotTo(HaveOccurred())

		go func() {
			_ = w.Start(ctx)
		}()

		Eventually(readOutput, 2*time.Second).Should(Equal("existing\nnew\n"))
	})

	It("should refuse a second concurrent Start", func() {
		w, err := worker.NewFileWriterWorker(client, config, newTestLogger())
		Expect(err).NotTo(HaveOccurred())

		go func() {
			_ = w.Start(ctx)
		}()
		Eventually(w.IsRunning).Should(BeTrue())

		Expect(w.Start(ctx)).To(MatchError("worker already running"))
	})

	It("should reject invalid intervals", func() {
		config.PollInterval = 0
		_, err := worker.NewFileWriterWorker(client, config, newTestLogger())
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("file pipeline", func() {
	It("should copy an input file through the queue", func() {
		dir := GinkgoT().TempDir()
		inputFile := filepath.Join(dir, "in.txt")
		outputFile := filepath.Join(dir, "out.txt")
		Expect(os.WriteFile(inputFile, []byte("one\ntwo words\n  three  \n"), 0o644)).To(Succeed())

		client := startQueue(queue.NewMessageQueue())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		reader, err := worker.NewFileReaderWorker(client, worker.FileReaderConfig{
			InputFile: inputFile, BatchSize: 10, BufferSize: 1024,
		}, newTestLogger())
		Expect(err).NotTo(HaveOccurred())

		writer, err := worker.NewFileWriterWorker(client, worker.FileWriterConfig{
			OutputFile: outputFile, BatchSize: 10,
			FlushInterval: 20 * time.Millisecond, PollInterval: 5 * time.Millisecond,
		}, newTestLogger())
		Expect(err).NotTo(HaveOccurred())

		go func() {
			_ = writer.Start(ctx)
		}()
		Expect(reader.Start(ctx)).To(Succeed())

		Eventually(func() string {
			data, _ := os.ReadFile(outputFile)
			return string(data)
		}, 2*time.Second).Should(Equal("one\ntwo words\n  three  \n"))
	})

	It("should skip lines the queue cannot take and carry on", func() {
		dir := GinkgoT().TempDir()
		inputFile := filepath.Join(dir, "in.txt")
		outputFile := filepath.Join(dir, "out.txt")

		angles := strings.Repeat("<", 11000)
		huge := strings.Repeat("a", queue.DefaultMaxRequestBytes+1)
		input := "before\n" + angles + "\n" + huge + "\nafter\n"
		Expect(os.WriteFile(inputFile, []byte(input), 0o644)).To(Succeed())

		client := startQueue(queue.NewMessageQueue())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		reader, err := worker.NewFileReaderWorker(client, worker.FileReaderConfig{
			InputFile: inputFile, BatchSize: 2, BufferSize: 128 << 10,
		}, newTestLogger())
		Expect(err).NotTo(HaveOccurred())

		writer, err := worker.NewFileWriterWorker(client, worker.FileWriterConfig{
			OutputFile: outputFile, BatchSize: 10,
			FlushInterval: 20 * time.Millisecond, PollInterval: 5 * time.Millisecond,
		}, newTestLogger())
		Expect(err).NotTo(HaveOccurred())

		go func() {
			_ = writer.Start(ctx)
		}()
		Expect(reader.Start(ctx)).To(Succeed())
		Expect(reader.GetStats()["processed"]).To(Equal(int64(3)))
		Expect(reader.GetStats()["skipped"]).To(Equal(int64(1)))

		Eventually(func() string {
			data, _ := os.ReadFile(outputFile)
			return string(data)
		}, 2*time.Second).Should(Equal("before\n" + angles + "\nafter\n"))
	})
})
