package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/m7moud/tcp-queue/internal/config"
	"github.com/m7moud/tcp-queue/internal/queue"
)

// queue-cli sends one raw command, e.g. `queue-cli PUBLISH hello` or
// `queue-cli RETRIEVE`, and prints the server's response.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: queue-cli <COMMAND> [message...]")
		os.Exit(2)
	}

	if err := run(strings.Join(os.Args[1:], " ")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(command string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}

	client, err := queue.NewQueueClient(cfg.Server.Addr, queue.WithTimeout(cfg.Server.Handler.Timeout))
	if err != nil {
		return errors.Wrap(err, "create client")
	}
	defer client.Close()

	response, err := client.Do(context.Background(), command)
	if err != nil {
		return errors.Wrapf(err, "send %q", command)
	}

	fmt.Println(response)
	return nil
}
