// Package server defines the operator that types replies for clients.
// Every inbound message blocks its handler until the operator answers, so
// operator interaction is a deliberate serialization point across clients.
package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/eapache/queue"
)

// Operator produces the reply for a message received from a client.
// Reply blocks until a reply is available or ctx is done.
type Operator interface {
	Reply(ctx context.Context, client *Client, message string) (string, error)
}

// OperatorFunc adapts a plain function to the Operator interface.
type OperatorFunc func(ctx context.Context, client *Client, message string) (string, error)

// Reply calls f.
func (f OperatorFunc) Reply(ctx context.Context, client *Client, message string) (string, error) {
	return f(ctx, client, message)
}

// EchoOperator answers every message with the message itself.
type EchoOperator struct{}

// Reply returns message unchanged.
func (EchoOperator) Reply(_ context.Context, _ *Client, message string) (string, error) {
	return message, nil
}

type prompt struct {
	client    *Client
	reply     chan string
	abandoned bool
}

// ConsoleOperator asks a human for replies over a line-oriented terminal.
// Prompts are answered strictly in the order handlers asked for them.
type ConsoleOperator struct {
	in  io.Reader
	out io.Writer

	mu      sync.Mutex
	pending *queue.Queue
	err     error
	start   sync.Once
}

// NewConsoleOperator creates an operator reading replies from in and
// writing prompts to out.
func NewConsoleOperator(in io.Reader, out io.Writer) *ConsoleOperator {
	return &ConsoleOperator{
		in:      in,
		out:     out,
		pending: queue.New(),
	}
}

// Reply queues a prompt for client and waits for the operator's next line
// addressed to it. It returns io.EOF once the input is exhausted.
func (o *ConsoleOperator) Reply(ctx context.Context, client *Client, _ string) (string, error) {
	o.start.Do(func() { go o.readLines() })

	p := &prompt{client: client, reply: make(chan string, 1)}

	o.mu.Lock()
	if o.err != nil {
		err := o.err
		o.mu.Unlock()
		return "", err
	}
	o.pending.Add(p)
	if o.pending.Length() == 1 {
		o.showPrompt(p)
	}
	o.mu.Unlock()

	select {
	case line, ok := <-p.reply:
		if !ok {
			return "", o.inputErr()
		}
		return line, nil
	case <-ctx.Done():
		o.abandon(p)
		return "", ctx.Err()
	}
}

func (o *ConsoleOperator) inputErr() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// abandon drops p from the queue. A prompt that is already on screen is
// replaced by the next live one. A line delivered to p after its caller
// stopped waiting is passed on to the next live prompt.
func (o *ConsoleOperator) abandon(p *prompt) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p.abandoned = true
	select {
	case line, ok := <-p.reply:
		if ok {
			o.handOff(line)
		}
		return
	default:
	}

	if o.pending.Length() > 0 && o.pending.Peek() == p {
		o.pending.Remove()
		if next := o.head(); next != nil {
			o.showPrompt(next)
		}
	}
}

// head discards abandoned prompts and returns the first live one.
// Callers hold o.mu.
func (o *ConsoleOperator) head() *prompt {
	for o.pending.Length() > 0 {
		p := o.pending.Peek().(*prompt)
		if !p.abandoned {
			return p
		}
		o.pending.Remove()
	}
	return nil
}

func (o *ConsoleOperator) showPrompt(p *prompt) {
	fmt.Fprintf(o.out, "Enter custom response for %s: ", p.client.Name())
}

func (o *ConsoleOperator) readLines() {
	scanner := bufio.NewScanner(o.in)
	for scanner.Scan() {
		o.deliver(scanner.Text())
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
	for o.pending.Length() > 0 {
		close(o.pending.Remove().(*prompt).reply)
	}
}

// deliver hands line to the prompt at the head of the queue. Lines typed
// while nobody is waiting are discarded.
func (o *ConsoleOperator) deliver(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handOff(line)
}

// handOff sends line to the first live prompt and shows the one after it.
// Callers hold o.mu.
func (o *ConsoleOperator) handOff(line string) {
	p := o.head()
	if p == nil {
		return
	}
	o.pending.Remove()
	p.reply <- line

	if next := o.head(); next != nil {
		o.showPrompt(next)
	}
}
