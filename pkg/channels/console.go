package channels

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/SZoloth/promptrelay/pkg/bus"
	"github.com/SZoloth/promptrelay/pkg/logger"
)

// ConsoleChannel is an interactive prompt for exercising the relay by hand.
// Each line becomes a SEND_PROMPT payload; the reply is printed inline.
type ConsoleChannel struct {
	*BaseChannel
	rl *readline.Instance
}

func NewConsoleChannel(dispatch bus.DispatchFunc) *ConsoleChannel {
	return &ConsoleChannel{
		BaseChannel: NewBaseChannel("console", dispatch),
	}
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	rl, err := readline.New("prompt> ")
	if err != nil {
		return fmt.Errorf("failed to init console: %w", err)
	}
	c.rl = rl
	c.setRunning(true)
	logger.InfoC("console", "Console channel ready, type a prompt")

	go c.readLoop(ctx)
	return nil
}

func (c *ConsoleChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	if c.rl != nil {
		return c.rl.Close()
	}
	return nil
}

func (c *ConsoleChannel) readLoop(ctx context.Context) {
	defer c.setRunning(false)

	for {
		line, err := c.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return
		}
		if line == "" {
			continue
		}

		payload, err := json.Marshal(map[string]string{"prompt": line})
		if err != nil {
			continue
		}

		result := c.dispatch(ctx, payload)
		result.CorrelationID = uuid.NewString()
		c.printResult(result)
	}
}

func (c *ConsoleChannel) printResult(result bus.RelayResult) {
	if !result.OK {
		fmt.Printf("error: %s\n", result.Error)
		return
	}
	if len(result.Data) == 0 {
		fmt.Println("ok (no data)")
		return
	}
	fmt.Printf("ok: %s\n", string(result.Data))
}
