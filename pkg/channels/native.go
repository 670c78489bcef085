package channels

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/SZoloth/promptrelay/pkg/bus"
	"github.com/SZoloth/promptrelay/pkg/logger"
)

// maxNativeFrameBytes caps inbound native-messaging frames. Browsers cap
// host-bound messages well above this; anything larger here is garbage.
const maxNativeFrameBytes = 16 << 20

// NativeChannel speaks the browser native-messaging wire format over
// stdin/stdout: each frame is a uint32 little-endian byte length followed by a
// JSON body. The browser owns the process lifetime — EOF on stdin means the
// extension side is gone and the channel stops.
type NativeChannel struct {
	*BaseChannel
	in  io.Reader
	out io.Writer
	wmu sync.Mutex
}

func NewNativeChannel(dispatch bus.DispatchFunc) *NativeChannel {
	return newNativeChannelIO(os.Stdin, os.Stdout, dispatch)
}

func newNativeChannelIO(in io.Reader, out io.Writer, dispatch bus.DispatchFunc) *NativeChannel {
	return &NativeChannel{
		BaseChannel: NewBaseChannel("native", dispatch),
		in:          in,
		out:         out,
	}
}

func (c *NativeChannel) Start(ctx context.Context) error {
	c.setRunning(true)
	logger.InfoC("native", "Native messaging host started")

	go c.readLoop(ctx)
	return nil
}

func (c *NativeChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	return nil
}

func (c *NativeChannel) readLoop(ctx context.Context) {
	defer c.setRunning(false)

	for {
		raw, err := readFrame(c.in)
		if err != nil {
			if err != io.EOF {
				logger.WarnCF("native", "Native stream ended", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}

		go func(raw []byte) {
			reply := c.handleEnvelope(ctx, raw)
			if reply == nil {
				return
			}
			if err := c.writeFrame(reply); err != nil {
				logger.WarnCF("native", "Failed to write reply frame", map[string]interface{}{
					"correlation_id": reply.CorrelationID,
					"error":          err.Error(),
				})
			}
		}(raw)
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}

	length := binary.LittleEndian.Uint32(header[:])
	if length == 0 {
		return nil, fmt.Errorf("zero-length frame")
	}
	if length > maxNativeFrameBytes {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("truncated frame: %w", err)
	}
	return body, nil
}

func (c *NativeChannel) writeFrame(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(body)))

	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.out.Write(header[:]); err != nil {
		return err
	}
	_, err = c.out.Write(body)
	return err
}
