package printer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/orrn/fileprint/internal/core"
	"github.com/orrn/fileprint/internal/hostipc"
)

type imageRequest struct {
	DeviceName string `json:"deviceName"`
	FilePath   string `json:"filePath"`
}

// HostImagePrinter asks the host process to print an image and waits for its
// success or failure event. Replies carry no correlation id, so requests are
// serialized.
type HostImagePrinter struct {
	channel *hostipc.Channel
	mu      sync.Mutex
}

func NewHostImagePrinter(channel *hostipc.Channel) *HostImagePrinter {
	return &HostImagePrinter{channel: channel}
}

func (p *HostImagePrinter) PrintImage(ctx context.Context, deviceName, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg, err := hostipc.NewMessage(hostipc.TypePrintImage, imageRequest{DeviceName: deviceName, FilePath: path})
	if err != nil {
		return err
	}

	reply, err := p.channel.Request(ctx, msg, hostipc.TypePrintImageSuccess, hostipc.TypePrintImageFailed)
	if err != nil {
		return fmt.Errorf("failed to reach host: %w", err)
	}

	if reply.Type == hostipc.TypePrintImageFailed {
		if text := reply.ErrorText(); text != "" {
			return errors.New(text)
		}
		return errors.New("host reported image print failure")
	}
	return nil
}

var _ core.ImagePrinter = (*HostImagePrinter)(nil)
