package binding

import (
	"context"

	"github.com/klauspost/compress/zstd"

	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
)

// CompressionElement compresses message bodies with zstd. Replies are
// decompressed only when they carry the compression header, so a service
// may answer uncompressed.
type CompressionElement struct {
	Level zstd.EncoderLevel
}

// Kind returns KindCustom.
func (e *CompressionElement) Kind() ElementKind { return KindCustom }

// CanBuildShape accepts every shape.
func (e *CompressionElement) CanBuildShape(channel.Shape) bool { return true }

// BuildChannelFactory returns the compressing transform factory.
func (e *CompressionElement) BuildChannelFactory(channel.Shape, *BuildContext) (channel.LayerFactory, error) {
	level := e.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	return &channel.TransformFactory{
		Outbound: func(_ context.Context, m *message.Message) (*message.Message, error) {
			return wire.Compress(m, level)
		},
		Inbound: func(_ context.Context, m *message.Message) (*message.Message, error) {
			return wire.Decompress(m)
		},
	}, nil
}
