package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCtx_Returns_Attached_Logger_And_Chains(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	attached := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), attached)

	// Level methods must be reachable directly off the accessor.
	Ctx(ctx).Info().Str(FieldRoomID, "room-1").Msg("attached")

	var entry map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &entry))
	req.Equal("attached", entry["message"])
	req.Equal("room-1", entry[FieldRoomID])
}

func TestCtx_Falls_Back_To_Global(t *testing.T) {
	req := require.New(t)
	req.Same(L(), Ctx(context.Background()))
}
