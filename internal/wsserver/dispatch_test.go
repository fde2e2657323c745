package wsserver_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printbridge/agent/internal/model"
	"github.com/printbridge/agent/internal/wsserver"
)

type fakeConfig struct {
	snap           model.RuntimeConfig
	last           string
	lastDeviceName string
	err            error
}

func (f *fakeConfig) Snapshot() model.RuntimeConfig { return f.snap }

func (f *fakeConfig) SetRestaurantID(ctx context.Context, restaurantID, deviceName string) error {
	f.last = restaurantID
	f.lastDeviceName = deviceName
	return f.err
}

func decodeReply(t *testing.T, reply model.Reply) map[string]any {
	t.Helper()
	data, err := json.Marshal(reply)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	return decoded
}

func TestDispatch_Ping(t *testing.T) {
	d := wsserver.NewDispatcher(&fakeConfig{}, 7171)
	reply, ok := d.Dispatch(context.Background(), []byte(`{"id":1,"type":"ping"}`), zerolog.Nop())
	require.True(t, ok)

	decoded := decodeReply(t, reply)
	assert.Equal(t, float64(1), decoded["id"])
	assert.Equal(t, true, decoded["ok"])
}

func TestDispatch_GetInfo(t *testing.T) {
	cfg := &fakeConfig{snap: model.RuntimeConfig{DeviceID: "host-1", DeviceName: "Front", RestaurantID: "r1"}}
	d := wsserver.NewDispatcher(cfg, 7171)

	reply, ok := d.Dispatch(context.Background(), []byte(`{"id":2,"type":"getInfo"}`), zerolog.Nop())
	require.True(t, ok)

	decoded := decodeReply(t, reply)
	assert.Equal(t, float64(7171), decoded["port"])
	assert.Equal(t, "r1", decoded["restaurantId"])
}

func TestDispatch_GetInfoOmitsRestaurantIDWhenUnset(t *testing.T) {
	d := wsserver.NewDispatcher(&fakeConfig{}, 7171)
	reply, ok := d.Dispatch(context.Background(), []byte(`{"id":2,"type":"getInfo"}`), zerolog.Nop())
	require.True(t, ok)

	decoded := decodeReply(t, reply)
	_, present := decoded["restaurantId"]
	assert.False(t, present)
}

func TestDispatch_SetRestaurantID(t *testing.T) {
	cfg := &fakeConfig{}
	d := wsserver.NewDispatcher(cfg, 7171)

	reply, ok := d.Dispatch(context.Background(), []byte(`{"id":3,"type":"setRestaurantId","restaurantId":"r99"}`), zerolog.Nop())
	require.True(t, ok)
	assert.Equal(t, "r99", cfg.last)

	decoded := decodeReply(t, reply)
	assert.Equal(t, true, decoded["ok"])
}

func TestDispatch_SetRestaurantIDCapturesDeviceName(t *testing.T) {
	cfg := &fakeConfig{}
	d := wsserver.NewDispatcher(cfg, 7171)

	reply, ok := d.Dispatch(context.Background(), []byte(`{"id":3,"type":"setRestaurantId","restaurantId":"r99","deviceName":"Front Counter"}`), zerolog.Nop())
	require.True(t, ok)
	assert.Equal(t, "r99", cfg.last)
	assert.Equal(t, "Front Counter", cfg.lastDeviceName)

	decoded := decodeReply(t, reply)
	assert.Equal(t, true, decoded["ok"])
}

func TestDispatch_SetRestaurantIDRequiresNonEmpty(t *testing.T) {
	cfg := &fakeConfig{}
	d := wsserver.NewDispatcher(cfg, 7171)

	reply, ok := d.Dispatch(context.Background(), []byte(`{"id":3,"type":"setRestaurantId","restaurantId":""}`), zerolog.Nop())
	require.True(t, ok)

	decoded := decodeReply(t, reply)
	assert.Equal(t, false, decoded["ok"])
	assert.Equal(t, "restaurantId is required", decoded["error"])
	assert.Empty(t, cfg.last)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	d := wsserver.NewDispatcher(&fakeConfig{}, 7171)
	reply, ok := d.Dispatch(context.Background(), []byte(`{"id":4,"type":"doSomethingElse"}`), zerolog.Nop())
	require.True(t, ok)

	decoded := decodeReply(t, reply)
	assert.Equal(t, false, decoded["ok"])
	assert.Equal(t, "unknown type", decoded["error"])
}

func TestDispatch_DropsFrameWithoutIntegerID(t *testing.T) {
	d := wsserver.NewDispatcher(&fakeConfig{}, 7171)

	_, ok := d.Dispatch(context.Background(), []byte(`{"type":"ping"}`), zerolog.Nop())
	assert.False(t, ok)

	_, ok = d.Dispatch(context.Background(), []byte(`{"id":"not-a-number","type":"ping"}`), zerolog.Nop())
	assert.False(t, ok)

	_, ok = d.Dispatch(context.Background(), []byte(`not json at all`), zerolog.Nop())
	assert.False(t, ok)
}

func TestDispatch_PrintRawTCPMissingIPAndData(t *testing.T) {
	d := wsserver.NewDispatcher(&fakeConfig{}, 7171)
	reply, ok := d.Dispatch(context.Background(), []byte(`{"id":5,"type":"printRawTcp","ip":"","port":9100}`), zerolog.Nop())
	require.True(t, ok)

	decoded := decodeReply(t, reply)
	assert.Equal(t, false, decoded["ok"])
	assert.Equal(t, "ip and dataB64 are required", decoded["error"])
}

func TestDispatch_PrintOSMissingPrinterName(t *testing.T) {
	d := wsserver.NewDispatcher(&fakeConfig{}, 7171)
	reply, ok := d.Dispatch(context.Background(), []byte(`{"id":6,"type":"printOs","printerName":"","dataB64":"aGk="}`), zerolog.Nop())
	require.True(t, ok)

	decoded := decodeReply(t, reply)
	assert.Equal(t, "no_printer_name", decoded["error"])
}

func TestDispatch_PrintOSInvalidBase64(t *testing.T) {
	d := wsserver.NewDispatcher(&fakeConfig{}, 7171)
	reply, ok := d.Dispatch(context.Background(), []byte(`{"id":7,"type":"printOs","printerName":"Kitchen","dataB64":"not-base64!!"}`), zerolog.Nop())
	require.True(t, ok)

	decoded := decodeReply(t, reply)
	assert.Equal(t, false, decoded["ok"])
	assert.Equal(t, "invalid base64 payload", decoded["error"])
}
