package wsserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/printbridge/agent/internal/model"
	"github.com/printbridge/agent/internal/scanner"
	"github.com/printbridge/agent/internal/transport/osprint"
	"github.com/printbridge/agent/internal/transport/tcp"
	"github.com/printbridge/agent/internal/transport/usb"
)

// ConfigController is the narrow slice of the supervisor the dispatcher
// needs for setRestaurantId: read the current device identity and apply a
// restaurant-id (and optional device-name) change, which the supervisor
// turns into a config save plus a cloud-poller restart.
type ConfigController interface {
	Snapshot() model.RuntimeConfig
	SetRestaurantID(ctx context.Context, restaurantID, deviceName string) error
}

// Dispatcher decodes one inbound frame and routes it to the handler for its
// command type. One Dispatcher is shared by every connection; handlers
// hold no per-connection state.
type Dispatcher struct {
	config ConfigController
	port   int
}

func NewDispatcher(config ConfigController, port int) *Dispatcher {
	return &Dispatcher{config: config, port: port}
}

// Dispatch decodes data as a Request and returns the Reply to send. ok is
// false when the frame is not valid JSON or lacks an integer id — such
// frames are silently dropped rather than replied to. A handler panic is
// recovered and turned into an error reply rather than taking down the
// connection's dispatch loop.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte, log zerolog.Logger) (reply model.Reply, ok bool) {
	var req model.Request
	if err := json.Unmarshal(data, &req); err != nil {
		log.Debug().Err(err).Msg("dropping non-JSON frame")
		return model.Reply{}, false
	}
	if !hasIntegerID(data) {
		log.Debug().Msg("dropping frame without integer id")
		return model.Reply{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("type", string(req.Type)).Msg("command handler panicked")
			reply = model.ErrReply(req.ID, "internal_error")
			ok = true
		}
	}()

	return d.route(ctx, req, data), true
}

func (d *Dispatcher) route(ctx context.Context, req model.Request, data []byte) model.Reply {
	switch req.Type {
	case model.CmdPing:
		return model.OKReply(req.ID, nil)

	case model.CmdGetInfo:
		return d.handleGetInfo(req.ID)

	case model.CmdSetRestaurantID:
		return d.handleSetRestaurantID(ctx, req.ID, data)

	case model.CmdPrintRawTCP:
		return d.handlePrintRawTCP(ctx, req.ID, data)

	case model.CmdDiscoverTCP9100:
		return d.handleDiscoverTCP9100(ctx, req.ID, data)

	case model.CmdDiscoverUSB:
		return d.handleDiscoverUSB(ctx, req.ID)

	case model.CmdPrintRawUSB:
		return d.handlePrintRawUSB(ctx, req.ID, data)

	case model.CmdDiscoverOSPrinters:
		return d.handleDiscoverOSPrinters(ctx, req.ID)

	case model.CmdPrintOS:
		return d.handlePrintOS(ctx, req.ID, data)

	default:
		return model.ErrReply(req.ID, "unknown type")
	}
}

// hasIntegerID reports whether data decodes to an object whose "id" field
// is a JSON number, rejecting frames that merely happen to parse as valid
// JSON (e.g. a bare string or a missing id).
func hasIntegerID(data []byte) bool {
	var probe struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	if probe.ID == "" {
		return false
	}
	_, err := probe.ID.Int64()
	return err == nil
}

// handleGetInfo re-detects the local LAN IP on every call rather than
// returning a cached value.
func (d *Dispatcher) handleGetInfo(id int) model.Reply {
	snap := d.config.Snapshot()

	extra := map[string]any{
		"port": d.port,
	}
	if ip, err := scanner.LocalIPv4(); err == nil {
		extra["localIp"] = ip.String()
	}
	if snap.RestaurantID != "" {
		extra["restaurantId"] = snap.RestaurantID
	}
	return model.OKReply(id, extra)
}

func (d *Dispatcher) handleSetRestaurantID(ctx context.Context, id int, data []byte) model.Reply {
	var body struct {
		RestaurantID string `json:"restaurantId"`
		DeviceName   string `json:"deviceName"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return model.ErrReply(id, "invalid_request")
	}
	if body.RestaurantID == "" {
		return model.ErrReply(id, "restaurantId is required")
	}
	if err := d.config.SetRestaurantID(ctx, body.RestaurantID, body.DeviceName); err != nil {
		return model.ErrReply(id, err.Error())
	}
	return model.OKReply(id, nil)
}

func (d *Dispatcher) handlePrintRawTCP(ctx context.Context, id int, data []byte) model.Reply {
	var body struct {
		IP      string `json:"ip"`
		Port    int    `json:"port"`
		DataB64 string `json:"dataB64"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return model.ErrReply(id, "invalid_request")
	}
	if body.IP == "" || body.DataB64 == "" {
		return model.ErrReply(id, "ip and dataB64 are required")
	}
	payload, err := base64.StdEncoding.DecodeString(body.DataB64)
	if err != nil {
		return model.ErrReply(id, "invalid base64 payload")
	}

	port := body.Port
	if port == 0 {
		port = model.DefaultLANPort
	}
	if err := tcp.Print(ctx, body.IP, port, payload); err != nil {
		return model.ErrReply(id, errKind(err))
	}
	return model.OKReply(id, nil)
}

func (d *Dispatcher) handleDiscoverTCP9100(ctx context.Context, id int, data []byte) model.Reply {
	var body struct {
		Port int `json:"port"`
	}
	_ = json.Unmarshal(data, &body) // port is optional; a decode error just leaves it zero

	port := body.Port
	if port == 0 {
		port = model.DefaultLANPort
	}

	result, err := scanner.Scan(ctx, port)
	if err != nil {
		return model.ErrReply(id, errKind(err))
	}
	return model.OKReply(id, map[string]any{
		"prefix": result.Prefix,
		"ips":    nonNilStrings(result.Hits),
	})
}

func (d *Dispatcher) handleDiscoverUSB(ctx context.Context, id int) model.Reply {
	devices, err := usb.Discover(ctx)
	if err != nil {
		return model.ErrReply(id, errKind(err))
	}
	return model.OKReply(id, map[string]any{"devices": devices})
}

func (d *Dispatcher) handlePrintRawUSB(ctx context.Context, id int, data []byte) model.Reply {
	var body struct {
		VendorID   uint16 `json:"vendorId"`
		ProductID  uint16 `json:"productId"`
		BusNumber  int    `json:"busNumber"`
		DeviceAddr int    `json:"deviceAddress"`
		Interface  int    `json:"interface"`
		Endpoint   int    `json:"outEndpoint"`
		DataB64    string `json:"dataB64"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return model.ErrReply(id, "invalid_request")
	}
	payload, err := base64.StdEncoding.DecodeString(body.DataB64)
	if err != nil {
		return model.ErrReply(id, "invalid base64 payload")
	}

	target := model.USBPrintTarget{
		VendorID:        body.VendorID,
		ProductID:       body.ProductID,
		BusNumber:       body.BusNumber,
		DeviceAddr:      body.DeviceAddr,
		InterfaceNumber: body.Interface, // defaults to 0, the zero value
		OutEndpoint:     body.Endpoint,
	}
	if err := usb.Print(ctx, target, payload); err != nil {
		return model.ErrReply(id, errKind(err))
	}
	return model.OKReply(id, nil)
}

func (d *Dispatcher) handleDiscoverOSPrinters(ctx context.Context, id int) model.Reply {
	printers := osprint.Discover(ctx)
	return model.OKReply(id, map[string]any{"printers": printers})
}

func (d *Dispatcher) handlePrintOS(ctx context.Context, id int, data []byte) model.Reply {
	var body struct {
		PrinterName string `json:"printerName"`
		DataB64     string `json:"dataB64"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return model.ErrReply(id, "invalid_request")
	}
	if body.PrinterName == "" {
		return model.ErrReply(id, string(model.KindNoPrinterName))
	}
	payload, err := base64.StdEncoding.DecodeString(body.DataB64)
	if err != nil {
		return model.ErrReply(id, "invalid base64 payload")
	}
	if err := osprint.Print(ctx, body.PrinterName, payload); err != nil {
		return model.ErrReply(id, errKind(err))
	}
	return model.OKReply(id, nil)
}

// errKind renders a *model.TransportError's Kind verbatim, falling back to
// the error's own message for anything else.
func errKind(err error) string {
	var terr *model.TransportError
	if errors.As(err, &terr) {
		return string(terr.Kind)
	}
	return err.Error()
}

// nonNilStrings normalizes a nil slice to an empty, non-null JSON array.
func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
