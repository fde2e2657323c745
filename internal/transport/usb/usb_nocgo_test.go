//go:build !cgo

package usb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printbridge/agent/internal/model"
	"github.com/printbridge/agent/internal/transport/usb"
)

func TestDiscover_NoCgoIsLibusbUnavailable(t *testing.T) {
	_, err := usb.Discover(context.Background())
	require.Error(t, err)

	var terr *model.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, model.KindLibusbUnavailable, terr.Kind)
}

func TestPrint_NoCgoIsLibusbUnavailable(t *testing.T) {
	err := usb.Print(context.Background(), model.USBPrintTarget{VendorID: 1208, ProductID: 514, OutEndpoint: 1}, nil)
	require.Error(t, err)

	var terr *model.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, model.KindLibusbUnavailable, terr.Kind)
}
