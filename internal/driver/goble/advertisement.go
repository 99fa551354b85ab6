package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blite/internal/device"
)

// advertisement adapts ble.Advertisement to device.Advertisement
type advertisement struct {
	adv    ble.Advertisement
	casing device.Casing
}

func newAdvertisement(adv ble.Advertisement, casing device.Casing) device.Advertisement {
	return &advertisement{adv: adv, casing: casing}
}

func (a *advertisement) LocalName() string        { return a.adv.LocalName() }
func (a *advertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a *advertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *advertisement) RSSI() int                { return a.adv.RSSI() }

func (a *advertisement) Addr() string {
	if a.adv.Addr() == nil {
		return ""
	}
	return a.adv.Addr().String()
}

func (a *advertisement) Services() []string {
	uuids := a.adv.Services()
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = device.FormatID(u.String(), a.casing)
	}
	return result
}
