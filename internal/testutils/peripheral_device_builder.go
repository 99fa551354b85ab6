package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/srg/blite/internal/device"
)

// CharacteristicConfig represents a GATT characteristic of a fake peripheral
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g. "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig represents a GATT service of a fake peripheral
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig is the complete GATT profile and advertising data of a fake peripheral
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder describes one peripheral and installs it on a FakeDriver
type PeripheralDeviceBuilder struct {
	profile            DeviceProfileConfig
	scanAdvertisements []device.Advertisement
}

func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{}
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := &b.profile.Services[len(b.profile.Services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// FromJSON replaces the device profile
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.profile = config
	return b
}

// WithAdvertisement makes the peripheral show up in every scan
func (b *PeripheralDeviceBuilder) WithAdvertisement(adv *AdvertisementBuilder) *PeripheralDeviceBuilder {
	b.scanAdvertisements = append(b.scanAdvertisements, adv.Build())
	return b
}

// Services converts the profile to what a driver reports from service discovery
func (b *PeripheralDeviceBuilder) Services() []device.ServiceInfo {
	out := make([]device.ServiceInfo, 0, len(b.profile.Services))
	for _, svc := range b.profile.Services {
		info := device.ServiceInfo{UUID: svc.UUID, Characteristics: []device.CharacteristicInfo{}}
		for _, ch := range svc.Characteristics {
			info.Characteristics = append(info.Characteristics, device.CharacteristicInfo{
				UUID:       ch.UUID,
				Properties: parseCharacteristicProperties(ch.Properties),
			})
		}
		out = append(out, info)
	}
	return out
}

// parseCharacteristicProperties splits a comma-separated property list,
// defaulting to read,write,notify
func parseCharacteristicProperties(props string) []string {
	if strings.TrimSpace(props) == "" {
		return []string{device.PropRead, device.PropWrite, device.PropNotify}
	}
	var out []string
	for _, p := range strings.Split(props, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Build installs the peripheral on f: advertisements, discovered profile and
// readable values. f answers commands on its own afterwards.
func (b *PeripheralDeviceBuilder) Build(f *FakeDriver) *FakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.AutoConnect = true
	f.AutoAck = true
	f.Advertisements = append(f.Advertisements, b.scanAdvertisements...)
	f.Profile = b.Services()
	for _, svc := range b.profile.Services {
		for _, ch := range svc.Characteristics {
			if ch.Value != nil {
				f.Values[ch.UUID] = ch.Value
			}
		}
	}
	return f
}
