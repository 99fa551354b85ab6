package goble

import (
	"sort"

	"github.com/go-ble/ble"
	"github.com/srg/blite/internal/device"
)

// charKey indexes discovered characteristics by normalized service and
// characteristic UUID.
type charKey struct {
	service        string
	characteristic string
}

func keyOf(service, characteristic string) charKey {
	return charKey{
		service:        device.NormalizeUUID(service),
		characteristic: device.NormalizeUUID(characteristic),
	}
}

// indexProfile flattens a discovered profile into a lookup table and the
// session-facing service list, sorted by UUID.
func indexProfile(p *ble.Profile, casing device.Casing) (map[charKey]*ble.Characteristic, []device.ServiceInfo) {
	index := make(map[charKey]*ble.Characteristic)
	if p == nil {
		return index, nil
	}

	services := make([]device.ServiceInfo, 0, len(p.Services))
	for _, svc := range p.Services {
		info := device.ServiceInfo{
			UUID:            device.FormatID(svc.UUID.String(), casing),
			Characteristics: make([]device.CharacteristicInfo, 0, len(svc.Characteristics)),
		}
		for _, c := range svc.Characteristics {
			index[keyOf(svc.UUID.String(), c.UUID.String())] = c
			info.Characteristics = append(info.Characteristics, device.CharacteristicInfo{
				UUID:       device.FormatID(c.UUID.String(), casing),
				Properties: propertyNames(c.Property),
			})
		}
		sort.Slice(info.Characteristics, func(i, j int) bool {
			return info.Characteristics[i].UUID < info.Characteristics[j].UUID
		})
		services = append(services, info)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].UUID < services[j].UUID })
	return index, services
}

func propertyNames(p ble.Property) []string {
	var names []string
	if p&ble.CharRead != 0 {
		names = append(names, device.PropRead)
	}
	if p&ble.CharWrite != 0 {
		names = append(names, device.PropWrite)
	}
	if p&ble.CharWriteNR != 0 {
		names = append(names, device.PropWriteWithoutResponse)
	}
	if p&ble.CharNotify != 0 {
		names = append(names, device.PropNotify)
	}
	if p&ble.CharIndicate != 0 {
		names = append(names, device.PropIndicate)
	}
	return names
}

// useIndication reports whether subscribing must use indications, which is
// the case when the characteristic indicates but does not notify.
func useIndication(c *ble.Characteristic) bool {
	return c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0
}
