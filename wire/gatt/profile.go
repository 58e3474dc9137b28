package gatt

import (
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
)

// Service is a GATT service definition used to build an attribute table
type Service struct {
	UUID            uuid.UUID
	Characteristics []Characteristic
}

// Characteristic is a characteristic definition. A CCCD is added
// automatically when Properties include notify or indicate, unless OmitCCCD
// is set.
type Characteristic struct {
	UUID       uuid.UUID
	Properties Property
	Value      []byte
	OmitCCCD   bool
}

// BuildAttributeDatabase lays out services the way a GATT server does:
// service declaration, then per characteristic a declaration
// ([props][value handle][uuid]), the value and its descriptors.
func BuildAttributeDatabase(services []Service) *AttributeDatabase {
	db := NewAttributeDatabase()

	for _, svc := range services {
		db.AddAttribute(UUIDPrimaryService, UUIDBytes(svc.UUID), PermReadable)

		for _, char := range svc.Characteristics {
			charUUID := UUIDBytes(char.UUID)

			decl := make([]byte, 3+len(charUUID))
			decl[0] = byte(char.Properties)
			binary.LittleEndian.PutUint16(decl[1:3], db.LastHandle()+2)
			copy(decl[3:], charUUID)
			db.AddAttribute(UUIDCharacteristic, decl, PermReadable)

			db.AddAttribute(charUUID, char.Value, valuePermissions(char.Properties))

			if char.Properties&(PropNotify|PropIndicate) != 0 && !char.OmitCCCD {
				db.AddAttribute(UUIDClientCharacteristicConfig,
					EncodeCCCDValue(false, false), PermReadable|PermWritable)
			}
		}
	}
	return db
}

func valuePermissions(props Property) uint8 {
	var perms uint8
	if props&PropRead != 0 {
		perms |= PermReadable
	}
	if props&(PropWrite|PropWriteWithoutResponse) != 0 {
		perms |= PermWritable
	}
	return perms
}

// DiscoveredCharacteristic is what a client learns about a characteristic
type DiscoveredCharacteristic struct {
	UUID              []byte
	Properties        Property
	DeclarationHandle uint16
	ValueHandle       uint16
	Descriptors       []DiscoveredDescriptor
}

// DiscoveredDescriptor is a descriptor found after a characteristic value
type DiscoveredDescriptor struct {
	UUID   []byte
	Handle uint16
}

// DiscoveredService is a service with its characteristics
type DiscoveredService struct {
	UUID            []byte
	StartHandle     uint16
	EndHandle       uint16
	Characteristics []DiscoveredCharacteristic
}

// Profile is the result of a full discovery of an attribute table
type Profile struct {
	Services []DiscoveredService
}

// Discover walks db and returns its full service hierarchy
func Discover(db *AttributeDatabase) *Profile {
	last := db.LastHandle()
	serviceHandles := db.FindAttributesByType(0x0001, last, UUIDPrimaryService)

	profile := &Profile{}
	for i, start := range serviceHandles {
		end := last
		if i+1 < len(serviceHandles) {
			end = serviceHandles[i+1] - 1
		}

		attr, err := db.GetAttribute(start)
		if err != nil {
			continue
		}
		svc := DiscoveredService{UUID: attr.Value, StartHandle: start, EndHandle: end}
		svc.Characteristics = discoverCharacteristics(db, start, end)
		profile.Services = append(profile.Services, svc)
	}
	return profile
}

func discoverCharacteristics(db *AttributeDatabase, start, end uint16) []DiscoveredCharacteristic {
	declHandles := db.FindAttributesByType(start, end, UUIDCharacteristic)

	var chars []DiscoveredCharacteristic
	for i, h := range declHandles {
		attr, err := db.GetAttribute(h)
		if err != nil || len(attr.Value) < 5 {
			continue
		}

		char := DiscoveredCharacteristic{
			UUID:              attr.Value[3:],
			Properties:        Property(attr.Value[0]),
			DeclarationHandle: h,
			ValueHandle:       binary.LittleEndian.Uint16(attr.Value[1:3]),
		}

		// Descriptors sit between the value and the next declaration
		descEnd := end
		if i+1 < len(declHandles) {
			descEnd = declHandles[i+1] - 1
		}
		for dh := char.ValueHandle + 1; dh <= descEnd && dh > char.ValueHandle; dh++ {
			desc, err := db.GetAttribute(dh)
			if err != nil {
				continue
			}
			char.Descriptors = append(char.Descriptors, DiscoveredDescriptor{UUID: desc.Type, Handle: dh})
		}
		chars = append(chars, char)
	}
	return chars
}

// Characteristic finds a characteristic of a service by UUID
func (p *Profile) Characteristic(service, char uuid.UUID) (*DiscoveredCharacteristic, bool) {
	svcUUID := UUIDBytes(service)
	charUUID := UUIDBytes(char)

	for i := range p.Services {
		if !bytes.Equal(p.Services[i].UUID, svcUUID) {
			continue
		}
		for j := range p.Services[i].Characteristics {
			c := &p.Services[i].Characteristics[j]
			if bytes.Equal(c.UUID, charUUID) {
				return c, true
			}
		}
	}
	return nil, false
}

// Descriptor returns the handle of a characteristic's descriptor. The CCCD is
// also matched by its 16-bit short form.
func (c *DiscoveredCharacteristic) Descriptor(desc uuid.UUID) (uint16, bool) {
	long := UUIDBytes(desc)
	for _, d := range c.Descriptors {
		if bytes.Equal(d.UUID, long) {
			return d.Handle, true
		}
		if desc == CCCDUUID && bytes.Equal(d.UUID, UUIDClientCharacteristicConfig) {
			return d.Handle, true
		}
	}
	return 0, false
}

// CharacteristicByValueHandle finds a characteristic by its value handle
func (p *Profile) CharacteristicByValueHandle(handle uint16) (*DiscoveredCharacteristic, bool) {
	for i := range p.Services {
		for j := range p.Services[i].Characteristics {
			c := &p.Services[i].Characteristics[j]
			if c.ValueHandle == handle {
				return c, true
			}
		}
	}
	return nil, false
}

// CharacteristicByDescriptor finds the characteristic owning a descriptor handle
func (p *Profile) CharacteristicByDescriptor(handle uint16) (*DiscoveredCharacteristic, bool) {
	for i := range p.Services {
		for j := range p.Services[i].Characteristics {
			c := &p.Services[i].Characteristics[j]
			for _, d := range c.Descriptors {
				if d.Handle == handle {
					return c, true
				}
			}
		}
	}
	return nil, false
}
