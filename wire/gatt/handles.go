package gatt

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Well-known GATT UUIDs (16-bit, little-endian as they appear on air)
var (
	UUIDPrimaryService             = UUID16(0x2800)
	UUIDSecondaryService           = UUID16(0x2801)
	UUIDCharacteristic             = UUID16(0x2803)
	UUIDClientCharacteristicConfig = UUID16(0x2902) // CCCD
)

// CCCDUUID is the Client Characteristic Configuration Descriptor in its
// 128-bit Bluetooth base form.
var CCCDUUID = uuid.MustParse("00002902-0000-1000-8000-00805f9b34fb")

// Property is the characteristic properties bitmask
type Property uint8

const (
	PropBroadcast            Property = 0x01
	PropRead                 Property = 0x02
	PropWriteWithoutResponse Property = 0x04
	PropWrite                Property = 0x08
	PropNotify               Property = 0x10
	PropIndicate             Property = 0x20
)

// Has reports whether all bits of p2 are set
func (p Property) Has(p2 Property) bool {
	return p&p2 == p2
}

// Attribute permissions (server-side only)
const (
	PermReadable = 0x01
	PermWritable = 0x02
)

// Attribute represents a single GATT attribute with a handle
type Attribute struct {
	Handle      uint16 // ATT handle (1-based, 0x0000 is reserved)
	Type        []byte // UUID (2 or 16 bytes, little-endian)
	Value       []byte
	Permissions uint8
}

// AttributeDatabase is a handle-addressed attribute table
type AttributeDatabase struct {
	mu         sync.RWMutex
	attributes map[uint16]*Attribute
	nextHandle uint16
}

// NewAttributeDatabase creates an empty attribute database
func NewAttributeDatabase() *AttributeDatabase {
	return &AttributeDatabase{
		attributes: make(map[uint16]*Attribute),
		nextHandle: 0x0001,
	}
}

// AddAttribute adds an attribute and assigns it the next handle
func (db *AttributeDatabase) AddAttribute(attrType []byte, value []byte, permissions uint8) uint16 {
	db.mu.Lock()
	defer db.mu.Unlock()

	handle := db.nextHandle
	db.nextHandle++

	db.attributes[handle] = &Attribute{
		Handle:      handle,
		Type:        append([]byte{}, attrType...),
		Value:       append([]byte{}, value...),
		Permissions: permissions,
	}
	return handle
}

// GetAttribute returns a copy of the attribute at handle
func (db *AttributeDatabase) GetAttribute(handle uint16) (*Attribute, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	attr, ok := db.attributes[handle]
	if !ok {
		return nil, fmt.Errorf("gatt: invalid handle 0x%04X: %w", handle, ErrInvalidHandle)
	}

	return &Attribute{
		Handle:      attr.Handle,
		Type:        append([]byte{}, attr.Type...),
		Value:       append([]byte{}, attr.Value...),
		Permissions: attr.Permissions,
	}, nil
}

// SetAttributeValue updates an attribute's value
func (db *AttributeDatabase) SetAttributeValue(handle uint16, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	attr, ok := db.attributes[handle]
	if !ok {
		return fmt.Errorf("gatt: invalid handle 0x%04X: %w", handle, ErrInvalidHandle)
	}
	if attr.Permissions&PermWritable == 0 {
		return fmt.Errorf("gatt: handle 0x%04X: %w", handle, ErrWriteNotPermitted)
	}

	attr.Value = append([]byte{}, value...)
	return nil
}

// FindAttributesByType returns all handles with matching type UUID in a range
func (db *AttributeDatabase) FindAttributesByType(startHandle, endHandle uint16, attrType []byte) []uint16 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var handles []uint16
	for h := startHandle; h <= endHandle && h < db.nextHandle; h++ {
		if attr, ok := db.attributes[h]; ok && bytes.Equal(attr.Type, attrType) {
			handles = append(handles, h)
		}
	}
	return handles
}

// LastHandle returns the highest handle allocated so far (0 when empty)
func (db *AttributeDatabase) LastHandle() uint16 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.nextHandle - 1
}

// Count returns the number of attributes in the database
func (db *AttributeDatabase) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.attributes)
}

// UUID16 creates a 16-bit UUID in little-endian format
func UUID16(val uint16) []byte {
	return []byte{byte(val), byte(val >> 8)}
}

// UUIDBytes returns the on-air (little-endian) form of a 128-bit UUID
func UUIDBytes(u uuid.UUID) []byte {
	b := make([]byte, len(u))
	for i := range u {
		b[len(u)-1-i] = u[i]
	}
	return b
}
