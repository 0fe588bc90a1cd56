package gateway

import (
	"strings"
	"sync"
	"time"

	"PPKitchen/service/topic"
	"PPKitchen/tools/security"
)

// DeviceClass labels the kind of client behind a connection.
type DeviceClass string

const (
	DeviceWeb     DeviceClass = "web"
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceDesktop DeviceClass = "desktop"
	DeviceUnknown DeviceClass = "unknown"
)

// ParseDeviceClass maps a deviceType query value onto a known class.
func ParseDeviceClass(s string) (DeviceClass, bool) {
	switch d := DeviceClass(strings.ToLower(strings.TrimSpace(s))); d {
	case DeviceWeb, DeviceMobile, DeviceTablet, DeviceDesktop:
		return d, true
	}
	return DeviceUnknown, false
}

// Transport is the part of *websocket.Conn the gateway writes through.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection is one admitted client socket.
//
// Identity fields never change after construction. subscriptions, lastLiveness
// and pendingHeartbeat are owned by the Registry and only touched under its lock.
type Connection struct {
	id          string
	principal   security.Principal
	deviceClass DeviceClass
	deviceID    string
	variant     string
	remoteAddr  string
	connectedAt time.Time

	transport Transport
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	// presenceMu orders the presence writes of one connection.
	presenceMu sync.Mutex

	subscriptions    map[topic.Topic]struct{}
	lastLiveness     time.Time
	pendingHeartbeat bool
}

// ConnectionInfo carries the immutable attributes of a new connection.
type ConnectionInfo struct {
	ID          string
	Principal   security.Principal
	DeviceClass DeviceClass
	DeviceID    string
	Variant     string
	RemoteAddr  string
	ConnectedAt time.Time
}

// NewConnection builds an unregistered connection with an outbound queue of
// queueSize frames.
func NewConnection(info ConnectionInfo, t Transport, queueSize int) *Connection {
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	if info.DeviceClass == "" {
		info.DeviceClass = DeviceUnknown
	}
	return &Connection{
		id:            info.ID,
		principal:     info.Principal,
		deviceClass:   info.DeviceClass,
		deviceID:      info.DeviceID,
		variant:       info.Variant,
		remoteAddr:    info.RemoteAddr,
		connectedAt:   info.ConnectedAt,
		transport:     t,
		send:          make(chan []byte, queueSize),
		done:          make(chan struct{}),
		subscriptions: make(map[topic.Topic]struct{}),
		lastLiveness:  info.ConnectedAt,
	}
}

func (c *Connection) ID() string                    { return c.id }
func (c *Connection) Principal() security.Principal { return c.principal }
func (c *Connection) UserID() string                { return c.principal.UserID }
func (c *Connection) DeviceClass() DeviceClass      { return c.deviceClass }
func (c *Connection) DeviceID() string              { return c.deviceID }
func (c *Connection) Variant() string               { return c.variant }
func (c *Connection) RemoteAddr() string            { return c.remoteAddr }
func (c *Connection) ConnectedAt() time.Time        { return c.connectedAt }

func (c *Connection) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue hands frame to the writer without blocking. It reports false when
// the queue is full or the connection is closing; the frame is then dropped.
func (c *Connection) enqueue(frame []byte) bool {
	if c.closing() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// markClosed closes done once. It reports whether this call did it.
func (c *Connection) markClosed() bool {
	first := false
	c.closeOnce.Do(func() {
		close(c.done)
		first = true
	})
	return first
}

// State is a point-in-time copy of a connection's mutable state.
type State struct {
	Subscriptions    []topic.Topic
	LastLiveness     time.Time
	PendingHeartbeat bool
}
