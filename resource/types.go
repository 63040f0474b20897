package resource

// ID names a shared object in the registry.
// ID 0 is reserved and always invalid.
type ID uint32

// Kind is the variant of the object a capability refers to.
type Kind uint8

const (
	KindNull Kind = iota
	KindRecvBuffer
	KindSendBuffer
	KindBox
	KindHandle
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindRecvBuffer:
		return "recvbuf"
	case KindSendBuffer:
		return "sendbuf"
	case KindBox:
		return "box"
	case KindHandle:
		return "handle"
	default:
		return "unknown"
	}
}

// EventType identifies a lifecycle transition of a shared object.
type EventType uint8

const (
	EventCreated EventType = iota
	EventAcquired
	EventReleased
	EventRevoked
	EventDestroyed
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventAcquired:
		return "acquired"
	case EventReleased:
		return "released"
	case EventRevoked:
		return "revoked"
	case EventDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Event represents a resource lifecycle event.
type Event struct {
	Value any
	ID    ID
	Owner uint32
	Refs  uint32
	Kind  Kind
	Type  EventType
}

// Observer receives notifications about resource lifecycle events.
// Observers run after the registry lock is released and must not block.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Object is a point-in-time view of a registry entry.
type Object struct {
	Value   any
	Owner   uint32
	Refs    uint32
	Kind    Kind
	Revoked bool
}

// Stats summarizes the registry contents.
type Stats struct {
	Objects int
	Refs    uint64
}

// Dropper is optionally implemented by object values that need cleanup
// once the last reference is released.
type Dropper interface {
	Drop()
}
