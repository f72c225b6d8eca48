// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package proto

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

var (
	// ErrDuplicateProtocol is returned by Register when the protocol ID
	// (or one of its Go message types) is already registered.
	ErrDuplicateProtocol = errors.New("proto: protocol already registered")

	// ErrUnknownProtocol is returned when no protocol has the given ID.
	ErrUnknownProtocol = errors.New("proto: unknown protocol")

	// ErrUnknownMessage is returned when a protocol has no message with
	// the given name.
	ErrUnknownMessage = errors.New("proto: unknown message")

	// ErrUnregisteredType is returned when a (protocol ID, message ID)
	// pair or a Go type has no registered descriptor.
	ErrUnregisteredType = errors.New("proto: unregistered message type")

	// ErrInvalidProtocol is returned by Register for malformed protocol
	// definitions.
	ErrInvalidProtocol = errors.New("proto: invalid protocol definition")
)

// Message is a pointer to a registered message struct.
type Message any

// MessageType identifies a concrete message on the wire.
type MessageType struct {
	Proto uint8
	Msg   uint8
}

func (t MessageType) String() string {
	return fmt.Sprintf("%d/%d", t.Proto, t.Msg)
}

// Descriptor describes one message of a protocol.
type Descriptor struct {
	// Name is unique within the protocol.
	Name string

	// New allocates a zero value of the message. It must return a
	// pointer to a struct, and the same Go type on every call.
	New func() Message
}

// Protocol is a named, ordered set of messages. Message IDs are
// assigned by position, so reordering Messages is a wire-breaking
// change.
type Protocol struct {
	ID       uint8
	Name     string
	Messages []Descriptor
}

type protocolEntry struct {
	name     string
	messages []Descriptor
	types    []reflect.Type
	byName   map[string]uint8
}

// snapshot is immutable once published.
type snapshot struct {
	protocols map[uint8]*protocolEntry
	byGoType  map[reflect.Type]MessageType
}

// Registry holds registered protocols. The zero value is not usable;
// call NewRegistry.
type Registry struct {
	// writeMu serializes Register calls. Readers use current only.
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	registry := &Registry{}
	registry.current.Store(&snapshot{
		protocols: map[uint8]*protocolEntry{},
		byGoType:  map[reflect.Type]MessageType{},
	})
	return registry
}

// Register adds a protocol and returns its ID. It fails if the ID is
// taken, if any message name repeats, or if any message Go type is
// already registered under another identifier.
func (r *Registry) Register(protocol Protocol) (uint8, error) {
	if protocol.Name == "" {
		return 0, fmt.Errorf("%w: protocol %d has no name", ErrInvalidProtocol, protocol.ID)
	}
	if len(protocol.Messages) == 0 || len(protocol.Messages) > 256 {
		return 0, fmt.Errorf("%w: protocol %q has %d messages, want 1..256",
			ErrInvalidProtocol, protocol.Name, len(protocol.Messages))
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	old := r.current.Load()
	if existing, ok := old.protocols[protocol.ID]; ok {
		return 0, fmt.Errorf("%w: id %d is %q", ErrDuplicateProtocol, protocol.ID, existing.name)
	}

	entry := &protocolEntry{
		name:     protocol.Name,
		messages: append([]Descriptor(nil), protocol.Messages...),
		types:    make([]reflect.Type, len(protocol.Messages)),
		byName:   make(map[string]uint8, len(protocol.Messages)),
	}
	newTypes := make(map[reflect.Type]MessageType, len(protocol.Messages))

	for index, descriptor := range protocol.Messages {
		if descriptor.Name == "" || descriptor.New == nil {
			return 0, fmt.Errorf("%w: %s message %d needs a name and constructor",
				ErrInvalidProtocol, protocol.Name, index)
		}
		if _, dup := entry.byName[descriptor.Name]; dup {
			return 0, fmt.Errorf("%w: %s.%s declared twice", ErrInvalidProtocol, protocol.Name, descriptor.Name)
		}
		goType := reflect.TypeOf(descriptor.New())
		if goType == nil || goType.Kind() != reflect.Pointer || goType.Elem().Kind() != reflect.Struct {
			return 0, fmt.Errorf("%w: %s.%s constructor must return a struct pointer, got %v",
				ErrInvalidProtocol, protocol.Name, descriptor.Name, goType)
		}
		messageType := MessageType{Proto: protocol.ID, Msg: uint8(index)}
		if previous, taken := old.byGoType[goType]; taken {
			return 0, fmt.Errorf("%w: %v already registered as %v", ErrDuplicateProtocol, goType, previous)
		}
		if _, taken := newTypes[goType]; taken {
			return 0, fmt.Errorf("%w: %v appears twice in %s", ErrInvalidProtocol, goType, protocol.Name)
		}
		entry.byName[descriptor.Name] = uint8(index)
		entry.types[index] = goType
		newTypes[goType] = messageType
	}

	next := &snapshot{
		protocols: make(map[uint8]*protocolEntry, len(old.protocols)+1),
		byGoType:  make(map[reflect.Type]MessageType, len(old.byGoType)+len(newTypes)),
	}
	for id, existing := range old.protocols {
		next.protocols[id] = existing
	}
	next.protocols[protocol.ID] = entry
	for goType, messageType := range old.byGoType {
		next.byGoType[goType] = messageType
	}
	for goType, messageType := range newTypes {
		next.byGoType[goType] = messageType
	}
	r.current.Store(next)

	return protocol.ID, nil
}

// Lookup returns the message ID of name within the protocol protoID.
func (r *Registry) Lookup(protoID uint8, name string) (uint8, error) {
	entry, ok := r.current.Load().protocols[protoID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownProtocol, protoID)
	}
	msgID, ok := entry.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s has no %q", ErrUnknownMessage, entry.name, name)
	}
	return msgID, nil
}

// TypeOf returns the MessageType registered for the dynamic type of
// message.
func (r *Registry) TypeOf(message Message) (MessageType, error) {
	goType := reflect.TypeOf(message)
	messageType, ok := r.current.Load().byGoType[goType]
	if !ok {
		return MessageType{}, fmt.Errorf("%w: %v", ErrUnregisteredType, goType)
	}
	return messageType, nil
}

// New allocates a zero message of the given type.
func (r *Registry) New(messageType MessageType) (Message, error) {
	descriptor, err := r.descriptor(messageType)
	if err != nil {
		return nil, err
	}
	return descriptor.New(), nil
}

// Name returns "protocol.Message" for registered types and the numeric
// form otherwise. Intended for logs.
func (r *Registry) Name(messageType MessageType) string {
	entry, ok := r.current.Load().protocols[messageType.Proto]
	if !ok || int(messageType.Msg) >= len(entry.messages) {
		return "unregistered(" + messageType.String() + ")"
	}
	return entry.name + "." + entry.messages[messageType.Msg].Name
}

// ProtocolName returns the name registered for protoID.
func (r *Registry) ProtocolName(protoID uint8) (string, bool) {
	entry, ok := r.current.Load().protocols[protoID]
	if !ok {
		return "", false
	}
	return entry.name, true
}

// Types returns every registered MessageType, ordered by protocol
// then message ID.
func (r *Registry) Types() []MessageType {
	current := r.current.Load()
	var types []MessageType
	for protoID := 0; protoID < 256; protoID++ {
		entry, ok := current.protocols[uint8(protoID)]
		if !ok {
			continue
		}
		for msgID := range entry.messages {
			types = append(types, MessageType{Proto: uint8(protoID), Msg: uint8(msgID)})
		}
	}
	return types
}

func (r *Registry) descriptor(messageType MessageType) (Descriptor, error) {
	entry, ok := r.current.Load().protocols[messageType.Proto]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %v: %w", ErrUnregisteredType, messageType, ErrUnknownProtocol)
	}
	if int(messageType.Msg) >= len(entry.messages) {
		return Descriptor{}, fmt.Errorf("%w: %v: %w", ErrUnregisteredType, messageType, ErrUnknownMessage)
	}
	return entry.messages[messageType.Msg], nil
}

func (r *Registry) goType(messageType MessageType) reflect.Type {
	entry, ok := r.current.Load().protocols[messageType.Proto]
	if !ok || int(messageType.Msg) >= len(entry.types) {
		return nil
	}
	return entry.types[messageType.Msg]
}
