package reconcile

import (
	"strings"

	"github.com/noah-isme/driving-school-api/internal/models"
)

// Role tells the resolver which schedule snapshot a slot comes from.
type Role int

const (
	RoleOriginal Role = iota
	RoleCurrent
)

// IsTemporaryTicketClassID reports whether the id marks an unsaved ticket class.
func IsTemporaryTicketClassID(id string) bool {
	return strings.HasPrefix(id, models.TemporaryTicketClassPrefix)
}

// KeyOf derives the comparison key used to pair slots across snapshots.
//
// Current slots resolve, in order: edit marker, persisted ticket class, generic
// slot id, temporary ticket class, fallback tuple. Original slots never carry
// edit markers and resolve generic slot id, persisted ticket class, fallback.
func KeyOf(slot models.Slot, role Role) string {
	n := Normalize(slot)
	if role == RoleOriginal {
		return originalKey(n)
	}
	return currentKey(n)
}

func currentKey(n NormalizedSlot) string {
	isTicket := n.Category() == models.CategoryTicketClass
	switch {
	case n.OriginalSlotID != "":
		return joinKey("edited", n.OriginalSlotID, n.Date, n.Start, n.End)
	case n.TicketClassID != "" && !IsTemporaryTicketClassID(n.TicketClassID):
		return joinKey("ticket", n.TicketClassID)
	case !isTicket && n.SlotID != "":
		return joinKey("slot", n.SlotID)
	case isTicket && IsTemporaryTicketClassID(n.TicketClassID):
		return joinKey("temp", n.TicketClassID)
	default:
		return joinKey("fallback", n.Date, n.Start, n.End, string(n.ClassType), n.SlotID)
	}
}

func originalKey(n NormalizedSlot) string {
	switch {
	case n.Category() != models.CategoryTicketClass && n.SlotID != "":
		return joinKey("slot", n.SlotID)
	case n.TicketClassID != "" && !IsTemporaryTicketClassID(n.TicketClassID):
		return joinKey("ticket", n.TicketClassID)
	default:
		return joinKey("fallback", n.Date, n.Start, n.End, string(n.ClassType), n.TicketClassID, n.SlotID)
	}
}

func joinKey(prefix string, parts ...string) string {
	return prefix + ":" + strings.Join(parts, ":")
}
