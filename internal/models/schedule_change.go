package models

import "time"

// ChangeKind is the operator-level operation applied to a slot.
type ChangeKind string

const (
	ChangeKindCreate ChangeKind = "create"
	ChangeKindUpdate ChangeKind = "update"
	ChangeKindDelete ChangeKind = "delete"
)

// ActionType is the semantic classification of a schedule change.
type ActionType string

const (
	ActionSimpleSlotCreate              ActionType = "simple_slot_create"
	ActionSimpleSlotUpdate              ActionType = "simple_slot_update"
	ActionSimpleSlotDelete              ActionType = "simple_slot_delete"
	ActionDeleteTicketAndSlotCreateNew  ActionType = "delete_ticket_and_slot_create_new"
	ActionDeleteSlotCreateTicketAndSlot ActionType = "delete_slot_create_ticket_and_slot"
	ActionDeleteTicketAndSlotCreateSlot ActionType = "delete_ticket_and_slot_create_slot"
)

// ChangeAnalysis describes the side effects implied by a change.
type ChangeAnalysis struct {
	ActionType           ActionType `json:"actionType"`
	Description          string     `json:"description"`
	RequiresTicketDelete bool       `json:"requiresTicketDelete"`
	RequiresTicketCreate bool       `json:"requiresTicketCreate"`
	RequiresSlotDelete   bool       `json:"requiresSlotDelete"`
	RequiresSlotCreate   bool       `json:"requiresSlotCreate"`
	IsRecurrenceBreak    bool       `json:"isRecurrenceBreak"`
}

// PendingChange is a recorded, not yet persisted, operator intent.
type PendingChange struct {
	ID         string         `json:"id"`
	Kind       ChangeKind     `json:"kind"`
	Slot       Slot           `json:"slot"`
	Previous   *Slot          `json:"previous,omitempty"`
	Analysis   ChangeAnalysis `json:"analysis"`
	RecordedAt time.Time      `json:"recordedAt"`
}

// LedgerSummary aggregates pending changes for display.
type LedgerSummary struct {
	Total            int `json:"total"`
	Creates          int `json:"creates"`
	Updates          int `json:"updates"`
	Deletes          int `json:"deletes"`
	TicketClassCount int `json:"ticketClassCount"`
	DrivingTestCount int `json:"drivingTestCount"`
}
