package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/driving-school-api/internal/models"
)

func TestKeyOfCurrentPriorities(t *testing.T) {
	cases := []struct {
		name     string
		slot     models.Slot
		expected string
	}{
		{
			name:     "edit marker wins",
			slot:     models.Slot{SlotID: "s9", OriginalSlotID: "s1", TicketClassID: "t1", ClassType: models.ClassTypeBdi, Date: "2024-02-01", Start: "10:00", End: "12:00"},
			expected: "edited:s1:2024-02-01:10:00:12:00",
		},
		{
			name:     "persisted ticket class",
			slot:     models.Slot{SlotID: "s1", TicketClassID: "t1", ClassType: models.ClassTypeBdi},
			expected: "ticket:t1",
		},
		{
			name:     "generic slot id",
			slot:     models.Slot{SlotID: "s1", ClassType: models.ClassTypeDrivingTest},
			expected: "slot:s1",
		},
		{
			name:     "temporary ticket class",
			slot:     models.Slot{SlotID: "s1", TicketClassID: "temp-1", ClassType: models.ClassTypeDate},
			expected: "temp:temp-1",
		},
		{
			name:     "fallback tuple",
			slot:     models.Slot{ClassType: models.ClassTypeDrivingTest, Date: "2024-01-01", Start: "9:00", End: "10:00"},
			expected: "fallback:2024-01-01:09:00:10:00:driving test:",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, KeyOf(tc.slot, RoleCurrent))
		})
	}
}

func TestKeyOfOriginalIgnoresEditMarkers(t *testing.T) {
	slot := models.Slot{SlotID: "s1", OriginalSlotID: "s0", ClassType: models.ClassTypeDrivingTest}
	assert.Equal(t, "slot:s1", KeyOf(slot, RoleOriginal))

	ticket := models.Slot{SlotID: "s2", TicketClassID: "t1", ClassType: models.ClassTypeAdi}
	assert.Equal(t, "ticket:t1", KeyOf(ticket, RoleOriginal))

	legacy := models.Slot{TicketClassID: "temp-3", ClassType: models.ClassTypeAdi, Date: "2024-01-01", Start: "08:00", End: "09:00"}
	assert.Equal(t, "fallback:2024-01-01:08:00:09:00:A.D.I:temp-3:", KeyOf(legacy, RoleOriginal))
}

func TestKeyOfIsFormatInsensitive(t *testing.T) {
	a := models.Slot{ClassType: "driving test", Date: "2024-01-01", Start: "9:00 AM", End: "10:00"}
	b := models.Slot{ClassType: "Driving Test", Date: "2024-01-01T00:00:00Z", Start: "09:00:00", End: "10:00"}
	assert.Equal(t, KeyOf(a, RoleCurrent), KeyOf(b, RoleCurrent))
}
