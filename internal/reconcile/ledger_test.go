package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
)

func newTestSession(t *testing.T, original []models.Slot, opts ...SessionOption) *Session {
	t.Helper()
	seq := 0
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	base := []SessionOption{
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
		WithClock(func() time.Time { return now }),
	}
	session := NewSession("sess-1", "instructor-1", append(base, opts...)...)
	session.Begin(original)
	return session
}

func TestSessionRecordCreateAssignsIdentity(t *testing.T) {
	session := newTestSession(t, nil)

	created := session.RecordCreate(models.Slot{ClassType: models.ClassTypeBdi, Date: "2024-01-05", Start: "09:00", End: "11:00"})

	assert.Equal(t, "id-1", created.SlotID)
	assert.Equal(t, "temp-id-2", created.TicketClassID)
	assert.Equal(t, models.SlotStatusAvailable, created.Status)
	assert.Equal(t, models.RecurrenceNone, created.Recurrence)
	assert.Equal(t, []models.Slot{created}, session.Current())
	assert.Equal(t, 1, session.Count())

	pending := session.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "id-1", pending[0].ID)
	assert.Equal(t, models.ActionSimpleSlotCreate, pending[0].Analysis.ActionType)
	assert.True(t, pending[0].Analysis.RequiresTicketCreate)

	diff := session.Diff()
	assert.Equal(t, []models.Slot{created}, diff.ToCreate)
	assert.True(t, session.HasUnsavedChanges())
}

func TestSessionRecordCreateBatchDeduplicates(t *testing.T) {
	existing := drivingTestSlot("d1", "2024-02-01", "10:00", "12:00")
	session := newTestSession(t, []models.Slot{existing})

	created := session.RecordCreateBatch([]models.Slot{
		{ClassType: models.ClassTypeDrivingTest, Date: "2024-02-01", Start: "10:00 AM", End: "12:00"},
		{ClassType: models.ClassTypeDrivingTest, Date: "2024-02-08", Start: "10:00", End: "12:00"},
		{ClassType: "Driving Test", Date: "2024-02-08", Start: "10:00:00", End: "12:00"},
	})

	require.Len(t, created, 1)
	assert.Equal(t, "2024-02-08", created[0].Date)
	assert.Len(t, session.Current(), 2)
	assert.Equal(t, 1, session.Count())
}

func TestSessionRecordUpdateKeepsLiveScheduleUntilApplied(t *testing.T) {
	original := drivingTestSlot("d1", "2024-02-01", "10:00", "12:00")
	session := newTestSession(t, []models.Slot{original})
	start := "11:00"

	updated, err := session.RecordUpdate(original, models.SlotPatch{Start: &start})
	require.NoError(t, err)

	assert.Equal(t, "id-1", updated.SlotID)
	assert.Equal(t, "d1", updated.OriginalSlotID)
	assert.Equal(t, "11:00", updated.Start)
	assert.Equal(t, []models.Slot{original}, session.Current())

	pending := session.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "d1", pending[0].ID)
	assert.Equal(t, models.ActionSimpleSlotUpdate, pending[0].Analysis.ActionType)
	require.NotNil(t, pending[0].Previous)
	assert.Equal(t, original, *pending[0].Previous)

	require.True(t, session.ApplyUpdate(original, updated))
	diff := session.Diff()
	require.Len(t, diff.ToUpdate, 1)
	assert.Equal(t, original, diff.ToUpdate[0].Old)
	assert.Equal(t, updated, diff.ToUpdate[0].New)
}

func TestSessionRecordUpdateTwiceKeepsPersistedLineage(t *testing.T) {
	original := drivingTestSlot("d1", "2024-02-01", "10:00", "12:00")
	session := newTestSession(t, []models.Slot{original})
	start, end := "11:00", "13:00"

	first, err := session.RecordUpdate(original, models.SlotPatch{Start: &start})
	require.NoError(t, err)
	require.True(t, session.ApplyUpdate(original, first))
	second, err := session.RecordUpdate(first, models.SlotPatch{End: &end})
	require.NoError(t, err)
	require.True(t, session.ApplyUpdate(first, second))

	assert.Equal(t, "id-2", second.SlotID)
	assert.Equal(t, "d1", second.OriginalSlotID)
	assert.Equal(t, "11:00", second.Start)
	assert.Equal(t, "13:00", second.End)

	pending := session.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "d1", pending[0].ID)
	require.NotNil(t, pending[0].Previous)
	assert.Equal(t, original, *pending[0].Previous)
	assert.Equal(t, second, pending[0].Slot)

	report := session.Explain()
	require.Len(t, report.ToUpdate, 1)
	assert.Equal(t, original, report.ToUpdate[0].Old)
	assert.Equal(t, second, report.ToUpdate[0].New)
	assert.Empty(t, report.ToCreate)
	assert.Empty(t, report.ToDelete)
	assert.Empty(t, report.ToKeep)
	assert.Empty(t, report.Verdicts)
}

func TestSessionRecordUpdateTwiceAcrossCategoriesKeepsTicketLineage(t *testing.T) {
	original := bdiSlot()
	session := newTestSession(t, []models.Slot{original})
	classType := models.ClassTypeDrivingTest
	end := "12:00"

	first, err := session.RecordUpdate(original, models.SlotPatch{ClassType: &classType})
	require.NoError(t, err)
	session.ApplyUpdate(original, first)
	second, err := session.RecordUpdate(first, models.SlotPatch{End: &end})
	require.NoError(t, err)
	session.ApplyUpdate(first, second)

	assert.Equal(t, "s1", second.OriginalSlotID)
	assert.Equal(t, "t1", second.OriginalTicketClassID)
	assert.Empty(t, second.TicketClassID)
	require.Len(t, session.Pending(), 1)
	assert.Equal(t, models.ActionDeleteTicketAndSlotCreateSlot, session.Pending()[0].Analysis.ActionType)

	diff := session.Diff()
	assert.Equal(t, []models.Slot{original}, diff.ToDelete)
	require.Len(t, diff.ToCreate, 1)
	assert.Equal(t, second.SlotID, diff.ToCreate[0].SlotID)
	assert.Empty(t, diff.ToKeep)
}

func TestSessionRecordUpdateCategoryChange(t *testing.T) {
	original := drivingTestSlot("d1", "2024-02-01", "10:00", "12:00")
	original.CreatedAsRecurrence = true
	original.OriginalRecurrenceGroup = "grp-1"
	original.Recurrence = models.RecurrenceWeekly
	session := newTestSession(t, []models.Slot{original})
	classType := models.ClassTypeBdi

	updated, err := session.RecordUpdate(original, models.SlotPatch{ClassType: &classType})
	require.NoError(t, err)

	assert.Equal(t, "temp-id-2", updated.TicketClassID)
	assert.False(t, updated.CreatedAsRecurrence)
	assert.Empty(t, updated.OriginalRecurrenceGroup)
	assert.Equal(t, models.RecurrenceNone, updated.Recurrence)

	analysis := session.Pending()[0].Analysis
	assert.Equal(t, models.ActionDeleteSlotCreateTicketAndSlot, analysis.ActionType)
	assert.True(t, analysis.IsRecurrenceBreak)

	session.ApplyUpdate(original, updated)
	diff := session.Diff()
	assert.Equal(t, []models.Slot{original}, diff.ToDelete)
	assert.Equal(t, []models.Slot{updated}, diff.ToCreate)
}

func TestSessionRecordUpdateTicketToDrivingTestClearsTicket(t *testing.T) {
	original := bdiSlot()
	session := newTestSession(t, []models.Slot{original})
	classType := models.ClassTypeDrivingTest

	updated, err := session.RecordUpdate(original, models.SlotPatch{ClassType: &classType})
	require.NoError(t, err)

	assert.Empty(t, updated.TicketClassID)
	assert.Equal(t, "t1", updated.OriginalTicketClassID)
	assert.Equal(t, models.ActionDeleteTicketAndSlotCreateSlot, session.Pending()[0].Analysis.ActionType)
}

func TestSessionRecordUpdateOfUnsavedSlotStaysCreate(t *testing.T) {
	session := newTestSession(t, nil)
	created := session.RecordCreate(models.Slot{ClassType: models.ClassTypeDrivingTest, Date: "2024-02-01", Start: "10:00", End: "12:00"})
	end := "13:00"

	updated, err := session.RecordUpdate(created, models.SlotPatch{End: &end})
	require.NoError(t, err)
	session.ApplyUpdate(created, updated)

	assert.Equal(t, created.SlotID, updated.SlotID)
	assert.Empty(t, updated.OriginalSlotID)
	require.Equal(t, 1, session.Count())
	assert.Equal(t, models.ChangeKindCreate, session.Pending()[0].Kind)
	assert.Equal(t, []models.Slot{updated}, session.Diff().ToCreate)
}

func TestSessionRecordDeleteOfEditedSlotDeletesPersistedSlot(t *testing.T) {
	original := drivingTestSlot("d1", "2024-02-01", "10:00", "12:00")
	session := newTestSession(t, []models.Slot{original})
	start := "11:00"

	updated, err := session.RecordUpdate(original, models.SlotPatch{Start: &start})
	require.NoError(t, err)
	session.ApplyUpdate(original, updated)
	session.RecordDelete(updated, DeleteOptions{})

	pending := session.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "d1", pending[0].ID)
	assert.Equal(t, models.ChangeKindDelete, pending[0].Kind)
	assert.Equal(t, original, pending[0].Slot)
	assert.Empty(t, session.Current())

	diff := session.Diff()
	assert.Equal(t, []models.Slot{original}, diff.ToDelete)
	assert.Empty(t, diff.ToCreate)
}

func TestSessionRecordDeletePurgesEnrichment(t *testing.T) {
	ticket := bdiSlot()
	var purged []string
	session := newTestSession(t, []models.Slot{ticket}, WithPurgeHook(func(id string) { purged = append(purged, id) }))
	session.SetEnrichment(models.TicketClass{ID: "t1"})

	session.RecordDelete(ticket, DeleteOptions{})

	_, ok := session.Enrichment("t1")
	assert.False(t, ok)
	assert.Equal(t, []string{"t1"}, purged)
	assert.Empty(t, session.Current())

	pending := session.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, models.ActionSimpleSlotDelete, pending[0].Analysis.ActionType)
	assert.True(t, pending[0].Analysis.RequiresTicketDelete)
	assert.Equal(t, []models.Slot{ticket}, session.Diff().ToDelete)
}

func TestSessionRecordDeleteBreakingRecurrence(t *testing.T) {
	original := drivingTestSlot("d1", "2024-02-01", "10:00", "12:00")
	original.OriginalRecurrenceGroup = "grp-1"
	session := newTestSession(t, []models.Slot{original})

	session.RecordDelete(original, DeleteOptions{BreakRecurrence: true})

	change := session.Pending()[0]
	assert.True(t, change.Analysis.IsRecurrenceBreak)
	assert.Contains(t, change.Analysis.Description, "(breaking recurrence)")
	assert.Empty(t, change.Slot.OriginalRecurrenceGroup)
}

func TestSessionRecordDeleteOfUnsavedSlotCancelsCreate(t *testing.T) {
	session := newTestSession(t, nil)
	created := session.RecordCreate(models.Slot{ClassType: models.ClassTypeAdi, Date: "2024-02-01", Start: "10:00", End: "12:00"})

	session.RecordDelete(created, DeleteOptions{})

	assert.Zero(t, session.Count())
	assert.Empty(t, session.Current())
	assert.False(t, session.HasUnsavedChanges())
}

func TestSessionSummaryAndGrouping(t *testing.T) {
	ticket := bdiSlot()
	test := drivingTestSlot("d1", "2024-02-01", "10:00", "12:00")
	session := newTestSession(t, []models.Slot{ticket, test})

	session.RecordCreate(models.Slot{ClassType: models.ClassTypeDate, Date: "2024-03-01", Start: "09:00", End: "10:00"})
	session.RecordCreate(models.Slot{ClassType: models.ClassTypeDrivingTest, Date: "2024-03-02", Start: "09:00", End: "10:00"})
	status := models.SlotStatusScheduled
	_, err := session.RecordUpdate(test, models.SlotPatch{Status: &status})
	require.NoError(t, err)
	session.RecordDelete(ticket, DeleteOptions{})

	assert.Equal(t, models.LedgerSummary{
		Total:            4,
		Creates:          2,
		Updates:          1,
		Deletes:          1,
		TicketClassCount: 2,
		DrivingTestCount: 2,
	}, session.Summary())

	grouped := session.ByActionType()
	assert.Len(t, grouped[models.ActionSimpleSlotCreate], 2)
	assert.Len(t, grouped[models.ActionSimpleSlotUpdate], 1)
	assert.Len(t, grouped[models.ActionSimpleSlotDelete], 1)
}

func TestSessionRejectsUnknownChangeKind(t *testing.T) {
	session := newTestSession(t, nil)
	err := session.recordWithKey("x", "move", bdiSlot(), nil)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, session.Count())
}

func TestSessionCommitAdoptsBaseline(t *testing.T) {
	session := newTestSession(t, nil)
	created := session.RecordCreate(models.Slot{ClassType: models.ClassTypeDrivingTest, Date: "2024-02-01", Start: "10:00", End: "12:00"})

	session.Commit(nil)

	assert.Zero(t, session.Count())
	assert.Equal(t, []models.Slot{created}, session.Original())
	assert.False(t, session.HasUnsavedChanges())

	snapshot := session.Snapshot()
	assert.Equal(t, "sess-1", snapshot.ID)
	assert.Equal(t, "instructor-1", snapshot.InstructorID)
	assert.Empty(t, snapshot.Pending)
	assert.False(t, snapshot.HasUnsavedChanges)
}
