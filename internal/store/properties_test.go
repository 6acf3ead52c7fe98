package store

import (
	"context"
	"errors"
	"testing"

	"github.com/propbook-app/propbook/internal/db"
	"github.com/propbook-app/propbook/internal/ledger"
	"github.com/propbook-app/propbook/internal/model"
)

func TestRegisterPropertyAppendsLedgerEntry(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sgt := testUser(t, database, "sgt.adams", "SGT")

	property, err := RegisterProperty(ctx, database, "M4 Rifle", "SN123", "1005-01-231-0973", "", &sgt.ID, sgt.ID)
	if err != nil {
		t.Fatalf("RegisterProperty: %v", err)
	}
	if property.Status != model.PropertyStatusActive {
		t.Errorf("expected active status, got %q", property.Status)
	}
	if property.AssignedToName != "sgt.adams" {
		t.Errorf("expected joined holder name, got %q", property.AssignedToName)
	}

	entries, err := ledger.ListByPayloadField(ctx, database, "serial_number", "SN123")
	if err != nil {
		t.Fatalf("ListByPayloadField: %v", err)
	}
	if len(entries) != 1 || entries[0].EventType != model.EventPropertyRegistered {
		t.Fatalf("expected one registration entry, got %+v", entries)
	}
}

func TestRegisterPropertyDuplicateSerial(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sgt := testUser(t, database, "sgt.adams", "SGT")
	testProperty(t, database, "M4 Rifle", "SN123", sgt.ID)

	_, err := RegisterProperty(ctx, database, "Another Rifle", "SN123", "", "", &sgt.ID, sgt.ID)
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for duplicate serial, got %v", err)
	}
}

func TestUpdatePropertyStatus(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sgt := testUser(t, database, "sgt.adams", "SGT")
	property := testProperty(t, database, "M4 Rifle", "SN123", sgt.ID)

	updated, err := UpdatePropertyStatus(ctx, database, property.ID, model.PropertyStatusDamaged, sgt.ID)
	if err != nil {
		t.Fatalf("UpdatePropertyStatus: %v", err)
	}
	if updated.Status != model.PropertyStatusDamaged {
		t.Errorf("expected damaged status, got %q", updated.Status)
	}

	entries, _ := ledger.ListByPayloadField(ctx, database, "serial_number", "SN123")
	var statusChanges int
	for _, e := range entries {
		if e.EventType == model.EventStatusChange {
			statusChanges++
		}
	}
	if statusChanges != 1 {
		t.Errorf("expected one status change entry, got %d", statusChanges)
	}

	// Same status again is a no-op with no new ledger entry.
	if _, err := UpdatePropertyStatus(ctx, database, property.ID, model.PropertyStatusDamaged, sgt.ID); err != nil {
		t.Fatalf("repeat UpdatePropertyStatus: %v", err)
	}
	after, _ := ledger.ListByPayloadField(ctx, database, "serial_number", "SN123")
	if len(after) != len(entries) {
		t.Errorf("no-op status change appended to the ledger")
	}

	_, err = UpdatePropertyStatus(ctx, database, property.ID, "vaporized", sgt.ID)
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for unknown status, got %v", err)
	}

	_, err = UpdatePropertyStatus(ctx, database, 9999, model.PropertyStatusLost, sgt.ID)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing property, got %v", err)
	}
}

func TestListPropertiesFilters(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sgt := testUser(t, database, "sgt.adams", "SGT")
	cpt := testUser(t, database, "cpt.brooks", "CPT")
	rifle := testProperty(t, database, "M4 Rifle", "SN123", sgt.ID)
	testProperty(t, database, "Radio Set", "SN456", cpt.ID)

	all, err := ListProperties(ctx, database, "", 0, "")
	if err != nil {
		t.Fatalf("ListProperties: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(all))
	}

	byHolder, _ := ListProperties(ctx, database, "", sgt.ID, "")
	if len(byHolder) != 1 || byHolder[0].SerialNumber != "SN123" {
		t.Errorf("unexpected holder filter result: %+v", byHolder)
	}

	UpdatePropertyStatus(ctx, database, rifle.ID, model.PropertyStatusLost, sgt.ID)
	lost, _ := ListProperties(ctx, database, model.PropertyStatusLost, 0, "")
	if len(lost) != 1 || lost[0].ID != rifle.ID {
		t.Errorf("unexpected status filter result: %+v", lost)
	}

	bySearch, _ := ListProperties(ctx, database, "", 0, "SN45")
	if len(bySearch) != 1 || bySearch[0].SerialNumber != "SN456" {
		t.Errorf("unexpected search result: %+v", bySearch)
	}
}

func TestDeletePropertyFreesSerial(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sgt := testUser(t, database, "sgt.adams", "SGT")
	property := testProperty(t, database, "M4 Rifle", "SN123", sgt.ID)

	if err := DeleteProperty(ctx, database, property.ID); err != nil {
		t.Fatalf("DeleteProperty: %v", err)
	}

	got, err := GetPropertyBySerial(ctx, database, "SN123")
	if err != nil {
		t.Fatalf("GetPropertyBySerial: %v", err)
	}
	if got != nil {
		t.Error("expected deleted property to be hidden from serial lookup")
	}

	// The serial can be reused after deletion (partial unique index).
	if _, err := RegisterProperty(ctx, database, "Replacement Rifle", "SN123", "", "", &sgt.ID, sgt.ID); err != nil {
		t.Errorf("expected serial reuse after delete, got %v", err)
	}
}

func TestPropertyPhoto(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	sgt := testUser(t, database, "sgt.adams", "SGT")
	property := testProperty(t, database, "M4 Rifle", "SN123", sgt.ID)

	if err := SetPropertyPhoto(ctx, database, property.ID, []byte{0xff, 0xd8, 0x01}, "image/jpeg"); err != nil {
		t.Fatalf("SetPropertyPhoto: %v", err)
	}

	data, mime, err := GetPropertyPhoto(ctx, database, property.ID)
	if err != nil {
		t.Fatalf("GetPropertyPhoto: %v", err)
	}
	if mime != "image/jpeg" || len(data) != 3 {
		t.Errorf("unexpected photo: %d bytes, mime %q", len(data), mime)
	}

	_, _, err = GetPropertyPhoto(ctx, database, 9999)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
