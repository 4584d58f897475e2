package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/apperr"
	"github.com/bigkaa/goartstore/cloud-drive/internal/domain/model"
)

func uploadEventJSON(t *testing.T, ev model.UploadEvent) []byte {
	t.Helper()
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func sampleEvent() model.UploadEvent {
	id := uuid.New()
	return model.UploadEvent{
		FileID:       id,
		UserID:       uuid.New(),
		FileName:     id.String(),
		OriginalName: "notes.txt",
		StoragePath:  "/data/" + id.String(),
		FileSize:     11,
		ContentType:  "text/plain",
		UploadedAt:   time.Now().UTC(),
	}
}

func TestEventHandler_ReplayYieldsOneRecord(t *testing.T) {
	f := newGuardFixture()
	h := NewEventHandler(f.guard, testLogger())
	ev := sampleEvent()
	body := uploadEventJSON(t, ev)

	for i := 0; i < 3; i++ {
		if err := h.Handle(context.Background(), body); err != nil {
			t.Fatalf("доставка %d: ошибка %v", i, err)
		}
	}
	if n := f.repo.count(); n != 1 {
		t.Fatalf("записей = %d, ожидалась 1", n)
	}

	got, err := f.guard.GetMetadata(context.Background(), ev.FileID, ev.UserID)
	if err != nil {
		t.Fatalf("GetMetadata ошибка: %v", err)
	}
	if got.Size != ev.FileSize || got.OriginalName != ev.OriginalName {
		t.Errorf("запись = %+v, не совпадает с событием", got)
	}
}

func TestEventHandler_WireFormat(t *testing.T) {
	f := newGuardFixture()
	h := NewEventHandler(f.guard, testLogger())

	fileID, userID := uuid.New(), uuid.New()
	body := []byte(`{"fileId":"` + fileID.String() + `","userId":"` + userID.String() + `",` +
		`"fileName":"` + fileID.String() + `","originalName":"a.pdf","storagePath":"/data/x",` +
		`"fileSize":42,"contentType":"application/pdf","uploadedAt":"2026-01-02T03:04:05Z"}`)

	if err := h.Handle(context.Background(), body); err != nil {
		t.Fatalf("Handle ошибка: %v", err)
	}
	rec, err := f.repo.Get(context.Background(), fileID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.UserID != userID || rec.Size != 42 || rec.ContentType != "application/pdf" {
		t.Errorf("запись = %+v", rec)
	}
	if rec.UploadedAt.Year() != 2026 {
		t.Errorf("UploadedAt = %v", rec.UploadedAt)
	}
}

func TestEventHandler_RejectsPoisonMessages(t *testing.T) {
	f := newGuardFixture()
	h := NewEventHandler(f.guard, testLogger())

	noUser := sampleEvent()
	noUser.UserID = uuid.Nil
	noName := sampleEvent()
	noName.FileName = ""

	cases := map[string][]byte{
		"не JSON":       []byte("{broken"),
		"без userId":    uploadEventJSON(t, noUser),
		"без fileName":  uploadEventJSON(t, noName),
		"неверный uuid": []byte(`{"fileId":"nope","userId":"nope"}`),
	}
	for name, body := range cases {
		err := h.Handle(context.Background(), body)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: ошибка = %v, ожидалась Validation", name, err)
		}
	}
	if n := f.repo.count(); n != 0 {
		t.Errorf("записей = %d, ожидалось 0", n)
	}
}

func TestEventHandler_ConflictingOwnerFails(t *testing.T) {
	f := newGuardFixture()
	h := NewEventHandler(f.guard, testLogger())
	ev := sampleEvent()

	if err := h.Handle(context.Background(), uploadEventJSON(t, ev)); err != nil {
		t.Fatal(err)
	}
	ev.UserID = uuid.New()
	err := h.Handle(context.Background(), uploadEventJSON(t, ev))
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("ошибка = %v, ожидался Conflict", err)
	}
}
