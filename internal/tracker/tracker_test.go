package tracker

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func user(id, name string) map[string]any {
	return map[string]any{"__typename": "User", "id": id, "name": name}
}

func mustStart(t *testing.T, tr *Tracker) string {
	t.Helper()
	id, err := tr.StartTransaction()
	require.NoError(t, err)
	return id
}

func codeOf(t *testing.T, err error) ErrorCode {
	t.Helper()
	var te *Error
	require.ErrorAs(t, err, &te)
	return te.Code
}

func TestLifecycle_StartEnd(t *testing.T) {
	tr := New()
	require.False(t, tr.Active())

	id := mustStart(t, tr)
	require.True(t, tr.Active())
	require.True(t, strings.HasPrefix(id, "tx-"), "transaction id %q", id)
	require.Equal(t, id, tr.TransactionID())

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.False(t, tr.Active())
	require.Empty(t, tr.TransactionID())
	require.Empty(t, data.Updated)
	require.Empty(t, data.Deleted)
	require.Equal(t, id, data.Metadata.TransactionID)
}

func TestLifecycle_DoubleStart(t *testing.T) {
	tr := New()
	mustStart(t, tr)
	_, err := tr.StartTransaction()
	require.Equal(t, CodeTransactionInProgress, codeOf(t, err))
}

func TestLifecycle_TrackWithoutTransaction(t *testing.T) {
	tr := New()
	require.Equal(t, CodeNoTransaction, codeOf(t, tr.TrackCreate(user("u1", "John"))))
	require.Equal(t, CodeNoTransaction, codeOf(t, tr.TrackUpdate(user("u1", "John"))))
	require.Equal(t, CodeNoTransaction, codeOf(t, tr.TrackDelete("User", "u1")))
	_, err := tr.EndTransaction()
	require.Equal(t, CodeNoTransaction, codeOf(t, err))
	_, err = tr.GetCascadeData()
	require.Equal(t, CodeNoTransaction, codeOf(t, err))
}

func TestLifecycle_ReusableAfterEnd(t *testing.T) {
	tr := New()
	id1 := mustStart(t, tr)
	require.NoError(t, tr.TrackCreate(user("u1", "John")))
	_, err := tr.EndTransaction()
	require.NoError(t, err)

	id2 := mustStart(t, tr)
	require.NotEqual(t, id1, id2)
	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Empty(t, data.Updated, "state must not leak across transactions")
}

func TestLifecycle_Abort(t *testing.T) {
	tr := New()
	mustStart(t, tr)
	require.NoError(t, tr.TrackCreate(user("u1", "John")))
	tr.Abort()
	require.False(t, tr.Active())
	tr.Abort() // idle abort is a no-op

	mustStart(t, tr)
	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Empty(t, data.Updated)
}

func TestTrack_MissingID(t *testing.T) {
	tr := New()
	mustStart(t, tr)
	err := tr.TrackCreate(map[string]any{"__typename": "User", "name": "no id"})
	require.Equal(t, CodeMissingID, codeOf(t, err))
	require.Equal(t, CodeMissingID, codeOf(t, tr.TrackDelete("User", "")))
}

func TestTrack_Idempotent_FirstWriteWins(t *testing.T) {
	tr := New()
	mustStart(t, tr)
	require.NoError(t, tr.TrackCreate(user("u1", "John")))
	require.NoError(t, tr.TrackUpdate(user("u1", "Johnny")))
	require.NoError(t, tr.TrackUpdate(user("u1", "Jon")))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Len(t, data.Updated, 1)
	got := data.Updated[0]
	require.Equal(t, OpCreated, got.Operation, "first operation stands")
	require.Equal(t, "John", got.Entity["name"], "first entity snapshot stands")
	require.Equal(t, 1, data.Metadata.AffectedCount)
}

func TestTrack_OrderIndependentKeys(t *testing.T) {
	run := func(track func(tr *Tracker)) map[string]Operation {
		tr := New()
		mustStart(t, tr)
		track(tr)
		data, err := tr.EndTransaction()
		require.NoError(t, err)
		out := make(map[string]Operation, len(data.Updated))
		for _, u := range data.Updated {
			out[u.Typename+":"+u.ID] = u.Operation
		}
		return out
	}

	forward := run(func(tr *Tracker) {
		require.NoError(t, tr.TrackCreate(user("u1", "a")))
		require.NoError(t, tr.TrackUpdate(user("u2", "b")))
	})
	backward := run(func(tr *Tracker) {
		require.NoError(t, tr.TrackUpdate(user("u2", "b")))
		require.NoError(t, tr.TrackCreate(user("u1", "a")))
	})
	if diff := cmp.Diff(forward, backward); diff != "" {
		t.Fatalf("tracked set differs by order (-forward +backward):\n%s", diff)
	}
}

func TestTrack_DeleteWins(t *testing.T) {
	tr := New()
	mustStart(t, tr)
	require.NoError(t, tr.TrackUpdate(user("u1", "John")))
	require.NoError(t, tr.TrackDelete("User", "u1"))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Empty(t, data.Updated, "deleted key must not appear in updated")
	require.Len(t, data.Deleted, 1)
	require.Equal(t, "User", data.Deleted[0].Typename)
	require.Equal(t, "u1", data.Deleted[0].ID)
	require.False(t, data.Deleted[0].DeletedAt.IsZero())
	require.Equal(t, 1, data.Metadata.AffectedCount)
}

func TestTrack_DeleteThenUpdateStillDeleted(t *testing.T) {
	tr := New()
	mustStart(t, tr)
	require.NoError(t, tr.TrackDelete("User", "u1"))
	require.NoError(t, tr.TrackUpdate(user("u1", "John")))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Empty(t, data.Updated)
	require.Len(t, data.Deleted, 1)
}

func TestTrack_DeleteDuplicate(t *testing.T) {
	tr := New()
	mustStart(t, tr)
	require.NoError(t, tr.TrackDelete("User", "u1"))
	require.NoError(t, tr.TrackDelete("User", "u1"))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Len(t, data.Deleted, 1)
}

func TestTrack_ExcludedTypes(t *testing.T) {
	tr := New(WithExcludeTypes("AuditLog"))
	mustStart(t, tr)
	require.NoError(t, tr.TrackCreate(map[string]any{"__typename": "AuditLog", "id": "l1"}))
	require.NoError(t, tr.TrackCreate(user("u1", "John")))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Len(t, data.Updated, 1)
	require.Equal(t, "User", data.Updated[0].Typename)
}

func TestGetCascadeData_KeepsTransactionOpen(t *testing.T) {
	tr := New()
	mustStart(t, tr)
	require.NoError(t, tr.TrackCreate(user("u1", "John")))

	data, err := tr.GetCascadeData()
	require.NoError(t, err)
	require.Len(t, data.Updated, 1)
	require.True(t, tr.Active())

	require.NoError(t, tr.TrackCreate(user("u2", "Jane")))
	data, err = tr.EndTransaction()
	require.NoError(t, err)
	require.Len(t, data.Updated, 2)
}

// The documented user-update scenario: updating a user cascades to the
// entities embedded on it, nested entities collapse to stubs.
func TestScenario_UserUpdateCascade(t *testing.T) {
	profile := map[string]any{"__typename": "Profile", "id": "pr1", "bio": "hello"}
	john := map[string]any{
		"__typename": "User",
		"id":         "u1",
		"name":       "John",
		"profile":    profile,
	}

	tr := New()
	mustStart(t, tr)
	require.NoError(t, tr.TrackUpdate(john))

	data, err := tr.EndTransaction()
	require.NoError(t, err)
	require.Len(t, data.Updated, 2)

	require.Equal(t, "User", data.Updated[0].Typename)
	require.Equal(t, OpUpdated, data.Updated[0].Operation)
	wantStub := map[string]any{"typename": "Profile", "id": "pr1"}
	if diff := cmp.Diff(wantStub, data.Updated[0].Entity["profile"]); diff != "" {
		t.Fatalf("nested profile mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, "Profile", data.Updated[1].Typename)
	require.Equal(t, OpUpdated, data.Updated[1].Operation)
	require.Equal(t, "hello", data.Updated[1].Entity["bio"])
	// the profile's own traversal step is the deepest point entered
	require.Equal(t, 2, data.Metadata.Depth)
}

func TestCascadeData_JSONShape(t *testing.T) {
	tr := New()
	mustStart(t, tr)
	require.NoError(t, tr.TrackCreate(user("u1", "John")))
	require.NoError(t, tr.TrackDelete("Post", "p1"))

	data, err := tr.EndTransaction()
	require.NoError(t, err)

	raw, err := json.Marshal(data)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	updated, ok := decoded["updated"].([]any)
	require.True(t, ok)
	require.Len(t, updated, 1)
	first := updated[0].(map[string]any)
	require.Equal(t, "User", first["typename"])
	require.Equal(t, "CREATED", first["operation"])
	deleted := decoded["deleted"].([]any)
	require.Len(t, deleted, 1)
	meta := decoded["metadata"].(map[string]any)
	require.Equal(t, float64(2), meta["affectedCount"])
	require.NotEmpty(t, meta["transactionId"])
}

func TestError_Message(t *testing.T) {
	err := protocolErr(CodeNoTransaction, "nope: %d", 7)
	require.Equal(t, "NO_TRANSACTION: nope: 7", err.Error())
	var target *Error
	require.True(t, errors.As(error(err), &target))
}
