package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "ops")
	return store, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func testSession(sessionID, userID string) *Session {
	now := time.Now()
	return &Session{
		SessionID:  sessionID,
		UserID:     userID,
		TenantID:   "t-1",
		CreatedAt:  now.Unix(),
		LastUsedAt: now.Unix(),
		ExpiresAt:  now.Add(time.Hour).Unix(),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sess := testSession("sid-1", "u-1")
	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.UserID != sess.UserID || decoded.TenantID != sess.TenantID {
		t.Fatalf("identity mismatch: %+v", decoded)
	}
	if decoded.CreatedAt != sess.CreatedAt || decoded.LastUsedAt != sess.LastUsedAt || decoded.ExpiresAt != sess.ExpiresAt {
		t.Fatalf("timestamp mismatch: %+v", decoded)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	sess := testSession("sid-1", "u-1")
	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data[0] = 9
	if _, err := Decode(data); err == nil {
		t.Fatal("expected version error")
	}
}

func TestDeleteSessionIdempotentCounterAndIndex(t *testing.T) {
	store, rdb, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	sess := testSession("sid-1", "u-1")

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := store.Delete(ctx, sess.TenantID, sess.SessionID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, sess.TenantID, sess.SessionID); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	count, err := store.TenantSessionCount(ctx, sess.TenantID)
	if err != nil {
		t.Fatalf("tenant count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected tenant count 0, got %d", count)
	}

	members, err := rdb.SMembers(ctx, store.userKey(sess.TenantID, sess.UserID)).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected no user index members, got %v", members)
	}
}

func TestEstablishCreatesWithoutPresentedSession(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	next := testSession("sid-new", "u-1")
	res, err := store.Establish(ctx, "", next, time.Hour, SwitchStrict)
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	if res.Action != ActionCreated {
		t.Fatalf("expected created, got %s", res.Action)
	}

	got, err := store.GetReadOnly(ctx, next.TenantID, next.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u-1" {
		t.Fatalf("expected u-1, got %q", got.UserID)
	}

	count, err := store.TenantSessionCount(ctx, next.TenantID)
	if err != nil {
		t.Fatalf("tenant count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected tenant count 1, got %d", count)
	}
}

func TestEstablishReusesForSameUser(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	existing := testSession("sid-1", "u-1")
	existing.LastUsedAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(ctx, existing, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	next := testSession("sid-2", "u-1")
	res, err := store.Establish(ctx, "sid-1", next, time.Hour, SwitchStrict)
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	if res.Action != ActionReused {
		t.Fatalf("expected reused, got %s", res.Action)
	}
	if res.Session.SessionID != "sid-1" {
		t.Fatalf("expected presented session to survive, got %q", res.Session.SessionID)
	}
	if res.Session.LastUsedAt <= existing.LastUsedAt {
		t.Fatal("expected LastUsedAt to advance")
	}
	if res.Session.CreatedAt != existing.CreatedAt {
		t.Fatal("CreatedAt must not change on reuse")
	}

	// No second session is created on reuse.
	if _, err := store.GetReadOnly(ctx, next.TenantID, "sid-2"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected no new session, got %v", err)
	}
	count, err := store.TenantSessionCount(ctx, next.TenantID)
	if err != nil {
		t.Fatalf("tenant count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected tenant count 1, got %d", count)
	}
}

func TestEstablishStrictRejectsDifferentUser(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	existing := testSession("sid-1", "u-1")
	if err := store.Save(ctx, existing, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	next := testSession("sid-2", "u-2")
	res, err := store.Establish(ctx, "sid-1", next, time.Hour, SwitchStrict)
	if !errors.Is(err, ErrDifferentUser) {
		t.Fatalf("expected ErrDifferentUser, got %v", err)
	}
	if res == nil || res.Action != ActionRejected {
		t.Fatalf("expected rejected result, got %+v", res)
	}
	if res.PreviousUserID != "u-1" {
		t.Fatalf("expected previous user u-1, got %q", res.PreviousUserID)
	}

	// The existing session must be untouched.
	got, err := store.GetReadOnly(ctx, "t-1", "sid-1")
	if err != nil {
		t.Fatalf("get existing: %v", err)
	}
	if got.UserID != "u-1" {
		t.Fatalf("existing session mutated: %+v", got)
	}
}

func TestEstablishSwitchReplacesDifferentUser(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	existing := testSession("sid-1", "u-1")
	if err := store.Save(ctx, existing, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	next := testSession("sid-2", "u-2")
	res, err := store.Establish(ctx, "sid-1", next, time.Hour, SwitchAllowed)
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	if res.Action != ActionSwitched {
		t.Fatalf("expected switched, got %s", res.Action)
	}
	if res.PreviousUserID != "u-1" {
		t.Fatalf("expected previous user u-1, got %q", res.PreviousUserID)
	}

	if _, err := store.GetReadOnly(ctx, "t-1", "sid-1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected old session gone, got %v", err)
	}
	got, err := store.GetReadOnly(ctx, "t-1", "sid-2")
	if err != nil {
		t.Fatalf("get new: %v", err)
	}
	if got.UserID != "u-2" {
		t.Fatalf("expected u-2 session, got %+v", got)
	}

	// Net session count stays at one through the switch.
	count, err := store.TenantSessionCount(ctx, "t-1")
	if err != nil {
		t.Fatalf("tenant count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected tenant count 1, got %d", count)
	}
	oldCount, err := store.ActiveSessionCount(ctx, "t-1", "u-1")
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if oldCount != 0 {
		t.Fatalf("expected old user index empty, got %d", oldCount)
	}
}

func TestEstablishExpiredPresentedSessionCreatesFresh(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	expired := testSession("sid-old", "u-1")
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(ctx, expired, time.Hour); err != nil {
		t.Fatalf("save expired: %v", err)
	}

	next := testSession("sid-new", "u-1")
	res, err := store.Establish(ctx, "sid-old", next, time.Hour, SwitchStrict)
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	if res.Action != ActionCreated {
		t.Fatalf("expected created, got %s", res.Action)
	}
	if _, err := store.GetReadOnly(ctx, "t-1", "sid-old"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected expired session cleaned up, got %v", err)
	}
	count, err := store.TenantSessionCount(ctx, "t-1")
	if err != nil {
		t.Fatalf("tenant count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected tenant count 1, got %d", count)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	for _, sid := range []string{"sid-1", "sid-2", "sid-3"} {
		if err := store.Save(ctx, testSession(sid, "u-1"), time.Hour); err != nil {
			t.Fatalf("save %s: %v", sid, err)
		}
	}
	if err := store.Save(ctx, testSession("sid-other", "u-2"), time.Hour); err != nil {
		t.Fatalf("save other: %v", err)
	}

	if err := store.DeleteAllForUser(ctx, "t-1", "u-1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}

	count, err := store.ActiveSessionCount(ctx, "t-1", "u-1")
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 sessions for u-1, got %d", count)
	}
	if _, err := store.GetReadOnly(ctx, "t-1", "sid-other"); err != nil {
		t.Fatalf("u-2 session must survive: %v", err)
	}
	tenantCount, err := store.TenantSessionCount(ctx, "t-1")
	if err != nil {
		t.Fatalf("tenant count: %v", err)
	}
	if tenantCount != 1 {
		t.Fatalf("expected tenant count 1, got %d", tenantCount)
	}
}
