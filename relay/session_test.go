package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"bolt/config"
	"bolt/store"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records calls so the tests can assert the pipeline never touches
// storage on rejection paths.
type fakeStore struct {
	saveStatus store.SaveStatus
	saveErr    error
	queryRes   []*nostr.Event
	queryErr   error
	deleteErr  error

	saved         []*nostr.Event
	queryFilters  []nostr.Filter
	deleteFilters []nostr.Filter
}

func (f *fakeStore) SaveEvent(_ context.Context, evt *nostr.Event) (store.SaveStatus, error) {
	f.saved = append(f.saved, evt)
	return f.saveStatus, f.saveErr
}

func (f *fakeStore) QueryEvents(_ context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	f.queryFilters = append(f.queryFilters, filter)
	return f.queryRes, f.queryErr
}

func (f *fakeStore) DeleteEvents(_ context.Context, filter nostr.Filter) error {
	f.deleteFilters = append(f.deleteFilters, filter)
	return f.deleteErr
}

func testConfig() *config.Config {
	return &config.Config{
		Name:                "test",
		RejectFutureSeconds: 3,
		Limits:              config.DefaultLimitations(),
	}
}

func acceptingStore() *fakeStore {
	return &fakeStore{saveStatus: store.SaveStatus{Accepted: true}}
}

func newTestSession(db EventStore) *session {
	return newSession(testConfig(), db)
}

func signEvent(t *testing.T, sk string, kind int, content string, tags nostr.Tags) *nostr.Event {
	t.Helper()
	evt := &nostr.Event{
		CreatedAt: nostr.Now(),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	require.NoError(t, evt.Sign(sk))
	return evt
}

func eventFrame(t *testing.T, evt *nostr.Event) []byte {
	t.Helper()
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	return []byte(fmt.Sprintf(`["EVENT",%s]`, payload))
}

func TestMalformedJSONProducesNoticeOnly(t *testing.T) {
	db := acceptingStore()
	s := newTestSession(db)

	responses, err := s.handleFrame(context.Background(), []byte(`{"not":"an array"`))
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.IsType(t, (*nostr.NoticeEnvelope)(nil), responses[0])
	assert.Empty(t, db.saved)
}

func TestEmptyFrameProducesNotice(t *testing.T) {
	s := newTestSession(acceptingStore())

	responses, err := s.handleFrame(context.Background(), []byte("   "))
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.IsType(t, (*nostr.NoticeEnvelope)(nil), responses[0])
}

func TestValidEventYieldsSingleOK(t *testing.T) {
	db := acceptingStore()
	s := newTestSession(db)
	sk := nostr.GeneratePrivateKey()

	evt := signEvent(t, sk, nostr.KindTextNote, "hi", nostr.Tags{})

	responses, err := s.handleFrame(context.Background(), eventFrame(t, evt))
	require.NoError(t, err)
	require.Len(t, responses, 1)

	ok, isOK := responses[0].(*nostr.OKEnvelope)
	require.True(t, isOK)
	assert.Equal(t, evt.ID, ok.EventID)
	assert.True(t, ok.OK)
	require.Len(t, db.saved, 1)
}

func TestOversizedContentNeverReachesStore(t *testing.T) {
	db := acceptingStore()
	s := newTestSession(db)
	sk := nostr.GeneratePrivateKey()

	big := make([]byte, testConfig().Limits.MaxContentLength+1)
	for i := range big {
		big[i] = 'a'
	}
	evt := signEvent(t, sk, nostr.KindTextNote, string(big), nostr.Tags{})

	responses, err := s.handleFrame(context.Background(), eventFrame(t, evt))
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.IsType(t, (*nostr.NoticeEnvelope)(nil), responses[0])
	assert.Empty(t, db.saved, "store must not be called for oversized content")
}

func TestExpiredEventNeverReachesStore(t *testing.T) {
	db := acceptingStore()
	s := newTestSession(db)
	sk := nostr.GeneratePrivateKey()

	past := fmt.Sprintf("%d", nostr.Now()-60)
	evt := signEvent(t, sk, nostr.KindTextNote, "late", nostr.Tags{{"expiration", past}})

	responses, err := s.handleFrame(context.Background(), eventFrame(t, evt))
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.IsType(t, (*nostr.NoticeEnvelope)(nil), responses[0])
	assert.Empty(t, db.saved)
}

func TestFutureEventNeverReachesStore(t *testing.T) {
	db := acceptingStore()
	s := newTestSession(db)
	sk := nostr.GeneratePrivateKey()

	evt := &nostr.Event{
		CreatedAt: nostr.Now() + 3600,
		Kind:      nostr.KindTextNote,
		Tags:      nostr.Tags{},
		Content:   "from tomorrow",
	}
	require.NoError(t, evt.Sign(sk))

	responses, err := s.handleFrame(context.Background(), eventFrame(t, evt))
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.IsType(t, (*nostr.NoticeEnvelope)(nil), responses[0])
	assert.Empty(t, db.saved)
}

func TestForgedSignatureNeverReachesStore(t *testing.T) {
	db := acceptingStore()
	s := newTestSession(db)
	sk := nostr.GeneratePrivateKey()

	evt := signEvent(t, sk, nostr.KindTextNote, "original", nostr.Tags{})
	evt.Content = "tampered"
	evt.ID = evt.GetID() // recompute id so only the signature is wrong

	responses, err := s.handleFrame(context.Background(), eventFrame(t, evt))
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.IsType(t, (*nostr.NoticeEnvelope)(nil), responses[0])
	assert.Empty(t, db.saved)
}

func TestStoreRejectionSurfacesAsNotice(t *testing.T) {
	db := &fakeStore{saveStatus: store.SaveStatus{Accepted: false, Reason: store.ReasonDuplicate}}
	s := newTestSession(db)
	sk := nostr.GeneratePrivateKey()

	evt := signEvent(t, sk, nostr.KindTextNote, "again", nostr.Tags{})

	responses, err := s.handleFrame(context.Background(), eventFrame(t, evt))
	require.NoError(t, err)
	require.Len(t, responses, 1)

	notice, isNotice := responses[0].(*nostr.NoticeEnvelope)
	require.True(t, isNotice)
	assert.Equal(t, "duplicate event", string(*notice))
}

func TestStoreErrorIsFatalForTheMessage(t *testing.T) {
	db := &fakeStore{saveErr: fmt.Errorf("disk on fire")}
	s := newTestSession(db)
	sk := nostr.GeneratePrivateKey()

	evt := signEvent(t, sk, nostr.KindTextNote, "doomed", nostr.Tags{})

	responses, err := s.handleFrame(context.Background(), eventFrame(t, evt))
	require.Error(t, err)
	assert.Nil(t, responses)
}

func TestDeletionScopesDeleteToAuthor(t *testing.T) {
	db := acceptingStore()
	s := newTestSession(db)
	sk := nostr.GeneratePrivateKey()

	target := signEvent(t, sk, nostr.KindTextNote, "remove me", nostr.Tags{})
	deletion := signEvent(t, sk, nostr.KindDeletion, "", nostr.Tags{{"e", target.ID}})

	responses, err := s.handleFrame(context.Background(), eventFrame(t, deletion))
	require.NoError(t, err)

	require.Len(t, db.deleteFilters, 1)
	filter := db.deleteFilters[0]
	assert.Equal(t, []string{deletion.PubKey}, filter.Authors, "delete filter must be scoped to the deletion author")
	assert.Equal(t, []string{target.ID}, filter.IDs)

	require.Len(t, responses, 1)
	ok, isOK := responses[0].(*nostr.OKEnvelope)
	require.True(t, isOK)
	assert.Equal(t, deletion.ID, ok.EventID)
	assert.True(t, ok.OK)
}

func TestDeletionKindTagsNarrowTheFilter(t *testing.T) {
	db := acceptingStore()
	s := newTestSession(db)
	sk := nostr.GeneratePrivateKey()

	target := signEvent(t, sk, nostr.KindTextNote, "typed delete", nostr.Tags{})
	deletion := signEvent(t, sk, nostr.KindDeletion, "", nostr.Tags{
		{"e", target.ID},
		{"k", "1"},
	})

	_, err := s.handleFrame(context.Background(), eventFrame(t, deletion))
	require.NoError(t, err)

	require.Len(t, db.deleteFilters, 1)
	assert.Equal(t, []int{1}, db.deleteFilters[0].Kinds)
}

func TestRejectedDeletionTriggersNoDeletes(t *testing.T) {
	db := &fakeStore{saveStatus: store.SaveStatus{Accepted: false, Reason: store.ReasonInvalidDelete}}
	s := newTestSession(db)
	sk := nostr.GeneratePrivateKey()

	deletion := signEvent(t, sk, nostr.KindDeletion, "", nostr.Tags{
		{"e", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
	})

	responses, err := s.handleFrame(context.Background(), eventFrame(t, deletion))
	require.NoError(t, err)

	assert.Empty(t, db.deleteFilters, "no deletes after a rejected deletion save")
	require.Len(t, responses, 1)
	notice, isNotice := responses[0].(*nostr.NoticeEnvelope)
	require.True(t, isNotice)
	assert.Equal(t, "invalid delete", string(*notice))
}

func TestDeletionWithNoParsableTagsDeletesNothing(t *testing.T) {
	db := acceptingStore()
	s := newTestSession(db)
	sk := nostr.GeneratePrivateKey()

	deletion := signEvent(t, sk, nostr.KindDeletion, "", nostr.Tags{
		{"e", "not-a-valid-id"},
		{"a", "30023:somebody:identifier"},
	})

	responses, err := s.handleFrame(context.Background(), eventFrame(t, deletion))
	require.NoError(t, err)

	assert.Empty(t, db.deleteFilters)
	require.Len(t, responses, 1)
	assert.IsType(t, &nostr.OKEnvelope{}, responses[0], "the deletion event itself is still stored and acknowledged")
}

func TestReqEmitsEventsThenEoseThenClosed(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	stored := []*nostr.Event{
		signEvent(t, sk, nostr.KindTextNote, "one", nostr.Tags{}),
		signEvent(t, sk, nostr.KindTextNote, "two", nostr.Tags{}),
		signEvent(t, sk, nostr.KindTextNote, "three", nostr.Tags{}),
	}
	db := &fakeStore{queryRes: stored}
	s := newTestSession(db)

	responses, err := s.handleFrame(context.Background(), []byte(`["REQ","sub1",{"kinds":[1]}]`))
	require.NoError(t, err)
	require.Len(t, responses, 5)

	for i, evt := range stored {
		env, isEvent := responses[i].(*nostr.EventEnvelope)
		require.True(t, isEvent, "response %d should be an EVENT", i)
		require.NotNil(t, env.SubscriptionID)
		assert.Equal(t, "sub1", *env.SubscriptionID)
		assert.Equal(t, evt.ID, env.Event.ID, "store order must be preserved")
	}

	eose, isEose := responses[3].(*nostr.EOSEEnvelope)
	require.True(t, isEose)
	assert.Equal(t, "sub1", string(*eose))

	closed, isClosed := responses[4].(*nostr.ClosedEnvelope)
	require.True(t, isClosed)
	assert.Equal(t, "sub1", closed.SubscriptionID)
	assert.Empty(t, closed.Reason)
}

func TestReqClampsFilterLimit(t *testing.T) {
	db := &fakeStore{}
	s := newTestSession(db)

	_, err := s.handleFrame(context.Background(), []byte(`["REQ","sub1",{"limit":999999}]`))
	require.NoError(t, err)

	require.Len(t, db.queryFilters, 1)
	assert.Equal(t, testConfig().Limits.MaxLimit, db.queryFilters[0].Limit)
}

func TestReqWithExplicitZeroLimitReturnsNoEvents(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	db := &fakeStore{queryRes: []*nostr.Event{
		signEvent(t, sk, nostr.KindTextNote, "stored", nostr.Tags{}),
	}}
	s := newTestSession(db)

	responses, err := s.handleFrame(context.Background(), []byte(`["REQ","sub0",{"limit":0}]`))
	require.NoError(t, err)

	assert.Empty(t, db.queryFilters, "limit zero must not query the store")
	require.Len(t, responses, 2)
	assert.IsType(t, (*nostr.EOSEEnvelope)(nil), responses[0])
	assert.IsType(t, (*nostr.ClosedEnvelope)(nil), responses[1])
}

func TestReqRejectsOverlongSubscriptionID(t *testing.T) {
	db := &fakeStore{}
	s := newTestSession(db)

	long := make([]byte, testConfig().Limits.MaxSubidLength+1)
	for i := range long {
		long[i] = 's'
	}

	responses, err := s.handleFrame(context.Background(),
		[]byte(fmt.Sprintf(`["REQ","%s",{"kinds":[1]}]`, long)))
	require.NoError(t, err)

	require.Len(t, responses, 1)
	closed, isClosed := responses[0].(*nostr.ClosedEnvelope)
	require.True(t, isClosed)
	assert.Contains(t, closed.Reason, "invalid:")
	assert.Empty(t, db.queryFilters, "no query for a rejected subscription")
}

func TestCloseYieldsSingleClosedWithoutStoreInteraction(t *testing.T) {
	db := &fakeStore{}
	s := newTestSession(db)

	responses, err := s.handleFrame(context.Background(), []byte(`["CLOSE","sub9"]`))
	require.NoError(t, err)
	require.Len(t, responses, 1)

	closed, isClosed := responses[0].(*nostr.ClosedEnvelope)
	require.True(t, isClosed)
	assert.Equal(t, "sub9", closed.SubscriptionID)
	assert.Empty(t, closed.Reason)

	assert.Empty(t, db.queryFilters)
	assert.Empty(t, db.saved)
	assert.Empty(t, db.deleteFilters)
}

func TestCountIsUnsupported(t *testing.T) {
	db := &fakeStore{}
	s := newTestSession(db)

	responses, err := s.handleFrame(context.Background(), []byte(`["COUNT","sub1",{"kinds":[1]}]`))
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.IsType(t, (*nostr.NoticeEnvelope)(nil), responses[0])
	assert.Empty(t, db.queryFilters)
}
