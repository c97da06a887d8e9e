package retriever

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/bassamadnan/mailsort/gmail"
)

// fakeSession serves pages of ids and a fixed message store.
type fakeSession struct {
	pages    [][]string // page i is returned for token "" (i=0) or "page-i"
	endless  bool       // keep handing out continuation tokens
	messages map[string]*gmailapi.Message
	failing  map[string]error

	mu        sync.Mutex
	listCalls int
	gets      []getCall
}

type getCall struct {
	id      string
	format  gmail.Format
	headers string
}

func (s *fakeSession) ListMessageIDs(_ context.Context, pageToken string) (gmail.Page, error) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()

	idx := 0
	if pageToken != "" {
		if _, err := fmt.Sscanf(pageToken, "page-%d", &idx); err != nil {
			return gmail.Page{}, fmt.Errorf("bad token %q", pageToken)
		}
	}
	var page gmail.Page
	if idx < len(s.pages) {
		for _, id := range s.pages[idx] {
			page.Messages = append(page.Messages, gmail.MessageRef{ID: id, ThreadID: "t-" + id})
		}
	}
	if idx+1 < len(s.pages) || s.endless {
		page.NextPageToken = fmt.Sprintf("page-%d", idx+1)
	}
	return page, nil
}

func (s *fakeSession) GetMessage(_ context.Context, id string, format gmail.Format, headers string) (*gmailapi.Message, error) {
	s.mu.Lock()
	s.gets = append(s.gets, getCall{id, format, headers})
	s.mu.Unlock()
	if err := s.failing[id]; err != nil {
		return nil, err
	}
	msg, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("no message %s", id)
	}
	return msg, nil
}

func storeOf(ids ...string) map[string]*gmailapi.Message {
	m := make(map[string]*gmailapi.Message, len(ids))
	for _, id := range ids {
		m[id] = &gmailapi.Message{Id: id, ThreadId: "t-" + id, Snippet: "snippet " + id}
	}
	return m
}

func refIDs(refs []gmail.MessageRef) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}

func TestFetchMessageIDsStopsAtCount(t *testing.T) {
	s := &fakeSession{pages: [][]string{{"1", "2", "3"}, {"4", "5", "6"}}}
	f := New(s)
	listing, err := f.FetchMessageIDs(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"1", "2", "3", "4", "5"}
	if got := refIDs(listing.Refs); !reflect.DeepEqual(got, want) {
		t.Errorf("FetchMessageIDs(5)=%v, want %v", got, want)
	}
	if listing.Exhausted {
		t.Error("Exhausted=true, want false")
	}
	if listing.Refs[0].ThreadID != "t-1" {
		t.Errorf("ThreadID=%q, want t-1", listing.Refs[0].ThreadID)
	}
}

func TestFetchMessageIDsFirstPageSuffices(t *testing.T) {
	s := &fakeSession{pages: [][]string{{"1", "2", "3"}, {"4"}}}
	f := New(s)
	listing, err := f.FetchMessageIDs(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := refIDs(listing.Refs); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("FetchMessageIDs(2)=%v", got)
	}
	if s.listCalls != 1 {
		t.Errorf("listCalls=%d, want 1", s.listCalls)
	}
}

func TestFetchMessageIDsExhausted(t *testing.T) {
	s := &fakeSession{pages: [][]string{{"1", "2"}, {"3", "4"}}}
	f := New(s)
	listing, err := f.FetchMessageIDs(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchMessageIDs(10) err=%v, want exhausted listing", err)
	}
	if !listing.Exhausted {
		t.Error("Exhausted=false, want true")
	}
	if got := refIDs(listing.Refs); !reflect.DeepEqual(got, []string{"1", "2", "3", "4"}) {
		t.Errorf("Refs=%v", got)
	}
}

func TestFetchMessageIDsEmptyMailbox(t *testing.T) {
	f := New(&fakeSession{})
	listing, err := f.FetchMessageIDs(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if !listing.Exhausted || len(listing.Refs) != 0 {
		t.Errorf("listing=%+v, want exhausted and empty", listing)
	}
}

func TestFetchMessageIDsInvalidCount(t *testing.T) {
	f := New(&fakeSession{})
	for _, n := range []int{0, -1} {
		if _, err := f.FetchMessageIDs(context.Background(), n); !errors.Is(err, ErrInvalidCount) {
			t.Errorf("FetchMessageIDs(%d) err=%v, want ErrInvalidCount", n, err)
		}
	}
}

func TestFetchMessageIDsPageLimit(t *testing.T) {
	s := &fakeSession{pages: [][]string{{}}, endless: true}
	f := New(s, WithMaxPages(4))
	_, err := f.FetchMessageIDs(context.Background(), 1)
	var limitErr *PageLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("err=%v, want *PageLimitError", err)
	}
	if limitErr.Pages != 4 || s.listCalls != 4 {
		t.Errorf("Pages=%d listCalls=%d, want 4", limitErr.Pages, s.listCalls)
	}
}

func TestFetchMessageIDsCancelled(t *testing.T) {
	s := &fakeSession{pages: [][]string{{"1"}}, endless: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(s).FetchMessageIDs(ctx, 5)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err=%v, want context.Canceled", err)
	}
}

func TestFetchMessagesExplicitMatchesDiscovery(t *testing.T) {
	s := &fakeSession{pages: [][]string{{"a", "b", "c"}}, messages: storeOf("a", "b", "c")}
	f := New(s, WithCount(2))

	explicit, err := f.FetchMessages(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	discovered, err := f.FetchMessages(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(explicit.Messages(), discovered.Messages()) {
		t.Errorf("explicit=%v, discovered=%v", explicit.Messages(), discovered.Messages())
	}
	if len(explicit.Messages()) != 2 {
		t.Errorf("got %d messages, want 2", len(explicit.Messages()))
	}
}

func TestFetchMessagesPreservesCallerOrder(t *testing.T) {
	ids := []string{"e", "a", "d", "b", "c"}
	s := &fakeSession{messages: storeOf(ids...)}
	f := New(s, WithConcurrency(4))
	batch, err := f.FetchMessages(context.Background(), ids)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range batch.Results {
		if r.ID != ids[i] || r.Message.Id != ids[i] {
			t.Errorf("Results[%d]=%s/%s, want %s", i, r.ID, r.Message.Id, ids[i])
		}
	}
}

func TestFetchMessagesPerItemFailure(t *testing.T) {
	boom := errors.New("backend error")
	s := &fakeSession{
		messages: storeOf("a", "c"),
		failing:  map[string]error{"b": boom},
	}
	batch, err := New(s).FetchMessages(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("FetchMessages err=%v, want nil", err)
	}
	if len(batch.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(batch.Results))
	}
	failed := batch.Failed()
	if len(failed) != 1 || failed[0].ID != "b" || !errors.Is(failed[0].Err, boom) {
		t.Errorf("Failed()=%v", failed)
	}
	var got []string
	for _, m := range batch.Messages() {
		got = append(got, m.Id)
	}
	if !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("Messages()=%v, want [a c]", got)
	}
}

func TestFetchMessagesPassesFormat(t *testing.T) {
	s := &fakeSession{messages: storeOf("a")}
	f := New(s, WithFormat(gmail.FormatMetadata), WithMetadataHeaders("From"))
	if _, err := f.FetchMessages(context.Background(), []string{"a"}); err != nil {
		t.Fatal(err)
	}
	want := []getCall{{"a", gmail.FormatMetadata, "From"}}
	if !reflect.DeepEqual(s.gets, want) {
		t.Errorf("gets=%v, want %v", s.gets, want)
	}
}

func TestFetchMessagesDefaults(t *testing.T) {
	s := &fakeSession{messages: storeOf("a")}
	if _, err := New(s).FetchMessages(context.Background(), []string{"a"}); err != nil {
		t.Fatal(err)
	}
	want := []getCall{{"a", gmail.FormatFull, DefaultMetadataHeaders}}
	if !reflect.DeepEqual(s.gets, want) {
		t.Errorf("gets=%v, want %v", s.gets, want)
	}
}

func TestFetchMessagesDiscoveryExhausted(t *testing.T) {
	s := &fakeSession{pages: [][]string{{"a"}}, messages: storeOf("a")}
	batch, err := New(s, WithCount(3)).FetchMessages(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !batch.Exhausted || len(batch.Results) != 1 {
		t.Errorf("batch=%+v, want one result and Exhausted", batch)
	}
}
