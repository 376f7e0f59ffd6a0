package state

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mchmarny/kitchen/pkg/menu"
)

var errBoom = errors.New("boom")

// fakeRemote is an in-memory menu API that assigns sequential ids.
type fakeRemote struct {
	mu     sync.Mutex
	items  []menu.Item
	nextID int64
	fail   error
	calls  map[string]int
}

func newFakeRemote(items ...menu.Item) *fakeRemote {
	f := &fakeRemote{nextID: 1, calls: map[string]int{}}
	for _, it := range items {
		f.items = append(f.items, it)
		if it.ID >= f.nextID {
			f.nextID = it.ID + 1
		}
	}
	return f
}

func (f *fakeRemote) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) List(_ context.Context) ([]menu.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	if f.fail != nil {
		return nil, f.fail
	}
	out := make([]menu.Item, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeRemote) Create(_ context.Context, data menu.FormData) (menu.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["create"]++
	if f.fail != nil {
		return menu.Item{}, f.fail
	}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	item := menu.Item{
		ID:          f.nextID,
		Name:        data.Name,
		Description: data.Description,
		Price:       data.Price,
		Image:       data.Image,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.nextID++
	f.items = append(f.items, item)
	return item, nil
}

func (f *fakeRemote) Update(_ context.Context, id int64, data menu.FormData) (menu.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["update"]++
	if f.fail != nil {
		return menu.Item{}, f.fail
	}
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Name = data.Name
			f.items[i].Description = data.Description
			f.items[i].Price = data.Price
			f.items[i].Image = data.Image
			f.items[i].UpdatedAt = f.items[i].UpdatedAt.Add(time.Hour)
			return f.items[i], nil
		}
	}
	return menu.Item{}, errors.New("not found")
}

func (f *fakeRemote) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	if f.fail != nil {
		return f.fail
	}
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func seed() []menu.Item {
	return []menu.Item{
		{ID: 1, Name: "Nasi Goreng", Description: "Fried rice", Price: 25000, Image: "https://x/1.jpg"},
		{ID: 2, Name: "Sate", Description: "Skewers", Price: 30000, Image: "https://x/2.jpg"},
		{ID: 3, Name: "Rendang", Description: "Beef", Price: 45000, Image: "https://x/3.jpg"},
	}
}

func validForm() menu.FormData {
	return menu.FormData{Name: "Nasi Goreng", Description: "Fried rice", Price: 25000, Image: "https://x/y.jpg"}
}

func loaded(t *testing.T) (*Manager, *fakeRemote) {
	t.Helper()
	remote := newFakeRemote(seed()...)
	m := New(remote)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return m, remote
}

func TestLoad(t *testing.T) {
	m, _ := loaded(t)

	if !reflect.DeepEqual(m.Items(), seed()) {
		t.Errorf("items: got %+v, want %+v", m.Items(), seed())
	}
	if !m.Loaded() {
		t.Error("Loaded: got false")
	}
	if err := m.Ready(context.Background()); err != nil {
		t.Errorf("Ready: %v", err)
	}
}

func TestLoadFailureLeavesEmpty(t *testing.T) {
	remote := newFakeRemote(seed()...)
	remote.setFail(errBoom)
	m := New(remote)

	if err := m.Load(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("load: got %v, want %v", err, errBoom)
	}
	if m.Len() != 0 || m.Loaded() {
		t.Errorf("after failed load: len=%d loaded=%v", m.Len(), m.Loaded())
	}
	if m.Ready(context.Background()) == nil {
		t.Error("Ready should fail before a successful load")
	}
}

func TestEnsureLoaded(t *testing.T) {
	remote := newFakeRemote(seed()...)
	m := New(remote)

	for i := 0; i < 3; i++ {
		if err := m.EnsureLoaded(context.Background()); err != nil {
			t.Fatalf("ensure loaded: %v", err)
		}
	}
	if got := remote.count("list"); got != 1 {
		t.Errorf("list calls: got %d, want 1", got)
	}
}

// gatedRemote holds List until release is closed.
type gatedRemote struct {
	*fakeRemote
	release chan struct{}
}

func (g *gatedRemote) List(ctx context.Context) ([]menu.Item, error) {
	<-g.release
	return g.fakeRemote.List(ctx)
}

func TestEnsureLoadedConcurrentFirstActivation(t *testing.T) {
	remote := &gatedRemote{fakeRemote: newFakeRemote(seed()...), release: make(chan struct{})}
	m := New(remote)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.EnsureLoaded(context.Background())
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(remote.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("ensure loaded: %v", err)
		}
	}
	if got := remote.count("list"); got != 1 {
		t.Errorf("list calls: got %d, want 1", got)
	}
	if m.Len() != 3 {
		t.Errorf("len: got %d, want 3", m.Len())
	}
}

func TestReloadDropsVanishedTargets(t *testing.T) {
	m, remote := loaded(t)

	if err := m.RequestDelete(2); err != nil {
		t.Fatalf("request delete: %v", err)
	}

	// Item 2 is removed by another client.
	remote.mu.Lock()
	remote.items = append(remote.items[:1:1], remote.items[2:]...)
	remote.mu.Unlock()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if m.Len() != 2 {
		t.Errorf("len: got %d, want 2", m.Len())
	}
	if id, ok := m.PendingDelete(); ok {
		t.Errorf("pending: got %d, want none", id)
	}
	if err := m.ConfirmDelete(context.Background()); !errors.Is(err, ErrNoPendingDelete) {
		t.Errorf("confirm: got %v, want %v", err, ErrNoPendingDelete)
	}
	if got := remote.count("delete"); got != 0 {
		t.Errorf("delete calls: got %d, want 0", got)
	}

	if _, err := m.BeginEdit(3); err != nil {
		t.Fatalf("begin edit: %v", err)
	}
	remote.mu.Lock()
	remote.items = remote.items[:1]
	remote.mu.Unlock()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := m.EditTarget(); ok {
		t.Error("edit target survived reload without its item")
	}
}

func TestReloadKeepsPresentTargets(t *testing.T) {
	m, _ := loaded(t)

	if err := m.RequestDelete(2); err != nil {
		t.Fatalf("request delete: %v", err)
	}
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if id, ok := m.PendingDelete(); !ok || id != 2 {
		t.Errorf("pending: got %d, %v", id, ok)
	}
}

func TestAddAppendsCanonicalItem(t *testing.T) {
	m := New(newFakeRemote())

	item, err := m.Add(context.Background(), validForm())
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	want := menu.Item{
		ID:          1,
		Name:        "Nasi Goreng",
		Description: "Fried rice",
		Price:       25000,
		Image:       "https://x/y.jpg",
		CreatedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	if !reflect.DeepEqual(m.Items(), []menu.Item{want}) {
		t.Errorf("items: got %+v, want [%+v]", m.Items(), want)
	}
	if item != want {
		t.Errorf("returned item: got %+v", item)
	}
}

func TestAddIncreasesCardinality(t *testing.T) {
	m, _ := loaded(t)
	before := m.Len()

	item, err := m.Add(context.Background(), validForm())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if m.Len() != before+1 {
		t.Errorf("len: got %d, want %d", m.Len(), before+1)
	}
	if got, ok := m.Get(item.ID); !ok || got != item {
		t.Errorf("added item missing: %+v", got)
	}
}

func TestAddValidationBlocksNetwork(t *testing.T) {
	remote := newFakeRemote()
	m := New(remote)

	_, err := m.Add(context.Background(), menu.FormData{Name: " ", Price: 0})

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error: got %v, want *ValidationError", err)
	}
	want := []string{menu.FieldDescription, menu.FieldImage, menu.FieldName, menu.FieldPrice}
	if !reflect.DeepEqual(ve.Fields.Fields(), want) {
		t.Errorf("fields: got %v, want %v", ve.Fields.Fields(), want)
	}
	if remote.count("create") != 0 {
		t.Error("create was called for an invalid form")
	}
}

func TestFailedOperationsLeaveCollectionUnchanged(t *testing.T) {
	tests := []struct {
		name string
		op   func(*Manager) error
	}{
		{"add", func(m *Manager) error { _, err := m.Add(context.Background(), validForm()); return err }},
		{"edit", func(m *Manager) error { _, err := m.Edit(context.Background(), 2, validForm()); return err }},
		{"delete", func(m *Manager) error {
			if err := m.RequestDelete(2); err != nil {
				return err
			}
			return m.ConfirmDelete(context.Background())
		}},
		{"reload", func(m *Manager) error { return m.Load(context.Background()) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, remote := loaded(t)
			before := m.Items()
			remote.setFail(errBoom)

			if err := tt.op(m); !errors.Is(err, errBoom) {
				t.Fatalf("error: got %v, want %v", err, errBoom)
			}
			if !reflect.DeepEqual(m.Items(), before) {
				t.Errorf("items changed: got %+v, want %+v", m.Items(), before)
			}
		})
	}
}

func TestEditReplacesOnlyMatchingItem(t *testing.T) {
	m, _ := loaded(t)
	before := m.Items()

	data := menu.FormData{Name: "Sate Ayam", Description: "Chicken skewers", Price: 32000, Image: "https://x/2b.jpg"}
	item, err := m.Edit(context.Background(), 2, data)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}

	got, ok := m.Get(2)
	if !ok || got != item || got.Form() != data {
		t.Errorf("edited item: got %+v, want fields %+v", got, data)
	}
	if !got.UpdatedAt.After(before[1].UpdatedAt) {
		t.Error("update timestamp should come from the server response")
	}

	after := m.Items()
	if len(after) != len(before) || after[0] != before[0] || after[2] != before[2] {
		t.Errorf("other items changed: got %+v", after)
	}
}

func TestDeleteConfirmationFlow(t *testing.T) {
	m, remote := loaded(t)

	if err := m.RequestDelete(3); err != nil {
		t.Fatalf("request delete: %v", err)
	}
	if id, ok := m.PendingDelete(); !ok || id != 3 {
		t.Fatalf("pending: got %d, %v", id, ok)
	}

	m.CancelDelete()
	if _, ok := m.PendingDelete(); ok {
		t.Error("pending after cancel")
	}
	if m.Len() != 3 || remote.count("delete") != 0 {
		t.Errorf("cancel changed state: len=%d deletes=%d", m.Len(), remote.count("delete"))
	}

	if err := m.RequestDelete(3); err != nil {
		t.Fatalf("request delete: %v", err)
	}
	if err := m.ConfirmDelete(context.Background()); err != nil {
		t.Fatalf("confirm delete: %v", err)
	}
	if _, ok := m.Get(3); ok {
		t.Error("item 3 still present")
	}
	if m.Len() != 2 {
		t.Errorf("len: got %d, want 2", m.Len())
	}
	if _, ok := m.PendingDelete(); ok {
		t.Error("pending after confirm")
	}
}

func TestConfirmWithoutPending(t *testing.T) {
	m, remote := loaded(t)

	if err := m.ConfirmDelete(context.Background()); !errors.Is(err, ErrNoPendingDelete) {
		t.Errorf("confirm: got %v", err)
	}
	if remote.count("delete") != 0 {
		t.Error("delete called without pending target")
	}
}

func TestFailedConfirmReturnsToIdle(t *testing.T) {
	m, remote := loaded(t)
	remote.setFail(errBoom)

	if err := m.RequestDelete(1); err != nil {
		t.Fatalf("request delete: %v", err)
	}
	if err := m.ConfirmDelete(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("confirm: got %v", err)
	}
	if _, ok := m.Get(1); !ok {
		t.Error("item removed despite failure")
	}
	if _, ok := m.PendingDelete(); ok {
		t.Error("pending target should be consumed")
	}
}

func TestSecondDeleteFails(t *testing.T) {
	m, _ := loaded(t)

	if err := m.Delete(context.Background(), 1); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := m.Delete(context.Background(), 1); err == nil {
		t.Error("second delete should fail")
	}
	if m.Len() != 2 {
		t.Errorf("len: got %d, want 2", m.Len())
	}
}

func TestUnknownTargets(t *testing.T) {
	m, _ := loaded(t)

	if _, err := m.BeginEdit(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("begin edit: got %v", err)
	}
	if err := m.RequestDelete(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("request delete: got %v", err)
	}
}

func TestLastRequestWins(t *testing.T) {
	m, _ := loaded(t)

	if _, err := m.BeginEdit(1); err != nil {
		t.Fatalf("begin edit: %v", err)
	}
	if err := m.RequestDelete(2); err != nil {
		t.Fatalf("request delete: %v", err)
	}
	if _, ok := m.EditTarget(); ok {
		t.Error("edit target should be replaced by delete request")
	}

	if _, err := m.BeginEdit(3); err != nil {
		t.Fatalf("begin edit: %v", err)
	}
	if _, ok := m.PendingDelete(); ok {
		t.Error("pending delete should be replaced by edit")
	}
	if target, _ := m.EditTarget(); target.ID != 3 {
		t.Errorf("edit target: got %d, want 3", target.ID)
	}

	m.BeginAdd()
	if _, ok := m.EditTarget(); ok {
		t.Error("BeginAdd should clear the edit target")
	}
}

func TestSubmitDispatch(t *testing.T) {
	m, remote := loaded(t)

	m.BeginAdd()
	if _, err := m.Submit(context.Background(), validForm()); err != nil {
		t.Fatalf("submit add: %v", err)
	}
	if remote.count("create") != 1 || m.Len() != 4 {
		t.Errorf("add: creates=%d len=%d", remote.count("create"), m.Len())
	}

	if _, err := m.BeginEdit(1); err != nil {
		t.Fatalf("begin edit: %v", err)
	}

	if _, err := m.Submit(context.Background(), menu.FormData{}); err == nil {
		t.Fatal("invalid submit should fail")
	}
	if _, ok := m.EditTarget(); !ok {
		t.Error("edit target should survive a failed submit")
	}

	data := menu.FormData{Name: "Nasi Uduk", Description: "Coconut rice", Price: 20000, Image: "https://x/u.jpg"}
	if _, err := m.Submit(context.Background(), data); err != nil {
		t.Fatalf("submit edit: %v", err)
	}
	if remote.count("update") != 1 {
		t.Errorf("updates: got %d", remote.count("update"))
	}
	if got, _ := m.Get(1); got.Name != "Nasi Uduk" {
		t.Errorf("edited name: got %q", got.Name)
	}
	if _, ok := m.EditTarget(); ok {
		t.Error("edit target should be cleared after success")
	}
}

func TestEditAfterDeleteDoesNotResurrect(t *testing.T) {
	m, _ := loaded(t)

	// The server still has item 2 while the local copy is gone.
	m.mu.Lock()
	m.menu.Remove(2)
	m.mu.Unlock()

	if _, err := m.Edit(context.Background(), 2, validForm()); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, ok := m.Get(2); ok {
		t.Error("edit re-inserted a removed item")
	}
}

func TestItemsIsReadOnlyView(t *testing.T) {
	m, _ := loaded(t)

	items := m.Items()
	items[0].Name = "mutated"

	if got, _ := m.Get(1); got.Name != "Nasi Goreng" {
		t.Errorf("collection mutated through view: %q", got.Name)
	}
}

type countingCounter struct {
	mu   sync.Mutex
	seen map[string]int
}

func (c *countingCounter) Increment(val ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = map[string]int{}
	}
	c.seen[val[0]+"/"+val[1]]++
}

func TestCounter(t *testing.T) {
	counter := &countingCounter{}
	remote := newFakeRemote()
	m := New(remote, WithCounter(counter))

	_ = m.Load(context.Background())
	_, _ = m.Add(context.Background(), menu.FormData{})
	remote.setFail(errBoom)
	_ = m.Delete(context.Background(), 1)

	want := map[string]int{"load/ok": 1, "add/invalid": 1, "delete/error": 1}
	if !reflect.DeepEqual(counter.seen, want) {
		t.Errorf("counter: got %v, want %v", counter.seen, want)
	}
}

func TestConcurrentAdds(t *testing.T) {
	m := New(newFakeRemote())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Add(context.Background(), validForm()); err != nil {
				t.Errorf("add: %v", err)
			}
		}()
	}
	wg.Wait()

	if m.Len() != 20 {
		t.Errorf("len: got %d, want 20", m.Len())
	}
}
