package book

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/limitrelay/limitrelay/pkg/util"
)

func newTestStore() (*Store, *util.FakeClock) {
	clock := &util.FakeClock{T: time.UnixMilli(1_700_000_000_000)}
	return NewStore(clock), clock
}

func TestCreateAndGet(t *testing.T) {
	s, _ := newTestStore()

	id, err := s.Create(validOrder())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("empty id assigned")
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != Pending {
		t.Errorf("status = %s, want %s", got.Status, Pending)
	}
	if got.CreatedAt != 1_700_000_000_000 {
		t.Errorf("createdAt = %d", got.CreatedAt)
	}
	if got.TxHash != "" || got.GasEstimate != 0 || got.GasPrice != "" {
		t.Error("execution fields populated on a fresh order")
	}

	list := s.ListByOwner("0xU", 10, 1)
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("ListByOwner = %v, want one entry %s", list, id)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	s, _ := newTestStore()

	o := validOrder()
	o.ToAsset = o.FromAsset
	_, err := s.Create(o)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Reasons) == 0 {
		t.Error("validation error carries no reasons")
	}
}

func TestListByOwnerPaging(t *testing.T) {
	s, clock := newTestStore()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := s.Create(validOrder())
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids = append(ids, id)
		clock.Advance(time.Second)
	}

	page1 := s.ListByOwner("0xU", 2, 1)
	if len(page1) != 2 {
		t.Fatalf("page 1 len = %d, want 2", len(page1))
	}
	// newest first
	if page1[0].ID != ids[4] || page1[1].ID != ids[3] {
		t.Errorf("page 1 = [%s %s], want [%s %s]", page1[0].ID, page1[1].ID, ids[4], ids[3])
	}

	page3 := s.ListByOwner("0xU", 2, 3)
	if len(page3) != 1 || page3[0].ID != ids[0] {
		t.Errorf("page 3 = %v, want oldest only", page3)
	}

	if out := s.ListByOwner("0xU", 2, 9); len(out) != 0 {
		t.Errorf("out-of-range page returned %d entries", len(out))
	}
	if out := s.ListByOwner("0xNobody", 10, 1); len(out) != 0 {
		t.Errorf("unknown owner returned %d entries", len(out))
	}
}

func TestSetStatusMonotone(t *testing.T) {
	s, _ := newTestStore()
	id, _ := s.Create(validOrder())

	if err := s.SetStatus(id, Executed); err != nil {
		t.Fatalf("pending -> executed: %v", err)
	}
	for _, st := range []Status{Pending, Cancelled, Expired} {
		if err := s.SetStatus(id, st); !errors.Is(err, ErrInvalidState) {
			t.Errorf("executed -> %s allowed (err=%v)", st, err)
		}
	}

	if err := s.SetStatus("missing", Executed); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id err = %v, want ErrNotFound", err)
	}
}

func TestCancelAuthorization(t *testing.T) {
	s, _ := newTestStore()
	id, _ := s.Create(validOrder())

	if _, err := s.Cancel(context.Background(), id, "0xOther", nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("foreign cancel err = %v, want ErrUnauthorized", err)
	}

	// status untouched by the failed attempt
	o, _ := s.Get(id)
	if o.Status != Pending {
		t.Errorf("status = %s after unauthorized cancel", o.Status)
	}

	got, err := s.Cancel(context.Background(), id, "0xU", nil)
	if err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if got.Status != Cancelled {
		t.Errorf("status = %s, want %s", got.Status, Cancelled)
	}

	// cancelling again is an invalid state, still unauthorized for others
	if _, err := s.Cancel(context.Background(), id, "0xU", nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second cancel err = %v, want ErrInvalidState", err)
	}
	if _, err := s.Cancel(context.Background(), id, "0xOther", nil); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("foreign cancel of cancelled order err = %v, want ErrUnauthorized", err)
	}
}

func TestCancelHookFailureKeepsPending(t *testing.T) {
	s, _ := newTestStore()
	id, _ := s.Create(validOrder())

	boom := errors.New("rpc down")
	hook := func(ctx context.Context, o Order) (string, uint64, string, error) {
		return "", 0, "", boom
	}

	if _, err := s.Cancel(context.Background(), id, "0xU", hook); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want hook error", err)
	}
	o, _ := s.Get(id)
	if o.Status != Pending {
		t.Errorf("status = %s, want PENDING after failed hook", o.Status)
	}
}

func TestCancelHookResultCommitted(t *testing.T) {
	s, _ := newTestStore()
	id, _ := s.Create(validOrder())

	hook := func(ctx context.Context, o Order) (string, uint64, string, error) {
		return "0xdead", 21000, "1000000000", nil
	}

	got, err := s.Cancel(context.Background(), id, "0xU", hook)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.TxHash != "0xdead" || got.GasEstimate != 21000 || got.GasPrice != "1000000000" {
		t.Errorf("tx fields not committed: %+v", got)
	}
}

func TestSweepExpired(t *testing.T) {
	s, clock := newTestStore()

	fresh := validOrder()
	fresh.Deadline = clock.T.UnixMilli() + 60_000
	freshID, _ := s.Create(fresh)

	stale := validOrder()
	stale.Deadline = clock.T.UnixMilli() + 1_000
	staleID, _ := s.Create(stale)

	clock.Advance(30 * time.Second)

	if n := s.SweepExpired(); n != 1 {
		t.Fatalf("sweep flipped %d, want 1", n)
	}
	if o, _ := s.Get(staleID); o.Status != Expired {
		t.Errorf("stale order status = %s", o.Status)
	}
	if o, _ := s.Get(freshID); o.Status != Pending {
		t.Errorf("fresh order status = %s", o.Status)
	}

	// idempotent: nothing else to flip
	if n := s.SweepExpired(); n != 0 {
		t.Errorf("second sweep flipped %d, want 0", n)
	}
}

func TestSweepSecondsDeadlineNormalized(t *testing.T) {
	s, clock := newTestStore()

	o := validOrder()
	o.Deadline = clock.T.Unix() + 10 // epoch seconds at ingestion
	id, _ := s.Create(o)

	got, _ := s.Get(id)
	if got.Deadline != (clock.T.Unix()+10)*1000 {
		t.Fatalf("deadline not normalized to millis: %d", got.Deadline)
	}

	clock.Advance(time.Minute)
	if n := s.SweepExpired(); n != 1 {
		t.Errorf("sweep flipped %d, want 1", n)
	}
}

func TestExpireIfPast(t *testing.T) {
	s, clock := newTestStore()

	o := validOrder()
	o.Deadline = clock.T.UnixMilli() + 1000
	id, _ := s.Create(o)

	expired, err := s.ExpireIfPast(id)
	if err != nil || expired {
		t.Fatalf("ExpireIfPast before deadline = (%v, %v)", expired, err)
	}

	clock.Advance(2 * time.Second)
	expired, err = s.ExpireIfPast(id)
	if err != nil || !expired {
		t.Fatalf("ExpireIfPast after deadline = (%v, %v)", expired, err)
	}
	if got, _ := s.Get(id); got.Status != Expired {
		t.Errorf("status = %s, want EXPIRED", got.Status)
	}

	if _, err := s.ExpireIfPast(id); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ExpireIfPast on expired order err = %v", err)
	}
	if _, err := s.ExpireIfPast("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing order err = %v", err)
	}
}

func TestCommitExecutionRequiresPending(t *testing.T) {
	s, _ := newTestStore()
	id, _ := s.Create(validOrder())

	if err := s.CommitExecution(id, Executed, "0xabc", 50000, "2000000000"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	o, _ := s.Get(id)
	if o.Status != Executed || o.TxHash != "0xabc" || o.GasEstimate != 50000 {
		t.Errorf("commit not applied: %+v", o)
	}

	if err := s.CommitExecution(id, Cancelled, "0xdef", 1, "1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double commit err = %v", err)
	}
	if err := s.CommitExecution(id, Expired, "0xdef", 1, "1"); err == nil {
		t.Error("commit to EXPIRED accepted")
	}
}

func TestStats(t *testing.T) {
	s, clock := newTestStore()

	a := validOrder()
	a.Owner = "0xA"
	idA, _ := s.Create(a)

	b := validOrder()
	b.Owner = "0xB"
	b.Deadline = clock.T.UnixMilli() - 1
	s.Create(b)

	c := validOrder()
	c.Owner = "0xA"
	s.Create(c)

	s.SetStatus(idA, Executed)
	s.SweepExpired()

	st := s.Stats()
	want := Stats{Total: 3, Pending: 1, Executed: 1, Expired: 1, DistinctOwners: 2}
	if st != want {
		t.Errorf("stats = %+v, want %+v", st, want)
	}
}

func TestUpdatePreservesIdentity(t *testing.T) {
	s, _ := newTestStore()
	id, _ := s.Create(validOrder())

	mod, _ := s.Get(id)
	mod.ToAmount = "2100000000000000000"
	mod.Owner = "0xAttacker"
	mod.FromAsset = "BTC"

	if err := s.Update(id, mod); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.Get(id)
	if got.ToAmount != "2100000000000000000" {
		t.Errorf("toAmount not updated: %s", got.ToAmount)
	}
	if got.Owner != "0xU" || got.FromAsset != "ETH" {
		t.Errorf("immutable fields changed: owner=%s fromAsset=%s", got.Owner, got.FromAsset)
	}

	if err := s.Update("missing", mod); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing err = %v", err)
	}
}
