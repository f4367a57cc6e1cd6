package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"venue-ledger/internal/cache"
	"venue-ledger/internal/model"
	"venue-ledger/internal/repository"
	apperrors "venue-ledger/pkg/app_errors"

	"github.com/google/uuid"
)

// 測試用的 in-memory repository，條件更新的語意與 SQL 版本一致

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event *model.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(t model.LedgerEventType) []*model.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*model.LedgerEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// ---- bookings ----

type fakeBookingRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*model.Booking
	guests   map[uuid.UUID]*model.BookingGuest
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{
		bookings: map[uuid.UUID]*model.Booking{},
		guests:   map[uuid.UUID]*model.BookingGuest{},
	}
}

func (r *fakeBookingRepo) addBooking(venueID uuid.UUID, ref string, partySize int) *model.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := &model.Booking{
		ID:            uuid.New(),
		VenueID:       venueID,
		ReferenceCode: ref,
		PartySize:     partySize,
		Status:        model.BookingStatusConfirmed,
		CheckInStatus: model.CheckInStatusPending,
	}
	r.bookings[b.ID] = b
	cp := *b
	return &cp
}

func (r *fakeBookingRepo) setBookingStatus(id uuid.UUID, status model.BookingStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[id].Status = status
}

func (r *fakeBookingRepo) addGuestRow(bookingID uuid.UUID, status model.CheckInStatus) *model.BookingGuest {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.insertGuestLocked(bookingID, model.GuestIdentity{}, "")
	g.CheckInStatus = status
	return r.guestCopyLocked(g)
}

func (r *fakeBookingRepo) insertGuestLocked(bookingID uuid.UUID, identity model.GuestIdentity, code string) *model.BookingGuest {
	if code == "" {
		code, _ = model.GenerateScanCode(model.BookingGuestCodePrefix)
	}
	n := len(r.guestsOfLocked(bookingID))
	g := &model.BookingGuest{
		ID:            uuid.New(),
		BookingID:     bookingID,
		GuestNumber:   n + 1,
		ScanCode:      code,
		Identity:      identity,
		IsPrimary:     n == 0,
		CheckInStatus: model.CheckInStatusPending,
	}
	r.guests[g.ID] = g
	return g
}

func (r *fakeBookingRepo) guestsOfLocked(bookingID uuid.UUID) []*model.BookingGuest {
	var out []*model.BookingGuest
	for _, g := range r.guests {
		if g.BookingID == bookingID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuestNumber < out[j].GuestNumber })
	return out
}

func (r *fakeBookingRepo) guestCopyLocked(g *model.BookingGuest) *model.BookingGuest {
	cp := *g
	cp.VenueID = r.bookings[g.BookingID].VenueID
	return &cp
}

func (r *fakeBookingRepo) scanCodeTakenLocked(code string) bool {
	for _, g := range r.guests {
		if g.ScanCode == code {
			return true
		}
	}
	return false
}

func (r *fakeBookingRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("booking", id.String())
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBookingRepo) FindByReference(ctx context.Context, venueID uuid.UUID, reference string) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.Booking
	for _, b := range r.bookings {
		if !strings.EqualFold(strings.TrimSpace(b.ReferenceCode), strings.TrimSpace(reference)) {
			continue
		}
		if found == nil || b.VenueID == venueID {
			found = b
		}
	}
	if found == nil {
		return nil, apperrors.NewNotFoundError("booking", reference)
	}
	cp := *found
	return &cp, nil
}

func (r *fakeBookingRepo) FindGuestByID(ctx context.Context, id uuid.UUID) (*model.BookingGuest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guests[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("booking guest", id.String())
	}
	return r.guestCopyLocked(g), nil
}

func (r *fakeBookingRepo) FindGuestByScanCode(ctx context.Context, code string) (*model.BookingGuest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.guests {
		if strings.EqualFold(g.ScanCode, code) {
			return r.guestCopyLocked(g), nil
		}
	}
	return nil, apperrors.NewNotFoundError("booking guest", code)
}

func (r *fakeBookingRepo) ListGuests(ctx context.Context, bookingID uuid.UUID) ([]*model.BookingGuest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	guests := r.guestsOfLocked(bookingID)
	out := make([]*model.BookingGuest, 0, len(guests))
	for _, g := range guests {
		out = append(out, r.guestCopyLocked(g))
	}
	return out, nil
}

func applyAdmission(status *model.CheckInStatus, checkedInAt, noShowAt **time.Time, spend **float64, t model.AdmissionTransition) bool {
	if *status != t.From {
		return false
	}
	if t.NoShowAfter != nil && (*noShowAt == nil || !(*noShowAt).After(*t.NoShowAfter)) {
		return false
	}
	at := t.At
	switch t.To {
	case model.CheckInStatusCheckedIn:
		*checkedInAt = &at
		if t.Spend != nil {
			v := *t.Spend
			*spend = &v
		}
	case model.CheckInStatusNoShow:
		*noShowAt = &at
	case model.CheckInStatusPending:
		*noShowAt = nil
	}
	*status = t.To
	return true
}

func (r *fakeBookingRepo) TransitionGuest(ctx context.Context, guestID uuid.UUID, t model.AdmissionTransition) (*model.BookingGuest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guests[guestID]
	if !ok || r.bookings[g.BookingID].VenueID != t.VenueID {
		return nil, apperrors.ErrConditionFailed
	}
	if !applyAdmission(&g.CheckInStatus, &g.CheckedInAt, &g.NoShowAt, &g.Spend, t) {
		return nil, apperrors.ErrConditionFailed
	}
	g.UpdatedAt = t.At
	return r.guestCopyLocked(g), nil
}

func (r *fakeBookingRepo) TransitionBooking(ctx context.Context, bookingID uuid.UUID, t model.AdmissionTransition) (*model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[bookingID]
	if !ok || b.VenueID != t.VenueID || len(r.guestsOfLocked(bookingID)) > 0 {
		return nil, apperrors.ErrConditionFailed
	}
	if !applyAdmission(&b.CheckInStatus, &b.CheckedInAt, &b.NoShowAt, &b.Spend, t) {
		return nil, apperrors.ErrConditionFailed
	}
	b.UpdatedAt = t.At
	cp := *b
	return &cp, nil
}

func (r *fakeBookingRepo) EnsurePrimaryGuest(ctx context.Context, bookingID uuid.UUID, identity model.GuestIdentity, scanCode string) (*model.BookingGuest, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[bookingID]; !ok {
		return nil, false, apperrors.NewNotFoundError("booking", bookingID.String())
	}
	for _, g := range r.guestsOfLocked(bookingID) {
		if g.IsPrimary {
			return r.guestCopyLocked(g), false, nil
		}
	}
	if r.scanCodeTakenLocked(scanCode) {
		return nil, false, repository.ErrScanCodeConflict
	}
	g := r.insertGuestLocked(bookingID, identity, scanCode)
	return r.guestCopyLocked(g), true, nil
}

func (r *fakeBookingRepo) AddGuest(ctx context.Context, bookingID uuid.UUID, identity model.GuestIdentity, scanCode string) (*model.BookingGuest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[bookingID]
	if !ok {
		return nil, apperrors.NewNotFoundError("booking", bookingID.String())
	}
	if b.CheckInStatus != model.CheckInStatusPending {
		return nil, apperrors.NewValidationError("booking", "booking is already resolved at booking level")
	}
	if len(r.guestsOfLocked(bookingID)) >= b.PartySize {
		return nil, apperrors.NewValidationError("booking", "party size reached")
	}
	if r.scanCodeTakenLocked(scanCode) {
		return nil, repository.ErrScanCodeConflict
	}
	return r.guestCopyLocked(r.insertGuestLocked(bookingID, identity, scanCode)), nil
}

func (r *fakeBookingRepo) RemoveGuest(ctx context.Context, guestID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guests[guestID]
	if !ok || g.IsPrimary || g.CheckInStatus != model.CheckInStatusPending {
		return apperrors.ErrConditionFailed
	}
	delete(r.guests, guestID)
	return nil
}

// ---- pos sessions ----

type fakePOSRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.POSSession
	err      error
}

func newFakePOSRepo() *fakePOSRepo {
	return &fakePOSRepo{sessions: map[uuid.UUID]*model.POSSession{}}
}

func (r *fakePOSRepo) OpenIfAbsent(ctx context.Context, venueID, bookingID uuid.UUID, operatorID string) (*model.POSSession, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, false, r.err
	}
	if s, ok := r.sessions[bookingID]; ok {
		cp := *s
		return &cp, false, nil
	}
	s := &model.POSSession{
		ID:        uuid.New(),
		VenueID:   venueID,
		BookingID: bookingID,
		Status:    model.POSSessionStatusOpen,
		OpenedBy:  operatorID,
		OpenedAt:  time.Now().UTC(),
	}
	r.sessions[bookingID] = s
	cp := *s
	return &cp, true, nil
}

func (r *fakePOSRepo) FindActiveByBooking(ctx context.Context, bookingID uuid.UUID) (*model.POSSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[bookingID]
	if !ok {
		return nil, apperrors.NewNotFoundError("pos session", bookingID.String())
	}
	cp := *s
	return &cp, nil
}

// ---- packages ----

type fakePackageRepo struct {
	// lock 模擬 SELECT ... FOR UPDATE；mu 保護資料
	lock        sync.Mutex
	mu          sync.Mutex
	purchases   map[uuid.UUID]*model.PackagePurchase
	items       map[uuid.UUID][]*model.PackageItem
	guests      map[uuid.UUID]*model.PackageGuest
	redemptions []*model.PackageRedemption
}

func newFakePackageRepo() *fakePackageRepo {
	return &fakePackageRepo{
		purchases: map[uuid.UUID]*model.PackagePurchase{},
		items:     map[uuid.UUID][]*model.PackageItem{},
		guests:    map[uuid.UUID]*model.PackageGuest{},
	}
}

func (r *fakePackageRepo) addPurchase(venueID uuid.UUID, code string, guestCount int, items ...*model.PackageItem) *model.PackagePurchase {
	r.mu.Lock()
	defer r.mu.Unlock()
	packageID := uuid.New()
	for _, item := range items {
		item.PackageID = packageID
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
	}
	p := &model.PackagePurchase{
		ID:         uuid.New(),
		PackageID:  packageID,
		VenueID:    venueID,
		ScanCode:   code,
		GuestCount: guestCount,
		Status:     model.PurchaseStatusActive,
	}
	r.purchases[p.ID] = p
	r.items[packageID] = items
	cp := *p
	return &cp
}

func (r *fakePackageRepo) setStatus(purchaseID uuid.UUID, status model.PurchaseStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purchases[purchaseID].Status = status
}

func (r *fakePackageRepo) guestCopyLocked(g *model.PackageGuest) *model.PackageGuest {
	cp := *g
	cp.VenueID = r.purchases[g.PurchaseID].VenueID
	return &cp
}

func (r *fakePackageRepo) guestsOfLocked(purchaseID uuid.UUID) []*model.PackageGuest {
	var out []*model.PackageGuest
	for _, g := range r.guests {
		if g.PurchaseID == purchaseID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuestNumber < out[j].GuestNumber })
	return out
}

func (r *fakePackageRepo) insertGuestLocked(purchaseID uuid.UUID, identity model.GuestIdentity, code string) *model.PackageGuest {
	n := len(r.guestsOfLocked(purchaseID))
	g := &model.PackageGuest{
		ID:               uuid.New(),
		PurchaseID:       purchaseID,
		GuestNumber:      n + 1,
		ScanCode:         code,
		Identity:         identity,
		IsPrimary:        n == 0,
		RedemptionStatus: model.GuestRedemptionPending,
	}
	r.guests[g.ID] = g
	return g
}

func (r *fakePackageRepo) FindPurchaseByID(ctx context.Context, id uuid.UUID) (*model.PackagePurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("package purchase", id.String())
	}
	cp := *p
	return &cp, nil
}

func (r *fakePackageRepo) FindPurchaseByScanCode(ctx context.Context, venueID uuid.UUID, code string) (*model.PackagePurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.PackagePurchase
	for _, p := range r.purchases {
		if !strings.EqualFold(p.ScanCode, strings.TrimSpace(code)) {
			continue
		}
		if found == nil || p.VenueID == venueID {
			found = p
		}
	}
	if found == nil {
		return nil, apperrors.NewNotFoundError("package purchase", code)
	}
	cp := *found
	return &cp, nil
}

func (r *fakePackageRepo) FindGuestByID(ctx context.Context, id uuid.UUID) (*model.PackageGuest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guests[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("package guest", id.String())
	}
	return r.guestCopyLocked(g), nil
}

func (r *fakePackageRepo) FindGuestByScanCode(ctx context.Context, code string) (*model.PackageGuest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.guests {
		if strings.EqualFold(g.ScanCode, code) {
			return r.guestCopyLocked(g), nil
		}
	}
	return nil, apperrors.NewNotFoundError("package guest", code)
}

func (r *fakePackageRepo) ListGuests(ctx context.Context, purchaseID uuid.UUID) ([]*model.PackageGuest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PackageGuest
	for _, g := range r.guestsOfLocked(purchaseID) {
		out = append(out, r.guestCopyLocked(g))
	}
	return out, nil
}

func (r *fakePackageRepo) ListItems(ctx context.Context, packageID uuid.UUID) ([]*model.PackageItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.PackageItem(nil), r.items[packageID]...), nil
}

func (r *fakePackageRepo) totalsLocked(purchaseID uuid.UUID, guestID *uuid.UUID) map[uuid.UUID]int {
	totals := map[uuid.UUID]int{}
	for _, red := range r.redemptions {
		if red.PurchaseID != purchaseID {
			continue
		}
		if guestID != nil && (red.PackageGuestID == nil || *red.PackageGuestID != *guestID) {
			continue
		}
		totals[red.PackageItemID] += red.Quantity
	}
	return totals
}

func (r *fakePackageRepo) RedeemedTotals(ctx context.Context, purchaseID uuid.UUID) (map[uuid.UUID]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalsLocked(purchaseID, nil), nil
}

func (r *fakePackageRepo) ListRedemptions(ctx context.Context, purchaseID uuid.UUID) ([]*model.PackageRedemption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PackageRedemption
	for _, red := range r.redemptions {
		if red.PurchaseID == purchaseID {
			cp := *red
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakePackageRepo) EnsurePrimaryGuest(ctx context.Context, purchaseID uuid.UUID, identity model.GuestIdentity, scanCode string) (*model.PackageGuest, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.guestsOfLocked(purchaseID) {
		if g.IsPrimary {
			return r.guestCopyLocked(g), false, nil
		}
	}
	return r.guestCopyLocked(r.insertGuestLocked(purchaseID, identity, scanCode)), true, nil
}

func (r *fakePackageRepo) AddGuest(ctx context.Context, purchaseID uuid.UUID, identity model.GuestIdentity, scanCode string) (*model.PackageGuest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.guestsOfLocked(purchaseID)) >= r.purchases[purchaseID].GuestCount {
		return nil, apperrors.NewValidationError("purchase", "guest count reached")
	}
	return r.guestCopyLocked(r.insertGuestLocked(purchaseID, identity, scanCode)), nil
}

func (r *fakePackageRepo) WithPurchaseLock(ctx context.Context, purchaseID uuid.UUID, fn func(ctx context.Context, tx repository.PurchaseLedgerTx) error) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	purchase, err := r.FindPurchaseByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	tx := &fakeLedgerTx{repo: r, purchase: purchase, guestStatus: map[uuid.UUID]model.GuestRedemptionStatus{}}
	if err := fn(ctx, tx); err != nil {
		// rollback：丟棄暫存的寫入
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.redemptions = append(r.redemptions, tx.inserted...)
	if tx.status != nil {
		r.purchases[purchaseID].Status = *tx.status
	}
	for id, status := range tx.guestStatus {
		r.guests[id].RedemptionStatus = status
	}
	return nil
}

type fakeLedgerTx struct {
	repo        *fakePackageRepo
	purchase    *model.PackagePurchase
	inserted    []*model.PackageRedemption
	status      *model.PurchaseStatus
	guestStatus map[uuid.UUID]model.GuestRedemptionStatus
}

func (t *fakeLedgerTx) Purchase() *model.PackagePurchase { return t.purchase }

func (t *fakeLedgerTx) Items(ctx context.Context) ([]*model.PackageItem, error) {
	return t.repo.ListItems(ctx, t.purchase.PackageID)
}

func (t *fakeLedgerTx) totals(guestID *uuid.UUID) map[uuid.UUID]int {
	t.repo.mu.Lock()
	totals := t.repo.totalsLocked(t.purchase.ID, guestID)
	t.repo.mu.Unlock()
	for _, red := range t.inserted {
		if guestID != nil && (red.PackageGuestID == nil || *red.PackageGuestID != *guestID) {
			continue
		}
		totals[red.PackageItemID] += red.Quantity
	}
	return totals
}

func (t *fakeLedgerTx) RedeemedTotals(ctx context.Context) (map[uuid.UUID]int, error) {
	return t.totals(nil), nil
}

func (t *fakeLedgerTx) GuestRedeemedTotals(ctx context.Context, guestID uuid.UUID) (map[uuid.UUID]int, error) {
	return t.totals(&guestID), nil
}

func (t *fakeLedgerTx) InsertRedemption(ctx context.Context, redemption *model.PackageRedemption) error {
	redemption.ID = uuid.New()
	redemption.PurchaseID = t.purchase.ID
	t.inserted = append(t.inserted, redemption)
	return nil
}

func (t *fakeLedgerTx) UpdatePurchaseStatus(ctx context.Context, status model.PurchaseStatus) error {
	t.status = &status
	return nil
}

func (t *fakeLedgerTx) UpdateGuestStatus(ctx context.Context, guestID uuid.UUID, status model.GuestRedemptionStatus) error {
	t.guestStatus[guestID] = status
	return nil
}

// ---- promos ----

type fakePromoRepo struct {
	promos []*model.PromoCode
}

func (r *fakePromoRepo) FindByCode(ctx context.Context, venueID uuid.UUID, code string) (*model.PromoCode, error) {
	var found *model.PromoCode
	for _, p := range r.promos {
		if !strings.EqualFold(p.Code, strings.TrimSpace(code)) {
			continue
		}
		if found == nil || p.VenueID == venueID {
			found = p
		}
	}
	if found == nil {
		return nil, apperrors.NewNotFoundError("promo code", code)
	}
	return found, nil
}

// ---- waitlist ----

type fakeWaitlistRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*model.WaitlistEntry
	seq     map[uuid.UUID]int
	next    int
}

func newFakeWaitlistRepo() *fakeWaitlistRepo {
	return &fakeWaitlistRepo{
		entries: map[uuid.UUID]*model.WaitlistEntry{},
		seq:     map[uuid.UUID]int{},
	}
}

func (r *fakeWaitlistRepo) copyLocked(e *model.WaitlistEntry) *model.WaitlistEntry {
	cp := *e
	cp.Position = nil
	if e.Status == model.WaitlistStatusWaiting {
		pos := 0
		for id, other := range r.entries {
			if other.VenueID == e.VenueID && other.Status == model.WaitlistStatusWaiting && r.seq[id] <= r.seq[e.ID] {
				pos++
			}
		}
		cp.Position = &pos
	}
	return &cp
}

func (r *fakeWaitlistRepo) orderedLocked(filter func(*model.WaitlistEntry) bool) []*model.WaitlistEntry {
	var out []*model.WaitlistEntry
	for _, e := range r.entries {
		if filter(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.seq[out[i].ID] < r.seq[out[j].ID] })
	return out
}

func (r *fakeWaitlistRepo) Create(ctx context.Context, entry *model.WaitlistEntry) (*model.WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := *entry
	e.ID = uuid.New()
	r.next++
	r.seq[e.ID] = r.next
	r.entries[e.ID] = &e
	return r.copyLocked(&e), nil
}

func (r *fakeWaitlistRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("waitlist entry", id.String())
	}
	return r.copyLocked(e), nil
}

func (r *fakeWaitlistRepo) List(ctx context.Context, venueID uuid.UUID, statuses []model.WaitlistStatus) ([]*model.WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WaitlistEntry
	for _, e := range r.orderedLocked(func(e *model.WaitlistEntry) bool { return e.VenueID == venueID }) {
		if len(statuses) > 0 && !containsStatus(statuses, e.Status) {
			continue
		}
		out = append(out, r.copyLocked(e))
	}
	return out, nil
}

func containsStatus(statuses []model.WaitlistStatus, s model.WaitlistStatus) bool {
	for _, status := range statuses {
		if status == s {
			return true
		}
	}
	return false
}

func (r *fakeWaitlistRepo) CountWaiting(ctx context.Context, venueID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orderedLocked(func(e *model.WaitlistEntry) bool {
		return e.VenueID == venueID && e.Status == model.WaitlistStatusWaiting
	})), nil
}

func (r *fakeWaitlistRepo) Transition(ctx context.Context, id uuid.UUID, t repository.WaitlistTransition) (*model.WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.VenueID != t.VenueID || !t.Action.ValidFrom(e.Status) {
		return nil, apperrors.ErrConditionFailed
	}
	at := t.At
	switch t.Action {
	case model.WaitlistActionNotify:
		e.NotifiedAt = &at
		e.ExpiresAt = t.ExpiresAt
	case model.WaitlistActionSeat:
		e.SeatedAt = &at
	case model.WaitlistActionRemove:
		e.RemovedAt = &at
	}
	e.Status = t.Action.Target()
	return r.copyLocked(e), nil
}

func (r *fakeWaitlistRepo) RecentSeated(ctx context.Context, venueID uuid.UUID, limit int) ([]*model.WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seated := r.orderedLocked(func(e *model.WaitlistEntry) bool {
		return e.VenueID == venueID && e.Status == model.WaitlistStatusSeated
	})
	sort.SliceStable(seated, func(i, j int) bool { return seated[i].SeatedAt.After(*seated[j].SeatedAt) })
	if len(seated) > limit {
		seated = seated[:limit]
	}
	out := make([]*model.WaitlistEntry, 0, len(seated))
	for _, e := range seated {
		out = append(out, r.copyLocked(e))
	}
	return out, nil
}

func (r *fakeWaitlistRepo) ListStaleNotified(ctx context.Context, venueID uuid.UUID, now time.Time) ([]*model.WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WaitlistEntry
	for _, e := range r.orderedLocked(func(e *model.WaitlistEntry) bool { return e.VenueID == venueID && e.IsStale(now) }) {
		out = append(out, r.copyLocked(e))
	}
	return out, nil
}

// ---- turnover cache ----

type fakeTurnoverCache struct {
	mu      sync.Mutex
	slots   map[uuid.UUID][]cache.TurnoverSlot
	size    int
	readErr error
}

func newFakeTurnoverCache(size int) *fakeTurnoverCache {
	return &fakeTurnoverCache{slots: map[uuid.UUID][]cache.TurnoverSlot{}, size: size}
}

func (c *fakeTurnoverCache) WarmUp(ctx context.Context, venueID uuid.UUID, window []cache.TurnoverSlot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(window) == 0 {
		delete(c.slots, venueID)
		return nil
	}
	if len(window) > c.size {
		window = window[:c.size]
	}
	c.slots[venueID] = append([]cache.TurnoverSlot(nil), window...)
	return nil
}

func (c *fakeTurnoverCache) PushSeating(ctx context.Context, venueID uuid.UUID, slot cache.TurnoverSlot) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.slots[venueID]
	if !ok {
		return false, nil
	}
	for _, existing := range current {
		if existing.EntryID == slot.EntryID {
			return false, nil
		}
	}
	s := append([]cache.TurnoverSlot{slot}, current...)
	if len(s) > c.size {
		s = s[:c.size]
	}
	c.slots[venueID] = s
	return true, nil
}

func (c *fakeTurnoverCache) Average(ctx context.Context, venueID uuid.UUID) (float64, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return 0, 0, c.readErr
	}
	s, ok := c.slots[venueID]
	if !ok {
		return 0, 0, cache.ErrNoSamples
	}
	var sum float64
	var n int
	for _, slot := range s {
		if slot.HasSample {
			sum += slot.Minutes
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return sum / float64(n), n, nil
}

// minutesOf 視窗中有樣本的分鐘數，新到舊
func (c *fakeTurnoverCache) minutesOf(venueID uuid.UUID) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []float64
	for _, slot := range c.slots[venueID] {
		if slot.HasSample {
			out = append(out, slot.Minutes)
		}
	}
	return out
}

func warmSlots(minutes ...float64) []cache.TurnoverSlot {
	window := make([]cache.TurnoverSlot, 0, len(minutes))
	for _, m := range minutes {
		window = append(window, cache.Sample(uuid.New(), m))
	}
	return window
}

var errBoom = errors.New("boom")
