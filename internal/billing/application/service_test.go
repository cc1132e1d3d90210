package application

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriptionRepo struct {
	subs      []*domain.Subscription
	err       error
	listCalls int
}

func (f *fakeSubscriptionRepo) find(match func(*domain.Subscription) bool) (*domain.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.subs {
		if match(s) {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSubscriptionRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return f.find(func(s *domain.Subscription) bool { return s.UserID == userID })
}

func (f *fakeSubscriptionRepo) FindByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	return f.find(func(s *domain.Subscription) bool { return customerID != "" && s.DodoCustomerID == customerID })
}

func (f *fakeSubscriptionRepo) FindByEmail(ctx context.Context, email string) (*domain.Subscription, error) {
	return f.find(func(s *domain.Subscription) bool { return email != "" && strings.EqualFold(s.Email, email) })
}

func (f *fakeSubscriptionRepo) ListDue(ctx context.Context, status domain.SubscriptionStatus, now time.Time, after uuid.UUID, limit int) ([]*domain.Subscription, error) {
	f.listCalls++
	if f.err != nil {
		return nil, f.err
	}
	var out []*domain.Subscription
	for _, s := range f.subs {
		due := s.SweepDeadline()
		if s.Status != status || due == nil || !due.Before(now) {
			continue
		}
		if after != uuid.Nil && bytes.Compare(s.ID[:], after[:]) <= 0 {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSubscriptionRepo) Insert(ctx context.Context, sub *domain.Subscription) error {
	f.subs = append(f.subs, sub)
	return nil
}

func (f *fakeSubscriptionRepo) Update(ctx context.Context, sub *domain.Subscription) error {
	return nil
}

type fakeAuditRepo struct {
	lastLimit int
	entries   []*domain.AuditEntry
}

func (f *fakeAuditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.AuditEntry, error) {
	f.lastLimit = limit
	return f.entries, nil
}

func newServiceFixture() (*Service, *domain.Subscription, *fakeAuditRepo) {
	end := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	sub := &domain.Subscription{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		Status:         domain.SubscriptionActive,
		Plan:           "pro",
		EndDate:        &end,
		Email:          "Learner@Example.com",
		DodoCustomerID: "cus_7",
	}
	audit := &fakeAuditRepo{}
	return NewService(&fakeSubscriptionRepo{subs: []*domain.Subscription{sub}}, audit), sub, audit
}

func TestService_Finders(t *testing.T) {
	svc, sub, _ := newServiceFixture()
	ctx := context.Background()

	got, err := svc.GetSubscription(ctx, sub.UserID)
	require.NoError(t, err)
	assert.Equal(t, sub, got)

	got, err = svc.FindByCustomerID(ctx, "cus_7")
	require.NoError(t, err)
	assert.Equal(t, sub, got)

	got, err = svc.FindByEmail(ctx, "learner@example.com")
	require.NoError(t, err)
	assert.Equal(t, sub, got)

	got, err = svc.GetSubscription(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestService_GetPublicSubscription(t *testing.T) {
	svc, sub, _ := newServiceFixture()

	view, err := svc.GetPublicSubscription(context.Background(), sub.UserID)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, domain.SubscriptionActive, view.Status)
	assert.Equal(t, "pro", view.Plan)
	assert.Equal(t, "cus_7", view.DodoCustomerID)

	view, err = svc.GetPublicSubscription(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestService_HasAccess(t *testing.T) {
	svc, sub, _ := newServiceFixture()
	ctx := context.Background()

	ok, err := svc.HasAccess(ctx, sub.UserID, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasAccess(ctx, sub.UserID, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasAccess(ctx, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_HasAccessPropagatesErrors(t *testing.T) {
	storeErr := errors.New("down")
	svc := NewService(&fakeSubscriptionRepo{err: storeErr}, nil)

	_, err := svc.HasAccess(context.Background(), uuid.New(), time.Now())
	assert.ErrorIs(t, err, storeErr)
}

func TestService_ListAuditLogClampsLimit(t *testing.T) {
	svc, sub, audit := newServiceFixture()
	ctx := context.Background()

	tests := []struct {
		limit    int
		expected int
	}{
		{0, DefaultAuditLimit},
		{-3, DefaultAuditLimit},
		{10, 10},
		{10000, MaxAuditLimit},
	}
	for _, tt := range tests {
		_, err := svc.ListAuditLog(ctx, sub.UserID, tt.limit)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, audit.lastLimit)
	}
}

func TestService_NilSafe(t *testing.T) {
	var svc *Service
	ctx := context.Background()

	sub, err := svc.GetSubscription(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, sub)

	entries, err := svc.ListAuditLog(ctx, uuid.New(), 5)
	require.NoError(t, err)
	assert.Nil(t, entries)

	empty := &Service{}
	sub, err = empty.FindByEmail(ctx, "x@y.z")
	require.NoError(t, err)
	assert.Nil(t, sub)
}
