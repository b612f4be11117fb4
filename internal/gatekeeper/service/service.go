package service

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const msgConcurrentUpdate = "The record was changed by another request. Please reload and try again."

// ListRequest pages the administrative list endpoints. A zero
// MaxResultCount returns every row.
type ListRequest struct {
	Filter         string
	SkipCount      int
	MaxResultCount int
}

func (r ListRequest) validate() error {
	if r.SkipCount < 0 {
		return domain.BadRequest("Page should at least greater than or equal to 0.")
	}
	if r.MaxResultCount < 0 {
		return domain.BadRequest("Page size should at least greater than or equal to 0.")
	}
	return nil
}

func (r ListRequest) query() store.ListQuery {
	return store.ListQuery{Filter: r.Filter, Offset: r.SkipCount, Limit: r.MaxResultCount}
}

// Page is one slice of a filtered listing and the size of the whole
// listing.
type Page[T any] struct {
	TotalCount int
	Items      []T
}

// retryOnConflict runs fn again when it loses an optimistic update. fn must
// reload whatever it writes. A second conflict is reported to the caller.
func retryOnConflict(ctx context.Context, fn func() error) error {
	err := fn()
	if errors.Is(err, store.ErrConflict) {
		slogx.FromContext(ctx).Debug("version conflict, retrying once")
		err = fn()
	}
	if errors.Is(err, store.ErrConflict) {
		return domain.Conflict(msgConcurrentUpdate)
	}
	return err
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func nowFunc(f func() time.Time) time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f().UTC()
}
