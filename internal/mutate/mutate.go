// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package mutate applies like and save toggles optimistically.
//
// A toggle is applied to the local list first, before the network call is
// made. If the backend confirms the expected transition the local state is
// kept as is. Otherwise the toggled fields are restored to their previous
// values.
//
// Two toggles of the same item may be in flight at the same time. They are
// neither queued nor canceled, so the state shown last is whatever the later
// response leaves behind.
package mutate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"go.astrophena.name/feedsync/internal/backend"
	"go.astrophena.name/feedsync/internal/feed"
	"go.astrophena.name/feedsync/internal/logger"
)

// Backend response messages confirming a transition. A response is accepted
// if its message contains the expected string.
const (
	LikedMessage   = "liked your post."
	UnlikedMessage = "unliked the post."
	SavedMessage   = "Item added to collection successfully"
	UnsavedMessage = "Item removed from all collections successfully"
)

// ErrNotFound is returned by a [Target] when the item is not in the list.
var ErrNotFound = errors.New("item not found")

// ErrCanceled is returned by ToggleSave when no collection was picked.
var ErrCanceled = errors.New("collection selection canceled")

// Kind is the kind of a mutation.
type Kind string

// Mutation kinds.
const (
	Like   Kind = "like"
	Unlike Kind = "unlike"
	Save   Kind = "save"
	Unsave Kind = "unsave"
)

// State is where a mutation ended up.
type State string

// Mutation states.
const (
	Pending   State = "pending"
	Confirmed State = "confirmed"
	Reverted  State = "reverted"
)

// API is the part of the backend a Mutator calls.
type API interface {
	ToggleLike(ctx context.Context, itemID string) (string, error)
	AddItemToCollection(ctx context.Context, collectionID, itemID string, itemType feed.ContentType) (string, error)
	RemoveItemFromCollections(ctx context.Context, itemID string) (string, error)
	Collections(ctx context.Context) ([]backend.Collection, error)
}

// Target holds the list being mutated.
type Target interface {
	// Item returns the item with the given ID.
	Item(itemID string) (feed.Item, bool)
	// Apply passes the item with the given ID to fn, then persists the list
	// and notifies observers. It returns the item as left by fn, or
	// ErrNotFound.
	Apply(ctx context.Context, itemID string, fn func(*feed.Item)) (feed.Item, error)
}

// Picker chooses the collection an item is saved into. Returning ok == false
// cancels the save.
type Picker func(ctx context.Context, collections []backend.Collection) (collectionID string, ok bool, err error)

// Result describes a settled mutation.
type Result struct {
	ID     string // unique per mutation
	Kind   Kind
	ItemID string
	State  State
	Item   feed.Item // item after the mutation settled
}

// MutationError is returned when the backend rejects or doesn't confirm a
// mutation. The local change has been reverted when it is returned.
type MutationError struct {
	Kind    Kind
	ItemID  string
	Message string // server message, if any
	Err     error  // transport or HTTP error, if any
}

func (e *MutationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.ItemID, e.Err)
	}
	return fmt.Sprintf("%s %s: unexpected response %q", e.Kind, e.ItemID, e.Message)
}

func (e *MutationError) Unwrap() error { return e.Err }

// Mutator applies optimistic mutations to a Target.
type Mutator struct {
	API    API
	Target Target
	// Logger receives mutation logs. If nil, nothing is logged.
	Logger *slog.Logger
	// Metrics counts settled mutations. May be nil.
	Metrics *Metrics
	// OnSettled, if set, is called once a mutation is confirmed or reverted.
	OnSettled func(Result)
}

var tracer = otel.Tracer("go.astrophena.name/feedsync/internal/mutate")

// ToggleLike likes the item if it isn't liked and unlikes it otherwise.
func (m *Mutator) ToggleLike(ctx context.Context, itemID string) (Result, error) {
	return m.run(ctx, itemID, func(it *feed.Item) Kind {
		flip(&it.IsLiked, &it.LikeCount)
		if it.IsLiked {
			return Like
		}
		return Unlike
	}, func(ctx context.Context, _ feed.Item) (string, error) {
		return m.API.ToggleLike(ctx, itemID)
	}, func(it *feed.Item, prev feed.Item) {
		it.IsLiked, it.LikeCount = prev.IsLiked, prev.LikeCount
	})
}

// ToggleSave saves the item if it isn't saved and unsaves it otherwise.
// Saving first lists collections and lets pick choose one; if pick cancels,
// ErrCanceled is returned and nothing changes.
func (m *Mutator) ToggleSave(ctx context.Context, itemID string, pick Picker) (Result, error) {
	current, ok := m.Target.Item(itemID)
	if !ok {
		return Result{}, ErrNotFound
	}

	var collectionID string
	if !current.IsSaved {
		cols, err := m.API.Collections(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("listing collections: %w", err)
		}
		id, ok, err := pick(ctx, cols)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, ErrCanceled
		}
		collectionID = id
	}

	return m.run(ctx, itemID, func(it *feed.Item) Kind {
		flip(&it.IsSaved, &it.SavedCount)
		if it.IsSaved {
			return Save
		}
		return Unsave
	}, func(ctx context.Context, it feed.Item) (string, error) {
		if it.IsSaved {
			if collectionID == "" {
				// Saved by a racing toggle after the picker ran.
				return "", fmt.Errorf("no collection picked")
			}
			return m.API.AddItemToCollection(ctx, collectionID, itemID, it.ContentType)
		}
		return m.API.RemoveItemFromCollections(ctx, itemID)
	}, func(it *feed.Item, prev feed.Item) {
		it.IsSaved, it.SavedCount = prev.IsSaved, prev.SavedCount
	})
}

// flip toggles a flag and moves its counter along, never below zero.
func flip(flag *bool, count *int) {
	*flag = !*flag
	if *flag {
		*count++
	} else {
		*count = max(*count-1, 0)
	}
}

func expected(kind Kind) string {
	switch kind {
	case Like:
		return LikedMessage
	case Unlike:
		return UnlikedMessage
	case Save:
		return SavedMessage
	case Unsave:
		return UnsavedMessage
	}
	return ""
}

func (m *Mutator) run(
	ctx context.Context,
	itemID string,
	apply func(*feed.Item) Kind,
	call func(context.Context, feed.Item) (string, error),
	restore func(it *feed.Item, prev feed.Item),
) (Result, error) {
	log := logger.Or(m.Logger)
	res := Result{ID: uuid.NewString(), ItemID: itemID, State: Pending}

	ctx, span := tracer.Start(ctx, "mutate", trace.WithAttributes(
		attribute.String("feedsync.mutation.id", res.ID),
		attribute.String("feedsync.item.id", itemID),
	))
	defer span.End()

	// Pending: change the local list before anything goes over the network.
	var prev feed.Item
	applied, err := m.Target.Apply(ctx, itemID, func(it *feed.Item) {
		prev = *it
		res.Kind = apply(it)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	res.Item = applied
	span.SetAttributes(attribute.String("feedsync.mutation.kind", string(res.Kind)))
	log.Debug("mutation pending", "mutation", res.ID, "kind", res.Kind, "item", itemID)

	msg, err := call(ctx, applied)
	if err == nil && strings.Contains(msg, expected(res.Kind)) {
		res.State = Confirmed
		log.Debug("mutation confirmed", "mutation", res.ID, "kind", res.Kind, "item", itemID)
		m.settle(res)
		return res, nil
	}

	merr := &MutationError{Kind: res.Kind, ItemID: itemID, Message: msg, Err: err}
	span.RecordError(merr)
	span.SetStatus(codes.Error, merr.Error())

	reverted, rerr := m.Target.Apply(ctx, itemID, func(it *feed.Item) { restore(it, prev) })
	switch {
	case errors.Is(rerr, ErrNotFound):
		log.Debug("reverted item is gone", "mutation", res.ID, "item", itemID)
	case rerr != nil:
		log.Warn("reverting mutation", "mutation", res.ID, "item", itemID, "error", rerr)
	default:
		res.Item = reverted
	}
	res.State = Reverted
	log.Info("mutation reverted", "mutation", res.ID, "kind", res.Kind, "item", itemID, "error", merr)
	m.settle(res)
	return res, merr
}

func (m *Mutator) settle(res Result) {
	m.Metrics.observe(res)
	if m.OnSettled != nil {
		m.OnSettled(res)
	}
}

// Metrics counts settled mutations.
type Metrics struct {
	settled *prometheus.CounterVec
}

// NewMetrics creates mutation metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feedsync",
			Name:      "mutations_total",
			Help:      "Settled optimistic mutations by kind and state.",
		}, []string{"kind", "state"}),
	}
	reg.MustRegister(m.settled)
	return m
}

func (m *Metrics) observe(res Result) {
	if m == nil {
		return
	}
	m.settled.WithLabelValues(string(res.Kind), string(res.State)).Inc()
}
