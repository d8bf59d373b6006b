package backend

import (
	"errors"
	"net/http"
	"testing"

	"github.com/BigBang142/Tor-Search-MCP/internal/model"
)

// TestRegistrySelect tests source filtering and priority order.
func TestRegistrySelect(t *testing.T) {
	t.Parallel()

	newTestRegistry := func(t *testing.T) *Registry {
		t.Helper()
		searx, err := NewSearx("https://searx.example.org")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return NewRegistry(NewDuckDuckGo(), searx, NewAhmia())
	}

	t.Run("empty filter selects all in registry order", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry(t)
		selected := r.Select(model.Query{Text: "x", MaxResults: 1})
		if len(selected) != 3 {
			t.Fatalf("got %d adapters, expected 3", len(selected))
		}
		want := []model.BackendKind{model.KindDuckDuckGo, model.KindSearx, model.KindAhmia}
		for i, a := range selected {
			if a.Kind() != want[i] {
				t.Errorf("position %d: got %q, expected %q", i, a.Kind(), want[i])
			}
		}
	})

	t.Run("filter narrows the selection", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry(t)
		selected := r.Select(model.Query{
			Text:       "x",
			MaxResults: 1,
			Sources:    []model.BackendKind{model.KindAhmia},
		})
		if len(selected) != 1 || selected[0].Kind() != model.KindAhmia {
			t.Errorf("unexpected selection %v", selected)
		}
	})

	t.Run("lookup finds registered kinds", func(t *testing.T) {
		t.Parallel()

		r := newTestRegistry(t)
		if _, err := r.Lookup(model.KindSearx); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := r.Lookup(model.BackendKind("bogus")); !errors.Is(err, ErrUnknownKind) {
			t.Errorf("got %v, expected ErrUnknownKind", err)
		}
	})
}

// TestStatusError tests shared HTTP status classification.
func TestStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusOK, nil},
		{http.StatusNotFound, nil},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusForbidden, ErrBlocked},
		{http.StatusInternalServerError, ErrBlocked},
		{http.StatusServiceUnavailable, ErrBlocked},
	}

	for _, tt := range tests {
		got := statusError(tt.status)
		if !errors.Is(got, tt.want) && !(got == nil && tt.want == nil) {
			t.Errorf("statusError(%d) = %v, expected %v", tt.status, got, tt.want)
		}
	}
}

// TestRankScore tests rank-derived scoring.
func TestRankScore(t *testing.T) {
	t.Parallel()

	t.Run("scores decay strictly with rank", func(t *testing.T) {
		t.Parallel()

		const total = 8
		prev := 2.0
		for i := 0; i < total; i++ {
			s := rankScore(i, total)
			if s <= 0 || s >= prev {
				t.Fatalf("rank %d: score %f not strictly decaying below %f", i, s, prev)
			}
			prev = s
		}
	})

	t.Run("zero total scores zero", func(t *testing.T) {
		t.Parallel()

		if got := rankScore(0, 0); got != 0 {
			t.Errorf("got %f, expected 0", got)
		}
	})
}
