// Package view holds the single-user screen state: which screen is active,
// the draft being edited, the listed bills and the current selection.
//
// Every transition runs under the controller's mutex, so requests observe
// transitions one at a time in arrival order.
package view

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rentbill/internal/billstore"
	"rentbill/internal/core"
	applog "rentbill/internal/log"
)

type State int

const (
	Home State = iota
	Creating
	Listing
)

func (s State) String() string {
	switch s {
	case Home:
		return "home"
	case Creating:
		return "creating"
	case Listing:
		return "listing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Export sources accepted by ExportSnapshot.
const (
	SourceDraft    = "draft"
	SourceSelected = "selected"
)

var (
	ErrInvalidTransition = errors.New("action not available on this screen")
	ErrNotConfirmed      = errors.New("delete requires confirmation")
	ErrNoSelection       = errors.New("no bill selected")
	ErrUnknownSource     = errors.New("unknown export source")
)

// Store is the part of the bill store the controller drives.
type Store interface {
	Save(ctx context.Context, bill core.Bill) (core.Bill, error)
	List(ctx context.Context) ([]core.Bill, error)
	Delete(ctx context.Context, c core.Criteria) (int, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
}

// Screen is a copy of the controller state for rendering.
type Screen struct {
	State    State
	Draft    core.Bill
	Bills    []core.Bill
	Groups   []ListGroup
	Selected *core.Bill
}

// ListGroup is one period of the saved-bills screen.
type ListGroup struct {
	Key   string
	Items []ListItem
}

// ListItem is a listed bill with its position in Screen.Bills.
type ListItem struct {
	Index    int
	Bill     core.Bill
	Selected bool
}

type Controller struct {
	mu       sync.Mutex
	store    Store
	logger   *applog.Logger
	state    State
	draft    core.Bill
	bills    []core.Bill
	selected int // index into bills, -1 when nothing is selected
}

func NewController(store Store, logger *applog.Logger) *Controller {
	if logger == nil {
		logger = applog.Default(applog.ComponentView)
	}
	return &Controller{
		store:    store,
		logger:   logger.WithComponent(applog.ComponentView),
		state:    Home,
		selected: -1,
	}
}

// Screen returns a snapshot of the current state.
func (c *Controller) Screen() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screenLocked()
}

func (c *Controller) screenLocked() Screen {
	s := Screen{State: c.state, Draft: c.draft}
	if c.state == Listing {
		s.Bills = append([]core.Bill(nil), c.bills...)
		s.Groups = groupItems(s.Bills, c.selected)
		if c.selected >= 0 {
			b := c.bills[c.selected]
			s.Selected = &b
		}
	}
	return s
}

// groupItems groups bills by period in order of first appearance.
func groupItems(bills []core.Bill, selected int) []ListGroup {
	index := make(map[string]int)
	var groups []ListGroup
	for i, b := range bills {
		key := b.PeriodKey()
		g, ok := index[key]
		if !ok {
			g = len(groups)
			index[key] = g
			groups = append(groups, ListGroup{Key: key})
		}
		groups[g].Items = append(groups[g].Items, ListItem{Index: i, Bill: b, Selected: i == selected})
	}
	return groups
}

func (c *Controller) transition(to State) {
	c.logger.Debug("View transition", applog.FieldView, to.String(), "from", c.state.String())
	c.state = to
}

func invalid(action string, s State) error {
	return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, action, s)
}

// CreateNew starts the create flow with a fresh default draft.
func (c *Controller) CreateNew() (Screen, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Home {
		return c.screenLocked(), invalid("create", c.state)
	}
	c.draft = core.NewDraft()
	c.transition(Creating)
	return c.screenLocked(), nil
}

// ViewSaved loads the store and shows the saved bills.
func (c *Controller) ViewSaved(ctx context.Context) (Screen, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Home {
		return c.screenLocked(), invalid("list", c.state)
	}
	bills, err := c.store.List(ctx)
	if err != nil {
		return c.screenLocked(), fmt.Errorf("load saved bills: %w", err)
	}
	c.bills = bills
	c.selected = -1
	c.transition(Listing)
	return c.screenLocked(), nil
}

// BackToMenu returns to Home and clears any selection.
func (c *Controller) BackToMenu() (Screen, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Home {
		return c.screenLocked(), invalid("back", c.state)
	}
	c.selected = -1
	c.bills = nil
	c.transition(Home)
	return c.screenLocked(), nil
}

// UpdateField edits one draft field.
func (c *Controller) UpdateField(name, value string) (Screen, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Creating {
		return c.screenLocked(), invalid("edit", c.state)
	}
	if err := c.draft.SetField(name, value); err != nil {
		return c.screenLocked(), err
	}
	return c.screenLocked(), nil
}

// UpdateFields edits several draft fields at once. If any field is invalid
// the draft is left unchanged.
func (c *Controller) UpdateFields(fields ...core.FieldValue) (Screen, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Creating {
		return c.screenLocked(), invalid("edit", c.state)
	}
	if err := c.draft.SetFields(fields...); err != nil {
		return c.screenLocked(), err
	}
	return c.screenLocked(), nil
}

// Save stores a snapshot of the draft and returns to Home. On failure the
// draft and screen are left as they were.
func (c *Controller) Save(ctx context.Context) (core.Bill, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Creating {
		return core.Bill{}, invalid("save", c.state)
	}
	saved, err := c.store.Save(ctx, c.draft)
	if err != nil {
		return core.Bill{}, err
	}
	c.transition(Home)
	return saved, nil
}

// Select marks the listed bill with the given id.
func (c *Controller) Select(id string) (Screen, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Listing {
		return c.screenLocked(), invalid("select", c.state)
	}
	for i, b := range c.bills {
		if id != "" && b.ID == id {
			c.selected = i
			return c.screenLocked(), nil
		}
	}
	return c.screenLocked(), fmt.Errorf("%w: %s", billstore.ErrNotFound, id)
}

// SelectIndex marks the listed bill at position i, for records saved
// without an id.
func (c *Controller) SelectIndex(i int) (Screen, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Listing {
		return c.screenLocked(), invalid("select", c.state)
	}
	if i < 0 || i >= len(c.bills) {
		return c.screenLocked(), fmt.Errorf("%w: index %d", billstore.ErrNotFound, i)
	}
	c.selected = i
	return c.screenLocked(), nil
}

// Delete removes the selected bill once the user confirmed. Bills with an id
// are removed by id; legacy records by their value tuple.
func (c *Controller) Delete(ctx context.Context, confirmed bool) (Screen, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Listing {
		return c.screenLocked(), 0, invalid("delete", c.state)
	}
	if c.selected < 0 {
		return c.screenLocked(), 0, ErrNoSelection
	}
	if !confirmed {
		return c.screenLocked(), 0, ErrNotConfirmed
	}

	target := c.bills[c.selected]
	var removed int
	if target.ID != "" {
		ok, err := c.store.DeleteByID(ctx, target.ID)
		if err != nil {
			return c.screenLocked(), 0, err
		}
		if ok {
			removed = 1
		}
	} else {
		n, err := c.store.Delete(ctx, target.Criteria())
		if err != nil {
			return c.screenLocked(), 0, err
		}
		removed = n
	}

	c.selected = -1
	bills, err := c.store.List(ctx)
	if err != nil {
		return c.screenLocked(), removed, fmt.Errorf("reload saved bills: %w", err)
	}
	c.bills = bills
	return c.screenLocked(), removed, nil
}

// ExportSnapshot returns a copy of the bill an export should render: the
// draft while creating, the selection while listing.
func (c *Controller) ExportSnapshot(source string) (core.Bill, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch source {
	case SourceDraft:
		if c.state != Creating {
			return core.Bill{}, invalid("export draft", c.state)
		}
		return c.draft, nil
	case SourceSelected:
		if c.state != Listing {
			return core.Bill{}, invalid("export selection", c.state)
		}
		if c.selected < 0 {
			return core.Bill{}, ErrNoSelection
		}
		return c.bills[c.selected], nil
	default:
		return core.Bill{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
}
