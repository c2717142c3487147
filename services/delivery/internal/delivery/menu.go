package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aquamarinepk/aqm"
)

const MenuDateLayout = "2006-01-02"

type Dish struct {
	ID          string `json:"id" bson:"id"`
	Name        string `json:"name" bson:"name"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	Price       Money  `json:"price" bson:"price"`
	Available   bool   `json:"available" bson:"available"`
	ImageRef    string `json:"image_ref,omitempty" bson:"image_ref,omitempty"`
	Category    string `json:"category,omitempty" bson:"category,omitempty"`
}

// Menu is the list of dishes offered on one day.
type Menu struct {
	Date      string    `json:"date" bson:"_id"`
	Dishes    []Dish    `json:"dishes" bson:"dishes"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// MenuKey is the menu key for the day t falls on.
func MenuKey(t time.Time) string {
	return t.Format(MenuDateLayout)
}

func ValidMenuDate(date string) bool {
	_, err := time.Parse(MenuDateLayout, date)
	return err == nil
}

func (m *Menu) Validate() error {
	if !ValidMenuDate(m.Date) {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidMenu, m.Date)
	}
	seen := make(map[string]struct{}, len(m.Dishes))
	for _, d := range m.Dishes {
		if strings.TrimSpace(d.ID) == "" || strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("%w: every dish needs an id and a name", ErrInvalidMenu)
		}
		if d.Price.IsNegative() {
			return fmt.Errorf("%w: dish %s has a negative price", ErrInvalidMenu, d.ID)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: dish %s listed twice", ErrInvalidMenu, d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}

func (m *Menu) Dish(id string) (Dish, bool) {
	for _, d := range m.Dishes {
		if d.ID == id {
			return d, true
		}
	}
	return Dish{}, false
}

// MenuService reads and publishes the daily menu.
type MenuService struct {
	menus  MenuRepo
	now    func() time.Time
	logger aqm.Logger
}

func NewMenuService(menus MenuRepo, clock func() time.Time, logger aqm.Logger) *MenuService {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &MenuService{menus: menus, now: clock, logger: logger}
}

// Get returns the menu for date, or today's menu when date is empty.
func (ms *MenuService) Get(ctx context.Context, date string) (*Menu, error) {
	if date == "" {
		date = MenuKey(ms.now())
	}
	if !ValidMenuDate(date) {
		return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidMenu, date)
	}
	m, err := ms.menus.Get(ctx, date)
	if err != nil {
		return nil, storeError("get menu", err)
	}
	if m == nil {
		return nil, fmt.Errorf("menu %s: %w", date, ErrNotFound)
	}
	return m, nil
}

// Save replaces the whole menu of m.Date, keeping its creation time.
func (ms *MenuService) Save(ctx context.Context, s Session, m *Menu) (*Menu, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if !s.Is(RoleAdmin) {
		return nil, fmt.Errorf("%w: only admins publish menus", ErrForbidden)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	existing, err := ms.menus.Get(ctx, m.Date)
	if err != nil {
		return nil, storeError("get menu", err)
	}
	now := ms.now()
	m.CreatedAt = now
	if existing != nil {
		m.CreatedAt = existing.CreatedAt
	}
	m.UpdatedAt = now
	if m.Dishes == nil {
		m.Dishes = []Dish{}
	}

	if err := ms.menus.Save(ctx, m); err != nil {
		return nil, storeError("save menu", err)
	}
	ms.logger.Info("menu saved", "date", m.Date, "dishes", len(m.Dishes))
	return m, nil
}
