// Package seeding writes demo documents straight into the delivery database.
// Documents carry created_by so clear-demo can find them again.
package seeding

const (
	Application  = "delivery_demo"
	CreatedBy    = "demo-seed"
	OrdersSeedID = "demo_orders_v1"
	DateLayout   = "2006-01-02"
)

// MenuSeedID matches the id the delivery service uses for its own demo menu
// seed, so whichever runs first wins.
func MenuSeedID(date string) string {
	return "demo_menu_" + date
}
