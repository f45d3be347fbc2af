// Command stock-report opens the configured agrichain store and prints a
// user's inventory, order, and notification statistics as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"agrichain/internal/core"
	"agrichain/pkg/domain"
)

type report struct {
	UserID        string                 `json:"user_id"`
	Role          core.Role              `json:"role"`
	Inventory     core.InventoryStats    `json:"inventory"`
	Orders        core.OrderStats        `json:"orders"`
	Notifications core.NotificationStats `json:"notifications"`
	LowStock      []core.InventoryItem   `json:"low_stock,omitempty"`
}

var exitFunc = os.Exit

func main() {
	userID := flag.String("user", "", "user id to report on (required)")
	role := flag.String("role", string(core.RoleFarmer), "user role: farmer|processor|distributor|consumer")
	lowStock := flag.Bool("low-stock", false, "include the low stock records in the output")
	flag.Parse()

	if err := run(*userID, core.Role(*role), *lowStock, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "stock-report:", err)
		exitFunc(1)
	}
}

func run(userID string, role core.Role, includeLowStock bool, out io.Writer) error {
	if userID == "" {
		return fmt.Errorf("-user is required")
	}
	switch role {
	case core.RoleFarmer, core.RoleProcessor, core.RoleDistributor, core.RoleConsumer:
	default:
		return fmt.Errorf("unknown role %s", role)
	}

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore(store)

	svc := core.NewService(store)
	rep := report{
		UserID:        userID,
		Role:          role,
		Inventory:     svc.InventoryStatistics(userID, role),
		Orders:        svc.OrderStatistics(userID, role),
		Notifications: svc.NotificationStatistics(userID),
	}
	if includeLowStock {
		rep.LowStock = svc.LowStockItems(userID, role)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func closeStore(store domain.PersistentStore) {
	if closer, ok := store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
